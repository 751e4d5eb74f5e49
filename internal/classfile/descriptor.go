package classfile

import (
	"fmt"
	"strings"
)

var baseTypes = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// TypeName converts a field descriptor to its Java source form:
// "[Ljava/lang/String;" -> "java.lang.String[]".
func TypeName(desc string) (string, error) {
	name, rest, err := nextType(desc)
	if err != nil {
		return "", err
	}
	if rest != "" {
		return "", fmt.Errorf("classfile: trailing %q in descriptor %q", rest, desc)
	}
	return name, nil
}

// MethodType splits a method descriptor into Java parameter types and the
// return type.
func MethodType(desc string) (params []string, ret string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("classfile: method descriptor %q", desc)
	}
	rest := desc[1:]
	for !strings.HasPrefix(rest, ")") {
		if rest == "" {
			return nil, "", fmt.Errorf("classfile: unterminated method descriptor %q", desc)
		}
		var p string
		if p, rest, err = nextType(rest); err != nil {
			return nil, "", err
		}
		params = append(params, p)
	}
	if ret, err = TypeName(rest[1:]); err != nil {
		return nil, "", err
	}
	return params, ret, nil
}

// ArgSlots returns the local variable slots taken by the parameters of a
// method descriptor, counting long and double as two.
func ArgSlots(desc string) int {
	params, _, err := MethodType(desc)
	if err != nil {
		return 0
	}
	n := 0
	for _, p := range params {
		if p == "long" || p == "double" {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func nextType(desc string) (name, rest string, err error) {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	desc = desc[dims:]
	if desc == "" {
		return "", "", fmt.Errorf("classfile: empty descriptor")
	}
	switch c := desc[0]; c {
	case 'L':
		end := strings.IndexByte(desc, ';')
		if end < 0 {
			return "", "", fmt.Errorf("classfile: unterminated class descriptor %q", desc)
		}
		name, rest = strings.ReplaceAll(desc[1:end], "/", "."), desc[end+1:]
	default:
		base, ok := baseTypes[c]
		if !ok {
			return "", "", fmt.Errorf("classfile: bad descriptor character %q", c)
		}
		name, rest = base, desc[1:]
	}
	return name + strings.Repeat("[]", dims), rest, nil
}

// ExternalName converts an internal name to dotted form.
func ExternalName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}
