package classfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dusk-indust/jide/internal/mutf8"
)

// Tag is a constant pool entry tag.
type Tag uint8

const (
	TagUTF8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagUTF8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Constant is one constant pool entry. Which fields are set depends on Tag:
// A and B hold the referenced indices (class/name-and-type, name/descriptor,
// bootstrap/name-and-type), Kind the method handle reference kind.
type Constant struct {
	Tag    Tag
	A, B   uint16
	Kind   uint8
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Str    string
}

// Pool is the constant pool indexed by constant pool index. Index 0 and the
// slot after each Long or Double are empty.
type Pool []Constant

func readPool(r *reader) (Pool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	pool := make(Pool, count)
	for i := 1; i < count; i++ {
		tag := Tag(r.u1())
		c := Constant{Tag: tag}
		switch tag {
		case TagUTF8:
			c.Str = mutf8.Decode(r.bytes(int(r.u2())))
		case TagInteger:
			c.Int = int32(r.u4())
		case TagFloat:
			c.Float = float32From(r.u4())
		case TagLong:
			c.Long = int64(r.u8())
		case TagDouble:
			c.Double = float64From(r.u8())
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.A = r.u2()
			c.B = r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.A = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("classfile: constant #%d: unknown tag %d", i, tag)
		}
		if r.err != nil {
			return nil, fmt.Errorf("classfile: constant #%d: %w", i, r.err)
		}
		pool[i] = c
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return pool, nil
}

func (p Pool) get(i uint16) (Constant, bool) {
	if int(i) <= 0 || int(i) >= len(p) || p[i].Tag == 0 {
		return Constant{}, false
	}
	return p[i], true
}

// Tag returns the tag at i, or 0 for an invalid index.
func (p Pool) Tag(i uint16) Tag {
	c, _ := p.get(i)
	return c.Tag
}

// UTF8 returns the string at a Utf8 index, or "" if i is not one.
func (p Pool) UTF8(i uint16) string {
	c, ok := p.get(i)
	if !ok || c.Tag != TagUTF8 {
		return ""
	}
	return c.Str
}

// ClassName returns the internal name referenced by a Class index.
func (p Pool) ClassName(i uint16) string {
	c, ok := p.get(i)
	if !ok || c.Tag != TagClass {
		return ""
	}
	return p.UTF8(c.A)
}

// NameAndType returns the name and descriptor of a NameAndType index.
func (p Pool) NameAndType(i uint16) (name, descriptor string) {
	c, ok := p.get(i)
	if !ok || c.Tag != TagNameAndType {
		return "", ""
	}
	return p.UTF8(c.A), p.UTF8(c.B)
}

// Operands renders the raw operand column of entry i ("#3.#7", "42").
func (p Pool) Operands(i uint16) string {
	c, ok := p.get(i)
	if !ok {
		return ""
	}
	switch c.Tag {
	case TagUTF8:
		return c.Str
	case TagInteger:
		return strconv.Itoa(int(c.Int))
	case TagFloat:
		return strconv.FormatFloat(float64(c.Float), 'g', -1, 32) + "f"
	case TagLong:
		return strconv.FormatInt(c.Long, 10) + "l"
	case TagDouble:
		return strconv.FormatFloat(c.Double, 'g', -1, 64) + "d"
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		return fmt.Sprintf("#%d", c.A)
	case TagMethodHandle:
		return fmt.Sprintf("%d:#%d", c.Kind, c.A)
	case TagDynamic, TagInvokeDynamic:
		return fmt.Sprintf("#%d:#%d", c.A, c.B)
	default:
		return fmt.Sprintf("#%d.#%d", c.A, c.B)
	}
}

// Describe renders the resolved value of entry i, the text javap prints
// after "//".
func (p Pool) Describe(i uint16) string {
	c, ok := p.get(i)
	if !ok {
		return fmt.Sprintf("<invalid #%d>", i)
	}
	switch c.Tag {
	case TagUTF8, TagInteger, TagFloat, TagLong, TagDouble:
		return p.Operands(i)
	case TagClass:
		return quoteArray(p.UTF8(c.A))
	case TagString:
		return p.UTF8(c.A)
	case TagModule, TagPackage:
		return p.UTF8(c.A)
	case TagMethodType:
		return p.UTF8(c.A)
	case TagNameAndType:
		name, desc := p.NameAndType(i)
		return quoteSpecial(name) + ":" + desc
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		owner := p.ClassName(c.A)
		name, desc := p.NameAndType(c.B)
		return owner + "." + quoteSpecial(name) + ":" + desc
	case TagMethodHandle:
		return refKinds[c.Kind] + " " + p.Describe(c.A)
	case TagDynamic, TagInvokeDynamic:
		name, desc := p.NameAndType(c.B)
		return fmt.Sprintf("#%d:%s:%s", c.A, quoteSpecial(name), desc)
	}
	return ""
}

var refKinds = map[uint8]string{
	1: "REF_getField",
	2: "REF_getStatic",
	3: "REF_putField",
	4: "REF_putStatic",
	5: "REF_invokeVirtual",
	6: "REF_invokeStatic",
	7: "REF_invokeSpecial",
	8: "REF_newInvokeSpecial",
	9: "REF_invokeInterface",
}

// quoteSpecial quotes <init> and <clinit> the way javap does.
func quoteSpecial(name string) string {
	if strings.HasPrefix(name, "<") {
		return `"` + name + `"`
	}
	return name
}

// quoteArray quotes array class names ("[Ljava/lang/String;").
func quoteArray(name string) string {
	if strings.HasPrefix(name, "[") {
		return `"` + name + `"`
	}
	return name
}
