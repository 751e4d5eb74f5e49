package classfile

import (
	"fmt"
	"sort"
	"strings"
)

type flagName struct {
	bit  uint16
	name string
	word string // source modifier, "" if none
}

var classFlags = []flagName{
	{AccPublic, "ACC_PUBLIC", "public"},
	{AccFinal, "ACC_FINAL", "final"},
	{AccSuper, "ACC_SUPER", ""},
	{AccInterface, "ACC_INTERFACE", ""},
	{AccAbstract, "ACC_ABSTRACT", "abstract"},
	{AccSynthetic, "ACC_SYNTHETIC", ""},
	{AccAnnotation, "ACC_ANNOTATION", ""},
	{AccEnum, "ACC_ENUM", ""},
}

var fieldFlags = []flagName{
	{AccPublic, "ACC_PUBLIC", "public"},
	{AccPrivate, "ACC_PRIVATE", "private"},
	{AccProtected, "ACC_PROTECTED", "protected"},
	{AccStatic, "ACC_STATIC", "static"},
	{AccFinal, "ACC_FINAL", "final"},
	{AccVolatile, "ACC_VOLATILE", "volatile"},
	{AccTransient, "ACC_TRANSIENT", "transient"},
	{AccSynthetic, "ACC_SYNTHETIC", ""},
	{AccEnum, "ACC_ENUM", ""},
}

var methodFlags = []flagName{
	{AccPublic, "ACC_PUBLIC", "public"},
	{AccPrivate, "ACC_PRIVATE", "private"},
	{AccProtected, "ACC_PROTECTED", "protected"},
	{AccStatic, "ACC_STATIC", "static"},
	{AccFinal, "ACC_FINAL", "final"},
	{AccSynchronized, "ACC_SYNCHRONIZED", "synchronized"},
	{AccBridge, "ACC_BRIDGE", ""},
	{AccVarargs, "ACC_VARARGS", ""},
	{AccNative, "ACC_NATIVE", "native"},
	{AccAbstract, "ACC_ABSTRACT", "abstract"},
	{AccStrict, "ACC_STRICT", "strictfp"},
	{AccSynthetic, "ACC_SYNTHETIC", ""},
}

func flagList(flags uint16, table []flagName) string {
	var names []string
	for _, f := range table {
		if flags&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return fmt.Sprintf("(0x%04x) %s", flags, strings.Join(names, ", "))
}

func modifiers(flags uint16, table []flagName, skip uint16) string {
	var words []string
	for _, f := range table {
		if flags&f.bit != 0 && flags&skip&f.bit == 0 && f.word != "" {
			words = append(words, f.word)
		}
	}
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, " ") + " "
}

// Disassemble renders c as a javap -c -v style listing: header, constant
// pool, then every field and method with decoded bytecode.
func Disassemble(c *ClassFile) (string, error) {
	var b strings.Builder

	if c.SourceFile != "" {
		fmt.Fprintf(&b, "Compiled from %q\n", c.SourceFile)
	}
	b.WriteString(classDeclaration(c))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  minor version: %d\n", c.MinorVersion)
	fmt.Fprintf(&b, "  major version: %d\n", c.MajorVersion)
	fmt.Fprintf(&b, "  flags: %s\n", flagList(c.AccessFlags, classFlags))
	fmt.Fprintf(&b, "  %-38s// %s\n", fmt.Sprintf("this_class: #%d", c.ThisClass), c.Name())
	if c.SuperClass != 0 {
		fmt.Fprintf(&b, "  %-38s// %s\n", fmt.Sprintf("super_class: #%d", c.SuperClass), c.SuperName())
	}
	fmt.Fprintf(&b, "  interfaces: %d, fields: %d, methods: %d, attributes: %d\n",
		len(c.Interfaces), len(c.Fields), len(c.Methods), len(c.Attributes)+boolInt(c.SourceFile != ""))

	writePool(&b, c.Pool)

	b.WriteString("{\n")
	for i, f := range c.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		if err := writeField(&b, c, f); err != nil {
			return "", err
		}
	}
	for i, m := range c.Methods {
		if i > 0 || len(c.Fields) > 0 {
			b.WriteByte('\n')
		}
		if err := writeMethod(&b, c, m); err != nil {
			return "", err
		}
	}
	b.WriteString("}\n")
	if c.SourceFile != "" {
		fmt.Fprintf(&b, "SourceFile: %q\n", c.SourceFile)
	}
	return b.String(), nil
}

func classDeclaration(c *ClassFile) string {
	var b strings.Builder
	isInterface := c.AccessFlags&AccInterface != 0
	skip := uint16(0)
	if isInterface {
		skip = AccAbstract
	}
	b.WriteString(modifiers(c.AccessFlags, classFlags, skip))
	switch {
	case c.AccessFlags&AccAnnotation != 0:
		b.WriteString("@interface ")
	case isInterface:
		b.WriteString("interface ")
	case c.AccessFlags&AccEnum != 0:
		b.WriteString("enum ")
	default:
		b.WriteString("class ")
	}
	b.WriteString(ExternalName(c.Name()))

	ifaces := c.InterfaceNames()
	for i := range ifaces {
		ifaces[i] = ExternalName(ifaces[i])
	}
	if super := c.SuperName(); super != "" && super != "java/lang/Object" && !isInterface {
		b.WriteString(" extends " + ExternalName(super))
	}
	if len(ifaces) > 0 {
		if isInterface {
			b.WriteString(" extends ")
		} else {
			b.WriteString(" implements ")
		}
		b.WriteString(strings.Join(ifaces, ","))
	}
	return b.String()
}

func writePool(b *strings.Builder, pool Pool) {
	b.WriteString("Constant pool:\n")
	width := len(fmt.Sprintf("#%d", len(pool)-1))
	for i := 1; i < len(pool); i++ {
		c := pool[i]
		if c.Tag == 0 {
			continue
		}
		idx := uint16(i)
		ref := fmt.Sprintf("%*s", width+1, fmt.Sprintf("#%d", i))
		ops := pool.Operands(idx)
		switch c.Tag {
		case TagUTF8, TagInteger, TagFloat, TagLong, TagDouble:
			fmt.Fprintf(b, "%s = %-18s %s\n", ref, c.Tag, ops)
		default:
			fmt.Fprintf(b, "%s = %-18s %-14s // %s\n", ref, c.Tag, ops, pool.Describe(idx))
		}
	}
}

func writeField(b *strings.Builder, c *ClassFile, f Member) error {
	typ, err := TypeName(f.Descriptor)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	fmt.Fprintf(b, "  %s%s %s;\n", modifiers(f.AccessFlags, fieldFlags, 0), typ, f.Name)
	fmt.Fprintf(b, "    descriptor: %s\n", f.Descriptor)
	fmt.Fprintf(b, "    flags: %s\n", flagList(f.AccessFlags, fieldFlags))
	if f.ConstValue != 0 {
		fmt.Fprintf(b, "    ConstantValue: %s\n", describeRef(c.Pool, f.ConstValue))
	}
	return nil
}

func writeMethod(b *strings.Builder, c *ClassFile, m Member) error {
	params, ret, err := MethodType(m.Descriptor)
	if err != nil {
		return fmt.Errorf("method %s: %w", m.Name, err)
	}
	if m.AccessFlags&AccVarargs != 0 && len(params) > 0 {
		last := params[len(params)-1]
		params[len(params)-1] = strings.TrimSuffix(last, "[]") + "..."
	}

	skip := uint16(0)
	if c.AccessFlags&AccInterface != 0 {
		skip = AccAbstract | AccPublic
	}
	mods := modifiers(m.AccessFlags, methodFlags, skip)
	switch m.Name {
	case "<clinit>":
		b.WriteString("  static {};\n")
	case "<init>":
		fmt.Fprintf(b, "  %s%s(%s)", mods, ExternalName(c.Name()), strings.Join(params, ", "))
	default:
		fmt.Fprintf(b, "  %s%s %s(%s)", mods, ret, m.Name, strings.Join(params, ", "))
	}
	if m.Name != "<clinit>" {
		if len(m.Exceptions) > 0 {
			ex := make([]string, len(m.Exceptions))
			for i, e := range m.Exceptions {
				ex[i] = ExternalName(e)
			}
			fmt.Fprintf(b, " throws %s", strings.Join(ex, ", "))
		}
		b.WriteString(";\n")
	}
	fmt.Fprintf(b, "    descriptor: %s\n", m.Descriptor)
	fmt.Fprintf(b, "    flags: %s\n", flagList(m.AccessFlags, methodFlags))

	if m.Code == nil {
		return nil
	}
	args := ArgSlots(m.Descriptor)
	if m.AccessFlags&AccStatic == 0 {
		args++
	}
	b.WriteString("    Code:\n")
	fmt.Fprintf(b, "      stack=%d, locals=%d, args_size=%d\n", m.Code.MaxStack, m.Code.MaxLocals, args)

	insns, err := Decode(m.Code.Bytecode, c.Pool)
	if err != nil {
		return fmt.Errorf("method %s: %w", m.Name, err)
	}
	for _, in := range insns {
		line := fmt.Sprintf("%6d: %s", in.PC, in.Mnemonic)
		if in.Args != "" {
			line = fmt.Sprintf("%-19s %s", line, in.Args)
		}
		if in.Comment != "" {
			line = fmt.Sprintf("%-45s// %s", line, in.Comment)
		}
		b.WriteString("    " + strings.TrimRight(line, " ") + "\n")
		for _, arm := range in.Cases {
			fmt.Fprintf(b, "    %20s\n", arm)
		}
		if len(in.Cases) > 0 {
			b.WriteString("              }\n")
		}
	}

	if len(m.Code.Handlers) > 0 {
		b.WriteString("      Exception table:\n")
		b.WriteString("         from    to  target type\n")
		for _, h := range m.Code.Handlers {
			typ := "any"
			if h.CatchType != 0 {
				typ = "Class " + c.Pool.ClassName(h.CatchType)
			}
			fmt.Fprintf(b, "         %5d %5d %5d   %s\n", h.StartPC, h.EndPC, h.HandlerPC, typ)
		}
	}

	if len(m.Code.LineNumber) > 0 {
		pcs := make([]int, 0, len(m.Code.LineNumber))
		for pc := range m.Code.LineNumber {
			pcs = append(pcs, int(pc))
		}
		sort.Ints(pcs)
		b.WriteString("      LineNumberTable:\n")
		for _, pc := range pcs {
			fmt.Fprintf(b, "        line %d: %d\n", m.Code.LineNumber[uint16(pc)], pc)
		}
	}
	return nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
