// Package classfile parses JVM class files and renders a javap-style
// bytecode listing of them.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

const magic = 0xCAFEBABE

var (
	ErrBadMagic  = errors.New("classfile: bad magic")
	ErrTruncated = errors.New("classfile: truncated")
)

// Access flags shared by classes, fields and methods. Some bits mean
// different things depending on where they appear.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020 // class
	AccSynchronized = 0x0020 // method
	AccVolatile     = 0x0040 // field
	AccBridge       = 0x0040 // method
	AccTransient    = 0x0080 // field
	AccVarargs      = 0x0080 // method
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// Attribute is an attribute whose body was not decoded.
type Attribute struct {
	Name string
	Data []byte
}

// ExceptionHandler is one row of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC, EndPC, HandlerPC uint16
	CatchType                 uint16 // constant pool index, 0 for any
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytecode   []byte
	Handlers   []ExceptionHandler
	LineNumber map[uint16]uint16 // pc -> source line
	Attributes []Attribute
}

// Member is a field or method.
type Member struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Code        *Code    // methods only, nil for abstract and native
	Exceptions  []string // declared throws, internal names
	ConstValue  uint16   // ConstantValue index for fields, 0 if absent
	Attributes  []Attribute
}

// ClassFile is a parsed class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         Pool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []Member
	Methods      []Member
	SourceFile   string
	Attributes   []Attribute
}

// Name returns the internal name of the class (a/b/C).
func (c *ClassFile) Name() string { return c.Pool.ClassName(c.ThisClass) }

// SuperName returns the internal name of the superclass, "" for
// java/lang/Object.
func (c *ClassFile) SuperName() string {
	if c.SuperClass == 0 {
		return ""
	}
	return c.Pool.ClassName(c.SuperClass)
}

// InterfaceNames returns the internal names of the direct superinterfaces.
func (c *ClassFile) InterfaceNames() []string {
	out := make([]string, len(c.Interfaces))
	for i, idx := range c.Interfaces {
		out[i] = c.Pool.ClassName(idx)
	}
	return out
}

// Open reads and parses the class file at path.
func Open(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{b: data}
	if r.u4() != magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrBadMagic
	}

	c := &ClassFile{
		MinorVersion: r.u2(),
		MajorVersion: r.u2(),
	}
	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	c.AccessFlags = r.u2()
	c.ThisClass = r.u2()
	c.SuperClass = r.u2()
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.Interfaces = append(c.Interfaces, r.u2())
	}
	if c.Fields, err = readMembers(r, pool); err != nil {
		return nil, fmt.Errorf("classfile: fields: %w", err)
	}
	if c.Methods, err = readMembers(r, pool); err != nil {
		return nil, fmt.Errorf("classfile: methods: %w", err)
	}

	attrs, err := readAttributes(r, pool)
	if err != nil {
		return nil, fmt.Errorf("classfile: attributes: %w", err)
	}
	for _, a := range attrs {
		if a.Name == "SourceFile" && len(a.Data) == 2 {
			c.SourceFile = pool.UTF8(binary.BigEndian.Uint16(a.Data))
			continue
		}
		c.Attributes = append(c.Attributes, a)
	}
	if r.err != nil {
		return nil, r.err
	}
	if c.Pool.Tag(c.ThisClass) != TagClass {
		return nil, fmt.Errorf("classfile: this_class #%d is not a class constant", c.ThisClass)
	}
	return c, nil
}

func readMembers(r *reader, pool Pool) ([]Member, error) {
	n := int(r.u2())
	members := make([]Member, 0, n)
	for i := 0; i < n; i++ {
		m := Member{
			AccessFlags: r.u2(),
			Name:        pool.UTF8(r.u2()),
			Descriptor:  pool.UTF8(r.u2()),
		}
		attrs, err := readAttributes(r, pool)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name, err)
		}
		for _, a := range attrs {
			switch a.Name {
			case "Code":
				code, err := parseCode(a.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("%s: Code: %w", m.Name, err)
				}
				m.Code = code
			case "Exceptions":
				ar := &reader{b: a.Data}
				for k := int(ar.u2()); k > 0 && ar.err == nil; k-- {
					m.Exceptions = append(m.Exceptions, pool.ClassName(ar.u2()))
				}
			case "ConstantValue":
				if len(a.Data) == 2 {
					m.ConstValue = binary.BigEndian.Uint16(a.Data)
				}
			default:
				m.Attributes = append(m.Attributes, a)
			}
		}
		members = append(members, m)
	}
	return members, r.err
}

func readAttributes(r *reader, pool Pool) ([]Attribute, error) {
	n := int(r.u2())
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := pool.UTF8(r.u2())
		length := r.u4()
		attrs = append(attrs, Attribute{Name: name, Data: r.bytes(int(length))})
	}
	return attrs, r.err
}

func parseCode(data []byte, pool Pool) (*Code, error) {
	r := &reader{b: data}
	c := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	c.Bytecode = r.bytes(int(r.u4()))
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		c.Handlers = append(c.Handlers, ExceptionHandler{
			StartPC:   r.u2(),
			EndPC:     r.u2(),
			HandlerPC: r.u2(),
			CatchType: r.u2(),
		})
	}
	attrs, err := readAttributes(r, pool)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if a.Name != "LineNumberTable" {
			c.Attributes = append(c.Attributes, a)
			continue
		}
		ar := &reader{b: a.Data}
		n := int(ar.u2())
		if c.LineNumber == nil {
			c.LineNumber = make(map[uint16]uint16, n)
		}
		for ; n > 0 && ar.err == nil; n-- {
			pc := ar.u2()
			c.LineNumber[pc] = ar.u2()
		}
	}
	return c, r.err
}

// reader is a big-endian cursor with a sticky error.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w at offset %d (need %d bytes, have %d)", ErrTruncated, r.off, n, len(r.b)-r.off)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) u8() uint64 {
	hi := uint64(r.u4())
	return hi<<32 | uint64(r.u4())
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

func float32From(bits uint32) float32 { return math.Float32frombits(bits) }
func float64From(bits uint64) float64 { return math.Float64frombits(bits) }
