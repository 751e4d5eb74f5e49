// Package classfiletest writes small but valid class files for tests that
// must not depend on a Java compiler.
package classfiletest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Builder assembles a class file. Constants are interned in insertion order.
type Builder struct {
	pool    bytes.Buffer
	count   uint16
	interns map[string]uint16

	access     uint16
	this       uint16
	super      uint16
	interfaces []uint16
	fields     bytes.Buffer
	nFields    uint16
	methods    bytes.Buffer
	nMethods   uint16
	source     uint16
	major      uint16
}

// Line maps a bytecode offset to a source line.
type Line struct{ PC, Line uint16 }

// New starts a public class named name (internal form, a/b/C) extending
// java/lang/Object, targeting Java 7.
func New(name string) *Builder {
	b := &Builder{count: 1, interns: map[string]uint16{}, access: 0x0021, major: 51}
	b.this = b.Class(name)
	b.super = b.Class("java/lang/Object")
	return b
}

// Access sets the class access flags.
func (b *Builder) Access(flags uint16) *Builder { b.access = flags; return b }

// Major sets the class file major version.
func (b *Builder) Major(v uint16) *Builder { b.major = v; return b }

// Super sets the superclass.
func (b *Builder) Super(name string) *Builder { b.super = b.Class(name); return b }

// Implements adds a direct superinterface.
func (b *Builder) Implements(name string) *Builder {
	b.interfaces = append(b.interfaces, b.Class(name))
	return b
}

// SourceFile sets the SourceFile attribute.
func (b *Builder) SourceFile(name string) *Builder { b.source = b.Utf8(name); return b }

func (b *Builder) intern(key string, slots uint16, write func(w *bytes.Buffer)) uint16 {
	if idx, ok := b.interns[key]; ok {
		return idx
	}
	idx := b.count
	write(&b.pool)
	b.count += slots
	b.interns[key] = idx
	return idx
}

// Utf8 interns an ASCII string.
func (b *Builder) Utf8(s string) uint16 {
	return b.intern("U"+s, 1, func(w *bytes.Buffer) {
		w.WriteByte(1)
		writeU2(w, uint16(len(s)))
		w.WriteString(s)
	})
}

// Class interns a class constant.
func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.intern("C"+name, 1, func(w *bytes.Buffer) {
		w.WriteByte(7)
		writeU2(w, n)
	})
}

// String interns a string constant.
func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.intern("S"+s, 1, func(w *bytes.Buffer) {
		w.WriteByte(8)
		writeU2(w, n)
	})
}

// Integer interns an int constant.
func (b *Builder) Integer(v int32) uint16 {
	return b.intern(fmt.Sprintf("I%d", v), 1, func(w *bytes.Buffer) {
		w.WriteByte(3)
		writeU4(w, uint32(v))
	})
}

// Long interns a long constant, which takes two pool slots.
func (b *Builder) Long(v int64) uint16 {
	return b.intern(fmt.Sprintf("J%d", v), 2, func(w *bytes.Buffer) {
		w.WriteByte(5)
		writeU4(w, uint32(uint64(v)>>32))
		writeU4(w, uint32(v))
	})
}

// NameAndType interns a name-and-type constant.
func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.intern("N"+name+":"+desc, 1, func(w *bytes.Buffer) {
		w.WriteByte(12)
		writeU2(w, n)
		writeU2(w, d)
	})
}

func (b *Builder) ref(tag byte, owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.intern(fmt.Sprintf("R%d%s.%s:%s", tag, owner, name, desc), 1, func(w *bytes.Buffer) {
		w.WriteByte(tag)
		writeU2(w, c)
		writeU2(w, nt)
	})
}

// Fieldref interns a field reference.
func (b *Builder) Fieldref(owner, name, desc string) uint16 { return b.ref(9, owner, name, desc) }

// Methodref interns a method reference.
func (b *Builder) Methodref(owner, name, desc string) uint16 { return b.ref(10, owner, name, desc) }

// Field adds a field. constValue is a pool index or 0.
func (b *Builder) Field(access uint16, name, desc string, constValue uint16) *Builder {
	writeU2(&b.fields, access)
	writeU2(&b.fields, b.Utf8(name))
	writeU2(&b.fields, b.Utf8(desc))
	if constValue == 0 {
		writeU2(&b.fields, 0)
	} else {
		writeU2(&b.fields, 1)
		writeU2(&b.fields, b.Utf8("ConstantValue"))
		writeU4(&b.fields, 2)
		writeU2(&b.fields, constValue)
	}
	b.nFields++
	return b
}

// Method adds a method with a Code attribute. A nil code adds an abstract
// method without one.
func (b *Builder) Method(access uint16, name, desc string, maxStack, maxLocals uint16, code []byte, lines ...Line) *Builder {
	writeU2(&b.methods, access)
	writeU2(&b.methods, b.Utf8(name))
	writeU2(&b.methods, b.Utf8(desc))
	if code == nil {
		writeU2(&b.methods, 0)
		b.nMethods++
		return b
	}

	var attr bytes.Buffer
	writeU2(&attr, maxStack)
	writeU2(&attr, maxLocals)
	writeU4(&attr, uint32(len(code)))
	attr.Write(code)
	writeU2(&attr, 0) // exception table
	if len(lines) == 0 {
		writeU2(&attr, 0)
	} else {
		writeU2(&attr, 1)
		writeU2(&attr, b.Utf8("LineNumberTable"))
		writeU4(&attr, uint32(2+4*len(lines)))
		writeU2(&attr, uint16(len(lines)))
		for _, l := range lines {
			writeU2(&attr, l.PC)
			writeU2(&attr, l.Line)
		}
	}

	writeU2(&b.methods, 1)
	writeU2(&b.methods, b.Utf8("Code"))
	writeU4(&b.methods, uint32(attr.Len()))
	b.methods.Write(attr.Bytes())
	b.nMethods++
	return b
}

// Bytes encodes the class file.
func (b *Builder) Bytes() []byte {
	var attrs bytes.Buffer
	nAttrs := uint16(0)
	if b.source != 0 {
		writeU2(&attrs, b.Utf8("SourceFile"))
		writeU4(&attrs, 2)
		writeU2(&attrs, b.source)
		nAttrs++
	}

	var out bytes.Buffer
	writeU4(&out, 0xCAFEBABE)
	writeU2(&out, 0)
	writeU2(&out, b.major)
	writeU2(&out, b.count)
	out.Write(b.pool.Bytes())
	writeU2(&out, b.access)
	writeU2(&out, b.this)
	writeU2(&out, b.super)
	writeU2(&out, uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		writeU2(&out, i)
	}
	writeU2(&out, b.nFields)
	out.Write(b.fields.Bytes())
	writeU2(&out, b.nMethods)
	out.Write(b.methods.Bytes())
	writeU2(&out, nAttrs)
	out.Write(attrs.Bytes())
	return out.Bytes()
}

// Hello returns the class javac emits for a hello-world class: a default
// constructor and a main method printing a greeting.
func Hello(name string) []byte {
	b := New(name).SourceFile(simpleName(name) + ".java")
	ctor := b.Methodref("java/lang/Object", "<init>", "()V")
	out := b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	msg := b.String("Hello, World!")
	printLn := b.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V")

	b.Method(0x0001, "<init>", "()V", 1, 1, []byte{
		0x2a, // aload_0
		0xb7, byte(ctor >> 8), byte(ctor), // invokespecial
		0xb1, // return
	}, Line{PC: 0, Line: 1})
	b.Method(0x0009, "main", "([Ljava/lang/String;)V", 2, 1, []byte{
		0xb2, byte(out >> 8), byte(out), // getstatic
		0x12, byte(msg), // ldc
		0xb6, byte(printLn >> 8), byte(printLn), // invokevirtual
		0xb1, // return
	}, Line{PC: 0, Line: 4}, Line{PC: 8, Line: 5})
	return b.Bytes()
}

func simpleName(internal string) string {
	for i := len(internal) - 1; i >= 0; i-- {
		if internal[i] == '/' {
			return internal[i+1:]
		}
	}
	return internal
}

func writeU2(w *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.Write(buf[:])
}

func writeU4(w *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}
