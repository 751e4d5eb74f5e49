// Package dex reads the class table of a DEX container and converts type
// descriptors into dotted Java class names.
package dex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"
	"os"
	"strings"

	"github.com/dusk-indust/jide/internal/mutf8"
)

const (
	headerSize    = 0x70
	endianConst   = 0x12345678
	classDefSize  = 32
	noIndex       = 0xFFFFFFFF
	checksumStart = 12
)

var (
	ErrBadMagic    = errors.New("dex: bad magic")
	ErrBadChecksum = errors.New("dex: checksum mismatch")
	ErrTruncated   = errors.New("dex: truncated")
)

// supportedVersions are the container versions readable at API 26 and later.
var supportedVersions = map[string]bool{"035": true, "037": true, "038": true, "039": true}

// ClassDef is one entry of the class table.
type ClassDef struct {
	Descriptor  string // La/B;
	Name        string // a.B
	Super       string // dotted superclass name, "" for java.lang.Object's parent
	SourceFile  string
	AccessFlags uint32
}

// File is a parsed DEX container. Only the tables needed to enumerate
// classes are decoded.
type File struct {
	Version  string
	Checksum uint32
	Size     uint32
	Defs     []ClassDef

	data    []byte
	strings []uint32 // string_data_off per string id
	types   []uint32 // descriptor string index per type id
}

// Open reads and parses the DEX file at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates the header (magic, version, endian tag, checksum, table
// bounds) and decodes the class table.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(data), headerSize)
	}
	if !bytes.Equal(data[0:4], []byte("dex\n")) || data[7] != 0 {
		return nil, ErrBadMagic
	}
	version := string(data[4:7])
	if !supportedVersions[version] {
		return nil, fmt.Errorf("dex: unsupported version %q", version)
	}

	le := binary.LittleEndian
	if tag := le.Uint32(data[40:]); tag != endianConst {
		return nil, fmt.Errorf("dex: unsupported endian tag %#x", tag)
	}
	if hs := le.Uint32(data[36:]); hs != headerSize {
		return nil, fmt.Errorf("dex: unexpected header size %#x", hs)
	}

	f := &File{
		Version:  version,
		Checksum: le.Uint32(data[8:]),
		Size:     le.Uint32(data[32:]),
		data:     data,
	}
	if int(f.Size) != len(data) {
		return nil, fmt.Errorf("%w: header says %d bytes, have %d", ErrTruncated, f.Size, len(data))
	}
	if sum := adler32.Checksum(data[checksumStart:]); sum != f.Checksum {
		return nil, fmt.Errorf("%w: header %#08x, computed %#08x", ErrBadChecksum, f.Checksum, sum)
	}

	var err error
	if f.strings, err = f.table(56, 4); err != nil {
		return nil, fmt.Errorf("dex: string_ids: %w", err)
	}
	if f.types, err = f.table(64, 4); err != nil {
		return nil, fmt.Errorf("dex: type_ids: %w", err)
	}
	if err := f.readClassDefs(); err != nil {
		return nil, err
	}
	return f, nil
}

// table reads the size/offset pair at hdr and returns the first uint32 of
// every itemSize-byte item.
func (f *File) table(hdr int, itemSize int) ([]uint32, error) {
	le := binary.LittleEndian
	size := le.Uint32(f.data[hdr:])
	off := le.Uint32(f.data[hdr+4:])
	if size == 0 {
		return nil, nil
	}
	end := uint64(off) + uint64(size)*uint64(itemSize)
	if end > uint64(len(f.data)) {
		return nil, fmt.Errorf("%w: %d items at %#x", ErrTruncated, size, off)
	}
	out := make([]uint32, size)
	for i := range out {
		out[i] = le.Uint32(f.data[int(off)+i*itemSize:])
	}
	return out, nil
}

func (f *File) readClassDefs() error {
	le := binary.LittleEndian
	size := le.Uint32(f.data[96:])
	off := le.Uint32(f.data[100:])
	if uint64(off)+uint64(size)*classDefSize > uint64(len(f.data)) {
		return fmt.Errorf("dex: class_defs: %w: %d items at %#x", ErrTruncated, size, off)
	}

	f.Defs = make([]ClassDef, 0, size)
	for i := uint32(0); i < size; i++ {
		item := f.data[int(off)+int(i)*classDefSize:]
		desc, err := f.typeDescriptor(le.Uint32(item[0:]))
		if err != nil {
			return fmt.Errorf("dex: class_def %d: %w", i, err)
		}
		def := ClassDef{
			Descriptor:  desc,
			Name:        DescriptorToClassName(desc),
			AccessFlags: le.Uint32(item[4:]),
		}
		if superIdx := le.Uint32(item[8:]); superIdx != noIndex {
			super, err := f.typeDescriptor(superIdx)
			if err != nil {
				return fmt.Errorf("dex: class_def %d superclass: %w", i, err)
			}
			def.Super = DescriptorToClassName(super)
		}
		if srcIdx := le.Uint32(item[16:]); srcIdx != noIndex {
			src, err := f.String(srcIdx)
			if err != nil {
				return fmt.Errorf("dex: class_def %d source file: %w", i, err)
			}
			def.SourceFile = src
		}
		f.Defs = append(f.Defs, def)
	}
	return nil
}

func (f *File) typeDescriptor(idx uint32) (string, error) {
	if int(idx) >= len(f.types) {
		return "", fmt.Errorf("type index %d out of range (%d types)", idx, len(f.types))
	}
	return f.String(f.types[idx])
}

// String returns the string with the given id.
func (f *File) String(idx uint32) (string, error) {
	if int(idx) >= len(f.strings) {
		return "", fmt.Errorf("string index %d out of range (%d strings)", idx, len(f.strings))
	}
	off := int(f.strings[idx])
	if off >= len(f.data) {
		return "", fmt.Errorf("%w: string data at %#x", ErrTruncated, off)
	}
	// utf16_size prefix; the decoded length is recomputed from the bytes.
	_, n := uleb128(f.data[off:])
	if n == 0 {
		return "", fmt.Errorf("%w: string length at %#x", ErrTruncated, off)
	}
	start := off + n
	end := bytes.IndexByte(f.data[start:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at %#x", ErrTruncated, off)
	}
	return mutf8.Decode(f.data[start : start+end]), nil
}

// Classes returns the dotted names of every class in class-table order.
func (f *File) Classes() []string {
	names := make([]string, len(f.Defs))
	for i, d := range f.Defs {
		names[i] = d.Name
	}
	return names
}

// DescriptorToClassName converts La/b/C$D; to a.b.C$D. Non-class
// descriptors are returned unchanged.
func DescriptorToClassName(desc string) string {
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return desc
	}
	return strings.ReplaceAll(desc[1:len(desc)-1], "/", ".")
}

// ClassNameToDescriptor converts a.b.C to La/b/C;.
func ClassNameToDescriptor(name string) string {
	return "L" + strings.ReplaceAll(name, ".", "/") + ";"
}

func uleb128(b []byte) (uint32, int) {
	var v uint32
	for i := 0; i < 5 && i < len(b); i++ {
		v |= uint32(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}
