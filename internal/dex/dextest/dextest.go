// Package dextest writes minimal, well-formed DEX containers for tests.
package dextest

import (
	"encoding/binary"
	"hash/adler32"
	"strings"
)

const objectDescriptor = "Ljava/lang/Object;"

// Build returns a DEX file whose class table holds the given dotted class
// names in order, each extending java.lang.Object.
func Build(classes ...string) []byte {
	le := binary.LittleEndian

	strs := []string{objectDescriptor}
	for _, c := range classes {
		strs = append(strs, "L"+strings.ReplaceAll(c, ".", "/")+";")
	}
	n := uint32(len(strs))

	stringIDsOff := uint32(0x70)
	typeIDsOff := stringIDsOff + 4*n
	classDefsOff := typeIDsOff + 4*n
	dataOff := classDefsOff + 32*uint32(len(classes))

	var data []byte
	stringOffs := make([]uint32, n)
	for i, s := range strs {
		stringOffs[i] = dataOff + uint32(len(data))
		data = appendULEB128(data, uint32(len(s)))
		data = append(data, s...)
		data = append(data, 0)
	}
	size := dataOff + uint32(len(data))

	buf := make([]byte, size)
	copy(buf, "dex\n035\x00")
	le.PutUint32(buf[32:], size)
	le.PutUint32(buf[36:], 0x70)
	le.PutUint32(buf[40:], 0x12345678)
	le.PutUint32(buf[56:], n)
	le.PutUint32(buf[60:], stringIDsOff)
	le.PutUint32(buf[64:], n)
	le.PutUint32(buf[68:], typeIDsOff)
	le.PutUint32(buf[96:], uint32(len(classes)))
	le.PutUint32(buf[100:], classDefsOff)
	le.PutUint32(buf[104:], uint32(len(data)))
	le.PutUint32(buf[108:], dataOff)

	for i := uint32(0); i < n; i++ {
		le.PutUint32(buf[stringIDsOff+4*i:], stringOffs[i])
		le.PutUint32(buf[typeIDsOff+4*i:], i) // type i -> string i
	}
	for i := range classes {
		item := buf[classDefsOff+32*uint32(i):]
		le.PutUint32(item[0:], uint32(i+1)) // class type
		le.PutUint32(item[4:], 0x0001)      // ACC_PUBLIC
		le.PutUint32(item[8:], 0)           // superclass: Object
		le.PutUint32(item[16:], 0xFFFFFFFF) // no source file
	}
	copy(buf[dataOff:], data)

	le.PutUint32(buf[8:], adler32.Checksum(buf[12:]))
	return buf
}

func appendULEB128(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}
