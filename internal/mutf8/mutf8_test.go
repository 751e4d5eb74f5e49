package mutf8

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "ascii", in: []byte("abc"), want: "abc"},
		{name: "nul", in: []byte{'a', 0xC0, 0x80, 'b'}, want: "a\x00b"},
		{name: "two byte", in: []byte{0xC3, 0xA9}, want: "é"},
		// U+1F600 as a surrogate pair, each half 3-byte encoded.
		{name: "surrogates", in: []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}, want: "\U0001F600"},
		{name: "truncated", in: []byte{'a', 0xC3}, want: "a�"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.in))
		})
	}
}
