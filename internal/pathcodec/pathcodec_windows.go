//go:build windows

package pathcodec

import "unicode/utf16"

// ToBytes encodes p as UTF-16 code units and returns them as raw
// little-endian bytes. It never fails. p is decoded rune by rune first, so
// invalid UTF-8 in p (including encoded unpaired surrogates) is stored as
// U+FFFD and does not round-trip.
func ToBytes(p string) ([]byte, error) {
	units := utf16.Encode([]rune(p))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out, nil
}

// FromBytes is the inverse of ToBytes. It fails if b has odd length, since
// that cannot have come from a sequence of 16-bit code units.
func FromBytes(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", &AlignmentError{Len: len(b)}
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}
