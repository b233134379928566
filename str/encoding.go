package str

import (
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Encoding: the tag carried next to every byte buffer
// ---------------------------------------------------------------------------

// Encoding describes how a String's bytes are interpreted.
// Comparison and hashing never consult it; it only matters for
// inspection, validity tracking and concatenation results.
type Encoding uint8

const (
	// UTF8 asserts that the buffer holds valid UTF-8.
	EncodingUTF8 Encoding = iota
	// ASCII asserts that every byte is below 0x80.
	EncodingASCII
	// Binary makes no assertion about the bytes (ASCII-8BIT).
	EncodingBinary
)

// numEncodings is the number of defined encodings.
const numEncodings = 3

// String returns the Ruby-visible encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF-8"
	case EncodingASCII:
		return "US-ASCII"
	case EncodingBinary:
		return "ASCII-8BIT"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// Flag packs the encoding into the low bits of a heap slot's flag word.
func (e Encoding) Flag() uint32 {
	return uint32(e) & EncodingFlagMask
}

// EncodingFlagMask selects the encoding bits of a flag word.
const EncodingFlagMask uint32 = 0x3

// EncodingFromFlag recovers an encoding packed with Flag.
// Returns false if the flag word holds an unknown encoding.
func EncodingFromFlag(flags uint32) (Encoding, bool) {
	e := Encoding(flags & EncodingFlagMask)
	if e >= numEncodings {
		return EncodingBinary, false
	}
	return e, true
}

// Valid reports whether b satisfies the encoding's assertion.
func (e Encoding) Valid(b []byte) bool {
	switch e {
	case EncodingUTF8:
		return utf8.Valid(b)
	case EncodingASCII:
		for _, c := range b {
			if c >= utf8.RuneSelf {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// lastRuneStart returns the index of the start of the final rune in b.
// If b ends in a truncated sequence the returned index points at the
// truncated bytes so that validating b[i:] fails.
func lastRuneStart(b []byte) int {
	i := len(b) - 1
	for i > 0 && len(b)-i < utf8.UTFMax && !utf8.RuneStart(b[i]) {
		i--
	}
	if i < 0 {
		return 0
	}
	return i
}
