package str

import "bytes"

// NotFound is returned by Index when the needle does not occur.
const NotFound = -1

// NormalizeOffset resolves a signed byte offset against a length.
// Non-negative offsets are used as-is and must not exceed length.
// A negative offset -k means length-k and must not underflow.
func NormalizeOffset(offset, length int) (int, bool) {
	if offset >= 0 {
		if offset > length {
			return 0, false
		}
		return offset, true
	}
	// Compare before negating so math.MinInt cannot overflow.
	if offset < -length {
		return 0, false
	}
	return length + offset, true
}

// Index returns the byte position of the first occurrence of needle at or
// after offset, or NotFound. An empty needle matches at the offset itself.
func (s *String) Index(needle []byte, offset int) int {
	start, ok := NormalizeOffset(offset, len(s.buf))
	if !ok {
		return NotFound
	}
	if len(needle) == 0 {
		return start
	}
	pos := bytes.Index(s.buf[start:], needle)
	if pos < 0 {
		return NotFound
	}
	return start + pos
}

// Contains reports whether needle occurs anywhere in s.
func (s *String) Contains(needle []byte) bool {
	return bytes.Contains(s.buf, needle)
}

// Substr returns up to length bytes starting at begin as a new String with
// the receiver's encoding, downgraded to Binary if the cut splits a
// character. It returns false when length is negative or begin falls
// outside the string; begin == Len() yields an empty string.
func (s *String) Substr(begin, length int) (*String, bool) {
	if length < 0 {
		return nil, false
	}
	start, ok := NormalizeOffset(begin, len(s.buf))
	if !ok {
		return nil, false
	}
	end := start + min(length, len(s.buf)-start)
	buf := make([]byte, end-start)
	copy(buf, s.buf[start:end])
	enc := s.enc
	if enc != EncodingBinary && !enc.Valid(buf) {
		enc = EncodingBinary
	}
	return WithBytesAndEncoding(buf, enc), true
}

// Get returns the byte at index, with negative indexes counting from the
// end. Returns false when the index is out of range.
func (s *String) Get(index int) (byte, bool) {
	i, ok := NormalizeOffset(index, len(s.buf))
	if !ok || i == len(s.buf) {
		return 0, false
	}
	return s.buf[i], true
}
