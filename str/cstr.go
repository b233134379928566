package str

import "bytes"

// EnsureNul makes the buffer end in a NUL byte so its data pointer can be
// handed out as a C string. If the last byte is already NUL nothing
// changes; otherwise exactly one NUL is appended. Reports whether the
// buffer was mutated.
func (s *String) EnsureNul() bool {
	if last, ok := s.Last(); ok && last == 0 {
		return false
	}
	s.PushByte(0)
	return true
}

// CStrBytes returns the bytes up to (not including) the first NUL, or all
// bytes if there is none.
func CStrBytes(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

// HasInteriorNul reports whether the string contains a NUL byte anywhere.
func (s *String) HasInteriorNul() bool {
	return bytes.IndexByte(s.buf, 0) >= 0
}
