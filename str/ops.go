package str

import (
	"bytes"
	"math"
)

// ---------------------------------------------------------------------------
// Capacity management
// ---------------------------------------------------------------------------

// TryReserve ensures room for at least additional more bytes.
func (s *String) TryReserve(additional int) error {
	return s.TryReserveLimit(additional, CapacityLimit())
}

// TryReserveLimit is TryReserve with an explicit capacity ceiling, used by
// interpreters that cap string sizes below CapacityLimit.
func (s *String) TryReserveLimit(additional, limit int) error {
	if additional < 0 {
		return &TryReserveError{Kind: CapacityOverflow, Requested: uint64(additional)}
	}
	if additional > math.MaxInt-len(s.buf) {
		return &TryReserveError{Kind: CapacityOverflow, Requested: math.MaxUint64}
	}
	need := len(s.buf) + additional
	if need <= cap(s.buf) {
		return nil
	}
	if need > limit {
		return &TryReserveError{Kind: CapacityOverflow, Requested: uint64(need)}
	}
	// Amortized growth, clipped to the ceiling.
	newCap := need
	if doubled := cap(s.buf) * 2; doubled > newCap && doubled <= limit {
		newCap = doubled
	}
	buf, err := tryAlloc(len(s.buf), newCap)
	if err != nil {
		return err
	}
	copy(buf, s.buf)
	s.buf = buf
	return nil
}

// Truncate shortens the string to n bytes without reallocating.
// Does nothing if n >= Len().
func (s *String) Truncate(n int) {
	if n < 0 || n >= len(s.buf) {
		return
	}
	s.buf = s.buf[:n]
	if s.enc != EncodingBinary && !s.enc.Valid(s.buf[lastRuneStart(s.buf):]) {
		s.enc = EncodingBinary
	}
}

// Resize sets the length to n. Shrinking truncates in place and keeps the
// capacity; growing reserves space and fills the new bytes with zeros.
func (s *String) Resize(n int) error {
	return s.ResizeLimit(n, CapacityLimit())
}

// ResizeLimit is Resize with an explicit capacity ceiling.
func (s *String) ResizeLimit(n, limit int) error {
	switch {
	case n < len(s.buf):
		s.Truncate(n)
	case n > len(s.buf):
		old := len(s.buf)
		if err := s.TryReserveLimit(n-old, limit); err != nil {
			return err
		}
		s.buf = s.buf[:n]
		clear(s.buf[old:])
	}
	return nil
}

// ---------------------------------------------------------------------------
// Appending
// ---------------------------------------------------------------------------

// Extend appends b in place. Tags that b would invalidate are downgraded
// to Binary.
func (s *String) Extend(b []byte) {
	s.buf = append(s.buf, b...)
	s.revalidate(b)
}

// TryExtend is Extend with a fallible reservation under limit.
func (s *String) TryExtend(b []byte, limit int) error {
	if err := s.TryReserveLimit(len(b), limit); err != nil {
		return err
	}
	s.Extend(b)
	return nil
}

// PushByte appends a single byte in place.
func (s *String) PushByte(c byte) {
	s.buf = append(s.buf, c)
	s.revalidate(s.buf[len(s.buf)-1:])
}

// revalidate downgrades the encoding tag if appended broke it. The prefix
// was valid before the append, so only the appended bytes need checking.
func (s *String) revalidate(appended []byte) {
	if s.enc != EncodingBinary && !s.enc.Valid(appended) {
		s.enc = EncodingBinary
	}
}

// Concat returns a new string holding a followed by b. The result takes
// a's encoding whatever b's is; Ruby's String#+ behaves the same way.
func Concat(a, b *String) *String {
	buf := make([]byte, 0, len(a.buf)+len(b.buf))
	buf = append(buf, a.buf...)
	buf = append(buf, b.buf...)
	return WithBytesAndEncoding(buf, a.enc)
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// Cmp orders a and b lexicographically by bytes: -1, 0 or +1.
// Encodings are ignored.
func Cmp(a, b *String) int {
	return bytes.Compare(a.buf, b.buf)
}

// Equal reports whether a and b hold the same bytes.
// Encodings are ignored.
func Equal(a, b *String) bool {
	return bytes.Equal(a.buf, b.buf)
}
