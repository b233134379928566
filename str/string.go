package str

import (
	"fmt"
	"math"
	"runtime/debug"
	"unsafe"
)

// ---------------------------------------------------------------------------
// String: growable byte buffer plus encoding tag
// ---------------------------------------------------------------------------

// String is a mutable, encoding-aware byte string.
//
// The zero value is an empty UTF-8 string with no capacity.
type String struct {
	buf []byte
	enc Encoding
}

// MaxCapacity is the largest buffer this package will attempt to allocate.
// Requests above it fail with a capacity overflow instead of reaching the
// Go allocator.
const MaxCapacity = min(1<<32, math.MaxInt)

// CapacityLimit is the default ceiling for a single buffer: MaxCapacity,
// or half the runtime's soft memory limit (GOMEMLIMIT) when that is lower.
func CapacityLimit() int {
	limit := debug.SetMemoryLimit(-1) / 2
	if limit < MaxCapacity {
		return int(limit)
	}
	return MaxCapacity
}

// WithCapacity returns an empty UTF-8 string with room for n bytes.
// Panics if n is negative or above MaxCapacity; use TryWithCapacity for
// sizes that come from outside the process.
func WithCapacity(n int) *String {
	s, err := TryWithCapacity(n, EncodingUTF8)
	if err != nil {
		panic(err)
	}
	return s
}

// TryWithCapacity returns an empty string with room for n bytes, or a
// *TryReserveError if the buffer cannot be allocated.
func TryWithCapacity(n int, enc Encoding) (*String, error) {
	buf, err := tryAlloc(0, n)
	if err != nil {
		return nil, err
	}
	return &String{buf: buf, enc: enc}, nil
}

// WithCapacityAndEncoding returns an empty string with room for n bytes
// tagged with enc.
func WithCapacityAndEncoding(n int, enc Encoding) *String {
	s, err := TryWithCapacity(n, enc)
	if err != nil {
		panic(err)
	}
	return s
}

// UTF8 takes ownership of b. The result is tagged UTF-8 if b is valid
// UTF-8 and Binary otherwise.
func UTF8(b []byte) *String {
	enc := EncodingUTF8
	if !EncodingUTF8.Valid(b) {
		enc = EncodingBinary
	}
	return &String{buf: b, enc: enc}
}

// FromString copies a Go string into a new String (see UTF8).
func FromString(s string) *String {
	return UTF8([]byte(s))
}

// WithBytesAndEncoding takes ownership of b and tags it with enc without
// validation. Callers use it to propagate an existing string's encoding.
func WithBytesAndEncoding(b []byte, enc Encoding) *String {
	return &String{buf: b, enc: enc}
}

// Binary takes ownership of b and tags it as binary.
func Binary(b []byte) *String {
	return &String{buf: b, enc: EncodingBinary}
}

// Len returns the length in bytes.
func (s *String) Len() int { return len(s.buf) }

// Cap returns the capacity of the underlying buffer.
func (s *String) Cap() int { return cap(s.buf) }

// IsEmpty reports whether the string has no bytes.
func (s *String) IsEmpty() bool { return len(s.buf) == 0 }

// Bytes returns the string's bytes. The slice aliases the buffer and is
// only valid until the next mutation.
func (s *String) Bytes() []byte { return s.buf }

// Encoding returns the encoding tag.
func (s *String) Encoding() Encoding { return s.enc }

// SetEncoding retags the string without touching its bytes.
func (s *String) SetEncoding(enc Encoding) { s.enc = enc }

// Last returns the final byte, or false if the string is empty.
func (s *String) Last() (byte, bool) {
	if len(s.buf) == 0 {
		return 0, false
	}
	return s.buf[len(s.buf)-1], true
}

// GoString returns a copy of the bytes as a Go string.
func (s *String) GoString() string { return string(s.buf) }

// Clone returns a deep copy with the same encoding. Capacity is not
// preserved, only content.
func (s *String) Clone() *String {
	buf := make([]byte, len(s.buf))
	copy(buf, s.buf)
	return &String{buf: buf, enc: s.enc}
}

// ---------------------------------------------------------------------------
// RawParts: ownership transfer across the heap boundary
// ---------------------------------------------------------------------------

// RawParts describes a byte buffer in flight between native and VM
// ownership. Exactly one side owns the buffer at any time; handing
// RawParts over is a move.
type RawParts struct {
	Ptr      *byte
	Length   int
	Capacity int
}

// IsEmpty reports whether the parts describe no allocation.
func (p RawParts) IsEmpty() bool {
	return p.Ptr == nil || p.Capacity == 0
}

// Take moves the buffer out of s and leaves s empty. The encoding tag is
// left in place so the caller can read it after the move.
func (s *String) Take() RawParts {
	parts := s.Parts()
	s.buf = nil
	return parts
}

// Parts describes the buffer without moving it. The returned parts alias
// s; they are for inspection only.
func (s *String) Parts() RawParts {
	if cap(s.buf) == 0 {
		return RawParts{}
	}
	return RawParts{
		Ptr:      unsafe.SliceData(s.buf),
		Length:   len(s.buf),
		Capacity: cap(s.buf),
	}
}

// FromRawParts rebuilds a String over a buffer previously produced by
// Take. Ownership of the buffer moves into the returned String.
//
// Panics if the parts violate length <= capacity.
func FromRawParts(parts RawParts, enc Encoding) *String {
	if parts.Length < 0 || parts.Length > parts.Capacity {
		panic(fmt.Sprintf("str.FromRawParts: length %d exceeds capacity %d", parts.Length, parts.Capacity))
	}
	if parts.IsEmpty() {
		return &String{enc: enc}
	}
	buf := unsafe.Slice(parts.Ptr, parts.Capacity)[:parts.Length]
	return &String{buf: buf, enc: enc}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// ReserveErrorKind distinguishes why a reservation failed.
type ReserveErrorKind int

const (
	// CapacityOverflow means the requested size cannot be represented or
	// exceeds the configured limit.
	CapacityOverflow ReserveErrorKind = iota
	// AllocError means the allocator refused the request.
	AllocError
)

// TryReserveError reports a failed capacity reservation.
type TryReserveError struct {
	Kind      ReserveErrorKind
	Requested uint64
}

func (e *TryReserveError) Error() string {
	if e.Kind == CapacityOverflow {
		return fmt.Sprintf("capacity overflow: requested %d bytes", e.Requested)
	}
	return fmt.Sprintf("memory allocation of %d bytes failed", e.Requested)
}

// tryAlloc makes a byte slice. Sizes above MaxCapacity fail with
// CapacityOverflow and sizes makeslice rejects fail with AllocError.
// Exhausting physical memory is fatal in Go and cannot be caught here;
// the capacity ceilings are what keep requests within reach.
func tryAlloc(length, capacity int) (buf []byte, err error) {
	if capacity < 0 || capacity > MaxCapacity {
		return nil, &TryReserveError{Kind: CapacityOverflow, Requested: uint64(capacity)}
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = &TryReserveError{Kind: AllocError, Requested: uint64(capacity)}
		}
	}()
	return make([]byte, length, capacity), nil
}
