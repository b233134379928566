package ffi

import (
	"unsafe"

	"fortio.org/safecast"

	"github.com/chazu/ferry/vm"
)

// cstrLen counts the bytes before the NUL terminator at p.
func cstrLen(p *byte) int {
	if p == nil {
		return 0
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return n
}

// cstrBytes views the NUL-terminated memory at p, terminator excluded.
func cstrBytes(p *byte) []byte {
	n := cstrLen(p)
	if n == 0 {
		return nil
	}
	return unsafe.Slice(p, n)
}

// ptrBytes views length bytes at p. A nil pointer or non-positive length
// is an empty view.
func ptrBytes(p *byte, length int) []byte {
	if p == nil || length <= 0 {
		return nil
	}
	return unsafe.Slice(p, length)
}

// toInt narrows an mrb_int argument.
func toInt(n vm.Int) (int, bool) {
	i, err := safecast.Conv[int](n)
	return i, err == nil
}

// dataPtr returns the address of the first byte of b, or nil.
func dataPtr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.SliceData(b)
}
