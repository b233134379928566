// Package str implements the native byte string that backs the VM's
// String class.
//
// A String owns a growable byte buffer and an encoding tag. Every
// algorithm in this package is byte-indexed and pointer-free except for
// RawParts, the (pointer, length, capacity) triple used to move buffer
// ownership into and out of a VM heap slot.
//
// This package contains:
//   - Construction and RawParts ownership transfer
//   - Offset normalization, search and substring extraction
//   - Capacity management (fallible reservation, truncation, resize)
//   - Concatenation, comparison and keyed hashing
//   - NUL-terminated views for C-string interop
//   - Integer and float coercion, radix rendering
package str
