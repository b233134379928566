// Package vm implements the host side of the native boundary: the
// interpreter state that owns object identity and memory reclamation.
//
// This package contains:
//   - NaN-boxed value representation with typed heap references
//   - Slot heap with classes, type tags, GC arena and roots
//   - Synchronous mark/sweep collector with per-type finalizers
//   - Guards for exclusive interpreter borrows
//   - Exception raising and Protect
//   - CBOR heap snapshots
package vm
