// Package convert moves native values into and out of interpreter heap
// slots.
//
// A native value is boxed once with AllocValue, borrowed with
// UnboxFromValue, and written back with BoxIntoValue after a mutation.
// While a value is checked out for mutation its slot is detached and the
// heap refuses to allocate or collect, so a mutation can never observe a
// collection.
package convert

import (
	"errors"
	"fmt"

	"github.com/chazu/ferry/vm"
)

var (
	// ErrTypeMismatch reports a value whose type tag or data type does not
	// match the boxer.
	ErrTypeMismatch = errors.New("convert: type mismatch")

	// ErrDetached reports an unbox of a slot that is already checked out.
	ErrDetached = errors.New("convert: value is already unboxed for mutation")
)

// Boxer is the boxing contract implemented once per native type.
type Boxer[T any] interface {
	// AllocValue moves native into a fresh slot tagged with the type's
	// default class. Fails only when the heap is out of memory.
	AllocValue(native T, g vm.HeapGuard) (vm.Value, error)

	// UnboxFromValue borrows the native value held by v without taking
	// ownership.
	UnboxFromValue(v vm.Value, g vm.HeapGuard) (*Unboxed[T], error)

	// BoxIntoValue writes native back into the slot referenced by into,
	// keeping its handle and class, and returns into.
	BoxIntoValue(native T, into vm.Value, g vm.HeapGuard) (vm.Value, error)
}

// Unboxed is a native value borrowed from a heap slot.
//
// Borrow gives read access and leaves the slot attached. AsInnerMut and
// Take detach the slot; the caller must hand the value back through
// BoxIntoValue before the next allocation.
type Unboxed[T any] struct {
	value  T
	slot   vm.RObject
	heap   *vm.Heap
	detach func()
	taken  bool
}

// Borrow returns the native value for reading. It must not be mutated.
func (u *Unboxed[T]) Borrow() T { return u.value }

// AsInnerMut detaches the slot and returns the value for mutation.
func (u *Unboxed[T]) AsInnerMut() T {
	u.markDetached()
	return u.value
}

// Take detaches the slot and moves the value out, leaving the wrapper
// empty.
func (u *Unboxed[T]) Take() T {
	u.markDetached()
	v := u.value
	var zero T
	u.value = zero
	u.taken = true
	return v
}

// Taken reports whether Take has moved the value out.
func (u *Unboxed[T]) Taken() bool { return u.taken }

// Slot returns the heap slot the value was borrowed from.
func (u *Unboxed[T]) Slot() vm.RObject { return u.slot }

func (u *Unboxed[T]) markDetached() {
	if u.slot.Basic().Detached() {
		return
	}
	if u.detach != nil {
		u.detach()
	}
	u.heap.Detach(u.slot)
}

// lookup resolves v to a slot of the wanted tag.
func lookup(v vm.Value, want vm.TType, g vm.HeapGuard) (vm.RObject, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, want, v.Type())
	}
	obj, err := g.Heap().Lookup(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}
	if tt := obj.Basic().TT; tt != want {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, want, tt)
	}
	return obj, nil
}
