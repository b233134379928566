package convert

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/chazu/ferry/str"
	"github.com/chazu/ferry/vm"
)

// ---------------------------------------------------------------------------
// String boxing
// ---------------------------------------------------------------------------

type stringBoxer struct{}

// String boxes *str.String values into TTString slots. The buffer's raw
// parts live in the slot; the encoding is packed into the slot's flags.
var String Boxer[*str.String] = stringBoxer{}

func (stringBoxer) AllocValue(s *str.String, g vm.HeapGuard) (vm.Value, error) {
	return AllocStringWithClass(s, g.Interp().StringClass, g)
}

// AllocStringWithClass boxes s into a new slot of class c. Duplication
// uses it to keep a receiver's subclass. On error s is left untouched.
func AllocStringWithClass(s *str.String, c *vm.Class, g vm.HeapGuard) (vm.Value, error) {
	r, v, err := g.Heap().NewString(c)
	if err != nil {
		return vm.Nil, err
	}
	install(g.Heap(), r, s)
	return v, nil
}

func (stringBoxer) UnboxFromValue(v vm.Value, g vm.HeapGuard) (*Unboxed[*str.String], error) {
	obj, err := lookup(v, vm.TTString, g)
	if err != nil {
		return nil, err
	}
	r, ok := obj.(*vm.RString)
	if !ok {
		return nil, fmt.Errorf("%w: slot %d is not a string", ErrTypeMismatch, v.Handle())
	}
	if r.Detached() {
		return nil, fmt.Errorf("%w: slot %d", ErrDetached, v.Handle())
	}
	s, err := view(r)
	if err != nil {
		return nil, err
	}
	heap := g.Heap()
	return &Unboxed[*str.String]{
		value: s,
		slot:  r,
		heap:  heap,
		// While detached the slot holds no buffer; the native value owns it.
		detach: func() { heap.SetStringParts(r, nil, 0, 0) },
	}, nil
}

func (stringBoxer) BoxIntoValue(s *str.String, into vm.Value, g vm.HeapGuard) (vm.Value, error) {
	obj, err := lookup(into, vm.TTString, g)
	if err != nil {
		return vm.Nil, err
	}
	r, ok := obj.(*vm.RString)
	if !ok {
		return vm.Nil, fmt.Errorf("%w: slot %d is not a string", ErrTypeMismatch, into.Handle())
	}
	install(g.Heap(), r, s)
	g.Heap().Reattach(r)
	return into, nil
}

// install moves s's buffer into r and records its encoding.
func install(h *vm.Heap, r *vm.RString, s *str.String) {
	enc := s.Encoding()
	parts := s.Take()
	h.SetStringParts(r, parts.Ptr, int64(parts.Length), int64(parts.Capacity))
	r.Flags = r.Flags&^str.EncodingFlagMask | enc.Flag()
}

// view reconstructs a String over r's buffer without taking ownership.
func view(r *vm.RString) (*str.String, error) {
	length, err := safecast.Conv[int](r.Len)
	if err != nil {
		return nil, fmt.Errorf("convert: string length: %w", err)
	}
	capacity, err := safecast.Conv[int](r.Capa)
	if err != nil {
		return nil, fmt.Errorf("convert: string capacity: %w", err)
	}
	enc, ok := str.EncodingFromFlag(r.Flags)
	if !ok {
		enc = str.EncodingBinary
	}
	return str.FromRawParts(str.RawParts{Ptr: r.Ptr, Length: length, Capacity: capacity}, enc), nil
}

// ---------------------------------------------------------------------------
// Helpers for boundary code
// ---------------------------------------------------------------------------

// IsString reports whether v references a live string slot.
func IsString(v vm.Value, g vm.HeapGuard) bool {
	_, err := lookup(v, vm.TTString, g)
	return err == nil
}

// BorrowString is UnboxFromValue(...).Borrow() for read-only callers.
func BorrowString(v vm.Value, g vm.HeapGuard) (*str.String, error) {
	u, err := String.UnboxFromValue(v, g)
	if err != nil {
		return nil, err
	}
	return u.Borrow(), nil
}

// NewString boxes a copy of b as a UTF-8 (or Binary, if invalid) string.
func NewString(b []byte, g vm.HeapGuard) (vm.Value, error) {
	buf := make([]byte, len(b))
	copy(buf, b)
	return String.AllocValue(str.UTF8(buf), g)
}

// Mutate is the one legal way to change a boxed string: it detaches the
// slot, runs fn on the native value and always reboxes it, even when fn
// fails. fn has no guard and so cannot allocate.
func Mutate(g vm.HeapGuard, v vm.Value, fn func(*str.String) error) (err error) {
	u, err := String.UnboxFromValue(v, g)
	if err != nil {
		return err
	}
	s := u.Take()
	defer func() {
		if _, berr := String.BoxIntoValue(s, v, g); berr != nil && err == nil {
			err = berr
		}
	}()
	return fn(s)
}

// StringLimit returns the capacity ceiling for strings on g's interpreter:
// its configured maximum, bounded by str.CapacityLimit.
func StringLimit(g vm.HeapGuard) int {
	ceiling := str.CapacityLimit()
	if limit := g.Interp().MaxStringCapacity(); limit > 0 && limit < ceiling {
		return limit
	}
	return ceiling
}
