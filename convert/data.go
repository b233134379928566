package convert

import (
	"fmt"

	"github.com/chazu/ferry/vm"
)

// DataBox boxes native values of type T into RData slots of one class.
type DataBox[T any] struct {
	Type *vm.DataType
}

// NewDataBox registers a data class called name on mrb. free, if not nil,
// runs when a slot's value is collected.
func NewDataBox[T any](mrb *vm.Interpreter, name string, free func(T)) (*DataBox[T], error) {
	dt := &vm.DataType{Name: name}
	if free != nil {
		dt.Free = func(_ *vm.Interpreter, ptr any) {
			if v, ok := ptr.(T); ok {
				free(v)
			}
		}
	}
	if _, err := mrb.DefineDataClass(name, dt); err != nil {
		return nil, err
	}
	return &DataBox[T]{Type: dt}, nil
}

// AllocValue wraps native in a new slot of the box's class.
func (b *DataBox[T]) AllocValue(native T, g vm.HeapGuard) (vm.Value, error) {
	_, v, err := g.Heap().NewData(b.Type.Class, b.Type, native)
	return v, err
}

// UnboxFromValue borrows the value held by v. v must be a slot of this
// box's data type.
func (b *DataBox[T]) UnboxFromValue(v vm.Value, g vm.HeapGuard) (*Unboxed[T], error) {
	d, err := b.slot(v, g)
	if err != nil {
		return nil, err
	}
	if d.Detached() {
		return nil, fmt.Errorf("%w: slot %d", ErrDetached, v.Handle())
	}
	native, ok := d.Ptr.(T)
	if !ok {
		return nil, fmt.Errorf("%w: slot %d holds %T", ErrTypeMismatch, v.Handle(), d.Ptr)
	}
	return &Unboxed[T]{
		value:  native,
		slot:   d,
		heap:   g.Heap(),
		detach: func() { d.Ptr = nil },
	}, nil
}

// BoxIntoValue stores native in the slot referenced by into.
func (b *DataBox[T]) BoxIntoValue(native T, into vm.Value, g vm.HeapGuard) (vm.Value, error) {
	d, err := b.slot(into, g)
	if err != nil {
		return vm.Nil, err
	}
	d.Ptr = native
	g.Heap().Reattach(d)
	return into, nil
}

func (b *DataBox[T]) slot(v vm.Value, g vm.HeapGuard) (*vm.RData, error) {
	obj, err := lookup(v, vm.TTData, g)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*vm.RData)
	if !ok || d.Type != b.Type {
		return nil, fmt.Errorf("%w: slot %d is not a %s", ErrTypeMismatch, v.Handle(), b.Type.Name)
	}
	return d, nil
}
