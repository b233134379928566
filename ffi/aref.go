package ffi

import (
	"math"

	"github.com/chazu/ferry/convert"
	"github.com/chazu/ferry/vm"
)

// aref is String#[] over bytes:
//
//	s[i]        one byte, negative i counts from the end
//	s[i, len]   up to len bytes from i
//	s[needle]   a copy of needle if s contains it
//
// Misses return nil with no error.
func aref(g *vm.Guard, s, indx, alen vm.Value) (vm.Value, error) {
	src, err := borrow(g, s)
	if err != nil {
		return vm.Nil, err
	}

	if !alen.IsUndef() {
		begin, err := toIndex(g.Interp(), indx)
		if err != nil {
			return vm.Nil, err
		}
		length, err := toIndex(g.Interp(), alen)
		if err != nil {
			return vm.Nil, err
		}
		sub, ok := src.Substr(begin, length)
		if !ok {
			return vm.Nil, nil
		}
		return convert.String.AllocValue(sub, g)
	}

	if convert.IsString(indx, g) {
		needle, err := convert.BorrowString(indx, g)
		if err != nil {
			return vm.Nil, err
		}
		if !src.Contains(needle.Bytes()) {
			return vm.Nil, nil
		}
		return convert.String.AllocValue(needle.Clone(), g)
	}

	i, err := toIndex(g.Interp(), indx)
	if err != nil {
		return vm.Nil, err
	}
	sub, ok := src.Substr(i, 1)
	if !ok || sub.IsEmpty() {
		return vm.Nil, nil
	}
	return convert.String.AllocValue(sub, g)
}

// toIndex converts an Integer or Float index argument.
func toIndex(mrb *vm.Interpreter, v vm.Value) (int, error) {
	switch {
	case v.IsSmallInt():
		if i, ok := toInt(v.SmallInt()); ok {
			return i, nil
		}
	case v.IsFloat():
		f := math.Trunc(v.Float64())
		if f >= math.MinInt64 && f < math.MaxInt64 {
			if i, ok := toInt(vm.Int(f)); ok {
				return i, nil
			}
		}
		return 0, &vm.RangeError{Msg: "float out of range of integer"}
	}
	return 0, vm.TypeErrorf("no implicit conversion of %s into Integer", typeName(mrb, v))
}
