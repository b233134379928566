package ffi

import (
	"fmt"

	"github.com/chazu/ferry/convert"
	"github.com/chazu/ferry/str"
	"github.com/chazu/ferry/vm"
)

// StrToInteger parses s as a base-base integer (mrb_str_to_integer,
// mrb_str_to_inum). An illegal base always raises ArgumentError. With
// badcheck, unparsable text raises ArgumentError and a non-string raises
// TypeError; without it both yield 0. Text beyond the 64-bit range is
// unparsable. A result that parses but does not fit a SmallInt raises
// RangeError in either mode.
func StrToInteger(mrb *vm.Interpreter, s vm.Value, base vm.Int, badcheck bool) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		b, err := checkBase(base)
		if err != nil {
			return vm.Nil, err
		}
		src, err := convert.BorrowString(s, g)
		if err != nil {
			if badcheck {
				return vm.Nil, notAString(mrb, s)
			}
			return vm.FromSmallInt(0), nil
		}
		return parseInteger(src.Bytes(), b, badcheck)
	})
}

// CstrToInum parses the NUL-terminated string at p like StrToInteger
// (mrb_cstr_to_inum).
func CstrToInum(mrb *vm.Interpreter, p *byte, base vm.Int, badcheck bool) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		b, err := checkBase(base)
		if err != nil {
			return vm.Nil, err
		}
		if p == nil {
			if badcheck {
				return vm.Nil, notAString(mrb, vm.Nil)
			}
			return vm.FromSmallInt(0), nil
		}
		return parseInteger(cstrBytes(p), b, badcheck)
	})
}

// StrToDbl parses s as a decimal float (mrb_str_to_dbl) with the same
// badcheck policy as StrToInteger.
func StrToDbl(mrb *vm.Interpreter, s vm.Value, badcheck bool) float64 {
	return raising(mrb, 0, func(g *vm.Guard) (float64, error) {
		src, err := convert.BorrowString(s, g)
		if err != nil {
			if badcheck {
				return 0, notAString(mrb, s)
			}
			return 0, nil
		}
		return str.ParseFloatBytes(src.Bytes(), badcheck)
	})
}

// CstrToDbl parses the NUL-terminated string at p as a decimal float
// (mrb_cstr_to_dbl).
func CstrToDbl(mrb *vm.Interpreter, p *byte, badcheck bool) float64 {
	return raising(mrb, 0, func(g *vm.Guard) (float64, error) {
		if p == nil {
			if badcheck {
				return 0, notAString(mrb, vm.Nil)
			}
			return 0, nil
		}
		return str.ParseFloatBytes(cstrBytes(p), badcheck)
	})
}

// IntegerToStr renders the Integer x in base (mrb_integer_to_str).
// Negative values render with a leading '-'.
func IntegerToStr(mrb *vm.Interpreter, x vm.Value, base vm.Int) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		b, err := checkBase(base)
		if err != nil {
			return vm.Nil, err
		}
		if !x.IsSmallInt() {
			return vm.Nil, vm.TypeErrorf("no implicit conversion of %s into Integer", typeName(mrb, x))
		}
		digits, err := str.FormatInt(x.SmallInt(), b)
		if err != nil {
			return vm.Nil, err
		}
		return convert.String.AllocValue(str.UTF8(digits), g)
	})
}

// checkBase validates base before anything else is looked at.
func checkBase(base vm.Int) (int, error) {
	b, ok := toInt(base)
	if !ok {
		return 0, vm.ArgumentErrorf("illegal radix %d", base)
	}
	if err := str.CheckRadix(b); err != nil {
		return 0, err
	}
	return b, nil
}

func parseInteger(b []byte, base int, badcheck bool) (vm.Value, error) {
	n, err := str.ParseIntegerBytes(b, base, badcheck)
	if err != nil {
		return vm.Nil, err
	}
	v, ok := vm.TryFromSmallInt(n)
	if !ok {
		return vm.Nil, &vm.RangeError{Msg: fmt.Sprintf("integer %d out of range of SmallInt", n)}
	}
	return v, nil
}
