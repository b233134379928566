package ffi

import (
	"strings"
	"testing"

	"github.com/chazu/ferry/vm"
)

func TestStrToInteger(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	tests := []struct {
		in   string
		base vm.Int
		want int64
	}{
		{"42", 10, 42},
		{"  -17\n", 10, -17},
		{"0x1f", 16, 31},
		{"1_000", 10, 1000},
		{"zz", 36, 35*36 + 35},
		{"777", 8, 511},
	}
	for _, tt := range tests {
		for _, strict := range []bool{true, false} {
			v := StrToInteger(mrb, newStr(mrb, tt.in), tt.base, strict)
			if !v.IsSmallInt() || v.SmallInt() != tt.want {
				t.Errorf("StrToInteger(%q, %d, %v) = %v, want %d", tt.in, tt.base, strict, v, tt.want)
			}
		}
	}
}

func TestStrToIntegerBadInput(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	for _, in := range []string{"", "abc", "12x", "1__0", "9", "\xff"} {
		base := vm.Int(10)
		if in == "9" {
			base = 8
		}
		s := newStr(mrb, in)
		if v := StrToInteger(mrb, s, base, false); v != vm.FromSmallInt(0) {
			t.Errorf("non-strict StrToInteger(%q) = %v, want 0", in, v)
		}
		raised := raises(t, mrb, func() vm.Value { return StrToInteger(mrb, s, base, true) })
		wantClass(t, raised, mrb.ArgumentErrorClass)
		if !strings.HasPrefix(raised.Message, "invalid value for Integer(): ") {
			t.Errorf("Message = %q", raised.Message)
		}
	}
}

// TestStrToIntegerOverflow verifies that text beyond 64 bits is an
// invalid number: ArgumentError when strict, 0 otherwise.
func TestStrToIntegerOverflow(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "99999999999999999999999")
	raised := raises(t, mrb, func() vm.Value { return StrToInteger(mrb, s, 10, true) })
	wantClass(t, raised, mrb.ArgumentErrorClass)
	if want := `invalid value for Integer(): "99999999999999999999999"`; raised.Message != want {
		t.Errorf("Message = %q, want %q", raised.Message, want)
	}
	if v := StrToInteger(mrb, s, 10, false); v != vm.FromSmallInt(0) {
		t.Errorf("non-strict overflow = %v, want 0", v)
	}
	wantClass(t, raises(t, mrb, func() vm.Value { return CstrToInum(mrb, cstring("-99999999999999999999999"), 10, true) }), mrb.ArgumentErrorClass)
}

// TestStrToIntegerBeyondSmallInt verifies that results the interpreter
// cannot hold exactly raise RangeError instead of degrading to Floats.
func TestStrToIntegerBeyondSmallInt(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"140737488355327", 1<<47 - 1, true},
		{"-140737488355328", -(1 << 47), true},
		{"140737488355328", 0, false},
		{"-140737488355329", 0, false},
		{"9007199254740993", 0, false},
	}
	for _, tt := range tests {
		s := newStr(mrb, tt.in)
		for _, strict := range []bool{true, false} {
			if !tt.ok {
				raised := raises(t, mrb, func() vm.Value { return StrToInteger(mrb, s, 10, strict) })
				wantClass(t, raised, mrb.RangeErrorClass)
				continue
			}
			if v := StrToInteger(mrb, s, 10, strict); v != vm.FromSmallInt(tt.want) {
				t.Errorf("StrToInteger(%q, strict=%v) = %v, want %d", tt.in, strict, v, tt.want)
			}
		}
	}
}

// TestIllegalRadixAlwaysRaises verifies that an illegal base raises whatever the
// strict flag says.
func TestIllegalRadixAlwaysRaises(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "10")
	for _, base := range []vm.Int{-1, 0, 1, 37, 1 << 40} {
		for _, strict := range []bool{true, false} {
			raised := raises(t, mrb, func() vm.Value { return StrToInteger(mrb, s, base, strict) })
			wantClass(t, raised, mrb.ArgumentErrorClass)
			if !strings.Contains(raised.Message, "illegal radix") {
				t.Errorf("base %d strict %v: Message = %q", base, strict, raised.Message)
			}
			raised = raises(t, mrb, func() vm.Value { return CstrToInum(mrb, cstring("10"), base, strict) })
			wantClass(t, raised, mrb.ArgumentErrorClass)
		}
		raised := raises(t, mrb, func() vm.Value { return IntegerToStr(mrb, vm.FromSmallInt(5), base) })
		wantClass(t, raised, mrb.ArgumentErrorClass)
	}
	// The radix is checked before the receiver.
	wantClass(t, raises(t, mrb, func() vm.Value { return StrToInteger(mrb, vm.Nil, 99, false) }), mrb.ArgumentErrorClass)
}

func TestStrToIntegerNonString(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	if v := StrToInteger(mrb, vm.Nil, 10, false); v != vm.FromSmallInt(0) {
		t.Errorf("non-strict = %v, want 0", v)
	}
	wantClass(t, raises(t, mrb, func() vm.Value { return StrToInteger(mrb, vm.Nil, 10, true) }), mrb.TypeErrorClass)
	if v := CstrToInum(mrb, nil, 10, false); v != vm.FromSmallInt(0) {
		t.Errorf("CstrToInum(nil) = %v, want 0", v)
	}
}

func TestCstrToInum(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	if v := CstrToInum(mrb, cstring("ff"), 16, true); v != vm.FromSmallInt(255) {
		t.Errorf("CstrToInum(ff, 16) = %v, want 255", v)
	}
}

// TestRadixRoundTrip verifies that IntegerToStr and StrToInteger invert
// each other in every base.
func TestRadixRoundTrip(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	values := []int64{0, 1, 35, 36, 255, 1 << 20, 123456789, 1<<47 - 1}
	for base := vm.Int(2); base <= 36; base++ {
		for _, x := range values {
			idx := mrb.ArenaSave()
			rendered := IntegerToStr(mrb, vm.FromSmallInt(x), base)
			back := StrToInteger(mrb, rendered, base, true)
			if back != vm.FromSmallInt(x) {
				t.Errorf("base %d: %d -> %q -> %v", base, x, goString(t, mrb, rendered), back)
			}
			mrb.ArenaRestore(idx)
		}
	}
}

func TestIntegerToStr(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	tests := []struct {
		x    int64
		base vm.Int
		want string
	}{
		{255, 16, "ff"},
		{-255, 16, "-ff"},
		{5, 2, "101"},
		{0, 7, "0"},
		{35, 36, "z"},
	}
	for _, tt := range tests {
		if got := goString(t, mrb, IntegerToStr(mrb, vm.FromSmallInt(tt.x), tt.base)); got != tt.want {
			t.Errorf("IntegerToStr(%d, %d) = %q, want %q", tt.x, tt.base, got, tt.want)
		}
	}
	wantClass(t, raises(t, mrb, func() vm.Value { return IntegerToStr(mrb, vm.Nil, 10) }), mrb.TypeErrorClass)
}

func TestStrToDbl(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	if f := StrToDbl(mrb, newStr(mrb, " 1.5e2 "), true); f != 150 {
		t.Errorf("StrToDbl = %v, want 150", f)
	}
	if f := CstrToDbl(mrb, cstring("-0.25"), true); f != -0.25 {
		t.Errorf("CstrToDbl = %v, want -0.25", f)
	}
	bad := newStr(mrb, "1.5x")
	if f := StrToDbl(mrb, bad, false); f != 0 {
		t.Errorf("non-strict StrToDbl = %v, want 0", f)
	}
	raised := raises(t, mrb, func() vm.Value {
		StrToDbl(mrb, bad, true)
		return vm.Nil
	})
	wantClass(t, raised, mrb.ArgumentErrorClass)
	if !strings.HasPrefix(raised.Message, "invalid value for Float(): ") {
		t.Errorf("Message = %q", raised.Message)
	}
	if f := StrToDbl(mrb, vm.FromSmallInt(1), false); f != 0 {
		t.Errorf("StrToDbl(non-string) = %v, want 0", f)
	}
	wantClass(t, raises(t, mrb, func() vm.Value {
		CstrToDbl(mrb, nil, true)
		return vm.Nil
	}), mrb.TypeErrorClass)
}
