package vm

import (
	"fmt"
	"math"
)

// Value is an mrb_value-shaped tagged word using NaN-boxing.
//
// All values are 64-bit IEEE 754 doubles. Non-float values are encoded in
// the NaN space using the quiet NaN prefix and tag bits.
//
// Encoding scheme:
//   - Float: native IEEE 754 double (anything that is not a tagged NaN)
//   - SmallInt: quiet NaN + tagInt + 48-bit signed payload
//   - HeapRef: quiet NaN + tagObject + 8-bit TType + 40-bit slot handle
//   - Symbol: quiet NaN + tagSymbol + symbol ID
//   - Special: quiet NaN + tagSpecial + nil/true/false/undef
//
// A Value never owns memory. A HeapRef is valid only while its slot has
// not been collected.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for handle/int/id
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagObject  uint64 = 0x0001000000000000 // heap slot reference
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // nil, true, false, undef
	tagSymbol  uint64 = 0x0004000000000000 // interned symbol ID

	intSignBit    uint64 = 0x0000800000000000
	intSignExtend uint64 = 0xFFFF000000000000

	// Heap reference payload: TType in the top 8 bits, handle below.
	handleBits = 40
	handleMask = uint64(1)<<handleBits - 1
	ttypeShift = handleBits
	ttypeMask  = uint64(0xFF) << ttypeShift
	MaxHandle  = Handle(handleMask)
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
	specialUndef uint64 = 3
)

// Pre-defined special values
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)

	// Undef marks an absent optional argument, like mrb_undef_value().
	Undef Value = Value(nanBits | tagSpecial | specialUndef)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// Int is the interpreter's native integer width (mrb_int).
type Int = int64

// Handle identifies a heap slot. Handles are assigned in increasing order
// and never reused.
type Handle uint64

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// Infinities and untagged NaNs are floats.
func (v Value) IsFloat() bool {
	bits := uint64(v)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}
	if bits&0x000FFFFFFFFFFFFF == 0 {
		return true // +Inf or -Inf
	}
	if (bits & nanBits) != nanBits {
		return true // signaling NaN
	}
	return bits&tagMask == 0
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsObject returns true if v references a heap slot.
func (v Value) IsObject() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsSymbol returns true if v represents an interned symbol.
func (v Value) IsSymbol() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSymbol)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool { return v == Nil }

// IsUndef returns true if v is the undef marker.
func (v Value) IsUndef() bool { return v == Undef }

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool { return v == True || v == False }

// IsSpecial returns true if v is nil, true, false or undef.
func (v Value) IsSpecial() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

// Type returns the value's type tag. Immediates report their immediate
// tag; heap references report the tag stored in the reference, which
// always agrees with the slot's own tag.
func (v Value) Type() TType {
	switch {
	case v.IsFloat():
		return TTFloat
	case v.IsSmallInt():
		return TTInteger
	case v.IsSymbol():
		return TTSymbol
	case v.IsObject():
		return TType((uint64(v) & ttypeMask) >> ttypeShift)
	case v == True:
		return TTTrue
	case v == Undef:
		return TTUndef
	default:
		return TTFalse // nil and false, as in mruby
	}
}

// ---------------------------------------------------------------------------
// Float operations
// ---------------------------------------------------------------------------

// Float64 returns v as a float64.
// Panics if v is not a float.
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// ---------------------------------------------------------------------------
// SmallInt operations
// ---------------------------------------------------------------------------

// SmallInt returns v as an int64.
// Panics if v is not a small integer.
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("Value.SmallInt: not a small integer")
	}
	payload := uint64(v) & payloadMask
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromSmallInt creates a Value from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// TryFromSmallInt creates a Value from an int64, returning false if out of range.
func TryFromSmallInt(n int64) (Value, bool) {
	if n > MaxSmallInt || n < MinSmallInt {
		return Nil, false
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask)), true
}

// FromInt converts an mrb_int to a Value. Integers outside the SmallInt
// range become Floats.
func FromInt(n Int) Value {
	if v, ok := TryFromSmallInt(n); ok {
		return v
	}
	return FromFloat64(float64(n))
}

// ---------------------------------------------------------------------------
// Heap references
// ---------------------------------------------------------------------------

// FromHeapRef creates a Value referencing slot h with type tag tt.
// Panics if h does not fit in the handle field.
func FromHeapRef(tt TType, h Handle) Value {
	if h > MaxHandle {
		panic("FromHeapRef: handle out of range")
	}
	return Value(nanBits | tagObject | uint64(tt)<<ttypeShift | uint64(h))
}

// Handle returns the slot handle of a heap reference.
// Panics if v is not a heap reference.
func (v Value) Handle() Handle {
	if !v.IsObject() {
		panic("Value.Handle: not a heap reference")
	}
	return Handle(uint64(v) & handleMask)
}

// ---------------------------------------------------------------------------
// Symbol operations
// ---------------------------------------------------------------------------

// SymbolID returns the symbol ID encoded in v.
// Panics if v is not a symbol.
func (v Value) SymbolID() uint32 {
	if !v.IsSymbol() {
		panic("Value.SymbolID: not a symbol")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromSymbolID creates a Value from a symbol ID.
func FromSymbolID(id uint32) Value {
	return Value(nanBits | tagSymbol | uint64(id))
}

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// IsTruthy returns true unless v is false or nil.
func (v Value) IsTruthy() bool {
	return v != False && v != Nil
}

// String renders v for logs and test failures. Heap references print
// their tag and handle, not their contents.
func (v Value) String() string {
	switch {
	case v.IsFloat():
		return fmt.Sprintf("%g", v.Float64())
	case v.IsSmallInt():
		return fmt.Sprintf("%d", v.SmallInt())
	case v.IsSymbol():
		return fmt.Sprintf(":%d", v.SymbolID())
	case v.IsObject():
		return fmt.Sprintf("#<%s %d>", v.Type(), v.Handle())
	case v == Nil:
		return "nil"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v == Undef:
		return "undef"
	default:
		return fmt.Sprintf("Value(%#x)", uint64(v))
	}
}
