package ffi

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/chazu/ferry/convert"
	"github.com/chazu/ferry/str"
	"github.com/chazu/ferry/vm"
)

var errOutOfMemory = &vm.NoMemoryError{Msg: "out of memory"}

// borrow returns the string held by v, or a TypeError naming v's class.
func borrow(g vm.HeapGuard, v vm.Value) (*str.String, error) {
	s, err := convert.BorrowString(v, g)
	if errors.Is(err, convert.ErrTypeMismatch) {
		return nil, notAString(g.Interp(), v)
	}
	return s, err
}

// newString boxes a fresh string after checking it against the
// interpreter's capacity ceiling.
func newString(g vm.HeapGuard, s *str.String) (vm.Value, error) {
	if s.Cap() > convert.StringLimit(g) {
		return vm.Nil, errOutOfMemory
	}
	return convert.String.AllocValue(s, g)
}

// copyBytes boxes a copy of b, tagged UTF-8 when valid.
func copyBytes(g vm.HeapGuard, b []byte) (vm.Value, error) {
	if len(b) > convert.StringLimit(g) {
		return vm.Nil, errOutOfMemory
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return convert.String.AllocValue(str.UTF8(buf), g)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// StrNewCapa returns an empty string with room for capa bytes
// (mrb_str_new_capa).
func StrNewCapa(mrb *vm.Interpreter, capa vm.Int) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		n, ok := toInt(capa)
		if !ok || n < 0 {
			return vm.Nil, vm.ArgumentErrorf("negative string size (or size too big)")
		}
		if n > convert.StringLimit(g) {
			return vm.Nil, errOutOfMemory
		}
		s, err := str.TryWithCapacity(n, str.EncodingUTF8)
		if err != nil {
			return vm.Nil, err
		}
		return convert.String.AllocValue(s, g)
	})
}

// StrNew copies length bytes at p into a new string (mrb_str_new). A nil
// p yields length zero bytes.
func StrNew(mrb *vm.Interpreter, p *byte, length vm.Int) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		n, ok := toInt(length)
		if !ok || n < 0 {
			return vm.Nil, vm.ArgumentErrorf("negative string size (or size too big)")
		}
		if p != nil {
			return copyBytes(g, unsafe.Slice(p, n))
		}
		if n > convert.StringLimit(g) {
			return vm.Nil, errOutOfMemory
		}
		s, err := str.TryWithCapacity(n, str.EncodingUTF8)
		if err != nil {
			return vm.Nil, err
		}
		if err := s.Resize(n); err != nil {
			return vm.Nil, err
		}
		return convert.String.AllocValue(s, g)
	})
}

// StrNewStatic is StrNew; there is no separate static string storage
// (mrb_str_new_static).
func StrNewStatic(mrb *vm.Interpreter, p *byte, length vm.Int) vm.Value {
	return StrNew(mrb, p, length)
}

// StrNewCstr copies the NUL-terminated string at p (mrb_str_new_cstr).
// A nil p yields an empty string.
func StrNewCstr(mrb *vm.Interpreter, p *byte) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		return copyBytes(g, cstrBytes(p))
	})
}

// PtrToStr renders a pointer as a "0x..." string (mrb_ptr_to_str).
func PtrToStr(mrb *vm.Interpreter, p unsafe.Pointer) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		s := str.WithCapacity(16 + 2)
		s.Extend(fmt.Appendf(nil, "%p", p))
		return newString(g, s)
	})
}

// ---------------------------------------------------------------------------
// Search and slicing
// ---------------------------------------------------------------------------

// StrIndex returns the byte position of the slen bytes at sptr in s at or
// after offset, or -1 (mrb_str_index). A negative offset counts back from
// the end.
func StrIndex(mrb *vm.Interpreter, s vm.Value, sptr *byte, slen, offset vm.Int) vm.Int {
	return sentinel(mrb, -1, func(g *vm.SentinelGuard) vm.Int {
		haystack, err := convert.BorrowString(s, g)
		if err != nil {
			return -1
		}
		off, ok := toInt(offset)
		if !ok {
			return -1
		}
		n, _ := toInt(slen)
		return vm.Int(haystack.Index(ptrBytes(sptr, n), off))
	})
}

// StrSubstr returns up to length bytes of s starting at beg, or nil when
// beg is out of range or length is negative (mrb_str_substr).
func StrSubstr(mrb *vm.Interpreter, s vm.Value, beg, length vm.Int) vm.Value {
	if length < 0 {
		return vm.Nil
	}
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		src, err := convert.BorrowString(s, g)
		if err != nil {
			return vm.Nil, nil
		}
		begin, ok := toInt(beg)
		if !ok {
			return vm.Nil, nil
		}
		n, ok := toInt(length)
		if !ok {
			return vm.Nil, nil
		}
		sub, ok := src.Substr(begin, n)
		if !ok {
			return vm.Nil, nil
		}
		return convert.String.AllocValue(sub, g)
	})
}

// StrAref implements String#[] (mrb_str_aref). alen is Undef when no
// length was given. Any failure yields nil.
func StrAref(mrb *vm.Interpreter, s, indx, alen vm.Value) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		v, err := aref(g, s, indx, alen)
		if err != nil {
			log.Debugf("aref: %s", err)
			return vm.Nil, nil
		}
		return v, nil
	})
}

// StrStrlen returns the byte length of s, raising ArgumentError if s holds
// a NUL byte (mrb_str_strlen).
func StrStrlen(mrb *vm.Interpreter, s vm.Value) vm.Int {
	return raising(mrb, 0, func(g *vm.Guard) (vm.Int, error) {
		src, err := borrow(g, s)
		if err != nil {
			return 0, err
		}
		if src.HasInteriorNul() {
			return 0, vm.ArgumentErrorf("string contains null byte")
		}
		return vm.Int(src.Len()), nil
	})
}

// ---------------------------------------------------------------------------
// In-place mutation
// ---------------------------------------------------------------------------

// StrResize sets the length of s in place (mrb_str_resize). Shrinking
// truncates; growing zero-fills and raises NoMemoryError when the buffer
// cannot grow. A non-string s or a negative length returns s unchanged.
func StrResize(mrb *vm.Interpreter, s vm.Value, length vm.Int) vm.Value {
	return raising(mrb, s, func(g *vm.Guard) (vm.Value, error) {
		if !convert.IsString(s, g) {
			return s, nil
		}
		n, ok := toInt(length)
		if !ok || n < 0 {
			return s, nil
		}
		limit := convert.StringLimit(g)
		err := convert.Mutate(g, s, func(buf *str.String) error {
			return buf.ResizeLimit(n, limit)
		})
		return s, err
	})
}

// StrCat appends length bytes at ptr to s in place and returns s
// (mrb_str_cat). A non-string s is returned unchanged.
func StrCat(mrb *vm.Interpreter, s vm.Value, ptr *byte, length vm.Int) vm.Value {
	return raising(mrb, s, func(g *vm.Guard) (vm.Value, error) {
		n, _ := toInt(length)
		return s, catBytes(g, s, ptrBytes(ptr, n))
	})
}

// StrCatCstr appends the NUL-terminated string at ptr to s
// (mrb_str_cat_cstr).
func StrCatCstr(mrb *vm.Interpreter, s vm.Value, ptr *byte) vm.Value {
	return raising(mrb, s, func(g *vm.Guard) (vm.Value, error) {
		return s, catBytes(g, s, cstrBytes(ptr))
	})
}

// StrCatStr appends other to s in place and returns s (mrb_str_cat_str).
func StrCatStr(mrb *vm.Interpreter, s, other vm.Value) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		return s, appendString(g, s, other)
	})
}

// StrAppend is StrCatStr for callers holding an arbitrary other value
// (mrb_str_append).
func StrAppend(mrb *vm.Interpreter, s, other vm.Value) vm.Value {
	return StrCatStr(mrb, s, other)
}

// StrConcat appends other to self in place (mrb_str_concat).
func StrConcat(mrb *vm.Interpreter, self, other vm.Value) {
	raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		return vm.Nil, appendString(g, self, other)
	})
}

// catBytes appends b to s when s is a string; other receivers are
// ignored.
func catBytes(g vm.HeapGuard, s vm.Value, b []byte) error {
	if !convert.IsString(s, g) {
		return nil
	}
	limit := convert.StringLimit(g)
	return convert.Mutate(g, s, func(buf *str.String) error {
		return buf.TryExtend(b, limit)
	})
}

// appendString appends other's bytes to s. Both must be strings.
func appendString(g vm.HeapGuard, s, other vm.Value) error {
	if _, err := borrow(g, s); err != nil {
		return err
	}
	tail, err := borrow(g, other)
	if err != nil {
		return err
	}
	// tail may alias s; copy before s is detached.
	b := append([]byte(nil), tail.Bytes()...)
	limit := convert.StringLimit(g)
	return convert.Mutate(g, s, func(buf *str.String) error {
		return buf.TryExtend(b, limit)
	})
}

// ---------------------------------------------------------------------------
// Derived strings
// ---------------------------------------------------------------------------

// StrPlus returns a new string holding a followed by b, in a's encoding
// (mrb_str_plus). Returns nil unless both are strings.
func StrPlus(mrb *vm.Interpreter, a, b vm.Value) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		left, err := convert.BorrowString(a, g)
		if err != nil {
			return vm.Nil, nil
		}
		right, err := convert.BorrowString(b, g)
		if err != nil {
			return vm.Nil, nil
		}
		if left.Len() > convert.StringLimit(g)-right.Len() {
			return vm.Nil, errOutOfMemory
		}
		return convert.String.AllocValue(str.Concat(left, right), g)
	})
}

// StrDup copies s into a new string of the same class (mrb_str_dup).
// Returns nil for a non-string.
func StrDup(mrb *vm.Interpreter, s vm.Value) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		src, err := convert.BorrowString(s, g)
		if err != nil {
			return vm.Nil, nil
		}
		return convert.AllocStringWithClass(src.Clone(), mrb.ClassOf(s), g)
	})
}

// StrInspect returns the debug rendering of s (mrb_str_inspect). Returns
// nil for a non-string.
func StrInspect(mrb *vm.Interpreter, s vm.Value) vm.Value {
	return raising(mrb, vm.Nil, func(g *vm.Guard) (vm.Value, error) {
		src, err := convert.BorrowString(s, g)
		if err != nil {
			return vm.Nil, nil
		}
		return newString(g, str.FromString(src.Inspect()))
	})
}

// ---------------------------------------------------------------------------
// Comparison and hashing
// ---------------------------------------------------------------------------

// StrCmp orders two strings by bytes: -1, 0 or 1 (mrb_str_cmp). Returns -1
// unless both are strings.
func StrCmp(mrb *vm.Interpreter, a, b vm.Value) int {
	return sentinel(mrb, -1, func(g *vm.SentinelGuard) int {
		left, err := convert.BorrowString(a, g)
		if err != nil {
			return -1
		}
		right, err := convert.BorrowString(b, g)
		if err != nil {
			return -1
		}
		return str.Cmp(left, right)
	})
}

// StrEqual reports byte equality of two strings (mrb_str_equal). Returns
// false unless both are strings.
func StrEqual(mrb *vm.Interpreter, a, b vm.Value) bool {
	return sentinel(mrb, false, func(g *vm.SentinelGuard) bool {
		left, err := convert.BorrowString(a, g)
		if err != nil {
			return false
		}
		right, err := convert.BorrowString(b, g)
		if err != nil {
			return false
		}
		return str.Equal(left, right)
	})
}

// StrHash returns the process-keyed 32-bit hash of s (mrb_str_hash), or 0
// for a non-string.
func StrHash(mrb *vm.Interpreter, s vm.Value) uint32 {
	return sentinel(mrb, 0, func(g *vm.SentinelGuard) uint32 {
		hasher, err := str.GlobalBuildHasher()
		if err != nil {
			return 0
		}
		src, err := convert.BorrowString(s, g)
		if err != nil {
			return 0
		}
		return src.Hash(hasher)
	})
}

// ---------------------------------------------------------------------------
// C string views
// ---------------------------------------------------------------------------

// StringCstr returns a pointer to s's bytes followed by a NUL, appending
// the NUL if the buffer does not already end with one (mrb_string_cstr).
// Repeated calls return the same pointer without growing the string.
// Returns nil for a non-string.
func StringCstr(mrb *vm.Interpreter, s vm.Value) *byte {
	return sentinel(mrb, nil, func(g *vm.SentinelGuard) *byte {
		return cstr(g, s)
	})
}

// StringValueCstr is StringCstr for a value passed by reference
// (mrb_string_value_cstr). A nil ptr yields nil.
func StringValueCstr(mrb *vm.Interpreter, ptr *vm.Value) *byte {
	if ptr == nil {
		return nil
	}
	return sentinel(mrb, nil, func(g *vm.SentinelGuard) *byte {
		return cstr(g, *ptr)
	})
}

func cstr(g vm.HeapGuard, s vm.Value) *byte {
	src, err := convert.BorrowString(s, g)
	if err != nil {
		return nil
	}
	if last, ok := src.Last(); ok && last == 0 {
		return dataPtr(src.Bytes())
	}
	if err := convert.Mutate(g, s, func(buf *str.String) error {
		buf.EnsureNul()
		return nil
	}); err != nil {
		return nil
	}
	src, err = convert.BorrowString(s, g)
	if err != nil {
		return nil
	}
	return dataPtr(src.Bytes())
}
