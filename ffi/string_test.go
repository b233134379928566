package ffi

import (
	"math"
	"strings"
	"testing"
	"unsafe"

	"github.com/chazu/ferry/convert"
	"github.com/chazu/ferry/str"
	"github.com/chazu/ferry/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func openTest(t *testing.T, opts vm.Options) *vm.Interpreter {
	t.Helper()
	mrb, err := OpenWithOptions(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := mrb.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return mrb
}

func bytesPtr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

func newStr(mrb *vm.Interpreter, s string) vm.Value {
	b := []byte(s)
	if len(b) == 0 {
		return StrNewCapa(mrb, 0)
	}
	return StrNew(mrb, bytesPtr(b), vm.Int(len(b)))
}

func cstring(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

func native(t *testing.T, mrb *vm.Interpreter, v vm.Value) *str.String {
	t.Helper()
	g := mrb.LockSentinel()
	defer g.Release()
	s, err := convert.BorrowString(v, g)
	if err != nil {
		t.Fatalf("BorrowString(%v): %v", v, err)
	}
	return s.Clone()
}

func goString(t *testing.T, mrb *vm.Interpreter, v vm.Value) string {
	t.Helper()
	return native(t, mrb, v).GoString()
}

// raises runs fn and returns the exception it raised, failing the test if
// it returned normally.
func raises(t *testing.T, mrb *vm.Interpreter, fn func() vm.Value) *vm.RaisedException {
	t.Helper()
	_, raised := mrb.Protect(fn)
	if raised == nil {
		t.Fatal("expected a raise")
	}
	if mrb.GuardHeld() {
		t.Error("guard still held after raise")
	}
	return raised
}

func wantClass(t *testing.T, raised *vm.RaisedException, want *vm.Class) {
	t.Helper()
	if raised.Class != want {
		t.Errorf("raised %s (%q), want %s", raised.Class.Name, raised.Message, want.Name)
	}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestStrNew(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	if got := goString(t, mrb, newStr(mrb, "héllo")); got != "héllo" {
		t.Errorf("StrNew = %q", got)
	}
	if got := goString(t, mrb, StrNew(mrb, nil, 3)); got != "\x00\x00\x00" {
		t.Errorf("StrNew(nil, 3) = %q, want three NULs", got)
	}
	b := []byte("static")
	if got := goString(t, mrb, StrNewStatic(mrb, &b[0], 3)); got != "sta" {
		t.Errorf("StrNewStatic = %q", got)
	}
}

// TestStrNewCopiesInput verifies that later writes to the caller's buffer do
// not show through.
func TestStrNewCopiesInput(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	b := []byte("abc")
	v := StrNew(mrb, &b[0], 3)
	b[0] = 'X'
	if got := goString(t, mrb, v); got != "abc" {
		t.Errorf("string aliases caller memory: %q", got)
	}
}

func TestStrNewCstr(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	b := []byte("abc\x00def")
	if got := goString(t, mrb, StrNewCstr(mrb, &b[0])); got != "abc" {
		t.Errorf("StrNewCstr = %q, want abc", got)
	}
	if got := goString(t, mrb, StrNewCstr(mrb, nil)); got != "" {
		t.Errorf("StrNewCstr(nil) = %q, want empty", got)
	}
}

func TestStrNewCapa(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := native(t, mrb, StrNewCapa(mrb, 0))
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	v := StrNewCapa(mrb, 64)
	g := mrb.LockSentinel()
	got, _ := convert.BorrowString(v, g)
	if got.Cap() < 64 || got.Len() != 0 {
		t.Errorf("Cap() = %d, Len() = %d", got.Cap(), got.Len())
	}
	g.Release()

	wantClass(t, raises(t, mrb, func() vm.Value { return StrNewCapa(mrb, -1) }), mrb.ArgumentErrorClass)
}

// TestStringLimitRaisesNoMemory verifies that every growing entry point honors
// the interpreter's capacity ceiling.
func TestStringLimitRaisesNoMemory(t *testing.T) {
	mrb := openTest(t, vm.Options{MaxStringCapacity: 16})
	wantClass(t, raises(t, mrb, func() vm.Value { return StrNewCapa(mrb, 32) }), mrb.NoMemoryErrorClass)

	s := newStr(mrb, "0123456789")
	tail := []byte("0123456789")
	wantClass(t, raises(t, mrb, func() vm.Value { return StrCat(mrb, s, &tail[0], 10) }), mrb.NoMemoryErrorClass)
	if got := goString(t, mrb, s); got != "0123456789" {
		t.Errorf("failed append changed the receiver: %q", got)
	}
	wantClass(t, raises(t, mrb, func() vm.Value { return StrPlus(mrb, s, s) }), mrb.NoMemoryErrorClass)
}

func TestPtrToStr(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	var x int
	got := goString(t, mrb, PtrToStr(mrb, unsafe.Pointer(&x)))
	if !strings.HasPrefix(got, "0x") || len(got) < 3 {
		t.Errorf("PtrToStr = %q, want 0x...", got)
	}
}

// TestNilInterpreter verifies that entry points called without an
// interpreter return their sentinel.
func TestNilInterpreter(t *testing.T) {
	if v := StrNew(nil, nil, 0); v != vm.Nil {
		t.Errorf("StrNew(nil mrb) = %v, want nil", v)
	}
	if n := StrIndex(nil, vm.Nil, nil, 0, 0); n != -1 {
		t.Errorf("StrIndex(nil mrb) = %d, want -1", n)
	}
	if StrEqual(nil, vm.Nil, vm.Nil) {
		t.Error("StrEqual(nil mrb) = true")
	}
	if p := StringCstr(nil, vm.Nil); p != nil {
		t.Error("StringCstr(nil mrb) != nil")
	}
}

// ---------------------------------------------------------------------------
// Byte indexing
// ---------------------------------------------------------------------------

func TestByteIndexing(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "héllo")
	if n := StrStrlen(mrb, s); n != 6 {
		t.Errorf("StrStrlen = %d, want 6", n)
	}
	l := []byte("l")
	tests := []struct {
		offset vm.Int
		want   vm.Int
	}{
		{0, 3},
		{4, 4},
		{-2, 4},
		{-1, -1},
		{6, -1},
		{7, -1},
		{-7, -1},
	}
	for _, tt := range tests {
		if got := StrIndex(mrb, s, &l[0], 1, tt.offset); got != tt.want {
			t.Errorf("StrIndex(l, %d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
	if got := StrIndex(mrb, s, nil, 0, 2); got != 2 {
		t.Errorf("StrIndex(empty, 2) = %d, want 2", got)
	}
	if got := StrIndex(mrb, vm.FromSmallInt(1), &l[0], 1, 0); got != -1 {
		t.Errorf("StrIndex(non-string) = %d, want -1", got)
	}
}

func TestStrlenRejectsNul(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := StrNew(mrb, nil, 2)
	_, raised := mrb.Protect(func() vm.Value {
		StrStrlen(mrb, s)
		return vm.Nil
	})
	if raised == nil || raised.Class != mrb.ArgumentErrorClass {
		t.Errorf("raised = %v, want ArgumentError", raised)
	}
}

func TestStrSubstr(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "hello")
	tests := []struct {
		beg, length vm.Int
		want        string
		isNil       bool
	}{
		{10, 5, "", true},
		{5, 1, "", false},
		{1, 2, "el", false},
		{-3, 2, "ll", false},
		{2, 100, "llo", false},
		{-6, 1, "", true},
		{0, -1, "", true},
	}
	for _, tt := range tests {
		v := StrSubstr(mrb, s, tt.beg, tt.length)
		if tt.isNil {
			if v != vm.Nil {
				t.Errorf("StrSubstr(%d, %d) = %q, want nil", tt.beg, tt.length, goString(t, mrb, v))
			}
			continue
		}
		if v == vm.Nil {
			t.Errorf("StrSubstr(%d, %d) = nil, want %q", tt.beg, tt.length, tt.want)
			continue
		}
		if got := goString(t, mrb, v); got != tt.want {
			t.Errorf("StrSubstr(%d, %d) = %q, want %q", tt.beg, tt.length, got, tt.want)
		}
	}
	if v := StrSubstr(mrb, vm.Nil, 0, 1); v != vm.Nil {
		t.Errorf("StrSubstr(nil) = %v, want nil", v)
	}
}

func TestStrAref(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "hello")
	tests := []struct {
		name        string
		indx, alen  vm.Value
		want        string
		isNil       bool
	}{
		{"index", vm.FromSmallInt(1), vm.Undef, "e", false},
		{"negative index", vm.FromSmallInt(-1), vm.Undef, "o", false},
		{"float index", vm.FromFloat64(1.9), vm.Undef, "e", false},
		{"index past end", vm.FromSmallInt(5), vm.Undef, "", true},
		{"index and length", vm.FromSmallInt(1), vm.FromSmallInt(3), "ell", false},
		{"start at end", vm.FromSmallInt(5), vm.FromSmallInt(3), "", false},
		{"needle", newStr(mrb, "ll"), vm.Undef, "ll", false},
		{"missing needle", newStr(mrb, "zz"), vm.Undef, "", true},
		{"bad index type", vm.Nil, vm.Undef, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := StrAref(mrb, s, tt.indx, tt.alen)
			if tt.isNil {
				if v != vm.Nil {
					t.Errorf("StrAref = %v, want nil", v)
				}
				return
			}
			if v == vm.Nil {
				t.Fatalf("StrAref = nil, want %q", tt.want)
			}
			if got := goString(t, mrb, v); got != tt.want {
				t.Errorf("StrAref = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

func TestStrResize(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "hello")
	before := native(t, mrb, s).Cap()

	if got := StrResize(mrb, s, 2); got != s {
		t.Errorf("StrResize returned %v, want receiver", got)
	}
	after := native(t, mrb, s)
	if after.GoString() != "he" || after.Cap() != before {
		t.Errorf("truncate: %q cap %d, want \"he\" cap %d", after.GoString(), after.Cap(), before)
	}

	StrResize(mrb, s, 5)
	if got := goString(t, mrb, s); got != "he\x00\x00\x00" {
		t.Errorf("grow: %q, want zero fill", got)
	}

	if got := StrResize(mrb, s, -1); got != s || goString(t, mrb, s) != "he\x00\x00\x00" {
		t.Error("negative length changed the string")
	}
	if got := StrResize(mrb, vm.FromSmallInt(4), 10); got != vm.FromSmallInt(4) {
		t.Errorf("StrResize(non-string) = %v, want input", got)
	}
}

// TestStrResizeHugeIsNoMemory verifies that a failed resize raises and leaves
// the string attached and unchanged.
func TestStrResizeHugeIsNoMemory(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := StrNewCapa(mrb, 0)
	raised := raises(t, mrb, func() vm.Value { return StrResize(mrb, s, math.MaxInt64) })
	wantClass(t, raised, mrb.NoMemoryErrorClass)
	if raised.Message != "out of memory" {
		t.Errorf("Message = %q", raised.Message)
	}
	if mrb.Heap().Detached() != 0 {
		t.Error("string left detached after failed resize")
	}
	if got := goString(t, mrb, s); got != "" {
		t.Errorf("failed resize changed the string: %q", got)
	}
}

// TestResizeBeyondMemoryIsNoMemory verifies that sizes between physical
// memory and the old address-space ceiling raise instead of aborting.
func TestResizeBeyondMemoryIsNoMemory(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "abc")
	for _, n := range []vm.Int{1 << 42, 1 << 46} {
		wantClass(t, raises(t, mrb, func() vm.Value { return StrResize(mrb, s, n) }), mrb.NoMemoryErrorClass)
		wantClass(t, raises(t, mrb, func() vm.Value { return StrNewCapa(mrb, n) }), mrb.NoMemoryErrorClass)
	}
	if got := goString(t, mrb, s); got != "abc" {
		t.Errorf("failed resize changed the string: %q", got)
	}
	if mrb.Heap().Detached() != 0 {
		t.Error("string left detached after failed resize")
	}
}

func TestStrCat(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "foo")
	tail := []byte("barbaz")
	if got := StrCat(mrb, s, &tail[0], 3); got != s {
		t.Errorf("StrCat returned %v, want receiver", got)
	}
	StrCatCstr(mrb, s, cstring("!"))
	if got := goString(t, mrb, s); got != "foobar!" {
		t.Errorf("after cat = %q", got)
	}
	if got := StrCat(mrb, vm.Nil, &tail[0], 3); got != vm.Nil {
		t.Errorf("StrCat(nil) = %v, want nil", got)
	}
}

// TestStrCatDowngradesEncoding verifies that appending invalid UTF-8 retags the
// receiver as binary.
func TestStrCatDowngradesEncoding(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "ok")
	bad := []byte{0xff}
	StrCat(mrb, s, &bad[0], 1)
	if enc := native(t, mrb, s).Encoding(); enc != str.EncodingBinary {
		t.Errorf("encoding = %v, want Binary", enc)
	}
}

func TestStrCatStrAndAppend(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "ab")
	StrCatStr(mrb, s, newStr(mrb, "cd"))
	StrAppend(mrb, s, s)
	if got := goString(t, mrb, s); got != "abcdabcd" {
		t.Errorf("after append = %q", got)
	}

	wantClass(t, raises(t, mrb, func() vm.Value { return StrCatStr(mrb, s, vm.FromSmallInt(1)) }), mrb.TypeErrorClass)
	wantClass(t, raises(t, mrb, func() vm.Value { return StrAppend(mrb, vm.Nil, s) }), mrb.TypeErrorClass)
}

func TestStrConcat(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	a := newStr(mrb, "a")
	StrConcat(mrb, a, newStr(mrb, "b"))
	if got := goString(t, mrb, a); got != "ab" {
		t.Errorf("after concat = %q", got)
	}
	raised := raises(t, mrb, func() vm.Value {
		StrConcat(mrb, a, vm.True)
		return vm.Nil
	})
	wantClass(t, raised, mrb.TypeErrorClass)
	if !strings.Contains(raised.Message, "true") {
		t.Errorf("Message = %q, want it to name the argument", raised.Message)
	}
}

// ---------------------------------------------------------------------------
// Derived strings
// ---------------------------------------------------------------------------

func TestStrPlusKeepsLeftEncoding(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	bin := []byte{0xff}
	left := StrNew(mrb, &bin[0], 1)
	v := StrPlus(mrb, left, newStr(mrb, "a"))
	got := native(t, mrb, v)
	if got.GoString() != "\xffa" || got.Encoding() != str.EncodingBinary {
		t.Errorf("StrPlus = %q (%v), want \"\\xffa\" Binary", got.GoString(), got.Encoding())
	}

	v = StrPlus(mrb, newStr(mrb, "a"), newStr(mrb, "b"))
	if enc := native(t, mrb, v).Encoding(); enc != str.EncodingUTF8 {
		t.Errorf("encoding = %v, want UTF-8", enc)
	}
	if v := StrPlus(mrb, left, vm.FromSmallInt(1)); v != vm.Nil {
		t.Errorf("StrPlus(non-string) = %v, want nil", v)
	}
}

// TestStrDupPreservesClass verifies that a duplicate keeps the receiver's
// subclass.
func TestStrDupPreservesClass(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	sub, err := mrb.DefineClass("Name", mrb.StringClass)
	if err != nil {
		t.Fatal(err)
	}
	g := mrb.Lock()
	s, err := convert.AllocStringWithClass(str.FromString("bob"), sub, g)
	g.Release()
	if err != nil {
		t.Fatal(err)
	}

	dup := StrDup(mrb, s)
	if dup == s {
		t.Fatal("StrDup returned the receiver")
	}
	if mrb.ClassOf(dup) != sub {
		t.Errorf("ClassOf(dup) = %v, want %v", mrb.ClassOf(dup), sub)
	}
	if goString(t, mrb, dup) != "bob" {
		t.Errorf("dup = %q", goString(t, mrb, dup))
	}
	StrCat(mrb, dup, cstring("by"), 2)
	if goString(t, mrb, s) != "bob" {
		t.Error("dup shares its buffer with the source")
	}
	if v := StrDup(mrb, vm.Nil); v != vm.Nil {
		t.Errorf("StrDup(nil) = %v, want nil", v)
	}
}

func TestStrInspect(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	got := goString(t, mrb, StrInspect(mrb, newStr(mrb, "a\"b\n")))
	if want := `"a\"b\n"`; got != want {
		t.Errorf("StrInspect = %s, want %s", got, want)
	}
	if v := StrInspect(mrb, vm.FromSmallInt(1)); v != vm.Nil {
		t.Errorf("StrInspect(non-string) = %v, want nil", v)
	}
}

// ---------------------------------------------------------------------------
// Comparison and hashing
// ---------------------------------------------------------------------------

func TestStrCmpAndEqual(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	a, b := newStr(mrb, "a"), newStr(mrb, "b")
	bin := []byte("a")
	aBinary := StrNew(mrb, &bin[0], 1)
	g := mrb.LockSentinel()
	convert.Mutate(g, aBinary, func(s *str.String) error {
		s.SetEncoding(str.EncodingBinary)
		return nil
	})
	g.Release()

	tests := []struct {
		x, y vm.Value
		cmp  int
		eq   bool
	}{
		{a, b, -1, false},
		{b, a, 1, false},
		{a, aBinary, 0, true},
		{a, vm.Nil, -1, false},
		{vm.FromSmallInt(1), a, -1, false},
	}
	for i, tt := range tests {
		if got := StrCmp(mrb, tt.x, tt.y); got != tt.cmp {
			t.Errorf("%d: StrCmp = %d, want %d", i, got, tt.cmp)
		}
		if got := StrEqual(mrb, tt.x, tt.y); got != tt.eq {
			t.Errorf("%d: StrEqual = %v, want %v", i, got, tt.eq)
		}
	}
}

func TestStrHash(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	a, b := newStr(mrb, "key"), newStr(mrb, "key")
	if StrHash(mrb, a) != StrHash(mrb, b) {
		t.Error("equal strings hash differently")
	}
	if StrHash(mrb, vm.Nil) != 0 {
		t.Error("StrHash(nil) != 0")
	}
}

// ---------------------------------------------------------------------------
// C string views
// ---------------------------------------------------------------------------

func TestStringCstrIsIdempotent(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	s := newStr(mrb, "abc")
	p1 := StringCstr(mrb, s)
	if p1 == nil {
		t.Fatal("StringCstr = nil")
	}
	if got := cstrLen(p1); got != 3 {
		t.Errorf("C string length = %d, want 3", got)
	}
	p2 := StringCstr(mrb, s)
	if p1 != p2 {
		t.Error("second StringCstr returned a different pointer")
	}
	if n := native(t, mrb, s).Len(); n != 4 {
		t.Errorf("Len() = %d after two calls, want 4", n)
	}

	p3 := StringValueCstr(mrb, &s)
	if p3 != p1 {
		t.Error("StringValueCstr returned a different pointer")
	}
	if StringValueCstr(mrb, nil) != nil {
		t.Error("StringValueCstr(nil) != nil")
	}
	if StringCstr(mrb, vm.FromSmallInt(2)) != nil {
		t.Error("StringCstr(non-string) != nil")
	}
}

// ---------------------------------------------------------------------------
// Finalizer
// ---------------------------------------------------------------------------

func TestGCFreeStr(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	if !mrb.Collector().HasFinalizer(vm.TTString) {
		t.Fatal("string finalizer not installed")
	}

	idx := mrb.ArenaSave()
	v := newStr(mrb, "garbage")
	obj, err := mrb.Heap().Lookup(v)
	if err != nil {
		t.Fatal(err)
	}
	r := obj.(*vm.RString)
	if mrb.Heap().Stats().StringBytes == 0 {
		t.Fatal("StringBytes = 0 with a live string")
	}

	mrb.ArenaRestore(idx)
	mrb.GC()
	if r.Ptr != nil || r.Len != 0 || r.Capa != 0 {
		t.Errorf("slot still holds its buffer: %+v", r)
	}
	if b := mrb.Heap().Stats().StringBytes; b != 0 {
		t.Errorf("StringBytes = %d after collection, want 0", b)
	}
	if _, err := mrb.Heap().Lookup(v); err == nil {
		t.Error("collected string still resolves")
	}
}

func TestGCFreeStrKeepsRooted(t *testing.T) {
	mrb := openTest(t, vm.Options{})
	idx := mrb.ArenaSave()
	v := newStr(mrb, "kept")
	mrb.SetGlobal("$kept", v)
	mrb.ArenaRestore(idx)
	mrb.GC()
	if got := goString(t, mrb, v); got != "kept" {
		t.Errorf("rooted string = %q", got)
	}
}

// TestGCFreeStrNil verifies that nil and inconsistent slots are cleared
// without touching the buffer.
func TestGCFreeStrNil(t *testing.T) {
	GCFreeStr(nil, nil)
	r := &vm.RString{Len: 5, Capa: 2}
	GCFreeStr(nil, r)
	if r.Len != 0 || r.Capa != 0 {
		t.Errorf("inconsistent slot not cleared: %+v", r)
	}
}

func TestValidParts(t *testing.T) {
	b := make([]byte, 4, 8)
	tests := []struct {
		r    vm.RString
		want bool
	}{
		{vm.RString{}, true},
		{vm.RString{Ptr: &b[0], Len: 4, Capa: 8}, true},
		{vm.RString{Ptr: &b[0], Len: 9, Capa: 8}, false},
		{vm.RString{Len: 0, Capa: 8}, false},
		{vm.RString{Ptr: &b[0], Len: -1, Capa: 8}, false},
	}
	for i, tt := range tests {
		if got := validParts(&tt.r); got != tt.want {
			t.Errorf("case %d: validParts(%+v) = %v, want %v", i, tt.r, got, tt.want)
		}
	}
}

func TestOpenDefaults(t *testing.T) {
	mrb, err := Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer mrb.Close()
	if !mrb.Collector().HasFinalizer(vm.TTString) {
		t.Error("Open did not install the string finalizer")
	}
	if v := StrNewCstr(mrb, cstring("x")); goString(t, mrb, v) != "x" {
		t.Error("interpreter from Open is not usable")
	}
}
