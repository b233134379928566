package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Heap slots
// ---------------------------------------------------------------------------

// RObject is implemented by every heap slot type.
type RObject interface {
	Basic() *RBasic
}

// RBasic is the header shared by all heap slots: dynamic class, type tag
// and flag word. Native types keep private state in Flags (the string
// layer packs its encoding there).
type RBasic struct {
	C     *Class
	TT    TType
	Flags uint32

	handle   Handle
	marked   bool
	detached bool
}

// Basic returns the slot header.
func (b *RBasic) Basic() *RBasic { return b }

// Handle returns the slot's handle.
func (b *RBasic) Handle() Handle { return b.handle }

// Value returns a heap reference to the slot.
func (b *RBasic) Value() Value { return FromHeapRef(b.TT, b.handle) }

// Detached reports whether the slot's native contents are currently
// checked out by a boxing call.
func (b *RBasic) Detached() bool { return b.detached }

// RString is a string slot. Ptr, Len and Capa are the RawParts of the
// native buffer; the slot owns the buffer while it is attached.
type RString struct {
	RBasic
	Ptr  *byte
	Len  Int
	Capa Int
}

// Bytes returns a view of the string's contents. The view aliases the
// slot's buffer and is invalidated by the next mutation.
func (r *RString) Bytes() []byte {
	if r.Ptr == nil || r.Len == 0 {
		return nil
	}
	return unsafe.Slice(r.Ptr, r.Capa)[:r.Len]
}

// RInstance is a plain object slot with no native payload.
type RInstance struct {
	RBasic
}

// RException is an exception slot. The message is held natively so that
// raising never needs a second allocation.
type RException struct {
	RBasic
	Message string
}

// RData is a slot wrapping an arbitrary native value described by a
// DataType (mrb_data_object_alloc).
type RData struct {
	RBasic
	Ptr  any
	Type *DataType
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

var (
	// ErrDetachedAlloc is the panic value raised when the heap is asked to
	// allocate or collect while a slot's contents are detached.
	ErrDetachedAlloc = errors.New("vm: heap allocation while a slot is detached")

	// ErrInvalidHandle reports a heap reference whose slot was collected.
	ErrInvalidHandle = errors.New("vm: invalid heap handle")

	// ErrNotHeapRef reports an immediate where a heap reference was needed.
	ErrNotHeapRef = errors.New("vm: value is not a heap reference")
)

// HeapStats is a point-in-time view of heap occupancy. It is safe to read
// from any goroutine.
type HeapStats struct {
	LiveSlots   int64
	StringBytes int64
	Allocated   uint64
	MaxSlots    int
}

// Heap is the interpreter's slot heap. Slots are addressed by handle;
// freshly allocated values are protected by the GC arena until the caller
// restores it.
type Heap struct {
	mrb      *Interpreter
	slots    map[Handle]RObject
	next     Handle
	maxSlots int
	gcStep   int
	sinceGC  int
	arena    []Value
	roots    []Value
	detached int

	live        atomic.Int64
	stringBytes atomic.Int64
	allocated   atomic.Uint64
}

func newHeap(mrb *Interpreter, maxSlots, gcStep int) *Heap {
	return &Heap{
		mrb:      mrb,
		slots:    make(map[Handle]RObject),
		maxSlots: maxSlots,
		gcStep:   gcStep,
		arena:    make([]Value, 0, 64),
	}
}

// alloc installs obj in a fresh slot of class c with tag tt.
func (h *Heap) alloc(obj RObject, c *Class, tt TType) (Value, error) {
	if h.detached > 0 {
		panic(ErrDetachedAlloc)
	}
	gc := h.mrb.gc
	if h.gcStep > 0 && gc.IsEnabled() {
		h.sinceGC++
		if h.sinceGC >= h.gcStep {
			gc.collect()
		}
	}
	if h.maxSlots > 0 && len(h.slots) >= h.maxSlots {
		if gc.IsEnabled() {
			gc.collect()
		}
		if len(h.slots) >= h.maxSlots {
			return Nil, &NoMemoryError{Msg: fmt.Sprintf("heap exhausted (%d slots)", h.maxSlots)}
		}
	}
	if h.next >= MaxHandle {
		return Nil, &NoMemoryError{Msg: "heap handles exhausted"}
	}
	h.next++

	b := obj.Basic()
	b.C = c
	b.TT = tt
	b.handle = h.next
	h.slots[b.handle] = obj

	v := FromHeapRef(tt, b.handle)
	h.arena = append(h.arena, v)
	h.live.Add(1)
	h.allocated.Add(1)
	return v, nil
}

// NewString allocates an empty string slot of class c.
func (h *Heap) NewString(c *Class) (*RString, Value, error) {
	r := &RString{}
	v, err := h.alloc(r, c, TTString)
	if err != nil {
		return nil, Nil, err
	}
	return r, v, nil
}

// NewObject allocates a plain object slot of class c.
func (h *Heap) NewObject(c *Class) (Value, error) {
	return h.alloc(&RInstance{}, c, TTObject)
}

// NewException allocates an exception slot of class c carrying msg.
func (h *Heap) NewException(c *Class, msg string) (Value, error) {
	return h.alloc(&RException{Message: msg}, c, TTException)
}

// NewData allocates a data slot of class c wrapping ptr.
func (h *Heap) NewData(c *Class, typ *DataType, ptr any) (*RData, Value, error) {
	d := &RData{Ptr: ptr, Type: typ}
	v, err := h.alloc(d, c, TTData)
	if err != nil {
		return nil, Nil, err
	}
	return d, v, nil
}

// Lookup resolves a heap reference to its slot. Stale references report
// ErrInvalidHandle.
func (h *Heap) Lookup(v Value) (RObject, error) {
	if !v.IsObject() {
		return nil, ErrNotHeapRef
	}
	obj, ok := h.slots[v.Handle()]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrInvalidHandle, v.Handle())
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Detach / reattach
// ---------------------------------------------------------------------------

// Detach marks obj's native contents as checked out. While any slot is
// detached, allocation and collection panic with ErrDetachedAlloc.
func (h *Heap) Detach(obj RObject) {
	b := obj.Basic()
	if !b.detached {
		b.detached = true
		h.detached++
	}
}

// Reattach clears the detached mark set by Detach.
func (h *Heap) Reattach(obj RObject) {
	b := obj.Basic()
	if b.detached {
		b.detached = false
		h.detached--
	}
}

// Detached returns the number of currently detached slots.
func (h *Heap) Detached() int { return h.detached }

// SetStringParts installs a buffer's raw parts into a string slot and
// keeps the heap's byte accounting current.
func (h *Heap) SetStringParts(r *RString, ptr *byte, length, capa Int) {
	h.stringBytes.Add(capa - r.Capa)
	r.Ptr, r.Len, r.Capa = ptr, length, capa
}

// ---------------------------------------------------------------------------
// Arena and roots
// ---------------------------------------------------------------------------

// ArenaSave returns the current arena index (mrb_gc_arena_save).
func (h *Heap) ArenaSave() int { return len(h.arena) }

// ArenaRestore drops arena entries above idx (mrb_gc_arena_restore).
func (h *Heap) ArenaRestore(idx int) {
	if idx >= 0 && idx < len(h.arena) {
		clear(h.arena[idx:])
		h.arena = h.arena[:idx]
	}
}

// Protect pushes v onto the arena so it survives collection until the
// arena is restored below it (mrb_gc_protect).
func (h *Heap) Protect(v Value) {
	if v.IsObject() {
		h.arena = append(h.arena, v)
	}
}

// Register roots v until Unregister is called (mrb_gc_register).
func (h *Heap) Register(v Value) {
	if v.IsObject() {
		h.roots = append(h.roots, v)
	}
}

// Unregister removes one registration of v (mrb_gc_unregister).
func (h *Heap) Unregister(v Value) {
	for i, r := range h.roots {
		if r == v {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Len returns the number of live slots.
func (h *Heap) Len() int { return len(h.slots) }

// Stats returns current occupancy counters.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		LiveSlots:   h.live.Load(),
		StringBytes: h.stringBytes.Load(),
		Allocated:   h.allocated.Load(),
		MaxSlots:    h.maxSlots,
	}
}

// Each calls fn for every live slot in handle order.
func (h *Heap) Each(fn func(RObject)) {
	handles := make([]Handle, 0, len(h.slots))
	for hnd := range h.slots {
		handles = append(handles, hnd)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, hnd := range handles {
		fn(h.slots[hnd])
	}
}
