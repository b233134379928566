package vm

import (
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Collector: synchronous mark/sweep over the slot heap
// ---------------------------------------------------------------------------

// Finalizer releases the native contents of an unreachable slot. It runs
// during sweep and must not allocate on the heap.
type Finalizer func(mrb *Interpreter, obj RObject)

// GCStats holds statistics from a single collection.
type GCStats struct {
	Marked    int
	Freed     int
	Live      int
	Duration  time.Duration
	Timestamp time.Time
}

// Collector reclaims slots that are unreachable from the interpreter's
// roots: the GC arena, registered roots, globals, the pending exception
// and the preallocated out-of-memory error. Collection runs on explicit
// request, every gc-step allocations and at Close.
type Collector struct {
	mrb        *Interpreter
	finalizers [numTTypes]Finalizer
	enabled    atomic.Bool
	log        commonlog.Logger

	runs      atomic.Uint64
	freed     atomic.Uint64
	lastStats atomic.Pointer[GCStats]
}

func newCollector(mrb *Interpreter) *Collector {
	c := &Collector{
		mrb: mrb,
		log: commonlog.GetLogger("ferry.gc"),
	}
	c.enabled.Store(true)
	c.finalizers[TTData] = freeData
	return c
}

// SetFinalizer installs fn as the finalizer for slots tagged tt.
func (c *Collector) SetFinalizer(tt TType, fn Finalizer) {
	c.finalizers[tt] = fn
}

// HasFinalizer reports whether a finalizer is installed for tt.
func (c *Collector) HasFinalizer(tt TType) bool {
	return c.finalizers[tt] != nil
}

// SetEnabled enables or disables automatic collection (mrb_gc_disable).
// Explicit collections still run while disabled.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// IsEnabled returns whether automatic collection is enabled.
func (c *Collector) IsEnabled() bool {
	return c.enabled.Load()
}

// Runs returns the total number of collections performed.
func (c *Collector) Runs() uint64 { return c.runs.Load() }

// FreedTotal returns the total number of slots reclaimed.
func (c *Collector) FreedTotal() uint64 { return c.freed.Load() }

// LastStats returns statistics from the most recent collection, or nil if
// none has run yet.
func (c *Collector) LastStats() *GCStats { return c.lastStats.Load() }

// collect performs one full mark/sweep cycle.
func (c *Collector) collect() *GCStats {
	h := c.mrb.heap
	if h.detached > 0 {
		panic(ErrDetachedAlloc)
	}
	start := time.Now()
	stats := &GCStats{Timestamp: start}

	// Mark
	stack := make([]Value, 0, len(h.arena)+len(h.roots)+len(c.mrb.Globals)+2)
	stack = append(stack, h.arena...)
	stack = append(stack, h.roots...)
	for _, v := range c.mrb.Globals {
		stack = append(stack, v)
	}
	stack = append(stack, c.mrb.exc, c.mrb.nomemErr)
	mark := func(v Value) { stack = append(stack, v) }

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !v.IsObject() {
			continue
		}
		obj, ok := h.slots[v.Handle()]
		if !ok {
			continue
		}
		b := obj.Basic()
		if b.marked {
			continue
		}
		b.marked = true
		stats.Marked++

		if d, ok := obj.(*RData); ok && d.Type != nil && d.Type.Mark != nil {
			d.Type.Mark(c.mrb, d.Ptr, mark)
		}
	}

	// Sweep
	for hnd, obj := range h.slots {
		b := obj.Basic()
		if b.marked {
			b.marked = false
			continue
		}
		c.free(obj)
		delete(h.slots, hnd)
		stats.Freed++
	}
	h.sinceGC = 0

	stats.Live = len(h.slots)
	stats.Duration = time.Since(start)
	c.runs.Add(1)
	c.freed.Add(uint64(stats.Freed))
	c.lastStats.Store(stats)
	c.log.Debugf("collected: marked %d, freed %d, live %d in %s", stats.Marked, stats.Freed, stats.Live, stats.Duration)
	return stats
}

// freeAll finalizes every slot in handle order. Used at Close.
func (c *Collector) freeAll() int {
	h := c.mrb.heap
	n := 0
	h.Each(func(obj RObject) {
		c.free(obj)
		n++
	})
	clear(h.slots)
	clear(h.arena)
	h.arena = h.arena[:0]
	h.roots = nil
	c.freed.Add(uint64(n))
	return n
}

// free runs the finalizer for one slot and updates heap accounting.
func (c *Collector) free(obj RObject) {
	h := c.mrb.heap
	if r, ok := obj.(*RString); ok {
		h.stringBytes.Add(-r.Capa)
	}
	if fn := c.finalizers[obj.Basic().TT]; fn != nil {
		fn(c.mrb, obj)
	}
	h.live.Add(-1)
}

// freeData is the default TTData finalizer: it hands the wrapped value to
// the DataType's Free callback.
func freeData(mrb *Interpreter, obj RObject) {
	d, ok := obj.(*RData)
	if !ok {
		return
	}
	if d.Type != nil && d.Type.Free != nil && d.Ptr != nil {
		d.Type.Free(mrb, d.Ptr)
	}
	d.Ptr = nil
}
