package vm

import "errors"

// ---------------------------------------------------------------------------
// Guard: exclusive borrow of the interpreter for one boundary call
// ---------------------------------------------------------------------------

// ErrGuardHeld is the panic value raised when a second guard is acquired
// on an interpreter that already has a live one.
var ErrGuardHeld = errors.New("vm: interpreter guard already held")

// HeapGuard is the capability the boxing layer needs: access to the heap
// and the interpreter, without any way to raise.
type HeapGuard interface {
	Interp() *Interpreter
	Heap() *Heap
}

// Guard is a live, exclusive borrow of an interpreter by a call that may
// raise. At most one Guard or SentinelGuard is live per interpreter.
// Release is idempotent so callers can defer it and still release early.
type Guard struct {
	mrb      *Interpreter
	released bool
}

// Lock acquires the interpreter's guard. Panics with ErrGuardHeld if a
// guard is already live.
func (mrb *Interpreter) Lock() *Guard {
	mrb.acquire()
	return &Guard{mrb: mrb}
}

func (mrb *Interpreter) acquire() {
	if mrb.guardHeld {
		panic(ErrGuardHeld)
	}
	mrb.guardHeld = true
}

// GuardHeld reports whether a guard is currently live.
func (mrb *Interpreter) GuardHeld() bool { return mrb.guardHeld }

// Interp returns the guarded interpreter.
func (g *Guard) Interp() *Interpreter { return g.mrb }

// Heap returns the guarded interpreter's heap.
func (g *Guard) Heap() *Heap { return g.mrb.heap }

// Release gives the interpreter back.
func (g *Guard) Release() {
	if !g.released {
		g.released = true
		g.mrb.guardHeld = false
	}
}

// Raise converts err into an exception object, releases the guard and
// unwinds with a *RaisedException panic. It never returns.
func (g *Guard) Raise(err error) {
	g.Release()
	g.mrb.raise(err)
}

// SentinelGuard is a guard for calls whose failures are reported through
// a sentinel return value. It has no Raise method.
type SentinelGuard struct {
	mrb      *Interpreter
	released bool
}

// LockSentinel acquires the interpreter's guard for a non-raising call.
// Panics with ErrGuardHeld if a guard is already live.
func (mrb *Interpreter) LockSentinel() *SentinelGuard {
	mrb.acquire()
	return &SentinelGuard{mrb: mrb}
}

// Interp returns the guarded interpreter.
func (g *SentinelGuard) Interp() *Interpreter { return g.mrb }

// Heap returns the guarded interpreter's heap.
func (g *SentinelGuard) Heap() *Heap { return g.mrb.heap }

// Release gives the interpreter back.
func (g *SentinelGuard) Release() {
	if !g.released {
		g.released = true
		g.mrb.guardHeld = false
	}
}
