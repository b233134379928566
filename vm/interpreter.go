package vm

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Interpreter: the host VM state (mrb_state)
// ---------------------------------------------------------------------------

// Options configures a new interpreter. Zero values select defaults.
type Options struct {
	// MaxSlots caps the number of live heap slots; 0 means unlimited.
	MaxSlots int
	// GCStep runs a collection every GCStep allocations; 0 disables
	// step-triggered collection.
	GCStep int
	// MaxStringCapacity caps a single string buffer in bytes; 0 selects
	// the string engine's own ceiling.
	MaxStringCapacity int
}

// ErrClosed is returned by operations on a closed interpreter.
var ErrClosed = errors.New("vm: interpreter closed")

// Interpreter owns object identity and memory reclamation for every value
// it hands out. It is single-threaded: callers serialize access through
// Guards.
type Interpreter struct {
	Classes   *ClassTable
	Symbols   *SymbolTable
	DataTypes *DataTypeRegistry
	Globals   map[string]Value

	// Core classes
	ObjectClass        *Class
	StringClass        *Class
	ExceptionClass     *Class
	StandardErrorClass *Class
	RuntimeErrorClass  *Class
	ArgumentErrorClass *Class
	TypeErrorClass     *Class
	RangeErrorClass    *Class
	NoMemoryErrorClass *Class

	heap *Heap
	gc   *Collector
	log  commonlog.Logger

	guardHeld         bool
	exc               Value
	nomemErr          Value
	maxStringCapacity int
	closed            bool
}

// Open creates an interpreter with the core classes defined and the
// out-of-memory exception preallocated.
func Open(opts Options) (*Interpreter, error) {
	if opts.MaxSlots < 0 || opts.GCStep < 0 || opts.MaxStringCapacity < 0 {
		return nil, fmt.Errorf("vm: negative option in %+v", opts)
	}
	mrb := &Interpreter{
		Classes:           NewClassTable(),
		Symbols:           NewSymbolTable(),
		DataTypes:         NewDataTypeRegistry(),
		Globals:           make(map[string]Value),
		log:               commonlog.GetLogger("ferry.vm"),
		exc:               Nil,
		nomemErr:          Nil,
		maxStringCapacity: opts.MaxStringCapacity,
	}
	mrb.gc = newCollector(mrb)
	mrb.heap = newHeap(mrb, opts.MaxSlots, opts.GCStep)

	mrb.ObjectClass = mrb.mustDefine("Object", nil)
	mrb.StringClass = mrb.mustDefine("String", mrb.ObjectClass)
	mrb.StringClass.InstanceTT = TTString
	mrb.bootstrapExceptionClasses()

	// Raising NoMemoryError must never allocate, so its object exists
	// before anything else and is always a root.
	v, err := mrb.heap.NewException(mrb.NoMemoryErrorClass, "out of memory")
	if err != nil {
		return nil, fmt.Errorf("vm: preallocate NoMemoryError: %w", err)
	}
	mrb.nomemErr = v
	mrb.heap.ArenaRestore(0)

	mrb.log.Debugf("opened interpreter: max slots %d, gc step %d", opts.MaxSlots, opts.GCStep)
	return mrb, nil
}

// Close finalizes every live slot. The interpreter must not be used
// afterwards. Close is idempotent.
func (mrb *Interpreter) Close() error {
	if mrb.closed {
		return nil
	}
	if mrb.guardHeld {
		return fmt.Errorf("vm: close with live guard: %w", ErrGuardHeld)
	}
	if mrb.heap.detached > 0 {
		return fmt.Errorf("vm: close with %d detached slots: %w", mrb.heap.detached, ErrDetachedAlloc)
	}
	n := mrb.gc.freeAll()
	mrb.closed = true
	mrb.exc, mrb.nomemErr = Nil, Nil
	clear(mrb.Globals)
	mrb.log.Debugf("closed interpreter: finalized %d slots", n)
	return nil
}

// Closed reports whether Close has run.
func (mrb *Interpreter) Closed() bool { return mrb.closed }

// Heap returns the slot heap.
func (mrb *Interpreter) Heap() *Heap { return mrb.heap }

// Collector returns the garbage collector.
func (mrb *Interpreter) Collector() *Collector { return mrb.gc }

// MaxStringCapacity returns the configured per-string ceiling, or 0 if
// none was set.
func (mrb *Interpreter) MaxStringCapacity() int { return mrb.maxStringCapacity }

// GC runs a full collection (mrb_full_gc). Panics with ErrDetachedAlloc if
// a slot is detached.
func (mrb *Interpreter) GC() *GCStats {
	return mrb.gc.collect()
}

// ArenaSave returns the current GC arena index.
func (mrb *Interpreter) ArenaSave() int { return mrb.heap.ArenaSave() }

// ArenaRestore releases arena protection above idx.
func (mrb *Interpreter) ArenaRestore(idx int) { mrb.heap.ArenaRestore(idx) }

// GCRegister roots v until GCUnregister.
func (mrb *Interpreter) GCRegister(v Value) { mrb.heap.Register(v) }

// GCUnregister removes one registration of v.
func (mrb *Interpreter) GCUnregister(v Value) { mrb.heap.Unregister(v) }

// SetGlobal binds a global variable. Globals are GC roots.
func (mrb *Interpreter) SetGlobal(name string, v Value) { mrb.Globals[name] = v }

// Global returns a global variable, or Nil if unbound.
func (mrb *Interpreter) Global(name string) Value {
	if v, ok := mrb.Globals[name]; ok {
		return v
	}
	return Nil
}

// Intern returns the symbol value for name (mrb_intern).
func (mrb *Interpreter) Intern(name string) Value {
	return mrb.Symbols.SymbolValue(name)
}

// SymbolName returns the name of a symbol value.
func (mrb *Interpreter) SymbolName(v Value) string {
	if !v.IsSymbol() {
		return ""
	}
	return mrb.Symbols.Name(v.SymbolID())
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// DefineClass defines (or reopens) a class under super (mrb_define_class).
// Instances inherit super's type tag, so subclasses of String are strings.
func (mrb *Interpreter) DefineClass(name string, super *Class) (*Class, error) {
	if super == nil {
		super = mrb.ObjectClass
	}
	c, err := mrb.Classes.Define(NewClass(name, super))
	if err != nil {
		return nil, err
	}
	mrb.log.Debugf("defined class %s < %s", c.Name, super.Name)
	return c, nil
}

// DefineDataClass defines a class whose instances are RData slots of
// type dt and registers dt.
func (mrb *Interpreter) DefineDataClass(name string, dt *DataType) (*Class, error) {
	c, err := mrb.DefineClass(name, mrb.ObjectClass)
	if err != nil {
		return nil, err
	}
	c.InstanceTT = TTData
	dt.Class = c
	if _, err := mrb.DataTypes.Register(dt); err != nil {
		return nil, err
	}
	return c, nil
}

func (mrb *Interpreter) mustDefine(name string, super *Class) *Class {
	c, err := mrb.Classes.Define(NewClass(name, super))
	if err != nil {
		panic(err)
	}
	return c
}

// ClassOf returns the dynamic class of v (mrb_class). Immediates have no
// class in this VM and report nil; stale references report nil as well.
func (mrb *Interpreter) ClassOf(v Value) *Class {
	obj, err := mrb.heap.Lookup(v)
	if err != nil {
		return nil
	}
	return obj.Basic().C
}
