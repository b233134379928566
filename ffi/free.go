package ffi

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/chazu/ferry/config"
	"github.com/chazu/ferry/vm"
)

// GCFreeStr releases the buffer owned by a string slot (mrb_gc_free_str)
// by clearing the slot's pointer; the Go collector reclaims the bytes. The
// collector calls it for every unreachable string, during sweep and at
// Close. It runs mid-collection and never allocates on the heap. Slots
// whose length and capacity do not describe a valid buffer are logged.
func GCFreeStr(mrb *vm.Interpreter, r *vm.RString) {
	if r == nil {
		return
	}
	if !validParts(r) {
		log.Errorf("freeing corrupt string slot %d (len %d, capa %d)", r.Handle(), r.Len, r.Capa)
	}
	r.Ptr, r.Len, r.Capa = nil, 0, 0
}

// validParts reports whether r's fields describe a buffer FromRawParts
// would accept.
func validParts(r *vm.RString) bool {
	length, err := safecast.Conv[int](r.Len)
	if err != nil {
		return false
	}
	capacity, err := safecast.Conv[int](r.Capa)
	if err != nil {
		return false
	}
	return 0 <= length && length <= capacity && (r.Ptr != nil || capacity == 0)
}

func freeString(mrb *vm.Interpreter, obj vm.RObject) {
	if r, ok := obj.(*vm.RString); ok {
		GCFreeStr(mrb, r)
	}
}

// Install registers the string layer's finalizer with mrb's collector.
func Install(mrb *vm.Interpreter) {
	mrb.Collector().SetFinalizer(vm.TTString, freeString)
}

// Open opens an interpreter configured by cfg with the string layer
// installed. A nil cfg uses the defaults.
func Open(cfg *config.Config) (*vm.Interpreter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	opts, err := cfg.VMOptions()
	if err != nil {
		return nil, fmt.Errorf("ffi: %w", err)
	}
	return OpenWithOptions(opts)
}

// OpenWithOptions is Open with explicit interpreter options.
func OpenWithOptions(opts vm.Options) (*vm.Interpreter, error) {
	mrb, err := vm.Open(opts)
	if err != nil {
		return nil, err
	}
	Install(mrb)
	log.Debugf("opened interpreter (max slots %d, gc step %d)", opts.MaxSlots, opts.GCStep)
	return mrb, nil
}
