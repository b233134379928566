// Package ffi is the boundary layer between the interpreter's C-shaped
// string API and the native string engine.
//
// Every entry point takes the interpreter first, decodes its arguments
// into Values, borrows the interpreter through a guard, delegates to the
// convert and str packages and converts the result back. Entry points
// come in two kinds. Raising entry points run under a *vm.Guard and turn
// failures into interpreter exceptions, unwinding with a
// *vm.RaisedException panic that vm.Interpreter.Protect recovers.
// Sentinel entry points run under a *vm.SentinelGuard, which cannot raise,
// and report failure through a fixed return value such as -1, false or a
// nil pointer.
package ffi

import (
	"errors"

	"github.com/tliron/commonlog"

	"github.com/chazu/ferry/convert"
	"github.com/chazu/ferry/str"
	"github.com/chazu/ferry/vm"
)

var log = commonlog.GetLogger("ferry.ffi")

// ---------------------------------------------------------------------------
// Capability helpers
// ---------------------------------------------------------------------------

// raising runs fn under an exclusive guard. A non-nil error is raised into
// the interpreter and does not return. A nil or closed interpreter yields
// or without running fn.
func raising[T any](mrb *vm.Interpreter, or T, fn func(g *vm.Guard) (T, error)) T {
	if mrb == nil || mrb.Closed() {
		return or
	}
	g := mrb.Lock()
	defer g.Release()

	result, err := fn(g)
	if err != nil {
		err = exceptionFor(err)
		log.Debugf("raising %T: %s", err, err)
		g.Raise(err)
	}
	return result
}

// sentinel runs fn under a guard that has no way to raise. A nil or
// closed interpreter yields or without running fn.
func sentinel[T any](mrb *vm.Interpreter, or T, fn func(g *vm.SentinelGuard) T) T {
	if mrb == nil || mrb.Closed() {
		return or
	}
	g := mrb.LockSentinel()
	defer g.Release()
	return fn(g)
}

// ---------------------------------------------------------------------------
// Error translation
// ---------------------------------------------------------------------------

// exceptionFor maps native errors onto interpreter exception types.
func exceptionFor(err error) error {
	var (
		exc     vm.Exception
		reserve *str.TryReserveError
		number  *str.NumberError
	)
	switch {
	case errors.As(err, &exc):
		return err
	case errors.As(err, &reserve):
		return &vm.NoMemoryError{Msg: "out of memory"}
	case errors.Is(err, str.ErrIllegalRadix):
		return &vm.ArgumentError{Msg: err.Error()}
	case errors.As(err, &number):
		return &vm.ArgumentError{Msg: number.Error()}
	case errors.Is(err, convert.ErrTypeMismatch):
		return &vm.TypeError{Msg: err.Error()}
	}
	return err
}

// notAString builds the TypeError for a non-string argument.
func notAString(mrb *vm.Interpreter, v vm.Value) error {
	return vm.TypeErrorf("no implicit conversion of %s into String", typeName(mrb, v))
}

func typeName(mrb *vm.Interpreter, v vm.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v == vm.True:
		return "true"
	case v == vm.False:
		return "false"
	}
	if c := mrb.ClassOf(v); c != nil {
		return c.Name
	}
	return v.Type().String()
}
