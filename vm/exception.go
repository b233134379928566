package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Exception errors
// ---------------------------------------------------------------------------

// Exception is a Go error that maps onto an interpreter exception class.
type Exception interface {
	error
	ExceptionClass() string
}

// TypeError is raised for a value of the wrong type.
type TypeError struct{ Msg string }

func (e *TypeError) Error() string          { return e.Msg }
func (e *TypeError) ExceptionClass() string { return "TypeError" }

// ArgumentError is raised for a malformed argument.
type ArgumentError struct{ Msg string }

func (e *ArgumentError) Error() string          { return e.Msg }
func (e *ArgumentError) ExceptionClass() string { return "ArgumentError" }

// RangeError is raised for a numeric value out of range.
type RangeError struct{ Msg string }

func (e *RangeError) Error() string          { return e.Msg }
func (e *RangeError) ExceptionClass() string { return "RangeError" }

// NoMemoryError is raised when the heap or an allocation is exhausted.
// Raising it never allocates.
type NoMemoryError struct{ Msg string }

func (e *NoMemoryError) Error() string          { return e.Msg }
func (e *NoMemoryError) ExceptionClass() string { return "NoMemoryError" }

// TypeErrorf formats a TypeError.
func TypeErrorf(format string, args ...any) *TypeError {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

// ArgumentErrorf formats an ArgumentError.
func ArgumentErrorf(format string, args ...any) *ArgumentError {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// Raising (uses Go panic/recover for the non-local exit, like mrb_raise)
// ---------------------------------------------------------------------------

// RaisedException is panicked when an exception is raised. Interpreter.Protect
// recovers it; any other panic keeps unwinding.
type RaisedException struct {
	Value   Value  // the exception object
	Class   *Class
	Message string
	Err     error // the Go error that was raised
}

func (e *RaisedException) Error() string {
	return fmt.Sprintf("%s: %s", e.Class.Name, e.Message)
}

func (e *RaisedException) Unwrap() error { return e.Err }

// exceptionClassFor maps err onto a registered exception class, falling
// back to RuntimeError.
func (mrb *Interpreter) exceptionClassFor(err error) *Class {
	var exc Exception
	if errors.As(err, &exc) {
		if c := mrb.Classes.Lookup(exc.ExceptionClass()); c != nil {
			return c
		}
	}
	return mrb.RuntimeErrorClass
}

// raise turns err into an exception object, records it as the pending
// exception and unwinds. The caller must not hold the guard.
func (mrb *Interpreter) raise(err error) {
	var re *RaisedException
	if errors.As(err, &re) {
		mrb.exc = re.Value
		panic(re)
	}

	class := mrb.exceptionClassFor(err)
	exc := mrb.nomemErr
	var nomem *NoMemoryError
	if !errors.As(err, &nomem) {
		v, allocErr := mrb.heap.NewException(class, err.Error())
		if allocErr != nil {
			class, err = mrb.NoMemoryErrorClass, allocErr
		} else {
			exc = v
		}
	}
	mrb.exc = exc
	mrb.log.Debugf("raise %s: %s", class.Name, err)
	panic(&RaisedException{Value: exc, Class: class, Message: mrb.ExceptionMessage(exc), Err: err})
}

// Protect calls fn and recovers a raised exception (mrb_protect). It
// returns fn's result, or Nil and the exception if fn raised. Panics that
// are not raised exceptions propagate.
func (mrb *Interpreter) Protect(fn func() Value) (result Value, raised *RaisedException) {
	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(*RaisedException)
			if !ok {
				panic(r)
			}
			result, raised = Nil, re
		}
	}()
	return fn(), nil
}

// Exc returns the most recently raised exception, or Nil.
func (mrb *Interpreter) Exc() Value { return mrb.exc }

// ClearExc forgets the pending exception so it can be collected.
func (mrb *Interpreter) ClearExc() { mrb.exc = Nil }

// ExceptionMessage returns the message of an exception object.
func (mrb *Interpreter) ExceptionMessage(v Value) string {
	obj, err := mrb.heap.Lookup(v)
	if err != nil {
		return ""
	}
	if e, ok := obj.(*RException); ok {
		return e.Message
	}
	return ""
}

// ---------------------------------------------------------------------------
// Exception class registration
// ---------------------------------------------------------------------------

func (mrb *Interpreter) bootstrapExceptionClasses() {
	mrb.ExceptionClass = mrb.mustDefine("Exception", mrb.ObjectClass)
	mrb.ExceptionClass.InstanceTT = TTException

	mrb.StandardErrorClass = mrb.mustDefine("StandardError", mrb.ExceptionClass)
	mrb.RuntimeErrorClass = mrb.mustDefine("RuntimeError", mrb.StandardErrorClass)
	mrb.ArgumentErrorClass = mrb.mustDefine("ArgumentError", mrb.StandardErrorClass)
	mrb.TypeErrorClass = mrb.mustDefine("TypeError", mrb.StandardErrorClass)
	mrb.RangeErrorClass = mrb.mustDefine("RangeError", mrb.StandardErrorClass)

	// NoMemoryError sits outside StandardError, as in Ruby.
	mrb.NoMemoryErrorClass = mrb.mustDefine("NoMemoryError", mrb.ExceptionClass)
}
