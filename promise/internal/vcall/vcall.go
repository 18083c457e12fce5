// Package vcall adapts arbitrary Go functions into handlers that can be
// invoked with a flat slice of dynamically-typed arguments, checking arity
// and parameter types first. It is the Go-native replacement for the
// template-based AnyFunctionWrapper/MakeAnyFunc machinery the original used
// to erase a handler's static signature: reflect.Type takes the place of
// the original's std::any/index-sequence unpacking.
package vcall

import (
	"errors"
	"reflect"
)

// ErrArity is returned when the argument count does not match what the
// wrapped function declares.
var ErrArity = errors.New("vcall: argument count mismatch")

// ErrArgType is returned when an argument cannot be used as the
// corresponding parameter.
var ErrArgType = errors.New("vcall: argument type mismatch")

// Adapter wraps a Go function value (any concrete func type, including
// variadic ones) so it can be invoked against a []any argument list.
type Adapter struct {
	fn  reflect.Value
	typ reflect.Type
}

// New wraps fn. It panics if fn is not a function value - this is a
// programmer error (a bad handler registration), not a runtime condition
// callers need to recover from.
func New(fn any) *Adapter {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic("vcall: handler must be a function")
	}
	return &Adapter{fn: v, typ: v.Type()}
}

// NumIn returns the number of declared (non-variadic-expanded) parameters.
func (a *Adapter) NumIn() int { return a.typ.NumIn() }

// NumOut returns the number of values the wrapped function returns.
func (a *Adapter) NumOut() int { return a.typ.NumOut() }

// IsVariadic reports whether the wrapped function's final parameter is
// variadic.
func (a *Adapter) IsVariadic() bool { return a.typ.IsVariadic() }

// paramType returns the type args[i] must satisfy.
func (a *Adapter) paramType(i int) reflect.Type {
	n := a.typ.NumIn()
	if a.typ.IsVariadic() && i >= n-1 {
		return a.typ.In(n - 1).Elem()
	}
	return a.typ.In(i)
}

// Accepts reports whether args could be passed to the wrapped function:
// right arity, and every argument either nil-compatible or assignable to
// its parameter's type.
func (a *Adapter) Accepts(args []any) bool {
	n := a.typ.NumIn()
	if a.typ.IsVariadic() {
		if len(args) < n-1 {
			return false
		}
	} else if len(args) != n {
		return false
	}

	for i, arg := range args {
		pt := a.paramType(i)
		if arg == nil {
			switch pt.Kind() {
			case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
				continue
			default:
				return false
			}
		}
		if !reflect.TypeOf(arg).AssignableTo(pt) {
			return false
		}
	}

	return true
}

// Call invokes the wrapped function with args, returning its results as a
// flat []any. It returns ErrArity/ErrArgType instead of calling the
// function when args do not satisfy Accepts; a panic raised by the
// function itself propagates to the caller uncaught, for the caller (the
// promise package) to recover.
func (a *Adapter) Call(args []any) ([]any, error) {
	if !a.Accepts(args) {
		n := a.typ.NumIn()
		if (a.typ.IsVariadic() && len(args) < n-1) || (!a.typ.IsVariadic() && len(args) != n) {
			return nil, ErrArity
		}
		return nil, ErrArgType
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		pt := a.paramType(i)
		if arg == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}

	out := a.fn.Call(in)
	results := make([]any, len(out))
	for i, o := range out {
		results[i] = o.Interface()
	}
	return results, nil
}

// DispatchType returns the reflect.Type a single-argument handler should be
// keyed under in a type-dispatch table (a fail_table), or nil if fn does not
// declare exactly one fixed, non-interface{} parameter - such handlers are
// the catch-all (Any) entry instead.
func DispatchType(fn any) reflect.Type {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil
	}
	t := v.Type()
	if t.IsVariadic() || t.NumIn() != 1 {
		return nil
	}
	if in := t.In(0); in != reflect.TypeOf((*any)(nil)).Elem() {
		return in
	}
	return nil
}
