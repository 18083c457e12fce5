package promise

import "reflect"

// Value is a type-erased single result value carried through a settled
// promise's result list. It exists so a Promise never needs a type
// parameter: handlers recover concrete types from it the way the original
// recovers arguments from a std::any-backed argument vector.
type Value struct {
	v any
}

// NewValue wraps v as a Value.
func NewValue(v any) Value { return Value{v: v} }

// Interface returns the underlying value as any.
func (d Value) Interface() any { return d.v }

// Type returns the reflect.Type of the wrapped value, or nil if it is the
// untyped nil.
func (d Value) Type() reflect.Type {
	if d.v == nil {
		return nil
	}
	return reflect.TypeOf(d.v)
}

// As attempts to recover a concrete type T from the value. ok is false if
// the wrapped value is not assignable to T.
func As[T any](d Value) (T, bool) {
	v, ok := d.v.(T)
	return v, ok
}

// Values converts a slice of any into a slice of Value.
func Values(vals ...any) []Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = NewValue(v)
	}
	return out
}

// Interfaces converts a slice of Value back into a slice of any, suitable
// for passing as variadic arguments to a handler invocation.
func Interfaces(vals []Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.v
	}
	return out
}
