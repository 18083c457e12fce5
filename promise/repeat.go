package promise

import "github.com/petr-suchy/sari-go/reactor"

// Repeat calls task repeatedly, first with initialArgs and thereafter with
// the previous call's fulfillment values stripped of their leading
// continuation flag, awaiting the Promise each call returns. Iteration
// stops once a call fulfills with a falsy leading value (false, 0, or no
// result at all); the remaining fulfillment values become Repeat's own
// fulfillment. A rejection from any iteration propagates as Repeat's
// rejection immediately.
//
// Each iteration is posted back onto ex rather than called directly from
// within the previous iteration's handler, so an unbounded repeat runs in
// O(1) native call stack regardless of how many iterations it takes -
// exactly the guarantee the original's tail-recursive Repeat_ helper
// existed to provide.
func Repeat(ex reactor.Executor, task func(args ...any) *Promise, initialArgs ...any) *Promise {
	return NewAsync(ex, func(resolve ResolveFunc, reject RejectFunc) {
		var step func(args []any)
		step = func(args []any) {
			task(args...).Then(func(vals ...any) {
				cont, rest := splitContinuation(vals)
				if !cont {
					resolve(rest...)
					return
				}
				_ = ex.Post(func() { step(rest) })
			}).Fail(func(reason any) {
				reject(reason)
			})
		}
		step(initialArgs)
	})
}

// splitContinuation interprets vals[0] as a continue/stop flag: a bool is
// used as-is, an int is truthy when non-zero, anything else (including no
// values at all) stops the loop.
func splitContinuation(vals []any) (cont bool, rest []any) {
	if len(vals) == 0 {
		return false, vals
	}
	switch v := vals[0].(type) {
	case bool:
		return v, vals[1:]
	case int:
		return v != 0, vals[1:]
	default:
		return false, vals
	}
}
