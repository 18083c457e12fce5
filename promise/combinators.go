package promise

import (
	"fmt"
	"sync"

	"github.com/petr-suchy/sari-go/reactor"
)

// group is the shared bookkeeping used by All/Any/Race/AllSettled: a
// counter of promises still pending, and a once-guard so only the first
// qualifying settlement of the aggregate promise takes effect. This
// mirrors the original's Group helper used by every one of its combinators
// rather than reimplementing the counting/guard logic per combinator.
type group struct {
	mu        sync.Mutex
	remaining int
	done      bool
}

func newGroup(n int) *group {
	return &group{remaining: n}
}

// finish returns true exactly once, for the first caller (guards against a
// combinator settling its aggregate promise more than once).
func (g *group) finish() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return false
	}
	g.done = true
	return true
}

// decrement returns the remaining count after decrementing.
func (g *group) decrement() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remaining--
	return g.remaining
}

// All settles once every input Promise fulfills, with one fulfillment
// value per input (in input order), or rejects as soon as any input
// rejects, with that rejection's reason.
func All(ex reactor.Executor, promises ...*Promise) *Promise {
	if len(promises) == 0 {
		return Resolve(ex)
	}

	return NewAsync(ex, func(resolve ResolveFunc, reject RejectFunc) {
		g := newGroup(len(promises))
		results := make([]any, len(promises))

		for i, p := range promises {
			i := i
			p.Then(func(vals ...any) {
				results[i] = firstOrNil(vals)
				if g.decrement() == 0 && g.finish() {
					resolve(results...)
				}
			}).Fail(func(reason any) {
				if g.finish() {
					reject(reason)
				}
			})
		}
	})
}

// Race settles with whichever input Promise settles first, fulfilled or
// rejected, carrying that settlement through unchanged.
func Race(ex reactor.Executor, promises ...*Promise) *Promise {
	return NewAsync(ex, func(resolve ResolveFunc, reject RejectFunc) {
		g := newGroup(len(promises))

		for _, p := range promises {
			p.Then(func(vals ...any) {
				if g.finish() {
					resolve(vals...)
				}
			}).Fail(func(reason any) {
				if g.finish() {
					reject(reason)
				}
			})
		}
	})
}

// AllSettled waits for every input Promise to settle (never rejects
// itself) and fulfills with one settled *Promise handle per input slot, in
// input order - a caller inspects each handle's State()/Result() to see
// whether it fulfilled or rejected. Empty input fulfills immediately with
// an empty slice, per the fixed reading of the open question over the
// original's map-based per-slot status report.
func AllSettled(ex reactor.Executor, promises ...*Promise) *Promise {
	if len(promises) == 0 {
		return Resolve(ex, []*Promise{})
	}

	return NewAsync(ex, func(resolve ResolveFunc, _ RejectFunc) {
		g := newGroup(len(promises))
		handles := make([]*Promise, len(promises))

		for i, p := range promises {
			i, p := i, p
			handles[i] = p
			p.Finalize(func(*Promise) {
				if g.decrement() == 0 && g.finish() {
					resolve(handles)
				}
			})
		}
	})
}

// Any settles with the first input Promise to fulfill, or rejects with an
// *AggregateError carrying every rejection reason (in input order) once
// all inputs have rejected. Empty input rejects immediately with
// ErrNoPromiseResolved, matching there being no candidate to ever fulfill.
func Any(ex reactor.Executor, promises ...*Promise) *Promise {
	if len(promises) == 0 {
		return Reject(ex, ErrNoPromiseResolved)
	}

	return NewAsync(ex, func(resolve ResolveFunc, reject RejectFunc) {
		g := newGroup(len(promises))
		errs := make([]error, len(promises))

		for i, p := range promises {
			i := i
			p.Then(func(vals ...any) {
				if g.finish() {
					resolve(vals...)
				}
			}).Fail(func(reason any) {
				errs[i] = asError(reason)
				if g.decrement() == 0 && g.finish() {
					reject(&AggregateError{Errors: errs})
				}
			})
		}
	})
}

func firstOrNil(vals []any) any {
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}
