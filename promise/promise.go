// Package promise implements a single-threaded, executor-bound promise:
// a deferred result that starts Pending and settles exactly once, to either
// Fulfilled (with a result value list) or Rejected (with a reason value
// list). Unlike a typical Go future, all of a Promise's bookkeeping runs on
// one reactor.Executor goroutine, so there is no internal locking around
// settlement beyond what is needed to guard against a handler being
// registered concurrently with settlement from a foreign goroutine (the
// Initiator itself may call resolve/reject from anywhere).
package promise

import (
	"fmt"
	"log"
	"reflect"
	"sync"

	"github.com/petr-suchy/sari-go/promise/internal/vcall"
	"github.com/petr-suchy/sari-go/reactor"
)

// State is the lifecycle stage of a Promise.
type State int32

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ResolveFunc settles a Promise as Fulfilled with the given values. Calls
// after the first are ignored, matching Promise/A+'s "settle once" rule.
type ResolveFunc func(vals ...any)

// RejectFunc settles a Promise as Rejected with the given values.
type RejectFunc func(vals ...any)

// Initiator is run once, at construction, to eventually call resolve or
// reject (possibly from another goroutine, possibly never).
type Initiator func(resolve ResolveFunc, reject RejectFunc)

// PanicError wraps a value recovered from a panicking handler or Initiator,
// so that a Promise always settles even when user code misbehaves.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("promise: handler panicked: %v", e.Value)
}

// CycleError is the rejection reason used when a Promise is resolved with
// itself. Only that direct case is detected: a cycle through another
// promise (p adopts q while q adopts p) is not detected, and neither
// promise settles.
type CycleError struct{}

func (CycleError) Error() string { return "promise: cannot resolve a promise with itself" }

type registration struct {
	// onFulfilled, if non-nil, is invoked with the parent's fulfillment
	// values; its return values become the child's fulfillment values.
	onFulfilled any
	// onRejected, if non-nil, is invoked when the parent rejects with a
	// reason whose type matches dispatchType (or dispatchType is nil, the
	// catch-all). A nil onRejected with a nil dispatchType represents a
	// plain Then() chain: rejection just propagates to target untouched.
	onRejected   any
	dispatchType reflect.Type
	hasFail      bool
	target       *Promise
}

// Promise is a single-settlement deferred result bound to a reactor.Executor.
type Promise struct {
	ex reactor.Executor

	mu           sync.Mutex
	state        State
	result       []Value
	regs         []registration
	finalizers   []func(*Promise)
	settled      bool
	handled      bool
	dispatchDone bool
}

func newPromise(ex reactor.Executor) *Promise {
	return &Promise{ex: ex}
}

// New constructs a Promise in default mode: settlement requested by the
// Initiator (directly or from another goroutine) is posted onto ex before
// it takes effect, so handlers registered synchronously after New returns
// are guaranteed to see Pending and get scheduled in order - the same
// "always resolves later" guarantee Promise/A+ requires.
func New(ex reactor.Executor, init Initiator) *Promise {
	p := newPromise(ex)
	p.run(ex, init, false)
	return p
}

// NewAsync constructs a Promise in async mode: a resolve/reject call that
// happens synchronously within Initiator (on the executor's own goroutine)
// settles immediately, without an extra post. This exists for internal,
// performance-sensitive composition (the combinators use it for their
// bookkeeping promises) - user code should prefer New.
func NewAsync(ex reactor.Executor, init Initiator) *Promise {
	p := newPromise(ex)
	p.run(ex, init, true)
	return p
}

func (p *Promise) run(ex reactor.Executor, init Initiator, async bool) {
	resolve := func(vals ...any) { p.settle(Fulfilled, vals, async) }
	reject := func(vals ...any) { p.settle(Rejected, vals, async) }

	defer func() {
		if r := recover(); r != nil {
			p.settle(Rejected, []any{&PanicError{Value: r}}, async)
		}
	}()

	init(resolve, reject)
}

func (p *Promise) settle(state State, vals []any, async bool) {
	if async {
		p.doSettle(state, vals)
		return
	}
	_ = p.ex.Post(func() { p.doSettle(state, vals) })
}

func (p *Promise) doSettle(state State, vals []any) {
	// Nested-promise adoption: resolving with a single *Promise adopts its
	// eventual settlement instead of settling now.
	if state == Fulfilled && len(vals) == 1 {
		if nested, ok := vals[0].(*Promise); ok {
			if nested == p {
				p.doSettle(Rejected, []any{CycleError{}})
				return
			}
			nested.Finalize(func(settled *Promise) {
				v, s := settled.snapshot()
				p.doSettle(s, Interfaces(v))
			})
			return
		}
	}

	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.settled = true
	p.state = state
	p.result = Values(vals...)
	regs := p.regs
	p.regs = nil
	finalizers := p.finalizers
	p.finalizers = nil
	p.mu.Unlock()

	for _, fz := range finalizers {
		p.runFinalizer(fz)
	}
	p.dispatch(regs)
}

func (p *Promise) snapshot() ([]Value, State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.state
}

// State returns the Promise's current lifecycle stage.
func (p *Promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the settled result (fulfillment values or rejection
// reasons); it is empty while Pending.
func (p *Promise) Result() []Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Value, len(p.result))
	copy(out, p.result)
	return out
}

// addRegistration appends reg to the pending list, or dispatches it
// immediately (posted) if the promise has already settled.
func (p *Promise) addRegistration(reg registration) {
	p.mu.Lock()
	if !p.settled {
		p.regs = append(p.regs, reg)
		p.mu.Unlock()
		return
	}
	state, result := p.state, p.result
	p.mu.Unlock()

	_ = p.ex.Post(func() {
		p.dispatchOne(reg, state, result)
	})
}

func (p *Promise) dispatch(regs []registration) {
	p.mu.Lock()
	state, result := p.state, p.result
	p.mu.Unlock()
	for _, reg := range regs {
		p.dispatchOne(reg, state, result)
	}
}

func (p *Promise) dispatchOne(reg registration, state State, result []Value) {
	args := Interfaces(result)

	switch state {
	case Fulfilled:
		if reg.onFulfilled == nil {
			reg.target.doSettle(Fulfilled, args)
			return
		}
		p.invoke(reg.target, reg.onFulfilled, args)

	case Rejected:
		if !reg.hasFail {
			reg.target.doSettle(Rejected, args)
			return
		}
		if !rejectionMatches(reg.dispatchType, args) {
			reg.target.doSettle(Rejected, args)
			return
		}
		p.mu.Lock()
		alreadyHandled := p.handled
		p.handled = true
		p.mu.Unlock()
		if alreadyHandled {
			reg.target.doSettle(Rejected, args)
			return
		}
		p.invokeFail(reg.target, reg.onRejected, args)
	}
}

// rejectionMatches reports whether a fail registration keyed by
// dispatchType (nil meaning the Any catch-all) should handle a rejection
// whose reason values are args.
func rejectionMatches(dispatchType reflect.Type, args []any) bool {
	if dispatchType == nil {
		return true
	}
	if len(args) == 0 {
		return false
	}
	if args[0] == nil {
		return false
	}
	return reflect.TypeOf(args[0]).AssignableTo(dispatchType)
}

// invoke runs a matched Then handler and settles target Fulfilled with its
// return values - used only for onFulfilled dispatch. See invokeFail for
// the rejection-handling counterpart, which never recovers to Fulfilled.
func (p *Promise) invoke(target *Promise, handler any, args []any) {
	defer func() {
		if r := recover(); r != nil {
			target.doSettle(Rejected, []any{&PanicError{Value: r}})
		}
	}()

	adapter := vcall.New(handler)
	callArgs := args
	if !adapter.Accepts(callArgs) {
		// Tolerate arity mismatches the way a lenient JS-style handler
		// would: pad/truncate rather than reject outright, since handlers
		// commonly ignore extra settlement values or expect none at all.
		callArgs = adaptArity(adapter, args)
	}

	results, err := adapter.Call(callArgs)
	if err != nil {
		target.doSettle(Rejected, []any{err})
		return
	}
	target.doSettle(Fulfilled, results)
}

// invokeFail runs a matched Fail handler for its side effect only: per
// spec, observing and handling a rejection never recovers it to Fulfilled -
// the child stays Rejected with an empty result on a normal handler return.
// A handler that panics, or whose declared parameter doesn't accept args,
// still routes to Rejected with the describing error/PanicError, same as
// invoke.
func (p *Promise) invokeFail(target *Promise, handler any, args []any) {
	defer func() {
		if r := recover(); r != nil {
			target.doSettle(Rejected, []any{&PanicError{Value: r}})
		}
	}()

	adapter := vcall.New(handler)
	callArgs := args
	if !adapter.Accepts(callArgs) {
		callArgs = adaptArity(adapter, args)
	}

	_, err := adapter.Call(callArgs)
	if err != nil {
		target.doSettle(Rejected, []any{err})
		return
	}
	target.doSettle(Rejected, nil)
}

// adaptArity truncates or nil-pads args to the handler's declared arity so
// common cases (a .Then(func(){...}) that ignores its parent's values, or a
// .Fail(func(err error){...}) receiving exactly one reason) just work
// without callers having to match arity exactly.
func adaptArity(a *vcall.Adapter, args []any) []any {
	n := a.NumIn()
	if a.IsVariadic() {
		if len(args) >= n-1 {
			return args
		}
		n--
	}
	if len(args) >= n {
		return args[:n]
	}
	out := make([]any, n)
	copy(out, args)
	return out
}

func (p *Promise) runFinalizer(fz func(*Promise)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("promise: finalize hook panicked: %v", r)
		}
	}()
	fz(p)
}

// Then registers a fulfillment handler and returns a child Promise settling
// with the handler's return values. If the parent rejects instead, the
// rejection propagates to the child untouched - exactly as if Then had not
// been called. onFulfilled may be nil, in which case fulfillment
// propagates untouched too (a plain pass-through link, useful for
// Finalize-style bookkeeping).
func (p *Promise) Then(onFulfilled any) *Promise {
	child := newPromise(p.ex)
	p.addRegistration(registration{onFulfilled: onFulfilled, target: child})
	return child
}

// Fail registers a rejection handler for reasons assignable to onRejected's
// single declared parameter type, or for any reason if onRejected takes no
// fixed parameter (the catch-all, stored under the nil dispatch key).
// Multiple Fail calls on the same Promise build up a type-dispatch table:
// a rejection is offered to each registration in turn and only consumed
// (marking the rejection handled) by the first whose type matches: a
// rejection that matches nothing propagates to its own pass-through
// targets untouched, and the Promise itself remains Rejected either way -
// observing a rejection never changes its settled state, only its
// "handled" bookkeeping. A handler's return values, if any, are discarded:
// onRejected must declare zero return values, enforced here at registration
// time, the same as a bad handler type panics in vcall.New.
func (p *Promise) Fail(onRejected any) *Promise {
	if vcall.New(onRejected).NumOut() != 0 {
		panic("promise: Fail handler must return nothing")
	}

	child := newPromise(p.ex)
	p.addRegistration(registration{
		onRejected:   onRejected,
		dispatchType: vcall.DispatchType(onRejected),
		hasFail:      true,
		target:       child,
	})
	return child
}

// Finalize registers fn to run once the Promise settles, regardless of
// outcome, and returns a child Promise that settles identically to the
// parent (so Finalize calls can still be chained). fn is never given the
// chance to change the settlement it observes - that mirrors the
// original's finally semantics, adapted for Go: a panicking fn is logged
// and otherwise ignored rather than silently swallowed.
func (p *Promise) Finalize(fn func(*Promise)) *Promise {
	child := newPromise(p.ex)

	p.mu.Lock()
	if !p.settled {
		p.finalizers = append(p.finalizers, fn)
		p.regs = append(p.regs, registration{target: child})
		p.mu.Unlock()
		return child
	}
	p.mu.Unlock()

	_ = p.ex.Post(func() {
		p.runFinalizer(fn)
		state, result := p.snapshot()
		child.doSettle(state, Interfaces(result))
	})
	return child
}

// Handled reports whether this Promise's rejection (if any) has been
// observed by a matching Fail registration.
func (p *Promise) Handled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handled
}

// Resolve returns a Promise already Fulfilled with vals.
func Resolve(ex reactor.Executor, vals ...any) *Promise {
	return NewAsync(ex, func(resolve ResolveFunc, _ RejectFunc) {
		resolve(vals...)
	})
}

// Reject returns a Promise already Rejected with vals.
func Reject(ex reactor.Executor, vals ...any) *Promise {
	return NewAsync(ex, func(_ ResolveFunc, reject RejectFunc) {
		reject(vals...)
	})
}
