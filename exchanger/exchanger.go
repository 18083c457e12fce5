// Package exchanger implements a rendezvous point: a consumer and a
// producer each call an Async method, and whichever arrives second
// completes both sides' promises immediately; whichever arrives first
// waits, parked on an intrusive list, until a counterpart shows up or its
// Transaction is canceled.
package exchanger

import (
	"errors"

	"github.com/petr-suchy/sari-go/dlist"
	"github.com/petr-suchy/sari-go/promise"
	"github.com/petr-suchy/sari-go/reactor"
)

// ErrCanceled is the rejection reason for a pending exchange whose
// Transaction was canceled before a counterpart arrived.
var ErrCanceled = errors.New("exchanger: transaction canceled")

// ErrClosed is the rejection reason Close(nil) uses, both for every
// exchange still pending when Close is called and for any exchange
// attempted afterward. A non-nil error passed to Close is used in its
// place.
var ErrClosed = errors.New("exchanger: closed")

type pendingEntry struct {
	args    []any
	resolve promise.ResolveFunc
	reject  promise.RejectFunc
}

// Transaction is a cancellable handle to one side of a pending exchange.
// The zero value is ready to use; NewTransaction returns one.
type Transaction struct {
	element *dlist.Element[*pendingEntry]
	list    *dlist.List[*pendingEntry]
}

// NewTransaction returns a Transaction ready to be passed to AsyncConsume
// or AsyncProduce.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Pending reports whether this transaction is still parked, waiting for a
// counterpart.
func (t *Transaction) Pending() bool {
	return t.element.Linked()
}

// Cancel unlinks this transaction's pending entry, if still parked, and
// rejects it with ErrCanceled. It is a no-op if the exchange already
// completed or was never parked (the counterpart arrived synchronously).
func (t *Transaction) Cancel() {
	if t.list == nil || !t.element.Linked() {
		return
	}
	entry := t.element.Value
	t.list.Remove(t.element)
	entry.reject(ErrCanceled)
}

// Exchanger pairs up consumers and producers. Construct one with New: the
// zero value has no executor to settle its promises on and is not usable.
type Exchanger struct {
	ex        reactor.Executor
	consumers dlist.List[*pendingEntry]
	producers dlist.List[*pendingEntry]
	closed    bool
	closeErr  error
}

// New constructs an Exchanger bound to ex, used to schedule the promises it
// returns.
func New(ex reactor.Executor) *Exchanger {
	return &Exchanger{ex: ex}
}

// AsyncConsume offers args as a consumer. If a producer is already
// waiting, the exchange completes immediately: this call fulfills with the
// producer's args, and the producer's own promise fulfills with this
// call's args. Otherwise it parks on trans until a producer arrives or
// trans is canceled.
func (x *Exchanger) AsyncConsume(trans *Transaction, args ...any) *promise.Promise {
	return x.exchange(trans, args, &x.consumers, &x.producers)
}

// AsyncProduce offers args as a producer, symmetric to AsyncConsume.
func (x *Exchanger) AsyncProduce(trans *Transaction, args ...any) *promise.Promise {
	return x.exchange(trans, args, &x.producers, &x.consumers)
}

func (x *Exchanger) exchange(trans *Transaction, args []any, own, counterpart *dlist.List[*pendingEntry]) *promise.Promise {
	if x.closed {
		return promise.Reject(x.ex, x.closeErr)
	}

	return promise.New(x.ex, func(resolve promise.ResolveFunc, reject promise.RejectFunc) {
		if e := counterpart.PopFront(); e != nil {
			other := e.Value
			other.resolve(args...)
			resolve(other.args...)
			return
		}

		entry := &pendingEntry{args: args, resolve: resolve, reject: reject}
		elem := dlist.NewElement(entry)
		own.PushBack(elem)
		trans.element = elem
		trans.list = own
	})
}

// Close rejects every still-pending exchange (on both the consumer and
// producer sides) with err, or ErrClosed if err is nil, and causes every
// subsequent AsyncConsume/AsyncProduce call to reject immediately. Go has
// no destructors to drive this the way the original's ExchangeHandler
// destructor did, so it is explicit here; see the module's design notes
// for why the original's destructor behavior is not replicated as-is.
func (x *Exchanger) Close(err error) {
	if x.closed {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	x.closed = true
	x.closeErr = err

	rejectAll(&x.consumers, err)
	rejectAll(&x.producers, err)
}

func rejectAll(list *dlist.List[*pendingEntry], err error) {
	for e := list.PopFront(); e != nil; e = list.PopFront() {
		e.Value.reject(err)
	}
}
