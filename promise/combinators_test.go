package promise_test

import (
	"errors"
	"testing"
	"time"

	"github.com/petr-suchy/sari-go/promise"
)

func TestAllFulfillsWithOrderedResults(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	var got []any

	promise.All(ex,
		promise.Resolve(ex, "a"),
		promise.Resolve(ex, "b"),
		promise.Resolve(ex, "c"),
	).Then(func(vals ...any) {
		got = vals
		close(done)
	})

	await(t, done)

	want := []any{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAllRejectsOnFirstFailure(t *testing.T) {
	ex := runLoop(t)

	boom := errors.New("boom")
	done := make(chan struct{})
	var got error

	promise.All(ex,
		promise.Resolve(ex, "a"),
		promise.Reject(ex, boom),
	).Fail(func(err error) {
		got = err
		close(done)
	})

	await(t, done)

	if !errors.Is(got, boom) {
		t.Fatalf("got = %v, want %v", got, boom)
	}
}

func TestAllEmptyResolvesImmediately(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	promise.All(ex).Then(func() { close(done) })
	await(t, done)
}

func TestRaceSettlesWithFirstWinner(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	var got string

	slow := promise.New(ex, func(resolve promise.ResolveFunc, _ promise.RejectFunc) {
		ex.Schedule(50*time.Millisecond, func() { resolve("slow") })
	})
	fast := promise.Resolve(ex, "fast")

	promise.Race(ex, slow, fast).Then(func(v string) {
		got = v
		close(done)
	})

	await(t, done)

	if got != "fast" {
		t.Fatalf("got = %q, want %q", got, "fast")
	}
}

func TestAnyFulfillsOnFirstSuccess(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	var got string

	promise.Any(ex,
		promise.Reject(ex, errors.New("fail 1")),
		promise.Resolve(ex, "winner"),
	).Then(func(v string) {
		got = v
		close(done)
	})

	await(t, done)

	if got != "winner" {
		t.Fatalf("got = %q, want %q", got, "winner")
	}
}

func TestAnyRejectsWithAggregateErrorWhenAllFail(t *testing.T) {
	ex := runLoop(t)

	e1 := errors.New("one")
	e2 := errors.New("two")
	done := make(chan struct{})
	var got error

	promise.Any(ex,
		promise.Reject(ex, e1),
		promise.Reject(ex, e2),
	).Fail(func(err error) {
		got = err
		close(done)
	})

	await(t, done)

	var agg *promise.AggregateError
	if !errors.As(got, &agg) {
		t.Fatalf("got = %v, want *AggregateError", got)
	}
	if len(agg.Errors) != 2 {
		t.Fatalf("AggregateError.Errors = %v, want 2 entries", agg.Errors)
	}
}

func TestAnyEmptyRejectsWithErrNoPromiseResolved(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	var got error

	promise.Any(ex).Fail(func(err error) {
		got = err
		close(done)
	})

	await(t, done)

	if !errors.Is(got, promise.ErrNoPromiseResolved) {
		t.Fatalf("got = %v, want %v", got, promise.ErrNoPromiseResolved)
	}
}

func TestAllSettledWaitsForEveryInput(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	var got []*promise.Promise

	promise.AllSettled(ex,
		promise.Resolve(ex, "ok"),
		promise.Reject(ex, errors.New("bad")),
	).Then(func(handles []*promise.Promise) {
		got = handles
		close(done)
	})

	await(t, done)

	if len(got) != 2 {
		t.Fatalf("got %d handles, want 2", len(got))
	}
	if got[0].State() != promise.Fulfilled {
		t.Fatalf("handles[0].State() = %v, want Fulfilled", got[0].State())
	}
	if got[1].State() != promise.Rejected {
		t.Fatalf("handles[1].State() = %v, want Rejected", got[1].State())
	}
}

func TestRepeatThreadsResultIntoNextCall(t *testing.T) {
	ex := runLoop(t)

	done := make(chan struct{})
	var got int
	var calls int

	promise.Repeat(ex, func(args ...any) *promise.Promise {
		calls++
		i := args[0].(int)
		if i < 10 {
			return promise.Resolve(ex, true, i+1)
		}
		return promise.Resolve(ex, false, i)
	}, 0).Then(func(v int) {
		got = v
		close(done)
	})

	await(t, done)

	if got != 10 {
		t.Fatalf("got = %d, want 10", got)
	}
	if calls != 11 {
		t.Fatalf("calls = %d, want 11", calls)
	}
}

func TestRepeatPropagatesRejection(t *testing.T) {
	ex := runLoop(t)

	boom := errors.New("boom")
	done := make(chan struct{})
	var got error

	promise.Repeat(ex, func(...any) *promise.Promise {
		return promise.Reject(ex, boom)
	}).Fail(func(err error) {
		got = err
		close(done)
	})

	await(t, done)

	if !errors.Is(got, boom) {
		t.Fatalf("got = %v, want %v", got, boom)
	}
}

func TestDeadlineExceeded(t *testing.T) {
	ex := runLoop(t)

	never := promise.New(ex, func(promise.ResolveFunc, promise.RejectFunc) {})

	done := make(chan struct{})
	var got error

	promise.Deadline(ex, never, 10*time.Millisecond).Fail(func(err error) {
		got = err
		close(done)
	})

	await(t, done)

	if !errors.Is(got, promise.ErrDeadlineExceeded) {
		t.Fatalf("got = %v, want %v", got, promise.ErrDeadlineExceeded)
	}
}

func TestDeadlineNotExceededWhenPromiseWinsFirst(t *testing.T) {
	ex := runLoop(t)

	fast := promise.Resolve(ex, "fast")

	done := make(chan struct{})
	var got string

	promise.Deadline(ex, fast, time.Hour).Then(func(v string) {
		got = v
		close(done)
	})

	await(t, done)

	if got != "fast" {
		t.Fatalf("got = %q, want %q", got, "fast")
	}
}
