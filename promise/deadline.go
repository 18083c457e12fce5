package promise

import (
	"errors"
	"time"

	"github.com/petr-suchy/sari-go/reactor"
)

// ErrDeadlineExceeded is the rejection reason when a Deadline's timer fires
// before the wrapped Promise settles.
var ErrDeadlineExceeded = errors.New("promise: deadline exceeded")

// timerScheduler is the subset of *reactor.Loop that Deadline needs: post a
// task, and schedule one after a delay.
type timerScheduler interface {
	reactor.Executor
	Schedule(d time.Duration, fn reactor.Task) *reactor.Timer
}

// Deadline races p against a timer of duration d: if p settles first, its
// settlement passes through unchanged; if the timer fires first, the result
// rejects with ErrDeadlineExceeded. Either way the timer is always stopped,
// including when p wins - the stop hook is attached to the outer Race
// result, not to the inner timeout promise, so it fires exactly once
// regardless of which side of the race wins. (The original's equivalent
// attached this cleanup to the timer promise itself, which meant a timer
// that lost the race was never actually canceled.)
func Deadline(ex timerScheduler, p *Promise, d time.Duration) *Promise {
	var timer *reactor.Timer

	timeout := NewAsync(ex, func(_ ResolveFunc, reject RejectFunc) {
		timer = ex.Schedule(d, func() {
			reject(ErrDeadlineExceeded)
		})
	})

	race := Race(ex, p, timeout)

	return race.Finalize(func(*Promise) {
		if timer != nil {
			timer.Stop()
		}
	})
}
