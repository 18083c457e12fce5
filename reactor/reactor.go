// Package reactor implements the single-threaded executor promise and the
// rest of this module run on: a task mailbox drained by exactly one
// goroutine, plus timer scheduling. It intentionally carries none of the
// OS-level polling machinery (file descriptor pollers, wake pipes) that a
// production event loop needs - that machinery is explicitly out of scope,
// a black box behind the Executor interface.
package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// ErrBackpressure is returned by Post when the mailbox is full.
var ErrBackpressure = errors.New("reactor: mailbox full")

// ErrTerminated is returned by Post once the loop has been stopped.
var ErrTerminated = errors.New("reactor: loop terminated")

// Task is a unit of work run on the loop's goroutine.
type Task func()

// Executor is the minimal contract the promise engine depends on: post a
// task to run later, on the single loop goroutine. Everything above this
// interface (promises, combinators, the demo services) is agnostic to how
// the executor actually schedules work.
type Executor interface {
	// Post schedules fn to run on the executor's own goroutine. It never
	// runs fn synchronously, even when called from that same goroutine -
	// callers that need synchronous semantics use something other than
	// Post.
	Post(fn Task) error
}

// State is the lifecycle of a Loop.
type State uint32

const (
	StateAwake State = iota
	StateRunning
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Option configures a Loop.
type Option func(*loopOptions)

type loopOptions struct {
	mailboxSize int
	logger      *logiface.Logger[*stumpy.Event]
}

// WithMailboxSize sets the capacity of the task mailbox. The default is 256.
func WithMailboxSize(n int) Option {
	return func(o *loopOptions) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

// WithLogger attaches a logiface logger used for task-panic and
// backpressure diagnostics. Without one, the loop logs nothing.
func WithLogger(logger *logiface.Logger[*stumpy.Event]) Option {
	return func(o *loopOptions) {
		o.logger = logger
	}
}

// Loop is a single-threaded Executor: Run must be called from the goroutine
// that is meant to own it, and every Task posted to it runs on that same
// goroutine, in the order posted (FIFO per mailbox, timers interleaved by
// due time).
type Loop struct {
	mailbox  chan Task
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	state    atomic.Uint32
	logger   *logiface.Logger[*stumpy.Event]
}

// New constructs a Loop ready to Run.
func New(opts ...Option) *Loop {
	o := loopOptions{mailboxSize: 256}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Loop{
		mailbox: make(chan Task, o.mailboxSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  o.logger,
	}
	l.state.Store(uint32(StateAwake))
	return l
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Post implements Executor. It never blocks: a full mailbox yields
// ErrBackpressure rather than stalling the caller.
func (l *Loop) Post(fn Task) error {
	if State(l.state.Load()) >= StateTerminating {
		return ErrTerminated
	}
	select {
	case l.mailbox <- fn:
		return nil
	default:
		if l.logger != nil {
			l.logger.Warning().Log("reactor: mailbox full, dropping task")
		}
		return ErrBackpressure
	}
}

// Schedule arranges for fn to be posted to the loop after d elapses. It
// returns a *Timer that can be used to cancel the pending post.
func (l *Loop) Schedule(d time.Duration, fn Task) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		if !t.canceled.Load() {
			_ = l.Post(fn)
		}
	})
	return t
}

// Timer is a handle returned by Loop.Schedule.
type Timer struct {
	timer    *time.Timer
	canceled atomic.Bool
}

// Stop cancels the timer. It is safe to call more than once.
func (t *Timer) Stop() {
	t.canceled.Store(true)
	t.timer.Stop()
}

// Run drains the mailbox until Shutdown is called or ctx is canceled. It
// must be called from exactly one goroutine, which becomes the loop's
// owning goroutine for the duration of the call.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(uint32(StateAwake), uint32(StateRunning)) {
		return errors.New("reactor: loop already running or terminated")
	}
	defer close(l.doneCh)

	for {
		select {
		case fn := <-l.mailbox:
			l.runTask(fn)
		case <-l.stopCh:
			l.drain()
			l.state.Store(uint32(StateTerminated))
			return nil
		case <-ctx.Done():
			l.drain()
			l.state.Store(uint32(StateTerminated))
			return ctx.Err()
		}
	}
}

// drain runs any tasks still buffered in the mailbox at shutdown time,
// non-blocking, so posted cleanup (finalize hooks, cancellation handlers)
// still gets a chance to execute.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.mailbox:
			l.runTask(fn)
		default:
			return
		}
	}
}

func (l *Loop) runTask(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			if l.logger != nil {
				l.logger.Err().Log("reactor: task panicked")
			}
		}
	}()
	fn()
}

// Shutdown requests the loop stop processing after the current drain pass
// and waits for Run to return, or for ctx to be canceled.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.state.CompareAndSwap(uint32(StateRunning), uint32(StateTerminating))
	if l.state.CompareAndSwap(uint32(StateAwake), uint32(StateTerminated)) {
		// Run was never entered and now never will be, so nothing else
		// closes doneCh.
		close(l.doneCh)
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
