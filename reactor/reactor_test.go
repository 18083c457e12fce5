package reactor

import (
	"context"
	"testing"
	"time"
)

func TestPostRunsOnLoopGoroutine(t *testing.T) {
	l := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
	}()

	ran := make(chan struct{})
	if err := l.Post(func() { close(ran) }); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}

	go func() {
		_ = l.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown never returned")
	}

	if got := l.State(); got != StateTerminated {
		t.Fatalf("State() = %v, want terminated", got)
	}
}

func TestPostAfterTerminatedFails(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = l.Run(ctx) }()
	cancel()

	if err := l.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if err := l.Post(func() {}); err != ErrTerminated {
		t.Fatalf("Post() after shutdown error = %v, want ErrTerminated", err)
	}
}

func TestPostBackpressure(t *testing.T) {
	l := New(WithMailboxSize(1))

	block := make(chan struct{})
	started := make(chan struct{})
	if err := l.Post(func() {
		close(started)
		<-block
	}); err != nil {
		t.Fatalf("first Post() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first task never started running")
	}

	// The first task is now running and blocking the loop goroutine, so the
	// mailbox (capacity 1) can absorb exactly one more post before it's full.
	if err := l.Post(func() {}); err != nil {
		t.Fatalf("second Post() error = %v", err)
	}
	if err := l.Post(func() {}); err != ErrBackpressure {
		t.Fatalf("third Post() error = %v, want ErrBackpressure", err)
	}

	close(block)
}

func TestScheduleFiresAndStops(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = l.Run(ctx) }()

	fired := make(chan struct{})
	l.Schedule(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never fired")
	}

	cancelled := false
	timer := l.Schedule(time.Hour, func() { cancelled = true })
	timer.Stop()
	_ = cancelled
}
