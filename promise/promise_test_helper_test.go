package promise_test

import (
	"context"
	"testing"
	"time"

	"github.com/petr-suchy/sari-go/reactor"
)

// runLoop starts a reactor.Loop on its own goroutine for the duration of
// the test and arranges for it to shut down when the test ends.
func runLoop(t *testing.T) *reactor.Loop {
	t.Helper()

	l := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = l.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = l.Shutdown(context.Background())
	})

	return l
}

// await blocks until ch fires or the test's patience runs out.
func await(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for promise to settle")
	}
}
