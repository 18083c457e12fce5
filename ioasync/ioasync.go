// Package ioasync wraps blocking operations - timers, reads, writes,
// name resolution, dialing - as Promises, by running the blocking call on
// a throwaway goroutine and posting its result back onto the owning
// reactor.Executor. This is the Go-native shape of the original's
// "reactor-operation wrapping" pattern: nothing in here ever touches a
// Promise's internals from a foreign goroutine directly.
package ioasync

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/petr-suchy/sari-go/promise"
	"github.com/petr-suchy/sari-go/reactor"
)

// ErrGoexit is the rejection reason used when the operation's goroutine
// exited via runtime.Goexit (e.g. a test helper's FailNow called from
// within the operation) without the operation itself settling.
var ErrGoexit = errors.New("ioasync: goroutine exited via runtime.Goexit")

// ErrNoAddresses is the rejection reason for ConnectList called with no
// candidate addresses.
var ErrNoAddresses = errors.New("ioasync: no addresses to connect to")

// run is the shared goroutine-bridge: it calls work on its own goroutine
// and posts the outcome back onto ex. The settlement-posting defer is
// registered before work runs, so it still executes (per Go's defer
// semantics) even if work calls runtime.Goexit - only a genuine process
// crash skips it.
func run(ex reactor.Executor, work func() ([]any, error)) *promise.Promise {
	return promise.NewAsync(ex, func(resolve promise.ResolveFunc, reject promise.RejectFunc) {
		go func() {
			var results []any
			var workErr error
			completed := false

			defer func() {
				if r := recover(); r != nil {
					workErr = &promise.PanicError{Value: r}
				} else if !completed && workErr == nil {
					workErr = ErrGoexit
				}

				res, err := results, workErr
				_ = ex.Post(func() {
					if err != nil {
						reject(err)
						return
					}
					resolve(res...)
				})
			}()

			results, workErr = work()
			completed = true
		}()
	})
}

// Wait settles after d has elapsed.
func Wait(ex reactor.Executor, d time.Duration) *promise.Promise {
	return run(ex, func() ([]any, error) {
		time.Sleep(d)
		return nil, nil
	})
}

// ReadSome performs one Read into buf, fulfilling with the byte count read.
func ReadSome(ex reactor.Executor, r io.Reader, buf []byte) *promise.Promise {
	return run(ex, func() ([]any, error) {
		n, err := r.Read(buf)
		return []any{n}, err
	})
}

// WriteSome performs one Write of buf, fulfilling with the byte count
// written.
func WriteSome(ex reactor.Executor, w io.Writer, buf []byte) *promise.Promise {
	return run(ex, func() ([]any, error) {
		n, err := w.Write(buf)
		return []any{n}, err
	})
}

// ReadUntil reads from r until delim (inclusive), fulfilling with the line
// read, including delim.
func ReadUntil(ex reactor.Executor, r *bufio.Reader, delim byte) *promise.Promise {
	return run(ex, func() ([]any, error) {
		line, err := r.ReadString(delim)
		return []any{line}, err
	})
}

// ResolveName resolves host to its IP addresses.
func ResolveName(ex reactor.Executor, host string) *promise.Promise {
	return run(ex, func() ([]any, error) {
		addrs, err := net.LookupHost(host)
		return []any{addrs}, err
	})
}

// Connect dials network/addr, fulfilling with the established net.Conn.
func Connect(ex reactor.Executor, network, addr string) *promise.Promise {
	return run(ex, func() ([]any, error) {
		conn, err := net.Dial(network, addr)
		return []any{conn}, err
	})
}

// ConnectList tries each address in addrs in turn, fulfilling with the
// first successful net.Conn and abandoning the rest, or rejecting with the
// final address's error if every attempt fails. It is built from Repeat,
// threading the next index to try as the loop's carried state, rather than
// a hand-rolled loop.
func ConnectList(ex reactor.Executor, network string, addrs []string) *promise.Promise {
	if len(addrs) == 0 {
		return promise.Reject(ex, ErrNoAddresses)
	}

	return promise.Repeat(ex, func(args ...any) *promise.Promise {
		idx := args[0].(int)
		addr := addrs[idx]
		last := idx == len(addrs)-1

		return promise.New(ex, func(resolve promise.ResolveFunc, reject promise.RejectFunc) {
			Connect(ex, network, addr).
				Then(func(conn net.Conn) {
					resolve(false, conn)
				}).
				Fail(func(err error) {
					if last {
						reject(err)
						return
					}
					resolve(true, idx+1)
				})
		})
	}, 0)
}
