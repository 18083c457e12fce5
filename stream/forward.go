// Package stream forwards bytes bidirectionally between two connections,
// the way a transparent proxy splices an inbound and outbound socket
// together once a tunnel is established.
package stream

import (
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/petr-suchy/sari-go/promise"
	"github.com/petr-suchy/sari-go/reactor"
)

const bufferSize = 4096

// halfCloser is satisfied by *net.TCPConn and similar types that can shut
// down their write side without closing the whole connection.
type halfCloser interface {
	CloseWrite() error
}

// Forward copies bytes from a to b and from b to a concurrently until both
// directions have drained (each side's EOF triggers a half-close of the
// other's write side, not an immediate full close) or either direction
// fails, at which point both connections are closed outright and the
// other direction is unblocked. The returned Promise fulfills once both
// directions have finished draining, or rejects with whichever error
// aborted the forward.
func Forward(ex reactor.Executor, a, b io.ReadWriteCloser) *promise.Promise {
	return promise.NewAsync(ex, func(resolve promise.ResolveFunc, reject promise.RejectFunc) {
		go func() {
			abort := func() {
				_ = a.Close()
				_ = b.Close()
			}

			var g errgroup.Group
			g.Go(func() error {
				err := pump(b, a)
				if err != nil {
					abort()
				}
				return err
			})
			g.Go(func() error {
				err := pump(a, b)
				if err != nil {
					abort()
				}
				return err
			})

			err := g.Wait()
			_ = a.Close()
			_ = b.Close()

			_ = ex.Post(func() {
				if err != nil {
					reject(err)
					return
				}
				resolve()
			})
		}()
	})
}

// pump copies from src to dst until src is drained, then half-closes dst's
// write side if it supports one. A clean EOF is not an error: io.CopyBuffer
// treats it as a successful end of the stream, matching the drain-then-close
// behavior of a half-duplex shutdown.
func pump(dst io.Writer, src io.Reader) error {
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		return err
	}
	if hc, ok := dst.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}
