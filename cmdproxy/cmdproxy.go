// Package cmdproxy implements a tiny line-oriented command protocol:
// PING, ECHO <text>, TIME, and QUIT, read one line at a time and answered
// one line at a time, in the same read-line/respond/repeat shape as the
// original library's echo-coupler example.
package cmdproxy

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/petr-suchy/sari-go/ioasync"
	"github.com/petr-suchy/sari-go/promise"
	"github.com/petr-suchy/sari-go/reactor"
	"github.com/petr-suchy/sari-go/strsplit"
)

// Clock is the time source TIME reports; defaults to time.Now so tests can
// substitute a fixed clock.
type Clock func() time.Time

// Serve reads newline-terminated commands from conn and writes
// newline-terminated responses until the peer sends QUIT, disconnects, or
// an I/O error occurs. The returned Promise fulfills when the session ends
// with QUIT, and rejects with the read or write error when the peer
// disconnects without QUIT or an I/O error occurs; conn is closed either
// way.
func Serve(ex reactor.Executor, conn net.Conn, clock Clock) *promise.Promise {
	if clock == nil {
		clock = time.Now
	}

	r := bufio.NewReader(conn)

	return promise.Repeat(ex, func(...any) *promise.Promise {
		return ioasync.ReadUntil(ex, r, '\n').
			Then(func(line string) *promise.Promise {
				cmd, args := parseLine(line)

				if cmd == "" {
					return promise.Resolve(ex, true)
				}
				if cmd == "QUIT" {
					return writeLine(ex, conn, "BYE").Then(func() *promise.Promise {
						return promise.Resolve(ex, false)
					})
				}

				return writeLine(ex, conn, dispatch(cmd, args, clock)).
					Then(func() *promise.Promise {
						return promise.Resolve(ex, true)
					})
			})
	}).Finalize(func(*promise.Promise) {
		_ = conn.Close()
	})
}

func parseLine(line string) (cmd string, args []string) {
	fields := strsplit.Tokenize(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToUpper(fields[0]), fields[1:]
}

func dispatch(cmd string, args []string, clock Clock) string {
	switch cmd {
	case "PING":
		return "PONG"
	case "ECHO":
		return strings.Join(args, " ")
	case "TIME":
		return clock().UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("ERR unknown command %q", cmd)
	}
}

func writeLine(ex reactor.Executor, conn net.Conn, line string) *promise.Promise {
	buf := []byte(line + "\n")
	written := 0

	return promise.Repeat(ex, func(...any) *promise.Promise {
		return ioasync.WriteSome(ex, conn, buf[written:]).Then(func(k int) *promise.Promise {
			written += k
			return promise.Resolve(ex, written < len(buf))
		})
	})
}
