package cmdproxy_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/petr-suchy/sari-go/cmdproxy"
	"github.com/petr-suchy/sari-go/reactor"
)

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

func await(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cmdproxy session to settle")
	}
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	return line
}

func TestPingAndQuit(t *testing.T) {
	ex := runLoop(t)

	client, server := net.Pipe()
	clientR := bufio.NewReader(client)

	done := make(chan struct{})
	var fulfilled bool
	cmdproxy.Serve(ex, server, nil).
		Then(func() { fulfilled = true; close(done) }).
		Fail(func(err error) { t.Errorf("Serve() rejected: %v", err); close(done) })

	go func() {
		_, _ = client.Write([]byte("PING\n"))
		_, _ = client.Write([]byte("QUIT\n"))
	}()

	reply := readLine(t, clientR)
	if reply != "PONG\n" {
		t.Fatalf("reply = %q, want %q", reply, "PONG\n")
	}
	reply = readLine(t, clientR)
	if reply != "BYE\n" {
		t.Fatalf("reply = %q, want %q", reply, "BYE\n")
	}
	_ = client.Close()

	await(t, done)

	if !fulfilled {
		t.Fatal("Serve() did not fulfill after QUIT")
	}
}

func TestEchoJoinsArgsWithSpaces(t *testing.T) {
	ex := runLoop(t)

	client, server := net.Pipe()
	clientR := bufio.NewReader(client)

	done := make(chan struct{})
	cmdproxy.Serve(ex, server, nil).Fail(func(err error) {
		t.Errorf("Serve() rejected: %v", err)
	})

	go func() {
		_, _ = client.Write([]byte("ECHO hello there world\n"))
		_, _ = client.Write([]byte("QUIT\n"))
	}()

	reply := readLine(t, clientR)
	if reply != "hello there world\n" {
		t.Fatalf("reply = %q, want %q", reply, "hello there world\n")
	}
	reply = readLine(t, clientR)
	if reply != "BYE\n" {
		t.Fatalf("reply = %q, want %q", reply, "BYE\n")
	}
	_ = client.Close()
	close(done)

	await(t, done)
}

func TestTimeUsesInjectedClock(t *testing.T) {
	ex := runLoop(t)

	client, server := net.Pipe()
	clientR := bufio.NewReader(client)

	fixed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	cmdproxy.Serve(ex, server, func() time.Time { return fixed }).Fail(func(err error) {
		t.Errorf("Serve() rejected: %v", err)
	})

	go func() {
		_, _ = client.Write([]byte("TIME\n"))
		_, _ = client.Write([]byte("QUIT\n"))
	}()

	reply := readLine(t, clientR)
	want := fixed.UTC().Format(time.RFC3339) + "\n"
	if reply != want {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
	_ = readLine(t, clientR) // BYE
	_ = client.Close()
}

func TestUnknownCommandReportsError(t *testing.T) {
	ex := runLoop(t)

	client, server := net.Pipe()
	clientR := bufio.NewReader(client)

	cmdproxy.Serve(ex, server, nil).Fail(func(err error) {
		t.Errorf("Serve() rejected: %v", err)
	})

	go func() {
		_, _ = client.Write([]byte("BOGUS\n"))
		_, _ = client.Write([]byte("QUIT\n"))
	}()

	reply := readLine(t, clientR)
	want := "ERR unknown command \"BOGUS\"\n"
	if reply != want {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
	_ = readLine(t, clientR) // BYE
	_ = client.Close()
}

func TestBlankLineGetsNoReply(t *testing.T) {
	ex := runLoop(t)

	client, server := net.Pipe()
	clientR := bufio.NewReader(client)

	cmdproxy.Serve(ex, server, nil).Fail(func(err error) {
		t.Errorf("Serve() rejected: %v", err)
	})

	go func() {
		_, _ = client.Write([]byte("   \n"))
		_, _ = client.Write([]byte("PING\n"))
		_, _ = client.Write([]byte("QUIT\n"))
	}()

	// The blank line produces no response, so the first line read back is
	// PING's reply, not an echo of the blank input.
	reply := readLine(t, clientR)
	if reply != "PONG\n" {
		t.Fatalf("reply = %q, want %q", reply, "PONG\n")
	}
	_ = readLine(t, clientR) // BYE
	_ = client.Close()
}

func TestDisconnectWithoutQuitRejects(t *testing.T) {
	ex := runLoop(t)

	client, server := net.Pipe()

	done := make(chan struct{})
	var got error
	cmdproxy.Serve(ex, server, nil).Fail(func(err error) {
		got = err
		close(done)
	})

	_ = client.Close()

	await(t, done)

	if got == nil {
		t.Fatal("Serve() did not reject after an abrupt disconnect")
	}
}
