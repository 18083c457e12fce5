// Package socks5 implements a minimal SOCKS5 proxy handler: method
// negotiation (no-authentication only), the CONNECT command, and the
// relay once a tunnel is up. BIND and UDP ASSOCIATE are not implemented,
// matching the scope of the server this package is modeled on.
package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/petr-suchy/sari-go/ioasync"
	"github.com/petr-suchy/sari-go/promise"
	"github.com/petr-suchy/sari-go/reactor"
	"github.com/petr-suchy/sari-go/stream"
)

const protocolVersion = 5

// Command identifies the SOCKS5 request command.
type Command byte

const (
	CmdConnect      Command = 1
	CmdBind         Command = 2
	CmdUDPAssociate Command = 3
)

// AddressType identifies how a request's destination address is encoded.
type AddressType byte

const (
	AddrIPv4       AddressType = 1
	AddrDomainName AddressType = 3
	AddrIPv6       AddressType = 4
)

// ReplyCode is a SOCKS5 command reply status byte.
type ReplyCode byte

const (
	ReplySucceeded           ReplyCode = 0
	ReplyGeneralFailure      ReplyCode = 1
	ReplyCommandNotSupported ReplyCode = 7
	ReplyAddressNotSupported ReplyCode = 8
	ReplyHostUnreachable     ReplyCode = 4
)

// ErrInvalidVersion is returned when a peer's greeting does not carry the
// SOCKS5 protocol version byte.
var ErrInvalidVersion = errors.New("socks5: invalid protocol version")

// ErrNoAcceptableMethods is returned when a client's method list does not
// include no-authentication (0x00), the only method this package offers.
var ErrNoAcceptableMethods = errors.New("socks5: client offered no acceptable authentication methods")

// Dialer resolves and connects to a destination, the seam Serve uses
// instead of reaching for net.Dial/net.LookupHost itself, so tests can
// substitute a fake.
type Dialer interface {
	Dial(ex reactor.Executor, network, address string) *promise.Promise
}

// netDialer is the default Dialer, backed by ioasync.
type netDialer struct{}

func (netDialer) Dial(ex reactor.Executor, network, address string) *promise.Promise {
	return ioasync.Connect(ex, network, address)
}

// DefaultDialer dials directly via the operating system's resolver and
// TCP stack.
var DefaultDialer Dialer = netDialer{}

// Logger receives one diagnostic line per completed or failed connection.
// nil is a valid Logger: Serve skips logging entirely.
type Logger interface {
	Connected(id string, dest string)
	Failed(id string, dest string, err error)
}

// Serve negotiates the SOCKS5 handshake on conn, services a single
// CONNECT request, and relays bytes until either side closes. The
// returned Promise settles once the relay finishes (or the handshake
// fails); conn is always closed by the time it does.
func Serve(ex reactor.Executor, conn net.Conn, dialer Dialer, logger Logger) *promise.Promise {
	if dialer == nil {
		dialer = DefaultDialer
	}

	id := uuid.NewString()

	return negotiateMethod(ex, conn).
		Then(func() *promise.Promise {
			return readCommandRequest(ex, conn)
		}).
		Then(func(req *commandRequest) *promise.Promise {
			if req.cmd != CmdConnect {
				return writeCommandReply(ex, conn, ReplyCommandNotSupported, nil).
					Then(func() *promise.Promise {
						return promise.Reject(ex, fmt.Errorf("socks5: command %d not supported", req.cmd))
					})
			}

			dest := req.destination()

			// Fail handlers never recover a rejection to Fulfilled and
			// discard their return values, so the dial-then-reply-then-relay
			// sequencing here is driven by an explicit resolve/reject pair
			// rather than threading control flow through Fail's result.
			return promise.New(ex, func(resolve promise.ResolveFunc, reject promise.RejectFunc) {
				dialer.Dial(ex, "tcp", dest).
					Then(func(upstream net.Conn) {
						writeCommandReply(ex, conn, ReplySucceeded, upstream.LocalAddr()).
							Then(func() *promise.Promise {
								if logger != nil {
									logger.Connected(id, dest)
								}
								return stream.Forward(ex, conn, upstream)
							}).
							Finalize(func(*promise.Promise) {
								_ = upstream.Close()
							}).
							Then(func() { resolve() }).
							Fail(func(err error) { reject(err) })
					}).
					Fail(func(err error) {
						writeCommandReply(ex, conn, ReplyHostUnreachable, nil).
							Then(func() { reject(err) }).
							Fail(func(writeErr error) { reject(writeErr) })
					})
			})
		}).
		Fail(func(err error) {
			if logger != nil {
				logger.Failed(id, conn.RemoteAddr().String(), err)
			}
		}).
		Finalize(func(*promise.Promise) {
			_ = conn.Close()
		})
}

func negotiateMethod(ex reactor.Executor, conn net.Conn) *promise.Promise {
	return readExact(ex, conn, 2).
		Then(func(head []byte) *promise.Promise {
			if head[0] != protocolVersion {
				return promise.Reject(ex, ErrInvalidVersion)
			}
			nmethods := int(head[1])
			if nmethods == 0 {
				return promise.Resolve(ex, []byte{})
			}
			return readExact(ex, conn, nmethods)
		}).
		Then(func(methods []byte) *promise.Promise {
			accepted := false
			for _, m := range methods {
				if m == 0 {
					accepted = true
					break
				}
			}
			if !accepted {
				return writeExact(ex, conn, []byte{protocolVersion, 0xFF}).
					Then(func() *promise.Promise {
						return promise.Reject(ex, ErrNoAcceptableMethods)
					})
			}
			return writeExact(ex, conn, []byte{protocolVersion, 0})
		}).
		Then(func() {})
}

type commandRequest struct {
	cmd     Command
	atyp    AddressType
	addr    []byte
	port    uint16
	domain  string
	literal net.IP
}

func (r *commandRequest) destination() string {
	host := r.domain
	if host == "" {
		host = r.literal.String()
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", r.port))
}

func readCommandRequest(ex reactor.Executor, conn net.Conn) *promise.Promise {
	return readExact(ex, conn, 4).
		Then(func(head []byte) *promise.Promise {
			if head[0] != protocolVersion {
				return promise.Reject(ex, ErrInvalidVersion)
			}
			req := &commandRequest{cmd: Command(head[1]), atyp: AddressType(head[3])}

			switch req.atyp {
			case AddrIPv4:
				return readExact(ex, conn, 4).Then(func(b []byte) *promise.Promise {
					req.literal = net.IP(b)
					return finishCommandRequest(ex, conn, req)
				})
			case AddrIPv6:
				return readExact(ex, conn, 16).Then(func(b []byte) *promise.Promise {
					req.literal = net.IP(b)
					return finishCommandRequest(ex, conn, req)
				})
			case AddrDomainName:
				return readExact(ex, conn, 1).Then(func(lenBuf []byte) *promise.Promise {
					n := int(lenBuf[0])
					return readExact(ex, conn, n).Then(func(name []byte) *promise.Promise {
						req.domain = string(name)
						return finishCommandRequest(ex, conn, req)
					})
				})
			default:
				return promise.Reject(ex, fmt.Errorf("socks5: unsupported address type %d", req.atyp))
			}
		})
}

func finishCommandRequest(ex reactor.Executor, conn net.Conn, req *commandRequest) *promise.Promise {
	return readExact(ex, conn, 2).Then(func(portBuf []byte) *commandRequest {
		req.port = binary.BigEndian.Uint16(portBuf)
		return req
	})
}

// writeCommandReply writes a SOCKS5 command reply. bindAddr may be nil, in
// which case the reply carries the unspecified IPv4 address and port 0 -
// acceptable for a CONNECT reply, since clients are not expected to act on
// the bound address.
func writeCommandReply(ex reactor.Executor, conn net.Conn, code ReplyCode, bindAddr net.Addr) *promise.Promise {
	ip := net.IPv4zero.To4()
	var port uint16

	if tcpAddr, ok := bindAddr.(*net.TCPAddr); ok {
		if v4 := tcpAddr.IP.To4(); v4 != nil {
			ip = v4
		} else if v6 := tcpAddr.IP.To16(); v6 != nil {
			ip = v6
		}
		port = uint16(tcpAddr.Port)
	}

	atyp := byte(AddrIPv4)
	if len(ip) == 16 {
		atyp = byte(AddrIPv6)
	}

	buf := make([]byte, 0, 6+len(ip))
	buf = append(buf, protocolVersion, byte(code), 0, atyp)
	buf = append(buf, ip...)
	buf = append(buf, byte(port>>8), byte(port))

	return writeExact(ex, conn, buf)
}

// readExact reads exactly n bytes from r, fulfilling with them. It loops
// over ioasync.ReadSome via promise.Repeat, rather than blocking the
// calling goroutine on io.ReadFull, so a slow peer never ties up anything
// but its own connection's chain of promises.
func readExact(ex reactor.Executor, r io.Reader, n int) *promise.Promise {
	if n == 0 {
		return promise.Resolve(ex, []byte{})
	}

	buf := make([]byte, n)
	read := 0

	return promise.Repeat(ex, func(...any) *promise.Promise {
		return ioasync.ReadSome(ex, r, buf[read:]).Then(func(k int) *promise.Promise {
			read += k
			return promise.Resolve(ex, read < n)
		})
	}).Then(func() []byte {
		return buf
	})
}

// writeExact writes the entirety of buf to w, looping the same way
// readExact does.
func writeExact(ex reactor.Executor, w io.Writer, buf []byte) *promise.Promise {
	written := 0

	return promise.Repeat(ex, func(...any) *promise.Promise {
		return ioasync.WriteSome(ex, w, buf[written:]).Then(func(k int) *promise.Promise {
			written += k
			return promise.Resolve(ex, written < len(buf))
		})
	})
}
