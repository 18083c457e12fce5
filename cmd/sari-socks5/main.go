// Command sari-socks5 runs a minimal SOCKS5 proxy on top of the promise
// and reactor packages: one reactor.Loop owns every connection's promise
// chain, while a single accept goroutine feeds it new connections.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"

	"github.com/petr-suchy/sari-go/reactor"
	"github.com/petr-suchy/sari-go/socks5"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var listenAddr string
	var mailboxSize int

	cmd := &cobra.Command{
		Use:   "sari-socks5",
		Short: "A minimal SOCKS5 proxy built on sari-go's promise/reactor packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), listenAddr, mailboxSize)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:1080", "address to listen on")
	cmd.Flags().IntVar(&mailboxSize, "mailbox-size", 256, "reactor task mailbox capacity")

	return cmd
}

func run(ctx context.Context, listenAddr string, mailboxSize int) error {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
	)

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("sari-socks5: listen: %w", err)
	}
	defer ln.Close()

	loop := reactor.New(
		reactor.WithMailboxSize(mailboxSize),
		reactor.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go acceptLoop(ctx, ln, loop, logger)

	logger.Info().Str("addr", listenAddr).Log("sari-socks5: listening")

	err = loop.Run(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, loop *reactor.Loop, logger *logiface.Logger[*stumpy.Event]) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Err().Err(err).Log("sari-socks5: accept failed")
				return
			}
		}

		if err := loop.Post(func() {
			socks5.Serve(loop, conn, nil, connLogger{logger})
		}); err != nil {
			_ = conn.Close()
		}
	}
}

type connLogger struct {
	logger *logiface.Logger[*stumpy.Event]
}

func (l connLogger) Connected(id string, dest string) {
	l.logger.Info().Str("conn", id).Str("dest", dest).Log("sari-socks5: connected")
}

func (l connLogger) Failed(id string, dest string, err error) {
	l.logger.Err().Str("conn", id).Str("dest", dest).Err(err).Log("sari-socks5: failed")
}
