// Command sari-cmdproxy runs the line-oriented PING/ECHO/TIME/QUIT demo
// server over TCP.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"

	"github.com/petr-suchy/sari-go/cmdproxy"
	"github.com/petr-suchy/sari-go/reactor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "sari-cmdproxy",
		Short: "A tiny line-oriented command server (PING/ECHO/TIME/QUIT)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7070", "address to listen on")

	return cmd
}

func run(ctx context.Context, listenAddr string) error {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
	)

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("sari-cmdproxy: listen: %w", err)
	}
	defer ln.Close()

	loop := reactor.New(reactor.WithLogger(logger))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					logger.Err().Err(err).Log("sari-cmdproxy: accept failed")
					return
				}
			}

			if err := loop.Post(func() {
				cmdproxy.Serve(loop, conn, nil).
					Fail(func(err error) {
						logger.Err().Err(err).Log("sari-cmdproxy: session failed")
					})
			}); err != nil {
				_ = conn.Close()
			}
		}
	}()

	logger.Info().Str("addr", listenAddr).Log("sari-cmdproxy: listening")

	err = loop.Run(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
