// File: cmd/hioload-http/main.go
// Package main
// Single-reactor HTTP server with a small demo application. Stops on
// SIGINT with exit status 130.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/server"
)

const exitInterrupted = 130

func main() {
	err := newCommand().Execute()
	switch {
	case err == nil:
	case errors.Is(err, api.ErrInterrupted):
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hioload-http",
		Short:         "Serve HTTP/1.1 from a single epoll reactor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := []server.Option{
		server.WithLogger(log),
		server.WithRouter(demoRoutes(time.Now())),
	}
	if cfg.Trace {
		tp, err := newTracerProvider()
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.TraceStop)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				log.Warn("flush spans", zap.Error(err))
			}
		}()
		opts = append(opts, server.WithTracerProvider(tp))
	}

	srv, err := server.New(&cfg.Server, nil, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.Serve()
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.Shutdown()
		return nil
	})
	err = g.Wait()
	log.Info("server stopped", zap.Any("stats", srv.Stats()), zap.Error(err))
	return err
}

func newTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}
