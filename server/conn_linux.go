//go:build linux
// +build linux

// File: server/conn_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One client transaction: read a request, select a handler, write the
// response, close. Every method runs on the reactor goroutine.

package server

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/handler"
	"github.com/momentics/hioload-http/protocol"
)

type phase uint8

const (
	phaseIdle phase = iota
	phaseRead
	phaseWrite
	phaseClosed
)

type conn struct {
	srv  *Server
	fd   int
	peer string

	parser  protocol.Parser
	outcome api.Outcome
	err     error // pending parse or application error

	raw    *handler.Raw
	app    *handler.App
	cached *handler.Cache

	handler api.Handler // one of raw, app, cached once dispatched
	phase   phase
	span    trace.Span
}

func newConn(s *Server) *conn {
	c := &conn{
		srv:    s,
		fd:     -1,
		raw:    handler.NewRaw(),
		app:    handler.NewApp(s.app, s.store, s.log),
		cached: handler.NewCache(s.store),
	}
	c.parser.Init(s.parserConfig)
	return c
}

// reset returns c to the state newConn left it in.
func (c *conn) reset() {
	c.fd = -1
	c.peer = ""
	c.parser.Reset()
	c.outcome = api.OutcomeIncomplete
	c.err = nil
	c.handler = nil
	c.phase = phaseIdle
	c.span = nil
}

// open binds c to an accepted descriptor and starts the read phase.
func (c *conn) open(fd int, peer string) error {
	c.fd = fd
	c.peer = peer
	c.phase = phaseRead
	_, c.span = c.srv.tracer.Start(context.Background(), "http.connection",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("net.peer", peer),
			attribute.Int("fd", fd),
		),
	)
	return c.srv.reactor.Register(fd, api.InterestRead, c.onReadable)
}

// Write implements api.Conn.
func (c *conn) Write(p []byte) (int, error) {
	n, err := unix.Write(c.fd, p)
	if n < 0 {
		n = 0
	}
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return n, api.ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

// Request implements api.Conn.
func (c *conn) Request() *http.Request { return c.parser.Request() }

// Outcome implements api.Conn.
func (c *conn) Outcome() api.Outcome { return c.outcome }

// Err implements api.Conn.
func (c *conn) Err() error { return c.err }

func (c *conn) onReadable(fd int, _ api.Interest) {
	if c.phase != phaseRead {
		return
	}
	buf := c.srv.scratch
	n, err := unix.Read(fd, buf)
	switch {
	case err != nil:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		// peer vanished mid-request, nobody is left to answer
		c.srv.metrics.Add(MetricReadResets, 1)
		c.srv.log.Debug("read failed", zap.Int("fd", fd), zap.String("peer", c.peer), zap.Error(err))
		c.teardown()
	case n == 0:
		c.dispatch(c.parser.Finish())
	default:
		if out := c.parser.Feed(buf[:n]); out != api.OutcomeIncomplete {
			c.dispatch(out)
		}
	}
}

// dispatch picks the handler for outcome and commits to the write phase.
func (c *conn) dispatch(outcome api.Outcome) {
	c.outcome = outcome
	c.err = c.parser.Err()
	if req := c.Request(); req != nil {
		req.RemoteAddr = c.peer
	}
	c.handler = c.selectHandler(outcome)

	kind := c.handler.Kind()
	c.srv.metrics.Add(ResponsesMetric(kind), 1)
	c.span.SetAttributes(
		attribute.String("http.outcome", outcome.String()),
		attribute.String("http.handler", kind.String()),
	)
	if req := c.Request(); req != nil {
		c.span.SetAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.RequestURI),
		)
	}

	if err := c.srv.reactor.Unregister(c.fd, api.InterestRead); err != nil {
		c.srv.log.Debug("stop read interest", zap.Int("fd", c.fd), zap.Error(err))
	}
	c.phase = phaseWrite
	if err := c.srv.reactor.Register(c.fd, api.InterestWrite, c.onWritable); err != nil {
		c.srv.log.Debug("start write interest", zap.Int("fd", c.fd), zap.Error(err))
		c.finish()
	}
}

// selectHandler walks the fallback chain: cache, application, 500. An
// unroutable request goes straight to the 404.
func (c *conn) selectHandler(outcome api.Outcome) api.Handler {
	switch outcome {
	case api.OutcomeCacheable:
		if c.srv.store != nil && c.cached.Initialize(c) {
			return c.cached
		}
		return c.application()
	case api.OutcomeOK:
		return c.application()
	case api.OutcomeNotFound:
		return c.canned(handler.NotFoundResponse)
	default:
		c.reportPending()
		return c.canned(handler.InternalErrorResponse)
	}
}

func (c *conn) application() api.Handler {
	if c.app.Initialize(c) {
		return c.app
	}
	c.err = c.app.Err()
	c.reportPending()
	return c.canned(handler.InternalErrorResponse)
}

func (c *conn) canned(resp []byte) api.Handler {
	c.raw.Use(resp)
	if !c.raw.Initialize(c) {
		panic("raw handler failed to initialize with a canned response")
	}
	return c.raw
}

// reportPending logs the error that is about to turn into a 500.
func (c *conn) reportPending() {
	if c.err == nil {
		return
	}
	c.span.RecordError(c.err)
	c.span.SetStatus(codes.Error, c.err.Error())

	var perr *api.ParseError
	if errors.As(c.err, &perr) {
		c.srv.log.Debug("bad request", zap.Int("fd", c.fd), zap.String("peer", c.peer), zap.Error(c.err))
		return
	}
	c.srv.log.Error("application failed", zap.Int("fd", c.fd), zap.String("peer", c.peer), zap.Error(c.err))
}

func (c *conn) onWritable(int, api.Interest) {
	if c.phase != phaseWrite {
		return
	}
	switch res := c.handler.Write(c); res {
	case api.NotYetFinished:
	case api.Finished:
		c.finish()
	default:
		kind := c.handler.Kind()
		c.finish()
		panic(&api.HandlerWriteError{Kind: kind, Result: res})
	}
}

// finish ends a dispatched connection: close, finalize, release.
func (c *conn) finish() {
	if err := c.srv.reactor.Unregister(c.fd, api.InterestRead|api.InterestWrite); err != nil {
		c.srv.log.Debug("stop interest", zap.Int("fd", c.fd), zap.Error(err))
	}
	_ = unix.Close(c.fd)
	c.handler.Finalize(c)
	c.destroy()
}

// teardown ends a connection that never got a handler.
func (c *conn) teardown() {
	if err := c.srv.reactor.Unregister(c.fd, api.InterestRead|api.InterestWrite); err != nil {
		c.srv.log.Debug("stop interest", zap.Int("fd", c.fd), zap.Error(err))
	}
	_ = unix.Close(c.fd)
	c.destroy()
}

// abandon closes c during shutdown without waiting for its response.
func (c *conn) abandon() {
	_ = unix.Close(c.fd)
	if c.handler != nil {
		c.handler.Finalize(c)
	}
	c.destroy()
}

// destroy is the only place a connection is released.
func (c *conn) destroy() {
	if c.phase == phaseClosed {
		return
	}
	c.phase = phaseClosed
	delete(c.srv.active, c.fd)
	c.srv.metrics.Add(MetricActive, -1)
	c.srv.metrics.Add(MetricClosed, 1)
	if c.span != nil {
		c.span.End()
	}
	c.srv.conns.Put(c)
}

var _ api.Conn = (*conn)(nil)
