//go:build linux
// +build linux

// File: server/server_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"net/http"
	"os"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/cache"
	"github.com/momentics/hioload-http/control"
	"github.com/momentics/hioload-http/pool"
	"github.com/momentics/hioload-http/protocol"
	"github.com/momentics/hioload-http/reactor"
)

var ErrAlreadyRunning = errors.New("server already running")

const tracerName = "github.com/momentics/hioload-http/server"

// Server owns the listener, the reactor and every live connection.
type Server struct {
	cfg     Config
	ln      *Listener
	reactor api.Reactor
	app     http.Handler
	store   *cache.Store
	log     *zap.Logger
	tracer  trace.Tracer
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes

	parserConfig protocol.Config
	scratch      []byte // read buffer, reactor goroutine only
	conns        *pool.SyncPool[*conn]
	active       map[int]*conn
	ctl          *shutdownController

	serving atomic.Bool
}

// New binds the listener described by cfg and prepares a reactor. app
// serves every routable request; it may be nil when WithRouter is given.
func New(cfg *Config, app http.Handler, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := cfg.withDefaults()
	o := buildOptions(opts)

	s := &Server{
		cfg:     c,
		app:     app,
		log:     o.log,
		tracer:  o.tracer.Tracer(tracerName),
		metrics: o.metrics,
		probes:  control.NewDebugProbes(),
		scratch: make([]byte, c.ReadBufferSize),
		active:  make(map[int]*conn),
	}

	classifier := o.classifier
	if o.router != nil {
		s.app = o.router
		if classifier == nil {
			classifier = o.router
		}
	}
	if classifier == nil {
		if cl, ok := s.app.(api.Classifier); ok {
			classifier = cl
		}
	}
	s.parserConfig = protocol.Config{
		MaxHeaderBytes: c.MaxHeaderBytes,
		MaxBodyBytes:   c.MaxBodyBytes,
		Classifier:     classifier,
	}

	s.store = o.store
	if s.store == nil && c.CacheSize > 0 {
		store, err := cache.New(c.CacheSize)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	ln, err := Listen(c.Address, c.Port, c.Backlog)
	if err != nil {
		return nil, err
	}
	s.ln = ln

	s.reactor = o.reactor
	if s.reactor == nil {
		r, err := reactor.New(reactor.WithLogger(s.log))
		if err != nil {
			ln.Close()
			return nil, err
		}
		s.reactor = r
	}
	s.ctl = newShutdownController(s.reactor, s.log)

	s.conns = pool.NewSyncPool(func() *conn { return newConn(s) }, (*conn).reset)
	s.registerProbes()
	return s, nil
}

func (s *Server) registerProbes() {
	s.probes.RegisterProbe("listener.addr", func() any { return s.ln.Addr() })
	s.probes.RegisterProbe("pool.in_use", func() any { return s.conns.InUse() })
	s.probes.RegisterProbe("pool.created", func() any { return s.conns.Created() })
	s.probes.RegisterProbe("cache.entries", func() any {
		if s.store == nil {
			return 0
		}
		return s.store.Len()
	})
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.ln.Addr() }

// Port returns the bound listener port.
func (s *Server) Port() int { return s.ln.Port }

// Serve runs the reactor until Shutdown or SIGINT. It returns
// api.ErrInterrupted when stopped by the signal and nil when stopped by
// Shutdown. The listener and reactor are closed on return.
func (s *Server) Serve() error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.release()

	if err := unix.SetNonblock(s.ln.Fd(), true); err != nil {
		return &api.SocketError{Phase: api.PhaseListen, Cause: err}
	}
	if err := s.reactor.Register(s.ln.Fd(), api.InterestRead, s.onAcceptable); err != nil {
		return err
	}
	s.ctl.watch(s.ln.Fd())

	sigfd, err := s.reactor.Signal(s.onSignal, os.Interrupt)
	if err != nil {
		return err
	}
	s.ctl.watch(sigfd)

	s.metrics.Set("listener.addr", s.ln.Addr())
	s.log.Info("serving", zap.String("addr", s.ln.Addr()), zap.Int("backlog", s.ln.Backlog))
	if err := s.reactor.Run(); err != nil {
		return err
	}
	return s.ctl.reason()
}

// Shutdown asks the reactor to stop. Safe to call from any goroutine and
// any number of times.
func (s *Server) Shutdown() {
	s.reactor.Post(func() { s.ctl.trigger(nil) })
}

// Stats returns the current counters. Safe for concurrent use.
func (s *Server) Stats() Stats {
	return statsFrom(s.metrics)
}

// DebugState evaluates the registered debug probes.
func (s *Server) DebugState() map[string]any {
	return s.probes.DumpState()
}

func (s *Server) onSignal(sig os.Signal) {
	s.log.Info("received signal, shutting down", zap.Stringer("signal", sig))
	s.ctl.trigger(api.ErrInterrupted)
}

func (s *Server) onAcceptable(fd int, _ api.Interest) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		s.metrics.Add(MetricAcceptErrors, 1)
		s.log.Debug("accept failed", zap.Error(&api.SocketError{Phase: api.PhaseAccept, Cause: err}))
		return
	}

	c := s.conns.Get()
	s.active[nfd] = c
	s.metrics.Add(MetricAccepted, 1)
	s.metrics.Add(MetricActive, 1)
	if err := c.open(nfd, peerString(sa)); err != nil {
		s.log.Debug("register connection", zap.Int("fd", nfd), zap.Error(err))
		c.teardown()
	}
}

// release closes everything Serve opened. In-flight connections are
// abandoned; their handlers are still finalized.
func (s *Server) release() {
	for _, c := range s.active {
		c.abandon()
	}
	s.log.Debug("server state at exit", zap.Any("state", s.DebugState()))
	if err := s.ln.Close(); err != nil {
		s.log.Debug("close listener", zap.Error(err))
	}
	if err := s.reactor.Close(); err != nil {
		s.log.Debug("close reactor", zap.Error(err))
	}
}
