// File: server/config.go
// Package server implements the single-reactor HTTP server: listener,
// per-connection read and write phases, handler dispatch and shutdown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/cache"
	"github.com/momentics/hioload-http/control"
	"github.com/momentics/hioload-http/protocol"
	"github.com/momentics/hioload-http/router"
)

const (
	DefaultBacklog        = 1024
	DefaultReadBufferSize = 4096
)

// Config holds all server-side configuration parameters.
type Config struct {
	Address        string `mapstructure:"address"`          // bind address, IPv4 or IPv6
	Port           int    `mapstructure:"port"`             // 0 binds an ephemeral port
	Backlog        int    `mapstructure:"backlog"`          // listen(2) queue length
	ReadBufferSize int    `mapstructure:"read_buffer_size"` // bytes per read call
	MaxHeaderBytes int    `mapstructure:"max_header_bytes"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
	CacheSize      int    `mapstructure:"cache_size"` // 0 disables response caching
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:        "0.0.0.0",
		Port:           8080,
		Backlog:        DefaultBacklog,
		ReadBufferSize: DefaultReadBufferSize,
		MaxHeaderBytes: protocol.DefaultMaxHeaderBytes,
		MaxBodyBytes:   protocol.DefaultMaxBodyBytes,
		CacheSize:      cache.DefaultSize,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Backlog <= 0 {
		c.Backlog = d.Backlog
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	return c
}

type options struct {
	log        *zap.Logger
	router     *router.Router
	store      *cache.Store
	reactor    api.Reactor
	tracer     trace.TracerProvider
	metrics    *control.MetricsRegistry
	classifier api.Classifier
}

// Option customizes server initialization.
type Option func(*options)

// WithLogger sets the server logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRouter serves rt and uses it to classify requests. It replaces the
// application passed to New.
func WithRouter(rt *router.Router) Option {
	return func(o *options) {
		o.router = rt
	}
}

// WithClassifier overrides request classification.
func WithClassifier(c api.Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithCache uses store for cacheable routes instead of building one from
// Config.CacheSize.
func WithCache(store *cache.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithReactor runs the server on r. The server takes ownership and closes
// it when Serve returns.
func WithReactor(r api.Reactor) Option {
	return func(o *options) {
		o.reactor = r
	}
}

// WithTracerProvider sets where per-connection spans go. The default is
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp
		}
	}
}

// WithMetrics records counters into mr instead of a private registry.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(o *options) {
		if mr != nil {
			o.metrics = mr
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:    zap.NewNop(),
		tracer: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = control.NewMetricsRegistry()
	}
	return o
}
