// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral options for the event reactor.

package reactor

import "go.uber.org/zap"

const defaultMaxEvents = 128

type options struct {
	maxEvents int
	log       *zap.Logger
}

// Option customizes reactor construction.
type Option func(*options)

// WithMaxEvents sets how many readiness events one poll call may return.
func WithMaxEvents(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEvents = n
		}
	}
}

// WithLogger sets the logger used for recovered callback panics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		maxEvents: defaultMaxEvents,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
