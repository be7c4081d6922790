// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the single-threaded, readiness-based
// event reactor that multiplexes the listener, the signal bridge and all
// client connections.

package api

import "os"

// Callback is invoked on the reactor goroutine with the readiness set
// reported for fd.
type Callback func(fd int, events Interest)

// Reactor dispatches readiness callbacks for registered descriptors.
type Reactor interface {
	// Register starts interest for fd. Interest already active is a no-op;
	// the callback replaces any previous one for fd.
	Register(fd int, interest Interest, cb Callback) error

	// Unregister stops interest for fd. Stopping interest that is not
	// active is a no-op. When no interest remains fd is removed entirely.
	Unregister(fd int, interest Interest) error

	// Registered reports the interest currently active for fd.
	Registered(fd int) Interest

	// Signal bridges the given OS signals into the loop: cb runs on the
	// reactor goroutine. It returns the descriptor of the bridge watcher.
	Signal(cb func(os.Signal), sigs ...os.Signal) (int, error)

	// Post schedules fn on the reactor goroutine. Safe for concurrent use.
	Post(fn func())

	// Run blocks dispatching callbacks until Stop.
	Run() error

	// Stop makes Run return after the current batch. Idempotent and safe
	// for concurrent use.
	Stop()

	// Close releases the poller. Idempotent.
	Close() error
}
