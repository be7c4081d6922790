// File: api/handler.go
// Package api defines the response handler protocol.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "net/http"

// Conn is the per-connection view a Handler works against. All methods are
// called from the reactor goroutine only.
type Conn interface {
	// Write performs one non-blocking write on the client socket.
	// It returns ErrWouldBlock when the socket buffer is full.
	Write(p []byte) (int, error)

	// Request returns the parsed request, or nil if parsing did not complete.
	Request() *http.Request

	// Outcome returns the parser outcome that selected the handler.
	Outcome() Outcome

	// Err returns the pending parse error, if any.
	Err() error
}

// Handler produces one response. Initialize is called once and may decline
// by returning false; Write is called on every writable event until it
// returns Finished; Finalize is called exactly once after the socket closed.
type Handler interface {
	Initialize(c Conn) bool
	Write(c Conn) WriteResult
	Finalize(c Conn)
	Kind() HandlerKind
}

// Classifier decides how a fully parsed request is routed.
type Classifier interface {
	Classify(r *http.Request) Outcome
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(r *http.Request) Outcome

// Classify implements Classifier.
func (f ClassifierFunc) Classify(r *http.Request) Outcome {
	return f(r)
}
