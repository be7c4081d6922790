// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-http.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrNotSupported      = errors.New("operation not supported")
	ErrClosed            = errors.New("reactor is closed")
	ErrInterrupted       = errors.New("interrupted")
	ErrWouldBlock        = errors.New("operation would block")
	ErrHeaderTooLarge    = errors.New("request header too large")
	ErrBodyTooLarge      = errors.New("request body too large")
	ErrIncompleteRequest = errors.New("incomplete request")
)

// SocketPhase names the listener setup step that failed.
type SocketPhase string

const (
	PhaseSocket SocketPhase = "socket"
	PhaseBind   SocketPhase = "bind"
	PhaseListen SocketPhase = "listen"
	PhaseAccept SocketPhase = "accept"
)

// SocketError is returned when creating the listening socket or setting up
// an accepted client socket fails.
type SocketError struct {
	Phase SocketPhase
	Cause error
}

// Error implements the [builtin.error] interface.
func (e *SocketError) Error() string {
	return fmt.Sprintf("%s() failed: %s", e.Phase, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *SocketError) Unwrap() error {
	return e.Cause
}

// ParseError reports malformed request bytes.
type ParseError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse request: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// HandlerInitError records why a handler variant declined a request.
type HandlerInitError struct {
	Kind  HandlerKind
	Cause error
}

// Error implements the [builtin.error] interface.
func (e *HandlerInitError) Error() string {
	return fmt.Sprintf("%s handler declined: %s", e.Kind, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *HandlerInitError) Unwrap() error {
	return e.Cause
}

// HandlerWriteError is the panic value raised when a handler's Write
// returns something other than NotYetFinished or Finished.
type HandlerWriteError struct {
	Kind   HandlerKind
	Result WriteResult
}

// Error implements the [builtin.error] interface.
func (e *HandlerWriteError) Error() string {
	return fmt.Sprintf("%s handler returned invalid write result %d", e.Kind, int(e.Result))
}
