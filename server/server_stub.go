//go:build !linux
// +build !linux

// File: server/server_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net/http"

	"github.com/momentics/hioload-http/api"
)

// Server is unavailable on this platform.
type Server struct{}

// New reports api.ErrNotSupported.
func New(*Config, http.Handler, ...Option) (*Server, error) {
	return nil, api.ErrNotSupported
}

// Serve reports api.ErrNotSupported.
func (*Server) Serve() error { return api.ErrNotSupported }

// Shutdown does nothing.
func (*Server) Shutdown() {}

// Stats returns zero counters.
func (*Server) Stats() Stats { return Stats{} }
