// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "net/http"

// Run binds address:port and serves app until SIGINT or Shutdown. Startup
// failures are returned as *api.SocketError naming the failing step.
func Run(address string, port int, app http.Handler, opts ...Option) error {
	cfg := DefaultConfig()
	cfg.Address = address
	cfg.Port = port
	s, err := New(cfg, app, opts...)
	if err != nil {
		return err
	}
	return s.Serve()
}
