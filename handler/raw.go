// File: handler/raw.go
// Package handler implements the response handler variants driven by the
// server's write phase: Raw (canned bytes), Application (an http.Handler)
// and Cache (a stored response).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handler

import (
	"errors"

	"github.com/momentics/hioload-http/api"
)

// Canned responses. They are shared and must never be modified.
var (
	NotFoundResponse      = []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
	InternalErrorResponse = []byte("HTTP/1.1 500 Internal Server Error\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
)

// pending is the unsent tail of a byte slice owned by someone else.
type pending struct {
	buf []byte
	err error // write error that ended the response early
}

// flush writes until buf is empty or the socket would block.
func (p *pending) flush(c api.Conn) api.WriteResult {
	for len(p.buf) > 0 {
		n, err := c.Write(p.buf)
		if n > 0 {
			p.buf = p.buf[n:]
		}
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return api.NotYetFinished
			}
			// peer is gone, nothing more can be delivered
			p.buf = nil
			p.err = err
			return api.Finished
		}
		if n == 0 {
			return api.NotYetFinished
		}
	}
	return api.Finished
}

// Raw sends a fixed byte response.
type Raw struct {
	resp []byte
	out  pending
}

// NewRaw returns a Raw handler with no response selected.
func NewRaw() *Raw {
	return &Raw{}
}

// Use selects the response to send. The slice is not copied.
func (r *Raw) Use(resp []byte) {
	r.resp = resp
}

// Initialize implements api.Handler. It only fails if no response was
// selected, which is a programming error.
func (r *Raw) Initialize(api.Conn) bool {
	if len(r.resp) == 0 {
		return false
	}
	r.out = pending{buf: r.resp}
	return true
}

// Write implements api.Handler.
func (r *Raw) Write(c api.Conn) api.WriteResult {
	return r.out.flush(c)
}

// Finalize implements api.Handler.
func (r *Raw) Finalize(api.Conn) {
	r.resp = nil
	r.out = pending{}
}

// Kind implements api.Handler.
func (*Raw) Kind() api.HandlerKind { return api.KindRaw }

// Err returns the write error that ended the response early, if any.
func (r *Raw) Err() error { return r.out.err }

var _ api.Handler = (*Raw)(nil)
