// File: handler/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handler

import (
	"fmt"
	"net/http"
)

// responseWriter records what an http.Handler produced. Every non-empty
// Write becomes one response chunk.
type responseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	chunks      [][]byte
	size        int
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if code < 100 || code > 999 {
		panic(fmt.Sprintf("invalid WriteHeader code %v", code))
	}
	if w.wroteHeader {
		return
	}
	// informational responses are not forwarded
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if len(p) == 0 {
		return 0, nil
	}
	// the application may reuse p after Write returns
	chunk := make([]byte, len(p))
	copy(chunk, p)
	w.chunks = append(w.chunks, chunk)
	w.size += len(p)
	return len(p), nil
}

// Flush implements http.Flusher. Chunk boundaries already follow Write calls.
func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
}

func (w *responseWriter) statusCode() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.status
}

// bodyAllowed reports whether a response with status may carry a body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

var (
	_ http.ResponseWriter = (*responseWriter)(nil)
	_ http.Flusher        = (*responseWriter)(nil)
)
