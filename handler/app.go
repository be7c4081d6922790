// File: handler/app.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Application handler: runs an http.Handler synchronously during
// Initialize and streams the recorded response, one chunk per writable
// event, the same way an iterator over response chunks would be drained.

package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/eapache/queue"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/cache"
)

// ErrNoRequest is the decline cause when the parser produced no request.
var ErrNoRequest = errors.New("no parsed request")

// App delegates response production to an http.Handler. A handler
// declines the request by panicking, conventionally with
// http.ErrAbortHandler; Initialize then returns false.
type App struct {
	app   http.Handler
	store *cache.Store
	log   *zap.Logger

	head   *bytebufferpool.ByteBuffer
	chunks *queue.Queue // []byte, head first
	out    pending
	req    *http.Request
	err    error
}

// NewApp returns an Application handler for h. When store is non-nil,
// successful responses to cacheable requests are stored in it.
func NewApp(h http.Handler, store *cache.Store, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		app:    h,
		store:  store,
		log:    log,
		chunks: queue.New(),
	}
}

// Initialize implements api.Handler.
func (a *App) Initialize(c api.Conn) bool {
	a.err = nil
	req := c.Request()
	if req == nil || a.app == nil {
		a.err = &api.HandlerInitError{Kind: api.KindApplication, Cause: ErrNoRequest}
		return false
	}
	w := newResponseWriter()
	if err := a.serve(w, req); err != nil {
		a.err = &api.HandlerInitError{Kind: api.KindApplication, Cause: err}
		return false
	}
	a.req = req

	a.encode(w, req)
	if a.store != nil && c.Outcome() == api.OutcomeCacheable && w.statusCode() == http.StatusOK {
		a.remember(req)
	}
	return true
}

// serve runs the application, turning a panic into an error.
func (a *App) serve(w http.ResponseWriter, req *http.Request) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if e, ok := v.(error); ok {
			err = e
		} else {
			err = fmt.Errorf("recovered from panic: %v", v)
		}
	}()
	a.app.ServeHTTP(w, req)
	return nil
}

// encode serializes the status line and header into a pooled buffer and
// queues it in front of the body chunks.
func (a *App) encode(w *responseWriter, req *http.Request) {
	status := w.statusCode()
	h := w.header.Clone()
	h.Del("Transfer-Encoding")
	h.Set("Connection", "close")
	if h.Get("Date") == "" {
		h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	withBody := bodyAllowed(status)
	if withBody {
		if h.Get("Content-Length") == "" {
			h.Set("Content-Length", strconv.Itoa(w.size))
		}
		if w.size > 0 && h.Get("Content-Type") == "" {
			h.Set("Content-Type", http.DetectContentType(w.chunks[0]))
		}
	} else {
		h.Del("Content-Length")
	}

	text := http.StatusText(status)
	if text == "" {
		text = "status code " + strconv.Itoa(status)
	}

	a.head = bytebufferpool.Get()
	fmt.Fprintf(a.head, "HTTP/1.1 %03d %s\r\n", status, text)
	_ = h.Write(a.head)
	a.head.WriteString("\r\n")

	a.chunks.Add(a.head.B)
	if withBody && req.Method != http.MethodHead {
		for _, chunk := range w.chunks {
			a.chunks.Add(chunk)
		}
	}
}

// remember stores the serialized response for later Cache hits.
func (a *App) remember(req *http.Request) {
	key, ok := cache.Key(req)
	if !ok {
		return
	}
	size := 0
	for i := 0; i < a.chunks.Length(); i++ {
		size += len(a.chunks.Get(i).([]byte))
	}
	resp := make([]byte, 0, size)
	for i := 0; i < a.chunks.Length(); i++ {
		resp = append(resp, a.chunks.Get(i).([]byte)...)
	}
	a.store.Put(key, resp)
	a.log.Debug("stored response in cache", zap.String("key", key), zap.Int("bytes", size))
}

// Write implements api.Handler. Each call sends at most one chunk.
func (a *App) Write(c api.Conn) api.WriteResult {
	if len(a.out.buf) == 0 {
		if a.chunks.Length() == 0 {
			return api.Finished
		}
		a.out.buf = a.chunks.Remove().([]byte)
	}
	if a.out.flush(c) == api.NotYetFinished {
		return api.NotYetFinished
	}
	if a.out.err != nil || a.chunks.Length() == 0 {
		return api.Finished
	}
	return api.NotYetFinished
}

// Finalize implements api.Handler. It hands the header buffer back to its
// pool and releases the request body.
func (a *App) Finalize(api.Conn) {
	for a.chunks.Length() > 0 {
		a.chunks.Remove()
	}
	if a.head != nil {
		bytebufferpool.Put(a.head)
		a.head = nil
	}
	if a.req != nil && a.req.Body != nil {
		_ = a.req.Body.Close()
	}
	a.req = nil
	a.out = pending{}
}

// Kind implements api.Handler.
func (*App) Kind() api.HandlerKind { return api.KindApplication }

// Err returns the reason the last Initialize declined, if it did.
func (a *App) Err() error { return a.err }

var _ api.Handler = (*App)(nil)
