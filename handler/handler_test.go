package handler_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/cache"
	"github.com/momentics/hioload-http/handler"
)

// fakeConn accepts at most limit bytes per Write and reports
// api.ErrWouldBlock when blocked is set.
type fakeConn struct {
	out     bytes.Buffer
	limit   int
	blocked bool
	fail    error
	req     *http.Request
	outcome api.Outcome
	writes  int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writes++
	if c.fail != nil {
		return 0, c.fail
	}
	if c.blocked {
		return 0, api.ErrWouldBlock
	}
	if c.limit > 0 && len(p) > c.limit {
		p = p[:c.limit]
	}
	return c.out.Write(p)
}

func (c *fakeConn) Request() *http.Request { return c.req }
func (c *fakeConn) Outcome() api.Outcome   { return c.outcome }
func (c *fakeConn) Err() error             { return nil }

// drain calls Write until Finished and returns the intermediate results.
func drain(t *testing.T, h api.Handler, c api.Conn) []api.WriteResult {
	t.Helper()
	var results []api.WriteResult
	for i := 0; i < 1000; i++ {
		r := h.Write(c)
		results = append(results, r)
		if r == api.Finished {
			return results
		}
	}
	t.Fatal("handler never finished")
	return nil
}

func TestRawIsByteIdenticalAcrossConnections(t *testing.T) {
	for i := 0; i < 3; i++ {
		c := &fakeConn{}
		r := handler.NewRaw()
		r.Use(handler.NotFoundResponse)
		require.True(t, r.Initialize(c))
		drain(t, r, c)
		r.Finalize(c)
		assert.Equal(t, "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", c.out.String())
	}
}

func TestRawPartialWrites(t *testing.T) {
	c := &fakeConn{limit: 10}
	r := handler.NewRaw()
	r.Use(handler.InternalErrorResponse)
	require.True(t, r.Initialize(c))
	assert.Equal(t, api.Finished, r.Write(c))
	assert.Equal(t, handler.InternalErrorResponse, c.out.Bytes())
}

func TestRawWouldBlock(t *testing.T) {
	c := &fakeConn{blocked: true}
	r := handler.NewRaw()
	r.Use(handler.NotFoundResponse)
	require.True(t, r.Initialize(c))
	assert.Equal(t, api.NotYetFinished, r.Write(c))
	assert.Zero(t, c.out.Len())

	c.blocked = false
	assert.Equal(t, api.Finished, r.Write(c))
	assert.Equal(t, handler.NotFoundResponse, c.out.Bytes())
}

func TestRawPeerGone(t *testing.T) {
	c := &fakeConn{fail: syscall.EPIPE}
	r := handler.NewRaw()
	r.Use(handler.NotFoundResponse)
	require.True(t, r.Initialize(c))
	assert.Equal(t, api.Finished, r.Write(c))
	assert.ErrorIs(t, r.Err(), syscall.EPIPE)
}

func TestRawWithoutResponseDeclines(t *testing.T) {
	r := handler.NewRaw()
	assert.False(t, r.Initialize(&fakeConn{}))
	assert.Equal(t, api.KindRaw, r.Kind())
}

func TestCacheHitAndMiss(t *testing.T) {
	store, err := cache.New(4)
	require.NoError(t, err)
	store.Put("GET /hit", []byte("HTTP/1.1 200 OK\r\n\r\n"))

	h := handler.NewCache(store)
	miss := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/miss", nil)}
	assert.False(t, h.Initialize(miss))

	post := &fakeConn{req: httptest.NewRequest(http.MethodPost, "/hit", nil)}
	assert.False(t, h.Initialize(post))

	hit := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/hit", nil)}
	require.True(t, h.Initialize(hit))
	drain(t, h, hit)
	h.Finalize(hit)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", hit.out.String())

	assert.False(t, handler.NewCache(nil).Initialize(hit))
	assert.Equal(t, api.KindCache, h.Kind())
}

func TestAppDeclinesOnAbort(t *testing.T) {
	app := handler.NewApp(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}), nil, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/", nil), outcome: api.OutcomeOK}
	assert.False(t, app.Initialize(c))

	var initErr *api.HandlerInitError
	require.True(t, errors.As(app.Err(), &initErr))
	assert.Equal(t, api.KindApplication, initErr.Kind)
	assert.ErrorIs(t, app.Err(), http.ErrAbortHandler)
	app.Finalize(c)
}

func TestAppDeclinesWithoutRequest(t *testing.T) {
	app := handler.NewApp(http.NotFoundHandler(), nil, nil)
	assert.False(t, app.Initialize(&fakeConn{}))
	assert.ErrorIs(t, app.Err(), handler.ErrNoRequest)
}

func TestAppStreamsOneChunkPerWrite(t *testing.T) {
	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("A"))
		_, _ = w.Write(nil)
		_, _ = w.Write([]byte("B"))
		_, _ = w.Write([]byte("C"))
	}), nil, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/", nil), outcome: api.OutcomeOK}
	require.True(t, app.Initialize(c))

	// head, A, B, C
	results := drain(t, app, c)
	assert.Equal(t, []api.WriteResult{api.NotYetFinished, api.NotYetFinished, api.NotYetFinished, api.Finished}, results)
	app.Finalize(c)

	resp := c.out.String()
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, resp, "Content-Length: 3\r\n")
	assert.Contains(t, resp, "Connection: close\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\nABC"))
}

func TestAppEmptyBody(t *testing.T) {
	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), nil, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/", nil), outcome: api.OutcomeOK}
	require.True(t, app.Initialize(c))
	assert.Equal(t, []api.WriteResult{api.Finished}, drain(t, app, c))
	app.Finalize(c)

	resp := c.out.String()
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 204 No Content\r\n"))
	assert.NotContains(t, resp, "Content-Length")
}

func TestAppHeadOmitsBody(t *testing.T) {
	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}), nil, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodHead, "/", nil), outcome: api.OutcomeOK}
	require.True(t, app.Initialize(c))
	drain(t, app, c)
	app.Finalize(c)

	resp := c.out.String()
	assert.Contains(t, resp, "Content-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"))
	assert.NotContains(t, resp, "hello")
}

func TestAppWouldBlockResumesChunk(t *testing.T) {
	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}), nil, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/", nil), outcome: api.OutcomeOK, blocked: true}
	require.True(t, app.Initialize(c))
	assert.Equal(t, api.NotYetFinished, app.Write(c))
	assert.Zero(t, c.out.Len())

	c.blocked = false
	drain(t, app, c)
	app.Finalize(c)
	assert.True(t, strings.HasSuffix(c.out.String(), "\r\n\r\npayload"))
}

func TestAppPeerGoneFinishes(t *testing.T) {
	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a"))
		_, _ = w.Write([]byte("b"))
	}), nil, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/", nil), outcome: api.OutcomeOK, fail: syscall.ECONNRESET}
	require.True(t, app.Initialize(c))
	assert.Equal(t, api.Finished, app.Write(c))
	app.Finalize(c)
}

func TestAppStoresCacheableResponse(t *testing.T) {
	store, err := cache.New(4)
	require.NoError(t, err)

	calls := 0
	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte("cached"))
	}), store, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/static", nil), outcome: api.OutcomeCacheable}
	require.True(t, app.Initialize(c))
	drain(t, app, c)
	app.Finalize(c)

	stored, ok := store.Get("GET /static")
	require.True(t, ok)
	assert.Equal(t, c.out.Bytes(), stored)

	h := handler.NewCache(store)
	replay := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/static", nil)}
	require.True(t, h.Initialize(replay))
	drain(t, h, replay)
	assert.Equal(t, c.out.Bytes(), replay.out.Bytes())
	assert.Equal(t, 1, calls)
}

func TestAppDoesNotStoreNonCacheable(t *testing.T) {
	store, err := cache.New(4)
	require.NoError(t, err)

	app := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}), store, nil)

	c := &fakeConn{req: httptest.NewRequest(http.MethodGet, "/dynamic", nil), outcome: api.OutcomeOK}
	require.True(t, app.Initialize(c))
	drain(t, app, c)
	app.Finalize(c)
	assert.Zero(t, store.Len())

	notOK := handler.NewApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), store, nil)
	c = &fakeConn{req: httptest.NewRequest(http.MethodGet, "/static", nil), outcome: api.OutcomeCacheable}
	require.True(t, notOK.Initialize(c))
	drain(t, notOK, c)
	notOK.Finalize(c)
	assert.Zero(t, store.Len())
}
