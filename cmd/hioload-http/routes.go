// File: cmd/hioload-http/routes.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/momentics/hioload-http/router"
)

// demoRoutes is the application served by the command.
func demoRoutes(started time.Time) *router.Router {
	rt := router.New()

	rt.Method(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Hello, World!\n")
	}), router.Cached())

	rt.Method(http.MethodGet, "/greet/{name:[A-Za-z]+}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "Hello, %s!\n", chi.URLParam(r, "name"))
	}))

	rt.Method(http.MethodPost, "/echo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		_, _ = io.Copy(w, r.Body)
	}))

	rt.Method(http.MethodGet, "/stream", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 1; i <= 3; i++ {
			_, _ = fmt.Fprintf(w, "chunk %d\n", i)
		}
	}))

	rt.Method(http.MethodGet, "/uptime", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, "%s\n", time.Since(started).Truncate(time.Second))
	}))

	rt.Method(http.MethodGet, "/fail", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	return rt
}
