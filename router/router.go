// File: router/router.go
// Package router maps request targets to the application and classifies
// parsed requests for handler dispatch.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/momentics/hioload-http/api"
)

// Router is an http.Handler whose route table also decides, before the
// application runs, whether a request is routable and whether its response
// may be served from cache.
type Router struct {
	mux    *chi.Mux
	cached *chi.Mux // same patterns as mux, restricted to cacheable routes
}

// RouteOption customizes a single route.
type RouteOption func(*route)

type route struct {
	cached bool
}

// Cached marks a route's successful GET/HEAD responses as cacheable.
func Cached() RouteOption {
	return func(r *route) {
		r.cached = true
	}
}

// New returns an empty Router. Every target is unroutable until added.
func New() *Router {
	return &Router{
		mux:    chi.NewRouter(),
		cached: chi.NewRouter(),
	}
}

// Handle registers h for all methods on pattern. Patterns follow chi
// syntax, including regexp parameters such as /user/{id:[0-9]+}.
func (rt *Router) Handle(pattern string, h http.Handler, opts ...RouteOption) {
	r := buildRoute(opts)
	rt.mux.Handle(pattern, h)
	if r.cached {
		rt.cached.Handle(pattern, h)
	}
}

// HandleFunc registers f for all methods on pattern.
func (rt *Router) HandleFunc(pattern string, f http.HandlerFunc, opts ...RouteOption) {
	rt.Handle(pattern, f, opts...)
}

// Method registers h for a single method on pattern.
func (rt *Router) Method(method, pattern string, h http.Handler, opts ...RouteOption) {
	r := buildRoute(opts)
	rt.mux.Method(method, pattern, h)
	if r.cached {
		rt.cached.Method(method, pattern, h)
	}
}

func buildRoute(opts []RouteOption) route {
	var r route
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Classify implements api.Classifier.
func (rt *Router) Classify(r *http.Request) api.Outcome {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if !rt.mux.Match(chi.NewRouteContext(), r.Method, path) {
		return api.OutcomeNotFound
	}
	if isCacheableMethod(r.Method) && rt.cached.Match(chi.NewRouteContext(), r.Method, path) {
		return api.OutcomeCacheable
	}
	return api.OutcomeOK
}

func isCacheableMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

var _ api.Classifier = (*Router)(nil)
