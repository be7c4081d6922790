// File: cache/store.go
// Package cache holds fully serialized HTTP responses that can be replayed
// byte-for-byte without invoking the application.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cache

import (
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the number of responses kept when no size is given.
const DefaultSize = 1024

// Store is a bounded LRU of serialized responses keyed by method and
// request URI. It is safe for concurrent use so it can be prefilled before
// the server starts.
type Store struct {
	lru *lru.Cache[string, []byte]
}

// New returns a Store holding at most size responses.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Store{lru: c}, nil
}

// Key returns the cache key for r, or false if r can never be cached.
func Key(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		return "", false
	}
	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}
	return r.Method + " " + uri, true
}

// Get returns the stored response for key.
func (s *Store) Get(key string) ([]byte, bool) {
	return s.lru.Get(key)
}

// Put stores a complete serialized response. The slice must not be
// modified afterwards.
func (s *Store) Put(key string, resp []byte) {
	s.lru.Add(key, resp)
}

// Len reports the number of stored responses.
func (s *Store) Len() int {
	return s.lru.Len()
}

// Purge drops every stored response.
func (s *Store) Purge() {
	s.lru.Purge()
}
