// File: handler/cache.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handler

import (
	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/cache"
)

// Cache replays a stored response. Initialize declines when no store is
// configured or nothing is stored for the request, letting dispatch fall
// through to the Application handler.
type Cache struct {
	store *cache.Store
	out   pending
}

// NewCache returns a Cache handler reading from store, which may be nil.
func NewCache(store *cache.Store) *Cache {
	return &Cache{store: store}
}

// Initialize implements api.Handler.
func (h *Cache) Initialize(c api.Conn) bool {
	if h.store == nil {
		return false
	}
	key, ok := cache.Key(c.Request())
	if !ok {
		return false
	}
	resp, ok := h.store.Get(key)
	if !ok {
		return false
	}
	h.out = pending{buf: resp}
	return true
}

// Write implements api.Handler.
func (h *Cache) Write(c api.Conn) api.WriteResult {
	return h.out.flush(c)
}

// Finalize implements api.Handler.
func (h *Cache) Finalize(api.Conn) {
	h.out = pending{}
}

// Kind implements api.Handler.
func (*Cache) Kind() api.HandlerKind { return api.KindCache }

var _ api.Handler = (*Cache)(nil)
