// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"
	"sync/atomic"
)

// ObjectPool hands out reusable values.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool wraps sync.Pool for generic usage. Values are passed through
// reset before they go back into the pool.
type SyncPool[T any] struct {
	pool  *sync.Pool
	reset func(T)

	created atomic.Int64
	inUse   atomic.Int64
}

// NewSyncPool creates a new SyncPool. creator builds a fresh value when the
// pool is empty; reset, if non-nil, clears a value handed back by Put.
func NewSyncPool[T any](creator func() T, reset func(T)) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool = &sync.Pool{New: func() any {
		sp.created.Add(1)
		return creator()
	}}
	return sp
}

// Get returns a pooled value or a new one.
func (sp *SyncPool[T]) Get() T {
	sp.inUse.Add(1)
	return sp.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (sp *SyncPool[T]) Put(obj T) {
	if sp.reset != nil {
		sp.reset(obj)
	}
	sp.inUse.Add(-1)
	sp.pool.Put(obj)
}

// InUse reports the number of values obtained and not yet returned.
func (sp *SyncPool[T]) InUse() int64 {
	return sp.inUse.Load()
}

// Created reports how many values the creator has built.
func (sp *SyncPool[T]) Created() int64 {
	return sp.created.Load()
}

var _ ObjectPool[*struct{}] = (*SyncPool[*struct{}])(nil)
