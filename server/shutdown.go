// File: server/shutdown.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-http/api"
)

// shutdownController stops accepting and stops the reactor. Only the first
// trigger acts. It is driven from the reactor goroutine.
type shutdownController struct {
	r        api.Reactor
	log      *zap.Logger
	watchers []int
	done     bool
	cause    error
}

func newShutdownController(r api.Reactor, log *zap.Logger) *shutdownController {
	return &shutdownController{r: r, log: log}
}

// watch adds a descriptor whose read interest is dropped on shutdown.
func (sc *shutdownController) watch(fd int) {
	sc.watchers = append(sc.watchers, fd)
}

// trigger unregisters every watcher and stops the reactor. cause is what
// Serve reports; nil means a requested shutdown.
func (sc *shutdownController) trigger(cause error) {
	if sc.done {
		return
	}
	sc.done = true
	sc.cause = cause
	for _, fd := range sc.watchers {
		if err := sc.r.Unregister(fd, api.InterestRead); err != nil {
			sc.log.Debug("unregister watcher", zap.Int("fd", fd), zap.Error(err))
		}
	}
	sc.r.Stop()
}

func (sc *shutdownController) reason() error {
	return sc.cause
}
