//go:build linux
// +build linux

// File: reactor/signal_linux.go
// Author: momentics <momentics@gmail.com>
//
// Self-pipe bridge turning asynchronous OS signals into readiness events on
// an eventfd, so signal handling runs as an ordinary reactor callback.

package reactor

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type signalBridge struct {
	fd      int
	ch      chan os.Signal
	done    chan struct{}
	sig     atomic.Value // os.Signal
	stopped sync.Once
	wg      sync.WaitGroup
}

func newSignalBridge(sigs ...os.Signal) (*signalBridge, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("signal eventfd: %w", err)
	}
	b := &signalBridge{
		fd:   fd,
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(b.ch, sigs...)
	b.wg.Add(1)
	go b.forward()
	return b, nil
}

// forward only records the signal and bumps the eventfd counter.
func (b *signalBridge) forward() {
	defer b.wg.Done()
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		select {
		case s := <-b.ch:
			b.sig.Store(s)
			_, _ = unix.Write(b.fd, buf[:])
		case <-b.done:
			return
		}
	}
}

func (b *signalBridge) last() os.Signal {
	s, _ := b.sig.Load().(os.Signal)
	return s
}

func (b *signalBridge) close() {
	b.stopped.Do(func() {
		signal.Stop(b.ch)
		close(b.done)
		b.wg.Wait()
		unix.Close(b.fd)
	})
}
