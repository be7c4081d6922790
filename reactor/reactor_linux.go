//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
)

// registration is the interest and callback currently bound to a descriptor.
type registration struct {
	interest api.Interest
	cb       api.Callback
}

// epollReactor implements api.Reactor using level-triggered epoll.
// The registration map is owned by the goroutine running the loop.
type epollReactor struct {
	epfd   int
	wakefd int // eventfd used by Post and Stop
	events []unix.EpollEvent
	regs   map[int]*registration
	log    *zap.Logger

	mu      sync.Mutex
	tasks   *queue.Queue // func()
	bridges []*signalBridge
	closed  bool

	stopped   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New constructs a new epoll reactor.
func New(opts ...Option) (api.Reactor, error) {
	o := buildOptions(opts)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wake: %w", err)
	}

	return &epollReactor{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, o.maxEvents),
		regs:   make(map[int]*registration),
		log:    o.log,
		tasks:  queue.New(),
	}, nil
}

func toEpoll(i api.Interest) uint32 {
	var ev uint32
	if i&api.InterestRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if i&api.InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpoll(ev uint32) api.Interest {
	var i api.Interest
	if ev&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		i |= api.InterestRead
	}
	if ev&unix.EPOLLOUT != 0 {
		i |= api.InterestWrite
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		i |= api.InterestError
	}
	return i
}

// Register adds interest for fd to the epoll set.
func (r *epollReactor) Register(fd int, interest api.Interest, cb api.Callback) error {
	interest &= api.InterestRead | api.InterestWrite
	if interest == api.InterestNone {
		return nil
	}
	if r.isClosed() {
		return api.ErrClosed
	}

	reg, ok := r.regs[fd]
	if !ok {
		ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return fmt.Errorf("epoll ctl add: %w", err)
		}
		r.regs[fd] = &registration{interest: interest, cb: cb}
		return nil
	}

	reg.cb = cb
	if reg.interest&interest == interest {
		return nil
	}
	next := reg.interest | interest
	ev := unix.EpollEvent{Events: toEpoll(next), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	reg.interest = next
	return nil
}

// Unregister removes interest for fd; the descriptor leaves the epoll set
// once nothing is left.
func (r *epollReactor) Unregister(fd int, interest api.Interest) error {
	reg, ok := r.regs[fd]
	if !ok {
		return nil
	}
	next := reg.interest &^ interest
	if next == reg.interest {
		return nil
	}
	if next == api.InterestNone {
		delete(r.regs, fd)
		if r.isClosed() {
			return nil
		}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return fmt.Errorf("epoll ctl del: %w", err)
		}
		return nil
	}
	ev := unix.EpollEvent{Events: toEpoll(next), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	reg.interest = next
	return nil
}

// Registered reports the interest currently active for fd.
func (r *epollReactor) Registered(fd int) api.Interest {
	if reg, ok := r.regs[fd]; ok {
		return reg.interest
	}
	return api.InterestNone
}

// Post queues fn to run on the reactor goroutine.
func (r *epollReactor) Post(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.tasks.Add(fn)
	r.wakeLocked()
}

// Stop requests Run to return. Only the first call has an effect.
func (r *epollReactor) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.wakeLocked()
	}
}

func (r *epollReactor) wakeLocked() {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	// EAGAIN means the counter is already non-zero, the loop will wake anyway.
	_, _ = unix.Write(r.wakefd, b[:])
}

func drainEventfd(fd int) {
	var b [8]byte
	_, _ = unix.Read(fd, b[:])
}

// Run blocks on epoll_wait and dispatches callbacks until Stop.
func (r *epollReactor) Run() error {
	if r.isClosed() {
		return api.ErrClosed
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for !r.stopped.Load() {
		n, err := unix.EpollWait(r.epfd, r.events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue // interrupted by signal, normal
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		for i := 0; i < n && !r.stopped.Load(); i++ {
			ev := r.events[i]
			fd := int(ev.Fd)

			if fd == r.wakefd {
				drainEventfd(fd)
				r.runTasks()
				continue
			}

			// A callback earlier in this batch may have removed fd.
			reg, ok := r.regs[fd]
			if !ok {
				continue
			}
			ready := fromEpoll(ev.Events)
			if ready&api.InterestError != 0 {
				ready |= reg.interest
			}
			ready &= reg.interest | api.InterestError
			if ready == api.InterestNone {
				continue
			}
			r.dispatch(reg.cb, fd, ready)
		}
	}
	return nil
}

func (r *epollReactor) runTasks() {
	for {
		r.mu.Lock()
		if r.tasks.Length() == 0 {
			r.mu.Unlock()
			return
		}
		fn, _ := r.tasks.Remove().(func())
		r.mu.Unlock()
		if fn != nil {
			r.dispatch(func(int, api.Interest) { fn() }, r.wakefd, api.InterestRead)
		}
	}
}

// dispatch runs cb and keeps the loop alive if it panics.
func (r *epollReactor) dispatch(cb api.Callback, fd int, ready api.Interest) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("reactor callback panicked",
				zap.Int("fd", fd),
				zap.Stringer("events", ready),
				zap.Any("panic", v),
			)
		}
	}()
	cb(fd, ready)
}

// Signal installs a self-pipe bridge for sigs and registers it for reading.
func (r *epollReactor) Signal(cb func(os.Signal), sigs ...os.Signal) (int, error) {
	if r.isClosed() {
		return -1, api.ErrClosed
	}
	b, err := newSignalBridge(sigs...)
	if err != nil {
		return -1, err
	}
	err = r.Register(b.fd, api.InterestRead, func(fd int, _ api.Interest) {
		drainEventfd(fd)
		cb(b.last())
	})
	if err != nil {
		b.close()
		return -1, err
	}

	r.mu.Lock()
	r.bridges = append(r.bridges, b)
	r.mu.Unlock()
	return b.fd, nil
}

func (r *epollReactor) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close releases the epoll descriptor, the wake eventfd and all signal
// bridges. Only the first call does anything.
func (r *epollReactor) Close() error {
	r.closeOnce.Do(func() {
		r.stopped.Store(true)

		r.mu.Lock()
		r.closed = true
		bridges := r.bridges
		r.bridges = nil
		r.mu.Unlock()

		for _, b := range bridges {
			b.close()
		}
		r.regs = make(map[int]*registration)
		r.closeErr = errors.Join(
			unix.Close(r.wakefd),
			unix.Close(r.epfd),
		)
	})
	return r.closeErr
}
