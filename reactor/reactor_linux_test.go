//go:build linux
// +build linux

package reactor_test

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/reactor"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func runAsync(t *testing.T, r api.Reactor) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	return done
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}
}

func TestReactorDispatchesReadable(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	rfd, wfd := newPipe(t)
	got := make(chan []byte, 1)
	require.NoError(t, r.Register(rfd, api.InterestRead, func(fd int, ev api.Interest) {
		assert.Equal(t, rfd, fd)
		assert.NotZero(t, ev&api.InterestRead)
		buf := make([]byte, 16)
		n, _ := unix.Read(fd, buf)
		got <- buf[:n]
		r.Stop()
	}))
	assert.Equal(t, api.InterestRead, r.Registered(rfd))

	done := runAsync(t, r)
	_, err = unix.Write(wfd, []byte("ping"))
	require.NoError(t, err)

	waitRun(t, done)
	assert.Equal(t, []byte("ping"), <-got)
}

func TestReactorRegisterUnregisterInterest(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	_, wfd := newPipe(t)
	noop := func(int, api.Interest) {}

	require.NoError(t, r.Register(wfd, api.InterestWrite, noop))
	// starting interest that is already active is a no-op
	require.NoError(t, r.Register(wfd, api.InterestWrite, noop))
	assert.Equal(t, api.InterestWrite, r.Registered(wfd))

	require.NoError(t, r.Unregister(wfd, api.InterestWrite))
	assert.Equal(t, api.InterestNone, r.Registered(wfd))
	// stopping interest that is not active is a no-op
	require.NoError(t, r.Unregister(wfd, api.InterestWrite))
	require.NoError(t, r.Unregister(12345, api.InterestRead))
}

func TestReactorPostRunsOnLoop(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	ran := make(chan struct{})
	done := runAsync(t, r)
	r.Post(func() {
		close(ran)
		r.Stop()
	})

	waitRun(t, done)
	select {
	case <-ran:
	default:
		t.Fatal("posted task did not run")
	}
}

func TestReactorStopIsIdempotent(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	done := runAsync(t, r)
	r.Stop()
	r.Stop()
	waitRun(t, done)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Run(), api.ErrClosed)
}

func TestReactorRecoversCallbackPanic(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	rfd, wfd := newPipe(t)
	require.NoError(t, r.Register(rfd, api.InterestRead, func(fd int, _ api.Interest) {
		buf := make([]byte, 16)
		unix.Read(fd, buf)
		panic("boom")
	}))

	done := runAsync(t, r)
	_, err = unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	// the loop survives the panic and still runs posted work
	time.Sleep(50 * time.Millisecond)
	r.Post(r.Stop)
	waitRun(t, done)
}

func TestReactorSkipsDescriptorRemovedInSameBatch(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)

	calls := 0
	cb := func(fd int, _ api.Interest) {
		calls++
		// whichever fires first removes both
		assert.NoError(t, r.Unregister(r1, api.InterestRead))
		assert.NoError(t, r.Unregister(r2, api.InterestRead))
		r.Post(r.Stop)
	}
	require.NoError(t, r.Register(r1, api.InterestRead, cb))
	require.NoError(t, r.Register(r2, api.InterestRead, cb))

	_, err = unix.Write(w1, []byte("a"))
	require.NoError(t, err)
	_, err = unix.Write(w2, []byte("b"))
	require.NoError(t, err)

	waitRun(t, runAsync(t, r))
	assert.Equal(t, 1, calls)
}

func TestReactorSignalBridge(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	got := make(chan os.Signal, 1)
	fd, err := r.Signal(func(s os.Signal) {
		got <- s
		r.Stop()
	}, syscall.SIGUSR1)
	require.NoError(t, err)
	assert.Equal(t, api.InterestRead, r.Registered(fd))

	done := runAsync(t, r)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	waitRun(t, done)
	assert.Equal(t, syscall.SIGUSR1, <-got)
}
