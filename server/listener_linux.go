//go:build linux
// +build linux

// File: server/listener_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
)

// Listener is a bound, listening TCP socket.
type Listener struct {
	Address string
	Port    int // bound port, resolved when 0 was requested
	Backlog int

	fd        int
	closeOnce sync.Once
	closeErr  error
}

// Listen creates a socket, binds it to address:port and starts listening.
// Failures are reported as *api.SocketError naming the failing step; the
// descriptor is closed before returning so nothing is left listening.
func Listen(address string, port, backlog int) (*Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	ip, err := resolveIP(address)
	if err != nil {
		return nil, &api.SocketError{Phase: api.PhaseBind, Cause: err}
	}
	if port < 0 || port > 0xffff {
		return nil, &api.SocketError{Phase: api.PhaseBind, Cause: fmt.Errorf("invalid port %d", port)}
	}

	family, sa := sockaddr(ip, port)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, &api.SocketError{Phase: api.PhaseSocket, Cause: err}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, &api.SocketError{Phase: api.PhaseSocket, Cause: err}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, &api.SocketError{Phase: api.PhaseBind, Cause: err}
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, &api.SocketError{Phase: api.PhaseListen, Cause: err}
	}

	if port == 0 {
		bound, err := unix.Getsockname(fd)
		if err != nil {
			unix.Close(fd)
			return nil, &api.SocketError{Phase: api.PhaseListen, Cause: err}
		}
		_, port = sockaddrIPPort(bound)
	}

	return &Listener{
		Address: ip.String(),
		Port:    port,
		Backlog: backlog,
		fd:      fd,
	}, nil
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns host:port of the bound socket.
func (l *Listener) Addr() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

// Close closes the listening socket. Idempotent.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = unix.Close(l.fd)
	})
	return l.closeErr
}

func resolveIP(address string) (net.IP, error) {
	if address == "" {
		return net.IPv4zero, nil
	}
	if ip := net.ParseIP(address); ip != nil {
		return ip, nil
	}
	addr, err := net.ResolveIPAddr("ip", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", address, err)
	}
	return addr.IP, nil
}

func sockaddr(ip net.IP, port int) (int, unix.Sockaddr) {
	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return unix.AF_INET6, sa
}

func sockaddrIPPort(sa unix.Sockaddr) (net.IP, int) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]), a.Port
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]), a.Port
	}
	return nil, 0
}

// peerString formats an accepted peer address for logs and spans.
func peerString(sa unix.Sockaddr) string {
	ip, port := sockaddrIPPort(sa)
	if ip == nil {
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}
