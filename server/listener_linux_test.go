//go:build linux
// +build linux

package server

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-http/api"
)

func TestListenEphemeralPort(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer ln.Close()

	assert.NotZero(t, ln.Port)
	assert.Equal(t, DefaultBacklog, ln.Backlog)
	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port)), ln.Addr())

	c, err := net.Dial("tcp", ln.Addr())
	require.NoError(t, err)
	c.Close()

	assert.NoError(t, ln.Close())
	assert.NoError(t, ln.Close())
}

func TestListenIPv6(t *testing.T) {
	ln, err := Listen("::1", 0, 16)
	if err != nil {
		t.Skipf("no IPv6 loopback: %v", err)
	}
	defer ln.Close()
	assert.Equal(t, "::1", ln.Address)
	assert.NotZero(t, ln.Port)
}

func TestListenReportsFailingPhase(t *testing.T) {
	taken, err := Listen("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer taken.Close()

	testCases := []struct {
		name    string
		address string
		port    int
		phase   api.SocketPhase
	}{
		{name: "port in use", address: "127.0.0.1", port: taken.Port, phase: api.PhaseBind},
		{name: "bad address", address: "no such host.invalid", port: 0, phase: api.PhaseBind},
		{name: "bad port", address: "127.0.0.1", port: 70000, phase: api.PhaseBind},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ln, err := Listen(testCase.address, testCase.port, 0)
			require.Error(t, err)
			assert.Nil(t, ln)

			var serr *api.SocketError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, testCase.phase, serr.Phase)
			assert.Contains(t, err.Error(), string(testCase.phase)+"() failed")
		})
	}
}
