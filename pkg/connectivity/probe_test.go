package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammeter-tester/pkg/config"
)

func listen(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestProbe(t *testing.T) {
	testCases := []struct {
		name      string
		device    config.Device
		wantOK    bool
		wantOp    string
		wantConns int
	}{
		{
			name:      "Reachable",
			device:    config.Device{Name: "greenlee", Host: "127.0.0.1", Port: listen(t)},
			wantOK:    true,
			wantConns: 1,
		},
		{
			name:      "Refused",
			device:    config.Device{Name: "entes", Host: "127.0.0.1", Port: closedPort(t)},
			wantOp:    "connect",
			wantConns: 1,
		},
		{
			name:   "Bad transport",
			device: config.Device{Name: "circutor", Host: "127.0.0.1", Port: 5003, Transport: "nosuchscheme://x"},
			wantOp: "config",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Probe(context.Background(), tc.device, time.Second)

			assert.Equal(t, tc.device.Name, r.Ammeter)
			assert.Equal(t, tc.device.Endpoint(), r.Endpoint)
			assert.Equal(t, tc.wantOK, r.IsSuccess())
			if !tc.wantOK {
				require.NotNil(t, r.Error)
				assert.Equal(t, tc.wantOp, r.Error.Op)
				assert.NotEmpty(t, r.Error.Msg)
			}
			assert.Len(t, r.TCPConnections, tc.wantConns)
		})
	}
}

func TestProbeAllKeepsOrder(t *testing.T) {
	devices := []config.Device{
		{Name: "greenlee", Host: "127.0.0.1", Port: listen(t)},
		{Name: "entes", Host: "127.0.0.1", Port: closedPort(t)},
	}

	reports := ProbeAll(context.Background(), devices, time.Second)
	require.Len(t, reports, 2)
	assert.Equal(t, "greenlee", reports[0].Ammeter)
	assert.True(t, reports[0].IsSuccess())
	assert.Equal(t, "entes", reports[1].Ammeter)
	assert.False(t, reports[1].IsSuccess())
}

func TestFindBaseError(t *testing.T) {
	base := errors.New("connection refused")
	testCases := []struct {
		name string
		err  error
	}{
		{name: "Plain", err: base},
		{name: "Wrapped", err: fmt.Errorf("dial: %w", base)},
		{name: "Joined", err: errors.Join(errors.New("first"), fmt.Errorf("second: %w", base))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, base, findBaseError(tc.err))
		})
	}
}
