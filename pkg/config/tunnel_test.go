package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTunnelTransportURL(t *testing.T) {
	testCases := []struct {
		name     string
		tunnel   Tunnel
		expected string
	}{
		{
			name: "With prefix",
			tunnel: Tunnel{
				Server:     "gw.lab.example",
				ServerPort: 443,
				Method:     "chacha20-ietf-poly1305",
				Password:   "WhRZ2CeMR5RCgsw1",
				Prefix:     "POST%20x2a8a1eO",
			},
			expected: "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTpXaFJaMkNlTVI1UkNnc3cx@gw.lab.example:443?prefix=POST%2520x2a8a1eO",
		},
		{
			name: "Without prefix",
			tunnel: Tunnel{
				Server:     "10.1.0.2",
				ServerPort: 8388,
				Method:     "chacha20-ietf-poly1305",
				Password:   "WhRZ2CeMR5RCgsw1",
			},
			expected: "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTpXaFJaMkNlTVI1UkNnc3cx@10.1.0.2:8388",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.tunnel.TransportURL())
		})
	}
}

func TestLoadTunnel(t *testing.T) {
	cfg, err := loadString(t, `
ammeters:
  entes:
    host: 192.168.10.4
    port: 5002
    command: "MEASURE_ENTES -get_data"
    tunnel:
      server: 10.1.0.2
      server_port: 8388
      method: chacha20-ietf-poly1305
      password: WhRZ2CeMR5RCgsw1
`)
	require.NoError(t, err)

	entes, err := cfg.Device("entes")
	require.NoError(t, err)
	assert.Equal(t, "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTpXaFJaMkNlTVI1UkNnc3cx@10.1.0.2:8388", entes.Transport)
}

func TestLoadTunnelErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantKey string
	}{
		{
			name: "Tunnel and transport",
			content: `
ammeters:
  entes:
    port: 5002
    command: x
    transport: "socks5://10.0.0.1:1080"
    tunnel: {server: 10.1.0.2, server_port: 8388, method: aes-256-gcm}`,
			wantKey: "ammeters.entes.tunnel",
		},
		{
			name: "Tunnel without method",
			content: `
ammeters:
  entes:
    port: 5002
    command: x
    tunnel: {server: 10.1.0.2, server_port: 8388}`,
			wantKey: "Method",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadString(t, tc.content)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tc.wantKey)
		})
	}
}
