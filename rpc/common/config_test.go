package common

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestParseProtocol(t *testing.T) {
	for _, p := range []Protocol{ProtocolHTTPJSON, ProtocolHTTPVPack, ProtocolVST} {
		parsed, err := ParseProtocol(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParseProtocol("grpc")
	assert.Error(t, err)

	assert.False(t, ProtocolHTTPJSON.IsBinary())
	assert.True(t, ProtocolHTTPVPack.IsBinary())
	assert.True(t, ProtocolVST.IsBinary())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConnectionConfig()
	require.NoError(t, cfg.Validate())

	bad := []ConnectionConfig{
		{Timeout: -time.Second},
		{TTL: -time.Second},
		{ChunkSize: -1},
		{ConnectionsPerHost: -1},
		{Protocol: Protocol(9)},
	}
	for _, c := range bad {
		assert.Error(t, c.Validate(), "%+v", c)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg ConnectionConfig
	assert.Equal(t, DefaultChunkSize, cfg.EffectiveChunkSize())
	assert.Equal(t, DefaultConnectionsPerHost, cfg.EffectiveConnectionsPerHost())

	cfg.ChunkSize = 100
	cfg.ConnectionsPerHost = 4
	assert.Equal(t, 100, cfg.EffectiveChunkSize())
	assert.Equal(t, 4, cfg.EffectiveConnectionsPerHost())
}

func TestCookiesEnabled(t *testing.T) {
	testCases := map[string]bool{
		"":              false,
		"x":             false,
		"ignoreCookies": false,
		"standard":      true,
	}
	for policy, expected := range testCases {
		cfg := ConnectionConfig{CookiePolicy: policy}
		assert.Equal(t, expected, cfg.CookiesEnabled(), policy)
	}
}

func TestConfigBaseURL(t *testing.T) {
	host := NewHostDescription("db", 8529)
	tests := []struct {
		basePath string
		ssl      bool
		expected string
	}{
		{"", false, "http://db:8529"},
		{"/api", false, "http://db:8529/api"},
		{"api", false, "http://db:8529/api"},
		{"api", true, "https://db:8529/api"},
	}
	for _, tt := range tests {
		config := ConnectionConfig{BasePath: tt.basePath, UseSSL: tt.ssl}
		assert.Equal(t, tt.expected, config.BaseURL(host))
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Protocol = ProtocolVST
	cfg.Timeout = 1500 * time.Millisecond
	cfg.User = "root"

	s := cfg.String()
	assert.Contains(t, s, "CONNECTION CONFIGURATION")
	assert.Contains(t, s, "1500 ms")
	assert.Contains(t, s, "VELOCYSTREAM")
	assert.Contains(t, s, "root")
}

func TestParseLogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error"} {
		_, err := ParseLogLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
