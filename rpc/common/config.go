package common

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Protocol
// --------------------------------------------------------------------------

// Protocol selects the wire protocol and body encoding used by a connection
type Protocol uint8

const (
	ProtocolHTTPJSON  Protocol = iota // HTTP with JSON bodies
	ProtocolHTTPVPack                 // HTTP with VelocyPack bodies
	ProtocolVST                       // VelocyStream over a persistent socket
)

// String returns the string representation of a Protocol
func (p Protocol) String() string {
	switch p {
	case ProtocolHTTPJSON:
		return "http-json"
	case ProtocolHTTPVPack:
		return "http-vpack"
	case ProtocolVST:
		return "vst"
	default:
		return "unknown"
	}
}

// IsBinary reports whether bodies are VelocyPack encoded for this protocol
func (p Protocol) IsBinary() bool {
	return p == ProtocolHTTPVPack || p == ProtocolVST
}

// ParseProtocol converts a string to a Protocol
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http-json", "http_json", "json", "http":
		return ProtocolHTTPJSON, nil
	case "http-vpack", "http_vpack", "vpack":
		return ProtocolHTTPVPack, nil
	case "vst":
		return ProtocolVST, nil
	default:
		return 0, fmt.Errorf("invalid protocol %q (expected one of http-json, http-vpack, vst)", s)
	}
}

// --------------------------------------------------------------------------
// Connection configuration struct
// --------------------------------------------------------------------------

const (
	// DefaultChunkSize is the maximum VST chunk size including the chunk header
	DefaultChunkSize = 30000
	// DefaultConnectionsPerHost is the number of pooled connections per host
	DefaultConnectionsPerHost = 1
	// CookiePolicyIgnore disables cookie handling
	CookiePolicyIgnore = "ignoreCookies"
)

// RequestObserver is invoked for every outgoing request before it is sent
type RequestObserver func(host HostDescription, req *Request)

// ConnectionConfig is the resolved configuration consumed by connections and pools
type ConnectionConfig struct {
	// Timeout bounds connection establishment and every request, 0 means no deadline
	Timeout time.Duration
	// TTL bounds the lifetime of a pooled socket regardless of keep-alive, 0 means unbounded
	TTL time.Duration

	// TLS settings
	UseSSL    bool
	TLSConfig *tls.Config

	Protocol     Protocol
	CookiePolicy string

	// Credentials
	User     string
	Password string

	// BasePath is an optional path prefix appended after host:port
	BasePath string

	// VST settings
	ChunkSize    int
	TCPNoDelay   bool
	TCPKeepAlive time.Duration

	// Pool settings
	ConnectionsPerHost int

	// Observer is called for every outgoing request (nil is a no-op)
	Observer RequestObserver
}

// DefaultConnectionConfig returns a config with the defaults used across the package
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Protocol:           ProtocolHTTPJSON,
		ChunkSize:          DefaultChunkSize,
		TCPNoDelay:         true,
		TCPKeepAlive:       30 * time.Second,
		ConnectionsPerHost: DefaultConnectionsPerHost,
	}
}

// Validate checks the invariants of the configuration
func (c *ConnectionConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative, got %s", c.TTL)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", c.ChunkSize)
	}
	if c.ConnectionsPerHost < 0 {
		return fmt.Errorf("connections per host must not be negative, got %d", c.ConnectionsPerHost)
	}
	if c.Protocol > ProtocolVST {
		return fmt.Errorf("invalid protocol %d", c.Protocol)
	}
	return nil
}

// EffectiveChunkSize returns the configured chunk size or the default
func (c *ConnectionConfig) EffectiveChunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

// EffectiveConnectionsPerHost returns the configured pool size or the default
func (c *ConnectionConfig) EffectiveConnectionsPerHost() int {
	if c.ConnectionsPerHost <= 0 {
		return DefaultConnectionsPerHost
	}
	return c.ConnectionsPerHost
}

// CookiesEnabled reports whether the cookie policy asks for cookie handling
func (c *ConnectionConfig) CookiesEnabled() bool {
	return len(c.CookiePolicy) > 1 && c.CookiePolicy != CookiePolicyIgnore
}

// BaseURL returns http(s)://host:port followed by the base path. A base path
// without a leading '/' gets one.
func (c *ConnectionConfig) BaseURL(host HostDescription) string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	basePath := c.BasePath
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return fmt.Sprintf("%s://%s%s", scheme, host.Addr(), basePath)
}

// String returns a formatted string representation of the connection configuration
func (c *ConnectionConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	duration := func(d time.Duration) string {
		if d <= 0 {
			return "none"
		}
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}

	// General connection settings
	addSection("Connection Configuration")
	addField("Protocol", c.Protocol.String())
	addField("Timeout", duration(c.Timeout))
	addField("TTL", duration(c.TTL))
	addField("Connections Per Host", strconv.Itoa(c.EffectiveConnectionsPerHost()))
	if c.BasePath != "" {
		addField("Base Path", c.BasePath)
	}

	// Security
	addSection("Security")
	addField("SSL", strconv.FormatBool(c.UseSSL))
	addField("Custom TLS Config", strconv.FormatBool(c.TLSConfig != nil))
	if c.User != "" {
		addField("User", c.User)
	} else {
		addField("User", "(none)")
	}
	if c.CookiePolicy != "" {
		addField("Cookie Policy", c.CookiePolicy)
	}

	// Stream transport
	if c.Protocol == ProtocolVST {
		addSection("VelocyStream")
		addField("Chunk Size", strconv.Itoa(c.EffectiveChunkSize()))
		addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
		addField("TCP Keep Alive", duration(c.TCPKeepAlive))
	}

	return sb.String()
}
