package vst

import (
	"context"
	"crypto/tls"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"net"
)

// connector establishes the sockets of a StreamConnection
type connector struct {
	config common.ConnectionConfig
}

// --------------------------------------------------------------------------
// Connector Methods
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	if c.config.UseSSL {
		return "vst+tls"
	}
	return "vst"
}

// Connect dials the host, applies the socket options and performs the TLS handshake if configured
func (c *connector) Connect(ctx context.Context, host common.HostDescription) (net.Conn, error) {
	dialer := net.Dialer{KeepAlive: -1}
	conn, err := dialer.DialContext(ctx, "tcp", host.Addr())
	if err != nil {
		return nil, common.ClassifyIOError("dial", err)
	}

	if err := c.UpgradeConnection(conn); err != nil {
		conn.Close()
		return nil, &common.TransportError{Op: "upgrade", Err: err}
	}

	if !c.config.UseSSL {
		return conn, nil
	}

	tlsConn := tls.Client(conn, c.tlsConfig(host))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, common.ClassifyIOError("tls handshake", err)
	}
	return tlsConn, nil
}

// UpgradeConnection applies the TCP options of the configuration to an established connection
func (c *connector) UpgradeConnection(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(c.config.TCPNoDelay); err != nil {
		return err
	}

	// Enable TCP keep-alive if configured
	if c.config.TCPKeepAlive > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(c.config.TCPKeepAlive); err != nil {
			return err
		}
	}

	return nil
}

// tlsConfig returns the configured TLS settings or the platform defaults
func (c *connector) tlsConfig(host common.HostDescription) *tls.Config {
	var cfg *tls.Config
	if c.config.TLSConfig != nil {
		cfg = c.config.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" && !cfg.InsecureSkipVerify {
		cfg.ServerName = host.Host
	}
	return cfg
}
