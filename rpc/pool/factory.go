package pool

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/ValentinKolb/dbwire/rpc/transport/http"
	"github.com/ValentinKolb/dbwire/rpc/transport/vst"
)

// ConnectionFactory creates opened connections of the configured protocol
type ConnectionFactory struct {
	Config   common.ConnectionConfig
	Protocol common.Protocol

	// newConnection overrides the protocol variant, used by tests
	newConnection transport.Factory
}

// NewConnectionFactory creates a factory for the protocol of config
func NewConnectionFactory(config common.ConnectionConfig) (*ConnectionFactory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ConnectionFactory{Config: config, Protocol: config.Protocol}, nil
}

// Create constructs the connection variant for host and opens it. Opening is
// bounded by the configured timeout.
func (f *ConnectionFactory) Create(ctx context.Context, host common.HostDescription, auth common.Authentication) (transport.IConnection, error) {
	newConnection := f.newConnection
	if newConnection == nil {
		newConnection = factoryFor(f.Protocol)
	}

	config := f.Config
	config.Protocol = f.Protocol
	conn, err := newConnection(host, config, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connection to %s: %w", f.Protocol, host, err)
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	if err := conn.Open(ctx); err != nil {
		_ = conn.Close()
		if errors.Is(err, context.DeadlineExceeded) && !common.IsTimeout(err) {
			err = &common.TimeoutError{Op: "open " + host.String(), Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// factoryFor returns the connection constructor of a protocol
func factoryFor(protocol common.Protocol) transport.Factory {
	if protocol == common.ProtocolVST {
		return vst.NewConnection
	}
	return http.NewConnection
}
