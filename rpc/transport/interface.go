package transport

import (
	"context"
	"github.com/ValentinKolb/dbwire/rpc/common"
)

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// IConnection is the capability shared by the HTTP and the VelocyStream connection
type IConnection interface {
	// Open establishes the connection. For VST this includes the protocol header
	// and the authentication handshake. Calling Open on an open connection is a no-op.
	Open(ctx context.Context) error
	// Execute sends a request and returns the response. Failed responses are
	// returned together with a common.DomainError.
	Execute(ctx context.Context, req *common.Request) (*common.Response, error)
	// Close releases all resources, calling it multiple times is safe
	Close() error
	// IsClosed reports whether the connection can no longer be used
	IsClosed() bool
	// Host returns the endpoint of the connection
	Host() common.HostDescription
}

// Factory creates a connection for a host, the connection is not opened yet
type Factory func(host common.HostDescription, config common.ConnectionConfig, auth common.Authentication) (IConnection, error)
