package vst

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/vst")

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// StreamConnection is a single VelocyStream connection. Requests are multiplexed
// over one socket: writes are serialized, one reader goroutine dispatches the
// responses to the waiting requests by message id.
type StreamConnection struct {
	host      common.HostDescription
	config    common.ConnectionConfig
	auth      common.Authentication
	codec     common.BodyCodec
	connector *connector

	openMu sync.Mutex // Serializes Open
	opened atomic.Bool

	connMu sync.Mutex // Protects conn
	conn   net.Conn

	writeMu       sync.Mutex // Single writer on the socket
	waiters       *xsync.MapOf[uint64, chan responseResult]
	nextMessageID atomic.Uint64

	done      chan struct{} // Closed once the connection is terminal
	closeOnce sync.Once
	closeErr  error // Cause of the close, written before done is closed
}

// NewStreamConnection creates a connection to host. The socket is established by Open,
// or by the first Execute.
func NewStreamConnection(host common.HostDescription, config common.ConnectionConfig, auth common.Authentication) (*StreamConnection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &StreamConnection{
		host:      host,
		config:    config,
		auth:      auth,
		codec:     serializer.DefaultCodec(),
		connector: &connector{config: config},
		waiters:   xsync.NewMapOf[uint64, chan responseResult](),
		done:      make(chan struct{}),
	}, nil
}

// NewConnection is the transport.Factory of the VelocyStream protocol
func NewConnection(host common.HostDescription, config common.ConnectionConfig, auth common.Authentication) (transport.IConnection, error) {
	return NewStreamConnection(host, config, auth)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

func (c *StreamConnection) Open(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if c.IsClosed() {
		return c.closedError("open")
	}
	if c.opened.Load() {
		return nil
	}

	// the whole handshake is bounded by the timeout
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := c.connector.Connect(ctx, c.host)
	if err != nil {
		c.fail(err)
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Close may have run while dialing
	if c.IsClosed() {
		conn.Close()
		return c.closedError("open")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(ProtocolHeader); err != nil {
		err = common.ClassifyIOError("write protocol header", err)
		c.fail(err)
		return err
	}

	go c.readResponses(conn)

	if err := c.authenticate(ctx); err != nil {
		c.fail(err)
		return err
	}

	c.opened.Store(true)
	Logger.Debugf("Connected to %s using %s transport in %s", c.host, c.connector.GetName(), time.Since(start))
	return nil
}

func (c *StreamConnection) Execute(ctx context.Context, req *common.Request) (resp *common.Response, err error) {
	start := time.Now()
	defer func() { transport.RecordRequest(common.ProtocolVST, start, err) }()

	if c.IsClosed() {
		return nil, c.closedError("execute")
	}
	if !c.opened.Load() {
		if err := c.Open(ctx); err != nil {
			return nil, err
		}
	}

	if c.config.Observer != nil {
		c.config.Observer(c.host, req)
	}

	payload, err := EncodeRequest(req, c.codec)
	if err != nil {
		return nil, err
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	data, err := c.roundTrip(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp, err = DecodeResponse(data)
	if err != nil {
		return nil, &common.TransportError{Op: "decode response", Err: err}
	}
	return resp, common.CheckResponse(resp, c.codec)
}

func (c *StreamConnection) Close() error {
	if c.fail(nil) {
		Logger.Debugf("Closed connection to %s", c.host)
	}
	return nil
}

func (c *StreamConnection) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *StreamConnection) Host() common.HostDescription {
	return c.host
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// authenticate sends the authentication message if credentials are configured
func (c *StreamConnection) authenticate(ctx context.Context) error {
	if c.auth.IsEmpty() {
		return nil
	}

	payload, err := EncodeAuth(c.auth)
	if err != nil {
		return &common.AuthenticationError{Err: err}
	}

	data, err := c.roundTrip(ctx, payload)
	if err != nil {
		return err
	}

	resp, err := DecodeResponse(data)
	if err != nil {
		return &common.TransportError{Op: "decode auth response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		cause := common.CheckResponse(resp, c.codec)
		if cause == nil {
			cause = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return &common.AuthenticationError{StatusCode: resp.StatusCode, Err: cause}
	}
	return nil
}

// roundTrip writes a message and waits for the response with the same message id.
// A deadline expiring while waiting discards the socket.
func (c *StreamConnection) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	messageID := c.nextMessageID.Add(1)

	// Register the request before writing
	respCh := make(chan responseResult, 1)
	c.waiters.Store(messageID, respCh)
	defer c.waiters.Delete(messageID)

	if c.IsClosed() {
		return nil, c.closedError("execute")
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	// Lock the connection only for writing
	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	err := WriteMessage(conn, messageID, payload, c.config.EffectiveChunkSize())
	c.writeMu.Unlock()

	if err != nil {
		// a partially written message corrupts the stream
		err = common.ClassifyIOError("write", err)
		c.fail(err)
		if c.closeErr != err {
			return nil, c.closedError("execute")
		}
		return nil, err
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-c.done:
		// the response may have been dispatched right before the close
		select {
		case result := <-respCh:
			return result.data, result.err
		default:
		}
		return nil, c.closedError("execute")
	case <-ctx.Done():
		ctxErr := ctx.Err()
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			timeoutErr := &common.TimeoutError{Op: fmt.Sprintf("request %d", messageID), Err: ctxErr}
			Logger.Warningf("Request %d to %s timed out, discarding connection", messageID, c.host)
			c.fail(timeoutErr)
			return nil, timeoutErr
		}
		return nil, fmt.Errorf("request %d: %w", messageID, ctxErr)
	}
}

// readResponses reads messages in a loop and distributes them to the waiting requests
func (c *StreamConnection) readResponses(conn net.Conn) {
	reader := NewMessageReader(conn, DefaultMaxMessageLength)

	for {
		messageID, data, err := reader.ReadMessage()
		if err != nil {
			if !c.IsClosed() {
				Logger.Warningf("Connection to %s severed: %v", c.host, err)
			}
			c.fail(common.ClassifyIOError("read", err))
			return
		}

		respCh, found := c.waiters.LoadAndDelete(messageID)
		if !found {
			// the request timed out or was cancelled
			Logger.Debugf("Received response for unknown message ID %d", messageID)
			continue
		}
		respCh <- responseResult{data: data}
	}
}

// fail makes the connection terminal with cause (nil for a regular close) and releases
// the socket. It returns false if the connection was already terminal.
func (c *StreamConnection) fail(cause error) bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.closeErr = cause
		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	})
	return first
}

// closedError returns the error for requests on a terminal connection
func (c *StreamConnection) closedError(op string) error {
	if c.closeErr == nil {
		return &common.TransportError{Op: op, Err: common.ErrConnectionClosed}
	}
	return &common.TransportError{Op: op, Err: fmt.Errorf("%w: %v", common.ErrConnectionClosed, c.closeErr)}
}
