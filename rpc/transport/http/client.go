package http

import (
	"bytes"
	"context"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/jonboulle/clockwork"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/semaphore"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/http")

const (
	// DefaultKeepAlive is used when the server does not announce a keep-alive timeout
	DefaultKeepAlive = 30 * time.Second

	ContentTypeJSON = "application/json; charset=utf-8"
)

// UserAgent is sent with every request
var UserAgent = "Mozilla/5.0 (compatible; dbwire/" + common.Version + ")"

// Option configures a TextConnection
type Option func(c *TextConnection)

// WithClock replaces the clock used for keep-alive and TTL bookkeeping
func WithClock(clock clockwork.Clock) Option {
	return func(c *TextConnection) { c.clock = clock }
}

// TextConnection is a connection using the textual HTTP protocol. It owns exactly
// one socket: concurrent callers are served one after another.
type TextConnection struct {
	host    common.HostDescription
	config  common.ConnectionConfig
	auth    common.Authentication
	codec   common.BodyCodec
	baseURL string
	clock   clockwork.Clock

	sem *semaphore.Weighted // Single socket discipline

	transportMu sync.Mutex // Protects transport against Close
	transport   *http.Transport

	// guarded by sem
	client     *http.Client
	hasSocket  bool
	keepAlive  time.Duration
	lastUsed   time.Time
	socketBorn time.Time

	socketsOpened atomic.Int64

	closeCtx  context.Context // Cancelled by Close, aborts in-flight requests
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewTextConnection creates a connection to host. Sockets are dialed on demand.
func NewTextConnection(host common.HostDescription, config common.ConnectionConfig, auth common.Authentication, opts ...Option) (*TextConnection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &TextConnection{
		host:      host,
		config:    config,
		auth:      auth,
		codec:     serializer.DefaultCodec(),
		baseURL:   config.BaseURL(host),
		clock:     clockwork.NewRealClock(),
		sem:       semaphore.NewWeighted(1),
		keepAlive: DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.closeCtx, c.cancel = context.WithCancel(context.Background())

	c.transport = c.newTransport()
	c.client = &http.Client{Transport: c.transport}
	if config.CookiesEnabled() {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.client.Jar = jar
	}
	return c, nil
}

// NewConnection is the transport.Factory of the HTTP protocols
func NewConnection(host common.HostDescription, config common.ConnectionConfig, auth common.Authentication) (transport.IConnection, error) {
	return NewTextConnection(host, config, auth)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

// Open only checks the state, sockets are dialed by Execute
func (c *TextConnection) Open(context.Context) error {
	if c.IsClosed() {
		return c.closedError("open")
	}
	return nil
}

func (c *TextConnection) Execute(ctx context.Context, req *common.Request) (resp *common.Response, err error) {
	start := time.Now()
	defer func() { transport.RecordRequest(c.config.Protocol, start, err) }()

	if c.IsClosed() {
		return nil, c.closedError("execute")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.closeCtx, cancel)
	defer stop()

	// wait for the socket
	if err := c.sem.Acquire(ctx, 1); err != nil {
		if c.IsClosed() {
			return nil, c.closedError("execute")
		}
		return nil, common.ClassifyIOError("acquire connection", err)
	}
	defer func() {
		// a response may have returned the socket to a closed connection
		if c.IsClosed() {
			c.resetTransport()
		}
		c.sem.Release(1)
	}()

	if c.IsClosed() {
		return nil, c.closedError("execute")
	}
	c.expireSocket()

	if c.config.Observer != nil {
		c.config.Observer(c.host, req)
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		// the socket is gone after a failed round trip
		c.resetTransport()
		if c.IsClosed() {
			return nil, c.closedError("execute")
		}
		return nil, common.ClassifyIOError(req.String(), err)
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	resp, err = c.buildResponse(httpResp)
	if err != nil {
		c.resetTransport()
		if c.IsClosed() {
			return nil, c.closedError("execute")
		}
		return nil, common.ClassifyIOError("read "+req.String(), err)
	}

	c.keepAlive = parseKeepAlive(httpResp.Header.Get("Keep-Alive"))
	c.lastUsed = c.clock.Now()
	c.hasSocket = true

	return resp, common.CheckResponse(resp, c.codec)
}

func (c *TextConnection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.transportMu.Lock()
		c.transport.CloseIdleConnections()
		c.transportMu.Unlock()
		Logger.Debugf("Closed connection to %s", c.host)
	})
	return nil
}

func (c *TextConnection) IsClosed() bool {
	return c.closeCtx.Err() != nil
}

func (c *TextConnection) Host() common.HostDescription {
	return c.host
}

// SocketsOpened returns the number of sockets dialed by this connection
func (c *TextConnection) SocketsOpened() int64 {
	return c.socketsOpened.Load()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// newTransport creates a transport holding at most one socket
func (c *TextConnection) newTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: c.config.Timeout, KeepAlive: 30 * time.Second}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   c.config.Timeout,
		ResponseHeaderTimeout: c.config.Timeout,
		MaxConnsPerHost:       1,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
	}
	if c.host.Proxy != nil {
		proxyURL := c.host.Proxy.URL()
		t.Proxy = http.ProxyURL(proxyURL)
	}
	if c.config.UseSSL && c.config.TLSConfig != nil {
		t.TLSClientConfig = c.config.TLSConfig.Clone()
	}
	return t
}

// resetTransport drops the current socket, the next request dials a new one
func (c *TextConnection) resetTransport() {
	c.transportMu.Lock()
	old := c.transport
	c.transport = c.newTransport()
	c.client.Transport = c.transport
	c.transportMu.Unlock()

	c.hasSocket = false
	old.CloseIdleConnections()
}

// expireSocket drops the socket if it was idle longer than the keep-alive or outlived the TTL
func (c *TextConnection) expireSocket() {
	if !c.hasSocket {
		return
	}
	now := c.clock.Now()
	if idle := now.Sub(c.lastUsed); idle >= c.keepAlive {
		Logger.Debugf("Socket to %s idle for %s (keep-alive %s), reconnecting", c.host, idle, c.keepAlive)
		c.resetTransport()
		return
	}
	if c.config.TTL > 0 {
		if age := now.Sub(c.socketBorn); age >= c.config.TTL {
			Logger.Debugf("Socket to %s exceeded its ttl (%s), reconnecting", c.host, age)
			c.resetTransport()
		}
	}
}

// buildRequest converts a request into an http request
func (c *TextConnection) buildRequest(ctx context.Context, req *common.Request) (*http.Request, error) {
	var body io.Reader
	switch req.Method {
	case common.RequestPost, common.RequestPut, common.RequestPatch, common.RequestDelete:
		data, err := req.SerializeBody(c.config.Protocol, c.codec)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize body: %w", err)
		}
		if len(data) > 0 {
			body = bytes.NewReader(data)
		} else if req.Method != common.RequestDelete {
			body = http.NoBody
		}
	}

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if !info.Reused {
				c.socketBorn = c.clock.Now()
				c.socketsOpened.Add(1)
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method.String(), req.BuildURL(c.baseURL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if c.config.Protocol == common.ProtocolHTTPVPack {
		httpReq.Header.Set("Accept", serializer.ContentTypeVPack)
		if body != nil {
			httpReq.Header.Set("Content-Type", serializer.ContentTypeVPack)
		}
	} else if body != nil {
		httpReq.Header.Set("Content-Type", ContentTypeJSON)
	}
	httpReq.Header.Set("User-Agent", UserAgent)

	for k, v := range req.HeaderParams {
		httpReq.Header.Set(k, v)
	}
	if v := c.auth.HeaderValue(); v != "" {
		httpReq.Header.Set("Authorization", v)
	}
	return httpReq, nil
}

// buildResponse converts an http response. VelocyPack bodies are kept binary, the
// configured protocol decides when the content type is neither VelocyPack nor JSON.
func (c *TextConnection) buildResponse(httpResp *http.Response) (*common.Response, error) {
	resp := common.NewResponse(httpResp.StatusCode)
	for k, values := range httpResp.Header {
		if len(values) > 0 {
			resp.Meta[k] = values[len(values)-1]
		}
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if c.isBinaryBody(httpResp.Header.Get("Content-Type")) {
			resp.Body.SetBytes(data)
		} else {
			resp.Body.SetText(string(data))
		}
	}
	return resp, nil
}

// isBinaryBody reports whether a response body with contentType is VelocyPack
func (c *TextConnection) isBinaryBody(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	switch {
	case err != nil:
	case mediaType == serializer.ContentTypeVPack:
		return true
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") || strings.HasPrefix(mediaType, "text/"):
		return false
	}
	return c.config.Protocol == common.ProtocolHTTPVPack
}

// closedError returns the error for requests on a closed connection
func (c *TextConnection) closedError(op string) error {
	return &common.TransportError{Op: op, Err: common.ErrConnectionClosed}
}

// parseKeepAlive reads the timeout parameter of a Keep-Alive header
func parseKeepAlive(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "timeout") {
			continue
		}
		seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || seconds < 0 {
			return DefaultKeepAlive
		}
		return time.Duration(seconds) * time.Second
	}
	return DefaultKeepAlive
}
