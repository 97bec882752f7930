package pool

import (
	"context"
	"github.com/ValentinKolb/dbwire/internal/testutil/cutproxy"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/ValentinKolb/dbwire/rpc/transport/vst/vsttest"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// ---- Helper ----

// fakeConnection counts its instances and can be closed from the outside
type fakeConnection struct {
	host   common.HostDescription
	id     int64
	closed atomic.Bool
}

func (c *fakeConnection) Open(context.Context) error { return nil }
func (c *fakeConnection) Execute(_ context.Context, _ *common.Request) (*common.Response, error) {
	if c.closed.Load() {
		return nil, &common.TransportError{Op: "execute", Err: common.ErrConnectionClosed}
	}
	return common.NewResponse(http.StatusOK), nil
}
func (c *fakeConnection) Close() error                 { c.closed.Store(true); return nil }
func (c *fakeConnection) IsClosed() bool               { return c.closed.Load() }
func (c *fakeConnection) Host() common.HostDescription { return c.host }

func fakeFactory(config common.ConnectionConfig) (*ConnectionFactory, *atomic.Int64) {
	var created atomic.Int64
	f := &ConnectionFactory{Config: config, Protocol: config.Protocol}
	f.newConnection = func(host common.HostDescription, _ common.ConnectionConfig, _ common.Authentication) (transport.IConnection, error) {
		return &fakeConnection{host: host, id: created.Add(1)}, nil
	}
	return f, &created
}

func versionRequest() *common.Request {
	return common.NewRequest("", common.RequestGet, "/_api/version")
}

func testConfig(protocol common.Protocol) common.ConnectionConfig {
	cfg := common.DefaultConnectionConfig()
	cfg.Protocol = protocol
	cfg.Timeout = time.Second
	return cfg
}

// ---- Factory ----

func TestFactoryProtocols(t *testing.T) {
	vstServer := vsttest.NewServer(nil)
	defer vstServer.Close()
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer httpServer.Close()
	httpHost, err := common.ParseHostDescription(httpServer.URL)
	require.NoError(t, err)

	testCases := []struct {
		protocol common.Protocol
		host     common.HostDescription
	}{
		{common.ProtocolVST, vstServer.Host()},
		{common.ProtocolHTTPJSON, httpHost},
		{common.ProtocolHTTPVPack, httpHost},
	}
	for _, tc := range testCases {
		t.Run(tc.protocol.String(), func(t *testing.T) {
			factory, err := NewConnectionFactory(testConfig(tc.protocol))
			require.NoError(t, err)

			conn, err := factory.Create(context.Background(), tc.host, common.NoAuthentication())
			require.NoError(t, err)
			defer conn.Close()

			assert.True(t, conn.Host().Equal(tc.host))
			_, err = conn.Execute(context.Background(), versionRequest())
			assert.NoError(t, err)
		})
	}
}

func TestFactoryHandshakeTimeout(t *testing.T) {
	server := vsttest.NewServer(nil, vsttest.WithCredentials("root", "pw"))
	defer server.Close()
	server.Hang(true)

	cfg := testConfig(common.ProtocolVST)
	cfg.Timeout = 200 * time.Millisecond
	factory, err := NewConnectionFactory(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = factory.Create(context.Background(), server.Host(), common.BasicAuthentication("root", "pw"))
	require.Error(t, err)
	assert.True(t, common.IsTimeout(err), "%v", err)
	assert.Less(t, time.Since(start), cfg.Timeout+500*time.Millisecond)
}

func TestFactoryRefused(t *testing.T) {
	server := vsttest.NewServer(nil)
	host := server.Host()
	server.Close()

	factory, err := NewConnectionFactory(testConfig(common.ProtocolVST))
	require.NoError(t, err)
	_, err = factory.Create(context.Background(), host, common.NoAuthentication())
	require.Error(t, err)
	assert.True(t, common.IsTransport(err), "%v", err)
}

func TestFactoryInvalidConfig(t *testing.T) {
	cfg := testConfig(common.ProtocolVST)
	cfg.Timeout = -1
	_, err := NewConnectionFactory(cfg)
	assert.Error(t, err)
}

// ---- Pool ----

func TestPoolReusesConnections(t *testing.T) {
	factory, created := fakeFactory(testConfig(common.ProtocolVST))
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()

	host := common.NewHostDescription("db1", 8529)
	first, err := p.Get(context.Background(), host)
	require.NoError(t, err)
	second, err := p.Get(context.Background(), host)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), created.Load())
	assert.Equal(t, 1, p.ConnectionCount())
}

func TestPoolRoundRobin(t *testing.T) {
	cfg := testConfig(common.ProtocolVST)
	cfg.ConnectionsPerHost = 3
	factory, created := fakeFactory(cfg)
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()

	host := common.NewHostDescription("db1", 8529)
	ids := make([]int64, 6)
	for i := range ids {
		conn, err := p.Get(context.Background(), host)
		require.NoError(t, err)
		ids[i] = conn.(*fakeConnection).id
	}

	assert.Equal(t, []int64{1, 2, 3, 1, 2, 3}, ids)
	assert.Equal(t, int64(3), created.Load())
	assert.Equal(t, 3, p.ConnectionCount())
}

func TestPoolHostsAreSeparate(t *testing.T) {
	factory, _ := fakeFactory(testConfig(common.ProtocolVST))
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()

	a, err := p.Get(context.Background(), common.NewHostDescription("db1", 8529))
	require.NoError(t, err)
	b, err := p.Get(context.Background(), common.NewHostDescription("db2", 8529))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, "db2", b.Host().Host)
	assert.Equal(t, 2, p.ConnectionCount())

	require.NoError(t, p.CloseHost(common.NewHostDescription("db1", 8529)))
	assert.True(t, a.IsClosed())
	assert.False(t, b.IsClosed())
	assert.Equal(t, 1, p.ConnectionCount())
}

func TestPoolReplacesClosedConnection(t *testing.T) {
	factory, created := fakeFactory(testConfig(common.ProtocolVST))
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()

	host := common.NewHostDescription("db1", 8529)
	first, err := p.Get(context.Background(), host)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := p.Get(context.Background(), host)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), created.Load())

	stats := p.Stats()
	assert.Equal(t, Stats{Live: 1, Created: 2, Discarded: 1}, stats)
	assert.Equal(t, int64(1), p.Registry().Get(MetricDiscarded).(gometrics.Counter).Count())
}

func TestPoolClose(t *testing.T) {
	cfg := testConfig(common.ProtocolVST)
	cfg.ConnectionsPerHost = 2
	factory, _ := fakeFactory(cfg)
	p := NewHostPool(factory, common.NoAuthentication())

	var conns []transport.IConnection
	for _, name := range []string{"db1", "db2", "db3"} {
		for i := 0; i < 2; i++ {
			conn, err := p.Get(context.Background(), common.NewHostDescription(name, 8529))
			require.NoError(t, err)
			conns = append(conns, conn)
		}
	}
	assert.Equal(t, 6, p.ConnectionCount())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")
	for _, conn := range conns {
		assert.True(t, conn.IsClosed())
	}
	assert.Equal(t, 0, p.ConnectionCount())
	assert.Equal(t, int64(0), p.Stats().Live)

	_, err := p.Get(context.Background(), common.NewHostDescription("db1", 8529))
	assert.True(t, common.IsConnectionClosed(err))
	assert.True(t, p.Connection(common.NewHostDescription("db1", 8529)).IsClosed())
}

func TestLogicalConnectionClose(t *testing.T) {
	factory, created := fakeFactory(testConfig(common.ProtocolVST))
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()

	host := common.NewHostDescription("db1", 8529)
	conn := p.Connection(host)
	_, err := conn.Execute(context.Background(), versionRequest())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, p.ConnectionCount())

	_, err = conn.Execute(context.Background(), versionRequest())
	assert.True(t, common.IsConnectionClosed(err))
	assert.ErrorContains(t, err, "connection closed")
	assert.True(t, common.IsConnectionClosed(conn.Open(context.Background())))
	assert.Equal(t, int64(1), created.Load(), "a closed handle does not reconnect")

	// a fresh handle reconnects
	fresh := p.Connection(host)
	assert.False(t, fresh.IsClosed())
	_, err = fresh.Execute(context.Background(), versionRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.Load())
}

func TestPoolConcurrentGet(t *testing.T) {
	cfg := testConfig(common.ProtocolVST)
	cfg.ConnectionsPerHost = 4
	factory, created := fakeFactory(cfg)
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()

	host := common.NewHostDescription("db1", 8529)
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			_, err := p.Connection(host).Execute(context.Background(), versionRequest())
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(4), created.Load())
}

// ---- Resiliency ----

func TestLogicalConnectionSurvivesCuts(t *testing.T) {
	vstServer := vsttest.NewServer(nil)
	defer vstServer.Close()
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer httpServer.Close()

	testCases := []struct {
		protocol common.Protocol
		target   string
	}{
		{common.ProtocolVST, vstServer.Addr()},
		{common.ProtocolHTTPJSON, httpServer.Listener.Addr().String()},
	}
	for _, tc := range testCases {
		t.Run(tc.protocol.String(), func(t *testing.T) {
			proxy := cutproxy.New(tc.target)
			defer proxy.Close()

			factory, err := NewConnectionFactory(testConfig(tc.protocol))
			require.NoError(t, err)
			p := NewHostPool(factory, common.NoAuthentication())
			defer p.Close()
			conn := p.Connection(proxy.Host())

			for i := 0; i < 100; i++ {
				_, err := conn.Execute(context.Background(), versionRequest())
				require.NoError(t, err, "cycle %d", i)

				proxy.Cut()
				_, err = conn.Execute(context.Background(), versionRequest())
				require.Error(t, err, "cycle %d", i)
				assert.True(t, common.IsTransport(err) || common.IsTimeout(err), "cycle %d: %v", i, err)

				proxy.Restore()
			}

			_, err = conn.Execute(context.Background(), versionRequest())
			require.NoError(t, err)
			assert.Equal(t, 1, p.ConnectionCount())
		})
	}
}

func TestLogicalConnectionAfterTimeout(t *testing.T) {
	server := vsttest.NewServer(nil)
	defer server.Close()
	proxy := cutproxy.New(server.Addr())
	defer proxy.Close()

	cfg := testConfig(common.ProtocolVST)
	cfg.Timeout = 200 * time.Millisecond
	factory, err := NewConnectionFactory(cfg)
	require.NoError(t, err)
	p := NewHostPool(factory, common.NoAuthentication())
	defer p.Close()
	conn := p.Connection(proxy.Host())

	_, err = conn.Execute(context.Background(), versionRequest())
	require.NoError(t, err)

	proxy.Pause()
	_, err = conn.Execute(context.Background(), versionRequest())
	require.Error(t, err)
	assert.True(t, common.IsTimeout(err), "%v", err)
	proxy.Unpause()

	// the timed out connection was discarded, the next call reconnects
	_, err = conn.Execute(context.Background(), versionRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Stats().Created)
	assert.Equal(t, 1, p.ConnectionCount())
}
