package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"sync"
	"testing"
	"time"
)

// ---- Helper ----

// scriptedExecutor answers requests with a handler and records them
type scriptedExecutor struct {
	mu       sync.Mutex
	requests []*common.Request
	handler  func(req *common.Request) *common.Response
	err      error
}

func (e *scriptedExecutor) Execute(_ context.Context, req *common.Request) (*common.Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	resp := e.handler(req)
	return resp, common.CheckResponse(resp, nil)
}

func (e *scriptedExecutor) last() *common.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

func jsonResponse(status int, body string) *common.Response {
	resp := common.NewResponse(status)
	if body != "" {
		resp.Body.SetText(body)
	}
	return resp
}

func errorResponse(status, errorNum int) *common.Response {
	return jsonResponse(status, fmt.Sprintf(`{"error":true,"code":%d,"errorNum":%d,"errorMessage":"failed"}`, status, errorNum))
}

// ---- Documents ----

func TestGetDocument(t *testing.T) {
	executor := &scriptedExecutor{handler: func(req *common.Request) *common.Response {
		return jsonResponse(http.StatusOK, `{"_key":"alice","age":42}`)
	}}
	c := NewClient(executor, "mydb", common.ProtocolHTTPJSON)

	var doc struct {
		Key string `json:"_key"`
		Age int    `json:"age"`
	}
	opts := DefaultDocumentOptions()
	opts.IfNoneMatch = "_rev1"
	opts.AllowDirtyRead = true

	found, err := c.GetDocument(context.Background(), "users", "alice", &doc, opts)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", doc.Key)
	assert.Equal(t, 42, doc.Age)

	req := executor.last()
	assert.Equal(t, "mydb", req.Database)
	assert.Equal(t, common.RequestGet, req.Method)
	assert.Equal(t, "/_api/document/users/alice", req.Path)
	assert.Equal(t, "_rev1", req.HeaderParams[HeaderIfNoneMatch])
	assert.Equal(t, "true", req.HeaderParams[HeaderAllowDirtyRead])
	assert.NotContains(t, req.HeaderParams, HeaderIfMatch)
}

func TestCatchException(t *testing.T) {
	testCases := []struct {
		name      string
		response  *common.Response
		catch     bool
		expectErr bool
	}{
		{"404 caught", errorResponse(http.StatusNotFound, 1202), true, false},
		{"304 caught", jsonResponse(http.StatusNotModified, ""), true, false},
		{"412 caught", errorResponse(http.StatusPreconditionFailed, 1200), true, false},
		{"404 without catch", errorResponse(http.StatusNotFound, 1202), false, true},
		{"transaction not found", errorResponse(http.StatusNotFound, common.ErrorNumTransactionNotFound), true, true},
		{"server error", errorResponse(http.StatusInternalServerError, 4), true, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			executor := &scriptedExecutor{handler: func(*common.Request) *common.Response { return tc.response }}
			c := NewClient(executor, "", common.ProtocolHTTPJSON)
			opts := DocumentOptions{CatchException: tc.catch}

			var doc map[string]any
			found, err := c.GetDocument(context.Background(), "c", "k", &doc, opts)
			exists, existsErr := c.DocumentExists(context.Background(), "c", "k", opts)

			assert.False(t, found)
			assert.False(t, exists)
			if tc.expectErr {
				d, ok := common.AsDomainError(err)
				require.True(t, ok, "%v", err)
				assert.Equal(t, tc.response.StatusCode, d.StatusCode)
				assert.Error(t, existsErr)
			} else {
				assert.NoError(t, err)
				assert.NoError(t, existsErr)
			}
		})
	}
}

func TestTransportErrorsAreNotCaught(t *testing.T) {
	executor := &scriptedExecutor{err: &common.TransportError{Op: "execute", Err: common.ErrConnectionClosed}}
	c := NewClient(executor, "", common.ProtocolHTTPJSON)

	_, err := c.GetDocument(context.Background(), "c", "k", nil, DefaultDocumentOptions())
	assert.True(t, common.IsConnectionClosed(err))
}

func TestDocumentExists(t *testing.T) {
	executor := &scriptedExecutor{handler: func(req *common.Request) *common.Response {
		return jsonResponse(http.StatusOK, "")
	}}
	c := NewClient(executor, "", common.ProtocolHTTPJSON)

	exists, err := c.DocumentExists(context.Background(), "c", "a/b", DocumentOptions{IfMatch: "_rev2"})
	require.NoError(t, err)
	assert.True(t, exists)

	req := executor.last()
	assert.Equal(t, common.RequestHead, req.Method)
	assert.Equal(t, "/_api/document/c/a%2Fb", req.Path)
	assert.Equal(t, "_rev2", req.HeaderParams[HeaderIfMatch])
}

func TestGetDocuments(t *testing.T) {
	executor := &scriptedExecutor{handler: func(req *common.Request) *common.Response {
		return jsonResponse(http.StatusOK, `[{"_key":"k1"},{"_key":"k2"}]`)
	}}
	c := NewClient(executor, "mydb", common.ProtocolHTTPJSON)

	var docs []map[string]any
	require.NoError(t, c.GetDocuments(context.Background(), "c", []string{"k1", "k2"}, &docs, DefaultDocumentOptions()))
	require.Len(t, docs, 2)
	assert.Equal(t, "k2", docs[1]["_key"])

	req := executor.last()
	assert.Equal(t, common.RequestPut, req.Method)
	assert.Equal(t, "/_api/document/c", req.Path)
	assert.Equal(t, "true", req.QueryParams["onlyget"])
	text, err := req.Body.Text(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `["k1","k2"]`, text)
}

func TestGetDocumentsPassesErrorsThrough(t *testing.T) {
	executor := &scriptedExecutor{handler: func(*common.Request) *common.Response {
		return errorResponse(http.StatusNotFound, 1203)
	}}
	c := NewClient(executor, "", common.ProtocolHTTPJSON)

	var docs []map[string]any
	err := c.GetDocuments(context.Background(), "missing", []string{"k1"}, &docs, DefaultDocumentOptions())
	d, ok := common.AsDomainError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, 1203, d.ErrorNum)
}

func TestVersion(t *testing.T) {
	executor := &scriptedExecutor{handler: func(req *common.Request) *common.Response {
		return jsonResponse(http.StatusOK, `{"server":"arango","version":"3.11.0","license":"community","details":{"mode":"server"}}`)
	}}
	c := NewClient(executor, "", common.ProtocolHTTPJSON)

	info, err := c.Version(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, VersionInfo{Server: "arango", Version: "3.11.0", License: "community", Details: map[string]string{"mode": "server"}}, info)
	assert.Equal(t, "true", executor.last().QueryParams["details"])
}

// ---- Failover ----

// fakeProvider maps hosts to executors
type fakeProvider struct {
	mu     sync.Mutex
	hosts  map[string]*hostConnection
	closed bool
}

type hostConnection struct {
	host    common.HostDescription
	calls   int
	execute func(req *common.Request) (*common.Response, error)
}

func (c *hostConnection) Open(context.Context) error { return nil }
func (c *hostConnection) Execute(_ context.Context, req *common.Request) (*common.Response, error) {
	c.calls++
	return c.execute(req)
}
func (c *hostConnection) Close() error                 { return nil }
func (c *hostConnection) IsClosed() bool               { return false }
func (c *hostConnection) Host() common.HostDescription { return c.host }

func (p *fakeProvider) Connection(host common.HostDescription) transport.IConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hosts[host.Key()]
}

func (p *fakeProvider) IsClosed() bool { return p.closed }

func newFakeProvider(behaviour map[common.HostDescription]func(req *common.Request) (*common.Response, error)) *fakeProvider {
	p := &fakeProvider{hosts: make(map[string]*hostConnection)}
	for host, execute := range behaviour {
		p.hosts[host.Key()] = &hostConnection{host: host, execute: execute}
	}
	return p
}

var (
	hostA = common.NewHostDescription("a", 8529)
	hostB = common.NewHostDescription("b", 8529)
	hostC = common.NewHostDescription("c", 8529)
)

func ok(*common.Request) (*common.Response, error) {
	return common.NewResponse(http.StatusOK), nil
}

func unreachable(*common.Request) (*common.Response, error) {
	return nil, &common.TransportError{Op: "dial", Err: errors.New("connection refused")}
}

func TestFailoverMovesToNextHost(t *testing.T) {
	provider := newFakeProvider(map[common.HostDescription]func(*common.Request) (*common.Response, error){
		hostA: unreachable,
		hostB: ok,
		hostC: ok,
	})
	executor, err := NewFailoverExecutor(provider, []common.HostDescription{hostA, hostB, hostC}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	resp, err := executor.Execute(context.Background(), common.NewRequest("", common.RequestGet, "/_api/version"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hostB, executor.CurrentHost())

	// the next request starts on the working host
	_, err = executor.Execute(context.Background(), common.NewRequest("", common.RequestGet, "/_api/version"))
	require.NoError(t, err)
	assert.Equal(t, 1, provider.hosts[hostA.Key()].calls)
	assert.Equal(t, 2, provider.hosts[hostB.Key()].calls)
}

func TestFailoverGivesUp(t *testing.T) {
	provider := newFakeProvider(map[common.HostDescription]func(*common.Request) (*common.Response, error){
		hostA: unreachable,
		hostB: unreachable,
	})
	executor, err := NewFailoverExecutor(provider, []common.HostDescription{hostA, hostB}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), common.NewRequest("", common.RequestGet, "/"))
	require.Error(t, err)
	assert.True(t, common.IsTransport(err), "%v", err)
	assert.Equal(t, 1, provider.hosts[hostA.Key()].calls)
	assert.Equal(t, 1, provider.hosts[hostB.Key()].calls)
}

func TestFailoverDoesNotRetryDomainErrors(t *testing.T) {
	provider := newFakeProvider(map[common.HostDescription]func(*common.Request) (*common.Response, error){
		hostA: func(*common.Request) (*common.Response, error) {
			resp := errorResponse(http.StatusNotFound, 1202)
			return resp, common.CheckResponse(resp, nil)
		},
		hostB: ok,
	})
	executor, err := NewFailoverExecutor(provider, []common.HostDescription{hostA, hostB}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	resp, err := executor.Execute(context.Background(), common.NewRequest("", common.RequestGet, "/"))
	d, isDomain := common.AsDomainError(err)
	require.True(t, isDomain, "%v", err)
	assert.Equal(t, 1202, d.ErrorNum)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, provider.hosts[hostB.Key()].calls)
	assert.Equal(t, hostA, executor.CurrentHost())
}

func TestFailoverFollowsRedirect(t *testing.T) {
	provider := newFakeProvider(map[common.HostDescription]func(*common.Request) (*common.Response, error){
		hostA: func(*common.Request) (*common.Response, error) {
			resp := common.NewResponse(http.StatusServiceUnavailable)
			resp.Meta["x-arango-endpoint"] = "tcp://c:8529"
			return resp, common.CheckResponse(resp, nil)
		},
		hostB: ok,
		hostC: ok,
	})
	executor, err := NewFailoverExecutor(provider, []common.HostDescription{hostA, hostB, hostC}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), common.NewRequest("", common.RequestGet, "/"))
	require.NoError(t, err)
	assert.Equal(t, hostC, executor.CurrentHost())
	assert.Equal(t, 0, provider.hosts[hostB.Key()].calls)
	assert.Equal(t, 1, provider.hosts[hostC.Key()].calls)
}

func TestFailoverStopsOnClosedProvider(t *testing.T) {
	provider := newFakeProvider(map[common.HostDescription]func(*common.Request) (*common.Response, error){
		hostA: func(*common.Request) (*common.Response, error) {
			return nil, &common.TransportError{Op: "get", Err: common.ErrConnectionClosed}
		},
		hostB: ok,
	})
	provider.closed = true
	executor, err := NewFailoverExecutor(provider, []common.HostDescription{hostA, hostB}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), common.NewRequest("", common.RequestGet, "/"))
	assert.True(t, common.IsConnectionClosed(err))
	assert.Equal(t, 0, provider.hosts[hostB.Key()].calls)
}

func TestFailoverWithClient(t *testing.T) {
	provider := newFakeProvider(map[common.HostDescription]func(*common.Request) (*common.Response, error){
		hostA: func(*common.Request) (*common.Response, error) {
			return nil, &common.TimeoutError{Op: "request 1", Err: context.DeadlineExceeded}
		},
		hostB: func(*common.Request) (*common.Response, error) {
			return jsonResponse(http.StatusOK, `{"server":"b","version":"1","license":"community"}`), nil
		},
	})
	executor, err := NewFailoverExecutor(provider, []common.HostDescription{hostA, hostB}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	info, err := NewClient(executor, "", common.ProtocolHTTPJSON).Version(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "b", info.Server)
}

func TestNewFailoverExecutorWithoutHosts(t *testing.T) {
	_, err := NewFailoverExecutor(&fakeProvider{}, nil)
	assert.Error(t, err)
}
