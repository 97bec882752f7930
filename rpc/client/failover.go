package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/avast/retry-go/v4"
	"sync/atomic"
	"time"
)

// ConnectionProvider hands out logical connections per host, pool.HostPool implements it
type ConnectionProvider interface {
	Connection(host common.HostDescription) transport.IConnection
	IsClosed() bool
}

// FailoverOption configures a FailoverExecutor
type FailoverOption func(e *FailoverExecutor)

// WithRetryDelay sets the base delay between two attempts (default 100ms)
func WithRetryDelay(delay time.Duration) FailoverOption {
	return func(e *FailoverExecutor) { e.delay = delay }
}

// WithAttempts sets the number of attempts, the default is one per host
func WithAttempts(attempts uint) FailoverOption {
	return func(e *FailoverExecutor) { e.attempts = attempts }
}

// FailoverExecutor sends requests to the current host and moves on to the next
// host after transport failures and timeouts. Failures reported by the server are
// never retried, except redirects to another known host.
type FailoverExecutor struct {
	provider ConnectionProvider
	hosts    []common.HostDescription
	current  atomic.Int64
	attempts uint
	delay    time.Duration
}

// NewFailoverExecutor creates an executor over the ordered host list
func NewFailoverExecutor(provider ConnectionProvider, hosts []common.HostDescription, opts ...FailoverOption) (*FailoverExecutor, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts provided")
	}
	e := &FailoverExecutor{
		provider: provider,
		hosts:    hosts,
		attempts: uint(len(hosts)),
		delay:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.attempts == 0 {
		e.attempts = 1
	}
	return e, nil
}

// Execute sends the request, failing over to the next host if necessary
func (e *FailoverExecutor) Execute(ctx context.Context, req *common.Request) (*common.Response, error) {
	var resp *common.Response

	err := retry.Do(
		func() error {
			idx := e.current.Load()
			host := e.hosts[idx]

			var err error
			resp, err = e.provider.Connection(host).Execute(ctx, req)
			if err == nil {
				return nil
			}

			if d, ok := common.AsDomainError(err); ok {
				if d.Endpoint != "" && e.redirect(idx, d.Endpoint) {
					Logger.Infof("Redirected from %s to %s", host, d.Endpoint)
				}
				return err
			}
			if common.IsTransport(err) || common.IsTimeout(err) {
				e.advance(idx)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.RetryIf(e.retryable),
		retry.LastErrorOnly(true),
		retry.Delay(e.delay),
		retry.MaxJitter(e.delay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.OnRetry(func(n uint, err error) {
			Logger.Warningf("Attempt %d of %s failed, retrying on %s: %v", n+1, req, e.CurrentHost(), err)
		}),
	)
	return resp, err
}

// CurrentHost returns the host the next request is sent to
func (e *FailoverExecutor) CurrentHost() common.HostDescription {
	return e.hosts[e.current.Load()]
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// retryable reports whether another attempt can succeed
func (e *FailoverExecutor) retryable(err error) bool {
	if e.provider.IsClosed() {
		return false
	}
	if d, ok := common.AsDomainError(err); ok {
		return d.Endpoint != "" && e.knownHost(d.Endpoint) >= 0
	}
	return common.IsTransport(err) || common.IsTimeout(err)
}

// advance moves to the host after idx, unless another request already did
func (e *FailoverExecutor) advance(idx int64) {
	next := (idx + 1) % int64(len(e.hosts))
	e.current.CompareAndSwap(idx, next)
}

// redirect moves to endpoint if it is a known host
func (e *FailoverExecutor) redirect(idx int64, endpoint string) bool {
	target := e.knownHost(endpoint)
	if target < 0 {
		return false
	}
	e.current.CompareAndSwap(idx, int64(target))
	return true
}

// knownHost returns the index of endpoint in the host list or -1
func (e *FailoverExecutor) knownHost(endpoint string) int {
	host, err := common.ParseHostDescription(endpoint)
	if err != nil {
		return -1
	}
	for i, h := range e.hosts {
		if h.Equal(host) {
			return i
		}
	}
	return -1
}
