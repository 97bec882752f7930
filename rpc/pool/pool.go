package pool

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("pool")

// Names of the pool statistics in the registry
const (
	MetricLive      = "connections.live"
	MetricCreated   = "connections.created"
	MetricDiscarded = "connections.discarded"
)

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// slot holds at most one physical connection
type slot struct {
	mu   sync.Mutex // Serializes creation and replacement
	conn transport.IConnection
}

// hostSlots are the slots of one host, selected round robin
type hostSlots struct {
	host  common.HostDescription
	next  atomic.Uint64
	slots []*slot
}

// Stats is a snapshot of the pool statistics
type Stats struct {
	Live      int64
	Created   int64
	Discarded int64
}

// HostPool keeps up to ConnectionsPerHost connections per host. Connections are
// created on first use and replaced once they turned terminal.
type HostPool struct {
	factory *ConnectionFactory
	auth    common.Authentication
	size    int

	hosts  *xsync.MapOf[string, *hostSlots]
	closed atomic.Bool

	registry  gometrics.Registry
	live      gometrics.Counter
	created   gometrics.Counter
	discarded gometrics.Counter
}

// NewHostPool creates an empty pool that creates its connections with factory
func NewHostPool(factory *ConnectionFactory, auth common.Authentication) *HostPool {
	registry := gometrics.NewRegistry()
	return &HostPool{
		factory:   factory,
		auth:      auth,
		size:      factory.Config.EffectiveConnectionsPerHost(),
		hosts:     xsync.NewMapOf[string, *hostSlots](),
		registry:  registry,
		live:      gometrics.GetOrRegisterCounter(MetricLive, registry),
		created:   gometrics.GetOrRegisterCounter(MetricCreated, registry),
		discarded: gometrics.GetOrRegisterCounter(MetricDiscarded, registry),
	}
}

// --------------------------------------------------------------------------
// Pool Methods
// --------------------------------------------------------------------------

// Get returns a live connection to host. A missing or closed connection in the
// selected slot is (re)created.
func (p *HostPool) Get(ctx context.Context, host common.HostDescription) (transport.IConnection, error) {
	if p.closed.Load() {
		return nil, closedError("get")
	}

	for {
		hs, _ := p.hosts.LoadOrCompute(host.Key(), func() *hostSlots {
			slots := make([]*slot, p.size)
			for i := range slots {
				slots[i] = &slot{}
			}
			return &hostSlots{host: host, slots: slots}
		})

		conn, stale, err := p.getFromSlot(ctx, hs)
		if stale {
			// CloseHost removed the slots while we were waiting
			continue
		}
		return conn, err
	}
}

// getFromSlot returns the connection of the next slot of hs, creating it if needed
func (p *HostPool) getFromSlot(ctx context.Context, hs *hostSlots) (conn transport.IConnection, stale bool, err error) {
	idx := (hs.next.Add(1) - 1) % uint64(len(hs.slots))
	s := hs.slots[idx]

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.closed.Load() {
		return nil, false, closedError("get")
	}
	if current, ok := p.hosts.Load(hs.host.Key()); !ok || current != hs {
		return nil, true, nil
	}
	if s.conn != nil {
		if !s.conn.IsClosed() {
			return s.conn, false, nil
		}
		Logger.Debugf("Replacing closed connection %d to %s", idx, hs.host)
		p.discard(s)
	}

	conn, err = p.factory.Create(ctx, hs.host, p.auth)
	if err != nil {
		Logger.Warningf("Failed to connect to %s: %v", hs.host, err)
		return nil, false, err
	}
	s.conn = conn
	p.created.Inc(1)
	p.live.Inc(1)
	Logger.Debugf("Created connection %d/%d to %s", idx+1, len(hs.slots), hs.host)
	return conn, false, nil
}

// Connection returns a logical connection to host. Every call obtains a live
// physical connection from the pool, so a call after an outage reconnects.
// Closing the handle closes the pooled connections of the host and fails all
// further calls on it, a new handle from Connection reconnects.
func (p *HostPool) Connection(host common.HostDescription) transport.IConnection {
	return &logicalConnection{pool: p, host: host}
}

// CloseHost closes and removes all connections to host
func (p *HostPool) CloseHost(host common.HostDescription) error {
	hs, ok := p.hosts.LoadAndDelete(host.Key())
	if !ok {
		return nil
	}
	return p.closeSlots(hs)
}

// Close closes all connections. Calling it multiple times is safe.
func (p *HostPool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var g errgroup.Group
	p.hosts.Range(func(key string, hs *hostSlots) bool {
		p.hosts.Delete(key)
		g.Go(func() error { return p.closeSlots(hs) })
		return true
	})
	err := g.Wait()
	Logger.Debugf("Closed pool")
	return err
}

// IsClosed reports whether Close has been called
func (p *HostPool) IsClosed() bool {
	return p.closed.Load()
}

// ConnectionCount returns the number of open connections
func (p *HostPool) ConnectionCount() int {
	count := 0
	p.hosts.Range(func(_ string, hs *hostSlots) bool {
		for _, s := range hs.slots {
			s.mu.Lock()
			if s.conn != nil && !s.conn.IsClosed() {
				count++
			}
			s.mu.Unlock()
		}
		return true
	})
	return count
}

// Stats returns a snapshot of the pool statistics
func (p *HostPool) Stats() Stats {
	return Stats{
		Live:      p.live.Count(),
		Created:   p.created.Count(),
		Discarded: p.discarded.Count(),
	}
}

// Registry returns the registry holding the pool statistics
func (p *HostPool) Registry() gometrics.Registry {
	return p.registry
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// discard drops the connection of a slot, the caller holds the slot lock
func (p *HostPool) discard(s *slot) {
	_ = s.conn.Close()
	s.conn = nil
	p.live.Dec(1)
	p.discarded.Inc(1)
}

func (p *HostPool) closeSlots(hs *hostSlots) error {
	var errs []error
	for _, s := range hs.slots {
		s.mu.Lock()
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				errs = append(errs, err)
			}
			s.conn = nil
			p.live.Dec(1)
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func closedError(op string) error {
	return &common.TransportError{Op: op, Err: common.ErrConnectionClosed}
}

// --------------------------------------------------------------------------
// Logical Connection
// --------------------------------------------------------------------------

// logicalConnection resolves a physical connection from the pool on every call
type logicalConnection struct {
	pool   *HostPool
	host   common.HostDescription
	closed atomic.Bool
}

func (c *logicalConnection) Open(ctx context.Context) error {
	if c.closed.Load() {
		return closedError("open")
	}
	_, err := c.pool.Get(ctx, c.host)
	return err
}

func (c *logicalConnection) Execute(ctx context.Context, req *common.Request) (*common.Response, error) {
	if c.closed.Load() {
		return nil, closedError("execute")
	}
	conn, err := c.pool.Get(ctx, c.host)
	if err != nil {
		return nil, err
	}
	return conn.Execute(ctx, req)
}

// Close marks the handle closed and releases the pooled connections of the host
func (c *logicalConnection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.pool.CloseHost(c.host)
}

func (c *logicalConnection) IsClosed() bool {
	return c.closed.Load() || c.pool.IsClosed()
}

func (c *logicalConnection) Host() common.HostDescription {
	return c.host
}
