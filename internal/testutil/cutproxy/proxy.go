// Package cutproxy provides a TCP proxy for tests that can simulate network outages.
//
// Cut closes every proxied socket and rejects new ones until Restore is called.
// Pause keeps accepted sockets open but stops forwarding bytes, which makes
// requests run into their timeout instead of failing fast.
package cutproxy

import (
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Proxy forwards connections from a loopback port to a target address
type Proxy struct {
	listener net.Listener
	target   string

	mu     sync.Mutex
	cut    bool
	paused bool
	resume chan struct{} // closed when the proxy is unpaused
	conns  map[net.Conn]struct{}

	accepted atomic.Int64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a proxy to target. It panics if no loopback port can be opened.
func New(target string) *Proxy {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("cutproxy: failed to listen on a port: %v", err))
	}
	p := &Proxy{
		listener: listener,
		target:   target,
		resume:   make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	close(p.resume)

	p.wg.Add(1)
	go p.serve()
	return p
}

// Addr returns the listen address of the proxy
func (p *Proxy) Addr() string {
	return p.listener.Addr().String()
}

// Host returns the listen address as host description
func (p *Proxy) Host() common.HostDescription {
	addr := p.listener.Addr().(*net.TCPAddr)
	return common.NewHostDescription(addr.IP.String(), addr.Port)
}

// Cut closes all proxied sockets, new sockets are closed right after accept
func (p *Proxy) Cut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cut = true
	p.closeAllLocked()
}

// Restore accepts and forwards sockets again
func (p *Proxy) Restore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cut = false
}

// Pause stops forwarding bytes without closing sockets
func (p *Proxy) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

// Unpause forwards bytes again
func (p *Proxy) Unpause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

// AcceptedCount returns the number of sockets accepted while not cut
func (p *Proxy) AcceptedCount() int64 {
	return p.accepted.Load()
}

// OpenConnections returns the number of proxied sockets (both directions count as one)
func (p *Proxy) OpenConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) / 2
}

// Close stops the proxy and closes all sockets
func (p *Proxy) Close() {
	p.closeOnce.Do(func() {
		p.listener.Close()
		p.Unpause()
		p.mu.Lock()
		p.closeAllLocked()
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p *Proxy) serve() {
	defer p.wg.Done()
	for {
		client, err := p.listener.Accept()
		if err != nil {
			return
		}

		p.mu.Lock()
		cut := p.cut
		p.mu.Unlock()
		if cut {
			client.Close()
			continue
		}
		p.accepted.Add(1)

		p.wg.Add(1)
		go p.handle(client)
	}
}

// handle dials the target and copies bytes in both directions until one side closes
func (p *Proxy) handle(client net.Conn) {
	defer p.wg.Done()

	server, err := net.DialTimeout("tcp", p.target, 5*time.Second)
	if err != nil {
		client.Close()
		return
	}

	p.mu.Lock()
	if p.cut {
		p.mu.Unlock()
		client.Close()
		server.Close()
		return
	}
	p.conns[client] = struct{}{}
	p.conns[server] = struct{}{}
	p.mu.Unlock()

	var pipes sync.WaitGroup
	pipes.Add(2)
	go p.pipe(&pipes, server, client)
	go p.pipe(&pipes, client, server)
	pipes.Wait()

	p.mu.Lock()
	delete(p.conns, client)
	delete(p.conns, server)
	p.mu.Unlock()
}

// pipe copies from src to dst and closes both when done
func (p *Proxy) pipe(wg *sync.WaitGroup, dst, src net.Conn) {
	defer wg.Done()
	defer dst.Close()
	defer src.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			p.mu.Lock()
			resume := p.resume
			p.mu.Unlock()
			<-resume

			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Proxy) closeAllLocked() {
	for conn := range p.conns {
		conn.Close()
	}
}
