package common

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Host Description
// --------------------------------------------------------------------------

// HostDescription identifies a single server endpoint. Two descriptions are
// the same host if host and port are equal, the proxy is not part of the identity.
type HostDescription struct {
	Host  string
	Port  int
	Proxy *ProxyDescription
}

// NewHostDescription creates a host description without a proxy
func NewHostDescription(host string, port int) HostDescription {
	return HostDescription{Host: host, Port: port}
}

// ParseHostDescription parses an endpoint of the form host:port.
// A leading scheme (http://, https://, tcp://, ssl://) is ignored.
func ParseHostDescription(endpoint string) (HostDescription, error) {
	endpoint = strings.TrimSpace(endpoint)
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return HostDescription{}, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return HostDescription{}, fmt.Errorf("invalid port in endpoint %q", endpoint)
	}
	return HostDescription{Host: host, Port: port}, nil
}

// WithProxy returns a copy of the description that is reached through the given proxy
func (h HostDescription) WithProxy(proxy *ProxyDescription) HostDescription {
	h.Proxy = proxy
	return h
}

// Addr returns the dialable host:port address
func (h HostDescription) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// Key returns the identity of the host, used to key pools
func (h HostDescription) Key() string {
	return h.Addr()
}

// Equal compares the identity (host, port) of two descriptions
func (h HostDescription) Equal(other HostDescription) bool {
	return h.Host == other.Host && h.Port == other.Port
}

func (h HostDescription) String() string {
	return h.Addr()
}

// --------------------------------------------------------------------------
// Proxy Description
// --------------------------------------------------------------------------

// ProxyDescription describes a forward HTTP proxy with optional credentials
type ProxyDescription struct {
	Host     string
	Port     int
	User     string
	Password string
}

// HasAuth reports whether proxy credentials are present
func (p *ProxyDescription) HasAuth() bool {
	return p != nil && p.User != ""
}

// URL returns the proxy URL including the credentials if present
func (p *ProxyDescription) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.HasAuth() {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

func (p *ProxyDescription) String() string {
	return fmt.Sprintf("proxy %s:%d", p.Host, p.Port)
}
