// Package dnsutil resolves the server hostname through explicit bootstrap
// resolvers instead of the host stub resolver. On networks where the
// default resolver lies about the endpoint, the bootstrap path keeps the
// tunnel reachable.
package dnsutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"vlesslink/internal/transport"
)

const (
	queryTimeout = 5 * time.Second
	cacheTTL     = 60 * time.Second
)

type cacheEntry struct {
	ips     []net.IP
	expires time.Time
}

// Resolver queries a fixed set of DNS servers in order, caching answers
// briefly so reconnect storms do not re-query.
type Resolver struct {
	servers []string
	client  *dns.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewResolver builds a resolver over the given servers. Entries without a
// port default to :53.
func NewResolver(servers []string) *Resolver {
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	return &Resolver{
		servers: normalized,
		client:  &dns.Client{Timeout: queryTimeout},
		cache:   make(map[string]cacheEntry),
	}
}

// LookupIP resolves host to addresses. Literal IPs pass through without a
// query. A answers are preferred; AAAA is the fallback.
func (r *Resolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	r.mu.Lock()
	if e, ok := r.cache[host]; ok && time.Now().Before(e.expires) {
		ips := e.ips
		r.mu.Unlock()
		return ips, nil
	}
	r.mu.Unlock()

	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		for _, server := range r.servers {
			ips, err := r.query(ctx, server, host, qtype)
			if err != nil {
				lastErr = err
				continue
			}
			if len(ips) == 0 {
				continue
			}
			r.mu.Lock()
			r.cache[host] = cacheEntry{ips: ips, expires: time.Now().Add(cacheTTL)}
			r.mu.Unlock()
			return ips, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, lastErr)
	}
	return nil, fmt.Errorf("resolve %q: no answers", host)
}

func (r *Resolver) query(ctx context.Context, server, host string, qtype uint16) ([]net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s returned rcode %s", server, dns.RcodeToString[resp.Rcode])
	}

	var ips []net.IP
	for _, rr := range resp.Answer {
		switch a := rr.(type) {
		case *dns.A:
			ips = append(ips, a.A)
		case *dns.AAAA:
			ips = append(ips, a.AAAA)
		}
	}
	return ips, nil
}

// DialFunc returns a dialer that resolves the target through the
// bootstrap resolvers, then dials the first address that answers.
func (r *Resolver) DialFunc() transport.DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := r.LookupIP(ctx, host)
		if err != nil {
			return nil, err
		}
		var d net.Dialer
		var lastErr error
		for _, ip := range ips {
			conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}
