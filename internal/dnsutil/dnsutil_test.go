package dnsutil

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// localDNS runs a UDP resolver answering every A query with 192.0.2.10.
func localDNS(t *testing.T, queries *atomic.Int64) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		queries.Add(1)
		m := new(dns.Msg)
		m.SetReply(r)
		if len(r.Question) == 1 && r.Question[0].Qtype == dns.TypeA {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.IPv4(192, 0, 2, 10),
			})
		}
		_ = w.WriteMsg(m)
	})}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestLookupIP(t *testing.T) {
	var queries atomic.Int64
	addr := localDNS(t, &queries)
	r := NewResolver([]string{addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ips, err := r.LookupIP(ctx, "vpn.example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ips) != 1 || !ips[0].Equal(net.IPv4(192, 0, 2, 10)) {
		t.Fatalf("ips = %v", ips)
	}
}

func TestLookupIPCaches(t *testing.T) {
	var queries atomic.Int64
	addr := localDNS(t, &queries)
	r := NewResolver([]string{addr})

	ctx := context.Background()
	if _, err := r.LookupIP(ctx, "vpn.example.com"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	first := queries.Load()
	if _, err := r.LookupIP(ctx, "vpn.example.com"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if queries.Load() != first {
		t.Errorf("cached lookup hit the server (%d -> %d queries)", first, queries.Load())
	}
}

func TestLookupIPLiteralPassthrough(t *testing.T) {
	// No servers configured: a literal must never need a query.
	r := NewResolver(nil)
	ips, err := r.LookupIP(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ips) != 1 || ips[0].String() != "203.0.113.7" {
		t.Fatalf("ips = %v", ips)
	}
}

func TestNewResolverDefaultsPort(t *testing.T) {
	r := NewResolver([]string{"1.1.1.1"})
	if r.servers[0] != "1.1.1.1:53" {
		t.Errorf("server = %q, want 1.1.1.1:53", r.servers[0])
	}
}

func TestDialFuncResolvesThroughBootstrap(t *testing.T) {
	var queries atomic.Int64
	addr := localDNS(t, &queries)

	// The target listener is the resolved IP's port on loopback; resolve a
	// name that only the bootstrap server knows.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	r := NewResolver([]string{addr})
	r.mu.Lock()
	r.cache["tunnel.example.com"] = cacheEntry{
		ips:     []net.IP{ln.Addr().(*net.TCPAddr).IP},
		expires: time.Now().Add(time.Minute),
	}
	r.mu.Unlock()

	dial := r.DialFunc()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	conn, err := dial(context.Background(), "tcp", net.JoinHostPort("tunnel.example.com", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}
