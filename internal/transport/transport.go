// Package transport provides the byte-stream abstractions the protocol
// codec runs over: plain TCP, TLS over TCP, and framed variants
// (WebSocket, HTTP/2) that behave as a raw pipe once connected.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Transport is a raw bidirectional byte stream to a server. Implementations
// are single-use: one Connect, then Send/Receive until Close. Close is
// idempotent and never fails.
type Transport interface {
	Connect(ctx context.Context, host string, port uint16) error
	Send(p []byte) error
	Receive(p []byte) (int, error)
	IsConnected() bool
	Close() error
}

// DialFunc overrides how the underlying TCP connection is established.
// Used to route dials through a bootstrap resolver or a bound network
// interface on hosts where the default route may be stale.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

const (
	DefaultDialTimeout = 15 * time.Second
	DefaultReadTimeout = 30 * time.Second
)

// Kind selects the concrete transport variant.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindTLS       Kind = "tls"
	KindWebSocket Kind = "ws"
	KindGRPC      Kind = "grpc"
	KindHTTP2     Kind = "h2"
)

// TLSOptions configures the TLS layer for variants that carry one.
// ServerName is presented as SNI independently of the dialed hostname.
// AllowInsecure disables certificate validation and must stay test-only.
type TLSOptions struct {
	ServerName    string
	ALPN          []string
	AllowInsecure bool
	Fingerprint   string // uTLS ClientHello imitation, e.g. "chrome"
}

// WebSocketOptions configures the WebSocket framed variant.
type WebSocketOptions struct {
	Path    string
	Headers map[string]string
}

// GRPCOptions configures the gRPC framed variant seam.
type GRPCOptions struct {
	ServiceName string
}

// HTTP2Options configures the HTTP/2 framed variant.
type HTTP2Options struct {
	Path  string
	Hosts []string
}

// Config is the tagged union over transport variants. Exactly one variant
// is instantiated per session; fields outside the selected Kind are ignored.
type Config struct {
	Kind Kind

	TLS       TLSOptions
	WebSocket WebSocketOptions
	GRPC      GRPCOptions
	HTTP2     HTTP2Options

	DialTimeout time.Duration
	ReadTimeout time.Duration

	// Dial, when set, replaces the default TCP dialer for all variants.
	Dial DialFunc

	// BindDevice pins sockets to a network interface (the host network
	// monitor's current handle), so a dial after a network change does
	// not ride a stale route.
	BindDevice string
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return DefaultDialTimeout
}

func (c Config) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return DefaultReadTimeout
}

// New builds the Transport for cfg.Kind.
func New(cfg Config) (Transport, error) {
	switch cfg.Kind {
	case KindTCP, "":
		return NewTCP(cfg), nil
	case KindTLS:
		return NewTLS(cfg)
	case KindWebSocket:
		return NewWebSocket(cfg)
	case KindHTTP2:
		return NewHTTP2(cfg)
	case KindGRPC:
		return newFramed(cfg)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// streamConn is the shared post-connect state: a net.Conn guarded for
// concurrent Close, with the configured read timeout applied per Receive.
type streamConn struct {
	mu          sync.Mutex
	conn        net.Conn
	readTimeout time.Duration
	closed      bool
}

func (s *streamConn) attach(conn net.Conn, readTimeout time.Duration) {
	s.mu.Lock()
	s.conn = conn
	s.readTimeout = readTimeout
	s.closed = false
	s.mu.Unlock()
}

func (s *streamConn) current() (net.Conn, *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

func (s *streamConn) Send(p []byte) error {
	conn, terr := s.current()
	if terr != nil {
		return terr
	}
	if _, err := conn.Write(p); err != nil {
		return classifyIOError(err)
	}
	return nil
}

func (s *streamConn) Receive(p []byte) (int, error) {
	conn, terr := s.current()
	if terr != nil {
		return 0, terr
	}
	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	n, err := conn.Read(p)
	if err != nil {
		return n, classifyIOError(err)
	}
	return n, nil
}

func (s *streamConn) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.closed
}

func (s *streamConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	_ = s.conn.Close()
	return nil
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, fmt.Sprintf("%d", port))
}
