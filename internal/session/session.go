// Package session owns one transport/codec pair for the lifetime of a
// single connection attempt.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"vlesslink/internal/protocol"
	"vlesslink/internal/transport"
)

// Error wraps a transport or protocol failure with the session operation
// that surfaced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("session %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Session drives the codec handshake over a transport and then forwards
// payload bytes while counting traffic in both directions.
type Session struct {
	tr    transport.Transport
	codec *protocol.Codec

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64

	mu           sync.Mutex
	connected    bool
	closed       bool
	handshakeRTT time.Duration
}

func New(tr transport.Transport, codec *protocol.Codec) *Session {
	return &Session{tr: tr, codec: codec}
}

// Connect opens the transport and runs the request/response exchange.
// It returns success only after both steps succeed. The handshake
// round-trip time is recorded for statistics.
func (s *Session) Connect(ctx context.Context, host string, port uint16) error {
	if err := s.tr.Connect(ctx, host, port); err != nil {
		return &Error{Op: "connect", Err: err}
	}

	rw := transportRW{s.tr}
	start := time.Now()
	if err := s.codec.WriteRequest(rw, host, port); err != nil {
		_ = s.tr.Close()
		return &Error{Op: "handshake", Err: err}
	}
	if err := s.codec.ReadResponse(rw); err != nil {
		_ = s.tr.Close()
		return &Error{Op: "handshake", Err: err}
	}
	if err := s.codec.NegotiateFlow(rw); err != nil {
		_ = s.tr.Close()
		return &Error{Op: "negotiate flow", Err: err}
	}

	s.mu.Lock()
	s.connected = true
	s.handshakeRTT = time.Since(start)
	s.mu.Unlock()
	return nil
}

// Forward pushes payload bytes toward the server.
func (s *Session) Forward(p []byte) error {
	if !s.isConnected() {
		return &Error{Op: "forward", Err: transport.ErrNotConnected}
	}
	if err := s.tr.Send(p); err != nil {
		return &Error{Op: "forward", Err: err}
	}
	s.bytesOut.Add(uint64(len(p)))
	return nil
}

// Pull reads payload bytes coming back from the server.
func (s *Session) Pull(p []byte) (int, error) {
	if !s.isConnected() {
		return 0, &Error{Op: "pull", Err: transport.ErrNotConnected}
	}
	n, err := s.tr.Receive(p)
	if n > 0 {
		s.bytesIn.Add(uint64(n))
	}
	if err != nil {
		return n, &Error{Op: "pull", Err: err}
	}
	return n, nil
}

// Counters returns the running received/sent byte totals.
func (s *Session) Counters() (in, out uint64) {
	return s.bytesIn.Load(), s.bytesOut.Load()
}

// HandshakeRTT returns the measured request/response round trip, or zero
// before a successful Connect.
func (s *Session) HandshakeRTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeRTT
}

// Close tears down the transport and releases the credential immediately.
// Safe to call multiple times and before Connect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	s.codec.Release()
	return s.tr.Close()
}

func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

// transportRW adapts the transport contract to io.ReadWriter for the codec.
type transportRW struct {
	tr transport.Transport
}

func (rw transportRW) Read(p []byte) (int, error)  { return rw.tr.Receive(p) }
func (rw transportRW) Write(p []byte) (int, error) {
	if err := rw.tr.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
