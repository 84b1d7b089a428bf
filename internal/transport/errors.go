package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrKind classifies transport failures. Every operation on a Transport
// returns an *Error carrying one of these kinds; callers dispatch with
// errors.Is against the sentinel values below.
type ErrKind int

const (
	KindConnectFailed ErrKind = iota
	KindNotConnected
	KindPeerClosed
	KindTimeout
	KindTLSHandshakeFailed
)

var (
	ErrConnectFailed      = &Error{Kind: KindConnectFailed}
	ErrNotConnected       = &Error{Kind: KindNotConnected}
	ErrPeerClosed         = &Error{Kind: KindPeerClosed}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrTLSHandshakeFailed = &Error{Kind: KindTLSHandshakeFailed}
)

// Error is the typed transport error. Cause may be nil for bare sentinels.
type Error struct {
	Kind  ErrKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same kind, so wrapped errors compare
// against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (k ErrKind) String() string {
	switch k {
	case KindConnectFailed:
		return "connect failed"
	case KindNotConnected:
		return "not connected"
	case KindPeerClosed:
		return "peer closed"
	case KindTimeout:
		return "timeout"
	case KindTLSHandshakeFailed:
		return "tls handshake failed"
	default:
		return "transport error"
	}
}

func wrapErr(kind ErrKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// classifyIOError maps errors surfaced by net.Conn reads/writes to the
// transport taxonomy.
func classifyIOError(err error) *Error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed):
		return wrapErr(KindPeerClosed, err)
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return wrapErr(KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return wrapErr(KindTimeout, err)
	}
	return wrapErr(KindPeerClosed, err)
}
