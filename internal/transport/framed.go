package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// FramedDialer negotiates an outer framing (e.g. gRPC streaming) and
// returns a net.Conn that behaves as a raw byte pipe. Variants without a
// built-in implementation are provided through this registry; the codec
// never learns which framing is active.
type FramedDialer func(ctx context.Context, cfg Config, host string, port uint16) (net.Conn, error)

var (
	framedMu      sync.RWMutex
	framedDialers = map[Kind]FramedDialer{}
)

// RegisterFramed installs a dialer for a framed variant. Later
// registrations replace earlier ones.
func RegisterFramed(kind Kind, fn FramedDialer) {
	framedMu.Lock()
	framedDialers[kind] = fn
	framedMu.Unlock()
}

type framed struct {
	streamConn
	cfg  Config
	dial FramedDialer
}

func newFramed(cfg Config) (*framed, error) {
	framedMu.RLock()
	fn, ok := framedDialers[cfg.Kind]
	framedMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no framed dialer registered for transport kind %q", cfg.Kind)
	}
	if cfg.Kind == KindGRPC && cfg.GRPC.ServiceName == "" {
		return nil, fmt.Errorf("grpc transport requires a service name")
	}
	return &framed{cfg: cfg, dial: fn}, nil
}

func (t *framed) Connect(ctx context.Context, host string, port uint16) error {
	conn, err := t.dial(ctx, t.cfg, host, port)
	if err != nil {
		if terr, ok := err.(*Error); ok {
			return terr
		}
		return wrapErr(KindConnectFailed, err)
	}
	t.attach(conn, t.cfg.readTimeout())
	return nil
}
