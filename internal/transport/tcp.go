package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// TCP is the plain TCP variant: stream socket with no-delay and OS
// keep-alive, no framing on top.
type TCP struct {
	streamConn
	cfg Config
}

func NewTCP(cfg Config) *TCP {
	return &TCP{cfg: cfg}
}

func (t *TCP) Connect(ctx context.Context, host string, port uint16) error {
	conn, err := dialTCP(ctx, t.cfg, host, port)
	if err != nil {
		return err
	}
	t.attach(conn, t.cfg.readTimeout())
	return nil
}

// dialTCP opens and tunes the underlying socket shared by all variants.
func dialTCP(ctx context.Context, cfg Config, host string, port uint16) (net.Conn, *Error) {
	addr := joinHostPort(host, port)

	var (
		conn net.Conn
		err  error
	)
	if cfg.Dial != nil {
		dctx, cancel := context.WithTimeout(ctx, cfg.dialTimeout())
		defer cancel()
		conn, err = cfg.Dial(dctx, "tcp", addr)
	} else {
		d := &net.Dialer{
			Timeout:   cfg.dialTimeout(),
			KeepAlive: 30 * time.Second,
			Control:   bindControl(cfg.BindDevice),
		}
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapErr(KindConnectFailed, ctx.Err())
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, wrapErr(KindTimeout, err)
		}
		return nil, wrapErr(KindConnectFailed, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	return conn, nil
}
