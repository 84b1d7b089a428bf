package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"

	"nhooyr.io/websocket"
)

// WebSocket frames the byte stream over a WebSocket connection. Once the
// upgrade completes, Send/Receive behave as a raw pipe: each Send is one
// binary message, Receives drain messages in order.
type WebSocket struct {
	streamConn
	cfg Config
}

func NewWebSocket(cfg Config) (*WebSocket, error) {
	if cfg.WebSocket.Path == "" {
		cfg.WebSocket.Path = "/"
	}
	return &WebSocket{cfg: cfg}, nil
}

func (t *WebSocket) Connect(ctx context.Context, host string, port uint16) error {
	secure := t.cfg.TLS.ServerName != ""
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, joinHostPort(host, port), t.cfg.WebSocket.Path)

	opts := &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
		HTTPHeader:      http.Header{},
	}
	for k, v := range t.cfg.WebSocket.Headers {
		opts.HTTPHeader.Set(k, v)
	}

	// Route the upgrade request through our own dial path so interface
	// binding and the uTLS handshake apply to the outer connection too.
	tr := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, terr := dialTCP(ctx, t.cfg, host, port)
			if terr != nil {
				return nil, terr
			}
			return conn, nil
		},
	}
	if secure {
		tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			raw, terr := dialTCP(ctx, t.cfg, host, port)
			if terr != nil {
				return nil, terr
			}
			conn, err := wrapClientTLS(ctx, raw, t.cfg.TLS)
			if err != nil {
				_ = raw.Close()
				return nil, wrapErr(KindTLSHandshakeFailed, err)
			}
			return conn, nil
		}
		tr.TLSClientConfig = &tls.Config{ServerName: t.cfg.TLS.ServerName}
	}
	opts.HTTPClient = &http.Client{Transport: tr, Timeout: t.cfg.dialTimeout()}

	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		var terr *Error
		if errors.As(err, &terr) {
			return terr
		}
		return wrapErr(KindConnectFailed, err)
	}
	c.SetReadLimit(-1)
	conn := websocket.NetConn(context.Background(), c, websocket.MessageBinary)
	t.attach(conn, t.cfg.readTimeout())
	return nil
}
