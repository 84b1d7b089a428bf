package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// HTTP2 frames the byte stream over a single long-lived HTTP/2 request:
// the request body carries client-to-server bytes, the response body the
// reverse direction. Always TLS, since h2 is negotiated via ALPN.
type HTTP2 struct {
	streamConn
	cfg Config
}

func NewHTTP2(cfg Config) (*HTTP2, error) {
	if cfg.TLS.ServerName == "" {
		return nil, fmt.Errorf("h2 transport requires a tls server name")
	}
	if cfg.HTTP2.Path == "" {
		cfg.HTTP2.Path = "/"
	}
	return &HTTP2{cfg: cfg}, nil
}

func (t *HTTP2) Connect(ctx context.Context, host string, port uint16) error {
	tlsOpts := t.cfg.TLS
	if len(tlsOpts.ALPN) == 0 {
		tlsOpts.ALPN = []string{"h2"}
	}

	tr := &http2.Transport{
		TLSClientConfig: &tls.Config{ServerName: tlsOpts.ServerName, NextProtos: tlsOpts.ALPN},
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			raw, terr := dialTCP(ctx, t.cfg, host, port)
			if terr != nil {
				return nil, terr
			}
			conn, err := wrapClientTLS(ctx, raw, tlsOpts)
			if err != nil {
				_ = raw.Close()
				return nil, wrapErr(KindTLSHandshakeFailed, err)
			}
			return conn, nil
		},
	}

	reqHost := tlsOpts.ServerName
	if len(t.cfg.HTTP2.Hosts) > 0 {
		reqHost = t.cfg.HTTP2.Hosts[0]
	}
	url := fmt.Sprintf("https://%s%s", reqHost, t.cfg.HTTP2.Path)

	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return wrapErr(KindConnectFailed, err)
	}
	req.Host = reqHost

	type result struct {
		resp *http.Response
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := tr.RoundTrip(req)
		resCh <- result{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		_ = pw.Close()
		return wrapErr(KindConnectFailed, ctx.Err())
	case res := <-resCh:
		if res.err != nil {
			_ = pw.Close()
			var terr *Error
			if errors.As(res.err, &terr) {
				return terr
			}
			return wrapErr(KindConnectFailed, res.err)
		}
		resp = res.resp
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		_ = pw.Close()
		return wrapErr(KindConnectFailed, fmt.Errorf("h2 connect: %s", resp.Status))
	}

	t.attach(&pipeConn{reader: resp.Body, writer: pw}, t.cfg.readTimeout())
	return nil
}

// pipeConn adapts the request/response body pair to net.Conn. HTTP/2
// streams have no deadline surface, so deadlines are no-ops; the read
// timeout is enforced by the server's keepalive instead.
type pipeConn struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.reader.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.writer.Write(p) }
func (c *pipeConn) Close() error {
	_ = c.writer.Close()
	return c.reader.Close()
}
func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr("h2-client") }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr("h2-server") }
func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

type pipeAddr string

func (a pipeAddr) Network() string { return "h2" }
func (a pipeAddr) String() string  { return string(a) }
