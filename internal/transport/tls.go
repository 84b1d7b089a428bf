package transport

import (
	"context"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// TLS is TLS-over-TCP: the TCP socket is opened first, then a uTLS
// handshake runs over it with an explicit SNI name and optional ALPN list.
// The SNI name is independent of the dialed hostname; it may target a
// decoy domain.
type TLS struct {
	streamConn
	cfg Config
}

func NewTLS(cfg Config) (*TLS, error) {
	if cfg.TLS.ServerName == "" {
		return nil, fmt.Errorf("tls transport requires a server name")
	}
	return &TLS{cfg: cfg}, nil
}

func (t *TLS) Connect(ctx context.Context, host string, port uint16) error {
	raw, terr := dialTCP(ctx, t.cfg, host, port)
	if terr != nil {
		return terr
	}
	conn, err := wrapClientTLS(ctx, raw, t.cfg.TLS)
	if err != nil {
		_ = raw.Close()
		return wrapErr(KindTLSHandshakeFailed, err)
	}
	t.attach(conn, t.cfg.readTimeout())
	return nil
}

// wrapClientTLS performs the uTLS handshake over an established connection.
// AllowInsecure installs a trust-everything verifier; it exists for lab
// setups only and is never the default.
func wrapClientTLS(ctx context.Context, conn net.Conn, opts TLSOptions) (net.Conn, error) {
	cfg := &utls.Config{
		ServerName:         opts.ServerName,
		NextProtos:         opts.ALPN,
		InsecureSkipVerify: opts.AllowInsecure,
		MinVersion:         utls.VersionTLS12,
	}
	uconn := utls.UClient(conn, cfg, helloID(opts.Fingerprint))
	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return uconn, nil
}

// helloID maps a fingerprint name to a uTLS ClientHello imitation.
// Unknown names fall back to Chrome, the least conspicuous default.
func helloID(name string) utls.ClientHelloID {
	switch name {
	case "", "chrome", "chrome_auto":
		return utls.HelloChrome_Auto
	case "firefox", "ff":
		return utls.HelloFirefox_Auto
	case "safari":
		return utls.HelloSafari_Auto
	case "ios":
		return utls.HelloIOS_Auto
	case "edge":
		return utls.HelloEdge_Auto
	case "random", "randomized":
		return utls.HelloRandomized
	case "golang":
		return utls.HelloGolang
	default:
		return utls.HelloChrome_Auto
	}
}
