// Package vlessuri parses vless:// share links into server profiles.
//
// Format:
//
//	vless://<uuid>@<host>:<port>?type=<tcp|ws|grpc|h2>&security=<none|tls>
//	       &sni=<name>&flow=<none|xtls-rprx-vision>&path=<p>&serviceName=<n>#<label>
package vlessuri

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"vlesslink/internal/config"
)

// Imported is a parsed share link: the profile plus its credential. The
// credential is returned separately so the caller can hand it to the
// vault instead of persisting it with the profile.
type Imported struct {
	Profile    config.Profile
	Credential uuid.UUID
}

func Parse(raw string) (*Imported, error) {
	if !strings.HasPrefix(strings.ToLower(raw), "vless://") {
		return nil, fmt.Errorf("not a vless:// link")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed link: %w", err)
	}

	if u.User == nil {
		return nil, fmt.Errorf("missing UUID before @")
	}
	rawID := u.User.Username()
	if len(rawID) != 36 {
		return nil, fmt.Errorf("invalid UUID %q: want 36-character hyphenated form", rawID)
	}
	cred, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q", rawID)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	portStr := u.Port()
	if portStr == "" {
		return nil, fmt.Errorf("missing port")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("invalid port %q", portStr)
	}

	q := u.Query()

	security := q.Get("security")
	switch security {
	case "", "none", "tls":
	default:
		return nil, fmt.Errorf("unknown security %q", security)
	}
	useTLS := security == "tls"

	sni := q.Get("sni")
	if sni == "" && useTLS {
		sni = host
	}

	var transportType string
	switch typ := q.Get("type"); typ {
	case "", "tcp":
		transportType = "tcp"
		if useTLS {
			transportType = "tls"
		}
	case "ws":
		transportType = "ws"
	case "grpc":
		if q.Get("serviceName") == "" {
			return nil, fmt.Errorf("type=grpc requires serviceName")
		}
		transportType = "grpc"
	case "h2":
		transportType = "h2"
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}

	flow := q.Get("flow")
	switch flow {
	case "", "none", "xtls-rprx-vision":
	default:
		return nil, fmt.Errorf("unknown flow %q", flow)
	}

	label := u.Fragment
	id := label
	if id == "" {
		id = fmt.Sprintf("%s-%d", host, port)
	}

	p := config.Profile{
		ID:   id,
		Name: label,
		Endpoint: config.ServerEndpoint{
			Hostname:   host,
			Port:       uint16(port),
			ServerName: sni,
		},
		Transport: config.TransportConfig{
			Type:        transportType,
			Path:        q.Get("path"),
			ServiceName: q.Get("serviceName"),
		},
		Flow: flow,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Imported{Profile: p, Credential: cred}, nil
}
