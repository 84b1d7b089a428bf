// Package config loads and validates the client configuration: named
// server profiles plus daemon-level settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"vlesslink/internal/protocol"
	"vlesslink/internal/transport"
)

type Config struct {
	Profiles  []Profile       `yaml:"profiles"`
	Active    string          `yaml:"active"` // profile id to connect on startup
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	DNS       DNSConfig       `yaml:"dns"`
	TUN       TUNConfig       `yaml:"tun"`
}

// Profile describes one server: where to dial, how to wrap the stream,
// and which flow mode to request. The credential itself lives in the
// vault, keyed by the profile id.
type Profile struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	Endpoint  ServerEndpoint  `yaml:"endpoint"`
	Transport TransportConfig `yaml:"transport"`
	Flow      string          `yaml:"flow"`
}

type ServerEndpoint struct {
	Hostname         string   `yaml:"hostname"`
	Port             uint16   `yaml:"port"`
	ServerName       string   `yaml:"server_name"` // SNI; may target a decoy domain
	ALPN             []string `yaml:"alpn"`
	AllowInsecureTLS bool     `yaml:"allow_insecure_tls"` // test-only, never default on
}

type TransportConfig struct {
	Type        string            `yaml:"type"` // tcp | tls | ws | grpc | h2
	Path        string            `yaml:"path"`
	Headers     map[string]string `yaml:"headers"`
	ServiceName string            `yaml:"service_name"`
	Hosts       []string          `yaml:"hosts"`
	Fingerprint string            `yaml:"fingerprint"`
	DialTimeout time.Duration     `yaml:"dial_timeout"`
	ReadTimeout time.Duration     `yaml:"read_timeout"`
}

type ReconnectConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MetricsConfig struct {
	Listen    string `yaml:"listen"`
	AuthToken string `yaml:"auth_token"`
}

type DNSConfig struct {
	// Bootstrap is a DNS server ("host:port") used to resolve server
	// hostnames instead of the system resolver. Empty disables it.
	Bootstrap string `yaml:"bootstrap"`
}

type TUNConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	MTU     int    `yaml:"mtu"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Profiles))
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate profile id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if c.Active != "" {
		if _, ok := c.Profile(c.Active); !ok {
			return fmt.Errorf("active profile %q not defined", c.Active)
		}
	}
	return nil
}

// Profile looks up a profile by id. Config is the daemon's profile store.
func (c *Config) Profile(id string) (*Profile, bool) {
	for i := range c.Profiles {
		if c.Profiles[i].ID == id {
			return &c.Profiles[i], true
		}
	}
	return nil, false
}

func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("missing profile id")
	}
	if p.Endpoint.Hostname == "" {
		return fmt.Errorf("missing endpoint hostname")
	}
	if p.Endpoint.Port == 0 {
		return fmt.Errorf("endpoint port must be in [1,65535]")
	}
	switch p.Transport.Type {
	case "", "tcp", "ws":
	case "tls", "h2":
		if p.sni() == "" {
			return fmt.Errorf("%s transport requires a server name", p.Transport.Type)
		}
	case "grpc":
		if p.Transport.ServiceName == "" {
			return fmt.Errorf("grpc transport requires serviceName")
		}
	default:
		return fmt.Errorf("unknown transport type %q", p.Transport.Type)
	}
	if _, err := protocol.ParseFlow(p.Flow); err != nil {
		return err
	}
	return nil
}

// sni returns the SNI name, defaulting to the endpoint hostname.
func (p *Profile) sni() string {
	if p.Endpoint.ServerName != "" {
		return p.Endpoint.ServerName
	}
	return p.Endpoint.Hostname
}

// BuildTransport builds the transport-layer config for this profile.
func (p *Profile) BuildTransport() transport.Config {
	cfg := transport.Config{
		DialTimeout: p.Transport.DialTimeout,
		ReadTimeout: p.Transport.ReadTimeout,
	}
	tlsOpts := transport.TLSOptions{
		ServerName:    p.sni(),
		ALPN:          p.Endpoint.ALPN,
		AllowInsecure: p.Endpoint.AllowInsecureTLS,
		Fingerprint:   p.Transport.Fingerprint,
	}
	switch p.Transport.Type {
	case "", "tcp":
		cfg.Kind = transport.KindTCP
	case "tls":
		cfg.Kind = transport.KindTLS
		cfg.TLS = tlsOpts
	case "ws":
		cfg.Kind = transport.KindWebSocket
		cfg.WebSocket = transport.WebSocketOptions{Path: p.Transport.Path, Headers: p.Transport.Headers}
		if p.Endpoint.ServerName != "" {
			cfg.TLS = tlsOpts
		}
	case "grpc":
		cfg.Kind = transport.KindGRPC
		cfg.GRPC = transport.GRPCOptions{ServiceName: p.Transport.ServiceName}
		cfg.TLS = tlsOpts
	case "h2":
		cfg.Kind = transport.KindHTTP2
		cfg.HTTP2 = transport.HTTP2Options{Path: p.Transport.Path, Hosts: p.Transport.Hosts}
		cfg.TLS = tlsOpts
	}
	return cfg
}

// FlowMode parses the profile's flow string. Validate has already
// rejected unknown values.
func (p *Profile) FlowMode() protocol.Flow {
	f, _ := protocol.ParseFlow(p.Flow)
	return f
}
