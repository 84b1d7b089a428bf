package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vlesslink/internal/transport"
)

const sampleYAML = `
active: work
reconnect:
  enabled: true
metrics:
  listen: "127.0.0.1:9090"
dns:
  bootstrap: "1.1.1.1:53"
profiles:
  - id: work
    name: Work VPN
    endpoint:
      hostname: vpn.example.com
      port: 443
      server_name: cdn.example.org
      alpn: ["h2", "http/1.1"]
    transport:
      type: ws
      path: /tunnel
      headers:
        Host: cdn.example.org
    flow: xtls-rprx-vision
  - id: backup
    endpoint:
      hostname: 203.0.113.9
      port: 8443
    transport:
      type: tcp
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Active != "work" {
		t.Errorf("active = %q", cfg.Active)
	}
	if !cfg.Reconnect.Enabled {
		t.Error("reconnect not enabled")
	}
	if cfg.DNS.Bootstrap != "1.1.1.1:53" {
		t.Errorf("bootstrap = %q", cfg.DNS.Bootstrap)
	}

	p, ok := cfg.Profile("work")
	if !ok {
		t.Fatal("work profile missing")
	}
	if p.Endpoint.Port != 443 || p.Transport.Path != "/tunnel" {
		t.Errorf("profile = %+v", p)
	}
	if p.Transport.Headers["Host"] != "cdn.example.org" {
		t.Errorf("headers = %v", p.Transport.Headers)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() Profile {
		return Profile{
			ID:       "p",
			Endpoint: ServerEndpoint{Hostname: "h.example.com", Port: 443},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantSub string
	}{
		{"missing id", func(p *Profile) { p.ID = "" }, "id"},
		{"missing hostname", func(p *Profile) { p.Endpoint.Hostname = "" }, "hostname"},
		{"zero port", func(p *Profile) { p.Endpoint.Port = 0 }, "port"},
		{"grpc without service", func(p *Profile) { p.Transport.Type = "grpc" }, "serviceName"},
		{"unknown transport", func(p *Profile) { p.Transport.Type = "kcp" }, "transport"},
		{"unknown flow", func(p *Profile) { p.Flow = "xtls-rprx-direct" }, "flow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("validate accepted")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateConfigLevel(t *testing.T) {
	p := Profile{ID: "a", Endpoint: ServerEndpoint{Hostname: "h", Port: 1}}

	dup := &Config{Profiles: []Profile{p, p}}
	if err := dup.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("duplicate ids: err = %v", err)
	}

	orphan := &Config{Profiles: []Profile{p}, Active: "missing"}
	if err := orphan.Validate(); err == nil {
		t.Error("undefined active profile accepted")
	}
}

func TestBuildTransport(t *testing.T) {
	p := Profile{
		ID: "p",
		Endpoint: ServerEndpoint{
			Hostname:   "vpn.example.com",
			Port:       443,
			ServerName: "cdn.example.org",
			ALPN:       []string{"h2"},
		},
		Transport: TransportConfig{
			Type:        "ws",
			Path:        "/tunnel",
			Fingerprint: "firefox",
			DialTimeout: 7 * time.Second,
		},
	}

	cfg := p.BuildTransport()
	if cfg.Kind != transport.KindWebSocket {
		t.Errorf("kind = %q", cfg.Kind)
	}
	if cfg.WebSocket.Path != "/tunnel" {
		t.Errorf("path = %q", cfg.WebSocket.Path)
	}
	if cfg.TLS.ServerName != "cdn.example.org" {
		t.Errorf("sni = %q", cfg.TLS.ServerName)
	}
	if cfg.TLS.Fingerprint != "firefox" {
		t.Errorf("fingerprint = %q", cfg.TLS.Fingerprint)
	}
	if cfg.DialTimeout != 7*time.Second {
		t.Errorf("dial timeout = %v", cfg.DialTimeout)
	}
}

func TestBuildTransportSNIDefaultsToHostname(t *testing.T) {
	p := Profile{
		ID:        "p",
		Endpoint:  ServerEndpoint{Hostname: "direct.example.com", Port: 443},
		Transport: TransportConfig{Type: "tls"},
	}
	if cfg := p.BuildTransport(); cfg.TLS.ServerName != "direct.example.com" {
		t.Errorf("sni = %q, want hostname fallback", cfg.TLS.ServerName)
	}
}

func TestReloadableKeepsPreviousOnBadEdit(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("new reloadable: %v", err)
	}
	defer r.Close()

	if err := os.WriteFile(path, []byte("profiles: ["), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("invalid config accepted on reload")
	}
	if r.Get().Active != "work" {
		t.Error("previous config not retained")
	}
}

func TestReloadableSwapsValidEdit(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("new reloadable: %v", err)
	}
	defer r.Close()

	next := strings.Replace(sampleYAML, "active: work", "active: backup", 1)
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if r.Get().Active != "backup" {
		t.Errorf("active = %q after reload", r.Get().Active)
	}
}

func TestReloadableNotifiesAllWatchers(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("new reloadable: %v", err)
	}
	defer r.Close()

	fired := make(chan string, 4)
	for _, name := range []string{"a", "b"} {
		name := name
		r.Watch(func(old, next *Config) {
			if old.Active == "work" && next.Active == "backup" {
				fired <- name
			}
		})
	}

	next := strings.Replace(sampleYAML, "active: work", "active: backup", 1)
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-fired:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 watchers notified", len(seen))
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("watchers notified: %v", seen)
	}
}
