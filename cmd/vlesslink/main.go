package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vlesslink/internal/config"
	"vlesslink/internal/dnsutil"
	"vlesslink/internal/manager"
	"vlesslink/internal/metrics"
	"vlesslink/internal/netmon"
	"vlesslink/internal/relay"
	"vlesslink/internal/supervisor"
	"vlesslink/internal/transport"
	"vlesslink/internal/tunsrc"
	"vlesslink/internal/vault"
	"vlesslink/internal/vlessuri"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	importURI := flag.String("import-uri", "", "Print a profile stanza for a vless:// URI and exit")
	profileID := flag.String("profile", "", "Profile to connect (overrides config 'active')")
	flag.Parse()

	if *importURI != "" {
		if err := printImported(*importURI); err != nil {
			log.Fatalf("import failed: %v", err)
		}
		return
	}

	reloader, err := config.NewReloadable(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	defer reloader.Close()
	cfg := reloader.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	metrics.Start(cfg.Metrics.Listen, cfg.Metrics.AuthToken)

	restartCh := make(chan *config.Config, 1)
	reloader.Watch(func(old, next *config.Config) {
		select {
		case restartCh <- next:
		default:
		}
	})

	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go runClient(runCtx, cfg, *profileID, errCh)

	for {
		select {
		case <-ctx.Done():
			runCancel()
			<-errCh
			return
		case next := <-restartCh:
			log.Printf("config reloaded: restarting client with updated settings")
			runCancel()
			<-errCh
			runCtx, runCancel = context.WithCancel(ctx)
			errCh = make(chan error, 1)
			go runClient(runCtx, next, *profileID, errCh)
		case err := <-errCh:
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Printf("client failed: %v", err)
			}
			runCtx, runCancel = context.WithCancel(ctx)
			errCh = make(chan error, 1)
			go runClient(runCtx, reloader.Get(), *profileID, errCh)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}

func runClient(ctx context.Context, cfg *config.Config, profileOverride string, errCh chan<- error) {
	active := cfg.Active
	if profileOverride != "" {
		active = profileOverride
	}
	if active == "" {
		errCh <- fmt.Errorf("no profile selected: set 'active' in config or pass -profile")
		return
	}
	if _, ok := cfg.Profile(active); !ok {
		errCh <- fmt.Errorf("profile %q not defined", active)
		return
	}

	var dial transport.DialFunc
	if cfg.DNS.Bootstrap != "" {
		dial = dnsutil.NewResolver([]string{cfg.DNS.Bootstrap}).DialFunc()
	}

	mon := netmon.NewPollingMonitor(0)
	defer mon.Close()

	var sup *supervisor.Supervisor
	mgr := manager.New(cfg, vault.EnvVault{}, manager.DefaultSessionFactory(dial, nil),
		manager.WithManualDisconnectHook(func() {
			if sup != nil {
				sup.SuppressRetries()
			}
		}))

	supStates, supUnsub := mgr.Subscribe()
	defer supUnsub()
	sup = supervisor.New(func(id string) {
		if err := mgr.Connect(id); err != nil {
			log.Printf("reconnect attempt rejected: %v", err)
		}
	}, supStates, mon.Events())
	if cfg.Reconnect.Enabled {
		sup.Enable(active)
	}
	go sup.Run(ctx)

	states, unsub := mgr.Subscribe()
	defer unsub()

	if err := mgr.Connect(active); err != nil && !cfg.Reconnect.Enabled {
		errCh <- err
		return
	}

	var tunIface io.ReadWriteCloser
	if cfg.TUN.Enabled {
		iface, err := tunsrc.Open(cfg.TUN.Name, cfg.TUN.MTU)
		if err != nil {
			mgr.Disconnect()
			errCh <- err
			return
		}
		tunIface = iface
		defer iface.Close()
	}

	relaying := false
	relayDone := make(chan error, 1)
	for {
		select {
		case <-ctx.Done():
			mgr.Disconnect()
			errCh <- nil
			return
		case err := <-relayDone:
			relaying = false
			if err != nil {
				mgr.Fail(err)
			}
		case st := <-states:
			if _, ok := st.(manager.Connected); !ok {
				continue
			}
			if tunIface == nil || relaying {
				continue
			}
			sess := mgr.Session()
			if sess == nil {
				continue
			}
			relaying = true
			go func() {
				relayDone <- relay.Pipe(tunIface, sess)
			}()
		}
	}
}

func printImported(uri string) error {
	imp, err := vlessuri.Parse(uri)
	if err != nil {
		return err
	}
	p := imp.Profile

	var b strings.Builder
	fmt.Fprintf(&b, "profiles:\n")
	fmt.Fprintf(&b, "  - id: %s\n", p.ID)
	if p.Name != "" {
		fmt.Fprintf(&b, "    name: %s\n", p.Name)
	}
	fmt.Fprintf(&b, "    endpoint:\n")
	fmt.Fprintf(&b, "      hostname: %s\n", p.Endpoint.Hostname)
	fmt.Fprintf(&b, "      port: %d\n", p.Endpoint.Port)
	if p.Endpoint.ServerName != "" {
		fmt.Fprintf(&b, "      server_name: %s\n", p.Endpoint.ServerName)
	}
	fmt.Fprintf(&b, "    transport:\n")
	fmt.Fprintf(&b, "      type: %s\n", p.Transport.Type)
	if p.Transport.Path != "" {
		fmt.Fprintf(&b, "      path: %s\n", p.Transport.Path)
	}
	if p.Transport.ServiceName != "" {
		fmt.Fprintf(&b, "      service_name: %s\n", p.Transport.ServiceName)
	}
	if p.Flow != "" {
		fmt.Fprintf(&b, "    flow: %s\n", p.Flow)
	}
	fmt.Print(b.String())

	// The credential itself is never echoed. Point at the vault instead.
	fmt.Fprintf(os.Stderr, "\ncredential withheld from output; export it as %s\n",
		vault.EnvKey(p.ID))
	return nil
}
