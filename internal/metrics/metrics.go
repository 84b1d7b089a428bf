// Package metrics exposes client telemetry: lock-free counters on the hot
// path, an authenticated HTTP endpoint for scraping. The endpoint refuses
// to start unauthenticated on a non-loopback address.
package metrics

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	State              string `json:"state"`
	ConnectsTotal      int64  `json:"connects_total"`
	ConnectFailures    int64  `json:"connect_failures_total"`
	SessionFailures    int64  `json:"session_failures_total"`
	ReconnectsTotal    int64  `json:"reconnects_total"`
	HandshakeRTTMs     int64  `json:"handshake_rtt_ms"`
	TrafficBytesIn     int64  `json:"traffic_bytes_inbound"`
	TrafficBytesOut    int64  `json:"traffic_bytes_outbound"`
	UpdatedUnix        int64  `json:"updated_unix"`
}

var (
	connectsTotal   atomic.Int64
	connectFailures atomic.Int64
	sessionFailures atomic.Int64
	reconnectsTotal atomic.Int64
	handshakeRTTMs  atomic.Int64
	trafficIn       atomic.Int64
	trafficOut      atomic.Int64
	state           atomic.Value // string
)

func init() { state.Store("disconnected") }

// SetState records the current lifecycle state name. Values are state
// names, never error reasons: reasons may carry endpoint details.
func SetState(name string) {
	state.Store(name)
	promSetState(name)
}

func IncConnects() {
	connectsTotal.Add(1)
	promConnects.Inc()
}

func IncConnectFailures() {
	connectFailures.Add(1)
	promConnectFailures.Inc()
}

func IncSessionFailures() {
	sessionFailures.Add(1)
	promSessionFailures.Inc()
}

func IncReconnects() {
	reconnectsTotal.Add(1)
	promReconnects.Inc()
}

func SetHandshakeRTT(d time.Duration) {
	handshakeRTTMs.Store(d.Milliseconds())
	promHandshakeRTT.Observe(d.Seconds())
}

// SetTraffic records the session's cumulative byte counters. The counters
// are absolute, not deltas; the session owns the accumulation.
func SetTraffic(in, out uint64) {
	trafficIn.Store(int64(in))
	trafficOut.Store(int64(out))
	promTrafficIn.Set(float64(in))
	promTrafficOut.Set(float64(out))
}

func SnapshotData() Snapshot {
	return Snapshot{
		State:           state.Load().(string),
		ConnectsTotal:   connectsTotal.Load(),
		ConnectFailures: connectFailures.Load(),
		SessionFailures: sessionFailures.Load(),
		ReconnectsTotal: reconnectsTotal.Load(),
		HandshakeRTTMs:  handshakeRTTMs.Load(),
		TrafficBytesIn:  trafficIn.Load(),
		TrafficBytesOut: trafficOut.Load(),
		UpdatedUnix:     time.Now().Unix(),
	}
}

// Start serves the metrics endpoints on addr in a background goroutine.
// A non-loopback addr without an auth token is refused outright.
func Start(addr, authToken string) {
	if addr == "" {
		return
	}
	if !isLoopback(addr) && authToken == "" {
		log.Printf("metrics not started: refusing to expose unauthenticated endpoint on %s", addr)
		return
	}
	mux := http.NewServeMux()
	auth := func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if authToken != "" && r.Header.Get("Authorization") != "Bearer "+authToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}
	}

	mux.HandleFunc("/metrics", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(SnapshotData())
	})))
	mux.HandleFunc("/metrics/prom", auth(promHandler()))
	mux.HandleFunc("/healthz", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})))

	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
