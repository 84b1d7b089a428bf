package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var promRegistry = prometheus.NewRegistry()

var (
	promConnects = promauto.With(promRegistry).NewCounter(prometheus.CounterOpts{
		Name: "vlesslink_connects_total",
		Help: "Successful connection establishments.",
	})
	promConnectFailures = promauto.With(promRegistry).NewCounter(prometheus.CounterOpts{
		Name: "vlesslink_connect_failures_total",
		Help: "Connection attempts that ended in an error state.",
	})
	promSessionFailures = promauto.With(promRegistry).NewCounter(prometheus.CounterOpts{
		Name: "vlesslink_session_failures_total",
		Help: "Live sessions torn down by a data-path failure.",
	})
	promReconnects = promauto.With(promRegistry).NewCounter(prometheus.CounterOpts{
		Name: "vlesslink_reconnect_attempts_total",
		Help: "Automatic reconnection attempts scheduled.",
	})
	promHandshakeRTT = promauto.With(promRegistry).NewHistogram(prometheus.HistogramOpts{
		Name:    "vlesslink_handshake_rtt_seconds",
		Help:    "Round-trip time of the protocol handshake.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	promTrafficIn = promauto.With(promRegistry).NewGauge(prometheus.GaugeOpts{
		Name: "vlesslink_traffic_bytes_inbound",
		Help: "Cumulative bytes received over the current session.",
	})
	promTrafficOut = promauto.With(promRegistry).NewGauge(prometheus.GaugeOpts{
		Name: "vlesslink_traffic_bytes_outbound",
		Help: "Cumulative bytes sent over the current session.",
	})
	promState = promauto.With(promRegistry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "vlesslink_state",
		Help: "Current lifecycle state (1 for the active state, 0 otherwise).",
	}, []string{"state"})
)

var stateNames = []string{"disconnected", "connecting", "connected", "disconnecting", "error"}

var promStateMu sync.Mutex

func promSetState(name string) {
	promStateMu.Lock()
	defer promStateMu.Unlock()
	for _, n := range stateNames {
		v := 0.0
		if n == name {
			v = 1.0
		}
		promState.WithLabelValues(n).Set(v)
	}
}

func promHandler() http.Handler {
	return promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
}
