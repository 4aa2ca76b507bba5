// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Relay direction labels.
const (
	DirectionClientToUpstream = "client_to_upstream"
	DirectionUpstreamToClient = "upstream_to_client"
)

// Relay decision labels.
const (
	DecisionForward  = "forward"
	DecisionFallback = "fallback"
	DecisionError    = "error"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for both proxy planes.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RelayConnections *prometheus.CounterVec
	RelayActive      prometheus.Gauge
	RelayBytes       *prometheus.CounterVec
	RelayDialErrors  prometheus.Counter

	RouteReloads *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaymux_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaymux_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaymux_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaymux_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaymux_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		RelayConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaymux_relay_connections_total",
			Help: "Total raw relay connections by routing decision.",
		}, []string{"decision"}),

		RelayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaymux_relay_active_connections",
			Help: "Raw relay connections currently open.",
		}),

		RelayBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaymux_relay_bytes_total",
			Help: "Bytes forwarded by the raw relay, per direction.",
		}, []string{"direction"}),

		RelayDialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaymux_relay_dial_errors_total",
			Help: "Failed upstream dials in raw relay mode.",
		}),

		RouteReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaymux_route_reloads_total",
			Help: "Route table reloads by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RelayConnections,
		m.RelayActive,
		m.RelayBytes,
		m.RelayDialErrors,
		m.RouteReloads,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the admin path label values. Anything else on the HTTP
// plane is proxied traffic with unbounded paths, so it is folded into "proxy".
var knownPrefixes = []string{"/healthz", "/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "proxy"
}
