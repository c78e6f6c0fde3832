package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pocketdev",
		Name:      "http_requests_total",
		Help:      "HTTP requests handled, by method and status.",
	}, []string{"method", "status"})

	metricRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pocketdev",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	})

	metricAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pocketdev",
		Name:      "agents_total",
		Help:      "Agent session records in the registry.",
	})

	metricRealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pocketdev",
		Name:      "realtime_clients_total",
		Help:      "Connected realtime websocket clients.",
	})

	metricAgentRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketdev",
		Name:      "agent_runs_total",
		Help:      "Reasoning loop runs started.",
	})
)

// observeRequest feeds the request metrics. Paths are not a label: ids in
// the URL would blow up cardinality.
func observeRequest(method string, status int, elapsed time.Duration) {
	metricRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	metricRequestDuration.Observe(elapsed.Seconds())
}
