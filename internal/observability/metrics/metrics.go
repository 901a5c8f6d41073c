// Package metrics provides Prometheus instrumentation for chainscout.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled      bool
	serviceName  string
	registerOnce sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Explorer call metrics
	explorerRequestsTotal *prometheus.CounterVec
	explorerDuration      *prometheus.HistogramVec
	explorerRetriesTotal  *prometheus.CounterVec

	// Health and circuit metrics
	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec
	healthScore        *prometheus.GaugeVec

	// Detection and orchestration metrics
	detectionTotal       *prometheus.CounterVec
	detectionDuration    prometheus.Histogram
	multiChainTotal      *prometheus.CounterVec
	multiChainNetworkRes *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per process.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registerOnce.Do(register)
}

func register() {
	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	explorerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_requests_total",
			Help: "Total number of explorer calls by outcome",
		},
		[]string{"network", "explorer", "outcome"},
	)

	explorerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_request_duration_seconds",
			Help:    "Explorer call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"network", "explorer"},
	)

	explorerRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_retries_total",
			Help: "Total number of retried explorer attempts",
		},
		[]string{"network"},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_circuit_state",
			Help: "Circuit state per explorer (0 closed, 1 half-open, 2 open)",
		},
		[]string{"network", "explorer"},
	)

	circuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_circuit_transitions_total",
			Help: "Total number of circuit state transitions",
		},
		[]string{"network", "explorer", "from", "to"},
	)

	healthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_health_score",
			Help: "Current health score per explorer (0-1)",
		},
		[]string{"network", "explorer"},
	)

	detectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_detection_total",
			Help: "Total number of chain detections",
		},
		[]string{"result"},
	)

	detectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chain_detection_duration_seconds",
			Help:    "Chain detection latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
	)

	multiChainTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichain_operations_total",
			Help: "Total number of multi-chain operations",
		},
		[]string{"operation", "status"},
	)

	multiChainNetworkRes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multichain_network_results_total",
			Help: "Per-network results of multi-chain operations",
		},
		[]string{"network", "status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
