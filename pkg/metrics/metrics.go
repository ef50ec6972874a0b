package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapsync_operations_total",
			Help: "Total proposal-response operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swapsync_retries_total",
			Help: "Total internal retry attempts across all operations",
		},
	)

	OperationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapsync_operations_active",
			Help: "Operations currently loading",
		},
	)

	OptimisticEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapsync_optimistic_entries",
			Help: "Optimistic projection entries by assumed status",
		},
		[]string{"status"},
	)

	OperationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swapsync_operation_duration_seconds",
			Help:    "End-to-end duration of respond calls including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Real-time feed metrics
	WSEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapsync_ws_events_total",
			Help: "WebSocket events received by type",
		},
		[]string{"type"},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swapsync_reconnects_total",
			Help: "WebSocket reconnect attempts",
		},
	)

	// Sweep metrics
	SweepCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swapsync_sweep_cycles_total",
			Help: "Timeout and cleanup sweep cycles executed",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swapsync_sweep_duration_seconds",
			Help:    "Duration of sweep cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Error metrics
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapsync_errors_total",
			Help: "Classified errors recorded by class",
		},
		[]string{"class"},
	)
)

// init registers all metrics with the default registry
func init() {
	prometheus.MustRegister(
		OperationsTotal,
		RetriesTotal,
		OperationsActive,
		OptimisticEntries,
		OperationDuration,
		WSEventsTotal,
		ReconnectsTotal,
		SweepCyclesTotal,
		SweepDuration,
		ErrorsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
