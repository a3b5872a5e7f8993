// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Reconciliation metrics
	ReconcileRuns     *prometheus.CounterVec // status: ok | degraded
	ReconcileDuration prometheus.Histogram
	EventsScanned     prometheus.Counter
	DecodeFailures    prometheus.Counter
	LookupFailures    prometheus.Counter

	// Identity metrics
	IdentitiesGenerated prometheus.Counter
	IdentitiesClaimed   prometheus.Counter

	// Ledger metrics
	TransactionsAppended prometheus.Counter
	TransactionsEvicted  prometheus.Counter

	// Refresh metrics
	RefreshRuns     *prometheus.CounterVec // trigger: interval | head | manual
	SnapshotAge     prometheus.Gauge
	ChainHeadHeight prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "grimledger"
	}

	return &Metrics{
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by outcome",
		}, []string{"status"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Duration of reconciliation runs",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_scanned_total",
			Help:      "Total number of liquidity events decoded from the feed",
		}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "decode_failures_total",
			Help:      "Total number of malformed logs skipped",
		}),
		LookupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "lookup_failures_total",
			Help:      "Total number of failed attribution transaction lookups",
		}),
		IdentitiesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stealth",
			Name:      "identities_generated_total",
			Help:      "Total number of stealth identities generated",
		}),
		IdentitiesClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stealth",
			Name:      "identities_claimed_total",
			Help:      "Total number of stealth identities claimed",
		}),
		TransactionsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txledger",
			Name:      "appended_total",
			Help:      "Total number of transaction records appended",
		}),
		TransactionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txledger",
			Name:      "evicted_total",
			Help:      "Total number of transaction records evicted by the cap",
		}),
		RefreshRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "refresh_total",
			Help:      "Total number of refresh cycles by trigger",
		}, []string{"trigger"}),
		SnapshotAge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "snapshot_age_seconds",
			Help:      "Age of the last cached snapshot",
		}),
		ChainHeadHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "head_height",
			Help:      "Last observed chain head height",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_latency_seconds",
			Help:      "Latency of remote ledger RPC calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
