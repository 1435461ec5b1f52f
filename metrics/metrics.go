// Package metrics holds the Prometheus collectors of the relayer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "burnmint"

// Scanner
var (
	ScannedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scanned_block",
			Help:      "Last source block committed by the scanner",
		},
	)

	BurnsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "burns_recorded_total",
			Help:      "Burns newly recorded in the ledger",
		},
		[]string{"kind"}, // native, token
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_range_duration_seconds",
			Help:      "Time spent scanning one block range",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)
)

// Dispatcher
var (
	MintTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mint_transitions_total",
			Help:      "Mint record status changes",
		},
		[]string{"status"}, // queued, pending, completed, failed
	)

	MintRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mint_retries_total",
			Help:      "Mint retries by cause",
		},
		[]string{"reason"}, // reverted, timeout, broadcast
	)

	MintPostponed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mint_postponed_total",
			Help:      "Drain passes that left a mint queued without counting a retry",
		},
		[]string{"reason"}, // insufficient_reserve
	)

	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Mint items waiting in the dispatcher queue",
		},
	)

	InFlightMints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_mints",
			Help:      "Mint transactions broadcast and awaiting a receipt",
		},
	)

	ReserveBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reserve_balance",
			Help:      "Reserve account balance on the destination chain in whole coins",
		},
	)

	DrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Time spent in one drain cycle",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
)

// RPC
var (
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC calls by chain, method and result",
		},
		[]string{"chain", "method", "result"}, // result: ok, not_found, cancelled, error
	)

	RPCFailovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_failovers_total",
			Help:      "Calls moved to the next endpoint after an error",
		},
		[]string{"chain"},
	)
)
