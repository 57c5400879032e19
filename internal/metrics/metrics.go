package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submitter
	SubmitAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "submitter",
		Name:      "attempts_total",
		Help:      "Transaction submission attempts by outcome",
	}, []string{"description", "outcome"})

	SubmitExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "submitter",
		Name:      "exhausted_total",
		Help:      "Wallet operations that exhausted every retry",
	}, []string{"description"})

	// Confirmation poller
	PollPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "poller",
		Name:      "passes_total",
		Help:      "Confirmation polling passes",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "poller",
		Name:      "pass_errors_total",
		Help:      "Polling passes aborted by a transient query error",
	})

	TxConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "poller",
		Name:      "confirmed_total",
		Help:      "Transactions that reached the required confirmation depth",
	})

	ConfirmationWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taikobot",
		Subsystem: "poller",
		Name:      "await_duration_seconds",
		Help:      "Time spent waiting for a whole batch to confirm",
		Buckets:   []float64{5, 10, 30, 60, 120, 300, 600, 1800},
	})

	ConfirmationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "poller",
		Name:      "timeouts_total",
		Help:      "Batches whose confirmation wait hit the configured bound",
	})

	// Batch executor
	FeesWei = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "batch",
		Name:      "fees_wei_total",
		Help:      "Realized gas fees in wei (lossy float accumulation)",
	}, []string{"description"})

	// Runner
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "runner",
		Name:      "runs_total",
		Help:      "Scheduled runs by mode and status",
	}, []string{"mode", "status"})

	IterationsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taikobot",
		Subsystem: "runner",
		Name:      "iterations_completed_total",
		Help:      "Completed iterations by mode",
	}, []string{"mode"})
)

// Off-chain HTTP services
var OffchainRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taikobot",
	Subsystem: "offchain",
	Name:      "requests_total",
	Help:      "Score and price API requests by service and status",
}, []string{"service", "status"})
