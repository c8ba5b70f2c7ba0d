package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowOutcomeTotal tracks completed rewarded-flow runs by placement and outcome.
	FlowOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewardflow_flow_outcome_total",
		Help: "Total rewarded flow runs by placement and outcome",
	}, []string{"placement", "outcome"})

	// FlowPollDuration tracks how long the status-poll fallback ran before it
	// observed a terminal status or gave up.
	FlowPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rewardflow_flow_poll_duration_seconds",
		Help:    "Duration of the intent status poll fallback",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
	}, []string{"placement"})

	// LedgerRequestTotal tracks ledger API calls by operation and HTTP status class.
	LedgerRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewardflow_ledger_request_total",
		Help: "Total reward ledger API requests by operation and status code",
	}, []string{"operation", "code"})

	// LedgerRequestDuration tracks ledger API call latency.
	LedgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rewardflow_ledger_request_duration_seconds",
		Help:    "Reward ledger API request latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	// ReconcileCycleTotal tracks reconciliation cycles by result.
	ReconcileCycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewardflow_reconcile_cycle_total",
		Help: "Total reconciliation cycles by result",
	}, []string{"result"})

	// ReconcileResolvedTotal tracks intents resolved by the reconciler.
	ReconcileResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewardflow_reconcile_resolved_total",
		Help: "Total intents resolved by the reconciler, by placement and status",
	}, []string{"placement", "status"})

	// ActiveIntents reports the number of intents the store currently tracks.
	ActiveIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rewardflow_active_intents",
		Help: "Number of reward intents currently tracked as active",
	})

	// ToastTotal tracks enqueued toasts by tone.
	ToastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewardflow_toast_total",
		Help: "Total toasts enqueued by tone",
	}, []string{"tone"})
)

// ObserveLedgerRequest records one ledger API call.
func ObserveLedgerRequest(operation string, statusCode int, d time.Duration) {
	code := "transport_error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	LedgerRequestTotal.WithLabelValues(operation, code).Inc()
	LedgerRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveFlowOutcome records one completed rewarded flow run.
func ObserveFlowOutcome(placement, outcome string) {
	FlowOutcomeTotal.WithLabelValues(placement, outcome).Inc()
}
