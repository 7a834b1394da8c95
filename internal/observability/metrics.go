package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_cache_lookups_total",
			Help: "Total number of result cache lookups by namespace and outcome.",
		},
		[]string{"namespace", "outcome"},
	)
	cacheExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlchat_cache_expired_total",
			Help: "Total number of cache entries purged because their TTL elapsed.",
		},
	)
	policyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_policy_decisions_total",
			Help: "Total number of statement validations by decision.",
		},
		[]string{"decision"},
	)
	completionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_completion_requests_total",
			Help: "Total number of completion requests by purpose and status.",
		},
		[]string{"purpose", "status"},
	)
	completionLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_completion_latency_seconds",
			Help:    "Completion round-trip latency by purpose.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"purpose"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_executions_total",
			Help: "Total number of statement executions by status.",
		},
		[]string{"status"},
	)
	executionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_execution_latency_seconds",
			Help:    "Store round-trip latency for executed statements.",
			Buckets: prometheus.DefBuckets,
		},
	)
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		cacheLookupsTotal,
		cacheExpiredTotal,
		policyDecisionsTotal,
		completionRequestsTotal,
		completionLatencySeconds,
		executionsTotal,
		executionLatencySeconds,
		turnsTotal,
	)
}

func ObserveCacheLookup(namespace string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookupsTotal.WithLabelValues(namespace, outcome).Inc()
}

func ObserveCacheExpired(count int) {
	if count > 0 {
		cacheExpiredTotal.Add(float64(count))
	}
}

func ObservePolicyDecision(decision string) {
	policyDecisionsTotal.WithLabelValues(decision).Inc()
}

func ObserveCompletion(purpose string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	completionRequestsTotal.WithLabelValues(purpose, status).Inc()
	completionLatencySeconds.WithLabelValues(purpose).Observe(elapsed.Seconds())
}

func ObserveExecution(success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	executionsTotal.WithLabelValues(status).Inc()
	executionLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}
