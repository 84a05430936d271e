package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	phaseSwitchesTotal     *prometheus.CounterVec
	allocationsTotal       *prometheus.CounterVec
	aggregationWrites      *prometheus.CounterVec
	scheduledRunsTotal     *prometheus.CounterVec
	evaluationChangesTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the workshop service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_requests_total",
			Help: "Total number of workshop API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workshop_latency_seconds",
			Help:    "Latency distribution for workshop API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_errors_total",
			Help: "Total number of error responses returned by workshop endpoints.",
		}, []string{"method", "route", "status"})

		phaseSwitchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_phase_switches_total",
			Help: "Phase transitions applied, by source and target phase.",
		}, []string{"from", "to"})

		allocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_allocations_total",
			Help: "Allocator executions by allocator and result status.",
		}, []string{"allocator", "status"})

		aggregationWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_aggregation_writes_total",
			Help: "Persisted aggregation results, by kind (submission or grading).",
		}, []string{"kind"})

		scheduledRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_scheduled_runs_total",
			Help: "Scheduled allocation runs by outcome.",
		}, []string{"status"})

		evaluationChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workshop_evaluation_changes_total",
			Help: "Assessment grading grades or weights rewritten by evaluators.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			phaseSwitchesTotal,
			allocationsTotal,
			aggregationWrites,
			scheduledRunsTotal,
			evaluationChangesTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// PhaseSwitches counts applied phase transitions.
func PhaseSwitches() *prometheus.CounterVec {
	RegisterMetrics()
	return phaseSwitchesTotal
}

// Allocations counts allocator executions.
func Allocations() *prometheus.CounterVec {
	RegisterMetrics()
	return allocationsTotal
}

// AggregationWrites counts persisted aggregation results.
func AggregationWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return aggregationWrites
}

// ScheduledRuns counts scheduled allocation runs.
func ScheduledRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return scheduledRunsTotal
}

// EvaluationChanges counts values rewritten by evaluators.
func EvaluationChanges() prometheus.Counter {
	RegisterMetrics()
	return evaluationChangesTotal
}
