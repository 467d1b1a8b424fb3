package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts total requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDuration measures request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	// JobsTotal counts settled jobs by queue and final state.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobqueue_jobs_total",
			Help: "Total number of settled jobs",
		},
		[]string{"queue", "state"},
	)

	// CollectionEvaluations counts per-collection re-evaluations.
	CollectionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_evaluations_total",
			Help: "Total number of collection membership evaluations",
		},
		[]string{"result"},
	)

	// CollectionEvaluationDuration measures one collection's diff + apply.
	CollectionEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collection_evaluation_duration_seconds",
			Help:    "Duration of computing and applying one collection's membership delta",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MembershipChanges counts variants added to or removed from collections.
	MembershipChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_membership_changes_total",
			Help: "Total number of variants added to or removed from collections",
		},
		[]string{"op"},
	)

	// DebounceTriggers counts coalesced re-evaluation triggers.
	DebounceTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_debounce_triggers_total",
			Help: "Upstream change notifications received and coalesced triggers fired",
		},
		[]string{"stage"},
	)
)

// ObserveEvaluation records one collection evaluation.
func ObserveEvaluation(start time.Time, added, removed int, err error) {
	CollectionEvaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		CollectionEvaluations.WithLabelValues("error").Inc()
		return
	}
	CollectionEvaluations.WithLabelValues("ok").Inc()
	MembershipChanges.WithLabelValues("add").Add(float64(added))
	MembershipChanges.WithLabelValues("remove").Add(float64(removed))
}
