// Package metrics holds the aggregator's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts events committed to the store per kind
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakescope_events_applied_total",
			Help: "Total number of events applied to the store",
		},
		[]string{"kind"},
	)

	// EventsRejected counts records written to the reject sink per reason
	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakescope_events_rejected_total",
			Help: "Total number of rejected event records",
		},
		[]string{"reason"},
	)

	// EventsSkipped counts records ignored without rejection per reason
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakescope_events_skipped_total",
			Help: "Total number of skipped event records",
		},
		[]string{"reason"},
	)

	ApplyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stakescope_apply_retries_total",
			Help: "Total number of apply retries after a store failure",
		},
	)

	ApplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakescope_apply_duration_seconds",
			Help:    "Apply latency in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// LastAppliedBlock is the block number of the last applied event
	LastAppliedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakescope_last_applied_block",
			Help: "Block number of the last applied event",
		},
	)
)
