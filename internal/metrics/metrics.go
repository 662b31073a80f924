package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flexchat"

var (
	// LongPollWaiters counts callers blocked in a long poll, by kind
	// ("channel" or "comment").
	LongPollWaiters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "long_poll_waiters",
		Help:      "Number of long-poll callers waiting for a new record.",
	}, []string{"kind"})

	DocumentWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_writes_total",
		Help:      "Whole-document writes by record kind and outcome.",
	}, []string{"kind", "outcome"})

	DocumentWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "document_write_duration_seconds",
		Help:      "Time spent in the read-modify-write cycle of a document write.",
		Buckets:   prometheus.DefBuckets,
	})

	Migrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "migrations_applied_total",
		Help:      "Schema migration steps applied, by step name.",
	}, []string{"step"})
)
