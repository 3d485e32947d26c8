package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orgCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of tree snapshot cache lookups broken down by backend and hit/miss.",
	}, []string{"cache", "result"})

	orgCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "invalidate_total",
		Help:      "Total number of tree snapshot invalidations broken down by reason.",
	}, []string{"reason"})

	orgCacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Total number of failed cache operations broken down by operation.",
	}, []string{"op"})

	orgWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of org write conflicts broken down by kind.",
	}, []string{"kind"})

	orgPropagatedRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "propagation",
		Name:      "rows_total",
		Help:      "Total number of employee structure paths rewritten.",
	})

	orgPropagationBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "propagation",
		Name:      "batches_total",
		Help:      "Total number of propagation batches executed.",
	})

	orgOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "org",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Latency of org service operations broken down by operation and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "result"})
)

func recordCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	orgCacheRequests.WithLabelValues(cache, result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	orgCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordCacheError(op string) {
	orgCacheErrors.WithLabelValues(op).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	orgWriteConflicts.WithLabelValues(kind).Inc()
}

func recordPropagationBatch(rows int64) {
	orgPropagationBatches.Inc()
	orgPropagatedRows.Add(float64(rows))
}

func recordOperation(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	orgOperationDuration.WithLabelValues(op, result).Observe(time.Since(started).Seconds())
}
