package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK        = "ok"
	outcomePartial   = "partial"
	outcomeFailed    = "failed"
	outcomeBusy      = "busy"
	outcomeCancelled = "cancelled"
)

var (
	syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calendar_sync",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of sync runs, labeled by outcome.",
	}, []string{"outcome"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "calendar_sync",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Time spent fetching and reconciling one connection.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	syncEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calendar_sync",
		Subsystem: "sync",
		Name:      "events_total",
		Help:      "Staged events touched by sync, labeled by change kind.",
	}, []string{"kind"})

	syncErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "calendar_sync",
		Subsystem: "sync",
		Name:      "errors_total",
		Help:      "Errors recorded in sync results.",
	})

	matchConfidence = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calendar_sync",
		Subsystem: "match",
		Name:      "suggestions_total",
		Help:      "Match suggestions computed during sync, labeled by confidence tier.",
	}, []string{"confidence"})
)

func init() {
	prometheus.MustRegister(syncRuns, syncDuration, syncEvents, syncErrors, matchConfidence)
}

func recordRun(outcome string, result Result, elapsed time.Duration) {
	syncRuns.WithLabelValues(outcome).Inc()
	syncDuration.Observe(elapsed.Seconds())
	syncEvents.WithLabelValues("new").Add(float64(result.NewEvents))
	syncEvents.WithLabelValues("updated").Add(float64(result.UpdatedEvents))
	syncEvents.WithLabelValues("cancelled").Add(float64(result.CancelledEvents))
	syncErrors.Add(float64(len(result.Errors)))
}
