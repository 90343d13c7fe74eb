// Package observability holds process-wide watermark gauges.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityConfirmedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "calendar_sync",
		Subsystem: "persistence",
		Name:      "last_activity_confirmed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity created from a calendar event.",
	})
	outboxPublishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "calendar_sync",
		Subsystem: "outbox",
		Name:      "last_published_timestamp_seconds",
		Help:      "Unix timestamp of the most recent outbox batch marked published.",
	})
)

func init() {
	prometheus.MustRegister(activityConfirmedGauge, outboxPublishedGauge)
}

// RecordActivityConfirmed updates the confirmation watermark gauge.
func RecordActivityConfirmed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityConfirmedGauge.Set(float64(ts.Unix()))
}

// RecordOutboxPublished updates the publish watermark gauge.
func RecordOutboxPublished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	outboxPublishedGauge.Set(float64(ts.Unix()))
}
