package confirmation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

const (
	modeSingle = "single"
	modeBatch  = "batch"
)

var (
	confirmCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calendar_sync",
		Subsystem: "confirmation",
		Name:      "events_total",
		Help:      "Confirmation attempts labeled by mode and outcome.",
	}, []string{"mode", "outcome"})

	dismissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "calendar_sync",
		Subsystem: "confirmation",
		Name:      "dismissed_total",
		Help:      "Number of staged events dismissed by users.",
	})
)

func init() {
	prometheus.MustRegister(confirmCounter, dismissCounter)
}

func recordConfirm(mode string, err error) {
	outcome := "confirmed"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition):
		outcome = "already_handled"
	default:
		outcome = "failed"
	}
	confirmCounter.WithLabelValues(mode, outcome).Inc()
}
