package domain

import (
	"context"
	"time"
)

// ActivitySource records where an activity came from.
type ActivitySource string

const (
	ActivitySourceManual       ActivitySource = "manual"
	ActivitySourceCalendarSync ActivitySource = "calendar_sync"
)

// ActivityStatus is the CRM status of an activity.
type ActivityStatus string

const (
	ActivityStatusPlanned   ActivityStatus = "planned"
	ActivityStatusCompleted ActivityStatus = "completed"
)

// Activity is the durable CRM record materialized from a confirmed calendar event.
type Activity struct {
	ID              string
	UserID          string
	Type            string
	Title           string
	StartAt         time.Time
	EndAt           time.Time
	Status          ActivityStatus
	PlanIDs         []string
	DistrictLEAIDs  []string
	ContactIDs      []string
	Source          ActivitySource
	ProviderEventID string
	CalendarEventID string
	CreatedAt       time.Time
}

// ConfirmStore performs the confirm unit of work: the activity insert and the event transition
// to confirmed happen in one transaction or not at all.
type ConfirmStore interface {
	// ConfirmEvent re-checks that the event is pending inside the transaction and returns
	// ErrInvalidTransition otherwise.
	ConfirmEvent(ctx context.Context, eventID string, activity Activity) error
}
