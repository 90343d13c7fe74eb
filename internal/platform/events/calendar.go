// Package events defines the payloads published for calendar sync outcomes.
package events

import "time"

// ActivityCreated is emitted when a staged calendar event is confirmed into an activity.
type ActivityCreated struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	ActivityType    string    `json:"activity_type"`
	Title           string    `json:"title"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	Status          string    `json:"status"`
	Source          string    `json:"source"`
	CalendarEventID string    `json:"calendar_event_id"`
	ProviderEventID string    `json:"provider_event_id"`
	PlanIDs         []string  `json:"plan_ids"`
	DistrictLEAIDs  []string  `json:"district_leaids"`
	ContactIDs      []string  `json:"contact_ids"`
}

// CalendarEventStatusChanged tracks lifecycle transitions of a staged event.
type CalendarEventStatusChanged struct {
	CalendarEventID string    `json:"calendar_event_id"`
	ConnectionID    string    `json:"connection_id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	ActivityID      string    `json:"activity_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Event type names written to the outbox.
const (
	TypeActivityCreated            = "activity.created"
	TypeCalendarEventStatusChanged = "calendar_event.status_changed"
)
