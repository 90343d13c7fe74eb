package domain

import (
	"context"
	"fmt"
	"time"
)

// EventStatus is the lifecycle state of a staged calendar event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusDismissed EventStatus = "dismissed"
	EventStatusCancelled EventStatus = "cancelled"
)

// ParseEventStatus validates a status filter supplied by a caller.
func ParseEventStatus(value string) (EventStatus, error) {
	switch s := EventStatus(value); s {
	case EventStatusPending, EventStatusConfirmed, EventStatusDismissed, EventStatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown event status %q", value)
}

// Terminal reports whether no transition may leave the status.
func (s EventStatus) Terminal() bool {
	return s == EventStatusConfirmed || s == EventStatusDismissed || s == EventStatusCancelled
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
// Only pending events move, and only into a terminal status.
func CanTransition(from, to EventStatus) bool {
	return from == EventStatusPending && to.Terminal()
}

// Confidence is the deterministic reliability tier of a match suggestion.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Attendee is one invitee of a calendar event.
type Attendee struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// MatchSuggestion is the engine's guess for a staged event. It is derived data and may be
// recomputed while the event is pending.
type MatchSuggestion struct {
	ActivityType  string
	DistrictLEAID string
	DistrictName  string
	DistrictState string
	ContactIDs    []string
	PlanID        string
	PlanName      string
	PlanColor     string
	Confidence    Confidence
}

// HasDistrict reports whether a district was suggested.
func (m MatchSuggestion) HasDistrict() bool { return m.DistrictLEAID != "" }

// HasPlan reports whether a plan was suggested.
func (m MatchSuggestion) HasPlan() bool { return m.PlanID != "" }

// CalendarEvent is the staged mirror of one provider event.
type CalendarEvent struct {
	ID              string
	ConnectionID    string
	UserID          string
	ProviderEventID string
	Title           string
	Description     string
	StartAt         time.Time
	EndAt           time.Time
	Location        string
	Attendees       []Attendee
	ContentHash     string
	ProviderVersion string
	Status          EventStatus
	Suggestion      MatchSuggestion
	ActivityID      string
	LastSyncedAt    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Cursor models the pagination token for staged event listings.
type Cursor struct {
	StartAt time.Time
	ID      string
}

// EventFilter narrows a staged event listing.
type EventFilter struct {
	ConnectionID string
	Status       *EventStatus
	Confidence   *Confidence
	Cursor       *Cursor
	Limit        int
}

// EventRepository persists staged events keyed by (connection, provider event id).
type EventRepository interface {
	GetEvent(ctx context.Context, eventID string) (*CalendarEvent, error)
	GetEventByProviderID(ctx context.Context, connectionID, providerEventID string) (*CalendarEvent, error)
	// InsertEvent stages a new provider event. It fails if the provider event id already exists
	// for the connection.
	InsertEvent(ctx context.Context, event CalendarEvent) error
	// UpdateEventFromProvider rewrites the mirrored provider fields. The suggestion is written
	// only when non-nil and only if the stored event is still pending.
	UpdateEventFromProvider(ctx context.Context, event CalendarEvent, suggestion *MatchSuggestion) error
	// UpdateSuggestion replaces the suggestion of a pending event; ErrInvalidTransition otherwise.
	UpdateSuggestion(ctx context.Context, eventID string, suggestion MatchSuggestion) error
	// TransitionEvent moves a pending event to dismissed or cancelled; ErrInvalidTransition
	// otherwise. Confirmation goes through ConfirmStore so the activity reference is set with it.
	TransitionEvent(ctx context.Context, eventID string, to EventStatus) error
	ListEvents(ctx context.Context, filter EventFilter) ([]CalendarEvent, *Cursor, error)
	ListPendingEvents(ctx context.Context, connectionID string) ([]CalendarEvent, error)
	CountEvents(ctx context.Context, connectionID string, status EventStatus) (int, error)
}
