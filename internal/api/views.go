package api

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// ConnectRequest is the payload for PUT /v1/calendar/connection.
type ConnectRequest struct {
	Provider    string `json:"provider"`
	AccountRef  string `json:"account_ref"`
	OrgDomain   string `json:"org_domain"`
	SyncEnabled *bool  `json:"sync_enabled,omitempty"`
}

// Validate ensures request correctness.
func (r ConnectRequest) Validate() error {
	switch r.Provider {
	case domain.ProviderGoogle, domain.ProviderOutlook, domain.ProviderICS:
	default:
		return errors.New("provider must be one of google, outlook, ics")
	}
	if strings.TrimSpace(r.AccountRef) == "" {
		return errors.New("account_ref is required")
	}
	if r.Provider == domain.ProviderICS {
		u, err := url.Parse(strings.TrimSpace(r.AccountRef))
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return errors.New("account_ref must be an http(s) feed url for ics")
		}
	}
	return nil
}

// SettingsRequest is the payload for PATCH /v1/calendar/connection.
type SettingsRequest struct {
	SyncEnabled *bool   `json:"sync_enabled,omitempty"`
	OrgDomain   *string `json:"org_domain,omitempty"`
}

// ConnectionView exposes a calendar connection.
type ConnectionView struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	AccountRef  string     `json:"account_ref"`
	OrgDomain   string     `json:"org_domain"`
	SyncEnabled bool       `json:"sync_enabled"`
	Status      string     `json:"status"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// StatusResponse answers GET /v1/calendar/status.
type StatusResponse struct {
	Connected    bool            `json:"connected"`
	Connection   *ConnectionView `json:"connection,omitempty"`
	PendingCount int             `json:"pending_count"`
}

// AttendeeView is one attendee of a staged event.
type AttendeeView struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// SuggestionView is the match suggestion of a staged event.
type SuggestionView struct {
	ActivityType  string   `json:"activity_type,omitempty"`
	DistrictLEAID string   `json:"district_leaid,omitempty"`
	DistrictName  string   `json:"district_name,omitempty"`
	DistrictState string   `json:"district_state,omitempty"`
	ContactIDs    []string `json:"contact_ids"`
	PlanID        string   `json:"plan_id,omitempty"`
	PlanName      string   `json:"plan_name,omitempty"`
	PlanColor     string   `json:"plan_color,omitempty"`
	Confidence    string   `json:"confidence"`
}

// EventView exposes a staged calendar event.
type EventView struct {
	ID              string         `json:"id"`
	ProviderEventID string         `json:"provider_event_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	StartAt         time.Time      `json:"start_at"`
	EndAt           time.Time      `json:"end_at"`
	Location        string         `json:"location,omitempty"`
	Attendees       []AttendeeView `json:"attendees"`
	Status          string         `json:"status"`
	Suggestion      SuggestionView `json:"suggestion"`
	ActivityID      string         `json:"activity_id,omitempty"`
	LastSyncedAt    time.Time      `json:"last_synced_at"`
}

// ListEventsResponse packages list results.
type ListEventsResponse struct {
	Items      []EventView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// ConfirmResponse describes the response body for confirm.
type ConfirmResponse struct {
	ActivityID string `json:"activity_id"`
}

func toConnectionView(c domain.CalendarConnection) ConnectionView {
	return ConnectionView{
		ID:          c.ID,
		Provider:    c.Provider,
		AccountRef:  c.AccountRef,
		OrgDomain:   c.OrgDomain,
		SyncEnabled: c.SyncEnabled,
		Status:      string(c.Status),
		LastSyncAt:  c.LastSyncAt,
		LastError:   c.LastError,
	}
}

func toEventView(e domain.CalendarEvent) EventView {
	attendees := make([]AttendeeView, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		attendees = append(attendees, AttendeeView{Email: a.Email, Name: a.Name, ResponseStatus: a.ResponseStatus})
	}
	contacts := e.Suggestion.ContactIDs
	if contacts == nil {
		contacts = []string{}
	}
	return EventView{
		ID:              e.ID,
		ProviderEventID: e.ProviderEventID,
		Title:           e.Title,
		Description:     e.Description,
		StartAt:         e.StartAt,
		EndAt:           e.EndAt,
		Location:        e.Location,
		Attendees:       attendees,
		Status:          string(e.Status),
		Suggestion: SuggestionView{
			ActivityType:  e.Suggestion.ActivityType,
			DistrictLEAID: e.Suggestion.DistrictLEAID,
			DistrictName:  e.Suggestion.DistrictName,
			DistrictState: e.Suggestion.DistrictState,
			ContactIDs:    contacts,
			PlanID:        e.Suggestion.PlanID,
			PlanName:      e.Suggestion.PlanName,
			PlanColor:     e.Suggestion.PlanColor,
			Confidence:    string(e.Suggestion.Confidence),
		},
		ActivityID:   e.ActivityID,
		LastSyncedAt: e.LastSyncedAt,
	}
}
