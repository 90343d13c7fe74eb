// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// Store keeps connections, staged events, activities and the directory in memory.
type Store struct {
	mu          sync.RWMutex
	connections map[string]domain.CalendarConnection
	byUser      map[string]string
	events      map[string]domain.CalendarEvent
	byProvider  map[string]string
	activities  map[string]domain.Activity
	districts   map[string]domain.District
	contacts    []domain.Contact
	plans       []domain.TerritoryPlan
	confirmHook func(eventID string) error
	now         func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		connections: make(map[string]domain.CalendarConnection),
		byUser:      make(map[string]string),
		events:      make(map[string]domain.CalendarEvent),
		byProvider:  make(map[string]string),
		activities:  make(map[string]domain.Activity),
		districts:   make(map[string]domain.District),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetConfirmHook installs a function run inside ConfirmEvent before anything is written.
// A non-nil error aborts the confirmation, mimicking a rolled back transaction.
func (s *Store) SetConfirmHook(hook func(eventID string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmHook = hook
}

func providerKey(connectionID, providerEventID string) string {
	return connectionID + "\x00" + providerEventID
}

// GetConnection implements domain.ConnectionStore.
func (s *Store) GetConnection(ctx context.Context, connectionID string) (*domain.CalendarConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[connectionID]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

// GetConnectionByUser implements domain.ConnectionStore.
func (s *Store) GetConnectionByUser(ctx context.Context, userID string) (*domain.CalendarConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUser[userID]
	if !ok {
		return nil, nil
	}
	conn := s.connections[id]
	return &conn, nil
}

// ListSyncableConnections implements domain.ConnectionStore.
func (s *Store) ListSyncableConnections(ctx context.Context) ([]domain.CalendarConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CalendarConnection, 0, len(s.connections))
	for _, conn := range s.connections {
		if conn.Active() {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveConnection implements domain.ConnectionStore. A user keeps a single connection; saving
// again overwrites the record under the user's existing connection id.
func (s *Store) SaveConnection(ctx context.Context, conn domain.CalendarConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.byUser[conn.UserID]; ok {
		conn.ID = prev
		if conn.CreatedAt.IsZero() {
			conn.CreatedAt = s.connections[prev].CreatedAt
		}
	}
	if strings.TrimSpace(conn.ID) == "" {
		conn.ID = uuid.NewString()
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	s.connections[conn.ID] = conn
	s.byUser[conn.UserID] = conn.ID
	return nil
}

// UpdateConnectionSettings implements domain.ConnectionStore.
func (s *Store) UpdateConnectionSettings(ctx context.Context, userID string, settings domain.ConnectionSettings) (*domain.CalendarConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	conn := s.connections[id]
	if settings.SyncEnabled != nil {
		conn.SyncEnabled = *settings.SyncEnabled
	}
	if settings.OrgDomain != nil {
		conn.OrgDomain = *settings.OrgDomain
	}
	conn.UpdatedAt = s.now()
	s.connections[id] = conn
	return &conn, nil
}

// RecordSyncOutcome implements domain.ConnectionStore.
func (s *Store) RecordSyncOutcome(ctx context.Context, connectionID string, status domain.ConnectionStatus, syncedAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[connectionID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	syncedAt = syncedAt.UTC()
	conn.Status = status
	conn.LastSyncAt = &syncedAt
	conn.LastError = lastError
	conn.UpdatedAt = s.now()
	s.connections[connectionID] = conn
	return nil
}

// DeleteConnection implements domain.ConnectionStore. Staged events are kept for audit.
func (s *Store) DeleteConnection(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[userID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	delete(s.connections, id)
	delete(s.byUser, userID)
	return nil
}

// GetEvent implements domain.EventRepository.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, nil
	}
	event = cloneEvent(event)
	return &event, nil
}

// GetEventByProviderID implements domain.EventRepository.
func (s *Store) GetEventByProviderID(ctx context.Context, connectionID, providerEventID string) (*domain.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byProvider[providerKey(connectionID, providerEventID)]
	if !ok {
		return nil, nil
	}
	event := cloneEvent(s.events[id])
	return &event, nil
}

// InsertEvent implements domain.EventRepository.
func (s *Store) InsertEvent(ctx context.Context, event domain.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := providerKey(event.ConnectionID, event.ProviderEventID)
	if _, exists := s.byProvider[key]; exists {
		return fmt.Errorf("provider event %s already staged", event.ProviderEventID)
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	now := s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	s.events[event.ID] = cloneEvent(event)
	s.byProvider[key] = event.ID
	return nil
}

// UpdateEventFromProvider implements domain.EventRepository.
func (s *Store) UpdateEventFromProvider(ctx context.Context, event domain.CalendarEvent, suggestion *domain.MatchSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[event.ID]
	if !ok {
		return domain.ErrEventNotFound
	}
	stored.Title = event.Title
	stored.Description = event.Description
	stored.StartAt = event.StartAt
	stored.EndAt = event.EndAt
	stored.Location = event.Location
	stored.Attendees = append([]domain.Attendee(nil), event.Attendees...)
	stored.ContentHash = event.ContentHash
	stored.ProviderVersion = event.ProviderVersion
	stored.LastSyncedAt = event.LastSyncedAt
	if suggestion != nil && stored.Status == domain.EventStatusPending {
		stored.Suggestion = cloneSuggestion(*suggestion)
	}
	stored.UpdatedAt = s.now()
	s.events[event.ID] = stored
	return nil
}

// UpdateSuggestion implements domain.EventRepository.
func (s *Store) UpdateSuggestion(ctx context.Context, eventID string, suggestion domain.MatchSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if stored.Status != domain.EventStatusPending {
		return domain.ErrInvalidTransition
	}
	stored.Suggestion = cloneSuggestion(suggestion)
	stored.UpdatedAt = s.now()
	s.events[eventID] = stored
	return nil
}

// TransitionEvent implements domain.EventRepository.
func (s *Store) TransitionEvent(ctx context.Context, eventID string, to domain.EventStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if !domain.CanTransition(stored.Status, to) || to == domain.EventStatusConfirmed {
		return domain.ErrInvalidTransition
	}
	stored.Status = to
	stored.UpdatedAt = s.now()
	s.events[eventID] = stored
	return nil
}

// ListEvents implements domain.EventRepository, newest start first.
func (s *Store) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CalendarEvent, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.CalendarEvent, 0)
	for _, event := range s.events {
		if event.ConnectionID != filter.ConnectionID {
			continue
		}
		if filter.Status != nil && event.Status != *filter.Status {
			continue
		}
		if filter.Confidence != nil && event.Suggestion.Confidence != *filter.Confidence {
			continue
		}
		if c := filter.Cursor; c != nil {
			if event.StartAt.After(c.StartAt) || (event.StartAt.Equal(c.StartAt) && event.ID >= c.ID) {
				continue
			}
		}
		matched = append(matched, cloneEvent(event))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartAt.Equal(matched[j].StartAt) {
			return matched[i].StartAt.After(matched[j].StartAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Limit <= 0 || len(matched) <= filter.Limit {
		return matched, nil, nil
	}
	page := matched[:filter.Limit]
	last := page[len(page)-1]
	return page, &domain.Cursor{StartAt: last.StartAt, ID: last.ID}, nil
}

// ListPendingEvents implements domain.EventRepository.
func (s *Store) ListPendingEvents(ctx context.Context, connectionID string) ([]domain.CalendarEvent, error) {
	pending := domain.EventStatusPending
	events, _, err := s.ListEvents(ctx, domain.EventFilter{ConnectionID: connectionID, Status: &pending})
	return events, err
}

// CountEvents implements domain.EventRepository.
func (s *Store) CountEvents(ctx context.Context, connectionID string, status domain.EventStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, event := range s.events {
		if event.ConnectionID == connectionID && event.Status == status {
			n++
		}
	}
	return n, nil
}

// ConfirmEvent implements domain.ConfirmStore. The whole method runs under the write lock, which
// makes the activity insert and the event transition a single unit.
func (s *Store) ConfirmEvent(ctx context.Context, eventID string, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if stored.Status != domain.EventStatusPending {
		return domain.ErrInvalidTransition
	}
	if s.confirmHook != nil {
		if err := s.confirmHook(eventID); err != nil {
			return err
		}
	}

	s.activities[activity.ID] = cloneActivity(activity)
	stored.Status = domain.EventStatusConfirmed
	stored.ActivityID = activity.ID
	stored.UpdatedAt = s.now()
	s.events[eventID] = stored
	return nil
}

// Activities returns every stored activity ordered by creation.
func (s *Store) Activities() []domain.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, cloneActivity(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneEvent(e domain.CalendarEvent) domain.CalendarEvent {
	e.Attendees = append([]domain.Attendee(nil), e.Attendees...)
	e.Suggestion = cloneSuggestion(e.Suggestion)
	return e
}

func cloneSuggestion(m domain.MatchSuggestion) domain.MatchSuggestion {
	if m.ContactIDs != nil {
		m.ContactIDs = append([]string(nil), m.ContactIDs...)
	}
	return m
}

func cloneActivity(a domain.Activity) domain.Activity {
	a.PlanIDs = append([]string(nil), a.PlanIDs...)
	a.DistrictLEAIDs = append([]string(nil), a.DistrictLEAIDs...)
	a.ContactIDs = append([]string(nil), a.ContactIDs...)
	return a
}
