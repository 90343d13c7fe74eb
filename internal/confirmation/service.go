// Package confirmation turns staged calendar events into CRM activities, one at a time or in bulk.
package confirmation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// Overrides replace suggestion fields when confirming. Empty strings and nil slices keep the
// suggestion; a non-nil empty slice clears the link.
type Overrides struct {
	ActivityType   string   `json:"activity_type,omitempty"`
	Title          string   `json:"title,omitempty"`
	PlanIDs        []string `json:"plan_ids,omitempty"`
	DistrictLEAIDs []string `json:"district_leaids,omitempty"`
	ContactIDs     []string `json:"contact_ids,omitempty"`
}

// BatchFailure names an event the batch could not confirm.
type BatchFailure struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// BatchResult summarises a bulk confirmation.
type BatchResult struct {
	Confirmed   int            `json:"confirmed"`
	ActivityIDs []string       `json:"activity_ids"`
	Failed      []BatchFailure `json:"failed"`
}

// Service confirms and dismisses staged events.
type Service struct {
	conns  domain.ConnectionStore
	events domain.EventRepository
	store  domain.ConfirmStore
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(conns domain.ConnectionStore, events domain.EventRepository, store domain.ConfirmStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		conns:  conns,
		events: events,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Confirm creates an Activity for a pending event owned by the user and marks the event
// confirmed in one unit of work. It returns the new activity id.
func (s *Service) Confirm(ctx context.Context, userID, eventID string, overrides *Overrides) (string, error) {
	event, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return "", err
	}
	id, err := s.confirm(ctx, *event, overrides)
	recordConfirm(modeSingle, err)
	return id, err
}

// Dismiss marks a pending event as not worth logging.
func (s *Service) Dismiss(ctx context.Context, userID, eventID string) error {
	event, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if event.Status != domain.EventStatusPending {
		return domain.ErrInvalidTransition
	}
	if err := s.events.TransitionEvent(ctx, event.ID, domain.EventStatusDismissed); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrEventNotFound) {
			return err
		}
		return &domain.PersistenceError{Op: "dismiss event", Err: err}
	}
	dismissCounter.Inc()
	s.logger.Info("calendar event dismissed", zap.String("user_id", userID), zap.String("event_id", eventID))
	return nil
}

// BatchConfirmHighConfidence confirms every pending high-confidence event of the user's
// connection without overrides. Each event is its own unit of work; a failure is recorded and
// the batch moves on.
func (s *Service) BatchConfirmHighConfidence(ctx context.Context, userID string) (BatchResult, error) {
	result := BatchResult{ActivityIDs: []string{}, Failed: []BatchFailure{}}

	conn, err := s.conns.GetConnectionByUser(ctx, userID)
	if err != nil {
		return result, &domain.PersistenceError{Op: "load connection", Err: err}
	}
	if conn == nil {
		return result, domain.ErrNotConnected
	}

	pending := domain.EventStatusPending
	high := domain.ConfidenceHigh
	events, _, err := s.events.ListEvents(ctx, domain.EventFilter{
		ConnectionID: conn.ID,
		Status:       &pending,
		Confidence:   &high,
	})
	if err != nil {
		return result, &domain.PersistenceError{Op: "list high confidence events", Err: err}
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		id, err := s.confirm(ctx, event, nil)
		recordConfirm(modeBatch, err)
		if err != nil {
			s.logger.Warn("batch confirm failed", zap.String("user_id", userID), zap.String("event_id", event.ID), zap.Error(err))
			result.Failed = append(result.Failed, BatchFailure{EventID: event.ID, Reason: err.Error()})
			continue
		}
		result.Confirmed++
		result.ActivityIDs = append(result.ActivityIDs, id)
	}

	s.logger.Info("batch confirm finished",
		zap.String("user_id", userID),
		zap.Int("confirmed", result.Confirmed),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Service) ownedEvent(ctx context.Context, userID, eventID string) (*domain.CalendarEvent, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load event", Err: err}
	}
	if event == nil || event.UserID != userID {
		return nil, domain.ErrEventNotFound
	}
	return event, nil
}

func (s *Service) confirm(ctx context.Context, event domain.CalendarEvent, overrides *Overrides) (string, error) {
	if event.Status != domain.EventStatusPending {
		return "", domain.ErrInvalidTransition
	}

	activity := buildActivity(event, overrides, s.now())
	if err := s.store.ConfirmEvent(ctx, event.ID, activity); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrEventNotFound) {
			return "", err
		}
		return "", &domain.PersistenceError{Op: "confirm event", Err: err}
	}

	s.logger.Info("calendar event confirmed",
		zap.String("user_id", event.UserID),
		zap.String("event_id", event.ID),
		zap.String("activity_id", activity.ID),
		zap.String("confidence", string(event.Suggestion.Confidence)),
	)
	return activity.ID, nil
}

func buildActivity(event domain.CalendarEvent, overrides *Overrides, now time.Time) domain.Activity {
	suggestion := event.Suggestion
	activity := domain.Activity{
		ID:              uuid.NewString(),
		UserID:          event.UserID,
		Type:            suggestion.ActivityType,
		Title:           event.Title,
		StartAt:         event.StartAt,
		EndAt:           event.EndAt,
		Status:          domain.ActivityStatusCompleted,
		PlanIDs:         single(suggestion.PlanID),
		DistrictLEAIDs:  single(suggestion.DistrictLEAID),
		ContactIDs:      append([]string{}, suggestion.ContactIDs...),
		Source:          domain.ActivitySourceCalendarSync,
		ProviderEventID: event.ProviderEventID,
		CalendarEventID: event.ID,
		CreatedAt:       now,
	}
	if event.StartAt.After(now) {
		activity.Status = domain.ActivityStatusPlanned
	}

	if overrides == nil {
		return activity
	}
	if overrides.ActivityType != "" {
		activity.Type = overrides.ActivityType
	}
	if overrides.Title != "" {
		activity.Title = overrides.Title
	}
	if overrides.PlanIDs != nil {
		activity.PlanIDs = append([]string{}, overrides.PlanIDs...)
	}
	if overrides.DistrictLEAIDs != nil {
		activity.DistrictLEAIDs = append([]string{}, overrides.DistrictLEAIDs...)
	}
	if overrides.ContactIDs != nil {
		activity.ContactIDs = append([]string{}, overrides.ContactIDs...)
	}
	return activity
}

func single(id string) []string {
	if id == "" {
		return []string{}
	}
	return []string{id}
}
