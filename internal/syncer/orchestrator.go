// Package syncer reconciles a connection's external calendar with the staged event inbox.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/matching"
)

// Matcher proposes a suggestion for a staged event.
type Matcher interface {
	Match(ctx context.Context, event domain.CalendarEvent, cc matching.ConnectionContext) (domain.MatchSuggestion, error)
}

// Result summarises one sync run.
type Result struct {
	EventsProcessed int      `json:"events_processed"`
	NewEvents       int      `json:"new_events"`
	UpdatedEvents   int      `json:"updated_events"`
	CancelledEvents int      `json:"cancelled_events"`
	Errors          []string `json:"errors"`
}

func (r *Result) recordError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// Options tune an Orchestrator. Zero values fall back to defaults.
type Options struct {
	LookBack  time.Duration
	LookAhead time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Orchestrator runs syncs. It is safe for concurrent use; runs for the same connection are
// serialised through the SyncLocker.
type Orchestrator struct {
	conns     domain.ConnectionStore
	events    domain.EventRepository
	provider  domain.Provider
	matcher   Matcher
	locker    domain.SyncLocker
	lookBack  time.Duration
	lookAhead time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(conns domain.ConnectionStore, events domain.EventRepository, provider domain.Provider, matcher Matcher, locker domain.SyncLocker, opts Options) *Orchestrator {
	if opts.LookBack <= 0 {
		opts.LookBack = 7 * 24 * time.Hour
	}
	if opts.LookAhead <= 0 {
		opts.LookAhead = 30 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		conns:     conns,
		events:    events,
		provider:  provider,
		matcher:   matcher,
		locker:    locker,
		lookBack:  opts.LookBack,
		lookAhead: opts.LookAhead,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Sync pulls the connection's events for the configured window and reconciles them with the
// staged inbox. Per-event and fetch failures are reported in Result.Errors; the returned error is
// reserved for conditions that prevent the run (ErrNotConnected, ErrSyncInProgress, lookup
// failures, context cancellation).
func (o *Orchestrator) Sync(ctx context.Context, connectionID string) (Result, error) {
	result := Result{Errors: []string{}}

	conn, err := o.conns.GetConnection(ctx, connectionID)
	if err != nil {
		return result, &domain.PersistenceError{Op: "load connection", Err: err}
	}
	if conn == nil || !conn.Active() {
		return result, domain.ErrNotConnected
	}

	release, err := o.locker.TryLock(ctx, conn.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			syncRuns.WithLabelValues(outcomeBusy).Inc()
		}
		return result, err
	}
	defer release()

	start := o.now()
	log := o.logger.With(zap.String("connection_id", conn.ID), zap.String("user_id", conn.UserID))
	window := domain.Window{Start: start.Add(-o.lookBack), End: start.Add(o.lookAhead)}

	raws, fetchErr := o.provider.ListEvents(ctx, *conn, window)
	if fetchErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			syncRuns.WithLabelValues(outcomeCancelled).Inc()
			return result, ctxErr
		}
		log.Warn("calendar fetch failed", zap.Error(fetchErr))
		result.recordError(fmt.Errorf("fetch events: %w", fetchErr))
		o.finish(ctx, log, conn, &result, domain.ConnectionStatusError, fetchErr.Error(), start)
		return result, nil
	}

	cc := matching.ContextFor(*conn)
	seen := make(map[string]struct{}, len(raws))
	failed := make(map[string]struct{})

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			log.Info("sync cancelled between events", zap.Int("processed", result.EventsProcessed))
			syncRuns.WithLabelValues(outcomeCancelled).Inc()
			return result, err
		}
		if raw.ProviderEventID != "" {
			seen[raw.ProviderEventID] = struct{}{}
		}
		result.EventsProcessed++

		if raw.Err != nil || raw.ProviderEventID == "" {
			cause := raw.Err
			if cause == nil {
				cause = errors.New("event has no provider id")
			}
			if raw.ProviderEventID != "" {
				failed[raw.ProviderEventID] = struct{}{}
			}
			result.recordError(&domain.ProviderFetchError{ProviderEventID: raw.ProviderEventID, Err: cause})
			continue
		}

		if err := o.reconcile(ctx, conn, cc, raw, start, &result); err != nil {
			log.Warn("reconcile event failed", zap.String("provider_event_id", raw.ProviderEventID), zap.Error(err))
			result.recordError(err)
		}
	}

	o.cancelMissing(ctx, log, conn.ID, window, seen, failed, &result)
	o.finish(ctx, log, conn, &result, domain.ConnectionStatusConnected, "", start)
	return result, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, conn *domain.CalendarConnection, cc matching.ConnectionContext, raw domain.RawEvent, syncedAt time.Time, result *Result) error {
	existing, err := o.events.GetEventByProviderID(ctx, conn.ID, raw.ProviderEventID)
	if err != nil {
		return &domain.PersistenceError{Op: "lookup " + raw.ProviderEventID, Err: err}
	}

	staged := stagedFromRaw(conn, raw, syncedAt)

	if existing == nil {
		staged.ID = uuid.NewString()
		staged.Status = domain.EventStatusPending
		staged.CreatedAt = syncedAt
		suggestion, err := o.matcher.Match(ctx, staged, cc)
		if err != nil {
			return fmt.Errorf("match %s: %w", raw.ProviderEventID, err)
		}
		staged.Suggestion = suggestion
		if err := o.events.InsertEvent(ctx, staged); err != nil {
			return &domain.PersistenceError{Op: "insert " + raw.ProviderEventID, Err: err}
		}
		matchConfidence.WithLabelValues(string(suggestion.Confidence)).Inc()
		result.NewEvents++
		return nil
	}

	if !changed(*existing, staged) {
		return nil
	}
	if existing.Status == domain.EventStatusDismissed || existing.Status == domain.EventStatusCancelled {
		return nil
	}

	staged.ID = existing.ID
	var suggestion *domain.MatchSuggestion
	if existing.Status == domain.EventStatusPending {
		s, err := o.matcher.Match(ctx, staged, cc)
		if err != nil {
			return fmt.Errorf("match %s: %w", raw.ProviderEventID, err)
		}
		suggestion = &s
	}
	if err := o.events.UpdateEventFromProvider(ctx, staged, suggestion); err != nil {
		return &domain.PersistenceError{Op: "update " + raw.ProviderEventID, Err: err}
	}
	if suggestion != nil {
		matchConfidence.WithLabelValues(string(suggestion.Confidence)).Inc()
	}
	result.UpdatedEvents++
	return nil
}

// cancelMissing soft-cancels pending events inside the window that the provider no longer returns.
// Events outside the window were not asked for, so their absence proves nothing. Neither does the
// absence of an event the provider failed to read, nor of any instance of a failed series.
func (o *Orchestrator) cancelMissing(ctx context.Context, log *zap.Logger, connectionID string, window domain.Window, seen, failed map[string]struct{}, result *Result) {
	pending, err := o.events.ListPendingEvents(ctx, connectionID)
	if err != nil {
		result.recordError(&domain.PersistenceError{Op: "list pending", Err: err})
		return
	}
	for _, event := range pending {
		if _, ok := seen[event.ProviderEventID]; ok {
			continue
		}
		if !window.Contains(event.StartAt) || unreadable(event.ProviderEventID, failed) {
			continue
		}
		err := o.events.TransitionEvent(ctx, event.ID, domain.EventStatusCancelled)
		switch {
		case err == nil:
			result.CancelledEvents++
		case errors.Is(err, domain.ErrInvalidTransition):
			// confirmed or dismissed concurrently
		default:
			log.Warn("cancel event failed", zap.String("event_id", event.ID), zap.Error(err))
			result.recordError(&domain.PersistenceError{Op: "cancel " + event.ID, Err: err})
		}
	}
}

// RetirePending cancels every pending event of a connection. It is used when the connection is
// pointed at a different calendar, whose sync can never return the old events.
func (o *Orchestrator) RetirePending(ctx context.Context, connectionID string) (int, error) {
	pending, err := o.events.ListPendingEvents(ctx, connectionID)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "list pending", Err: err}
	}
	retired := 0
	for _, event := range pending {
		err := o.events.TransitionEvent(ctx, event.ID, domain.EventStatusCancelled)
		switch {
		case err == nil:
			retired++
		case errors.Is(err, domain.ErrInvalidTransition):
		default:
			return retired, &domain.PersistenceError{Op: "cancel " + event.ID, Err: err}
		}
	}
	return retired, nil
}

func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, conn *domain.CalendarConnection, result *Result, status domain.ConnectionStatus, lastError string, start time.Time) {
	if err := o.conns.RecordSyncOutcome(ctx, conn.ID, status, start, lastError); err != nil {
		result.recordError(&domain.PersistenceError{Op: "record sync outcome", Err: err})
	}

	outcome := outcomeOK
	if status == domain.ConnectionStatusError {
		outcome = outcomeFailed
	} else if len(result.Errors) > 0 {
		outcome = outcomePartial
	}
	recordRun(outcome, *result, o.now().Sub(start))

	log.Info("calendar sync finished",
		zap.String("outcome", outcome),
		zap.Int("processed", result.EventsProcessed),
		zap.Int("new", result.NewEvents),
		zap.Int("updated", result.UpdatedEvents),
		zap.Int("cancelled", result.CancelledEvents),
		zap.Int("errors", len(result.Errors)),
	)
}

// unreadable reports whether providerEventID, or the series it is an instance of, failed to
// decode in this run. Instance ids are "<series id>/<start>".
func unreadable(providerEventID string, failed map[string]struct{}) bool {
	if _, ok := failed[providerEventID]; ok {
		return true
	}
	for id := range failed {
		if strings.HasPrefix(providerEventID, id+"/") {
			return true
		}
	}
	return false
}

func stagedFromRaw(conn *domain.CalendarConnection, raw domain.RawEvent, syncedAt time.Time) domain.CalendarEvent {
	event := domain.CalendarEvent{
		ConnectionID:    conn.ID,
		UserID:          conn.UserID,
		ProviderEventID: raw.ProviderEventID,
		Title:           raw.Title,
		Description:     raw.Description,
		StartAt:         raw.StartAt.UTC(),
		EndAt:           raw.EndAt.UTC(),
		Location:        raw.Location,
		Attendees:       append([]domain.Attendee(nil), raw.Attendees...),
		ProviderVersion: raw.Version,
		LastSyncedAt:    syncedAt,
	}
	event.ContentHash = ContentHash(event)
	return event
}

func changed(existing, incoming domain.CalendarEvent) bool {
	if existing.ContentHash != incoming.ContentHash {
		return true
	}
	return incoming.ProviderVersion != "" && incoming.ProviderVersion != existing.ProviderVersion
}
