package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/observability"
	platformevents "github.com/SierraArcega/territory-plan-sub002/internal/platform/events"
)

// ConfirmEvent implements domain.ConfirmStore. The event row is locked, re-checked, linked to the
// new activity and the outbox rows are written before a single commit.
func (r *Repository) ConfirmEvent(ctx context.Context, eventID string, activity domain.Activity) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var status domain.EventStatus
	var connectionID string
	err = tx.QueryRow(ctx, `SELECT status, connection_id FROM calendar_events WHERE event_id=$1 FOR UPDATE`, eventID).Scan(&status, &connectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrEventNotFound
		return err
	}
	if err != nil {
		return err
	}
	if status != domain.EventStatusPending {
		err = domain.ErrInvalidTransition
		return err
	}

	if _, err = tx.Exec(ctx, `INSERT INTO activities (activity_id, user_id, activity_type, title, start_at, end_at, status, source, provider_event_id, calendar_event_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		activity.ID,
		activity.UserID,
		activity.Type,
		activity.Title,
		activity.StartAt.UTC(),
		activity.EndAt.UTC(),
		string(activity.Status),
		string(activity.Source),
		nullIfEmpty(activity.ProviderEventID),
		nullIfEmpty(eventID),
		activity.CreatedAt.UTC(),
	); err != nil {
		return err
	}

	links := []struct {
		stmt string
		ids  []string
	}{
		{`INSERT INTO activity_plans (activity_id, plan_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`, activity.PlanIDs},
		{`INSERT INTO activity_districts (activity_id, leaid) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`, activity.DistrictLEAIDs},
		{`INSERT INTO activity_contacts (activity_id, contact_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`, activity.ContactIDs},
	}
	for _, link := range links {
		if len(link.ids) == 0 {
			continue
		}
		if _, err = tx.Exec(ctx, link.stmt, activity.ID, link.ids); err != nil {
			return err
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE calendar_events SET status='confirmed', activity_id=$2, updated_at=NOW() WHERE event_id=$1`, eventID, activity.ID); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxRecord{
		UserID:        activity.UserID,
		AggregateType: "activity",
		AggregateID:   activity.ID,
		EventType:     platformevents.TypeActivityCreated,
	}, platformevents.ActivityCreated{
		ActivityID:      activity.ID,
		UserID:          activity.UserID,
		ActivityType:    activity.Type,
		Title:           activity.Title,
		StartAt:         activity.StartAt.UTC(),
		EndAt:           activity.EndAt.UTC(),
		Status:          string(activity.Status),
		Source:          string(activity.Source),
		CalendarEventID: eventID,
		ProviderEventID: activity.ProviderEventID,
		PlanIDs:         nonNil(activity.PlanIDs),
		DistrictLEAIDs:  nonNil(activity.DistrictLEAIDs),
		ContactIDs:      nonNil(activity.ContactIDs),
	}); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxRecord{
		UserID:        activity.UserID,
		AggregateType: "calendar_event",
		AggregateID:   eventID,
		EventType:     platformevents.TypeCalendarEventStatusChanged,
	}, platformevents.CalendarEventStatusChanged{
		CalendarEventID: eventID,
		ConnectionID:    connectionID,
		UserID:          activity.UserID,
		Status:          string(domain.EventStatusConfirmed),
		ActivityID:      activity.ID,
		OccurredAt:      activity.CreatedAt.UTC(),
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityConfirmed(activity.CreatedAt)
	return nil
}

// Activity loads a stored activity with its links.
func (r *Repository) Activity(ctx context.Context, activityID string) (*domain.Activity, error) {
	var (
		a               domain.Activity
		providerEventID *string
		calendarEventID *string
	)
	err := r.pool.QueryRow(ctx, `SELECT activity_id, user_id, activity_type, title, start_at, end_at, status, source, provider_event_id, calendar_event_id, created_at,
            ARRAY(SELECT plan_id FROM activity_plans WHERE activity_id = a.activity_id ORDER BY plan_id),
            ARRAY(SELECT leaid FROM activity_districts WHERE activity_id = a.activity_id ORDER BY leaid),
            ARRAY(SELECT contact_id FROM activity_contacts WHERE activity_id = a.activity_id ORDER BY contact_id)
        FROM activities a WHERE activity_id=$1`, activityID).Scan(
		&a.ID, &a.UserID, &a.Type, &a.Title, &a.StartAt, &a.EndAt, &a.Status, &a.Source, &providerEventID, &calendarEventID, &a.CreatedAt,
		&a.PlanIDs, &a.DistrictLEAIDs, &a.ContactIDs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if providerEventID != nil {
		a.ProviderEventID = *providerEventID
	}
	if calendarEventID != nil {
		a.CalendarEventID = *calendarEventID
	}
	return &a, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
