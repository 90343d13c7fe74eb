package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	platformevents "github.com/SierraArcega/territory-plan-sub002/internal/platform/events"
)

const eventColumns = `event_id, connection_id, user_id, provider_event_id, title, description, start_at, end_at, location, attendees,
        content_hash, provider_version, status, suggested_activity_type, suggested_leaid, suggested_district_name,
        suggested_district_state, suggested_contact_ids, suggested_plan_id, suggested_plan_name, suggested_plan_color,
        match_confidence, activity_id, last_synced_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.CalendarEvent, error) {
	var (
		event      domain.CalendarEvent
		attendees  []byte
		activityID *string
	)
	s := &event.Suggestion
	if err := row.Scan(&event.ID, &event.ConnectionID, &event.UserID, &event.ProviderEventID, &event.Title, &event.Description,
		&event.StartAt, &event.EndAt, &event.Location, &attendees, &event.ContentHash, &event.ProviderVersion, &event.Status,
		&s.ActivityType, &s.DistrictLEAID, &s.DistrictName, &s.DistrictState, &s.ContactIDs, &s.PlanID, &s.PlanName, &s.PlanColor,
		&s.Confidence, &activityID, &event.LastSyncedAt, &event.CreatedAt, &event.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(attendees) > 0 {
		if err := json.Unmarshal(attendees, &event.Attendees); err != nil {
			return nil, fmt.Errorf("decode attendees of %s: %w", event.ID, err)
		}
	}
	if len(s.ContactIDs) == 0 {
		s.ContactIDs = nil
	}
	if activityID != nil {
		event.ActivityID = *activityID
	}
	return &event, nil
}

func encodeAttendees(attendees []domain.Attendee) ([]byte, error) {
	if attendees == nil {
		attendees = []domain.Attendee{}
	}
	return json.Marshal(attendees)
}

func contactIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// GetEvent implements domain.EventRepository.
func (r *Repository) GetEvent(ctx context.Context, eventID string) (*domain.CalendarEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE event_id=$1`, eventID))
}

// GetEventByProviderID implements domain.EventRepository.
func (r *Repository) GetEventByProviderID(ctx context.Context, connectionID, providerEventID string) (*domain.CalendarEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE connection_id=$1 AND provider_event_id=$2`, connectionID, providerEventID))
}

// InsertEvent implements domain.EventRepository.
func (r *Repository) InsertEvent(ctx context.Context, event domain.CalendarEvent) error {
	attendees, err := encodeAttendees(event.Attendees)
	if err != nil {
		return err
	}
	if event.Status == "" {
		event.Status = domain.EventStatusPending
	}
	if event.LastSyncedAt.IsZero() {
		event.LastSyncedAt = time.Now().UTC()
	}
	s := event.Suggestion
	if s.Confidence == "" {
		s.Confidence = domain.ConfidenceNone
	}

	const stmt = `INSERT INTO calendar_events (event_id, connection_id, user_id, provider_event_id, title, description, start_at, end_at,
            location, attendees, content_hash, provider_version, status, suggested_activity_type, suggested_leaid,
            suggested_district_name, suggested_district_state, suggested_contact_ids, suggested_plan_id, suggested_plan_name,
            suggested_plan_color, match_confidence, last_synced_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	_, err = r.pool.Exec(ctx, stmt,
		event.ID, event.ConnectionID, event.UserID, event.ProviderEventID, event.Title, event.Description,
		event.StartAt.UTC(), event.EndAt.UTC(), event.Location, attendees, event.ContentHash, event.ProviderVersion,
		string(event.Status), s.ActivityType, s.DistrictLEAID, s.DistrictName, s.DistrictState, contactIDs(s.ContactIDs),
		s.PlanID, s.PlanName, s.PlanColor, string(s.Confidence), event.LastSyncedAt.UTC(),
	)
	return err
}

const updateSuggestionSQL = `UPDATE calendar_events
        SET suggested_activity_type=$2, suggested_leaid=$3, suggested_district_name=$4, suggested_district_state=$5,
            suggested_contact_ids=$6, suggested_plan_id=$7, suggested_plan_name=$8, suggested_plan_color=$9,
            match_confidence=$10, updated_at=NOW()
        WHERE event_id=$1 AND status='pending'`

func suggestionArgs(eventID string, s domain.MatchSuggestion) []interface{} {
	return []interface{}{eventID, s.ActivityType, s.DistrictLEAID, s.DistrictName, s.DistrictState,
		contactIDs(s.ContactIDs), s.PlanID, s.PlanName, s.PlanColor, string(s.Confidence)}
}

// UpdateEventFromProvider implements domain.EventRepository. Mirror fields and the suggestion are
// written in one transaction; the suggestion only lands while the row is still pending.
func (r *Repository) UpdateEventFromProvider(ctx context.Context, event domain.CalendarEvent, suggestion *domain.MatchSuggestion) (err error) {
	attendees, err := encodeAttendees(event.Attendees)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `UPDATE calendar_events
        SET title=$2, description=$3, start_at=$4, end_at=$5, location=$6, attendees=$7, content_hash=$8,
            provider_version=$9, last_synced_at=$10, updated_at=NOW()
        WHERE event_id=$1`,
		event.ID, event.Title, event.Description, event.StartAt.UTC(), event.EndAt.UTC(), event.Location, attendees,
		event.ContentHash, event.ProviderVersion, event.LastSyncedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrEventNotFound
		return err
	}

	if suggestion != nil {
		if _, err = tx.Exec(ctx, updateSuggestionSQL, suggestionArgs(event.ID, *suggestion)...); err != nil {
			return err
		}
	}
	err = tx.Commit(ctx)
	return err
}

// UpdateSuggestion implements domain.EventRepository.
func (r *Repository) UpdateSuggestion(ctx context.Context, eventID string, suggestion domain.MatchSuggestion) error {
	tag, err := r.pool.Exec(ctx, updateSuggestionSQL, suggestionArgs(eventID, suggestion)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrHandled(ctx, eventID)
	}
	return nil
}

// TransitionEvent implements domain.EventRepository. The conditional update and the
// status_changed outbox row commit together.
func (r *Repository) TransitionEvent(ctx context.Context, eventID string, to domain.EventStatus) (err error) {
	if to == domain.EventStatusConfirmed || !domain.CanTransition(domain.EventStatusPending, to) {
		return domain.ErrInvalidTransition
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var connectionID, userID string
	var occurredAt time.Time
	err = tx.QueryRow(ctx, `UPDATE calendar_events SET status=$2, updated_at=NOW()
        WHERE event_id=$1 AND status='pending'
        RETURNING connection_id, user_id, updated_at`, eventID, string(to)).Scan(&connectionID, &userID, &occurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		tx.Rollback(ctx)
		err = nil
		return r.missingOrHandled(ctx, eventID)
	}
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxRecord{
		UserID:        userID,
		AggregateType: "calendar_event",
		AggregateID:   eventID,
		EventType:     platformevents.TypeCalendarEventStatusChanged,
	}, platformevents.CalendarEventStatusChanged{
		CalendarEventID: eventID,
		ConnectionID:    connectionID,
		UserID:          userID,
		Status:          string(to),
		OccurredAt:      occurredAt.UTC(),
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

func (r *Repository) missingOrHandled(ctx context.Context, eventID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM calendar_events WHERE event_id=$1)`, eventID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrEventNotFound
	}
	return domain.ErrInvalidTransition
}

// ListEvents implements domain.EventRepository, newest start first.
func (r *Repository) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CalendarEvent, *domain.Cursor, error) {
	args := []interface{}{filter.ConnectionID}
	var where strings.Builder
	where.WriteString(`connection_id=$1`)

	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Status != nil {
		where.WriteString(` AND status=` + arg(string(*filter.Status)))
	}
	if filter.Confidence != nil {
		where.WriteString(` AND match_confidence=` + arg(string(*filter.Confidence)))
	}
	if filter.Cursor != nil {
		ts := arg(filter.Cursor.StartAt.UTC())
		id := arg(filter.Cursor.ID)
		where.WriteString(` AND (start_at, event_id) < (` + ts + `, ` + id + `)`)
	}

	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE ` + where.String() + ` ORDER BY start_at DESC, event_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit+1)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.CalendarEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if filter.Limit <= 0 || len(results) <= filter.Limit {
		return results, nil, nil
	}
	results = results[:filter.Limit]
	last := results[len(results)-1]
	return results, &domain.Cursor{StartAt: last.StartAt, ID: last.ID}, nil
}

// ListPendingEvents implements domain.EventRepository.
func (r *Repository) ListPendingEvents(ctx context.Context, connectionID string) ([]domain.CalendarEvent, error) {
	pending := domain.EventStatusPending
	events, _, err := r.ListEvents(ctx, domain.EventFilter{ConnectionID: connectionID, Status: &pending})
	return events, err
}

// CountEvents implements domain.EventRepository.
func (r *Repository) CountEvents(ctx context.Context, connectionID string, status domain.EventStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM calendar_events WHERE connection_id=$1 AND status=$2`, connectionID, string(status)).Scan(&n)
	return n, err
}
