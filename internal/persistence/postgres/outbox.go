package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	platformevents "github.com/SierraArcega/territory-plan-sub002/internal/platform/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(outboxRecord) string
}

type outboxRecord struct {
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
}

var eventCatalog = map[string]EventMetadata{
	platformevents.TypeActivityCreated: {
		Topic:         "calendar_activity_events",
		SchemaSubject: "calendar_activity_events-value",
		PartitionKeyFn: func(r outboxRecord) string {
			return r.UserID
		},
	},
	platformevents.TypeCalendarEventStatusChanged: {
		Topic:         "calendar_event_status",
		SchemaSubject: "calendar_event_status-value",
		PartitionKeyFn: func(r outboxRecord) string {
			return r.AggregateID
		},
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record outboxRecord, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[record.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", record.EventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", record.AggregateID, record.EventType)

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		record.UserID,
		record.AggregateType,
		record.AggregateID,
		record.EventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(record),
		body,
		dedupeKey,
	)
	return err
}
