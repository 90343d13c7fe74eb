package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// auditFields are the identifiers shared by activity.created and calendar_event.status_changed.
type auditFields struct {
	UserID          string `json:"user_id"`
	CalendarEventID string `json:"calendar_event_id"`
	ActivityID      string `json:"activity_id"`
	Status          string `json:"status"`
}

// AuditHandler writes consumed events into calendar_sync_audit. Redelivered offsets are ignored.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle stores the event payload together with the identifiers pulled out of it.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	fields := extractAuditFields(msg)

	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO calendar_sync_audit (topic, kafka_partition, kafka_offset, event_type, user_id, calendar_event_id, activity_id, status, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (topic, kafka_partition, kafka_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		fields.UserID,
		fields.CalendarEventID,
		fields.ActivityID,
		fields.Status,
		msg.Payload,
		receivedAt,
	)
	return err
}

func extractAuditFields(msg Message) auditFields {
	var fields auditFields
	_ = json.Unmarshal(msg.Payload, &fields)
	if fields.UserID == "" {
		fields.UserID = msg.UserID
	}
	return fields
}
