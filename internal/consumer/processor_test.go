package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func frame(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"activity_id":"act-1","user_id":"user-1","calendar_event_id":"evt-1"}`)
	msg := kafka.Message{
		Topic:     "calendar_activity_events",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value:     frame(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("activity.created")},
			{Key: "user_id", Value: []byte("user-1")},
			{Key: "schema_subject", Value: []byte("calendar_activity_events-value")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "activity.created", handler.last.EventType)
	require.Equal(t, "user-1", handler.last.UserID)
	require.Equal(t, "calendar_activity_events-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	msg := kafka.Message{
		Topic:  "calendar_event_status",
		Offset: 20,
		Value:  frame(99, []byte(`{"calendar_event_id":"evt-1","status":"dismissed"}`)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("calendar_event.status_changed")},
			{Key: "user_id", Value: []byte("user-2")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("boom")}
	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	before := testutil.ToFloat64(handlerErrorCounter.WithLabelValues("calendar_event_status", "calendar_event.status_changed"))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
	require.Equal(t, before+1, testutil.ToFloat64(handlerErrorCounter.WithLabelValues("calendar_event_status", "calendar_event.status_changed")))
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	messages := []kafka.Message{
		{Topic: "calendar_activity_events", Value: []byte{0, 1}},
		{Topic: "calendar_activity_events", Value: frame(1, []byte(`{}`))},
		{Topic: "calendar_activity_events", Value: frame(1, []byte(`{broken`)), Headers: []kafka.Header{{Key: "event_type", Value: []byte("activity.created")}}},
	}

	reader := &stubReader{messages: messages}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler)

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("calendar_activity_events"))

	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)
	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.Equal(t, before+3, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("calendar_activity_events")))
}

func TestExtractAuditFieldsFallsBackToHeaderUser(t *testing.T) {
	fields := extractAuditFields(Message{
		UserID:  "user-9",
		Payload: []byte(`{"calendar_event_id":"evt-1","status":"cancelled"}`),
	})
	require.Equal(t, auditFields{UserID: "user-9", CalendarEventID: "evt-1", Status: "cancelled"}, fields)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
