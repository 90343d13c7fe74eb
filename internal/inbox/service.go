// Package inbox serves read-only views of the staged event inbox.
package inbox

import (
	"context"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Status describes a user's calendar connection and outstanding work.
type Status struct {
	Connected    bool
	Connection   *domain.CalendarConnection
	PendingCount int
}

// Query narrows an event listing.
type Query struct {
	Status     *domain.EventStatus
	Confidence *domain.Confidence
	Cursor     *domain.Cursor
	Limit      int
}

// Page is one slice of a listing. Next is nil on the last page.
type Page struct {
	Events []domain.CalendarEvent
	Next   *domain.Cursor
}

// Service answers inbox queries.
type Service struct {
	conns  domain.ConnectionStore
	events domain.EventRepository
}

// NewService constructs a Service.
func NewService(conns domain.ConnectionStore, events domain.EventRepository) *Service {
	return &Service{conns: conns, events: events}
}

// Status reports whether the user has a usable connection and how many events await review.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	conn, err := s.conns.GetConnectionByUser(ctx, userID)
	if err != nil {
		return Status{}, &domain.PersistenceError{Op: "load connection", Err: err}
	}
	if conn == nil {
		return Status{}, nil
	}

	pending, err := s.events.CountEvents(ctx, conn.ID, domain.EventStatusPending)
	if err != nil {
		return Status{}, &domain.PersistenceError{Op: "count pending events", Err: err}
	}
	return Status{
		Connected:    conn.Status != domain.ConnectionStatusDisconnected,
		Connection:   conn,
		PendingCount: pending,
	}, nil
}

// Events lists the user's staged events, newest start first.
func (s *Service) Events(ctx context.Context, userID string, q Query) (Page, error) {
	conn, err := s.conns.GetConnectionByUser(ctx, userID)
	if err != nil {
		return Page{}, &domain.PersistenceError{Op: "load connection", Err: err}
	}
	if conn == nil {
		return Page{}, domain.ErrNotConnected
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	events, next, err := s.events.ListEvents(ctx, domain.EventFilter{
		ConnectionID: conn.ID,
		Status:       q.Status,
		Confidence:   q.Confidence,
		Cursor:       q.Cursor,
		Limit:        limit,
	})
	if err != nil {
		return Page{}, &domain.PersistenceError{Op: "list events", Err: err}
	}
	return Page{Events: events, Next: next}, nil
}
