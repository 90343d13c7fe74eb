package domain

import (
	"context"
	"time"
)

// Window bounds a provider fetch.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// RawEvent is one event as returned by a calendar provider. Err is set when the provider could
// not decode this particular event.
type RawEvent struct {
	ProviderEventID string
	Title           string
	Description     string
	StartAt         time.Time
	EndAt           time.Time
	Location        string
	Attendees       []Attendee
	// Version is the provider's modification marker (etag, sequence or last-modified).
	Version string
	Err     error
}

// Provider lists events from an external calendar. Implementations drain pagination before
// returning and apply their own request timeout.
type Provider interface {
	ListEvents(ctx context.Context, conn CalendarConnection, window Window) ([]RawEvent, error)
}

// SyncLocker serialises syncs per connection. TryLock never waits: it returns
// ErrSyncInProgress when another holder owns the lock.
type SyncLocker interface {
	TryLock(ctx context.Context, connectionID string) (release func(), err error)
}
