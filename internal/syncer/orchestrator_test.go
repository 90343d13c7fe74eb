package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/lock"
	"github.com/SierraArcega/territory-plan-sub002/internal/matching"
	"github.com/SierraArcega/territory-plan-sub002/internal/persistence/memory"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubProvider struct {
	mu     sync.Mutex
	events []domain.RawEvent
	err    error
	onList func(ctx context.Context)
	calls  int
}

func (p *stubProvider) ListEvents(ctx context.Context, conn domain.CalendarConnection, window domain.Window) ([]domain.RawEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.onList != nil {
		p.onList(ctx)
	}
	if p.err != nil {
		return nil, p.err
	}
	return append([]domain.RawEvent(nil), p.events...), nil
}

func (p *stubProvider) set(events ...domain.RawEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = events
	p.err = nil
}

type fixture struct {
	store    *memory.Store
	provider *stubProvider
	locker   *lock.Memory
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddDistrict(domain.District{LEAID: "1712345", Name: "Springfield ISD", State: "IL", Domains: []string{"springfield-isd.org"}})
	store.AddContact(domain.Contact{ID: "contact-jane", LEAID: "1712345", Name: "Jane Doe", Email: "jane@springfield-isd.org"})
	store.AddPlan(domain.TerritoryPlan{ID: "plan-midwest", UserID: "user-1", Name: "Midwest", Color: "#2563eb", LEAIDs: []string{"1712345"}})

	require.NoError(t, store.SaveConnection(context.Background(), domain.CalendarConnection{
		ID:          "conn-1",
		UserID:      "user-1",
		Provider:    domain.ProviderICS,
		AccountRef:  "rep@fullmind.com",
		OrgDomain:   "fullmind.com",
		SyncEnabled: true,
		Status:      domain.ConnectionStatusConnected,
	}))

	provider := &stubProvider{}
	locker := lock.NewMemory()
	orch := NewOrchestrator(store, store, provider, matching.NewEngine(store, matching.DefaultRules()), locker, Options{
		Now: func() time.Time { return fixedNow },
	})
	return &fixture{store: store, provider: provider, locker: locker, orch: orch}
}

func janeDemo() domain.RawEvent {
	return domain.RawEvent{
		ProviderEventID: "evt-demo",
		Title:           "Springfield demo",
		StartAt:         fixedNow.Add(48 * time.Hour),
		EndAt:           fixedNow.Add(49 * time.Hour),
		Attendees: []domain.Attendee{
			{Email: "rep@fullmind.com"},
			{Email: "Jane@springfield-isd.org", Name: "Jane Doe", ResponseStatus: "accepted"},
		},
		Version: "1",
	}
}

func quickSync() domain.RawEvent {
	return domain.RawEvent{
		ProviderEventID: "evt-quick",
		Title:           "Quick sync",
		StartAt:         fixedNow.Add(-24 * time.Hour),
		EndAt:           fixedNow.Add(-23 * time.Hour),
		Attendees:       []domain.Attendee{{Email: "x@gmail.com"}},
		Version:         "1",
	}
}

func (f *fixture) staged(t *testing.T, providerEventID string) domain.CalendarEvent {
	t.Helper()
	event, err := f.store.GetEventByProviderID(context.Background(), "conn-1", providerEventID)
	require.NoError(t, err)
	require.NotNil(t, event)
	return *event
}

func TestSyncStagesNewEventsWithSuggestions(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo(), quickSync())

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 2, result.EventsProcessed)
	require.Equal(t, 2, result.NewEvents)
	require.Empty(t, result.Errors)

	demo := f.staged(t, "evt-demo")
	require.Equal(t, domain.EventStatusPending, demo.Status)
	require.Equal(t, domain.ConfidenceHigh, demo.Suggestion.Confidence)
	require.Equal(t, "plan-midwest", demo.Suggestion.PlanID)
	require.Equal(t, "user-1", demo.UserID)
	require.NotEmpty(t, demo.ContentHash)

	quick := f.staged(t, "evt-quick")
	require.Equal(t, domain.ConfidenceNone, quick.Suggestion.Confidence)

	conn, err := f.store.GetConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionStatusConnected, conn.Status)
	require.NotNil(t, conn.LastSyncAt)
	require.True(t, conn.LastSyncAt.Equal(fixedNow))
}

func TestSyncTwiceWithoutChangesIsNoop(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo(), quickSync())

	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 2, result.EventsProcessed)
	require.Zero(t, result.NewEvents)
	require.Zero(t, result.UpdatedEvents)
	require.Zero(t, result.CancelledEvents)
}

func TestSyncRematchesChangedPendingEvent(t *testing.T) {
	f := newFixture(t)
	first := janeDemo()
	first.Attendees = []domain.Attendee{{Email: "someone@springfield-isd.org"}}
	f.provider.set(first)

	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, domain.ConfidenceMedium, f.staged(t, "evt-demo").Suggestion.Confidence)

	f.provider.set(janeDemo())
	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.UpdatedEvents)

	updated := f.staged(t, "evt-demo")
	require.Equal(t, domain.ConfidenceHigh, updated.Suggestion.Confidence)
	require.Equal(t, []string{"contact-jane"}, updated.Suggestion.ContactIDs)
}

func TestSyncDetectsVersionBumpWithSameContent(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	bumped := janeDemo()
	bumped.Version = "2"
	f.provider.set(bumped)

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.UpdatedEvents)
	require.Equal(t, "2", f.staged(t, "evt-demo").ProviderVersion)
}

func TestSyncNeverRematchesConfirmedEvent(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	demo := f.staged(t, "evt-demo")
	require.NoError(t, f.store.ConfirmEvent(context.Background(), demo.ID, domain.Activity{ID: "act-1", UserID: "user-1"}))

	moved := janeDemo()
	moved.Title = "Moved: internal planning"
	moved.Attendees = []domain.Attendee{{Email: "x@gmail.com"}}
	moved.Version = "2"
	f.provider.set(moved)

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.UpdatedEvents)

	after := f.staged(t, "evt-demo")
	require.Equal(t, domain.EventStatusConfirmed, after.Status)
	require.Equal(t, "act-1", after.ActivityID)
	require.Equal(t, "Moved: internal planning", after.Title)
	require.Equal(t, demo.Suggestion, after.Suggestion)
}

func TestSyncLeavesDismissedEventUntouched(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	demo := f.staged(t, "evt-demo")
	require.NoError(t, f.store.TransitionEvent(context.Background(), demo.ID, domain.EventStatusDismissed))

	changed := janeDemo()
	changed.Title = "Renamed"
	f.provider.set(changed)

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Zero(t, result.UpdatedEvents)

	after := f.staged(t, "evt-demo")
	require.Equal(t, domain.EventStatusDismissed, after.Status)
	require.Equal(t, demo.Suggestion, after.Suggestion)
}

func TestSyncCancelsOnlyMissingPendingEventsInsideWindow(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo(), quickSync())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	old := domain.CalendarEvent{
		ID:              "evt-old",
		ConnectionID:    "conn-1",
		UserID:          "user-1",
		ProviderEventID: "provider-old",
		Title:           "Last quarter review",
		StartAt:         fixedNow.Add(-60 * 24 * time.Hour),
		EndAt:           fixedNow.Add(-60*24*time.Hour + time.Hour),
		Status:          domain.EventStatusPending,
	}
	require.NoError(t, f.store.InsertEvent(context.Background(), old))

	confirmed := f.staged(t, "evt-quick")
	require.NoError(t, f.store.ConfirmEvent(context.Background(), confirmed.ID, domain.Activity{ID: "act-q", UserID: "user-1"}))

	f.provider.set()
	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.CancelledEvents)

	require.Equal(t, domain.EventStatusCancelled, f.staged(t, "evt-demo").Status)
	require.Equal(t, domain.EventStatusConfirmed, f.staged(t, "evt-quick").Status)
	require.Equal(t, domain.EventStatusPending, f.staged(t, "provider-old").Status, "events outside the window are never cancelled")

	result, err = f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Zero(t, result.CancelledEvents, "cancelled events are not cancelled again")
	require.Equal(t, domain.EventStatusCancelled, f.staged(t, "evt-demo").Status)
}

func TestSyncKeepsInstancesOfUnreadableSeries(t *testing.T) {
	f := newFixture(t)
	weekly := func(start time.Time) domain.RawEvent {
		return domain.RawEvent{
			ProviderEventID: "series-1/" + start.UTC().Format("20060102T150405Z"),
			Title:           "Springfield weekly check-in",
			StartAt:         start,
			EndAt:           start.Add(time.Hour),
			Version:         "1",
		}
	}
	first := fixedNow.Add(24 * time.Hour)
	f.provider.set(weekly(first), weekly(first.Add(7*24*time.Hour)), weekly(first.Add(14*24*time.Hour)), janeDemo())
	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 4, result.NewEvents)

	// The series no longer decodes and a lookalike id shares its prefix but not its slash.
	f.provider.set(
		domain.RawEvent{ProviderEventID: "series-1", Err: errors.New("DTEND before DTSTART")},
		domain.RawEvent{ProviderEventID: "series", Err: errors.New("bad RRULE")},
	)
	result, err = f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.CancelledEvents)
	require.Len(t, result.Errors, 2)

	for _, start := range []time.Time{first, first.Add(7 * 24 * time.Hour), first.Add(14 * 24 * time.Hour)} {
		require.Equal(t, domain.EventStatusPending, f.staged(t, weekly(start).ProviderEventID).Status)
	}
	require.Equal(t, domain.EventStatusCancelled, f.staged(t, "evt-demo").Status)
}

func TestSyncFetchFailureNeverCancels(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	f.provider.mu.Lock()
	f.provider.err = errors.New("feed returned 503")
	f.provider.mu.Unlock()

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Zero(t, result.CancelledEvents)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "feed returned 503")
	require.Equal(t, domain.EventStatusPending, f.staged(t, "evt-demo").Status)

	conn, err := f.store.GetConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionStatusError, conn.Status)
	require.Contains(t, conn.LastError, "503")
	require.NotNil(t, conn.LastSyncAt)
}

func TestSyncRecordsPerEventErrorsAndKeepsGoing(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo(), quickSync())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	broken := domain.RawEvent{ProviderEventID: "evt-demo", Err: errors.New("bad DTSTART")}
	f.provider.set(broken, quickSync())

	result, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "evt-demo")
	require.Zero(t, result.CancelledEvents, "an undecodable event was still seen")
	require.Equal(t, domain.EventStatusPending, f.staged(t, "evt-demo").Status)
}

func TestSyncRejectsMissingOrDisabledConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Sync(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotConnected)

	disabled := false
	_, err = f.store.UpdateConnectionSettings(context.Background(), "user-1", domain.ConnectionSettings{SyncEnabled: &disabled})
	require.NoError(t, err)

	_, err = f.orch.Sync(context.Background(), "conn-1")
	require.ErrorIs(t, err, domain.ErrNotConnected)
	require.Zero(t, f.provider.calls)
}

func TestSyncFailsFastWhenAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	release, err := f.locker.TryLock(context.Background(), "conn-1")
	require.NoError(t, err)
	defer release()

	_, err = f.orch.Sync(context.Background(), "conn-1")
	require.ErrorIs(t, err, domain.ErrSyncInProgress)
	require.Zero(t, f.provider.calls)
}

func TestSyncStopsAtEventBoundaryOnCancel(t *testing.T) {
	f := newFixture(t)
	f.provider.set(janeDemo())
	_, err := f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.provider.set(quickSync())
	f.provider.onList = func(context.Context) { cancel() }

	result, err := f.orch.Sync(ctx, "conn-1")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, result.NewEvents)
	require.Zero(t, result.CancelledEvents)
	require.Equal(t, domain.EventStatusPending, f.staged(t, "evt-demo").Status)

	_, err = f.orch.Sync(context.Background(), "conn-1")
	require.NoError(t, err, "the lock is released after a cancelled run")
}

func TestContentHashIgnoresAttendeeOrder(t *testing.T) {
	a := domain.CalendarEvent{
		Title:     "Demo",
		StartAt:   fixedNow,
		EndAt:     fixedNow.Add(time.Hour),
		Attendees: []domain.Attendee{{Email: "a@x.org"}, {Email: "B@y.org"}},
	}
	b := a
	b.Attendees = []domain.Attendee{{Email: "b@y.org"}, {Email: "a@x.org"}}
	require.Equal(t, ContentHash(a), ContentHash(b))

	c := a
	c.Location = "Room 4"
	require.NotEqual(t, ContentHash(a), ContentHash(c))
}
