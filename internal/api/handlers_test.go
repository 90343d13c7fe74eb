package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SierraArcega/territory-plan-sub002/internal/auth"
	"github.com/SierraArcega/territory-plan-sub002/internal/confirmation"
	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/inbox"
	"github.com/SierraArcega/territory-plan-sub002/internal/lock"
	"github.com/SierraArcega/territory-plan-sub002/internal/matching"
	"github.com/SierraArcega/territory-plan-sub002/internal/persistence/memory"
	"github.com/SierraArcega/territory-plan-sub002/internal/syncer"
)

type stubProvider struct {
	mu     sync.Mutex
	events []domain.RawEvent
}

func (p *stubProvider) ListEvents(context.Context, domain.CalendarConnection, domain.Window) ([]domain.RawEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.RawEvent(nil), p.events...), nil
}

type testEnv struct {
	store    *memory.Store
	provider *stubProvider
	locker   *lock.Memory
	mux      *http.ServeMux
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	store.AddDistrict(domain.District{LEAID: "1712345", Name: "Springfield ISD", State: "IL", Domains: []string{"springfield-isd.org"}})
	store.AddContact(domain.Contact{ID: "contact-jane", LEAID: "1712345", Name: "Jane Doe", Email: "jane@springfield-isd.org"})
	store.AddPlan(domain.TerritoryPlan{ID: "plan-midwest", UserID: "user-1", Name: "Midwest", Color: "#2563eb", LEAIDs: []string{"1712345"}})

	tomorrow := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	provider := &stubProvider{events: []domain.RawEvent{
		{
			ProviderEventID: "evt-demo",
			Title:           "Springfield demo",
			StartAt:         tomorrow,
			EndAt:           tomorrow.Add(time.Hour),
			Attendees: []domain.Attendee{
				{Email: "Jane@springfield-isd.org"},
				{Email: "rep@fullmind.com"},
			},
		},
		{
			ProviderEventID: "evt-quick",
			Title:           "Quick sync",
			StartAt:         tomorrow.Add(2 * time.Hour),
			EndAt:           tomorrow.Add(150 * time.Minute),
			Attendees:       []domain.Attendee{{Email: "someone@gmail.com"}},
		},
	}}

	locker := lock.NewMemory()
	orch := syncer.NewOrchestrator(store, store, provider, matching.NewEngine(store, matching.DefaultRules()), locker, syncer.Options{})
	handler := NewHandler(store, orch, confirmation.NewService(store, store, store, nil), inbox.NewService(store, store), nil)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return &testEnv{store: store, provider: provider, locker: locker, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, user string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		granted := make(map[string]struct{}, len(scopes))
		for _, s := range scopes {
			granted[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
			Subject:   user,
			Scopes:    granted,
			ExpiresAt: time.Now().Add(time.Hour),
		}))
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) connect(t *testing.T) ConnectionView {
	t.Helper()
	rr := e.do(t, http.MethodPut, "/v1/calendar/connection", ConnectRequest{
		Provider:   domain.ProviderICS,
		AccountRef: "https://calendar.example.com/private/rep.ics",
		OrgDomain:  "fullmind.com",
	}, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var view ConnectionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return payload["type"]
}

func TestSyncConfirmFlow(t *testing.T) {
	env := newEnv(t)
	conn := env.connect(t)
	require.True(t, conn.SyncEnabled)
	require.Equal(t, "connected", conn.Status)

	rr := env.do(t, http.MethodPost, "/v1/calendar/connections/"+conn.ID+"/sync", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result syncer.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, 2, result.NewEvents)
	require.Empty(t, result.Errors)

	rr = env.do(t, http.MethodGet, "/v1/calendar/status", nil, "user-1", auth.ScopeCalendarRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.True(t, status.Connected)
	require.Equal(t, 2, status.PendingCount)

	rr = env.do(t, http.MethodGet, "/v1/calendar/events?status=pending&confidence=high", nil, "user-1", auth.ScopeCalendarRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var list ListEventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	demo := list.Items[0]
	require.Equal(t, "evt-demo", demo.ProviderEventID)
	require.Equal(t, "1712345", demo.Suggestion.DistrictLEAID)
	require.Equal(t, []string{"contact-jane"}, demo.Suggestion.ContactIDs)
	require.Equal(t, "plan-midwest", demo.Suggestion.PlanID)

	rr = env.do(t, http.MethodPost, "/v1/calendar/events/batch-confirm", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var batch confirmation.BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &batch))
	require.Equal(t, 1, batch.Confirmed)
	require.Len(t, batch.ActivityIDs, 1)

	rr = env.do(t, http.MethodPost, "/v1/calendar/events/"+demo.ID+"/confirm", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "invalid_transition", decodeError(t, rr))

	rr = env.do(t, http.MethodGet, "/v1/calendar/events?status=pending", nil, "user-1", auth.ScopeCalendarRead)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	quick := list.Items[0]
	require.Equal(t, "none", quick.Suggestion.Confidence)

	rr = env.do(t, http.MethodPost, "/v1/calendar/events/"+quick.ID+"/confirm", confirmation.Overrides{ActivityType: "check_in", DistrictLEAIDs: []string{"1712345"}}, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var confirmed ConfirmResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &confirmed))
	require.NotEmpty(t, confirmed.ActivityID)

	activities := env.store.Activities()
	require.Len(t, activities, 2)
}

func TestDismissEvent(t *testing.T) {
	env := newEnv(t)
	conn := env.connect(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/calendar/connections/"+conn.ID+"/sync", nil, "user-1", auth.ScopeCalendarWrite).Code)

	event, err := env.store.GetEventByProviderID(context.Background(), conn.ID, "evt-quick")
	require.NoError(t, err)

	rr := env.do(t, http.MethodPatch, "/v1/calendar/events/"+event.ID+"/dismiss", nil, "user-2", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPatch, "/v1/calendar/events/"+event.ID+"/dismiss", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodPatch, "/v1/calendar/events/"+event.ID+"/dismiss", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestSyncErrors(t *testing.T) {
	env := newEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/calendar/connections/missing/sync", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusNotFound, rr.Code)

	conn := env.connect(t)

	rr = env.do(t, http.MethodPost, "/v1/calendar/connections/"+conn.ID+"/sync", nil, "user-2", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusNotFound, rr.Code)

	release, err := env.locker.TryLock(context.Background(), conn.ID)
	require.NoError(t, err)
	rr = env.do(t, http.MethodPost, "/v1/calendar/connections/"+conn.ID+"/sync", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "sync_in_progress", decodeError(t, rr))
	release()

	disabled := false
	rr = env.do(t, http.MethodPatch, "/v1/calendar/connection", SettingsRequest{SyncEnabled: &disabled}, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/calendar/connections/"+conn.ID+"/sync", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusPreconditionFailed, rr.Code)
	require.Equal(t, "not_connected", decodeError(t, rr))
}

func TestEventsRequireConnection(t *testing.T) {
	env := newEnv(t)

	rr := env.do(t, http.MethodGet, "/v1/calendar/events", nil, "user-1", auth.ScopeCalendarRead)
	require.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/calendar/status", nil, "user-1", auth.ScopeCalendarRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.False(t, status.Connected)
	require.Nil(t, status.Connection)
}

func TestAuthorization(t *testing.T) {
	env := newEnv(t)

	rr := env.do(t, http.MethodGet, "/v1/calendar/status", nil, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/calendar/events/batch-confirm", nil, "user-1", auth.ScopeCalendarRead)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/calendar/status", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestConnectionLifecycle(t *testing.T) {
	env := newEnv(t)

	rr := env.do(t, http.MethodPut, "/v1/calendar/connection", ConnectRequest{Provider: "ics", AccountRef: "rep@fullmind.com"}, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeError(t, rr))

	first := env.connect(t)
	second := env.connect(t)
	require.Equal(t, first.ID, second.ID)

	domainName := "Fullmind.COM"
	rr = env.do(t, http.MethodPatch, "/v1/calendar/connection", SettingsRequest{OrgDomain: &domainName}, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated ConnectionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.Equal(t, "Fullmind.COM", updated.OrgDomain)

	rr = env.do(t, http.MethodDelete, "/v1/calendar/connection", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodDelete, "/v1/calendar/connection", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReconnectToAnotherCalendarKeepsConnectionAndRetiresPending(t *testing.T) {
	env := newEnv(t)
	first := env.connect(t)

	rr := env.do(t, http.MethodPost, "/v1/calendar/connections/"+first.ID+"/sync", nil, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	pending, err := env.store.ListPendingEvents(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	rr = env.do(t, http.MethodPut, "/v1/calendar/connection", ConnectRequest{
		Provider:   domain.ProviderICS,
		AccountRef: "https://calendar.example.com/private/other.ics",
		OrgDomain:  "fullmind.com",
	}, "user-1", auth.ScopeCalendarWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var moved ConnectionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &moved))
	require.Equal(t, first.ID, moved.ID)

	pending, err = env.store.ListPendingEvents(context.Background(), first.ID)
	require.NoError(t, err)
	require.Empty(t, pending, "events of the previous calendar are retired")

	demo, err := env.store.GetEventByProviderID(context.Background(), first.ID, "evt-demo")
	require.NoError(t, err)
	require.NotNil(t, demo)
	require.Equal(t, domain.EventStatusCancelled, demo.Status)
}

func TestListEventsRejectsBadQuery(t *testing.T) {
	env := newEnv(t)
	env.connect(t)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/calendar/events?status=maybe", nil, "user-1", auth.ScopeCalendarRead).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/calendar/events?confidence=certain", nil, "user-1", auth.ScopeCalendarRead).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/calendar/events?cursor=@@@", nil, "user-1", auth.ScopeCalendarRead).Code)
}
