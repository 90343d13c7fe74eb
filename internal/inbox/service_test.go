package inbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/persistence/memory"
)

func seeded(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.SaveConnection(ctx, domain.CalendarConnection{
		ID:          "conn-1",
		UserID:      "user-1",
		Provider:    domain.ProviderGoogle,
		SyncEnabled: true,
		Status:      domain.ConnectionStatusConnected,
	}))

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertEvent(ctx, domain.CalendarEvent{
			ID:              fmt.Sprintf("evt-%d", i),
			ConnectionID:    "conn-1",
			UserID:          "user-1",
			ProviderEventID: fmt.Sprintf("p-%d", i),
			StartAt:         base.Add(time.Duration(i) * time.Hour),
			Status:          domain.EventStatusPending,
			Suggestion:      domain.MatchSuggestion{Confidence: domain.ConfidenceLow},
		}))
	}
	require.NoError(t, store.TransitionEvent(ctx, "evt-0", domain.EventStatusDismissed))
	return NewService(store, store), store
}

func TestStatus(t *testing.T) {
	svc, _ := seeded(t)

	status, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, status.Connected)
	require.Equal(t, 4, status.PendingCount)
	require.Equal(t, "conn-1", status.Connection.ID)

	none, err := svc.Status(context.Background(), "user-2")
	require.NoError(t, err)
	require.False(t, none.Connected)
	require.Nil(t, none.Connection)
}

func TestEventsPaginatesWithCursor(t *testing.T) {
	svc, _ := seeded(t)
	pending := domain.EventStatusPending

	first, err := svc.Events(context.Background(), "user-1", Query{Status: &pending, Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Events, 3)
	require.Equal(t, "evt-4", first.Events[0].ID)
	require.NotNil(t, first.Next)

	second, err := svc.Events(context.Background(), "user-1", Query{Status: &pending, Limit: 3, Cursor: first.Next})
	require.NoError(t, err)
	require.Len(t, second.Events, 1)
	require.Equal(t, "evt-1", second.Events[0].ID)
	require.Nil(t, second.Next)

	all, err := svc.Events(context.Background(), "user-1", Query{})
	require.NoError(t, err)
	require.Len(t, all.Events, 5)
}

func TestEventsRequiresConnection(t *testing.T) {
	svc, _ := seeded(t)

	_, err := svc.Events(context.Background(), "user-2", Query{})
	require.ErrorIs(t, err, domain.ErrNotConnected)
}
