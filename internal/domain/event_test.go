package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionOnlyLeavesPending(t *testing.T) {
	all := []EventStatus{EventStatusPending, EventStatusConfirmed, EventStatusDismissed, EventStatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := from == EventStatusPending && to != EventStatusPending
			require.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseEventStatus(t *testing.T) {
	status, err := ParseEventStatus("dismissed")
	require.NoError(t, err)
	require.Equal(t, EventStatusDismissed, status)

	_, err = ParseEventStatus("archived")
	require.Error(t, err)
}

func TestWindowContainsIsHalfOpen(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(24 * time.Hour)}

	require.True(t, w.Contains(start))
	require.True(t, w.Contains(start.Add(23*time.Hour)))
	require.False(t, w.Contains(start.Add(24*time.Hour)))
	require.False(t, w.Contains(start.Add(-time.Second)))
}

func TestConnectionActive(t *testing.T) {
	conn := CalendarConnection{SyncEnabled: true, Status: ConnectionStatusError}
	require.True(t, conn.Active())

	conn.Status = ConnectionStatusDisconnected
	require.False(t, conn.Active())

	conn = CalendarConnection{SyncEnabled: false, Status: ConnectionStatusConnected}
	require.False(t, conn.Active())
}

func TestNormalizedOrgDomain(t *testing.T) {
	conn := CalendarConnection{OrgDomain: " @Fullmind.com "}
	require.Equal(t, "fullmind.com", conn.NormalizedOrgDomain())
}
