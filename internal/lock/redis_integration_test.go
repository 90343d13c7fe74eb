//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/testsupport"
)

func TestRedisLockOutlivesTTLWhileHeld(t *testing.T) {
	client := testsupport.StartRedis(t)
	locker := NewRedis(client, 300*time.Millisecond, zaptest.NewLogger(t))
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "conn-1")
	require.NoError(t, err)

	time.Sleep(time.Second)
	_, err = locker.TryLock(ctx, "conn-1")
	require.ErrorIs(t, err, domain.ErrSyncInProgress, "a held lock is renewed past its TTL")

	release()
	release()
	exists, err := client.Exists(ctx, "calendar-sync:lock:conn-1").Result()
	require.NoError(t, err)
	require.Zero(t, exists)

	again, err := locker.TryLock(ctx, "conn-1")
	require.NoError(t, err)
	again()
}

func TestRedisLockNeverReleasesAnotherHoldersKey(t *testing.T) {
	client := testsupport.StartRedis(t)
	locker := NewRedis(client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "conn-1")
	require.NoError(t, err)

	// Another process took the key over after ours was lost.
	require.NoError(t, client.Set(ctx, "calendar-sync:lock:conn-1", "other-token", time.Minute).Err())
	release()

	holder, err := client.Get(ctx, "calendar-sync:lock:conn-1").Result()
	require.NoError(t, err)
	require.Equal(t, "other-token", holder)
}
