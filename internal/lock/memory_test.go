package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

func TestMemoryLockIsPerConnection(t *testing.T) {
	locker := NewMemory()
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "conn-1")
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "conn-1")
	require.ErrorIs(t, err, domain.ErrSyncInProgress)

	other, err := locker.TryLock(ctx, "conn-2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := locker.TryLock(ctx, "conn-1")
	require.NoError(t, err)
	again()
}
