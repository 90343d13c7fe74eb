package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// AdvisoryLocker serialises syncs across processes with session-level advisory locks. The pool
// connection that took the lock is held until release.
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAdvisoryLocker constructs an AdvisoryLocker.
func NewAdvisoryLocker(pool *pgxpool.Pool, logger *zap.Logger) *AdvisoryLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdvisoryLocker{pool: pool, logger: logger}
}

// TryLock implements domain.SyncLocker.
func (l *AdvisoryLocker) TryLock(ctx context.Context, connectionID string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := "calendar-sync:" + connectionID
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, domain.ErrSyncInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(releaseCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				// Closing the session drops every lock it holds.
				l.logger.Warn("advisory unlock failed, closing session", zap.String("connection_id", connectionID), zap.Error(err))
				_ = conn.Conn().Close(releaseCtx)
			}
			conn.Release()
		})
	}, nil
}
