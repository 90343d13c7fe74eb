package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// releaseScript deletes the key only if it still holds our token, so an expired lock that was
// re-acquired by another process is never released by the late holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript pushes the expiry out only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a SyncLocker shared by every process pointing at the same Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedis constructs a Redis locker. The TTL bounds how long a crashed holder blocks syncs;
// a live holder keeps extending it every third of the TTL until it releases.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, prefix: "calendar-sync:lock:", logger: logger}
}

// TryLock implements domain.SyncLocker.
func (r *Redis) TryLock(ctx context.Context, connectionID string) (func(), error) {
	key := r.prefix + connectionID
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrSyncInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.renew(key, token, connectionID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
				r.logger.Warn("release sync lock failed", zap.String("connection_id", connectionID), zap.Error(err))
			}
		})
	}, nil
}

// renew extends the key until stop is closed or the key no longer holds token.
func (r *Redis) renew(key, token, connectionID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		renewCtx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		extended, err := renewScript.Run(renewCtx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			// Transient; the next tick retries while the current TTL still holds.
			r.logger.Warn("renew sync lock failed", zap.String("connection_id", connectionID), zap.Error(err))
		case extended == 0:
			r.logger.Warn("sync lock lost before release", zap.String("connection_id", connectionID))
			return
		}
	}
}
