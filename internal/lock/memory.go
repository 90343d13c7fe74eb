// Package lock provides per-connection sync exclusivity backends.
package lock

import (
	"context"
	"sync"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// Memory is a single-process SyncLocker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory constructs a Memory locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryLock implements domain.SyncLocker.
func (m *Memory) TryLock(ctx context.Context, connectionID string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[connectionID]; busy {
		return nil, domain.ErrSyncInProgress
	}
	m.held[connectionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, connectionID)
			m.mu.Unlock()
		})
	}, nil
}
