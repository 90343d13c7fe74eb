package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// SweepSummary counts the outcomes of one pass over every syncable connection.
type SweepSummary struct {
	Connections int
	Synced      int
	Busy        int
	Failed      int
}

// SyncAll runs Sync for every syncable connection in turn. Connections already being synced
// elsewhere are counted as busy; other failures are logged and the sweep moves on.
func (o *Orchestrator) SyncAll(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary

	conns, err := o.conns.ListSyncableConnections(ctx)
	if err != nil {
		return summary, &domain.PersistenceError{Op: "list syncable connections", Err: err}
	}
	summary.Connections = len(conns)

	for _, conn := range conns {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := o.Sync(ctx, conn.ID)
		switch {
		case err == nil && len(result.Errors) == 0:
			summary.Synced++
		case err == nil:
			summary.Synced++
			o.logger.Info("scheduled sync finished with errors",
				zap.String("connection_id", conn.ID),
				zap.Strings("errors", result.Errors),
			)
		case errors.Is(err, domain.ErrSyncInProgress):
			summary.Busy++
			o.logger.Info("scheduled sync skipped, already running", zap.String("connection_id", conn.ID))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return summary, err
		default:
			summary.Failed++
			o.logger.Warn("scheduled sync failed", zap.String("connection_id", conn.ID), zap.Error(err))
		}
	}
	return summary, nil
}

// Scheduler triggers SyncAll on a cron schedule.
type Scheduler struct {
	orch   *Orchestrator
	cron   *cron.Cron
	logger *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses schedule (standard five-field cron or a descriptor such as "@every 15m").
func NewScheduler(orch *Orchestrator, schedule string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{sugar: logger.Sugar()}
	s := &Scheduler{
		orch:   orch,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the schedule, cancels an in-flight sweep and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	summary, err := s.orch.SyncAll(ctx)
	if err != nil {
		s.logger.Warn("scheduled sweep aborted", zap.Error(err))
		return
	}
	s.logger.Info("scheduled sweep finished",
		zap.Int("connections", summary.Connections),
		zap.Int("synced", summary.Synced),
		zap.Int("busy", summary.Busy),
		zap.Int("failed", summary.Failed),
	)
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
