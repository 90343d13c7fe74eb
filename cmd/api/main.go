package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/api"
	"github.com/SierraArcega/territory-plan-sub002/internal/auth"
	"github.com/SierraArcega/territory-plan-sub002/internal/config"
	"github.com/SierraArcega/territory-plan-sub002/internal/confirmation"
	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/inbox"
	"github.com/SierraArcega/territory-plan-sub002/internal/lock"
	applog "github.com/SierraArcega/territory-plan-sub002/internal/logger"
	"github.com/SierraArcega/territory-plan-sub002/internal/matching"
	"github.com/SierraArcega/territory-plan-sub002/internal/outbox"
	"github.com/SierraArcega/territory-plan-sub002/internal/persistence/memory"
	persistence "github.com/SierraArcega/territory-plan-sub002/internal/persistence/postgres"
	"github.com/SierraArcega/territory-plan-sub002/internal/provider"
	"github.com/SierraArcega/territory-plan-sub002/internal/provider/ics"
	"github.com/SierraArcega/territory-plan-sub002/internal/syncer"
	httptransport "github.com/SierraArcega/territory-plan-sub002/internal/transport/http"
)

// store is everything the API needs from persistence; both backends satisfy it.
type store interface {
	domain.ConnectionStore
	domain.EventRepository
	domain.ConfirmStore
	domain.Directory
}

func main() {
	cfg := config.Load()
	logger := applog.Must("calendar-sync-api", cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo       store
		pool       *pgxpool.Pool
		dispatcher *outbox.Dispatcher
	)
	if cfg.PostgresURL == "" {
		logger.Warn("POSTGRES_URL not set, using the in-memory store")
		repo = memory.NewStore()
	} else {
		var err error
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		repo = persistence.NewRepository(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logger.Named("kafka"))
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
		go dispatcher.Start(ctx)
	}

	locker, closeLocker, err := newLocker(cfg, pool, logger)
	if err != nil {
		logger.Fatal("failed to configure sync lock", zap.Error(err))
	}
	defer closeLocker()

	rules := matching.DefaultRules()
	if cfg.MatchRulesFile != "" {
		rules, err = matching.LoadRules(cfg.MatchRulesFile)
		if err != nil {
			logger.Fatal("failed to load match rules", zap.String("path", cfg.MatchRulesFile), zap.Error(err))
		}
	}

	providers := provider.NewRegistry().
		Register(domain.ProviderICS, ics.NewClient(cfg.ProviderTimeout, logger.Named("ics")))

	orchestrator := syncer.NewOrchestrator(repo, repo, providers, matching.NewEngine(repo, rules), locker, syncer.Options{
		LookBack:  cfg.SyncLookBack,
		LookAhead: cfg.SyncLookAhead,
		Logger:    logger.Named("sync"),
	})
	confirmer := confirmation.NewService(repo, repo, repo, logger.Named("confirmation"))
	inboxService := inbox.NewService(repo, repo)

	var scheduler *syncer.Scheduler
	if !strings.EqualFold(cfg.SyncSchedule, "off") {
		scheduler, err = syncer.NewScheduler(orchestrator, cfg.SyncSchedule, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("invalid sync schedule", zap.Error(err))
		}
		scheduler.Start(ctx)
	}

	handler := api.NewHandler(repo, orchestrator, confirmer, inboxService, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * cfg.ProviderTimeout,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(logger)(authMiddleware.Wrap(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("calendar sync api listening",
			zap.String("address", cfg.HTTPAddress),
			zap.String("lock_backend", cfg.SyncLockBackend),
			zap.Bool("postgres", pool != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	logger.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}

func newLocker(cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) (domain.SyncLocker, func(), error) {
	switch cfg.SyncLockBackend {
	case config.LockBackendMemory:
		return lock.NewMemory(), func() {}, nil
	case config.LockBackendPostgres:
		if pool == nil {
			return nil, nil, errors.New("postgres lock backend requires POSTGRES_URL")
		}
		return persistence.NewAdvisoryLocker(pool, logger.Named("lock")), func() {}, nil
	case config.LockBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closeFn := func() { _ = client.Close() }
		return lock.NewRedis(client, cfg.SyncLockTTL, logger.Named("lock")), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.SyncLockBackend)
	}
}
