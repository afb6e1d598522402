// Package main is the entry point for the Replenix background worker.
// It periodically verifies every tenant's audit chain and purges expired
// idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"replenix/internal/config"
	appctx "replenix/internal/core/context"
	"replenix/internal/domain/audit"
	"replenix/internal/infrastructure/storage/postgres"
	"replenix/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("REPLENIX_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting replenix worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.ApplicationName = "replenix-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	auditStore, err := postgres.NewAuditStore(txManager)
	if err != nil {
		log.Fatalw("failed to create audit store", "error", err)
	}

	worker := NewWorker(
		audit.NewVerifier(auditStore),
		postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
		cfg.Worker,
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// ChainVerifier verifies every tenant's audit chain.
type ChainVerifier interface {
	VerifyAll(ctx context.Context) ([]audit.TenantReport, error)
}

// KeyCleaner deletes expired idempotency keys.
type KeyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker runs the periodic maintenance jobs.
type Worker struct {
	verifier ChainVerifier
	cleaner  KeyCleaner
	cfg      config.WorkerConfig
	log      *logger.Logger
}

func NewWorker(verifier ChainVerifier, cleaner KeyCleaner, cfg config.WorkerConfig, log *logger.Logger) *Worker {
	if cfg.VerifyInterval <= 0 {
		cfg.VerifyInterval = 15 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &Worker{
		verifier: verifier,
		cleaner:  cleaner,
		cfg:      cfg,
		log:      log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled. Both jobs run once at start.
func (w *Worker) Run(ctx context.Context) {
	verifyTicker := time.NewTicker(w.cfg.VerifyInterval)
	defer verifyTicker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	w.verifyChains(ctx)
	w.cleanupIdempotency(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-verifyTicker.C:
			w.verifyChains(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		}
	}
}

func (w *Worker) verifyChains(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	start := time.Now()
	reports, err := w.verifier.VerifyAll(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.WithContext(ctx).Errorw("audit chain verification aborted", "error", err)
	}

	var broken, entries int
	for _, r := range reports {
		entries += r.Verified
		if r.Break != nil {
			broken++
		}
	}
	w.log.WithContext(ctx).Infow("audit chains verified",
		"tenants", len(reports),
		"broken", broken,
		"entries", entries,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	n, err := w.cleaner.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.WithContext(ctx).Warnw("idempotency cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.log.WithContext(ctx).Infow("expired idempotency keys removed", "count", n)
	}
}
