// Package main is the entry point for the Replenix API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replenix/internal/config"
	"replenix/internal/domain/kanban"
	"replenix/internal/domain/ledger"
	"replenix/internal/domain/orders"
	"replenix/internal/domain/receiving"
	v1 "replenix/internal/infrastructure/http/v1"
	"replenix/internal/infrastructure/messaging"
	"replenix/internal/infrastructure/numerator"
	"replenix/internal/infrastructure/storage/postgres"
	"replenix/internal/infrastructure/storage/postgres/kanban_repo"
	"replenix/internal/infrastructure/storage/postgres/ledger_repo"
	"replenix/internal/infrastructure/storage/postgres/order_repo"
	"replenix/internal/infrastructure/storage/postgres/receiving_repo"
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

	ctx := context.Background()
	log.Info("starting replenix server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.Database.ApplySchema {
		if err := postgres.ApplySchema(ctx, pool); err != nil {
			log.Fatalw("failed to apply schema", "error", err)
		}
		log.Info("database schema applied")
	}

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	auditStore, err := postgres.NewAuditStore(txManager)
	if err != nil {
		log.Fatalw("failed to create audit store", "error", err)
	}

	// --- Event bus ---
	publisher, err := messaging.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create event publisher", "error", err, "backend", cfg.Events.Backend)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnw("failed to close event publisher", "error", err)
		}
	}()

	// --- Domain services ---
	ledgerService := ledger.NewService(txManager, ledger_repo.NewLedgerRepo(txManager), auditStore, publisher)
	orderService := orders.NewService(txManager, order_repo.NewOrderRepo(txManager), auditStore)
	advancer := kanban.NewAdvancer(kanban_repo.NewCardRepo(txManager), auditStore)

	receivingService := receiving.NewService(receiving.Deps{
		TxManager: txManager,
		Repo:      receiving_repo.NewReceiptRepo(txManager),
		Orders:    orderService,
		Cards:     advancer,
		Ledger:    ledgerService,
		Numerator: numerator.New(numerator.ReceiptTarget),
		Audit:     auditStore,
		Publisher: publisher,
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:             log,
		DB:                 pool,
		Receiving:          receivingService,
		Inventory:          ledgerService,
		WorkOrders:         orderService,
		IdempotencyStore:   postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
		IdempotencyEnabled: cfg.Idempotency.Enabled,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.Address, "events_backend", cfg.Events.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	pool.LogStats(ctx)
	log.Info("server stopped")
}
