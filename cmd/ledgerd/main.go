package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parel-ledger/config"
	pgStorage "parel-ledger/internal/adapter/storage/postgres"
	redisStorage "parel-ledger/internal/adapter/storage/redis"
	"parel-ledger/internal/core/ports"
	"parel-ledger/internal/service"
	"parel-ledger/pkg/logger"

	"github.com/robfig/cron/v3"
)

// ledgerd is the ledger maintenance daemon. The wallet, transaction and
// transfer services are embedded by upstream applications as a library;
// this process runs the out-of-band work: the scheduled reconciliation
// sweep that replays every wallet's journal against its stored balance.
func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("ledgerd", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Bool("reconcile_enabled", cfg.Reconcile.Enabled).
		Str("schedule", cfg.Reconcile.Schedule).
		Msg("Starting ledger daemon")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories and the cross-replica sweep lock
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	sweepLock := redisStorage.NewSweepLock(rdb)

	reconcileSvc := service.NewReconcileService(
		walletRepo,
		ledgerRepo,
		sweepLock,
		cfg.Reconcile.PageSize,
		cfg.Reconcile.LockTTL,
		log,
	)

	// Probe backing stores alongside every sweep tick so a dead dependency
	// shows up in the logs before the next sweep silently fails.
	checkers := []ports.HealthChecker{
		pgStorage.NewHealthCheck(pool),
		redisStorage.NewHealthCheck(rdb),
	}

	// Schedule the reconciliation sweep
	scheduler := cron.New()
	if cfg.Reconcile.Enabled {
		_, err := scheduler.AddFunc(cfg.Reconcile.Schedule, func() {
			sweepCtx, cancel := context.WithTimeout(context.Background(), cfg.Reconcile.LockTTL)
			defer cancel()

			for _, hc := range checkers {
				if err := hc.Ping(sweepCtx); err != nil {
					log.Error().Err(err).Msg("Backing store unreachable, skipping sweep")
					return
				}
			}

			report, err := reconcileSvc.Sweep(sweepCtx)
			if err != nil {
				log.Error().Err(err).Msg("Reconciliation sweep failed")
				return
			}
			if report.Skipped {
				return
			}
			log.Info().
				Int("wallets_checked", report.WalletsChecked).
				Int("drifted", len(report.Drifted)).
				Msg("Scheduled sweep completed")
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule reconciliation sweep")
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.Reconcile.Schedule).Msg("Reconciliation sweep scheduled")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Timed out waiting for running jobs")
	}

	log.Info().Msg("Daemon exited")
}
