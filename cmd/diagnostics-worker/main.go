package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/database"
	"github.com/stemsi/assessment-client/internal/logger"
	"github.com/stemsi/assessment-client/internal/repository"
	"github.com/stemsi/assessment-client/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("log_level", cfg.LogLevel).Msg("Starting diagnostics worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Start Worker ──────────────────────────────────────────────────
	diagnosticsRepo := repository.NewDiagnosticsRepository(pool)
	w := worker.NewDiagnosticsWorker(diagnosticsRepo, rdb, log)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(workerCtx)
		close(stopped)
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	workerCancel()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Worker drain timed out")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
