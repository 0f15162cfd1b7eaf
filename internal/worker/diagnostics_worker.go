package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/model"
)

// DiagnosticsStore persists one diagnostics record.
type DiagnosticsStore interface {
	Save(ctx context.Context, d *model.Diagnostics) error
}

// DiagnosticsWorker consumes the diagnostics queue and persists each record.
type DiagnosticsWorker struct {
	store      DiagnosticsStore
	rdb        *redis.Client
	log        zerolog.Logger
	queue      string
	retryDelay time.Duration
}

// NewDiagnosticsWorker creates a new DiagnosticsWorker.
func NewDiagnosticsWorker(store DiagnosticsStore, rdb *redis.Client, log zerolog.Logger) *DiagnosticsWorker {
	return &DiagnosticsWorker{
		store:      store,
		rdb:        rdb,
		log:        log.With().Str("component", "diagnostics_worker").Logger(),
		queue:      config.WorkerKey.PersistDiagnosticsQueue,
		retryDelay: 5 * time.Second,
	}
}

// errBadRecord marks payloads that will never persist and must not be retried.
var errBadRecord = errors.New("bad diagnostics record")

// Start begins the infinite worker loop. Call in a goroutine.
func (w *DiagnosticsWorker) Start(ctx context.Context) {
	w.log.Info().Str("queue", w.queue).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *DiagnosticsWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, result[1]); err != nil {
		if errors.Is(err, errBadRecord) {
			w.log.Error().Err(err).Msg("Dropped diagnostics record")
			return
		}
		w.log.Error().Err(err).Dur("retry_in", w.retryDelay).Msg("Persist error, retrying")
		w.rdb.RPush(ctx, w.queue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

// handle decodes and persists one queued record.
func (w *DiagnosticsWorker) handle(ctx context.Context, raw string) error {
	var d model.Diagnostics
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return fmt.Errorf("%w: %v", errBadRecord, err)
	}
	if d.UserID <= 0 || d.TestID <= 0 {
		return fmt.Errorf("%w: missing user or test id", errBadRecord)
	}

	if err := w.store.Save(ctx, &d); err != nil {
		return err
	}

	w.log.Info().
		Int("user_id", d.UserID).
		Int("test_id", d.TestID).
		Bool("completed", d.Completed).
		Int("errors", len(d.ErrorLogs)).
		Msg("Diagnostics persisted")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *DiagnosticsWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, w.queue).Result()
		if err != nil {
			break
		}

		if err := w.handle(ctx, result); err != nil {
			if errors.Is(err, errBadRecord) {
				w.log.Error().Err(err).Msg("Drain dropped record")
				continue
			}
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, w.queue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
