package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/model"
)

// RedisSink stores the latest snapshot per candidate and test, publishes
// every update on the test's channel, and queues a diagnostics record
// once an attempt becomes terminal.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger

	mu     sync.Mutex
	queued map[string]bool
}

// NewRedisSink creates a new RedisSink.
func NewRedisSink(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisSink {
	return &RedisSink{
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "redis_sink").Logger(),
		queued: make(map[string]bool),
	}
}

func (s *RedisSink) Save(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := config.CacheKey.AssessmentSnapshotKey(snap.UserID, snap.TestID)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, payload, s.ttl)
	pipe.Publish(ctx, config.CacheKey.AssessmentEventsChannel(snap.TestID), payload)

	marker := diagnosticsMarker(key, snap)
	queue := snap.Terminal() && !s.alreadyQueued(marker)
	if queue {
		diag, err := json.Marshal(model.NewDiagnostics(snap))
		if err != nil {
			return fmt.Errorf("marshal diagnostics: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.PersistDiagnosticsQueue, diag)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if queue {
		s.markQueued(marker)
		s.log.Info().
			Int("test_id", snap.TestID).
			Bool("completed", snap.AssessmentCompleted).
			Msg("Diagnostics queued")
	}
	return nil
}

// Load reads the stored snapshot for a candidate and test.
func (s *RedisSink) Load(ctx context.Context, userID, testID int) (*model.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.AssessmentSnapshotKey(userID, testID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisSink) alreadyQueued(marker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued[marker]
}

func (s *RedisSink) markQueued(marker string) {
	s.mu.Lock()
	s.queued[marker] = true
	s.mu.Unlock()
}

// diagnosticsMarker identifies one terminal outcome so it is queued once.
func diagnosticsMarker(key string, snap model.Snapshot) string {
	return fmt.Sprintf("%s|%s|%t|%s", key, snap.ThreadID, snap.AssessmentCompleted, snap.ConnectionStatus)
}
