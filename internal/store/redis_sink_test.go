package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/model"
)

func newTestRedisSink(t *testing.T) (*RedisSink, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisSink(rdb, time.Hour, zerolog.Nop()), mr, rdb
}

func TestRedisSink_SaveStoresAndPublishes(t *testing.T) {
	sink, mr, rdb := newTestRedisSink(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, config.CacheKey.AssessmentEventsChannel(42))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	events := sub.Channel()

	snap := model.Snapshot{
		UserID:            7,
		TestID:            42,
		AssessmentID:      "a1",
		ThreadID:          "t1",
		AssessmentStarted: true,
		ConnectionStatus:  model.StatusConnected,
	}
	require.NoError(t, sink.Save(ctx, snap))

	key := "assessment:candidate:7:test:42:snapshot"
	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(key))

	var decoded model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stored), &decoded))
	assert.Equal(t, "a1", decoded.AssessmentID)
	assert.True(t, decoded.AssessmentStarted)

	select {
	case msg := <-events:
		assert.Equal(t, "assessment:test:42:events", msg.Channel)
		assert.JSONEq(t, stored, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}

	assert.False(t, mr.Exists(config.WorkerKey.PersistDiagnosticsQueue), "active attempts are not queued")
}

func TestRedisSink_QueuesDiagnosticsOncePerOutcome(t *testing.T) {
	sink, mr, _ := newTestRedisSink(t)
	ctx := context.Background()

	score := 80.0
	done := model.Snapshot{
		UserID:              7,
		TestID:              42,
		AssessmentID:        "a1",
		ThreadID:            "t1",
		AssessmentStarted:   true,
		AssessmentCompleted: true,
		FinalScore:          &score,
		ConnectionStatus:    model.StatusDisconnected,
	}
	require.NoError(t, sink.Save(ctx, done))
	require.NoError(t, sink.Save(ctx, done))

	queued, err := mr.List(config.WorkerKey.PersistDiagnosticsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	var diag model.Diagnostics
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &diag))
	assert.Equal(t, 7, diag.UserID)
	assert.Equal(t, 42, diag.TestID)
	assert.True(t, diag.Completed)
	require.NotNil(t, diag.FinalScore)
	assert.Equal(t, 80.0, *diag.FinalScore)

	// A failed attempt on another thread is a separate outcome.
	failed := model.Snapshot{UserID: 7, TestID: 43, ThreadID: "t2", ConnectionStatus: model.StatusError}
	require.NoError(t, sink.Save(ctx, failed))
	require.NoError(t, sink.Save(ctx, failed))

	queued, err = mr.List(config.WorkerKey.PersistDiagnosticsQueue)
	require.NoError(t, err)
	assert.Len(t, queued, 2)
}

func TestRedisSink_Load(t *testing.T) {
	sink, mr, _ := newTestRedisSink(t)
	ctx := context.Background()

	_, err := sink.Load(ctx, 7, 42)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, sink.Save(ctx, model.Snapshot{UserID: 7, TestID: 42, ThreadID: "t1"}))

	got, err := sink.Load(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ThreadID)

	mr.FastForward(2 * time.Hour)
	_, err = sink.Load(ctx, 7, 42)
	assert.ErrorIs(t, err, ErrSnapshotNotFound, "snapshots expire with the ttl")
}

func TestRedisSink_LoadRejectsCorruptValue(t *testing.T) {
	sink, mr, _ := newTestRedisSink(t)

	require.NoError(t, mr.Set(config.CacheKey.AssessmentSnapshotKey(7, 42), "{broken"))

	_, err := sink.Load(context.Background(), 7, 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotNotFound)
}
