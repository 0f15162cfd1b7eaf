// Package store projects session snapshots into read-only sinks. The
// controller is the only writer; sinks never feed state back.
package store

import (
	"context"
	"errors"

	"github.com/stemsi/assessment-client/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot is stored for a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Sink receives every published snapshot.
type Sink interface {
	Save(ctx context.Context, snap model.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap model.Snapshot) error

func (f SinkFunc) Save(ctx context.Context, snap model.Snapshot) error { return f(ctx, snap) }
