package store

import (
	"context"
	"sync"

	"github.com/stemsi/assessment-client/internal/model"
)

// MemorySink keeps the latest snapshot in memory.
type MemorySink struct {
	mu     sync.RWMutex
	latest *model.Snapshot
	saves  int
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Save(_ context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &snap
	m.saves++
	return nil
}

// Latest returns the last saved snapshot.
func (m *MemorySink) Latest() (model.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return model.Snapshot{}, false
	}
	return *m.latest, true
}

// Saves returns how many snapshots were written.
func (m *MemorySink) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
