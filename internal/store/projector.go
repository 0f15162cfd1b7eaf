package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/model"
)

// Projector fans snapshots out to sinks from a single goroutine. Publish
// never blocks: while a write is in flight, newer snapshots replace older
// pending ones, so sinks always converge on the latest state.
type Projector struct {
	sinks        []Sink
	log          zerolog.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	pending *model.Snapshot
	notify  chan struct{}
	done    chan struct{}
}

// NewProjector creates a new Projector.
func NewProjector(log zerolog.Logger, sinks ...Sink) *Projector {
	return &Projector{
		sinks:        sinks,
		log:          log.With().Str("component", "projector").Logger(),
		writeTimeout: 5 * time.Second,
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Publish queues snap for delivery, replacing any undelivered snapshot.
func (p *Projector) Publish(snap model.Snapshot) {
	p.mu.Lock()
	p.pending = &snap
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Start begins the delivery loop. Call in a goroutine. On cancellation the
// pending snapshot is flushed before returning.
func (p *Projector) Start(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background())
			return
		case <-p.notify:
			p.flush(ctx)
		}
	}
}

// Done is closed once Start has returned.
func (p *Projector) Done() <-chan struct{} {
	return p.done
}

func (p *Projector) flush(ctx context.Context) {
	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.mu.Unlock()

	if snap == nil {
		return
	}

	for _, sink := range p.sinks {
		wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		if err := sink.Save(wctx, *snap); err != nil {
			p.log.Warn().Err(err).Int("test_id", snap.TestID).Msg("Snapshot sink write failed")
		}
		cancel()
	}
}
