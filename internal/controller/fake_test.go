package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/assessment-client/internal/model"
	"github.com/stemsi/assessment-client/internal/protocol"
	"github.com/stemsi/assessment-client/internal/transport"
)

var errRefused = errors.New("connection refused")

// fakeConn is an in-memory transport whose inbound side is driven by the test.
type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	sent     []protocol.Request
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) Read() ([]byte, error) {
	select {
	case frame := <-f.inbound:
		return frame, nil
	case <-f.closed:
		return nil, transport.ErrClosed
	}
}

func (f *fakeConn) Write(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.closed:
		return transport.ErrClosed
	default:
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.sent = append(f.sent, v.(protocol.Request))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// mustFrame encodes one server message.
func mustFrame(t *testing.T, typ protocol.Event, data interface{}) []byte {
	t.Helper()
	frame, err := json.Marshal(map[string]interface{}{"type": typ, "data": data})
	require.NoError(t, err)
	return frame
}

// push delivers one server message.
func (f *fakeConn) push(t *testing.T, typ protocol.Event, data interface{}) {
	t.Helper()
	f.pushRaw(t, mustFrame(t, typ, data))
}

func (f *fakeConn) pushRaw(t *testing.T, frame []byte) {
	t.Helper()
	select {
	case f.inbound <- frame:
	case <-f.closed:
		t.Fatalf("push on closed connection")
	}
}

// sentActions lists the outbound action types in order.
func (f *fakeConn) sentActions() []protocol.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Action, 0, len(f.sent))
	for _, r := range f.sent {
		out = append(out, r.Type)
	}
	return out
}

func (f *fakeConn) lastSent() protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// fakeDialer hands out fakeConns and can be told to refuse dials.
type fakeDialer struct {
	mu       sync.Mutex
	refuse   int
	drop     bool
	dials    int
	conns    []*fakeConn
	dialed   chan *fakeConn
	dialGate chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ int) (transport.Conn, error) {
	if d.dialGate != nil {
		select {
		case <-d.dialGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.refuse != 0 {
		if d.refuse > 0 {
			d.refuse--
		}
		return nil, errRefused
	}
	c := newFakeConn()
	if d.drop {
		c.Close()
	}
	d.conns = append(d.conns, c)
	select {
	case d.dialed <- c:
	default:
	}
	return c, nil
}

func (d *fakeDialer) setRefuse(n int) {
	d.mu.Lock()
	d.refuse = n
	d.mu.Unlock()
}

// dropAfterDial makes every later dial succeed with a connection that is
// already closed, as when the backend hangs up before the handshake.
func (d *fakeDialer) dropAfterDial() {
	d.mu.Lock()
	d.drop = true
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no dial happened")
		return nil
	}
}

// recorder keeps every published snapshot.
type recorder struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (r *recorder) Publish(s model.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) statuses() []model.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ConnectionStatus
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.ConnectionStatus {
			out = append(out, s.ConnectionStatus)
		}
	}
	return out
}

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
