package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/skirmish/go/internal/session/events"
)

// fakeConn records everything sent to it
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err != nil {
			panic(fmt.Sprintf("fakeConn %s received invalid JSON: %v", f.id, err))
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) ofType(t MessageType) []map[string]any {
	var out []map[string]any
	for _, m := range f.messages() {
		if m["type"] == string(t) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) count(t MessageType) int {
	return len(f.ofType(t))
}

// recordingSink collects emitted session events
type recordingSink struct {
	mu     sync.Mutex
	events []events.SessionEvent
}

func (r *recordingSink) Emit(event events.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	coord *Coordinator
	clock *clockwork.FakeClock
	sink  *recordingSink
}

func newHarness(t *testing.T, flip CoinFlip) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	coord := NewCoordinator(Config{
		CountdownDelay: 500 * time.Millisecond,
		Teams:          DefaultTeams,
		Clock:          clock,
		Flip:           flip,
		Events:         sink,
	})
	t.Cleanup(coord.Close)
	return &harness{coord: coord, clock: clock, sink: sink}
}

func alwaysFalse() bool { return false }
func alwaysTrue() bool  { return true }

// pair admits two fresh connections
func (h *harness) pair(t *testing.T) (*fakeConn, *fakeConn) {
	t.Helper()
	a := newFakeConn("conn-a")
	b := newFakeConn("conn-b")
	_, err := h.coord.Admit(a)
	require.NoError(t, err)
	_, err = h.coord.Admit(b)
	require.NoError(t, err)
	return a, b
}

// fireCountdown waits for the countdown timer and advances past it
func (h *harness) fireCountdown(t *testing.T, waiters int) {
	t.Helper()
	h.advanceTimers(t, waiters, 500*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.coord.Snapshot().Phase == PhaseReadyBarrier || h.coord.Snapshot().Phase == PhaseActive
	}, time.Second, 5*time.Millisecond)
}

func (h *harness) advanceTimers(t *testing.T, waiters int, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, waiters))
	h.clock.Advance(d)
}

func (h *harness) send(t *testing.T, conn Conn, msg string) error {
	t.Helper()
	return h.coord.HandleMessage(conn, []byte(msg))
}
