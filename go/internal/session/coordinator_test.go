package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/skirmish/go/internal/session/events"
)

func TestAdmit(t *testing.T) {
	t.Run("assigns sequential identities", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		require.Len(t, a.ofType(MessageTypeAssignID), 1)
		require.Len(t, b.ofType(MessageTypeAssignID), 1)
		assert.Equal(t, "0", a.ofType(MessageTypeAssignID)[0]["identity"])
		assert.Equal(t, "1", b.ofType(MessageTypeAssignID)[0]["identity"])
	})

	t.Run("first peer waits for second", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		peer, err := h.coord.Admit(newFakeConn("a"))
		require.NoError(t, err)
		assert.Equal(t, "0", peer.Identity)

		snap := h.coord.Snapshot()
		assert.Equal(t, PhaseWaitingSecond, snap.Phase)
		assert.Len(t, snap.Peers, 1)
		assert.NotEmpty(t, snap.SessionID)
	})

	t.Run("third connection is rejected with an error", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		c := newFakeConn("conn-c")
		_, err := h.coord.Admit(c)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCapacity))

		var rejected *RejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "capacity", rejected.Reason)

		msgs := c.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, string(MessageTypeError), msgs[0]["type"])
		assert.NotEmpty(t, msgs[0]["message"])

		snap := h.coord.Snapshot()
		assert.Len(t, snap.Peers, 2)
		assert.Equal(t, PhaseTeamAssigned, snap.Phase)

		// the running session is untouched
		assert.False(t, a.isClosed())
		assert.False(t, b.isClosed())
		assert.Contains(t, h.sink.types(), events.EventTypePeerRejected)
	})

	t.Run("rejected connection closing does not affect the session", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		c := newFakeConn("conn-c")
		_, err := h.coord.Admit(c)
		require.Error(t, err)

		h.coord.HandleDisconnect(c)

		assert.Len(t, h.coord.Snapshot().Peers, 2)
		assert.Zero(t, a.count(MessageTypeForceDisconnect))
		assert.Zero(t, b.count(MessageTypeForceDisconnect))
	})

	t.Run("same connection cannot take two seats", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a := newFakeConn("a")
		_, err := h.coord.Admit(a)
		require.NoError(t, err)

		_, err = h.coord.Admit(a)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCapacity))
		assert.Len(t, h.coord.Snapshot().Peers, 1)
	})
}

func TestTeamAssignment(t *testing.T) {
	tests := []struct {
		name   string
		flip   CoinFlip
		first  Team
		second Team
	}{
		{name: "heads", flip: alwaysTrue, first: "Blue", second: "Red"},
		{name: "tails", flip: alwaysFalse, first: "Red", second: "Blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.flip)
			a, b := h.pair(t)

			aTeams := a.ofType(MessageTypeTeamAssign)
			bTeams := b.ofType(MessageTypeTeamAssign)
			require.Len(t, aTeams, 1)
			require.Len(t, bTeams, 1)

			assert.Equal(t, string(tt.first), aTeams[0]["team"])
			assert.Equal(t, string(tt.second), bTeams[0]["team"])
			assert.NotEqual(t, aTeams[0]["team"], bTeams[0]["team"])

			// each peer only learns its own team
			assert.Len(t, aTeams[0], 2)
			assert.Len(t, bTeams[0], 2)

			snap := h.coord.Snapshot()
			assert.Equal(t, PhaseTeamAssigned, snap.Phase)
			assert.Equal(t, tt.first, snap.Peers[0].Team)
			assert.Equal(t, tt.second, snap.Peers[1].Team)
		})
	}
}

func TestTeamAssignmentIsFair(t *testing.T) {
	h := newHarness(t, nil)

	const sessions = 2000
	redFirst := 0
	for i := 0; i < sessions; i++ {
		a := newFakeConn(fmt.Sprintf("a-%d", i))
		b := newFakeConn(fmt.Sprintf("b-%d", i))
		_, err := h.coord.Admit(a)
		require.NoError(t, err)
		_, err = h.coord.Admit(b)
		require.NoError(t, err)

		snap := h.coord.Snapshot()
		require.ElementsMatch(t, []Team{"Red", "Blue"}, []Team{snap.Peers[0].Team, snap.Peers[1].Team})
		if snap.Peers[0].Team == "Red" {
			redFirst++
		}

		h.coord.HandleDisconnect(a)
	}

	assert.InDelta(t, sessions/2, redFirst, sessions*0.075)
}

func TestCountdown(t *testing.T) {
	t.Run("fires once after the delay", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		h.advanceTimers(t, 1, 499*time.Millisecond)
		assert.Zero(t, a.count(MessageTypeStartCountdown))
		assert.Equal(t, PhaseTeamAssigned, h.coord.Snapshot().Phase)

		h.clock.Advance(time.Millisecond)
		require.Eventually(t, func() bool {
			return a.count(MessageTypeStartCountdown) == 1 && b.count(MessageTypeStartCountdown) == 1
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, PhaseReadyBarrier, h.coord.Snapshot().Phase)

		h.clock.Advance(10 * time.Second)
		assert.Never(t, func() bool {
			return a.count(MessageTypeStartCountdown) > 1
		}, 50*time.Millisecond, 5*time.Millisecond)
	})

	t.Run("not scheduled for a single peer", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a := newFakeConn("a")
		_, err := h.coord.Admit(a)
		require.NoError(t, err)

		h.clock.Advance(time.Second)
		assert.Never(t, func() bool {
			return a.count(MessageTypeStartCountdown) > 0
		}, 50*time.Millisecond, 5*time.Millisecond)
	})

	t.Run("skips peers whose handle went stale", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		// a's socket died but its disconnect has not been processed yet
		a.Close()

		h.fireCountdown(t, 1)
		assert.Equal(t, 1, b.count(MessageTypeStartCountdown))
		assert.Zero(t, a.count(MessageTypeStartCountdown))
	})

	t.Run("stale timer does not leak into the next session", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, _ := h.pair(t)
		require.NoError(t, blockUntil(h, 1))

		h.coord.HandleDisconnect(a)
		h.clock.Advance(200 * time.Millisecond)

		c, d := h.pair(t)
		require.NoError(t, blockUntil(h, 2))

		// first session's timer fires; second is still 200ms away
		h.clock.Advance(300 * time.Millisecond)
		assert.Never(t, func() bool {
			return c.count(MessageTypeStartCountdown) > 0 || d.count(MessageTypeStartCountdown) > 0
		}, 100*time.Millisecond, 5*time.Millisecond)
		assert.Equal(t, PhaseTeamAssigned, h.coord.Snapshot().Phase)

		h.clock.Advance(200 * time.Millisecond)
		require.Eventually(t, func() bool {
			return c.count(MessageTypeStartCountdown) == 1 && d.count(MessageTypeStartCountdown) == 1
		}, time.Second, 5*time.Millisecond)
	})
}

func TestReadyBarrier(t *testing.T) {
	orders := []struct {
		name  string
		first int
	}{
		{name: "first peer then second", first: 0},
		{name: "second peer then first", first: 1},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, alwaysFalse)
			a, b := h.pair(t)
			h.fireCountdown(t, 1)

			conns := []*fakeConn{a, b}
			require.NoError(t, h.send(t, conns[tt.first], `{"type":"ready"}`))
			assert.Zero(t, a.count(MessageTypeGameStart))
			assert.Zero(t, b.count(MessageTypeGameStart))
			assert.Equal(t, PhaseReadyBarrier, h.coord.Snapshot().Phase)

			require.NoError(t, h.send(t, conns[1-tt.first], `{"type":"ready"}`))
			assert.Equal(t, 1, a.count(MessageTypeGameStart))
			assert.Equal(t, 1, b.count(MessageTypeGameStart))

			snap := h.coord.Snapshot()
			assert.Equal(t, PhaseActive, snap.Phase)
			assert.True(t, snap.Released)
		})
	}

	t.Run("duplicate ready after release does not restart", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		h.fireCountdown(t, 1)

		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		require.NoError(t, h.send(t, b, `{"type":"ready"}`))
		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		require.NoError(t, h.send(t, b, `{"type":"ready"}`))

		assert.Equal(t, 1, a.count(MessageTypeGameStart))
		assert.Equal(t, 1, b.count(MessageTypeGameStart))

		// readiness stays set after release
		for _, p := range h.coord.Snapshot().Peers {
			assert.True(t, p.Ready)
		}
	})

	t.Run("duplicate ready from one peer does not release", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		h.fireCountdown(t, 1)

		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		require.NoError(t, h.send(t, a, `{"type":"ready"}`))

		assert.Zero(t, a.count(MessageTypeGameStart))
		assert.Zero(t, b.count(MessageTypeGameStart))
	})

	t.Run("ready before countdown releases when countdown fires", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		require.NoError(t, h.send(t, b, `{"type":"ready"}`))
		assert.Zero(t, a.count(MessageTypeGameStart))

		h.fireCountdown(t, 1)
		require.Eventually(t, func() bool {
			return h.coord.Snapshot().Phase == PhaseActive
		}, time.Second, 5*time.Millisecond)

		msgs := a.messages()
		require.GreaterOrEqual(t, len(msgs), 2)
		assert.Equal(t, string(MessageTypeStartCountdown), msgs[len(msgs)-2]["type"])
		assert.Equal(t, string(MessageTypeGameStart), msgs[len(msgs)-1]["type"])
		assert.Equal(t, 1, b.count(MessageTypeGameStart))
	})

	t.Run("lone peer ready never releases", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a := newFakeConn("a")
		_, err := h.coord.Admit(a)
		require.NoError(t, err)

		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		assert.Zero(t, a.count(MessageTypeGameStart))

		snap := h.coord.Snapshot()
		assert.Equal(t, PhaseWaitingSecond, snap.Phase)
		require.Len(t, snap.Peers, 1)
		assert.False(t, snap.Peers[0].Ready)
	})

	t.Run("ready before pairing does not count toward the barrier", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a := newFakeConn("a")
		_, err := h.coord.Admit(a)
		require.NoError(t, err)
		require.NoError(t, h.send(t, a, `{"type":"ready"}`))

		b := newFakeConn("b")
		_, err = h.coord.Admit(b)
		require.NoError(t, err)
		h.fireCountdown(t, 1)

		require.NoError(t, h.send(t, b, `{"type":"ready"}`))
		assert.Zero(t, a.count(MessageTypeGameStart))
		assert.Zero(t, b.count(MessageTypeGameStart))
		assert.Equal(t, PhaseReadyBarrier, h.coord.Snapshot().Phase)

		// a signals again now that the session is formed
		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		assert.Equal(t, 1, a.count(MessageTypeGameStart))
		assert.Equal(t, 1, b.count(MessageTypeGameStart))
	})
}

func TestRelay(t *testing.T) {
	t.Run("stateUpdate goes only to the other peer", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		msg := `{"type":"stateUpdate","units":[{"id":1,"x":3.5}]}`
		require.NoError(t, h.send(t, a, msg))

		assert.Zero(t, a.count(MessageTypeStateUpdate))
		updates := b.ofType(MessageTypeStateUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, []any{map[string]any{"id": float64(1), "x": 3.5}}, updates[0]["units"])
	})

	t.Run("init is echoed to both peers", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)

		require.NoError(t, h.send(t, a, `{"type":"init","unitId":"u-7","hp":100}`))

		for _, conn := range []*fakeConn{a, b} {
			inits := conn.ofType(MessageTypeInit)
			require.Len(t, inits, 1)
			assert.Equal(t, "u-7", inits[0]["unitId"])
			assert.Equal(t, float64(100), inits[0]["hp"])
		}

		snap := h.coord.Snapshot()
		assert.Equal(t, 1, snap.Peers[0].InitMessages)
		assert.Equal(t, 0, snap.Peers[1].InitMessages)
	})

	t.Run("relay survives a stale handle", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		b.Close()

		require.NoError(t, h.send(t, a, `{"type":"init","unitId":1}`))
		assert.Equal(t, 1, a.count(MessageTypeInit))
	})

	t.Run("unknown type is dropped", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		before := len(b.messages())

		require.NoError(t, h.send(t, a, `{"type":"chat","text":"hi"}`))

		assert.Len(t, b.messages(), before)
		assert.Equal(t, PhaseTeamAssigned, h.coord.Snapshot().Phase)
	})

	t.Run("malformed message is contained", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		before := len(b.messages())

		for _, raw := range []string{`{not json`, `[]`, `{"units":[]}`, `{"type":"stateUpdate","units":5}`} {
			err := h.send(t, a, raw)
			require.Error(t, err, raw)
			assert.True(t, errors.Is(err, ErrMalformedMessage), raw)
		}

		assert.False(t, a.isClosed())
		assert.Len(t, b.messages(), before)
		assert.Len(t, h.coord.Snapshot().Peers, 2)

		// the connection keeps working afterwards
		require.NoError(t, h.send(t, a, `{"type":"stateUpdate","units":[]}`))
		assert.Equal(t, 1, b.count(MessageTypeStateUpdate))
	})

	t.Run("messages from unadmitted connections are ignored", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		stranger := newFakeConn("stranger")

		err := h.send(t, stranger, `{"type":"stateUpdate","units":[]}`)
		assert.ErrorIs(t, err, ErrNotAdmitted)
		assert.Zero(t, a.count(MessageTypeStateUpdate))
		assert.Zero(t, b.count(MessageTypeStateUpdate))
	})
}

func TestDisconnect(t *testing.T) {
	for _, leaver := range []int{0, 1} {
		t.Run(fmt.Sprintf("peer %d leaves", leaver), func(t *testing.T) {
			h := newHarness(t, alwaysFalse)
			a, b := h.pair(t)
			conns := []*fakeConn{a, b}
			gone, survivor := conns[leaver], conns[1-leaver]

			h.coord.HandleDisconnect(gone)

			msgs := survivor.ofType(MessageTypeForceDisconnect)
			require.Len(t, msgs, 1)
			assert.NotEmpty(t, msgs[0]["message"])
			assert.True(t, survivor.isClosed())

			snap := h.coord.Snapshot()
			assert.Equal(t, PhaseEmpty, snap.Phase)
			assert.Empty(t, snap.Peers)
			assert.Empty(t, snap.SessionID)
			assert.False(t, snap.Released)

			// the survivor's own close is a no-op now
			h.coord.HandleDisconnect(survivor)
			assert.Len(t, survivor.ofType(MessageTypeForceDisconnect), 1)
		})
	}

	t.Run("after an active game", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, b := h.pair(t)
		h.fireCountdown(t, 1)
		require.NoError(t, h.send(t, a, `{"type":"ready"}`))
		require.NoError(t, h.send(t, b, `{"type":"ready"}`))
		require.Equal(t, PhaseActive, h.coord.Snapshot().Phase)

		h.coord.HandleDisconnect(a)
		assert.Equal(t, PhaseEmpty, h.coord.Snapshot().Phase)
		assert.True(t, b.isClosed())
	})

	t.Run("lone peer leaving empties the session", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a := newFakeConn("a")
		_, err := h.coord.Admit(a)
		require.NoError(t, err)

		h.coord.HandleDisconnect(a)
		assert.Equal(t, PhaseEmpty, h.coord.Snapshot().Phase)
		assert.Empty(t, h.coord.Snapshot().Peers)
	})

	t.Run("new session starts clean with fresh identities", func(t *testing.T) {
		h := newHarness(t, alwaysFalse)
		a, _ := h.pair(t)
		first := h.coord.Snapshot().SessionID
		h.coord.HandleDisconnect(a)

		c, d := h.pair(t)
		assert.Equal(t, "2", c.ofType(MessageTypeAssignID)[0]["identity"])
		assert.Equal(t, "3", d.ofType(MessageTypeAssignID)[0]["identity"])

		snap := h.coord.Snapshot()
		assert.NotEqual(t, first, snap.SessionID)
		for _, p := range snap.Peers {
			assert.False(t, p.Ready)
			assert.Zero(t, p.InitMessages)
		}
	})
}

func TestLifecycleEvents(t *testing.T) {
	h := newHarness(t, alwaysFalse)
	a, b := h.pair(t)
	h.fireCountdown(t, 1)
	require.NoError(t, h.send(t, a, `{"type":"ready"}`))
	require.NoError(t, h.send(t, b, `{"type":"ready"}`))
	h.coord.HandleDisconnect(b)

	assert.Equal(t, []events.EventType{
		events.EventTypePeerAdmitted,
		events.EventTypePeerAdmitted,
		events.EventTypeTeamsAssigned,
		events.EventTypeCountdownStarted,
		events.EventTypeGameStarted,
		events.EventTypeSessionEnded,
	}, h.sink.types())

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	sessionID := h.sink.events[0].SessionID
	for _, e := range h.sink.events {
		assert.Equal(t, sessionID, e.SessionID)
	}
}

func blockUntil(h *harness, waiters int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.clock.BlockUntilContext(ctx, waiters)
}
