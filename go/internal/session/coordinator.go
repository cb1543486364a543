package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/session/events"
)

const (
	capacityMessage        = "Only two players are allowed per session."
	forceDisconnectMessage = "Opponent disconnected. The game is over."
)

// EventSink receives session lifecycle events. Emit must not block.
type EventSink interface {
	Emit(event events.SessionEvent)
}

// Config holds coordinator settings
type Config struct {
	CountdownDelay time.Duration
	Teams          [2]Team
	Clock          clockwork.Clock
	Flip           CoinFlip
	Events         EventSink
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		CountdownDelay: 500 * time.Millisecond,
		Teams:          DefaultTeams,
		Clock:          clockwork.NewRealClock(),
		Flip:           fairCoin,
	}
}

// Coordinator owns the single paired session. Every event that touches the
// session (admission, inbound message, disconnect, countdown) runs under mu.
type Coordinator struct {
	mu       sync.Mutex
	state    *state
	registry registry

	clock          clockwork.Clock
	flip           CoinFlip
	teams          [2]Team
	countdownDelay time.Duration
	sink           EventSink

	startedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewCoordinator creates a coordinator with an empty session
func NewCoordinator(cfg Config) *Coordinator {
	defaults := DefaultConfig()
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.Flip == nil {
		cfg.Flip = defaults.Flip
	}
	if cfg.CountdownDelay <= 0 {
		cfg.CountdownDelay = defaults.CountdownDelay
	}
	if cfg.Teams[0] == "" || cfg.Teams[1] == "" || cfg.Teams[0] == cfg.Teams[1] {
		cfg.Teams = defaults.Teams
	}

	return &Coordinator{
		state:          newState(),
		clock:          cfg.Clock,
		flip:           cfg.Flip,
		teams:          cfg.Teams,
		countdownDelay: cfg.CountdownDelay,
		sink:           cfg.Events,
		done:           make(chan struct{}),
	}
}

// Admit gives conn a seat in the session. When the session is full the
// connection is sent an error notification and ErrCapacity is returned; the
// caller is responsible for closing it.
func (c *Coordinator) Admit(conn Conn) (PeerSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	peer, err := c.registry.admit(c.state, conn, now)
	if err != nil {
		if errors.Is(err, ErrCapacity) {
			if data, ok := encode(newError(capacityMessage)); ok {
				conn.Send(data)
			}
			c.emitLocked(events.EventTypePeerRejected, events.PeerRejectedPayload{
				ConnectionID: conn.ID(),
				Reason:       ErrCapacity.Reason,
			})
			log.Warn().
				Str("connection_id", conn.ID()).
				Int("peers", len(c.state.peers)).
				Msg("session full, rejecting connection")
		}
		return PeerSnapshot{}, err
	}

	if len(c.state.peers) == 1 {
		c.state.id = uuid.New()
		c.state.phase = PhaseWaitingSecond
		c.startedAt = now
	}

	log.Info().
		Str("session_id", c.state.id.String()).
		Str("identity", peer.Identity).
		Str("connection_id", conn.ID()).
		Int("peers", len(c.state.peers)).
		Msg("peer admitted")

	c.unicastLocked(peer, newAssignID(peer.Identity))
	c.emitLocked(events.EventTypePeerAdmitted, events.PeerAdmittedPayload{
		Identity:     peer.Identity,
		ConnectionID: conn.ID(),
		Peers:        len(c.state.peers),
	})

	if len(c.state.peers) == maxPeers {
		c.assignTeamsLocked()
		c.scheduleCountdownLocked()
	}

	return PeerSnapshot{
		Identity:    peer.Identity,
		Team:        peer.Team,
		ConnectedAt: peer.ConnectedAt,
	}, nil
}

// assignTeamsLocked hands each peer one of the two labels and tells each peer
// only its own
func (c *Coordinator) assignTeamsLocked() {
	first, second := assignTeams(c.teams, c.flip)
	c.state.peers[0].Team = first
	c.state.peers[1].Team = second
	c.state.phase = PhaseTeamAssigned

	teams := make(map[string]string, maxPeers)
	for _, p := range c.state.peers {
		c.unicastLocked(p, newTeamAssign(p.Team))
		teams[p.Identity] = string(p.Team)
	}

	log.Info().
		Str("session_id", c.state.id.String()).
		Str("first", string(first)).
		Str("second", string(second)).
		Msg("teams assigned")

	c.emitLocked(events.EventTypeTeamsAssigned, events.TeamsAssignedPayload{Teams: teams})
}

// scheduleCountdownLocked arms the one-shot countdown timer for the current
// session. The timer is never cancelled; when it fires it checks that the
// session it belongs to is still the live one.
func (c *Coordinator) scheduleCountdownLocked() {
	sessionID := c.state.id
	timer := c.clock.NewTimer(c.countdownDelay)

	go func(id uuid.UUID, t clockwork.Timer) {
		select {
		case <-t.Chan():
			c.fireCountdown(id)
		case <-c.done:
			stopAndDrainTimer(t)
		}
	}(sessionID, timer)

	log.Debug().
		Str("session_id", sessionID.String()).
		Dur("delay", c.countdownDelay).
		Msg("countdown scheduled")
}

func (c *Coordinator) fireCountdown(sessionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.id != sessionID || c.state.phase != PhaseTeamAssigned {
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("phase", string(c.state.phase)).
			Msg("countdown fired for a session that is gone, skipping")
		return
	}

	c.state.phase = PhaseCountdown
	delivered := c.broadcastMessageLocked(newSignal(MessageTypeStartCountdown))

	log.Info().
		Str("session_id", sessionID.String()).
		Int("delivered", delivered).
		Msg("countdown started")

	c.emitLocked(events.EventTypeCountdownStarted, events.CountdownStartedPayload{Peers: delivered})

	c.state.phase = PhaseReadyBarrier
	c.releaseBarrierLocked()
}

// handleReadyLocked records a ready signal. Readiness only counts once the
// session is paired; a lone peer's ready is dropped.
func (c *Coordinator) handleReadyLocked(peer *Peer) {
	if c.state.phase == PhaseWaitingSecond {
		log.Debug().
			Str("session_id", c.state.id.String()).
			Str("identity", peer.Identity).
			Msg("ready before pairing, ignoring")
		return
	}
	if peer.Ready {
		log.Debug().Str("identity", peer.Identity).Msg("duplicate ready signal")
	}
	peer.Ready = true

	readyCount := 0
	for _, p := range c.state.peers {
		if p.Ready {
			readyCount++
		}
	}
	log.Info().
		Str("session_id", c.state.id.String()).
		Str("identity", peer.Identity).
		Int("ready", readyCount).
		Int("peers", len(c.state.peers)).
		Msg("ready signal received")

	c.releaseBarrierLocked()
}

// releaseBarrierLocked broadcasts gameStart once per session, as soon as the
// session is in READY_BARRIER and both peers are ready
func (c *Coordinator) releaseBarrierLocked() {
	if c.state.phase != PhaseReadyBarrier || c.state.released || !c.state.allReady() {
		return
	}

	c.state.released = true
	c.state.phase = PhaseActive
	delivered := c.broadcastMessageLocked(newSignal(MessageTypeGameStart))

	identities := make([]string, 0, len(c.state.peers))
	for _, p := range c.state.peers {
		identities = append(identities, p.Identity)
	}

	log.Info().
		Str("session_id", c.state.id.String()).
		Int("delivered", delivered).
		Msg("all peers ready, game started")

	c.emitLocked(events.EventTypeGameStarted, events.GameStartedPayload{Identities: identities})
}

// HandleDisconnect tears down the whole session when an admitted peer goes
// away. The other peer is notified and closed. Connections without a seat are
// ignored.
func (c *Coordinator) HandleDisconnect(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	peer := c.state.peerFor(conn)
	if peer == nil {
		log.Debug().
			Str("connection_id", conn.ID()).
			Msg("connection without a seat closed")
		return
	}

	closed := make([]string, 0, maxPeers-1)
	for _, p := range c.state.peers {
		if p == peer {
			continue
		}
		c.unicastLocked(p, newForceDisconnect(forceDisconnectMessage))
		p.conn.Close()
		closed = append(closed, p.Identity)
	}

	sessionID := c.state.id
	lastPhase := c.state.phase
	c.emitLocked(events.EventTypeSessionEnded, events.SessionEndedPayload{
		DisconnectedIdentity: peer.Identity,
		ClosedIdentities:     closed,
		LastPhase:            string(lastPhase),
		Duration:             c.clock.Since(c.startedAt),
	})

	c.state.reset()
	c.startedAt = time.Time{}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("identity", peer.Identity).
		Str("last_phase", string(lastPhase)).
		Strs("closed", closed).
		Msg("peer disconnected, session reset")
}

// Snapshot returns a copy of the current session
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot()
}

// Close stops pending countdown timers. The session itself is left as is.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Coordinator) emitLocked(eventType events.EventType, payload any) {
	if c.sink == nil {
		return
	}
	event, err := events.New(eventType, c.state.id, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build session event")
		return
	}
	c.sink.Emit(event)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
