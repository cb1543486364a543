package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Phase is the state of the paired session
type Phase string

const (
	PhaseEmpty         Phase = "EMPTY"
	PhaseWaitingSecond Phase = "WAITING_SECOND"
	PhaseTeamAssigned  Phase = "TEAM_ASSIGNED"
	PhaseCountdown     Phase = "COUNTDOWN"
	PhaseReadyBarrier  Phase = "READY_BARRIER"
	PhaseActive        Phase = "ACTIVE"
)

// Team is one of the two labels handed out when the session is paired
type Team string

// maxPeers is the size of a session
const maxPeers = 2

// Peer is one admitted participant. It lives until either side disconnects.
type Peer struct {
	Identity    string
	Team        Team
	Ready       bool
	ConnectedAt time.Time

	// init payloads received from this peer, kept for the stats endpoint only
	InitHistory []json.RawMessage

	conn Conn
}

// Conn returns the connection handle the peer was admitted with
func (p *Peer) Conn() Conn {
	return p.conn
}

// state is the single session owned by a Coordinator. All access happens under
// the coordinator's mutex.
type state struct {
	id       uuid.UUID
	peers    []*Peer
	phase    Phase
	released bool
}

func newState() *state {
	return &state{phase: PhaseEmpty}
}

// reset drops every peer and returns the session to EMPTY
func (s *state) reset() {
	s.id = uuid.Nil
	s.peers = nil
	s.phase = PhaseEmpty
	s.released = false
}

func (s *state) peerFor(conn Conn) *Peer {
	for _, p := range s.peers {
		if p.conn == conn {
			return p
		}
	}
	return nil
}

func (s *state) allReady() bool {
	if len(s.peers) != maxPeers {
		return false
	}
	for _, p := range s.peers {
		if !p.Ready {
			return false
		}
	}
	return true
}

// PeerSnapshot is a read-only copy of a Peer for reporting
type PeerSnapshot struct {
	Identity     string    `json:"identity"`
	Team         Team      `json:"team,omitempty"`
	Ready        bool      `json:"ready"`
	InitMessages int       `json:"init_messages"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Snapshot is a read-only copy of the session for reporting
type Snapshot struct {
	SessionID string         `json:"session_id,omitempty"`
	Phase     Phase          `json:"phase"`
	Released  bool           `json:"released"`
	Peers     []PeerSnapshot `json:"peers"`
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Phase:    s.phase,
		Released: s.released,
		Peers:    make([]PeerSnapshot, 0, len(s.peers)),
	}
	if s.id != uuid.Nil {
		snap.SessionID = s.id.String()
	}
	for _, p := range s.peers {
		snap.Peers = append(snap.Peers, PeerSnapshot{
			Identity:     p.Identity,
			Team:         p.Team,
			Ready:        p.Ready,
			InitMessages: len(p.InitHistory),
			ConnectedAt:  p.ConnectedAt,
		})
	}
	return snap
}
