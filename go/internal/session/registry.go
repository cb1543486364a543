package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// RejectedError is returned when a connection is refused admission
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("connection rejected: %s", e.Reason)
}

// Is matches any RejectedError with the same reason
func (e *RejectedError) Is(target error) bool {
	var other *RejectedError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

var (
	// ErrCapacity is returned when the session already has two peers
	ErrCapacity = &RejectedError{Reason: "capacity"}

	// ErrNotAdmitted is returned for events from connections that hold no seat
	ErrNotAdmitted = errors.New("connection is not an admitted peer")
)

// registry hands out identities and enforces the two-seat limit
type registry struct {
	nextIdentity uint64
}

// admit appends a new peer for conn, or refuses when the session is full.
// Identities come from a process-wide counter and are never reused.
func (r *registry) admit(s *state, conn Conn, now time.Time) (*Peer, error) {
	if len(s.peers) >= maxPeers {
		return nil, ErrCapacity
	}
	if s.peerFor(conn) != nil {
		return nil, fmt.Errorf("connection %s already admitted", conn.ID())
	}

	peer := &Peer{
		Identity:    strconv.FormatUint(r.nextIdentity, 10),
		ConnectedAt: now,
		conn:        conn,
	}
	r.nextIdentity++
	s.peers = append(s.peers, peer)
	return peer, nil
}
