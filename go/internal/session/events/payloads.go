package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a session lifecycle event
type EventType string

const (
	EventTypePeerAdmitted     EventType = "PeerAdmitted"
	EventTypePeerRejected     EventType = "PeerRejected"
	EventTypeTeamsAssigned    EventType = "TeamsAssigned"
	EventTypeCountdownStarted EventType = "CountdownStarted"
	EventTypeGameStarted      EventType = "GameStarted"
	EventTypeSessionEnded     EventType = "SessionEnded"
)

// SessionEvent is the envelope published for every lifecycle change.
// Events are observability only; nothing reads them back into the session.
type SessionEvent struct {
	ID        uuid.UUID       `json:"eventId"`
	Type      EventType       `json:"eventType"`
	SessionID uuid.UUID       `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// PeerAdmittedPayload is emitted when a connection takes a seat
type PeerAdmittedPayload struct {
	Identity     string `json:"identity"`
	ConnectionID string `json:"connection_id"`
	Peers        int    `json:"peers"`
}

// PeerRejectedPayload is emitted when a connection is refused
type PeerRejectedPayload struct {
	ConnectionID string `json:"connection_id"`
	Reason       string `json:"reason"`
}

// TeamsAssignedPayload maps identity to team label
type TeamsAssignedPayload struct {
	Teams map[string]string `json:"teams"`
}

// CountdownStartedPayload is emitted when startCountdown is broadcast
type CountdownStartedPayload struct {
	Peers int `json:"peers"`
}

// GameStartedPayload is emitted when the ready barrier releases
type GameStartedPayload struct {
	Identities []string `json:"identities"`
}

// SessionEndedPayload is emitted on teardown
type SessionEndedPayload struct {
	DisconnectedIdentity string        `json:"disconnected_identity"`
	ClosedIdentities     []string      `json:"closed_identities"`
	LastPhase            string        `json:"last_phase"`
	Duration             time.Duration `json:"duration_ns"`
}

// New builds an event envelope around payload
func New(eventType EventType, sessionID uuid.UUID, at time.Time, payload any) (SessionEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return SessionEvent{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return SessionEvent{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}
