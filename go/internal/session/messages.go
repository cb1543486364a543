package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the "type" tag carried by every message on the wire
type MessageType string

const (
	// Client to server
	MessageTypeReady       MessageType = "ready"
	MessageTypeInit        MessageType = "init"
	MessageTypeStateUpdate MessageType = "stateUpdate"

	// Server to client
	MessageTypeAssignID        MessageType = "assignId"
	MessageTypeError           MessageType = "error"
	MessageTypeTeamAssign      MessageType = "teamAssign"
	MessageTypeStartCountdown  MessageType = "startCountdown"
	MessageTypeGameStart       MessageType = "gameStart"
	MessageTypeForceDisconnect MessageType = "forceDisconnect"
)

// ErrMalformedMessage is returned by DecodeInbound when a frame cannot be
// interpreted as a tagged message.
var ErrMalformedMessage = errors.New("malformed message")

// InboundMessage is the closed set of messages a peer can send.
// Implementations: ReadyMessage, InitMessage, StateUpdateMessage, UnknownMessage.
type InboundMessage interface {
	Type() MessageType
	inbound()
}

// ReadyMessage signals that the peer has finished loading and waits for gameStart
type ReadyMessage struct{}

// InitMessage announces a unit/entity initialization. Raw is relayed verbatim.
type InitMessage struct {
	UnitID json.RawMessage
	Raw    json.RawMessage
}

// StateUpdateMessage carries per-tick entity state. Raw is relayed verbatim.
type StateUpdateMessage struct {
	Units []json.RawMessage
	Raw   json.RawMessage
}

// UnknownMessage is any well-formed message whose tag the router does not handle
type UnknownMessage struct {
	Tag string
}

func (ReadyMessage) Type() MessageType       { return MessageTypeReady }
func (InitMessage) Type() MessageType        { return MessageTypeInit }
func (StateUpdateMessage) Type() MessageType { return MessageTypeStateUpdate }
func (m UnknownMessage) Type() MessageType   { return MessageType(m.Tag) }

func (ReadyMessage) inbound()       {}
func (InitMessage) inbound()        {}
func (StateUpdateMessage) inbound() {}
func (UnknownMessage) inbound()     {}

// DecodeInbound parses a raw frame into its tagged variant.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	var tag string
	if err := json.Unmarshal(rawType, &tag); err != nil {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformedMessage)
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: empty type", ErrMalformedMessage)
	}

	raw := json.RawMessage(bytes.Clone(data))

	switch MessageType(tag) {
	case MessageTypeReady:
		return ReadyMessage{}, nil

	case MessageTypeInit:
		return InitMessage{UnitID: fields["unitId"], Raw: raw}, nil

	case MessageTypeStateUpdate:
		var units []json.RawMessage
		if rawUnits, ok := fields["units"]; ok {
			if err := json.Unmarshal(rawUnits, &units); err != nil {
				return nil, fmt.Errorf("%w: units is not an array", ErrMalformedMessage)
			}
		}
		return StateUpdateMessage{Units: units, Raw: raw}, nil

	default:
		return UnknownMessage{Tag: tag}, nil
	}
}

// Outbound notifications

// AssignIDMessage tells a freshly admitted peer its identity
type AssignIDMessage struct {
	Type     MessageType `json:"type"`
	Identity string      `json:"identity"`
}

// ErrorMessage is sent to a connection right before it is closed
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// TeamAssignMessage is unicast; it only ever carries the recipient's own team
type TeamAssignMessage struct {
	Type MessageType `json:"type"`
	Team Team        `json:"team"`
}

// SignalMessage is a payload-less broadcast (startCountdown, gameStart)
type SignalMessage struct {
	Type MessageType `json:"type"`
}

// ForceDisconnectMessage is sent to the surviving peer before it is closed
type ForceDisconnectMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func newAssignID(identity string) AssignIDMessage {
	return AssignIDMessage{Type: MessageTypeAssignID, Identity: identity}
}

func newError(message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message}
}

func newTeamAssign(team Team) TeamAssignMessage {
	return TeamAssignMessage{Type: MessageTypeTeamAssign, Team: team}
}

func newSignal(t MessageType) SignalMessage {
	return SignalMessage{Type: t}
}

func newForceDisconnect(message string) ForceDisconnectMessage {
	return ForceDisconnectMessage{Type: MessageTypeForceDisconnect, Message: message}
}
