package session

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// HandleMessage decodes one inbound frame from conn and dispatches it.
// Failures are contained to the frame: the returned error is informational and
// the connection stays open.
func (c *Coordinator) HandleMessage(conn Conn, data []byte) error {
	msg, err := DecodeInbound(data)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID()).
			Msg("dropping malformed message")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	peer := c.state.peerFor(conn)
	if peer == nil {
		log.Debug().
			Str("connection_id", conn.ID()).
			Str("message_type", string(msg.Type())).
			Msg("message from connection without a seat, ignoring")
		return ErrNotAdmitted
	}

	switch m := msg.(type) {
	case ReadyMessage:
		c.handleReadyLocked(peer)

	case InitMessage:
		peer.InitHistory = append(peer.InitHistory, m.Raw)
		delivered := c.broadcastLocked(m.Raw)
		log.Debug().
			Str("identity", peer.Identity).
			RawJSON("unit_id", unitIDForLog(m.UnitID)).
			Int("delivered", delivered).
			Msg("init relayed to all peers")

	case StateUpdateMessage:
		delivered := c.broadcastExceptLocked(peer, m.Raw)
		log.Debug().
			Str("identity", peer.Identity).
			Int("units", len(m.Units)).
			Int("delivered", delivered).
			Msg("state update relayed")

	case UnknownMessage:
		log.Warn().
			Str("identity", peer.Identity).
			Str("message_type", m.Tag).
			Msg("unrecognized message type, dropping")
	}

	return nil
}

// unicastLocked encodes v and sends it to one peer. Returns false when the
// handle did not accept it.
func (c *Coordinator) unicastLocked(peer *Peer, v any) bool {
	data, ok := encode(v)
	if !ok {
		return false
	}
	return c.sendLocked(peer, data)
}

// broadcastLocked sends data to every current peer and returns how many
// accepted it
func (c *Coordinator) broadcastLocked(data []byte) int {
	return c.broadcastExceptLocked(nil, data)
}

// broadcastExceptLocked sends data to every current peer other than skip
func (c *Coordinator) broadcastExceptLocked(skip *Peer, data []byte) int {
	delivered := 0
	for _, p := range c.state.peers {
		if p == skip {
			continue
		}
		if c.sendLocked(p, data) {
			delivered++
		}
	}
	return delivered
}

func (c *Coordinator) broadcastMessageLocked(v any) int {
	data, ok := encode(v)
	if !ok {
		return 0
	}
	return c.broadcastLocked(data)
}

func (c *Coordinator) sendLocked(peer *Peer, data []byte) bool {
	if peer.conn.Send(data) {
		return true
	}
	log.Debug().
		Str("identity", peer.Identity).
		Str("connection_id", peer.conn.ID()).
		Msg("skipping send to closed connection")
	return false
}

func encode(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound message")
		return nil, false
	}
	return data, true
}

func unitIDForLog(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
