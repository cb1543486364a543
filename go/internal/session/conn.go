package session

// Conn is the outbound side of a peer connection as seen by the coordinator.
// The coordinator borrows it; closing it is an explicit side effect.
type Conn interface {
	// ID identifies the connection in logs
	ID() string

	// Send queues a frame for delivery. It must not block and returns false
	// when the connection is closed or cannot accept more data.
	Send(data []byte) bool

	// Close flushes queued frames and closes the connection. Safe to call
	// more than once.
	Close()
}
