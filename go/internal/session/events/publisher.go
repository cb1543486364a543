package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Publisher delivers session events to some sink
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}

// LogPublisher writes events to the structured log. It is the default when no
// broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event SessionEvent) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID.String()).
		RawJSON("payload", event.Payload).
		Msg("session event")
	return nil
}

// Dispatcher decouples event producers from publishing. Emit never blocks;
// Run drains the queue and hands each event to the publisher. Once Run has
// returned, further events are counted as dropped.
type Dispatcher struct {
	publisher      Publisher
	queue          chan SessionEvent
	publishTimeout time.Duration

	mu      sync.RWMutex
	stopped bool

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// DispatcherStats counts what happened to emitted events
type DispatcherStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// NewDispatcher creates a dispatcher with the given queue size
func NewDispatcher(publisher Publisher, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		publisher:      publisher,
		queue:          make(chan SessionEvent, queueSize),
		publishTimeout: 5 * time.Second,
	}
}

// Emit queues an event, dropping it when the queue is full or the
// dispatcher has stopped
func (d *Dispatcher) Emit(event SessionEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.dropped.Add(1)
		log.Warn().
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID.String()).
			Msg("event dispatcher stopped, dropping session event")
		return
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID.String()).
			Msg("event queue full, dropping session event")
	}
}

// Run publishes queued events until ctx is cancelled, then publishes whatever
// is still queued before returning
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Msg("session event dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case event := <-d.queue:
			// bounded by publishTimeout; a cancel racing this event must not fail it
			d.publish(context.WithoutCancel(ctx), event)
		}
	}
}

// drain stops intake and publishes the remaining events, each with its own
// timeout since the run context is already done
func (d *Dispatcher) drain() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	remaining := len(d.queue)
	for {
		select {
		case event := <-d.queue:
			d.publish(context.Background(), event)
		default:
			log.Info().
				Int("drained", remaining).
				Msg("session event dispatcher stopped")
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event SessionEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, event); err != nil {
		d.failed.Add(1)
		log.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to publish session event")
		return
	}
	d.published.Add(1)
}

// Stats returns the dispatcher counters
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Published: d.published.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.queue),
	}
}
