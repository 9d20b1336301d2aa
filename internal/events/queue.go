// Package events carries domain events from the poller to outbound sinks
// over a bounded in-memory queue. Delivery is best effort: a full queue
// drops the event rather than stalling a poll cycle.
package events

import (
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

type Queue struct {
	log zerolog.Logger
	ch  chan domain.Event
}

func NewQueue(size int, log zerolog.Logger) *Queue {
	return &Queue{
		log: log.With().Str("module", "events").Logger(),
		ch:  make(chan domain.Event, size),
	}
}

// Publish enqueues an event without blocking. Dropped events are logged;
// consumers must tolerate gaps.
func (q *Queue) Publish(event domain.Event) {
	select {
	case q.ch <- event:
	default:
		q.log.Warn().Type("event", event).Msg("queue full, dropping event")
	}
}

// C is the consumer side of the queue.
func (q *Queue) C() <-chan domain.Event {
	return q.ch
}

// Close stops the queue. Publish must not be called after Close.
func (q *Queue) Close() {
	close(q.ch)
}
