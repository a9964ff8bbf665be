package service

import (
	"sync"

	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
)

const subscriberBuffer = 128

// EventBus fans job events out to per-job subscriber channels.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string][]chan domain.Event // key: job id
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]chan domain.Event)}
}

// Subscribe returns a channel receiving events for jobID and an unsubscribe func.
// The channel is closed when the job finishes or on unsubscribe.
func (b *EventBus) Subscribe(jobID string) (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, subscriberBuffer)
	b.subs[jobID] = append(b.subs[jobID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[jobID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[jobID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[jobID]) == 0 {
			delete(b.subs, jobID)
		}
	}

	return ch, unsub
}

// Publish delivers e to every subscriber of e.JobID.
// A full subscriber channel drops the event rather than blocking the job.
func (b *EventBus) Publish(e domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.JobID] {
		select {
		case ch <- e:
		default:
			logger.Warn("event bus channel full, dropping event: job_id=%s, type=%s", e.JobID, e.Type)
		}
	}
}

// Close closes and forgets every subscriber of jobID.
func (b *EventBus) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[jobID] {
		close(ch)
	}
	delete(b.subs, jobID)
}
