package events

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const queueSize = 256

// Broker queues published events and fans them out to subscribers from a
// single goroutine, so subscribers see events in publish order.
type Broker struct {
	queue  chan Event
	logger *zerolog.Logger

	mu      sync.RWMutex
	subs    []Subscriber
	stopped bool

	seq       atomic.Uint64
	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroker creates a broker. Subscribers may be added before Run.
func NewBroker(logger *zerolog.Logger) *Broker {
	return &Broker{
		queue:  make(chan Event, queueSize),
		logger: logger,
	}
}

// Run delivers queued events until ctx is cancelled, then closes every
// subscriber.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.stop()
			return
		case ev := <-b.queue:
			b.deliver(ev)
		}
	}
}

func (b *Broker) deliver(ev Event) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(ev); err != nil {
			b.logger.Warn().Err(err).
				Str("event_type", string(ev.Type)).
				Uint64("seq", ev.Seq).
				Msg("Subscriber rejected event")
		}
	}
	b.logger.Debug().
		Str("event_type", string(ev.Type)).
		Int("subscribers", len(subs)).
		Msg("Event delivered")
}

func (b *Broker) stop() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.stopped = true
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.logger.Info().Int("subscribers", len(subs)).Msg("Event broker shut down")
}

// Publish stamps and queues an event without blocking. The event is
// dropped and counted when the queue is full.
func (b *Broker) Publish(eventType EventType, data any) {
	ev := Event{
		Seq:       b.seq.Add(1),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	select {
	case b.queue <- ev:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn().Str("event_type", string(eventType)).Msg("Event queue full, event dropped")
	}
}

// Subscribe adds sub. On a stopped broker sub is closed right away.
func (b *Broker) Subscribe(sub Subscriber) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		_ = sub.Close()
		return
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	i := slices.Index(b.subs, sub)
	if i < 0 {
		b.mu.Unlock()
		return
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	b.mu.Unlock()
	_ = sub.Close()
}

// SubscriberCount returns the number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// EventsPublished returns how many events were queued.
func (b *Broker) EventsPublished() int64 { return b.published.Load() }

// EventsDropped returns how many events were dropped on a full queue.
func (b *Broker) EventsDropped() int64 { return b.dropped.Load() }

// QueueDepth returns the number of events waiting for delivery.
func (b *Broker) QueueDepth() int { return len(b.queue) }
