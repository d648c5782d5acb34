package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSubscriber struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (m *mockSubscriber) Send(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSubscriber) received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *mockSubscriber) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, cancel
}

func TestBrokerFanOut(t *testing.T) {
	b, _ := newBroker(t)

	sub1, sub2 := &mockSubscriber{}, &mockSubscriber{}
	b.Subscribe(sub1)
	b.Subscribe(sub2)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 2 }, time.Second, time.Millisecond)

	b.Publish(RecordDeleted, map[string]any{"id": "A"})

	for _, sub := range []*mockSubscriber{sub1, sub2} {
		require.Eventually(t, func() bool { return len(sub.received()) == 1 }, time.Second, time.Millisecond)
		ev := sub.received()[0]
		assert.Equal(t, RecordDeleted, ev.Type)
		assert.Equal(t, map[string]any{"id": "A"}, ev.Data)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, int64(1), b.EventsPublished())
}

func TestBrokerUnsubscribe(t *testing.T) {
	b, _ := newBroker(t)

	sub := &mockSubscriber{}
	b.Subscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	b.Unsubscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, time.Millisecond)
	assert.True(t, sub.isClosed())
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	b, cancel := newBroker(t)

	sub := &mockSubscriber{}
	b.Subscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, time.Millisecond)
	assert.True(t, sub.isClosed())
}

func TestBrokerSubscribeBeforeRun(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)

	done := make(chan struct{})
	go func() {
		for range 5 {
			b.Subscribe(&mockSubscriber{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe blocked before Run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	assert.Eventually(t, func() bool { return b.SubscriberCount() == 5 }, time.Second, time.Millisecond)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)

	for range cap(b.queue) + 3 {
		b.Publish(ReconcileCompleted, nil)
	}
	assert.Equal(t, int64(cap(b.queue)), b.EventsPublished())
	assert.Equal(t, int64(3), b.EventsDropped())
	assert.Equal(t, cap(b.queue), b.QueueDepth())
}

func TestBrokerSequence(t *testing.T) {
	b, _ := newBroker(t)
	sub := &mockSubscriber{}
	b.Subscribe(sub)

	b.Publish(RecordDeleted, "A")
	b.Publish(RecordDeleted, "B")
	b.Publish(ReconcileCompleted, nil)

	require.Eventually(t, func() bool { return len(sub.received()) == 3 }, time.Second, time.Millisecond)
	for i, ev := range sub.received() {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	assert.Equal(t, "B", sub.received()[1].Data)
}

func TestBrokerSubscribeAfterStop(t *testing.T) {
	b, cancel := newBroker(t)
	cancel()

	first := &mockSubscriber{}
	require.Eventually(t, func() bool {
		b.Subscribe(first)
		return first.isClosed()
	}, time.Second, time.Millisecond)
	assert.Zero(t, b.SubscriberCount())
}
