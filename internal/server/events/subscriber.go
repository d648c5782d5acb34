package events

// Subscriber receives every event the broker delivers.
type Subscriber interface {
	// Send hands over one event. It is called from the broker goroutine
	// and must not block.
	Send(Event) error

	// Close is called once when the subscriber is removed or the broker stops.
	Close() error
}
