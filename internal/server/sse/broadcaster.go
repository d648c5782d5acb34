// Package sse streams events to Server-Sent Events clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const clientBuffer = 64

// Event is one SSE message. Data is written as JSON.
type Event struct {
	Event string `json:"event,omitempty"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// Broadcaster keeps one buffered channel per connected stream. A stream
// whose buffer is full misses the event rather than stalling the others.
type Broadcaster struct {
	logger *zerolog.Logger

	mu      sync.RWMutex
	streams map[chan Event]struct{}
	stopped bool
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logger,
		streams: make(map[chan Event]struct{}),
	}
}

// Run blocks until ctx is cancelled and then ends every open stream.
func (b *Broadcaster) Run(ctx context.Context) {
	<-ctx.Done()

	b.mu.Lock()
	b.stopped = true
	for ch := range b.streams {
		close(ch)
	}
	n := len(b.streams)
	clear(b.streams)
	b.mu.Unlock()

	b.logger.Info().Int("streams", n).Msg("SSE broadcaster shut down")
}

// Broadcast offers ev to every stream without blocking.
func (b *Broadcaster) Broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.streams {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Str("event", ev.Event).Msg("SSE stream buffer full, event skipped")
		}
	}
}

// ClientCount returns the number of open streams.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams)
}

func (b *Broadcaster) open() (chan Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, false
	}
	ch := make(chan Event, clientBuffer)
	b.streams[ch] = struct{}{}
	b.logger.Debug().Int("streams", len(b.streams)).Msg("SSE client connected")
	return ch, true
}

func (b *Broadcaster) release(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.streams[ch]; ok {
		delete(b.streams, ch)
		close(ch)
	}
	b.logger.Debug().Int("streams", len(b.streams)).Msg("SSE client disconnected")
}

// ServeHTTP streams events to one client until it disconnects or the
// broadcaster stops.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, ok := b.open()
	if !ok {
		http.Error(w, "Event stream stopped", http.StatusServiceUnavailable)
		return
	}
	defer b.release(ch)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	hello := Event{Event: "connected", Data: map[string]any{"timestamp": time.Now().UTC()}}
	if err := write(w, hello); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := write(w, ev); err != nil {
				b.logger.Debug().Err(err).Msg("SSE write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// write encodes ev in the text/event-stream wire format.
func write(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if ev.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
			return err
		}
	}
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
