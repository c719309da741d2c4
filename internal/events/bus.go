package events

import (
	"sync"
)

// Bus is a lightweight pub/sub broker using channels. It decouples the
// core components from the UI and notification sinks: publishers never
// block, slow subscribers drop.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event and returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fan-outs the payload to subscribers asynchronously to avoid blocking.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}

// Log publishes a plain informational line for the UI sink.
func (b *Bus) Log(message string) {
	b.Publish(EventLogLine, LogLine{Message: message, Kind: KindInfo})
}

// Logf is Log with detail text that only file/DB sinks record.
func (b *Bus) Logf(message, detail string) {
	b.Publish(EventLogLine, LogLine{Message: message, Detail: detail, Kind: KindInfo})
}

// Error publishes an error line; the notification sink may forward it.
func (b *Bus) Error(message string) {
	b.Publish(EventLogLine, LogLine{Message: message, Kind: KindError})
}

// Alert publishes an incoming-alert line; the notification sink may forward it.
func (b *Bus) Alert(message string) {
	b.Publish(EventLogLine, LogLine{Message: message, Kind: KindAlert})
}
