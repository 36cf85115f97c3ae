package api

import (
	"sync"
)

// SSEEvent is one run event fanned out to SSE and WebSocket subscribers.
type SSEEvent struct {
	Type string
	Data map[string]any
}

// Broker is the in-process fan-out used when no REDIS_URL is configured.
// Slow subscribers drop events rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // runID -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[runID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, runID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(runID string, evt SSEEvent) {
	b.mu.Lock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
