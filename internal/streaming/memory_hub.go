package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

type subscriber struct {
	ch     chan GraphEvent
	filter EventFilter
}

// MemoryHub is an in-process EventHub backed by buffered channels.
type MemoryHub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	dropped atomic.Uint64
	buffer  int
}

// HubOption configures a MemoryHub.
type HubOption func(*MemoryHub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub(opts ...HubOption) *MemoryHub {
	h := &MemoryHub{
		subs:   make(map[uint64]*subscriber),
		buffer: defaultChannelBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends an event to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *MemoryHub) Publish(ctx context.Context, event GraphEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a filtered subscription. The returned cancel function
// unregisters it and closes the channel; calling it twice is safe.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan GraphEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	sub := &subscriber{ch: make(chan GraphEvent, h.buffer), filter: filter}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of events discarded for slow subscribers.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}

func matchFilter(f EventFilter, e GraphEvent) bool {
	if f.DiagramID != "" && f.DiagramID != e.DiagramID {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	return true
}
