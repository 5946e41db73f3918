package changefeed

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

var _ Subscriber = (*Hub)(nil)

// Hub fans published events out to in-process subscribers. Slow subscribers
// lose events once their buffer is full rather than blocking publishers.
type Hub struct {
	mu        sync.Mutex
	subs      map[chan Event]struct{}
	buffer    int
	connected atomic.Bool
}

// NewHub returns a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Publish delivers ev to every current subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe implements Subscriber. Registration happens when iteration
// starts and is undone when it stops.
func (h *Hub) Subscribe(ctx context.Context, tables ...string) iter.Seq2[Event, error] {
	seq := func(yield func(Event, error) bool) {
		ch := make(chan Event, h.buffer)
		h.mu.Lock()
		h.subs[ch] = struct{}{}
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
	return Filter(seq, tables...)
}

// Relay publishes the events of src until src fails or ctx ends. It
// returns the subscription error, or ctx.Err() after cancellation.
func (h *Hub) Relay(ctx context.Context, src Subscriber, tables ...string) error {
	h.connected.Store(true)
	defer h.connected.Store(false)

	for ev, err := range src.Subscribe(ctx, tables...) {
		if err != nil {
			return err
		}
		h.Publish(ev)
	}
	return ctx.Err()
}

// Connected reports whether a Relay is running.
func (h *Hub) Connected() bool {
	return h.connected.Load()
}
