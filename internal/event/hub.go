package event

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const defaultBufferSize = 64

type subscription struct {
	id    uint64
	ch    chan Event
	types map[Type]struct{} // nil means all types
}

func (s subscription) wants(t Type) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Hub fans events out to subscribers. Delivery is at-least-once per
// occurrence within the process lifetime for subscribers that keep up;
// a full subscriber buffer drops the event for that subscriber only.
// No ordering is guaranteed across categories.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]subscription
	nextID  uint64
	closed  bool
	bufSize int
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]subscription), bufSize: defaultBufferSize}
}

// Subscribe registers a listener for the given categories; with no
// types it receives everything. The cancel func is idempotent and
// closes the channel.
func (h *Hub) Subscribe(types ...Type) (<-chan Event, func()) {
	var typeSet map[Type]struct{}
	if len(types) > 0 {
		typeSet = make(map[Type]struct{}, len(types))
		for _, t := range types {
			typeSet[t] = struct{}{}
		}
	}

	ch := make(chan Event, h.bufSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = subscription{id: id, ch: ch, types: typeSet}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish never blocks the caller.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		if !s.wants(e.Type()) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			n := h.dropped.Add(1)
			log.Warn().Str("module", "event.hub").Str("type", string(e.Type())).Int64("dropped_total", n).Msg("slow subscriber, event dropped")
		}
	}
}

// Dropped returns the total number of events dropped on full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}
