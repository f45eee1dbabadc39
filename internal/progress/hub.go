package progress

import (
	"log/slog"
	"strings"
	"sync"

	"audiostream/metasearch/internal/domain"
)

const defaultBuffer = 32

// Hub routes progress events to the subscribers of a channel. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	closed bool
}

type subscriber struct {
	events chan domain.ProgressEvent
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	hub := &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// Subscribe registers a listener on channel. The returned func detaches it and
// closes the event stream; calling it more than once is safe.
func (h *Hub) Subscribe(channel string) (<-chan domain.ProgressEvent, func()) {
	channel = strings.TrimSpace(channel)
	sub := &subscriber{events: make(chan domain.ProgressEvent, h.buffer)}

	h.mu.Lock()
	if h.closed || channel == "" {
		h.mu.Unlock()
		sub.close()
		return sub.events, func() {}
	}
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[channel] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub.events, func() { h.remove(channel, sub) }
}

func (h *Hub) remove(channel string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[channel]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, channel)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish delivers event to every current subscriber of channel.
func (h *Hub) Publish(channel string, event domain.ProgressEvent) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[channel] {
		select {
		case sub.events <- event:
		default:
			slog.Debug("progress event dropped", slog.String("channel", channel))
		}
	}
}

// Subscribers reports how many listeners channel has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.TrimSpace(channel)])
}

// Close detaches every subscriber. Later subscriptions receive a closed stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for channel, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, channel)
	}
}
