package channel

import (
	"sort"
	"sync"
)

// Hub is the process-wide registry of named data channels
type Hub struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{channels: make(map[string]*Channel)}
}

// Open returns the channel with the given name, creating it on first use
func (h *Hub) Open(name string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.channels[name]; ok {
		return c
	}
	c := New(name)
	h.channels[name] = c
	return c
}

// Get returns the channel with the given name if it exists
func (h *Hub) Get(name string) (*Channel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[name]
	return c, ok
}

// Names returns all channel names in sorted order
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
