// Package channel provides the thin pub/sub transport devices publish
// their samples to. It is a plain fan-out: values are delivered to every
// subscribed listener in subscription order, one value at a time per
// channel, with no buffering of its own.
package channel

import "sync"

// Listener receives values published on a channel
type Listener interface {
	DataAdded(value interface{})
}

// Channel is a named sink devices emit measurement values into
type Channel struct {
	name string

	mu        sync.RWMutex
	listeners []Listener
	closed    bool
}

// New creates an open channel with the given name
func New(name string) *Channel {
	return &Channel{name: name}
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// AddData publishes a value to every subscribed listener. Values added
// after Close are dropped.
func (c *Channel) AddData(value interface{}) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l.DataAdded(value)
	}
}

// Subscribe registers a listener. Subscribing the same listener twice is
// a no-op.
func (c *Channel) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.listeners {
		if existing == l {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

// Unsubscribe removes a previously registered listener
func (c *Channel) Unsubscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Close marks the channel closed and drops all listeners. Further AddData
// calls are ignored, which lets a worker still draining its last samples
// shut down without racing the teardown.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.listeners = nil
}

// Closed reports whether the channel has been closed
func (c *Channel) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
