package channel

import (
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	values []interface{}
}

func (r *recorder) DataAdded(value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, value)
}

func (r *recorder) snapshot() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interface{}, len(r.values))
	copy(out, r.values)
	return out
}

func TestFanOut(t *testing.T) {
	c := New("rate")
	a := &recorder{}
	b := &recorder{}
	c.Subscribe(a)
	c.Subscribe(b)

	c.AddData(1)
	c.AddData(2)

	for name, r := range map[string]*recorder{"a": a, "b": b} {
		got := r.snapshot()
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("Listener %s got %v, want [1 2]", name, got)
		}
	}
}

func TestSubscribeTwiceIsNoop(t *testing.T) {
	c := New("counts")
	r := &recorder{}
	c.Subscribe(r)
	c.Subscribe(r)

	c.AddData(7)
	if got := r.snapshot(); len(got) != 1 {
		t.Errorf("Expected one delivery for a double-subscribed listener, got %d", len(got))
	}
}

func TestUnsubscribe(t *testing.T) {
	c := New("counts")
	r := &recorder{}
	c.Subscribe(r)
	c.Unsubscribe(r)

	c.AddData(7)
	if got := r.snapshot(); len(got) != 0 {
		t.Errorf("Expected no deliveries after unsubscribe, got %v", got)
	}

	// Unsubscribing an unknown listener is harmless
	c.Unsubscribe(&recorder{})
}

func TestCloseDropsLateData(t *testing.T) {
	c := New("raw")
	r := &recorder{}
	c.Subscribe(r)

	c.AddData(1)
	c.Close()
	c.AddData(2)

	if !c.Closed() {
		t.Error("Expected channel to report closed")
	}
	if got := r.snapshot(); len(got) != 1 {
		t.Errorf("Expected data after close to be dropped, got %v", got)
	}
}
