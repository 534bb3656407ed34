package gate

import (
	"fmt"
	"sync/atomic"
)

// UnderflowError reports a Release on a gate whose count is already zero.
// It indicates a caller bug (more releases than acquires) and is never
// recovered from silently: the count stays at zero.
type UnderflowError struct {
	Gate string
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("gate %s: release without matching acquire", e.Gate)
}

// Listener receives edge notifications from a gate. GateAcquired fires when
// the count leaves zero, GateReleased when it returns to zero. Callbacks run
// on the goroutine performing the acquire or release, outside the atomic
// mutation, so they must not block for long.
type Listener interface {
	GateAcquired(name string)
	GateReleased(name string)
}

// Gate is a named non-negative reference counter shared across the whole
// process. Any component may acquire or release it; acquire and release are
// symmetric and carry no owner identity. The run/step engine treats a zero
// count as permission to declare the run or step finished.
//
// One gate instance exists per role (run, step). They are constructed once
// at startup and passed by reference to every component that needs them.
type Gate struct {
	name     string
	count    atomic.Int64
	listener atomic.Value // Listener
}

// New creates a gate with the given role name
func New(name string) *Gate {
	return &Gate{name: name}
}

// Name returns the gate's role name
func (g *Gate) Name() string {
	return g.name
}

// Acquire increments the count. It always succeeds.
func (g *Gate) Acquire() {
	if g.count.Add(1) == 1 {
		if l := g.loadListener(); l != nil {
			l.GateAcquired(g.name)
		}
	}
}

// Release decrements the count. Releasing a gate whose count is already
// zero fails with an UnderflowError and leaves the count untouched.
func (g *Gate) Release() error {
	for {
		c := g.count.Load()
		if c == 0 {
			return &UnderflowError{Gate: g.name}
		}
		if g.count.CompareAndSwap(c, c-1) {
			if c == 1 {
				if l := g.loadListener(); l != nil {
					l.GateReleased(g.name)
				}
			}
			return nil
		}
	}
}

// Count returns the current count
func (g *Gate) Count() int {
	return int(g.count.Load())
}

// Acquired reports whether the count is greater than zero
func (g *Gate) Acquired() bool {
	return g.count.Load() > 0
}

// SetListener installs the edge listener. Only one listener is supported;
// installing nil removes it.
func (g *Gate) SetListener(l Listener) {
	g.listener.Store(holder{l})
}

// holder wraps the listener so atomic.Value sees a single concrete type
// even when different Listener implementations are stored over time.
type holder struct {
	l Listener
}

func (g *Gate) loadListener() Listener {
	v := g.listener.Load()
	if v == nil {
		return nil
	}
	return v.(holder).l
}
