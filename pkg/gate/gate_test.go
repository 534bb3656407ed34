package gate

import (
	"errors"
	"sync"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	g := New("run")

	if g.Count() != 0 {
		t.Fatalf("Expected initial count 0, got %d", g.Count())
	}
	if g.Acquired() {
		t.Error("Fresh gate should not be acquired")
	}

	g.Acquire()
	g.Acquire()
	if g.Count() != 2 {
		t.Errorf("Expected count 2 after two acquires, got %d", g.Count())
	}
	if !g.Acquired() {
		t.Error("Gate with count 2 should be acquired")
	}

	if err := g.Release(); err != nil {
		t.Errorf("Release with count 2 should succeed, got %v", err)
	}
	if err := g.Release(); err != nil {
		t.Errorf("Release with count 1 should succeed, got %v", err)
	}
	if g.Count() != 0 {
		t.Errorf("Expected count 0 after balanced releases, got %d", g.Count())
	}
}

func TestReleaseUnderflow(t *testing.T) {
	g := New("step")

	err := g.Release()
	if err == nil {
		t.Fatal("Release on zero count should fail")
	}

	var underflow *UnderflowError
	if !errors.As(err, &underflow) {
		t.Fatalf("Expected UnderflowError, got %T: %v", err, err)
	}
	if underflow.Gate != "step" {
		t.Errorf("Expected gate name step in error, got %s", underflow.Gate)
	}
	if g.Count() != 0 {
		t.Errorf("Underflow must leave count at zero, got %d", g.Count())
	}

	// The gate stays usable after an underflow
	g.Acquire()
	if err := g.Release(); err != nil {
		t.Errorf("Release after recovery should succeed, got %v", err)
	}
}

func TestConcurrentBalance(t *testing.T) {
	g := New("run")

	const workers = 32
	const cycles = 200

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < cycles; j++ {
				g.Acquire()
				if err := g.Release(); err != nil {
					t.Errorf("Unexpected release error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if g.Count() != 0 {
		t.Errorf("Expected count 0 after balanced concurrent cycles, got %d", g.Count())
	}
}

type recordingListener struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (r *recordingListener) GateAcquired(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired = append(r.acquired, name)
}

func (r *recordingListener) GateReleased(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, name)
}

func TestListenerEdges(t *testing.T) {
	g := New("run")
	l := &recordingListener{}
	g.SetListener(l)

	// Only the 0->1 transition notifies acquisition
	g.Acquire()
	g.Acquire()
	if len(l.acquired) != 1 {
		t.Errorf("Expected one acquired notification, got %d", len(l.acquired))
	}

	// Only the ->0 transition notifies release
	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if len(l.released) != 0 {
		t.Errorf("Expected no released notification at count 1, got %d", len(l.released))
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if len(l.released) != 1 {
		t.Errorf("Expected one released notification at count 0, got %d", len(l.released))
	}
	if l.released[0] != "run" {
		t.Errorf("Expected gate name run, got %s", l.released[0])
	}
}
