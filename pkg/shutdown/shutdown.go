// Package shutdown coordinates graceful daemon teardown. Registered
// functions run in reverse order so the API stops accepting requests
// before devices finalize and the store closes last.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/acqlab/instrumentd/pkg/logging"
)

// Manager collects shutdown functions and runs them LIFO on signal
type Manager struct {
	shutdownFuncs []func(context.Context) error
	names         []string
	mu            sync.Mutex
	timeout       time.Duration
	log           *logging.Logger
	doneChan      chan struct{}
	once          sync.Once
}

// New creates a shutdown manager with an overall teardown timeout
func New(timeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		timeout:  timeout,
		log:      log,
		doneChan: make(chan struct{}),
	}
}

// Register adds a named shutdown function. Functions run in reverse
// registration order.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	m.shutdownFuncs = append(m.shutdownFuncs, fn)
}

// Done returns a channel closed once shutdown has been initiated
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Wait blocks until SIGTERM or SIGINT, then runs the teardown
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	m.log.Info("shutdown signal received", logging.Fields{"signal": sig.String()})

	m.once.Do(func() { close(m.doneChan) })
	m.Shutdown()
}

// Shutdown executes all registered functions in reverse order
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		if err := m.shutdownFuncs[i](ctx); err != nil {
			m.log.Warn("shutdown step error", logging.Fields{
				"step":  m.names[i],
				"error": err.Error(),
			})
			continue
		}
		m.log.Debug("shutdown step complete", logging.Fields{"step": m.names[i]})
	}

	m.log.Info("shutdown complete")
}

// CloseResource wraps an io.Closer as a shutdown function
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}
