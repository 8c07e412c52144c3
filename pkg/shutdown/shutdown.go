package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the subset of logging.Logger the manager reports through
type Logger interface {
	Error(message string, fields ...map[string]interface{})
}

type cleanup struct {
	name string
	fn   func(context.Context) error
}

// Manager runs exit hooks once the program is terminating normally.
//
// Hooks added with Register run first, in registration order. Cleanups added
// with Defer run afterwards in reverse order, so resources such as the log
// sink outlive every hook that may still write to them.
type Manager struct {
	mu       sync.Mutex
	hooks    []func(context.Context) error
	cleanups []cleanup
	timeout  time.Duration
	logger   Logger
	doneChan chan struct{}
	once     sync.Once
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger Logger) *Manager {
	return &Manager{
		hooks:    make([]func(context.Context) error, 0),
		timeout:  timeout,
		logger:   logger,
		doneChan: make(chan struct{}),
	}
}

// Register adds an exit hook. It is not called until Shutdown.
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Defer adds a resource cleanup that runs after all hooks (LIFO)
func (m *Manager) Defer(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanup{name: name, fn: fn})
}

// Done returns a channel that is closed when shutdown has completed
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Shutdown executes all hooks and cleanups. Only the first call does any
// work; the rest return immediately.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		defer close(m.doneChan)

		m.mu.Lock()
		hooks := append([]func(context.Context) error(nil), m.hooks...)
		cleanups := append([]cleanup(nil), m.cleanups...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i, fn := range hooks {
			if err := fn(ctx); err != nil {
				m.logError(fmt.Sprintf("Exit hook %d failed", i), err)
			}
		}

		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if err := c.fn(ctx); err != nil {
				m.logError(fmt.Sprintf("Cleanup %s failed", c.name), err)
			}
		}
	})
}

func (m *Manager) logError(msg string, err error) {
	if m.logger == nil {
		return
	}
	m.logger.Error(msg, map[string]interface{}{"error": err.Error()})
}

// CloseResource creates a cleanup function for io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}
