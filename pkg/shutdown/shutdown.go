package shutdown

import (
	"context"
	"sync"
	"time"
)

// Manager runs registered teardown functions once the supervised session is
// over. Signal delivery is owned by the supervisor, so the manager never
// installs its own handlers; callers invoke Shutdown explicitly.
type Manager struct {
	shutdownFuncs []func(context.Context) error
	mu            sync.Mutex
	timeout       time.Duration
	once          sync.Once
	errs          []error
}

// New creates a new shutdown manager
func New(timeout time.Duration) *Manager {
	return &Manager{
		shutdownFuncs: make([]func(context.Context) error, 0),
		timeout:       timeout,
	}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO).
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, fn)
}

// Shutdown executes all registered shutdown functions. Safe to call more
// than once; only the first call runs the functions.
func (m *Manager) Shutdown() []error {
	m.once.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
			if err := m.shutdownFuncs[i](ctx); err != nil {
				m.errs = append(m.errs, err)
			}
		}
	})
	return m.errs
}
