package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Manager owns the named pools of the process.
type Manager struct {
	mu     sync.RWMutex
	pools  map[Type]*Pool
	closed bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{pools: make(map[Type]*Pool)}
}

// NewDefaultManager registers the history and index pools.
func NewDefaultManager() (*Manager, error) {
	m := NewManager()
	for typ, cfg := range map[Type]*Config{
		HistoryPool: HistoryPoolConfig(),
		IndexPool:   IndexPoolConfig(),
	} {
		if err := m.Register(typ, cfg); err != nil {
			_ = m.ReleaseTimeout(time.Second)
			return nil, err
		}
	}
	return m, nil
}

// Register creates and registers a pool.
func (m *Manager) Register(typ Type, config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPoolClosed
	}
	if _, ok := m.pools[typ]; ok {
		return ErrPoolAlreadyExists
	}
	p, err := NewPool(string(typ), config)
	if err != nil {
		return err
	}
	m.pools[typ] = p
	return nil
}

// Get returns the pool registered for typ.
func (m *Manager) Get(typ Type) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[typ]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// Submit runs task on the pool registered for typ.
func (m *Manager) Submit(typ Type, task func()) error {
	p, err := m.Get(typ)
	if err != nil {
		return err
	}
	return p.Submit(task)
}

// SubmitWithContext runs task on the pool registered for typ unless ctx is
// done before it starts.
func (m *Manager) SubmitWithContext(ctx context.Context, typ Type, task func()) error {
	p, err := m.Get(typ)
	if err != nil {
		return err
	}
	return p.SubmitWithContext(ctx, task)
}

// Stats returns a snapshot keyed by pool name.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.pools))
	for typ, p := range m.pools {
		out[string(typ)] = p.Stats()
	}
	return out
}

// List returns the registered pool names, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.pools))
	for typ := range m.pools {
		names = append(names, string(typ))
	}
	sort.Strings(names)
	return names
}

// ReleaseTimeout releases every pool, waiting up to timeout for each.
func (m *Manager) ReleaseTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for typ, p := range m.pools {
		if err := p.ReleaseTimeout(timeout); err != nil {
			logger.Warnw("worker pool did not drain in time", "pool", string(typ), "error", err.Error())
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}
