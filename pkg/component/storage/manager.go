package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Manager manages multiple storage clients and provides centralized
// health checking and lifecycle management. It is safe for concurrent use.
//
//	mgr := storage.NewManager()
//	mgr.Register("redis", redisClient)
//	statuses := mgr.HealthCheckAll(ctx)
//	defer mgr.CloseAll()
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
	order   []string
}

// NewManager creates a new storage manager instance.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]Client),
	}
}

// Register registers a storage client under name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" || client == nil {
		return ErrInvalidClient
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[name]; ok {
		return fmt.Errorf("%w: %s", ErrClientAlreadyExists, name)
	}
	m.clients[name] = client
	m.order = append(m.order, name)
	return nil
}

// Get returns the client registered under name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, name)
	}
	return c, nil
}

// List returns the registered names, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll pings every registered client concurrently.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	m.mu.RLock()
	clients := make(map[string]Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.mu.RUnlock()

	statuses := make(map[string]HealthStatus, len(clients))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := c.Ping(ctx)
			st := HealthStatus{Name: name, Healthy: err == nil, Latency: time.Since(start)}
			if err != nil {
				st.Error = err.Error()
			}
			mu.Lock()
			statuses[name] = st
			mu.Unlock()
		}()
	}
	wg.Wait()
	return statuses
}

// AllHealthy reports whether every registered client answers Ping.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, st := range m.HealthCheckAll(ctx) {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes clients in reverse registration order and empties the
// registry.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if err := m.clients[name].Close(); err != nil {
			logger.Warnw("failed to close storage client", "name", name, "error", err.Error())
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}
	m.clients = make(map[string]Client)
	m.order = nil
	return utilerrors.NewAggregate(errs)
}
