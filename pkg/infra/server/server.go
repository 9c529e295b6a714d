package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/bdlaw/pkg/infra/server/http"
	httpopts "github.com/kart-io/bdlaw/pkg/options/http"
)

// Options configures the Manager.
type Options struct {
	HTTP            *httpopts.Options
	ShutdownTimeout time.Duration
}

// Option is a function that configures Options.
type Option func(*Options)

// WithHTTPOptions enables the HTTP server with the given options.
func WithHTTPOptions(opts *httpopts.Options) Option {
	return func(o *Options) {
		o.HTTP = opts
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager manages the HTTP server, custom servers and shutdown hooks with a
// unified lifecycle.
type Manager struct {
	opts       *Options
	httpServer *http.Server
	servers    []Runnable
	closers    []closer
	mu         sync.Mutex
	started    bool
	stopped    bool
}

// NewManager creates a new server manager with the given options.
func NewManager(opts ...Option) *Manager {
	o := &Options{ShutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	m := &Manager{opts: o}
	if o.HTTP != nil {
		m.httpServer = http.NewServer(o.HTTP)
	}
	return m
}

// HTTPServer returns the HTTP server (nil if not enabled).
func (m *Manager) HTTPServer() *http.Server {
	return m.httpServer
}

// AddServer adds a custom server to the manager.
func (m *Manager) AddServer(server Runnable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, server)
}

// OnShutdown registers fn to run after the servers have stopped. Hooks run
// in reverse registration order, so resources built first are closed last.
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, closer{name: name, fn: fn})
}

// Start starts all servers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("server manager already started or stopped")
	}
	m.started = true
	servers := append([]Runnable(nil), m.servers...)
	m.mu.Unlock()

	if m.httpServer != nil {
		if err := m.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		logger.Infow("HTTP server started", "addr", m.httpServer.Addr())
	}

	for i, server := range servers {
		if err := server.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = servers[j].Stop(ctx)
			}
			if m.httpServer != nil {
				_ = m.httpServer.Stop(ctx)
			}
			return fmt.Errorf("failed to start server %s: %w", server.Name(), err)
		}
		logger.Infow("Custom server started", "name", server.Name())
	}

	return nil
}

// Stop stops all servers gracefully, then runs the shutdown hooks. Hooks
// also run when the manager was never started, so a failed setup can release
// what it acquired. Only the first call has an effect.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	m.started = false
	servers := append([]Runnable(nil), m.servers...)
	closers := append([]closer(nil), m.closers...)
	m.mu.Unlock()

	var errs []error

	if started {
		// 先停止接收新请求
		if m.httpServer != nil {
			if err := m.httpServer.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
			}
			logger.Info("HTTP server stopped")
		}

		for i := len(servers) - 1; i >= 0; i-- {
			if err := servers[i].Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop server %s: %w", servers[i].Name(), err))
			}
		}
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(ctx); err != nil {
			logger.Warnw("shutdown hook failed", "name", closers[i].name, "error", err.Error())
			errs = append(errs, fmt.Errorf("failed to close %s: %w", closers[i].name, err))
		}
	}

	return utilerrors.NewAggregate(errs)
}

// Run starts all servers and blocks until SIGINT/SIGTERM or ctx is done,
// then shuts down within ShutdownTimeout.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		_ = m.Stop(context.Background())
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Infow("Server shutting down...", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Server shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
	defer cancel()
	return m.Stop(shutdownCtx)
}
