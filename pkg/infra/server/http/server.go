// Package http provides the gin based HTTP server.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/pkg/infra/middleware"
	"github.com/kart-io/bdlaw/pkg/infra/middleware/observability"
	"github.com/kart-io/bdlaw/pkg/infra/middleware/resilience"
	"github.com/kart-io/bdlaw/pkg/infra/middleware/security"
	options "github.com/kart-io/bdlaw/pkg/options/http"
	apierrors "github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
)

// Server is the HTTP server implementation.
type Server struct {
	opts     *options.Options
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a new HTTP server. Middleware is applied here so every
// route group registered later inherits it.
func NewServer(opts *options.Options) *Server {
	if opts == nil {
		opts = options.NewOptions()
	}
	_ = opts.Complete()

	gin.SetMode(opts.Mode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	s := &Server{
		opts:   opts,
		engine: engine,
	}
	s.applyMiddleware()

	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrNotFound)
	})
	engine.NoMethod(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrNotFound.WithMessage("method not allowed"))
	})

	return s
}

// applyMiddleware 顺序：Recovery → RequestID → Tracing → Logger → CORS → BodyLimit → Timeout
func (s *Server) applyMiddleware() {
	mw := s.opts.Middleware

	s.engine.Use(
		resilience.RecoveryWithOptions(mw.Recovery, nil),
		middleware.RequestID(),
		observability.Tracing(mw.Logger.SkipPaths...),
		observability.LoggerWithOptions(mw.Logger),
	)
	if mw.CORS.Enabled {
		s.engine.Use(security.CORSWithOptions(mw.CORS))
	}
	s.engine.Use(
		resilience.BodyLimitWithOptions(mw.BodyLimit),
		resilience.TimeoutWithOptions(mw.Timeout),
	)
}

// Name returns the server name.
func (s *Server) Name() string {
	return "http[gin]"
}

// Engine returns the underlying gin.Engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("http server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("http server stopped unexpectedly", "addr", ln.Addr().String(), "error", err.Error())
		}
	}()
	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
