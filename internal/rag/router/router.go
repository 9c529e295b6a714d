// Package router registers the law question answering routes.
package router

import (
	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/internal/rag/handler"
	"github.com/kart-io/bdlaw/pkg/infra/server"
)

// Register registers the RAG service routes on the manager's HTTP server.
func Register(mgr *server.Manager, h *handler.RAGHandler) error {
	httpServer := mgr.HTTPServer()
	if httpServer == nil {
		logger.Warn("HTTP server disabled, no routes registered")
		return nil
	}

	engine := httpServer.Engine()
	engine.GET("/healthz", h.Health)
	engine.GET("/health", h.Health)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/v1")
	{
		v1.POST("/chat", h.Chat)
		v1.POST("/feedback", h.Feedback)
		v1.POST("/index", h.Index)
		v1.GET("/stats", h.Stats)
	}

	logger.Infow("HTTP routes registered", "addr", httpServer.Addr())
	return nil
}
