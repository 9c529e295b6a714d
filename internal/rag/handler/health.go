package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/bdlaw/pkg/component/storage"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
)

const (
	healthTimeout    = 3 * time.Second
	metricsNamespace = "bdlaw"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string                          `json:"status"`
	Storage map[string]storage.HealthStatus `json:"storage,omitempty"`
}

// Health reports whether every registered backing store answers a ping.
func (h *RAGHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		resp.Storage = h.health.HealthCheckAll(ctx)
		for _, st := range resp.Storage {
			if !st.Healthy {
				resp.Status = "degraded"
			}
		}
	}

	if resp.Status != "ok" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{
			Code:     errors.ErrServiceUnavailable.Code,
			HTTPCode: http.StatusServiceUnavailable,
			Message:  errors.ErrServiceUnavailable.MessageEN,
			Data:     resp,
		})
		return
	}
	response.OK(c, resp)
}

// Metrics exports pipeline counters in Prometheus text format.
func (h *RAGHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(h.metrics.Export(metricsNamespace)))
}
