// Package observability provides access logging and tracing middleware.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/pkg/infra/middleware/common"
	"github.com/kart-io/bdlaw/pkg/infra/middleware/internal/pathutil"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
	mwopts "github.com/kart-io/bdlaw/pkg/options/middleware"
)

// fieldsPool reuses the key/value slices handed to the logger.
var fieldsPool = sync.Pool{
	New: func() interface{} {
		s := make([]interface{}, 0, 20)
		return &s
	},
}

func acquireFields() *[]interface{} {
	return fieldsPool.Get().(*[]interface{})
}

func releaseFields(fields *[]interface{}) {
	*fields = (*fields)[:0]
	fieldsPool.Put(fields)
}

// Logger returns an access-log middleware with default options.
func Logger() gin.HandlerFunc {
	return LoggerWithOptions(mwopts.NewOptions().Logger)
}

// LoggerWithOptions 返回访问日志中间件。
// 5xx 记为 error，4xx 记为 warn，其余为 info；SkipPaths 中的路径不记录。
func LoggerWithOptions(opts mwopts.LoggerOptions) gin.HandlerFunc {
	skip := pathutil.NewPathMatcher(opts.SkipPaths, nil)

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip(path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := acquireFields()
		defer releaseFields(fields)

		status := c.Writer.Status()
		*fields = append(*fields,
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"client_ip", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
			"bytes", c.Writer.Size(),
		)
		ctx := c.Request.Context()
		if requestID := common.GetRequestID(ctx); requestID != "" {
			*fields = append(*fields, "request_id", requestID)
		}
		if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
			*fields = append(*fields, "trace_id", traceID)
		}
		if len(c.Errors) > 0 {
			*fields = append(*fields, "errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Errorw("HTTP Request", (*fields)...)
		case status >= http.StatusBadRequest:
			logger.Warnw("HTTP Request", (*fields)...)
		default:
			logger.Infow("HTTP Request", (*fields)...)
		}
	}
}
