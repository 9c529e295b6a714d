// Package resilience provides panic recovery, request timeout and body size
// middleware.
package resilience

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/bdlaw/pkg/options/middleware"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
)

// PanicHandler 在 panic 被恢复后调用，可用于告警。
type PanicHandler func(c *gin.Context, err interface{}, stack []byte)

// Recovery returns a middleware that recovers from panics with default options.
func Recovery() gin.HandlerFunc {
	return RecoveryWithOptions(mwopts.RecoveryOptions{}, nil)
}

// RecoveryWithOptions 恢复 panic 并返回 ErrPanic。
// 堆栈总是写入日志；仅在非生产环境且 EnableStackTrace 打开时返回给客户端。
func RecoveryWithOptions(opts mwopts.RecoveryOptions, onPanic PanicHandler) gin.HandlerFunc {
	withStack := stackTraceAllowed(opts.EnableStackTrace, isProductionEnvironment())

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()

			logger.Errorw("panic recovered",
				"panic", r,
				"stack_trace", string(stack),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", common.GetRequestID(c.Request.Context()),
			)

			if onPanic != nil {
				onPanic(c, r, stack)
			}

			// 流式响应已经开始时只能中断连接
			if c.Writer.Written() {
				c.Abort()
				return
			}

			message := fmt.Sprintf("panic: %v", r)
			if withStack {
				message = fmt.Sprintf("panic: %v\n%s", r, stack)
			}
			response.Fail(c, errors.ErrPanic.WithMessage(message))
		}()
		c.Next()
	}
}

// isProductionEnvironment checks BDLAW_ENV, then APP_ENV and GO_ENV.
func isProductionEnvironment() bool {
	for _, key := range []string{"BDLAW_ENV", "APP_ENV", "GO_ENV"} {
		if env := os.Getenv(key); env != "" {
			switch strings.ToLower(env) {
			case "production", "prod":
				return true
			}
			return false
		}
	}
	return false
}

func stackTraceAllowed(enabled, isProd bool) bool {
	if isProd && enabled {
		logger.Warn("Stack trace is enabled but running in production environment. " +
			"Stack trace will NOT be returned to clients.")
		return false
	}
	return enabled
}
