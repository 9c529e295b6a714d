package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/pkg/infra/middleware/internal/pathutil"
	mwopts "github.com/kart-io/bdlaw/pkg/options/middleware"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
)

// Timeout returns a middleware that bounds request processing time.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return TimeoutWithOptions(mwopts.TimeoutOptions{Timeout: timeout})
}

// TimeoutWithOptions 为请求上下文设置截止时间。
//
// 处理函数在同一 goroutine 中运行，依赖 ctx 取消来中止下游调用（LLM、向量库）。
// 截止时间到达且尚未写出响应时返回 ErrTimeout。SkipPaths 用于流式接口。
// Timeout 为 0 时中间件不生效。
func TimeoutWithOptions(opts mwopts.TimeoutOptions) gin.HandlerFunc {
	skip := pathutil.NewPathMatcher(opts.SkipPaths, nil)

	return func(c *gin.Context) {
		if opts.Timeout <= 0 || skip(c.Request.URL.Path) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if !stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		logger.Warnw("request timed out",
			"path", c.Request.URL.Path,
			"timeout", opts.Timeout.String(),
		)
		if !c.Writer.Written() {
			response.Fail(c, errors.ErrTimeout)
		}
	}
}
