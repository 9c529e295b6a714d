package resilience

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	mwopts "github.com/kart-io/bdlaw/pkg/options/middleware"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
)

const defaultMaxBodySize = 4 << 20

// BodyLimit 返回请求体大小限制中间件。
func BodyLimit(maxSize int64) gin.HandlerFunc {
	return BodyLimitWithOptions(mwopts.BodyLimitOptions{MaxSize: maxSize})
}

// BodyLimitWithOptions 先检查 Content-Length，再用 http.MaxBytesReader
// 限制实际读取的字节数（Content-Length 可能缺失或被伪造）。
func BodyLimitWithOptions(opts mwopts.BodyLimitOptions) gin.HandlerFunc {
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxBodySize
	}

	return func(c *gin.Context) {
		req := c.Request
		if req.ContentLength > opts.MaxSize {
			logger.Warnw("request body too large",
				"path", req.URL.Path,
				"content_length", req.ContentLength,
				"max_size", opts.MaxSize,
			)
			response.Fail(c, errors.ErrRequestTooLarge)
			return
		}
		if req.Body != nil {
			req.Body = http.MaxBytesReader(c.Writer, req.Body, opts.MaxSize)
		}
		c.Next()
	}
}
