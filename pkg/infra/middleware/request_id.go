// Package middleware holds the gin middleware shared by the HTTP server.
// Transport-neutral helpers live in common; the concerns are split into
// observability, resilience and security subpackages.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/bdlaw/pkg/infra/middleware/common"
)

// HeaderXRequestID is re-exported from common.
const HeaderXRequestID = common.HeaderXRequestID

// maxRequestIDLength 超过该长度的外部请求 ID 会被替换
const maxRequestIDLength = 128

// RequestID returns a middleware that tags every request with an ID.
// An incoming X-Request-ID is reused when it looks sane.
func RequestID() gin.HandlerFunc {
	return RequestIDWithGenerator(nil)
}

// RequestIDWithGenerator is RequestID with a custom ID generator.
// A nil generator uses common.GenerateRequestID.
func RequestIDWithGenerator(generate func() string) gin.HandlerFunc {
	if generate == nil {
		generate = common.GenerateRequestID
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if !validRequestID(requestID) {
			requestID = generate()
		}

		c.Header(HeaderXRequestID, requestID)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// GetRequestID returns the request ID stored in the gin context.
func GetRequestID(c *gin.Context) string {
	return common.GetRequestID(c.Request.Context())
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
