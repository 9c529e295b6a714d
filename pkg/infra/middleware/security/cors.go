// Package security provides CORS middleware.
package security

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/bdlaw/pkg/options/middleware"
)

// CORS returns a middleware that adds CORS headers with default options.
func CORS() gin.HandlerFunc {
	return CORSWithOptions(mwopts.NewOptions().CORS)
}

// ValidateCORSOptions checks origins and the wildcard/credentials conflict.
func ValidateCORSOptions(opts mwopts.CORSOptions) error {
	if len(opts.AllowOrigins) == 0 {
		return fmt.Errorf("CORS: AllowOrigins must be explicitly configured, empty list not allowed")
	}

	hasWildcard := false
	for _, origin := range opts.AllowOrigins {
		if origin == "*" {
			hasWildcard = true
			continue
		}
		if err := validateOriginFormat(origin); err != nil {
			return fmt.Errorf("CORS: invalid origin format '%s': %w", origin, err)
		}
	}

	if hasWildcard && opts.AllowCredentials {
		return fmt.Errorf("CORS: cannot use wildcard origin '*' with AllowCredentials=true")
	}
	return nil
}

// validateOriginFormat requires scheme://host[:port].
func validateOriginFormat(origin string) error {
	idx := strings.Index(origin, "://")
	if idx <= 0 {
		return fmt.Errorf("origin must include scheme (http:// or https://)")
	}
	if strings.ContainsAny(origin[idx+3:], "/?#") {
		return fmt.Errorf("origin should not include path, query, or fragment")
	}
	return nil
}

// CORSWithOptions returns a CORS middleware. Invalid options panic, since
// they are a startup configuration error.
func CORSWithOptions(opts mwopts.CORSOptions) gin.HandlerFunc {
	if err := ValidateCORSOptions(opts); err != nil {
		panic(err)
	}

	if len(opts.AllowMethods) == 0 {
		opts.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opts.AllowHeaders) == 0 {
		opts.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = 86400
	}

	allowMethods := strings.Join(opts.AllowMethods, ", ")
	allowHeaders := strings.Join(opts.AllowHeaders, ", ")
	exposeHeaders := strings.Join(opts.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(opts.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigin := ""
		for _, o := range opts.AllowOrigins {
			if o == "*" || o == origin {
				allowedOrigin = o
				break
			}
		}
		if allowedOrigin == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if opts.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
