package observability

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/bdlaw/pkg/infra/middleware/common"
	"github.com/kart-io/bdlaw/pkg/infra/middleware/internal/pathutil"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
)

// Tracing starts a server span per request.
//
// The incoming W3C trace context is extracted so spans join the caller's
// trace; the span is stored in the request context so the pipeline stages
// started by the handlers become its children.
func Tracing(skipPaths ...string) gin.HandlerFunc {
	skip := pathutil.NewPathMatcher(skipPaths, nil)
	tracer := otel.Tracer(tracing.TracerName)

	return func(c *gin.Context) {
		req := c.Request
		if skip(req.URL.Path) {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(req.Method),
				semconv.HTTPRoute(route),
				semconv.HTTPTarget(req.URL.Path),
				semconv.UserAgentOriginal(req.UserAgent()),
			),
		)
		defer span.End()

		if requestID := common.GetRequestID(ctx); requestID != "" {
			span.SetAttributes(attribute.String("http.request_id", requestID))
		}

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last())
			}
		}
	}
}
