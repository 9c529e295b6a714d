// Package handler provides HTTP handlers for the law question answering
// service.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/internal/rag/biz"
	"github.com/kart-io/bdlaw/internal/rag/feedback"
	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/component/storage"
	"github.com/kart-io/bdlaw/pkg/infra/middleware"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
	"github.com/kart-io/bdlaw/pkg/utils/validator"
)

// HeaderMessageID 流式回答通过该响应头返回助手消息 ID。
const HeaderMessageID = "X-Message-ID"

// HealthChecker probes backing stores.
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) map[string]storage.HealthStatus
}

// RAGHandler handles chat, feedback, indexing and status requests.
type RAGHandler struct {
	svc      biz.Service
	feedback feedback.Sink
	metrics  *metrics.RAGMetrics
	health   HealthChecker
}

// NewRAGHandler creates a new RAGHandler. health may be nil.
func NewRAGHandler(svc biz.Service, sink feedback.Sink, m *metrics.RAGMetrics, health HealthChecker) *RAGHandler {
	if m == nil {
		m = metrics.GetRAGMetrics()
	}
	return &RAGHandler{
		svc:      svc,
		feedback: sink,
		metrics:  m,
		health:   health,
	}
}

// ChatRequest is the request body of POST /v1/chat.
type ChatRequest struct {
	// Messages 完整对话，最后一条必须来自用户
	Messages    []biz.ConversationMessage `json:"messages" binding:"required,min=1,lastuser,dive"`
	Temperature float32                   `json:"temperature" binding:"gte=0,lte=2"`
	MaxTokens   int                       `json:"max_tokens" binding:"gte=0"`
	Stream      bool                      `json:"stream"`
}

// ChatResponse is the data of a non-streamed answer.
type ChatResponse struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	Language biz.Language `json:"language"`
	CacheHit bool         `json:"cache_hit,omitempty"`
}

// Chat answers the last user message. Streamed answers are written as
// chunked plain text and flushed per chunk; the message ID is sent in the
// X-Message-ID header.
func (h *RAGHandler) Chat(c *gin.Context) {
	lang := requestLang(c)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithLang(c, bindError(err, lang), lang)
		return
	}

	ctx := c.Request.Context()
	result, err := h.svc.Answer(ctx, &biz.AnswerRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	})
	if err != nil {
		logger.Warnw("chat failed",
			"request_id", middleware.GetRequestID(c),
			"error", err.Error(),
		)
		response.FailWithLang(c, err, lang)
		return
	}

	if result.Stream == nil {
		resp := ChatResponse{ID: result.ID, Content: result.Text, CacheHit: result.CacheHit}
		if result.Rewrite != nil {
			resp.Language = result.Rewrite.Language
		}
		response.OK(c, resp)
		return
	}

	stream := result.Stream
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header(HeaderMessageID, result.ID)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		chunk, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			logger.Debugw("client went away during streaming",
				"message_id", result.ID,
				"error", err.Error(),
			)
			return
		}
		c.Writer.Flush()
	}
}

// IndexDocument is one law section in an index request.
type IndexDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

// IndexRequest is the request body of POST /v1/index.
type IndexRequest struct {
	Documents []IndexDocument `json:"documents" binding:"required,min=1,max=1000,dive"`
}

// Index stores law sections in the vector store.
func (h *RAGHandler) Index(c *gin.Context) {
	lang := requestLang(c)

	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithLang(c, bindError(err, lang), lang)
		return
	}

	docs := make([]*store.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, &store.Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata})
	}

	n, err := h.svc.Index(c.Request.Context(), docs)
	if err != nil {
		response.FailWithLang(c, err, lang)
		return
	}
	response.OK(c, gin.H{"indexed": n})
}

// Stats returns corpus size and pipeline counters.
func (h *RAGHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.FailWithLang(c, err, requestLang(c))
		return
	}
	response.OK(c, stats)
}

// requestLang picks the message language from Accept-Language.
func requestLang(c *gin.Context) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.GetHeader("Accept-Language"))), validator.LangBN) {
		return validator.LangBN
	}
	return validator.LangEN
}

// bindError converts a binding failure into ErrBadRequest carrying the
// translated message.
func bindError(err error, lang string) error {
	errs := validator.Global().Translate(err, lang)
	if !errs.HasErrors() {
		return errors.ErrBadRequest.WithCause(err)
	}
	e := errors.ErrBadRequest.WithMessage(errs.Error()).WithCause(err)
	if lang == validator.LangBN {
		e.MessageBN = errs.Error()
	}
	return e
}
