package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
	"github.com/kart-io/bdlaw/pkg/llm"
)

// DefaultTemperature 请求未指定温度时使用。
const DefaultTemperature float32 = 0.5

// AnswerGenerator 基于检索上下文流式生成回答。
type AnswerGenerator struct {
	chat    llm.ChatProvider
	metrics *metrics.RAGMetrics
}

// NewAnswerGenerator 创建回答生成器。
func NewAnswerGenerator(chat llm.ChatProvider, m *metrics.RAGMetrics) *AnswerGenerator {
	if m == nil {
		m = metrics.GetRAGMetrics()
	}
	return &AnswerGenerator{chat: chat, metrics: m}
}

// Generate streams the model's answer to lastQuestion grounded in
// contextBlock. Backend failures never surface as errors: the stream yields
// one "Error processing your request" chunk and ends. Cancelling ctx stops
// the backend stream without an error chunk.
func (g *AnswerGenerator) Generate(ctx context.Context, history []ConversationMessage, lastQuestion, contextBlock string, temperature float32, maxTokens int) *AnswerStream {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	if maxTokens < 0 {
		maxTokens = 0
	}
	messages := buildAnswerMessages(history, lastQuestion, contextBlock)
	opts := &llm.ChatOptions{Temperature: &temperature, MaxTokens: maxTokens}

	return newAnswerStream(ctx, func(ctx context.Context, emit func(string) bool) (failed bool) {
		ctx, span := tracing.StartSpan(ctx, "rag.generate",
			attribute.String("llm.provider", g.chat.Name()),
			attribute.Int("rag.history", len(history)),
			attribute.Int("rag.context_bytes", len(contextBlock)),
		)
		start := time.Now()
		var chunks int
		defer func() {
			cancelled := ctx.Err() != nil
			g.metrics.RecordGeneration(time.Since(start), failed, cancelled)
			span.SetAttributes(attribute.Int("rag.chunks", chunks), attribute.Bool("rag.cancelled", cancelled))
			span.End()
		}()

		fail := func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			tracing.RecordError(ctx, err)
			logger.Errorw("answer generation failed", "provider", g.chat.Name(), "chunks", chunks, "error", err.Error())
			emit(errorChunk(err))
			return true
		}

		stream, err := g.chat.ChatStream(ctx, messages, opts)
		if err != nil {
			return fail(err)
		}
		defer func() { _ = stream.Close() }()

		for {
			chunk, err := stream.Recv()
			if stderrors.Is(err, io.EOF) {
				return false
			}
			if err != nil {
				return fail(err)
			}
			if chunk.Content != "" {
				if !emit(chunk.Content) {
					return false
				}
				chunks++
			}
			if chunk.FinishReason == llm.FinishReasonStop {
				return false
			}
		}
	})
}

// buildAnswerMessages returns the system prompt, history without IDs and the
// templated user turn.
func buildAnswerMessages(history []ConversationMessage, lastQuestion, contextBlock string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: AnswerSystemPrompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: renderAnswerPrompt(contextBlock, lastQuestion)})
	return messages
}

func renderAnswerPrompt(contextBlock, question string) string {
	return strings.NewReplacer("{context}", contextBlock, "{question}", question).Replace(AnswerPromptTemplate)
}

func errorChunk(err error) string {
	return fmt.Sprintf("Error processing your request: %v\n\n", err)
}
