package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/bdlaw/pkg/llm"
)

// ChatProvider 为 llm.ChatProvider 加上重试与熔断。
// Chat 整体重试；ChatStream 只重试建立流的阶段。
type ChatProvider struct {
	provider llm.ChatProvider
	policy   *RetryPolicy
	breaker  *Breaker
}

var _ llm.ChatProvider = (*ChatProvider)(nil)

// WrapChat 包装 Chat 供应商。
func WrapChat(provider llm.ChatProvider, policy *RetryPolicy, cfg *BreakerConfig) *ChatProvider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &ChatProvider{
		provider: provider,
		policy:   policy,
		breaker:  NewBreaker(provider.Name(), cfg),
	}
}

// Chat 进行一次非流式补全。
func (p *ChatProvider) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	var resp *llm.ChatResponse
	err := RetryWithBreaker(ctx, p.policy, p.breaker, func() error {
		var err error
		resp, err = p.provider.Chat(ctx, messages, opts)
		return err
	})
	return resp, err
}

// ChatStream 建立流式补全。
func (p *ChatProvider) ChatStream(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (llm.ChatStream, error) {
	var stream llm.ChatStream
	err := RetryWithBreaker(ctx, p.policy, p.breaker, func() error {
		var err error
		stream, err = p.provider.ChatStream(ctx, messages, opts)
		return err
	})
	return stream, err
}

// Name 返回底层供应商名称。
func (p *ChatProvider) Name() string {
	return p.provider.Name()
}

// Breaker 返回熔断器，用于统计。
func (p *ChatProvider) Breaker() *Breaker {
	return p.breaker
}

// EmbeddingProvider 为 llm.EmbeddingProvider 加上重试与熔断。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	policy   *RetryPolicy
	breaker  *Breaker
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)

// WrapEmbedding 包装 Embedding 供应商。
func WrapEmbedding(provider llm.EmbeddingProvider, policy *RetryPolicy, cfg *BreakerConfig) *EmbeddingProvider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &EmbeddingProvider{
		provider: provider,
		policy:   policy,
		breaker:  NewBreaker(provider.Name()+"-embed", cfg),
	}
}

// Embed 为多个文本生成向量嵌入。
func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := RetryWithBreaker(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.provider.Embed(ctx, texts)
		return err
	})
	return out, err
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := RetryWithBreaker(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.provider.EmbedSingle(ctx, text)
		return err
	})
	return out, err
}

// Name 返回底层供应商名称。
func (p *EmbeddingProvider) Name() string {
	return p.provider.Name()
}

// Breaker 返回熔断器，用于统计。
func (p *EmbeddingProvider) Breaker() *Breaker {
	return p.breaker
}

// IsRetryableError 判断上游错误是否值得重试：网络错误、408、429 和 5xx。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBreakerOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// httpclient 的错误只携带状态码文本
	msg := err.Error()
	for _, s := range []string{"status code 5", "status code 429", "status code 408", "connection reset", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
