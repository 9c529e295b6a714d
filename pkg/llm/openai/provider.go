// Package openai 提供基于 go-openai 的 OpenAI 兼容供应商实现。
//
// 同一实现注册为三个名称：
//   - openai:     OpenAI 官方 API（Chat + Embedding）
//   - openrouter: OpenRouter 网关（Chat），默认的回答模型后端
//   - deepseek:   DeepSeek API（Chat）
//
// 用法：
//
//	import _ "github.com/kart-io/bdlaw/pkg/llm/openai"
//
//	provider, err := llm.NewChatProvider("openrouter", map[string]any{
//	    "api_key":    os.Getenv("OR_TOKEN"),
//	    "chat_model": os.Getenv("LLM"),
//	})
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/kart-io/logger"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/bdlaw/pkg/llm"
)

const (
	// ProviderName 是 OpenAI 供应商的名称标识符。
	ProviderName = "openai"
	// OpenRouterName 是 OpenRouter 供应商的名称标识符。
	OpenRouterName = "openrouter"
	// DeepSeekName 是 DeepSeek 供应商的名称标识符。
	DeepSeekName = "deepseek"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultDeepSeekBaseURL   = "https://api.deepseek.com"
)

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
	llm.RegisterChatProvider(OpenRouterName, NewOpenRouterProvider)
	llm.RegisterChatProvider(DeepSeekName, NewDeepSeekProvider)
}

// Config OpenAI 兼容供应商配置。
type Config struct {
	// BaseURL API 基础地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel 用于对话的模型。
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout 等待响应头的超时时间，流式输出本身不受其限制。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// DefaultConfig 返回 OpenAI 默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    defaultOpenAIBaseURL,
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-4o-mini",
		Timeout:    120 * time.Second,
	}
}

// Provider OpenAI 兼容供应商实现。
type Provider struct {
	name   string
	config *Config
	client *goopenai.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 从配置 map 创建 OpenAI 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	return newFromMap(ProviderName, DefaultConfig(), configMap)
}

// NewOpenRouterProvider 从配置 map 创建 OpenRouter 供应商。
func NewOpenRouterProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = defaultOpenRouterBaseURL
	cfg.ChatModel = "deepseek/deepseek-chat-v3-0324:free"
	return newFromMap(OpenRouterName, cfg, configMap)
}

// NewDeepSeekProvider 从配置 map 创建 DeepSeek 供应商。
func NewDeepSeekProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = defaultDeepSeekBaseURL
	cfg.ChatModel = "deepseek-chat"
	return newFromMap(DeepSeekName, cfg, configMap)
}

func newFromMap(name string, cfg *Config, configMap map[string]any) (*Provider, error) {
	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["organization"].(string); ok {
		cfg.Organization = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api_key is required", name)
	}

	return NewProviderWithConfig(name, cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(name string, cfg *Config) *Provider {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.OrgID = cfg.Organization
	clientCfg.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}

	return &Provider{
		name:   name,
		config: cfg,
		client: goopenai.NewClientWithConfig(clientCfg),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return p.name
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(p.config.EmbedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: embedding request failed: %w", p.name, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", p.name, len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Chat 进行一次非流式补全。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	req := p.newRequest(messages, opts)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", p.name, err)
	}

	out := &llm.ChatResponse{
		Choices: make([]llm.Choice, 0, len(resp.Choices)),
		TokenUsage: &llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, llm.Choice{
			Content:      c.Message.Content,
			FinishReason: string(c.FinishReason),
		})
	}
	return out, nil
}

// ChatStream 以流式方式补全。
func (p *Provider) ChatStream(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (llm.ChatStream, error) {
	req := p.newRequest(messages, opts)
	req.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: chat stream failed: %w", p.name, err)
	}
	return &chatStream{name: p.name, stream: stream}, nil
}

func (p *Provider) newRequest(messages []llm.Message, opts *llm.ChatOptions) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    p.config.ChatModel,
		Messages: make([]goopenai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	if opts != nil {
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
			// temperature 字段带 omitempty，0 需要用最小正数表示
			if req.Temperature == 0 {
				req.Temperature = math.SmallestNonzeroFloat32
			}
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
	}
	return req
}

type chatStream struct {
	name   string
	stream *goopenai.ChatCompletionStream
}

func (s *chatStream) Recv() (*llm.StreamChunk, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%s: stream receive failed: %w", s.name, err)
		}
		if len(resp.Choices) == 0 {
			logger.Debugw("received a stream chunk with no choices", "provider", s.name)
			continue
		}

		choice := resp.Choices[0]
		return &llm.StreamChunk{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}, nil
	}
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
