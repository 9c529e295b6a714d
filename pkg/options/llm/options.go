// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bdlaw/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// 与 .env 中变量名保持一致。
const (
	EnvChatAPIKey     = "OR_TOKEN"
	EnvChatModel      = "LLM"
	EnvEmbeddingModel = "EMBEDDING"
)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（openrouter, openai, deepseek, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// 环境变量回退
	apiKeyEnv    string
	modelEnv     string
	defaultModel string
}

// NewChatOptions 创建默认 Chat 供应商配置（OpenRouter）。
func NewChatOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "openrouter",
		Timeout:    120 * time.Second,
		MaxRetries: 2,
		apiKeyEnv:  EnvChatAPIKey,
		modelEnv:   EnvChatModel,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置（本地 Ollama）。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "ollama",
		BaseURL:      "http://localhost:11434",
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		modelEnv:     EnvEmbeddingModel,
		defaultModel: "nomic-embed-text",
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
// 同一进程有 chat 和 embedding 两组配置，调用方通过 prefixes 区分，
// 未指定时使用 "llm."。
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	if p == "" {
		p = "llm."
	}
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "LLM provider (openrouter, openai, deepseek, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "LLM API base URL, empty for the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LLM API key.")
	fs.StringVar(&o.Model, p+"model", o.Model, "LLM model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LLM response header timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "LLM maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "LLM organization ID (optional).")
}

// Complete fills the API key and model from the environment when unset.
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" && o.apiKeyEnv != "" {
		o.APIKey = os.Getenv(o.apiKeyEnv)
	}
	if o.Model == "" && o.modelEnv != "" {
		o.Model = os.Getenv(o.modelEnv)
	}
	if o.Model == "" {
		o.Model = o.defaultModel
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return nil
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("llm provider is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("llm model is required for provider %q", o.Provider))
	}
	if o.Provider != "ollama" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm api-key is required for provider %q", o.Provider))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm timeout must be positive"))
	}
	return errs
}
