// Package cache provides answer and embedding cache options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bdlaw/pkg/options"
	redisopts "github.com/kart-io/bdlaw/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options 缓存配置。关闭时不连接 Redis。
type Options struct {
	// Enabled 是否启用缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// AnswerTTL 单轮问答结果的缓存时间。
	AnswerTTL time.Duration `json:"answer-ttl" mapstructure:"answer-ttl"`

	// EmbeddingTTL 向量嵌入的缓存时间。
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Enabled:      false,
		AnswerTTL:    time.Hour,
		EmbeddingTTL: 7 * 24 * time.Hour,
		KeyPrefix:    "bdlaw:",
		Redis:        redisopts.NewOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Enable the Redis answer and embedding cache.")
	fs.DurationVar(&o.AnswerTTL, p+"answer-ttl", o.AnswerTTL, "Cached answer TTL.")
	fs.DurationVar(&o.EmbeddingTTL, p+"embedding-ttl", o.EmbeddingTTL, "Cached embedding TTL.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Cache key prefix.")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	o.Redis.AddFlags(fs, append(prefixes, "cache")...)
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.AnswerTTL <= 0 || o.EmbeddingTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive"))
	}
	if o.Redis != nil {
		errs = append(errs, o.Redis.Validate()...)
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return o.Redis.Complete()
}
