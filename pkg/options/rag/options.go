// Package rag provides configuration for the law question answering pipeline.
package rag

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/bdlaw/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Vector store backends.
const (
	StoreChromem = "chromem"
	StoreMilvus  = "milvus"
)

// Options contains RAG pipeline configuration.
type Options struct {
	// Store 向量库后端（chromem, milvus）。
	Store string `json:"store" mapstructure:"store"`

	// Collection 法律条文集合名称。
	Collection string `json:"collection" mapstructure:"collection"`

	// PersistDir chromem 持久化目录，为空时仅保存在内存中。
	PersistDir string `json:"persist-dir" mapstructure:"persist-dir"`

	// EmbeddingDim Milvus 集合的向量维度。
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// RetrievalLimit 每次检索返回的条文数量。
	RetrievalLimit int `json:"retrieval-limit" mapstructure:"retrieval-limit"`

	// DefaultTemperature 请求未指定温度时使用。
	DefaultTemperature float32 `json:"default-temperature" mapstructure:"default-temperature"`

	// MaxTokens 回答的最大 token 数，0 表示不限制。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// SaveHistory 是否把问答记录写入 MongoDB。
	SaveHistory bool `json:"save-history" mapstructure:"save-history"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Store:              StoreChromem,
		Collection:         "bd_laws",
		PersistDir:         "vector-db",
		EmbeddingDim:       768,
		RetrievalLimit:     20,
		DefaultTemperature: 0.5,
		SaveHistory:        true,
	}
}

// AddFlags adds flags for RAG options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."
	fs.StringVar(&o.Store, p+"store", o.Store, "Vector store backend (chromem, milvus).")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Vector collection holding the law sections.")
	fs.StringVar(&o.PersistDir, p+"persist-dir", o.PersistDir, "Directory for the chromem database, empty for in-memory.")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension (milvus only).")
	fs.IntVar(&o.RetrievalLimit, p+"retrieval-limit", o.RetrievalLimit, "Number of law sections retrieved per question.")
	fs.Float32Var(&o.DefaultTemperature, p+"default-temperature", o.DefaultTemperature, "Sampling temperature when the request does not set one.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum answer tokens, 0 for no limit.")
	fs.BoolVar(&o.SaveHistory, p+"save-history", o.SaveHistory, "Persist answered exchanges to MongoDB.")
}

// Validate validates the RAG options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Store != StoreChromem && o.Store != StoreMilvus {
		errs = append(errs, fmt.Errorf("rag store must be %q or %q", StoreChromem, StoreMilvus))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("rag collection is required"))
	}
	if o.RetrievalLimit <= 0 {
		errs = append(errs, fmt.Errorf("rag retrieval-limit must be positive"))
	}
	if o.DefaultTemperature < 0 || o.DefaultTemperature > 2 {
		errs = append(errs, fmt.Errorf("rag default-temperature must be within [0, 2]"))
	}
	if o.Store == StoreMilvus && o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("rag embedding-dim must be positive for milvus"))
	}
	return errs
}

// Complete completes the RAG options with defaults.
func (o *Options) Complete() error {
	if o.Store == "" {
		o.Store = StoreChromem
	}
	if o.MaxTokens < 0 {
		o.MaxTokens = 0
	}
	return nil
}
