// Package options contains flags and options for initializing the bdlaw
// server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	ragsvc "github.com/kart-io/bdlaw/internal/rag"
	"github.com/kart-io/bdlaw/pkg/infra/app"
	cacheopts "github.com/kart-io/bdlaw/pkg/options/cache"
	httpopts "github.com/kart-io/bdlaw/pkg/options/http"
	llmopts "github.com/kart-io/bdlaw/pkg/options/llm"
	logopts "github.com/kart-io/bdlaw/pkg/options/logger"
	milvusopts "github.com/kart-io/bdlaw/pkg/options/milvus"
	mongoopts "github.com/kart-io/bdlaw/pkg/options/mongodb"
	ragopts "github.com/kart-io/bdlaw/pkg/options/rag"
	tracingopts "github.com/kart-io/bdlaw/pkg/options/tracing"
)

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server and middleware configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// ChatOptions contains the answering model configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// EmbeddingOptions contains the embedding model configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// RAGOptions contains pipeline configuration.
	RAGOptions *ragopts.Options `json:"rag" mapstructure:"rag"`

	// CacheOptions contains Redis cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// MongoDBOptions contains feedback and history storage configuration.
	MongoDBOptions *mongoopts.Options `json:"mongodb" mapstructure:"mongodb"`

	// MilvusOptions is used when rag.store is milvus.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		RAGOptions:       ragopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		MongoDBOptions:   mongoopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.MongoDBOptions.AddFlags(fss.FlagSet("mongodb"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.RAGOptions.Complete(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.MongoDBOptions.Complete(); err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	if o.RAGOptions.Store == ragopts.StoreMilvus {
		if err := o.MilvusOptions.Complete(); err != nil {
			return fmt.Errorf("milvus: %w", err)
		}
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, prefixed("chat", o.ChatOptions.Validate())...)
	errs = append(errs, prefixed("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, o.RAGOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.MongoDBOptions.Validate()...)
	if o.RAGOptions.Store == ragopts.StoreMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a ragsvc.Config based on ServerOptions.
func (o *ServerOptions) Config() (*ragsvc.Config, error) {
	return &ragsvc.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		TracingOptions:   o.TracingOptions,
		ChatOptions:      o.ChatOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		RAGOptions:       o.RAGOptions,
		CacheOptions:     o.CacheOptions,
		MongoDBOptions:   o.MongoDBOptions,
		MilvusOptions:    o.MilvusOptions,
		ShutdownTimeout:  shutdownTimeout(o.HTTPOptions),
	}, nil
}

func shutdownTimeout(o *httpopts.Options) time.Duration {
	if o == nil || o.ShutdownTimeout <= 0 {
		return 15 * time.Second
	}
	return o.ShutdownTimeout
}

func prefixed(section string, errs []error) []error {
	for i, err := range errs {
		errs[i] = fmt.Errorf("%s: %w", section, err)
	}
	return errs
}
