// Package ragsvc wires the law question answering service together.
package ragsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/bdlaw/internal/rag/biz"
	"github.com/kart-io/bdlaw/internal/rag/feedback"
	"github.com/kart-io/bdlaw/internal/rag/handler"
	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/internal/rag/router"
	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/component/milvus"
	"github.com/kart-io/bdlaw/pkg/component/mongodb"
	"github.com/kart-io/bdlaw/pkg/component/redis"
	"github.com/kart-io/bdlaw/pkg/component/storage"
	"github.com/kart-io/bdlaw/pkg/infra/app"
	"github.com/kart-io/bdlaw/pkg/infra/pool"
	"github.com/kart-io/bdlaw/pkg/infra/server"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
	"github.com/kart-io/bdlaw/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/bdlaw/pkg/llm/ollama"
	_ "github.com/kart-io/bdlaw/pkg/llm/openai"
	"github.com/kart-io/bdlaw/pkg/llm/resilience"
	cacheopts "github.com/kart-io/bdlaw/pkg/options/cache"
	httpopts "github.com/kart-io/bdlaw/pkg/options/http"
	llmopts "github.com/kart-io/bdlaw/pkg/options/llm"
	logopts "github.com/kart-io/bdlaw/pkg/options/logger"
	milvusopts "github.com/kart-io/bdlaw/pkg/options/milvus"
	mongoopts "github.com/kart-io/bdlaw/pkg/options/mongodb"
	ragopts "github.com/kart-io/bdlaw/pkg/options/rag"
	tracingopts "github.com/kart-io/bdlaw/pkg/options/tracing"
	"github.com/kart-io/bdlaw/pkg/utils/validator"
)

// Name is the name of the application.
const Name = "bdlaw-rag"

const (
	connectTimeout     = 15 * time.Second
	poolReleaseTimeout = 10 * time.Second
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	TracingOptions   *tracingopts.Options
	ChatOptions      *llmopts.ProviderOptions
	EmbeddingOptions *llmopts.ProviderOptions
	RAGOptions       *ragopts.Options
	CacheOptions     *cacheopts.Options
	MongoDBOptions   *mongoopts.Options
	MilvusOptions    *milvusopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the RAG server.
type Server struct {
	srv *server.Manager
}

// NewServer initializes and returns a new Server instance. Every resource
// acquired here is released by the manager on shutdown, or immediately when
// a later step fails.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting RAG service...", "version", app.GetVersion())

	serverManager := server.NewManager(
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	defer func() {
		if err != nil {
			_ = serverManager.Stop(context.Background())
		}
	}()

	// 2. 初始化链路追踪
	if cfg.TracingOptions.ServiceVersion == "" || cfg.TracingOptions.ServiceVersion == "dev" {
		cfg.TracingOptions.ServiceVersion = app.GetVersion()
	}
	tracer, err := tracing.NewProvider(ctx, cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	serverManager.OnShutdown("tracing", tracer.Shutdown)

	// 3. 初始化存储客户端
	storageManager := storage.NewManager()
	serverManager.OnShutdown("storage", func(context.Context) error {
		return storageManager.CloseAll()
	})

	var redisClient *goredis.Client
	if cfg.CacheOptions.Enabled {
		redisClient = connectRedis(ctx, cfg.CacheOptions, storageManager)
	} else {
		logger.Info("Cache is disabled")
	}

	var mongoClient *mongodb.Client
	if cfg.MongoDBOptions.Enabled {
		mongoClient = connectMongo(ctx, cfg.MongoDBOptions, storageManager)
	} else {
		logger.Info("MongoDB is disabled, feedback is only logged")
	}

	// 4. 初始化 LLM 供应商
	embedder, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if err := registerPinger(storageManager, "llm.embedding", embedder); err != nil {
		return nil, err
	}
	resilientEmbedder := resilience.WrapEmbedding(embedder, nil, nil)
	embedder = resilientEmbedder
	if redisClient != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, &llm.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       cfg.CacheOptions.EmbeddingTTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix + "emb:",
		})
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cached", redisClient != nil,
	)

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	if err := registerPinger(storageManager, "llm.chat", chatProvider); err != nil {
		return nil, err
	}
	chat := resilience.WrapChat(chatProvider, nil, nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 5. 初始化向量库
	vectorStore, err := cfg.newVectorStore(ctx, embedder, storageManager)
	if err != nil {
		return nil, err
	}
	if cfg.RAGOptions.Store == ragopts.StoreChromem {
		serverManager.OnShutdown("vector-store", vectorStore.Close)
	}

	// 6. 初始化协程池
	pools, err := pool.NewDefaultManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker pools: %w", err)
	}
	serverManager.OnShutdown("pools", func(context.Context) error {
		return pools.ReleaseTimeout(poolReleaseTimeout)
	})

	// 7. 初始化 Biz 层
	var (
		sink    feedback.Sink = feedback.NewLogSink()
		history biz.HistoryWriter
	)
	if mongoClient != nil {
		mongoStore := feedback.NewMongoStore(mongoClient.Database())
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Warnw("failed to ensure feedback indexes", "error", err.Error())
		}
		sink, history = mongoStore, mongoStore
	}

	answerCache := biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
		Enabled:   redisClient != nil,
		TTL:       cfg.CacheOptions.AnswerTTL,
		KeyPrefix: cfg.CacheOptions.KeyPrefix + "answer:",
	})

	ragMetrics := metrics.GetRAGMetrics()
	ragService := biz.NewRAGService(biz.Dependencies{
		Store:    vectorStore,
		Chat:     chat,
		Cache:    answerCache,
		History:  history,
		Pools:    pools,
		Metrics:  ragMetrics,
		Breakers: []*resilience.Breaker{chat.Breaker(), resilientEmbedder.Breaker()},
	}, biz.ServiceConfig{
		RetrievalLimit:     cfg.RAGOptions.RetrievalLimit,
		DefaultTemperature: cfg.RAGOptions.DefaultTemperature,
		MaxTokens:          cfg.RAGOptions.MaxTokens,
		SaveHistory:        cfg.RAGOptions.SaveHistory && history != nil,
	})
	logger.Infow("RAG service initialized",
		"store", vectorStore.Name(),
		"retrieval_limit", cfg.RAGOptions.RetrievalLimit,
		"cache.enabled", answerCache.Enabled(),
		"history.enabled", history != nil && cfg.RAGOptions.SaveHistory,
	)

	// 8. 初始化 Handler 层
	validator.RegisterGin(validator.Global())
	ragHandler := handler.NewRAGHandler(ragService, sink, ragMetrics, storageManager)

	// 9. 注册路由
	if err := router.Register(serverManager, ragHandler); err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	logger.Info("RAG service is ready")
	return &Server{srv: serverManager}, nil
}

// pinger is implemented by providers that can report their own liveness,
// e.g. a local Ollama server.
type pinger interface {
	Ping(ctx context.Context) error
}

// registerPinger 把支持 Ping 的供应商加入健康检查，其余供应商忽略。
func registerPinger(sm *storage.Manager, name string, provider any) error {
	p, ok := provider.(pinger)
	if !ok {
		return nil
	}
	if err := sm.Register(name, storage.NewPingClient(name, p.Ping)); err != nil {
		return fmt.Errorf("failed to register %s health check: %w", name, err)
	}
	return nil
}

// Run starts the server and blocks until ctx is cancelled or a termination
// signal arrives.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx)
}

func (cfg *Config) newVectorStore(ctx context.Context, embedder llm.EmbeddingProvider, sm *storage.Manager) (store.VectorStore, error) {
	switch cfg.RAGOptions.Store {
	case ragopts.StoreMilvus:
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		client, err := milvus.New(connCtx, cfg.MilvusOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		if err := sm.Register(client.Name(), client); err != nil {
			_ = client.Close()
			return nil, err
		}
		s, err := store.NewMilvusStore(connCtx, client, cfg.RAGOptions.Collection, cfg.RAGOptions.EmbeddingDim, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus store: %w", err)
		}
		logger.Infow("Vector store initialized", "store", s.Name(), "address", cfg.MilvusOptions.Address)
		return s, nil
	default:
		s, err := store.NewChromemStore(cfg.RAGOptions.PersistDir, cfg.RAGOptions.Collection, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chromem store: %w", err)
		}
		logger.Infow("Vector store initialized", "store", s.Name(), "persist_dir", cfg.RAGOptions.PersistDir)
		return s, nil
	}
}

// connectRedis returns nil when Redis is unreachable; the service then runs
// without caches.
func connectRedis(ctx context.Context, opts *cacheopts.Options, sm *storage.Manager) *goredis.Client {
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := redis.NewWithContext(connCtx, opts.Redis)
	if err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		return nil
	}
	if err := sm.Register(client.Name(), client); err != nil {
		_ = client.Close()
		logger.Warnw("failed to register redis client", "error", err.Error())
		return nil
	}
	logger.Infow("Redis cache initialized",
		"addr", opts.Redis.Addr(),
		"answer_ttl", opts.AnswerTTL,
		"embedding_ttl", opts.EmbeddingTTL,
	)
	return client.Client()
}

// connectMongo returns nil when MongoDB is unreachable; feedback then falls
// back to the log sink and history is not saved.
func connectMongo(ctx context.Context, opts *mongoopts.Options, sm *storage.Manager) *mongodb.Client {
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongodb.NewWithContext(connCtx, opts)
	if err != nil {
		logger.Warnw("failed to connect to mongodb, feedback will only be logged", "error", err.Error())
		return nil
	}
	if err := sm.Register(client.Name(), client); err != nil {
		_ = client.Close()
		logger.Warnw("failed to register mongodb client", "error", err.Error())
		return nil
	}
	logger.Infow("MongoDB initialized", "database", opts.Database)
	return client
}
