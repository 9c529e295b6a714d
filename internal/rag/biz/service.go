package biz

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/infra/pool"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
	"github.com/kart-io/bdlaw/pkg/llm"
	"github.com/kart-io/bdlaw/pkg/llm/resilience"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/id"
)

// historyWriteTimeout 异步写入会话历史的超时时间。
const historyWriteTimeout = 5 * time.Second

// Service 定义法律问答服务接口。
type Service interface {
	// Answer 回答对话中最后一个用户问题。
	Answer(ctx context.Context, req *AnswerRequest) (*AnswerResult, error)
	// Index 批量写入法律条文，返回写入数量。
	Index(ctx context.Context, docs []*store.Document) (int, error)
	// Stats 获取知识库与流水线统计信息。
	Stats(ctx context.Context) (*Stats, error)
}

// Stats 服务统计信息。
type Stats struct {
	Store     string                    `json:"store"`
	Documents int                       `json:"documents"`
	Pipeline  metrics.Snapshot          `json:"pipeline"`
	Pools     map[string]pool.Stats     `json:"pools,omitempty"`
	Breakers  []resilience.BreakerStats `json:"breakers,omitempty"`
}

// ServiceConfig 服务配置。
type ServiceConfig struct {
	// RetrievalLimit 每次检索返回的条文数量。
	RetrievalLimit int
	// DefaultTemperature 请求未指定温度时使用。
	DefaultTemperature float32
	// MaxTokens 请求未指定时的回答 token 上限，0 表示不限制。
	MaxTokens int
	// SaveHistory 是否写入会话历史。
	SaveHistory bool
}

// Dependencies 服务依赖。Cache、History、Pools、Metrics 可以为 nil。
type Dependencies struct {
	Store   store.VectorStore
	Chat    llm.ChatProvider
	Cache   *AnswerCache
	History HistoryWriter
	Pools   *pool.Manager
	Metrics *metrics.RAGMetrics
	// Breakers 供应商熔断器，仅用于统计展示。
	Breakers []*resilience.Breaker
}

// RAGService 组合改写、检索、拼接和生成四个阶段。
type RAGService struct {
	rewriter  *QueryRewriter
	retriever *Retriever
	assembler *ContextAssembler
	generator *AnswerGenerator

	store    store.VectorStore
	cache    *AnswerCache
	history  HistoryWriter
	pools    *pool.Manager
	metrics  *metrics.RAGMetrics
	breakers []*resilience.Breaker
	config   ServiceConfig
}

var _ Service = (*RAGService)(nil)

// NewRAGService 创建问答服务实例。
func NewRAGService(deps Dependencies, config ServiceConfig) *RAGService {
	m := deps.Metrics
	if m == nil {
		m = metrics.GetRAGMetrics()
	}
	if config.RetrievalLimit <= 0 {
		config.RetrievalLimit = 20
	}
	if config.DefaultTemperature <= 0 {
		config.DefaultTemperature = DefaultTemperature
	}

	return &RAGService{
		rewriter:  NewQueryRewriter(deps.Chat, m),
		retriever: NewRetriever(deps.Store, m),
		assembler: NewContextAssembler(),
		generator: NewAnswerGenerator(deps.Chat, m),
		store:     deps.Store,
		cache:     deps.Cache,
		history:   deps.History,
		pools:     deps.Pools,
		metrics:   m,
		breakers:  deps.Breakers,
		config:    config,
	}
}

// Answer runs rewrite, retrieval, assembly and generation for the last user
// message. Rewrite and retrieval failures are returned as errors; generation
// failures appear inside the answer text. A streamed result must be consumed
// or closed by the caller.
func (s *RAGService) Answer(ctx context.Context, req *AnswerRequest) (result *AnswerResult, err error) {
	if err := validateConversation(req); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "rag.answer",
		attribute.Int("rag.messages", len(req.Messages)),
		attribute.Bool("rag.stream", req.Stream),
	)
	defer func() {
		tracing.EndSpan(span, err)
		if err != nil {
			s.metrics.RecordAnswer(false, req.Stream, err)
		}
	}()

	last := len(req.Messages) - 1
	question := req.Messages[last].Content
	history := req.Messages[:last]

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = s.config.DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}

	cacheable := !req.Stream && len(history) == 0 && s.cache.Enabled()
	if cacheable {
		if cached, _ := s.cache.Get(ctx, question, temperature); cached != nil {
			s.metrics.RecordAnswer(true, false, nil)
			rw := cached.Rewrite
			return &AnswerResult{ID: id.NewULID(), Text: cached.Content, Rewrite: &rw, CacheHit: true}, nil
		}
	}

	rw, err := s.rewriter.Rewrite(ctx, question)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("rag.language", string(rw.Language)))

	// 改写结果 query 为空表示问题与法律无关，不检索
	docs := []RetrievedDocument{}
	if rw.Query != "" {
		docs, err = s.retriever.Retrieve(ctx, rw.Query, rw.DocumentContains, s.config.RetrievalLimit)
		if err != nil {
			return nil, err
		}
	}

	contextBlock := s.assembler.Assemble(docs, rw.Language)
	stream := s.generator.Generate(ctx, history, question, contextBlock, temperature, maxTokens)
	messageID := id.NewULID()

	logger.Infow("answering question",
		"message_id", messageID,
		"language", rw.Language,
		"documents", len(docs),
		"stream", req.Stream,
		"trace_id", tracing.TraceIDFromContext(ctx),
	)

	if req.Stream {
		stream.OnComplete(func(text string) {
			s.saveHistory(messageID, req.Messages, text, rw.Language)
		})
		s.metrics.RecordAnswer(false, true, nil)
		return &AnswerResult{ID: messageID, Stream: stream, Rewrite: rw}, nil
	}

	text, err := stream.Text(ctx)
	stream.Close()
	if err != nil {
		return nil, err
	}

	if !stream.Failed() {
		if cacheable {
			_ = s.cache.Set(ctx, question, temperature, &CachedAnswer{Content: text, Rewrite: *rw})
		}
		s.saveHistory(messageID, req.Messages, text, rw.Language)
	}
	s.metrics.RecordAnswer(false, false, nil)
	return &AnswerResult{ID: messageID, Text: text, Rewrite: rw}, nil
}

func validateConversation(req *AnswerRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return errors.ErrInvalidConversation.WithMessage("messages must not be empty")
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return errors.ErrInvalidConversation.WithMessagef("message %d has unsupported role %q", i, m.Role)
		}
	}
	if req.Messages[len(req.Messages)-1].Role != llm.RoleUser {
		return errors.ErrInvalidConversation.WithMessage("last message must come from the user")
	}
	return nil
}

// saveHistory writes the exchange on the history pool. Failures are logged.
func (s *RAGService) saveHistory(messageID string, messages []ConversationMessage, answer string, lang Language) {
	if s.history == nil || !s.config.SaveHistory {
		return
	}

	ex := &Exchange{
		MessageID: messageID,
		Messages:  append([]ConversationMessage(nil), messages...),
		Answer:    answer,
		Language:  lang,
		CreatedOn: time.Now().UTC(),
	}
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := s.history.SaveExchange(ctx, ex); err != nil {
			logger.Warnw("failed to save conversation history", "message_id", messageID, "error", err.Error())
		}
	}

	if s.pools == nil {
		go task()
		return
	}
	if err := s.pools.Submit(pool.HistoryPool, task); err != nil {
		logger.Warnw("history pool rejected task", "message_id", messageID, "error", err.Error())
	}
}

// Index validates and stores docs. Writes run on the index pool when one is
// configured so bulk loads cannot starve the embedding backend.
func (s *RAGService) Index(ctx context.Context, docs []*store.Document) (n int, err error) {
	defer func() { s.metrics.RecordIndexing(n, err) }()

	if len(docs) == 0 {
		return 0, errors.ErrInvalidDocument.WithMessage("no documents to index")
	}
	for i, d := range docs {
		if d == nil || strings.TrimSpace(d.Text) == "" {
			return 0, errors.ErrInvalidDocument.WithMessagef("document %d has no text", i)
		}
	}

	ctx, span := tracing.StartSpan(ctx, "rag.index", attribute.Int("rag.documents", len(docs)))
	defer func() { tracing.EndSpan(span, err) }()

	add := func() error { return s.store.Add(ctx, docs) }
	var addErr error
	if s.pools == nil {
		addErr = add()
	} else {
		done := make(chan error, 1)
		if err := s.pools.SubmitWithContext(ctx, pool.IndexPool, func() { done <- add() }); err != nil {
			return 0, errors.ErrIndexFailed.WithCause(err)
		}
		select {
		case addErr = <-done:
		case <-ctx.Done():
			return 0, errors.ErrIndexFailed.WithCause(ctx.Err())
		}
	}
	if addErr != nil {
		logger.Errorw("failed to index documents", "count", len(docs), "error", addErr.Error())
		return 0, errors.ErrIndexFailed.WithCause(addErr)
	}

	logger.Infow("indexed documents", "count", len(docs), "store", s.store.Name())
	return len(docs), nil
}

// Stats returns the corpus size together with pipeline and pool counters.
func (s *RAGService) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, errors.ErrStatsUnavailable.WithCause(err)
	}

	st := &Stats{
		Store:     s.store.Name(),
		Documents: count,
		Pipeline:  s.metrics.Stats(),
	}
	if s.pools != nil {
		st.Pools = s.pools.Stats()
	}
	for _, b := range s.breakers {
		if b != nil {
			st.Breakers = append(st.Breakers, b.Stats())
		}
	}
	return st, nil
}
