package biz

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
	"github.com/kart-io/bdlaw/pkg/llm"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/json"
)

// jsonSpan matches from the first '{' to the last '}' of the reply.
var jsonSpan = regexp.MustCompile(`(?s)\{.*\}`)

// QueryRewriter 把用户问题改写为检索请求。
type QueryRewriter struct {
	chat    llm.ChatProvider
	metrics *metrics.RAGMetrics
}

// NewQueryRewriter 创建查询改写器。m 为 nil 时使用全局指标。
func NewQueryRewriter(chat llm.ChatProvider, m *metrics.RAGMetrics) *QueryRewriter {
	if m == nil {
		m = metrics.GetRAGMetrics()
	}
	return &QueryRewriter{chat: chat, metrics: m}
}

// Rewrite asks the model for {query, language, document_contains} at
// temperature zero. Only an unusable upstream reply is an error; anything the
// model says that cannot be parsed falls back to searching for the question
// itself in English.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string) (*RewriteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "rag.rewrite")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: RewriteSystemPrompt},
		{Role: llm.RoleUser, Content: question},
	}

	resp, callErr := r.chat.Chat(ctx, messages, llm.WithTemperature(0))
	if callErr != nil {
		err = errors.ErrRewriteUpstream.WithCause(callErr)
		r.metrics.RecordRewrite("", false, false, err)
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		err = errors.ErrRewriteUpstream.WithMessage("rewrite model returned no choices")
		r.metrics.RecordRewrite("", false, false, err)
		return nil, err
	}

	result, ok := parseRewrite(resp.Content())
	if !ok {
		logger.Warnw("failed to parse rewrite reply, falling back to raw question",
			"reply", truncate(resp.Content(), 200),
		)
		result = &RewriteResult{Query: question, Language: LanguageEnglish, DocumentContains: []string{}}
	}

	r.metrics.RecordRewrite(string(result.Language), result.Query != "", !ok, nil)
	logger.Debugw("query rewritten",
		"query", result.Query,
		"language", result.Language,
		"document_contains", result.DocumentContains,
	)
	return result, nil
}

// rawRewrite is the loosely typed reply shape.
type rawRewrite struct {
	Query            string `json:"query"`
	Language         string `json:"language"`
	DocumentContains any    `json:"document_contains"`
}

// parseRewrite decodes the greedy brace span of reply. It reports false when
// there is no span or the span is not a JSON object of the expected shape.
func parseRewrite(reply string) (*RewriteResult, bool) {
	span := jsonSpan.FindString(reply)
	if span == "" {
		return nil, false
	}

	var raw rawRewrite
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, false
	}

	terms, ok := normalizeTerms(raw.DocumentContains)
	if !ok {
		return nil, false
	}

	return &RewriteResult{
		Query:            strings.TrimSpace(raw.Query),
		Language:         NormalizeLanguage(strings.ToLower(strings.TrimSpace(raw.Language))),
		DocumentContains: terms,
	}, true
}

// normalizeTerms accepts a list (or a single value) of strings or numbers and
// drops blank entries. The result is never nil.
func normalizeTerms(v any) ([]string, bool) {
	var items []any
	switch t := v.(type) {
	case nil:
		return []string{}, true
	case []any:
		items = t
	default:
		items = []any{t}
	}

	terms := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch x := item.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case nil:
			continue
		default:
			return nil, false
		}
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, s)
		}
	}
	return terms, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
