package biz

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/pkg/llm"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

func TestRewriteBanglaSection(t *testing.T) {
	chat := &fakeChat{reply: reply(`Sure! {"query": "Right to Information Act section 9", "language": "bn", "document_contains": ["9"]}`)}
	r := NewQueryRewriter(chat, metrics.New())

	res, err := r.Rewrite(context.Background(), "তথ্য অধিকার আইনের ৯ ধারায় কি বলা হয়েছে?")
	require.NoError(t, err)
	assert.Equal(t, "Right to Information Act section 9", res.Query)
	assert.Equal(t, LanguageBangla, res.Language)
	assert.Equal(t, []string{"9"}, res.DocumentContains)

	// 系统提示词 + 原始问题，温度显式为 0
	require.Len(t, chat.chatMsgs, 1)
	msgs := chat.chatMsgs[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, RewriteSystemPrompt, msgs[0].Content)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, "তথ্য অধিকার আইনের ৯ ধারায় কি বলা হয়েছে?", msgs[1].Content)
	require.NotNil(t, chat.chatOpts[0].Temperature)
	assert.Equal(t, float32(0), *chat.chatOpts[0].Temperature)
}

func TestRewriteFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"plain text", "I cannot help with that."},
		{"empty", ""},
		{"broken json", `{"query": "land law", "language": }`},
		{"unbalanced", `{"query": "x"`},
		{"array only", `["9", "79"]`},
		{"wrong query type", `{"query": 42, "language": "en"}`},
		{"object terms", `{"query": "x", "language": "en", "document_contains": [{"a": 1}]}`},
		{"two objects", `{"query": "a"} and {"query": "b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			r := NewQueryRewriter(&fakeChat{reply: reply(tt.reply)}, m)

			res, err := r.Rewrite(context.Background(), "What is the penalty for theft?")
			require.NoError(t, err)
			assert.Equal(t, &RewriteResult{
				Query:            "What is the penalty for theft?",
				Language:         LanguageEnglish,
				DocumentContains: []string{},
			}, res)
			assert.Equal(t, uint64(1), m.Stats().Rewrites.Fallbacks)
		})
	}
}

func TestRewriteNormalization(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		language Language
		terms    []string
		query    string
	}{
		{"missing language", `{"query": "q"}`, LanguageEnglish, []string{}, "q"},
		{"unknown language", `{"query": "q", "language": "fr"}`, LanguageEnglish, []string{}, "q"},
		{"upper case bn", `{"query": "q", "language": " BN "}`, LanguageBangla, []string{}, "q"},
		{"null terms", `{"query": "q", "language": "en", "document_contains": null}`, LanguageEnglish, []string{}, "q"},
		{"blank terms dropped", `{"query": "q", "language": "en", "document_contains": ["", "  ", "79"]}`, LanguageEnglish, []string{"79"}, "q"},
		{"numeric terms", `{"query": "q", "language": "en", "document_contains": [9, 79.5]}`, LanguageEnglish, []string{"9", "79.5"}, "q"},
		{"single string term", `{"query": "q", "language": "en", "document_contains": "27"}`, LanguageEnglish, []string{"27"}, "q"},
		{"irrelevant question", "```json\n{\"query\": \"\", \"language\": \"en\", \"document_contains\": []}\n```", LanguageEnglish, []string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewQueryRewriter(&fakeChat{reply: reply(tt.reply)}, metrics.New())
			res, err := r.Rewrite(context.Background(), "question")
			require.NoError(t, err)
			assert.Equal(t, tt.query, res.Query)
			assert.Equal(t, tt.language, res.Language)
			assert.NotNil(t, res.DocumentContains)
			assert.Equal(t, tt.terms, res.DocumentContains)
		})
	}
}

func TestRewriteUpstreamFailure(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		r := NewQueryRewriter(&fakeChat{reply: &llm.ChatResponse{}}, metrics.New())
		res, err := r.Rewrite(context.Background(), "hello")
		assert.Nil(t, res)
		assert.True(t, stderrors.Is(err, errors.ErrRewriteUpstream))
	})

	t.Run("transport error", func(t *testing.T) {
		cause := stderrors.New("dial tcp: connection refused")
		m := metrics.New()
		r := NewQueryRewriter(&fakeChat{chatErr: cause}, m)
		res, err := r.Rewrite(context.Background(), "hello")
		assert.Nil(t, res)
		assert.True(t, stderrors.Is(err, errors.ErrRewriteUpstream))
		assert.ErrorContains(t, err, "connection refused")
		assert.Equal(t, uint64(1), m.Stats().Rewrites.Errors)
	})
}

func TestParseRewriteGreedySpan(t *testing.T) {
	res, ok := parseRewrite("prefix {\"query\": \"Penal Code {section} 302\", \"language\": \"en\", \"document_contains\": [\"302\"]} suffix")
	require.True(t, ok)
	assert.Equal(t, "Penal Code {section} 302", res.Query)
	assert.Equal(t, []string{"302"}, res.DocumentContains)
}
