package biz

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/pkg/llm"
)

func collect(t *testing.T, s *AnswerStream) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []string
	for {
		chunk, ok := s.Next(ctx)
		if !ok {
			break
		}
		out = append(out, chunk)
	}
	require.NoError(t, ctx.Err(), "stream did not terminate")
	return out
}

func TestGenerateStreamsChunks(t *testing.T) {
	chat := &fakeChat{chunks: []llm.StreamChunk{
		{Content: "Section 9 "},
		{Content: ""},
		{Content: "requires a reply within 20 days."},
	}}
	g := NewAnswerGenerator(chat, metrics.New())

	s := g.Generate(context.Background(), nil, "What does section 9 say?", "ctx", 0.7, 256)
	assert.Equal(t, []string{"Section 9 ", "requires a reply within 20 days."}, collect(t, s))
	assert.False(t, s.Failed())
	assert.True(t, chat.lastStream().isClosed())

	require.NotNil(t, chat.streamOpts.Temperature)
	assert.Equal(t, float32(0.7), *chat.streamOpts.Temperature)
	assert.Equal(t, 256, chat.streamOpts.MaxTokens)
}

func TestGenerateStopsOnFinishReason(t *testing.T) {
	chat := &fakeChat{chunks: []llm.StreamChunk{
		{Content: "done", FinishReason: llm.FinishReasonStop},
		{Content: "never"},
	}}
	g := NewAnswerGenerator(chat, metrics.New())

	assert.Equal(t, []string{"done"}, collect(t, g.Generate(context.Background(), nil, "q", "", 0, 0)))
}

func TestGenerateMidStreamError(t *testing.T) {
	m := metrics.New()
	chat := &fakeChat{
		chunks:  []llm.StreamChunk{{Content: "Partial "}},
		recvErr: stderrors.New("upstream reset"),
	}
	g := NewAnswerGenerator(chat, m)

	s := g.Generate(context.Background(), nil, "q", "", 0, 0)
	chunks := collect(t, s)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Partial ", chunks[0])
	assert.Equal(t, "Error processing your request: upstream reset\n\n", chunks[1])
	assert.True(t, s.Failed())

	// 结束后不再产生任何块
	_, ok := s.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Stats().Generation.ErrorChunks)
}

func TestGenerateOpenError(t *testing.T) {
	chat := &fakeChat{openErr: stderrors.New("401 unauthorized")}
	g := NewAnswerGenerator(chat, metrics.New())

	s := g.Generate(context.Background(), nil, "q", "", 0, 0)
	assert.Equal(t, []string{"Error processing your request: 401 unauthorized\n\n"}, collect(t, s))
	assert.True(t, s.Failed())
}

func TestGenerateDefaultTemperature(t *testing.T) {
	chat := &fakeChat{}
	g := NewAnswerGenerator(chat, metrics.New())

	for _, temp := range []float32{0, -1} {
		collect(t, g.Generate(context.Background(), nil, "q", "", temp, -5))
		require.NotNil(t, chat.streamOpts.Temperature)
		assert.Equal(t, DefaultTemperature, *chat.streamOpts.Temperature)
		assert.Equal(t, 0, chat.streamOpts.MaxTokens)
	}
}

func TestGenerateMessages(t *testing.T) {
	chat := &fakeChat{}
	g := NewAnswerGenerator(chat, metrics.New())

	history := []ConversationMessage{
		{Role: llm.RoleUser, Content: "What is article 27?", ID: "m1"},
		{Role: llm.RoleAssistant, Content: "Equality before law.", ID: "m2"},
	}
	collect(t, g.Generate(context.Background(), history, "And article 28?", "CONTEXT BLOCK", 0, 0))

	msgs := chat.streamMsgs
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: AnswerSystemPrompt}, msgs[0])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What is article 27?"}, msgs[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Equality before law."}, msgs[2])
	assert.Equal(t, llm.RoleUser, msgs[3].Role)
	assert.Contains(t, msgs[3].Content, "CONTEXT BLOCK")
	assert.Contains(t, msgs[3].Content, "And article 28?")
	assert.False(t, strings.Contains(msgs[3].Content, "{context}"))
	assert.False(t, strings.Contains(msgs[3].Content, "{question}"))
}

func TestGenerateEmptyContextStillAnswers(t *testing.T) {
	chat := &fakeChat{chunks: []llm.StreamChunk{{Content: "Hello! Ask me about Bangladesh law."}}}
	g := NewAnswerGenerator(chat, metrics.New())

	chunks := collect(t, g.Generate(context.Background(), nil, "Hello", NewContextAssembler().Assemble(nil, LanguageEnglish), 0, 0))
	assert.Equal(t, []string{"Hello! Ask me about Bangladesh law."}, chunks)
}

func TestGenerateCancellation(t *testing.T) {
	m := metrics.New()
	chat := &fakeChat{chunks: []llm.StreamChunk{{Content: "first"}}, block: true}
	g := NewAnswerGenerator(chat, m)

	ctx, cancel := context.WithCancel(context.Background())
	s := g.Generate(ctx, nil, "q", "", 0, 0)

	chunk, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "first", chunk)

	cancel()
	rest := collect(t, s)
	assert.False(t, slices.ContainsFunc(rest, func(c string) bool {
		return strings.HasPrefix(c, "Error processing")
	}), "cancellation must not produce an error chunk")
	assert.False(t, s.Failed())
	assert.True(t, chat.lastStream().isClosed())
	assert.Equal(t, uint64(1), m.Stats().Generation.Cancelled)
}
