package biz

import (
	"context"
	"io"
	"sync"

	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/llm"
)

// fakeChat scripts both the rewrite reply and the answer stream.
type fakeChat struct {
	mu sync.Mutex

	reply    *llm.ChatResponse
	chatErr  error
	chunks   []llm.StreamChunk
	recvErr  error // returned after all chunks
	openErr  error
	block    bool // Recv blocks on ctx after the chunks
	chatMsgs [][]llm.Message
	chatOpts []*llm.ChatOptions

	streamMsgs []llm.Message
	streamOpts *llm.ChatOptions
	streams    []*fakeChatStream
}

func (f *fakeChat) Name() string { return "fake" }

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatMsgs = append(f.chatMsgs, messages)
	f.chatOpts = append(f.chatOpts, opts)
	return f.reply, f.chatErr
}

func (f *fakeChat) ChatStream(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (llm.ChatStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamMsgs = messages
	f.streamOpts = opts
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeChatStream{ctx: ctx, chunks: f.chunks, err: f.recvErr, block: f.block}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeChat) lastStream() *fakeChatStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func reply(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.Choice{{Content: content, FinishReason: llm.FinishReasonStop}}}
}

type fakeChatStream struct {
	ctx    context.Context
	chunks []llm.StreamChunk
	err    error
	block  bool
	pos    int

	mu     sync.Mutex
	closed bool
	recvs  int
}

func (s *fakeChatStream) Recv() (*llm.StreamChunk, error) {
	s.mu.Lock()
	s.recvs++
	s.mu.Unlock()

	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return &c, nil
	}
	if s.block {
		<-s.ctx.Done()
		return nil, s.ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *fakeChatStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeChatStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeStore records the last query and returns a canned result.
type fakeStore struct {
	mu      sync.Mutex
	result  *store.QueryResult
	err     error
	queries []*store.QueryRequest
	added   []*store.Document
	count   int
	addErr  error
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) Query(_ context.Context, req *store.QueryRequest) (*store.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return &store.QueryResult{
			IDs: [][]string{{}}, Documents: [][]string{{}},
			Metadatas: [][]map[string]string{{}}, Distances: [][]float64{{}},
		}, nil
	}
	return s.result, nil
}

func (s *fakeStore) Add(_ context.Context, docs []*store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, docs...)
	s.count += len(docs)
	return nil
}

func (s *fakeStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.err
}

func (s *fakeStore) Close(context.Context) error { return nil }

func (s *fakeStore) lastQuery() *store.QueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return nil
	}
	return s.queries[len(s.queries)-1]
}

// rtiResult is a single-batch result with one Right to Information section.
func rtiResult() *store.QueryResult {
	return &store.QueryResult{
		IDs:       [][]string{{"rti-9"}},
		Documents: [][]string{{"Section 9. Procedure for providing information."}},
		Metadatas: [][]map[string]string{{{
			"act_en":     "Right to Information Act, 2009",
			"act_bn":     "তথ্য অধিকার আইন, ২০০৯",
			"section_en": "9",
			"section_bn": "৯। তথ্য প্রদান পদ্ধতি",
		}}},
		Distances: [][]float64{{0.12}},
	}
}

// fakeHistory collects saved exchanges.
type fakeHistory struct {
	saved chan *Exchange
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{saved: make(chan *Exchange, 8)}
}

func (h *fakeHistory) SaveExchange(_ context.Context, ex *Exchange) error {
	h.saved <- ex
	return nil
}
