package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bdlaw/internal/rag/biz"
	"github.com/kart-io/bdlaw/internal/rag/feedback"
	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/component/storage"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/json"
	"github.com/kart-io/bdlaw/pkg/utils/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.RegisterGin(validator.Global())
}

type fakeService struct {
	mu      sync.Mutex
	lastReq *biz.AnswerRequest
	indexed []*store.Document

	result   *biz.AnswerResult
	err      error
	stats    *biz.Stats
	indexErr error
}

func (f *fakeService) Answer(_ context.Context, req *biz.AnswerRequest) (*biz.AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeService) Index(_ context.Context, docs []*store.Document) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.indexed = append(f.indexed, docs...)
	return len(docs), nil
}

func (f *fakeService) Stats(context.Context) (*biz.Stats, error) {
	if f.stats == nil {
		return nil, errors.ErrStatsUnavailable
	}
	return f.stats, nil
}

type fakeSink struct {
	got []*feedback.Feedback
	err error
}

func (s *fakeSink) RecordFeedback(_ context.Context, fb *feedback.Feedback) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.got = append(s.got, fb)
	return true, nil
}

type fakeHealth map[string]storage.HealthStatus

func (h fakeHealth) HealthCheckAll(context.Context) map[string]storage.HealthStatus { return h }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEngine(h *RAGHandler) *gin.Engine {
	r := gin.New()
	r.POST("/v1/chat", h.Chat)
	r.POST("/v1/feedback", h.Feedback)
	r.POST("/v1/index", h.Index)
	r.GET("/v1/stats", h.Stats)
	r.GET("/healthz", h.Health)
	r.GET("/metrics", h.Metrics)
	return r
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestChatNonStream(t *testing.T) {
	svc := &fakeService{result: &biz.AnswerResult{
		ID:      "01HX",
		Text:    "Section 302 prescribes the punishment for murder.",
		Rewrite: &biz.RewriteResult{Language: biz.LanguageEnglish},
	}}
	r := newTestEngine(NewRAGHandler(svc, &fakeSink{}, metrics.New(), nil))

	w := do(r, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"What is the punishment for murder?"}],"temperature":0.2,"max_tokens":256}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	assert.Equal(t, 0, env.Code)
	var data ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "01HX", data.ID)
	assert.Equal(t, biz.LanguageEnglish, data.Language)
	assert.Contains(t, data.Content, "Section 302")

	require.NotNil(t, svc.lastReq)
	assert.Len(t, svc.lastReq.Messages, 1)
	assert.InDelta(t, 0.2, svc.lastReq.Temperature, 1e-6)
	assert.Equal(t, 256, svc.lastReq.MaxTokens)
	assert.False(t, svc.lastReq.Stream)
}

func TestChatStream(t *testing.T) {
	stream := biz.NewTextStream(context.Background(), "streamed answer")
	svc := &fakeService{result: &biz.AnswerResult{ID: "01HY", Stream: stream}}
	r := newTestEngine(NewRAGHandler(svc, &fakeSink{}, metrics.New(), nil))

	w := do(r, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"q"}],"stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "01HY", w.Header().Get(HeaderMessageID))
	assert.Equal(t, "streamed answer", w.Body.String())
	assert.True(t, w.Flushed)
	assert.True(t, svc.lastReq.Stream)
}

func TestChatRejectsBadConversation(t *testing.T) {
	svc := &fakeService{}
	r := newTestEngine(NewRAGHandler(svc, &fakeSink{}, metrics.New(), nil))

	cases := map[string]string{
		"empty":          `{"messages":[]}`,
		"assistant_last": `{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]}`,
		"bad_role":       `{"messages":[{"role":"tool","content":"x"},{"role":"user","content":"q"}]}`,
		"bad_json":       `{"messages":`,
		"temperature":    `{"messages":[{"role":"user","content":"q"}],"temperature":3}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/v1/chat", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, errors.ErrBadRequest.Code, decode(t, w).Code)
		})
	}
	assert.Nil(t, svc.lastReq, "service must not be called for invalid requests")
}

func TestChatBanglaValidationMessage(t *testing.T) {
	r := newTestEngine(NewRAGHandler(&fakeService{}, &fakeSink{}, metrics.New(), nil))

	w := do(r, http.MethodPost, "/v1/chat",
		`{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]}`,
		"Accept-Language", "bn-BD")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "ব্যবহারকারীর")
}

func TestChatServiceError(t *testing.T) {
	svc := &fakeService{err: errors.ErrRetrieval.WithCause(assert.AnError)}
	r := newTestEngine(NewRAGHandler(svc, &fakeSink{}, metrics.New(), nil))

	w := do(r, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"q"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	env := decode(t, w)
	assert.Equal(t, errors.ErrRetrieval.Code, env.Code)
	assert.NotContains(t, env.Message, assert.AnError.Error(), "causes must not leak to clients")
}

func TestFeedback(t *testing.T) {
	m := metrics.New()
	sink := &fakeSink{}
	r := newTestEngine(NewRAGHandler(&fakeService{}, sink, m, nil))

	w := do(r, http.MethodPost, "/v1/feedback", `{"message_id":"01HX","rating":"good","feedback":"helpful"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sink.got, 1)
	assert.Equal(t, "01HX", sink.got[0].MessageID)
	assert.Equal(t, "helpful", sink.got[0].Feedback)
	assert.Equal(t, uint64(1), m.Stats().Feedback.Good)

	w = do(r, http.MethodPost, "/v1/feedback", `{"message_id":"01HX","rating":"excellent"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/v1/feedback", `{"rating":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, sink.got, 1)
}

func TestFeedbackStoreFailure(t *testing.T) {
	sink := &fakeSink{err: errors.ErrFeedbackStore.WithCause(assert.AnError)}
	r := newTestEngine(NewRAGHandler(&fakeService{}, sink, metrics.New(), nil))

	w := do(r, http.MethodPost, "/v1/feedback", `{"message_id":"01HX","rating":"bad"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrFeedbackStore.Code, decode(t, w).Code)
}

func TestIndex(t *testing.T) {
	svc := &fakeService{}
	r := newTestEngine(NewRAGHandler(svc, &fakeSink{}, metrics.New(), nil))

	w := do(r, http.MethodPost, "/v1/index",
		`{"documents":[{"id":"pc-302","text":"Whoever commits murder shall be punished","metadata":{"act_title_en":"The Penal Code, 1860"}}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.indexed, 1)
	assert.Equal(t, "pc-302", svc.indexed[0].ID)
	assert.Equal(t, "The Penal Code, 1860", svc.indexed[0].Metadata["act_title_en"])

	w = do(r, http.MethodPost, "/v1/index", `{"documents":[{"id":"x","text":""}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.indexErr = errors.ErrIndexFailed
	w = do(r, http.MethodPost, "/v1/index", `{"documents":[{"text":"t"}]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStats(t *testing.T) {
	svc := &fakeService{stats: &biz.Stats{Store: "chromem", Documents: 42}}
	r := newTestEngine(NewRAGHandler(svc, &fakeSink{}, metrics.New(), nil))

	w := do(r, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats biz.Stats
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &stats))
	assert.Equal(t, 42, stats.Documents)

	svc.stats = nil
	w = do(r, http.MethodGet, "/v1/stats", "")
	assert.Equal(t, errors.ErrStatsUnavailable.HTTPStatus(), w.Code)
}

func TestHealth(t *testing.T) {
	health := fakeHealth{"redis": {Name: "redis", Healthy: true}}
	r := newTestEngine(NewRAGHandler(&fakeService{}, &fakeSink{}, metrics.New(), health))

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	health["mongodb"] = storage.HealthStatus{Name: "mongodb", Error: "connection refused"}
	w = do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.RecordFeedback(feedback.RatingBad)
	r := newTestEngine(NewRAGHandler(&fakeService{}, &fakeSink{}, m, nil))

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "bdlaw_feedback_bad_total 1"))
}
