// Package metrics 提供法律问答流水线的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RAGMetrics 流水线业务指标。
type RAGMetrics struct {
	// 问答指标
	answersTotal      uint64 // 总问答次数
	answersCacheHits  uint64 // 缓存命中次数
	answersCacheMiss  uint64 // 缓存未命中次数
	answersErrors     uint64 // 致命错误次数
	answersStreamed   uint64 // 流式问答次数
	answersBangla     uint64 // 孟加拉语问答次数
	answersNoRetrieve uint64 // 跳过检索次数

	// 改写指标
	rewritesTotal     uint64
	rewritesFallbacks uint64 // 解析失败回退次数
	rewritesErrors    uint64

	// 检索指标
	retrievalTotal    uint64
	retrievalDuration float64 // 检索总耗时（秒）
	retrievalErrors   uint64
	retrievalDocs     uint64 // 检索到的条文总数

	// 生成指标
	generationsTotal    uint64
	generationDuration  float64 // 生成总耗时（秒）
	generationErrChunks uint64  // 内联错误块次数
	generationCancelled uint64

	// 反馈指标
	feedbackGood uint64
	feedbackBad  uint64

	// 索引指标
	documentsIndexed uint64
	indexErrors      uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalRAGMetrics *RAGMetrics
	ragMetricsOnce   sync.Once
)

// GetRAGMetrics 获取全局指标实例。
func GetRAGMetrics() *RAGMetrics {
	ragMetricsOnce.Do(func() {
		globalRAGMetrics = New()
	})
	return globalRAGMetrics
}

// New returns an isolated metrics instance.
func New() *RAGMetrics {
	return &RAGMetrics{startTime: time.Now()}
}

// RecordAnswer 记录一次问答。
func (m *RAGMetrics) RecordAnswer(cacheHit, streamed bool, err error) {
	atomic.AddUint64(&m.answersTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.answersErrors, 1)
		return
	}
	if streamed {
		atomic.AddUint64(&m.answersStreamed, 1)
	}
	if cacheHit {
		atomic.AddUint64(&m.answersCacheHits, 1)
	} else {
		atomic.AddUint64(&m.answersCacheMiss, 1)
	}
}

// RecordRewrite 记录一次查询改写。
func (m *RAGMetrics) RecordRewrite(lang string, retrieve, fallback bool, err error) {
	atomic.AddUint64(&m.rewritesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.rewritesErrors, 1)
		return
	}
	if fallback {
		atomic.AddUint64(&m.rewritesFallbacks, 1)
	}
	if lang == "bn" {
		atomic.AddUint64(&m.answersBangla, 1)
	}
	if !retrieve {
		atomic.AddUint64(&m.answersNoRetrieve, 1)
	}
}

// RecordRetrieval 记录检索操作。
func (m *RAGMetrics) RecordRetrieval(duration time.Duration, docs int, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}
	atomic.AddUint64(&m.retrievalDocs, uint64(docs))

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordGeneration 记录一次生成流的结束。
func (m *RAGMetrics) RecordGeneration(duration time.Duration, errChunk, cancelled bool) {
	atomic.AddUint64(&m.generationsTotal, 1)
	if errChunk {
		atomic.AddUint64(&m.generationErrChunks, 1)
	}
	if cancelled {
		atomic.AddUint64(&m.generationCancelled, 1)
	}

	m.durationMu.Lock()
	m.generationDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordFeedback 记录用户反馈。
func (m *RAGMetrics) RecordFeedback(rating string) {
	switch rating {
	case "good":
		atomic.AddUint64(&m.feedbackGood, 1)
	case "bad":
		atomic.AddUint64(&m.feedbackBad, 1)
	}
}

// RecordIndexing 记录索引操作。
func (m *RAGMetrics) RecordIndexing(documents int, err error) {
	if err != nil {
		atomic.AddUint64(&m.indexErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIndexed, uint64(documents))
}

// Snapshot 指标快照，用于 API 输出。
type Snapshot struct {
	Answers    AnswerStats     `json:"answers"`
	Rewrites   RewriteStats    `json:"rewrites"`
	Retrieval  RetrievalStats  `json:"retrieval"`
	Generation GenerationStats `json:"generation"`
	Feedback   FeedbackStats   `json:"feedback"`
	Indexing   IndexingStats   `json:"indexing"`
	Uptime     float64         `json:"uptime_seconds"`
}

type AnswerStats struct {
	Total        uint64  `json:"total"`
	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	Errors       uint64  `json:"errors"`
	Streamed     uint64  `json:"streamed"`
	Bangla       uint64  `json:"bangla"`
	NoRetrieval  uint64  `json:"no_retrieval"`
}

type RewriteStats struct {
	Total     uint64 `json:"total"`
	Fallbacks uint64 `json:"fallbacks"`
	Errors    uint64 `json:"errors"`
}

type RetrievalStats struct {
	Total         uint64  `json:"total"`
	Errors        uint64  `json:"errors"`
	Documents     uint64  `json:"documents"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

type GenerationStats struct {
	Total         uint64  `json:"total"`
	ErrorChunks   uint64  `json:"error_chunks"`
	Cancelled     uint64  `json:"cancelled"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

type FeedbackStats struct {
	Good uint64 `json:"good"`
	Bad  uint64 `json:"bad"`
}

type IndexingStats struct {
	Documents uint64 `json:"documents"`
	Errors    uint64 `json:"errors"`
}

// Stats 返回当前统计信息。
func (m *RAGMetrics) Stats() Snapshot {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	generationDuration := m.generationDuration
	m.durationMu.Unlock()

	hits := atomic.LoadUint64(&m.answersCacheHits)
	misses := atomic.LoadUint64(&m.answersCacheMiss)
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	// 平均耗时只统计成功的检索
	retrievals := atomic.LoadUint64(&m.retrievalTotal)
	okRetrievals := retrievals - atomic.LoadUint64(&m.retrievalErrors)
	avgRetrieval := 0.0
	if okRetrievals > 0 {
		avgRetrieval = retrievalDuration / float64(okRetrievals) * 1000
	}

	generations := atomic.LoadUint64(&m.generationsTotal)
	avgGeneration := 0.0
	if generations > 0 {
		avgGeneration = generationDuration / float64(generations) * 1000
	}

	return Snapshot{
		Answers: AnswerStats{
			Total:        atomic.LoadUint64(&m.answersTotal),
			CacheHits:    hits,
			CacheMisses:  misses,
			CacheHitRate: hitRate,
			Errors:       atomic.LoadUint64(&m.answersErrors),
			Streamed:     atomic.LoadUint64(&m.answersStreamed),
			Bangla:       atomic.LoadUint64(&m.answersBangla),
			NoRetrieval:  atomic.LoadUint64(&m.answersNoRetrieve),
		},
		Rewrites: RewriteStats{
			Total:     atomic.LoadUint64(&m.rewritesTotal),
			Fallbacks: atomic.LoadUint64(&m.rewritesFallbacks),
			Errors:    atomic.LoadUint64(&m.rewritesErrors),
		},
		Retrieval: RetrievalStats{
			Total:         retrievals,
			Errors:        atomic.LoadUint64(&m.retrievalErrors),
			Documents:     atomic.LoadUint64(&m.retrievalDocs),
			AvgDurationMS: avgRetrieval,
		},
		Generation: GenerationStats{
			Total:         generations,
			ErrorChunks:   atomic.LoadUint64(&m.generationErrChunks),
			Cancelled:     atomic.LoadUint64(&m.generationCancelled),
			AvgDurationMS: avgGeneration,
		},
		Feedback: FeedbackStats{
			Good: atomic.LoadUint64(&m.feedbackGood),
			Bad:  atomic.LoadUint64(&m.feedbackBad),
		},
		Indexing: IndexingStats{
			Documents: atomic.LoadUint64(&m.documentsIndexed),
			Errors:    atomic.LoadUint64(&m.indexErrors),
		},
		Uptime: time.Since(m.startTime).Seconds(),
	}
}

// Export 导出 Prometheus 文本格式指标。
func (m *RAGMetrics) Export(namespace string) string {
	s := m.Stats()

	var sb strings.Builder
	write := func(name, typ, help string, value any) {
		fmt.Fprintf(&sb, "# HELP %s_%s %s\n", namespace, name, help)
		fmt.Fprintf(&sb, "# TYPE %s_%s %s\n", namespace, name, typ)
		switch v := value.(type) {
		case float64:
			fmt.Fprintf(&sb, "%s_%s %.4f\n\n", namespace, name, v)
		default:
			fmt.Fprintf(&sb, "%s_%s %v\n\n", namespace, name, v)
		}
	}

	write("answers_total", "counter", "Total number of answered questions.", s.Answers.Total)
	write("answers_cache_hits_total", "counter", "Number of answers served from cache.", s.Answers.CacheHits)
	write("answers_errors_total", "counter", "Number of questions that failed with a fatal error.", s.Answers.Errors)
	write("answers_streamed_total", "counter", "Number of streamed answers.", s.Answers.Streamed)
	write("answers_bangla_total", "counter", "Number of questions detected as Bangla.", s.Answers.Bangla)
	write("answers_no_retrieval_total", "counter", "Number of questions answered without retrieval.", s.Answers.NoRetrieval)
	write("cache_hit_rate", "gauge", "Answer cache hit rate (0-1).", s.Answers.CacheHitRate)
	write("rewrites_total", "counter", "Total number of query rewrites.", s.Rewrites.Total)
	write("rewrites_fallbacks_total", "counter", "Number of rewrites that fell back to the raw question.", s.Rewrites.Fallbacks)
	write("rewrites_errors_total", "counter", "Number of rewrite upstream failures.", s.Rewrites.Errors)
	write("retrieval_total", "counter", "Total number of retrievals.", s.Retrieval.Total)
	write("retrieval_errors_total", "counter", "Number of retrieval errors.", s.Retrieval.Errors)
	write("retrieval_documents_total", "counter", "Number of retrieved law sections.", s.Retrieval.Documents)
	write("generations_total", "counter", "Total number of answer streams.", s.Generation.Total)
	write("generation_error_chunks_total", "counter", "Number of answer streams ended by an inline error.", s.Generation.ErrorChunks)
	write("generation_cancelled_total", "counter", "Number of answer streams cancelled by the caller.", s.Generation.Cancelled)
	write("feedback_good_total", "counter", "Number of positive feedback records.", s.Feedback.Good)
	write("feedback_bad_total", "counter", "Number of negative feedback records.", s.Feedback.Bad)
	write("documents_indexed_total", "counter", "Total law sections indexed.", s.Indexing.Documents)
	write("index_errors_total", "counter", "Number of indexing errors.", s.Indexing.Errors)
	write("uptime_seconds", "gauge", "Service uptime in seconds.", s.Uptime)

	return sb.String()
}

// Reset 重置所有指标（仅用于测试）。
func (m *RAGMetrics) Reset() {
	m.durationMu.Lock()
	defer m.durationMu.Unlock()

	for _, p := range []*uint64{
		&m.answersTotal, &m.answersCacheHits, &m.answersCacheMiss, &m.answersErrors,
		&m.answersStreamed, &m.answersBangla, &m.answersNoRetrieve,
		&m.rewritesTotal, &m.rewritesFallbacks, &m.rewritesErrors,
		&m.retrievalTotal, &m.retrievalErrors, &m.retrievalDocs,
		&m.generationsTotal, &m.generationErrChunks, &m.generationCancelled,
		&m.feedbackGood, &m.feedbackBad,
		&m.documentsIndexed, &m.indexErrors,
	} {
		atomic.StoreUint64(p, 0)
	}
	m.retrievalDuration = 0
	m.generationDuration = 0
	m.startTime = time.Now()
}
