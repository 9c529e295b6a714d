package biz

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/infra/tracing"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

// Retriever 从向量库检索法律条文。
type Retriever struct {
	store   store.VectorStore
	metrics *metrics.RAGMetrics
}

// NewRetriever 创建检索器。
func NewRetriever(vs store.VectorStore, m *metrics.RAGMetrics) *Retriever {
	if m == nil {
		m = metrics.GetRAGMetrics()
	}
	return &Retriever{store: vs, metrics: m}
}

// Retrieve returns up to limit documents nearest to query, restricted to
// documents containing at least one of documentContains when it is non-empty.
// Results keep the store's ascending-distance order.
func (r *Retriever) Retrieve(ctx context.Context, query string, documentContains []string, limit int) ([]RetrievedDocument, error) {
	if limit <= 0 {
		return nil, errors.ErrInvalidLimit
	}

	ctx, span := tracing.StartSpan(ctx, "rag.retrieve",
		attribute.String("rag.store", r.store.Name()),
		attribute.Int("rag.limit", limit),
		attribute.StringSlice("rag.document_contains", documentContains),
	)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	res, qerr := r.store.Query(ctx, &store.QueryRequest{
		Texts:  []string{query},
		Filter: store.BuildDocumentFilter(documentContains),
		Limit:  limit,
	})
	if qerr != nil {
		err = errors.ErrRetrieval.WithCause(qerr)
		r.metrics.RecordRetrieval(time.Since(start), 0, err)
		logger.Errorw("retrieval failed", "store", r.store.Name(), "error", qerr.Error())
		return nil, err
	}

	docs := flattenFirstBatch(res)
	r.metrics.RecordRetrieval(time.Since(start), len(docs), nil)
	span.SetAttributes(attribute.Int("rag.documents", len(docs)))
	logger.Debugw("retrieved documents",
		"store", r.store.Name(),
		"count", len(docs),
		"duration", time.Since(start).String(),
	)
	return docs, nil
}

func flattenFirstBatch(res *store.QueryResult) []RetrievedDocument {
	if res == nil || len(res.Documents) == 0 {
		return []RetrievedDocument{}
	}

	texts := res.Documents[0]
	docs := make([]RetrievedDocument, len(texts))
	for i, text := range texts {
		docs[i] = RetrievedDocument{Text: text}
		if len(res.Metadatas) > 0 && i < len(res.Metadatas[0]) {
			docs[i].Metadata = res.Metadatas[0][i]
		}
		if len(res.Distances) > 0 && i < len(res.Distances[0]) {
			docs[i].Distance = res.Distances[0][i]
		}
	}
	return docs
}
