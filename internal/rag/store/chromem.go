package store

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/kart-io/logger"
	"github.com/philippgille/chromem-go"

	"github.com/kart-io/bdlaw/pkg/llm"
	"github.com/kart-io/bdlaw/pkg/utils/id"
)

// ChromemStore 基于 chromem-go 的本地向量存储，持久化格式与 Chroma 集合语义一致
// （where_document 过滤、余弦距离）。
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   llm.EmbeddingProvider
	name       string
}

// NewChromemStore opens (or creates) collection under persistDir. An empty
// persistDir keeps the store in memory.
func NewChromemStore(persistDir, collection string, embedder llm.EmbeddingProvider) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem store requires an embedding provider")
	}

	var db *chromem.DB
	if persistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistDir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedSingle(ctx, text)
	}
	coll, err := db.GetOrCreateCollection(collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}

	logger.Infow("chromem store opened",
		"persist_dir", persistDir,
		"collection", collection,
		"documents", coll.Count(),
	)

	return &ChromemStore{
		db:         db,
		collection: coll,
		embedder:   embedder,
		name:       collection,
	}, nil
}

// Name 返回存储类型名称。
func (s *ChromemStore) Name() string {
	return "chromem"
}

// Count 返回集合中的文档数。
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Add 批量写入文档。
func (s *ChromemStore) Add(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ensureEmbeddings(ctx, s.embedder, docs); err != nil {
		return err
	}

	cdocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = id.NewULID()
		}
		cdocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Text,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		}
	}

	if err := s.collection.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents to chromem collection: %w", err)
	}
	return nil
}

// Query 执行批量相似度查询。chromem 的 where_document 只支持单个 $contains，
// $or 过滤按每个词分别查询后按相似度合并去重。
func (s *ChromemStore) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	if req == nil || len(req.Texts) == 0 {
		return newQueryResult(0), nil
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("query limit must be positive, got %d", req.Limit)
	}
	terms, err := ContainsTerms(req.Filter)
	if err != nil {
		return nil, fmt.Errorf("invalid document filter: %w", err)
	}

	embeddings, err := s.embedder.Embed(ctx, req.Texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("embedding count %d does not match query count %d", len(embeddings), len(req.Texts))
	}

	n := min(req.Limit, s.collection.Count())
	result := newQueryResult(len(req.Texts))
	for i, emb := range embeddings {
		if n == 0 {
			result.setBatch(i, nil)
			continue
		}
		hits, err := s.queryOne(ctx, emb, n, terms)
		if err != nil {
			return nil, err
		}
		result.setBatch(i, hits)
	}
	return result, nil
}

func (s *ChromemStore) queryOne(ctx context.Context, emb []float32, n int, terms []string) ([]hit, error) {
	if len(terms) == 0 {
		res, err := s.collection.QueryEmbedding(ctx, emb, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query chromem collection: %w", err)
		}
		return toHits(res), nil
	}

	merged := make(map[string]chromem.Result)
	for _, t := range terms {
		res, err := s.collection.QueryEmbedding(ctx, emb, n, nil, map[string]string{OpContains: t})
		if err != nil {
			return nil, fmt.Errorf("failed to query chromem collection: %w", err)
		}
		for _, r := range res {
			if prev, ok := merged[r.ID]; !ok || r.Similarity > prev.Similarity {
				merged[r.ID] = r
			}
		}
	}

	all := make([]chromem.Result, 0, len(merged))
	for _, r := range merged {
		all = append(all, r)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Similarity != all[j].Similarity {
			return all[i].Similarity > all[j].Similarity
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > n {
		all = all[:n]
	}
	return toHits(all), nil
}

// Close 关闭存储。持久化模式下写入已在 Add 时落盘。
func (s *ChromemStore) Close(_ context.Context) error {
	return nil
}

func toHits(res []chromem.Result) []hit {
	hits := make([]hit, len(res))
	for i, r := range res {
		hits[i] = hit{
			id:       r.ID,
			text:     r.Content,
			metadata: r.Metadata,
			distance: 1 - float64(r.Similarity),
		}
	}
	return hits
}

// ensureEmbeddings fills in missing embeddings with a single batched call.
func ensureEmbeddings(ctx context.Context, embedder llm.EmbeddingProvider, docs []*Document) error {
	var idx []int
	var texts []string
	for i, d := range docs {
		if len(d.Embedding) == 0 {
			idx = append(idx, i)
			texts = append(texts, d.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	embs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(embs) != len(texts) {
		return fmt.Errorf("embedding count %d does not match document count %d", len(embs), len(texts))
	}
	for j, i := range idx {
		docs[i].Embedding = embs[j]
	}
	return nil
}

var _ VectorStore = (*ChromemStore)(nil)
