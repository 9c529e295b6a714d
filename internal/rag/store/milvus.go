package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/bdlaw/pkg/component/milvus"
	"github.com/kart-io/bdlaw/pkg/llm"
	"github.com/kart-io/bdlaw/pkg/utils/id"
	"github.com/kart-io/bdlaw/pkg/utils/json"
)

const (
	milvusFieldContent  = "content"
	milvusFieldMetadata = "metadata"
)

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     *milvus.Client
	collection string
	embedder   llm.EmbeddingProvider
}

// NewMilvusStore 创建 Milvus 存储实例，集合不存在时按 dimension 创建。
func NewMilvusStore(ctx context.Context, client *milvus.Client, collection string, dimension int, embedder llm.EmbeddingProvider) (*MilvusStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("milvus store requires an embedding provider")
	}
	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "Bangladesh law sections",
		Dimension:   dimension,
		IDMaxLen:    128,
		MetaFields: []milvus.MetaField{
			{Name: milvusFieldContent, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: milvusFieldMetadata, DataType: entity.FieldTypeJSON},
		},
	}
	if err := client.CreateCollection(ctx, schema); err != nil {
		return nil, err
	}
	logger.Infow("milvus store ready", "collection", collection, "dimension", dimension)

	return &MilvusStore{client: client, collection: collection, embedder: embedder}, nil
}

// Name 返回存储类型名称。
func (s *MilvusStore) Name() string {
	return "milvus"
}

// Count 返回集合中的文档数。
func (s *MilvusStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.GetCollectionStats(ctx, s.collection)
	return int(n), err
}

// Add 批量写入文档。
func (s *MilvusStore) Add(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ensureEmbeddings(ctx, s.embedder, docs); err != nil {
		return err
	}

	data := &milvus.InsertData{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		VarChars:   map[string][]string{milvusFieldContent: make([]string, len(docs))},
		JSONs:      map[string][][]byte{milvusFieldMetadata: make([][]byte, len(docs))},
	}
	for i, d := range docs {
		if d.ID == "" {
			d.ID = id.NewULID()
		}
		meta := d.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", d.ID, err)
		}
		data.IDs[i] = d.ID
		data.Embeddings[i] = d.Embedding
		data.VarChars[milvusFieldContent][i] = d.Text
		data.JSONs[milvusFieldMetadata][i] = raw
	}

	if err := s.client.Upsert(ctx, s.collection, data); err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}
	return nil
}

// Query 执行批量相似度查询，$contains / $or 过滤转换为 content like 表达式。
func (s *MilvusStore) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
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

	batches, err := s.client.Search(ctx, s.collection, embeddings, req.Limit,
		MilvusExpr(milvusFieldContent, terms),
		[]string{milvusFieldContent, milvusFieldMetadata})
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	result := newQueryResult(len(req.Texts))
	for i := range req.Texts {
		var hits []hit
		if i < len(batches) {
			hits = make([]hit, len(batches[i]))
			for j, r := range batches[i] {
				meta := map[string]string{}
				if raw := r.JSONs[milvusFieldMetadata]; len(raw) > 0 {
					if err := json.Unmarshal(raw, &meta); err != nil {
						logger.Warnw("failed to decode milvus metadata", "id", r.ID, "error", err.Error())
					}
				}
				hits[j] = hit{
					id:       r.ID,
					text:     r.VarChars[milvusFieldContent],
					metadata: meta,
					// COSINE 返回相似度
					distance: 1 - float64(r.Score),
				}
			}
		}
		result.setBatch(i, hits)
	}
	return result, nil
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(_ context.Context) error {
	return s.client.Close()
}

var _ VectorStore = (*MilvusStore)(nil)
