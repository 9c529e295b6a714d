// Package store provides the vector stores holding the law corpus.
package store

import "context"

// Document 表示一条法律条文片段。
type Document struct {
	// ID 文档 ID，为空时由存储生成。
	ID string
	// Text 条文正文。
	Text string
	// Metadata 条文元数据，键按 _en / _bn 分组。
	Metadata map[string]string
	// Embedding 预先计算的向量，为空时由存储计算。
	Embedding []float32
}

// QueryRequest 描述一次批量相似度查询。
type QueryRequest struct {
	// Texts 查询文本，每条对应结果中的一个批次。
	Texts []string
	// Filter 文档内容过滤条件，nil 表示不过滤。
	Filter Filter
	// Limit 每批最多返回的文档数。
	Limit int
}

// QueryResult 为批次形状的查询结果，外层下标对应 QueryRequest.Texts。
// 每批内按距离升序排列。
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]string
	Distances [][]float64
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// Query 向量相似度查询。
	Query(ctx context.Context, req *QueryRequest) (*QueryResult, error)

	// Add 批量写入文档，相同 ID 覆盖。
	Add(ctx context.Context, docs []*Document) error

	// Count 返回集合中的文档数。
	Count(ctx context.Context) (int, error)

	// Name 返回存储类型名称。
	Name() string

	// Close 关闭连接。
	Close(ctx context.Context) error
}

// hit is one scored match before batching.
type hit struct {
	id       string
	text     string
	metadata map[string]string
	distance float64
}

func newQueryResult(batches int) *QueryResult {
	return &QueryResult{
		IDs:       make([][]string, batches),
		Documents: make([][]string, batches),
		Metadatas: make([][]map[string]string, batches),
		Distances: make([][]float64, batches),
	}
}

func (r *QueryResult) setBatch(i int, hits []hit) {
	r.IDs[i] = make([]string, len(hits))
	r.Documents[i] = make([]string, len(hits))
	r.Metadatas[i] = make([]map[string]string, len(hits))
	r.Distances[i] = make([]float64, len(hits))
	for j, h := range hits {
		r.IDs[i][j] = h.id
		r.Documents[i][j] = h.text
		r.Metadatas[i][j] = h.metadata
		r.Distances[i][j] = h.distance
	}
}
