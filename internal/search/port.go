package search

import "context"

// Embedder turns text spans into fixed-dimension vectors. Implementations
// call external model services and must honor context cancellation.
type Embedder interface {
	// Embed 将文本列表转为向量（batch）
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dims 返回向量维度
	Dims() int
}

// Reranker computes adjusted relevance scores for (query, candidate) pairs.
// Scores are returned in input order, one per candidate text.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// PageCache caches assembled response pages keyed by query fingerprint,
// offset and page size. Misses are cheap; the cache is purely optional.
type PageCache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response)
}
