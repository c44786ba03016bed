package search

// SortOrder 结果排序方式。
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortRecency   SortOrder = "recency"
)

// Request 检索请求。K/Neighbors/PerDoc 为 -1 表示未传、由引擎补默认值；
// 年份为 0 表示该边界未设置。
type Request struct {
	Query     string    `json:"q"`
	K         int       `json:"k,omitempty"`
	Neighbors int       `json:"neighbors"`
	PerDoc    int       `json:"per_doc,omitempty"`
	YearMin   int       `json:"year_min,omitempty"`
	YearMax   int       `json:"year_max,omitempty"`
	DocID     string    `json:"doc_id,omitempty"`
	Contains  []string  `json:"contains,omitempty"`
	Sort      SortOrder `json:"sort,omitempty"`
	Cursor    string    `json:"cursor,omitempty"`
}

// Params 响应中回显的生效参数。
type Params struct {
	K         int       `json:"k"`
	Neighbors int       `json:"neighbors"`
	PerDoc    int       `json:"per_doc"`
	Sort      SortOrder `json:"sort"`
	YearMin   int       `json:"year_min,omitempty"`
	YearMax   int       `json:"year_max,omitempty"`
	DocID     string    `json:"doc_id,omitempty"`
	Contains  []string  `json:"contains,omitempty"`
}

// Result 单条检索结果。NeighborWindow 是拼接预览覆盖的
// [min_position, max_position]，绝不跨文档。
type Result struct {
	DocID          string  `json:"doc_id"`
	ChunkID        string  `json:"chunk_id"`
	Score          float64 `json:"score"`
	Title          string  `json:"title,omitempty"`
	Year           int     `json:"year,omitempty"`
	Preview        string  `json:"preview"`
	NeighborWindow [2]int  `json:"neighbor_window"`
	SourceURL      string  `json:"source_url,omitempty"`
	Filename       string  `json:"filename,omitempty"`
}

// Response 检索响应。TotalAvailable 统计的是过采样候选集中
// 通过过滤+分散化后的数量，是全库命中数的下界估计（见引擎注释）。
type Response struct {
	Query          string   `json:"query"`
	Params         Params   `json:"params"`
	Count          int      `json:"count"`
	TotalAvailable int      `json:"total_available"`
	CursorNext     *string  `json:"cursor_next"`
	TookMs         int64    `json:"took_ms"`
	Results        []Result `json:"results"`
}
