package corpus

// Document 语料库中一篇已入库的文档。入库后不可变，
// 在同一快照生命周期内由 DocID 唯一标识。
type Document struct {
	DocID     string `json:"doc_id"`
	Title     string `json:"title,omitempty"`
	Year      int    `json:"year,omitempty"` // 0 表示未知年份
	SourceURL string `json:"source_url,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// Chunk 文档切分后的检索单元。Position 在所属文档内严格递增，
// 定义相邻块的顺序；Token/Char 偏移均指向归一化后的文档文本。
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	Position   int    `json:"position"`
	TokenStart int    `json:"token_start"`
	TokenEnd   int    `json:"token_end"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Text       string `json:"text"`
}

// Record chunks.jsonl 中的一行：块内容加上所属文档的冗余元数据，
// 使检索层无需二次查找即可组装响应。
type Record struct {
	Chunk
	Title     string `json:"title,omitempty"`
	Year      int    `json:"year,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Filename  string `json:"filename,omitempty"`
}
