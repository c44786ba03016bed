package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"searchweave/internal/corpus"
	"searchweave/internal/index"
	applog "searchweave/internal/platform/log"
)

// Engine 检索引擎。持有只读的 chunk 快照与向量索引，
// 每次查询是无共享可变状态的独立读操作，可任意并发。
type Engine struct {
	store    *corpus.Store
	idx      *index.VectorIndex
	embedder Embedder
	reranker Reranker  // 可选
	cache    PageCache // 可选
	cfg      *Config
}

// NewEngine 创建检索引擎。embedder 维度必须与索引一致，
// 否则是语料产物级的完整性错误，启动即失败。
func NewEngine(store *corpus.Store, idx *index.VectorIndex, embedder Embedder, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if embedder.Dims() != idx.Dim() {
		return nil, &index.IntegrityError{
			Reason: fmt.Sprintf("embedder dims %d != index dim %d (mixed embedding models?)", embedder.Dims(), idx.Dim()),
		}
	}
	return &Engine{store: store, idx: idx, embedder: embedder, cfg: cfg}, nil
}

// SetReranker 设置 Reranker（启用重排序）。
func (e *Engine) SetReranker(r Reranker) { e.reranker = r }

// SetCache 设置响应页缓存。
func (e *Engine) SetCache(c PageCache) { e.cache = c }

// candidate 单次查询内的临时候选。score 是唯一权威分数字段：
// 重排序直接覆盖它，排序逻辑永远只读这一个字段。
type candidate struct {
	chunk *corpus.Chunk
	doc   *corpus.Document
	score float64
}

// Search 执行检索 pipeline：
// 游标校验 → 过采样 → 过滤 → 按文档分散 → 可选重排 → 排序 →
// 邻块拼接 → 分页切片 → 响应组装。
func (e *Engine) Search(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	r := e.normalize(req)
	if err := e.validate(r); err != nil {
		return nil, err
	}

	// 1. 游标校验：解码失败或指纹不匹配都回到第一页，绝不错序翻页。
	fp := Fingerprint(r)
	offset := 0
	if r.Cursor != "" {
		f, o, err := DecodeCursor(r.Cursor)
		switch {
		case err != nil:
			applog.Warn("[Search] Malformed cursor, restarting from first page", "error", err)
		case f != fp:
			applog.Warn("[Search] Cursor fingerprint mismatch, restarting from first page")
		default:
			offset = o
		}
	}

	cacheKey := fmt.Sprintf("%s:%d:%d", fp, offset, r.K)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	// 2. 过采样：下游过滤/分散会淘汰候选，单次多取以便常态下无需二次检索。
	// 过滤淘汰过多时页面就是短的（单轮取数是明确的取舍，不做 widen 重试）。
	qvec, err := e.embedQuery(ctx, r.Query)
	if err != nil {
		return nil, err
	}
	overfetch := r.K * r.PerDoc * e.cfg.OverfetchFactor
	if overfetch < e.cfg.MinOverfetch {
		overfetch = e.cfg.MinOverfetch
	}
	hits, err := e.idx.Search(qvec, overfetch)
	if err != nil {
		return nil, err
	}

	// 3+4. 过滤 + 按文档分散（候选已按分数降序、同分按 chunk_id 升序）。
	survivors := e.filterAndDiversify(hits, r)

	// 5. 可选重排：外部分数覆盖向量相似度，之后重新排序。
	if e.reranker != nil && len(survivors) > 0 {
		if err := e.rerank(ctx, r.Query, survivors); err != nil {
			return nil, err
		}
	}

	// 6. 排序：recency 按年份降序（未知年份殿后），分数作平局裁决。
	if r.Sort == SortRecency {
		sort.SliceStable(survivors, func(i, j int) bool {
			yi, yj := survivors[i].doc.Year, survivors[j].doc.Year
			if (yi == 0) != (yj == 0) {
				return yi != 0
			}
			if yi != yj {
				return yi > yj
			}
			if survivors[i].score != survivors[j].score {
				return survivors[i].score > survivors[j].score
			}
			return survivors[i].chunk.ChunkID < survivors[j].chunk.ChunkID
		})
	}

	// 7+8. 分页切片，仅对落页的块做邻块拼接。
	total := len(survivors)
	pageEnd := offset + r.K
	if pageEnd > total {
		pageEnd = total
	}
	results := make([]Result, 0, r.K)
	if offset < total {
		for _, c := range survivors[offset:pageEnd] {
			results = append(results, e.assemble(c, r.Neighbors))
		}
	}

	var cursorNext *string
	if pageEnd < total {
		next := EncodeCursor(fp, pageEnd)
		cursorNext = &next
	}

	resp := &Response{
		Query:          r.Query,
		Params:         e.echoParams(r),
		Count:          len(results),
		TotalAvailable: total,
		CursorNext:     cursorNext,
		TookMs:         time.Since(start).Milliseconds(),
		Results:        results,
	}

	if e.cache != nil {
		cached := *resp
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			e.cache.Set(cacheCtx, cacheKey, &cached)
		}()
	}

	applog.Info("[Search] Query served",
		"query", r.Query,
		"k", r.K,
		"offset", offset,
		"count", len(results),
		"total_available", total,
		"reranked", e.reranker != nil,
		"took_ms", resp.TookMs,
	)
	return resp, nil
}

// normalize 返回填好默认值的请求副本，不改动调用方的结构体。
// K/Neighbors/PerDoc 用 -1 表示未传；其余取值（包括显式的 0 和越界值）
// 原样交给 validate，不能静默改写成默认值。
func (e *Engine) normalize(req *Request) *Request {
	r := *req
	if r.K == -1 {
		r.K = e.cfg.DefaultK
	}
	if r.Neighbors == -1 {
		r.Neighbors = e.cfg.DefaultNeighbors
	}
	if r.PerDoc == -1 {
		r.PerDoc = e.cfg.DefaultPerDoc
	}
	if r.Sort == "" {
		r.Sort = SortRelevance
	}
	r.Contains = normalizeContains(r.Contains)
	return &r
}

func (e *Engine) validate(r *Request) error {
	if strings.TrimSpace(r.Query) == "" {
		return &ValidationError{Field: "q", Reason: "query text is required"}
	}
	if r.K < 1 || r.K > e.cfg.MaxK {
		return &ValidationError{Field: "k", Reason: fmt.Sprintf("must be in [1,%d], got %d", e.cfg.MaxK, r.K)}
	}
	if r.Neighbors < 0 {
		return &ValidationError{Field: "neighbors", Reason: fmt.Sprintf("must be >= 0, got %d", r.Neighbors)}
	}
	if r.PerDoc < 1 {
		return &ValidationError{Field: "per_doc", Reason: fmt.Sprintf("must be >= 1, got %d", r.PerDoc)}
	}
	if r.YearMin != 0 && r.YearMax != 0 && r.YearMin > r.YearMax {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("range min %d > max %d", r.YearMin, r.YearMax)}
	}
	if r.Sort != SortRelevance && r.Sort != SortRecency {
		return &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort %q", r.Sort)}
	}
	return nil
}

// filterAndDiversify 丢弃文档谓词不通过的候选，再限制每文档最多
// PerDoc 条。未知 doc_id 过滤得到空集而不是错误。
func (e *Engine) filterAndDiversify(hits []index.Hit, r *Request) []candidate {
	perDocCount := make(map[string]int)
	var out []candidate

	for _, h := range hits {
		chunk, ok := e.store.Chunk(h.ChunkID)
		if !ok {
			// 索引里有、快照里没有：产物不同步，记日志并跳过。
			applog.Warn("[Search] Chunk in index but missing from snapshot", "chunk_id", h.ChunkID)
			continue
		}
		doc, ok := e.store.Document(chunk.DocID)
		if !ok {
			continue
		}
		if r.DocID != "" && doc.DocID != r.DocID {
			continue
		}
		// 年份过滤开启时，未知年份的文档一并排除，保证返回结果全部落在区间内。
		if r.YearMin != 0 || r.YearMax != 0 {
			if doc.Year == 0 {
				continue
			}
			if r.YearMin != 0 && doc.Year < r.YearMin {
				continue
			}
			if r.YearMax != 0 && doc.Year > r.YearMax {
				continue
			}
		}
		if len(r.Contains) > 0 && !containsAny(chunk.Text, r.Contains) {
			continue
		}
		if perDocCount[doc.DocID] >= r.PerDoc {
			continue
		}
		perDocCount[doc.DocID]++
		out = append(out, candidate{chunk: chunk, doc: doc, score: h.Score})
	}
	return out
}

// rerank 外部重排：分数覆盖后按调整分降序、同分按 chunk_id 升序重排。
func (e *Engine) rerank(ctx context.Context, query string, survivors []candidate) error {
	texts := make([]string, len(survivors))
	for i, c := range survivors {
		texts[i] = c.chunk.Text
	}

	scores, err := e.callUpstream(ctx, "rerank", func(ctx context.Context) ([]float64, error) {
		return e.reranker.Rerank(ctx, query, texts)
	})
	if err != nil {
		return err
	}
	if len(scores) != len(survivors) {
		return &UpstreamUnavailableError{Op: "rerank", Err: fmt.Errorf("got %d scores for %d candidates", len(scores), len(survivors))}
	}
	for i := range survivors {
		survivors[i].score = scores[i]
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].score != survivors[j].score {
			return survivors[i].score > survivors[j].score
		}
		return survivors[i].chunk.ChunkID < survivors[j].chunk.ChunkID
	})
	return nil
}

// assemble 组装单条结果：拼接 ±neighbors 个同文档邻块作预览。
// 文档首尾窗口自然收缩，绝不报错。
func (e *Engine) assemble(c candidate, neighbors int) Result {
	window, minPos, maxPos, ok := e.store.Window(c.chunk.ChunkID, neighbors)
	if !ok {
		window = []*corpus.Chunk{c.chunk}
		minPos, maxPos = c.chunk.Position, c.chunk.Position
	}

	parts := make([]string, 0, len(window))
	for _, w := range window {
		if t := strings.TrimSpace(strings.ReplaceAll(w.Text, "\n", " ")); t != "" {
			parts = append(parts, t)
		}
	}
	preview := strings.Join(parts, " ")
	if runes := []rune(preview); len(runes) > e.cfg.MaxPreviewChars {
		preview = string(runes[:e.cfg.MaxPreviewChars])
	}

	return Result{
		DocID:          c.doc.DocID,
		ChunkID:        c.chunk.ChunkID,
		Score:          c.score,
		Title:          c.doc.Title,
		Year:           c.doc.Year,
		Preview:        preview,
		NeighborWindow: [2]int{minPos, maxPos},
		SourceURL:      c.doc.SourceURL,
		Filename:       c.doc.Filename,
	}
}

func (e *Engine) echoParams(r *Request) Params {
	return Params{
		K:         r.K,
		Neighbors: r.Neighbors,
		PerDoc:    r.PerDoc,
		Sort:      r.Sort,
		YearMin:   r.YearMin,
		YearMax:   r.YearMax,
		DocID:     r.DocID,
		Contains:  r.Contains,
	}
}

// embedQuery 调用外部 embedding 服务，瞬时错误带退避重试。
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.callUpstreamVec(ctx, "embed", func(ctx context.Context) ([][]float32, error) {
		return e.embedder.Embed(ctx, []string{query})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &UpstreamUnavailableError{Op: "embed", Err: fmt.Errorf("got %d vectors for 1 text", len(vecs))}
	}
	return vecs[0], nil
}

// callUpstream 带重试的外部调用。只重试瞬时网络错误；
// 取消/超时与后端 4xx 立即上浮。校验类错误永远不重试。
func (e *Engine) callUpstream(ctx context.Context, op string, fn func(context.Context) ([]float64, error)) ([]float64, error) {
	var lastErr error
	backoff := e.cfg.RetryBackoff
	for attempt := 0; attempt <= e.cfg.UpstreamRetries; attempt++ {
		if attempt > 0 {
			applog.Warn("[Search] Upstream call retrying", "op", op, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, &UpstreamUnavailableError{Op: op, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, &UpstreamUnavailableError{Op: op, Err: lastErr}
}

func (e *Engine) callUpstreamVec(ctx context.Context, op string, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	var out [][]float32
	_, err := e.callUpstream(ctx, op, func(ctx context.Context) ([]float64, error) {
		var innerErr error
		out, innerErr = fn(ctx)
		return nil, innerErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retryable 判断错误是否值得重试：请求上下文结束与后端明确拒绝（4xx）不重试。
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status == 0 || be.Status >= 500
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
