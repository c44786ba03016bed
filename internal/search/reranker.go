package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	applog "searchweave/internal/platform/log"
)

// ── HTTP Reranker 实现 ───────────────────────────────────────

// HTTPReranker 调用交叉编码器重排服务（TEI /rerank 风格 API）。
// 请求 {query, texts}，响应 [{index, score}]，分数顺序按 index 归位。
type HTTPReranker struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// HTTPRerankerConfig 配置。
type HTTPRerankerConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// NewHTTPReranker 创建重排客户端。
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &HTTPReranker{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type rerankEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank 为每个候选文本计算与 query 的调整后相关性分数，按输入顺序返回。
func (r *HTTPReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, Model: r.model})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BackendError{Status: 0, Body: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var entries []rerankEntry
	if err := json.Unmarshal(respBody, &entries); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, entry := range entries {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("rerank index %d out of range (%d texts)", entry.Index, len(texts))
		}
		scores[entry.Index] = entry.Score
		seen[entry.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("missing rerank score for text index %d", i)
		}
	}

	applog.Debug("[Search/Reranker] Scored",
		"count", len(texts),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return scores, nil
}
