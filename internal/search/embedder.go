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

// BackendError 外部模型服务返回的非 2xx 响应。Status 为 0 表示传输层失败。
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return "backend transport error: " + e.Body
	}
	return fmt.Sprintf("backend error (%d): %s", e.Status, e.Body)
}

// ── OpenAI 兼容 Embedder 实现 ─────────────────────────────────

// HTTPEmbedder 调用 OpenAI 兼容 /v1/embeddings API。
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	batch   int
	client  *http.Client
}

// HTTPEmbedderConfig 配置。
type HTTPEmbedderConfig struct {
	BaseURL        string // e.g. https://api.openai.com/v1
	APIKey         string
	Model          string // e.g. text-embedding-3-small
	Dims           int    // 向量维度
	BatchSize      int
	TimeoutSeconds int
}

// NewHTTPEmbedder 创建 OpenAI 兼容 Embedder。
func NewHTTPEmbedder(cfg HTTPEmbedderConfig) *HTTPEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dims <= 0 {
		cfg.Dims = 1536
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &HTTPEmbedder{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dims:    cfg.Dims,
		batch:   cfg.BatchSize,
		client:  &http.Client{Timeout: timeout},
	}
}

// Dims 返回向量维度。
func (e *HTTPEmbedder) Dims() int { return e.dims }

// Embed 批量生成向量。
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batch {
		end := i + e.batch
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

type embeddingRequest struct {
	Input          any    `json:"input"`
	Model          string `json:"model"`
	Dimensions     int    `json:"dimensions,omitempty"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (e *HTTPEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()

	reqBody := embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
	}
	// 支持 dimensions 参数的模型（如 text-embedding-3-*）
	if strings.Contains(e.model, "embedding-3") {
		reqBody.Dimensions = e.dims
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
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

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	// 按 index 归位，保证输出顺序与输入一致
	vectors := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for text index %d", i)
		}
		if len(v) != e.dims {
			return nil, fmt.Errorf("embedding dim %d != configured dims %d", len(v), e.dims)
		}
	}

	applog.Debug("[Search/Embedder] Batch embedded",
		"count", len(texts),
		"dims", e.dims,
		"tokens", embResp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return vectors, nil
}
