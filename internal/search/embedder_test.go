package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embeddingBackend(t *testing.T, dims int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		// 故意乱序返回，客户端必须按 index 归位。
		type datum struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []datum
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i)
			data = append(data, datum{Index: i, Embedding: vec})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPEmbedderReordersByIndex(t *testing.T) {
	srv, _ := embeddingBackend(t, 4)
	e := NewHTTPEmbedder(HTTPEmbedderConfig{BaseURL: srv.URL, Dims: 4})

	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: first component %f", i, v[0])
		}
	}
}

func TestHTTPEmbedderBatches(t *testing.T) {
	srv, calls := embeddingBackend(t, 2)
	e := NewHTTPEmbedder(HTTPEmbedderConfig{BaseURL: srv.URL, Dims: 2, BatchSize: 2})

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	if *calls != 3 {
		t.Errorf("expected 3 batches of size 2, got %d calls", *calls)
	}
}

func TestHTTPEmbedderBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	e := NewHTTPEmbedder(HTTPEmbedderConfig{BaseURL: srv.URL, Dims: 2})

	_, err := e.Embed(context.Background(), []string{"a"})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if be.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", be.Status)
	}
}

func TestHTTPEmbedderRejectsWrongDims(t *testing.T) {
	srv, _ := embeddingBackend(t, 8)
	e := NewHTTPEmbedder(HTTPEmbedderConfig{BaseURL: srv.URL, Dims: 4})

	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error when backend dims differ from configuration")
	}
}

func TestHTTPRerankerScoresInInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Texts) != 2 {
			t.Errorf("expected 2 texts, got %d", len(req.Texts))
		}
		// 乱序返回 [{index, score}]。
		fmt.Fprint(w, `[{"index":1,"score":0.2},{"index":0,"score":0.9}]`)
	}))
	t.Cleanup(srv.Close)
	rr := NewHTTPReranker(HTTPRerankerConfig{BaseURL: srv.URL})

	scores, err := rr.Rerank(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if scores[0] != 0.9 || scores[1] != 0.2 {
		t.Fatalf("scores not reordered by index: %v", scores)
	}
}

func TestHTTPRerankerRejectsIncompleteScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"index":0,"score":0.5}]`)
	}))
	t.Cleanup(srv.Close)
	rr := NewHTTPReranker(HTTPRerankerConfig{BaseURL: srv.URL})

	if _, err := rr.Rerank(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing score")
	}
}
