package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"searchweave/internal/corpus"
	"searchweave/internal/index"
	"searchweave/internal/search"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dims() int { return 2 }

func newTestServer(t *testing.T, cfg *ServerConfig) *Server {
	t.Helper()

	docs := []corpus.Document{
		{DocID: "d1", Title: "Doc One", Year: 2020, Filename: "one.md"},
		{DocID: "d2", Title: "Doc Two", Year: 2018},
	}
	var chunks []corpus.Chunk
	var ids []string
	var vecs [][]float32
	for pos := 0; pos < 3; pos++ {
		id := fmt.Sprintf("d1_chunk%04d", pos)
		chunks = append(chunks, corpus.Chunk{ChunkID: id, DocID: "d1", Position: pos, Text: fmt.Sprintf("text %d", pos)})
		ids = append(ids, id)
		vecs = append(vecs, []float32{float32(0.9) - float32(pos)*0.1, 0})
	}
	chunks = append(chunks, corpus.Chunk{ChunkID: "d2_chunk0000", DocID: "d2", Position: 0, Text: "other text"})
	ids = append(ids, "d2_chunk0000")
	vecs = append(vecs, []float32{0.5, 0})

	store, err := corpus.NewStore(docs, chunks)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	idx, err := index.Build(ids, vecs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	engine, err := search.NewEngine(store, idx, stubEmbedder{}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewServer(cfg, engine, store)
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := doGet(t, handler, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := doGet(t, handler, "/search?q=hello&k=2&per_doc=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp search.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query != "hello" {
		t.Errorf("expected query echoed, got %q", resp.Query)
	}
	if resp.Count != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got count=%d len=%d", resp.Count, len(resp.Results))
	}
	if resp.Results[0].ChunkID != "d1_chunk0000" {
		t.Errorf("expected top chunk d1_chunk0000, got %s", resp.Results[0].ChunkID)
	}
	if resp.CursorNext == nil {
		t.Fatal("expected cursor_next for remaining results")
	}

	// 用返回的游标取下一页。
	rr = doGet(t, handler, "/search?q=hello&k=2&per_doc=3&cursor="+*resp.CursorNext)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for second page, got %d", rr.Code)
	}
	var page2 search.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &page2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page2.Results[0].ChunkID == resp.Results[0].ChunkID {
		t.Error("second page repeats first page")
	}
}

func TestSearchEndpointErrors(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing query", "/search", "validation_error"},
		{"k not a number", "/search?q=x&k=abc", "validation_error"},
		{"k out of range", "/search?q=x&k=999", "validation_error"},
		{"k zero", "/search?q=x&k=0", "validation_error"},
		{"k negative", "/search?q=x&k=-1", "validation_error"},
		{"neighbors negative", "/search?q=x&neighbors=-5", "validation_error"},
		{"per_doc negative", "/search?q=x&per_doc=-3", "validation_error"},
		{"bad year format", "/search?q=x&year=20x5", "validation_error"},
		{"per_doc zero", "/search?q=x&per_doc=0", "validation_error"},
		{"unknown sort", "/search?q=x&sort=alphabetical", "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doGet(t, handler, tt.path)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var env struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if env.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, env.Error.Code)
			}
			if env.Error.Message == "" {
				t.Error("expected a human-readable message")
			}
		})
	}
}

func TestSearchEndpointYearRange(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := doGet(t, handler, "/search?q=hello&year=2019-2021&per_doc=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp search.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, r := range resp.Results {
		if r.Year != 2020 {
			t.Errorf("expected only 2020 docs, got year %d", r.Year)
		}
	}
	if resp.Count == 0 {
		t.Fatal("expected results in 2019-2021")
	}
}

func TestDocumentsEndpoints(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := doGet(t, handler, "/documents")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list struct {
		Count     int `json:"count"`
		Documents []struct {
			DocID      string `json:"doc_id"`
			ChunkCount int    `json:"chunk_count"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("expected 2 documents, got %d", list.Count)
	}
	if list.Documents[0].DocID != "d1" || list.Documents[0].ChunkCount != 3 {
		t.Errorf("unexpected first document %+v", list.Documents[0])
	}

	rr = doGet(t, handler, "/documents/d2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = doGet(t, handler, "/documents/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAuthDisabledByDefault(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := doGet(t, handler, "/search?q=hello")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected open access without JWT secret, got %d", rr.Code)
	}
}

func TestAuthEnforcedWhenConfigured(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.JWTSecret = "test-secret"
	handler := newTestServer(t, cfg).Handler()

	// 无 token 拒绝。
	rr := doGet(t, handler, "/search?q=hello")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	// 健康检查仍然公开。
	rr = doGet(t, handler, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /health to stay public, got %d", rr.Code)
	}

	// 有效 token 放行。
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/search?q=hello", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body.String())
	}

	// 错误密钥签发的 token 拒绝。
	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("wrong"))
	req = httptest.NewRequest(http.MethodGet, "/search?q=hello", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
}
