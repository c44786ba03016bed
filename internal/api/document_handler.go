package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"searchweave/internal/corpus"
	"searchweave/internal/db/postgres"
	applog "searchweave/internal/platform/log"
)

// DocumentHandler 文档元数据 API。
// 配置了 PostgreSQL 时从仓库读取（含入库时间），否则从内存语料兜底。
type DocumentHandler struct {
	store *corpus.Store
	repo  *postgres.DocRepository // 可为 nil
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(store *corpus.Store, repo *postgres.DocRepository) *DocumentHandler {
	return &DocumentHandler{store: store, repo: repo}
}

// RegisterRoutes 注册文档路由
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

type documentEntry struct {
	corpus.Document
	ChunkCount int `json:"chunk_count"`
}

type documentList struct {
	Count     int             `json:"count"`
	Documents []documentEntry `json:"documents"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		entries, err := h.repo.List(r.Context())
		if err != nil {
			applog.Error("[API] List documents failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
			return
		}
		out := make([]documentEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, documentEntry{Document: e.Document, ChunkCount: e.ChunkCount})
		}
		writeJSON(w, http.StatusOK, &documentList{Count: len(out), Documents: out})
		return
	}

	docs := h.store.Documents()
	out := make([]documentEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentEntry{Document: d, ChunkCount: h.store.DocChunkCount(d.DocID)})
	}
	writeJSON(w, http.StatusOK, &documentList{Count: len(out), Documents: out})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.repo != nil {
		entry, err := h.repo.Get(r.Context(), id)
		if err != nil {
			applog.Error("[API] Get document failed", "doc_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to get document")
			return
		}
		if entry == nil {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeJSON(w, http.StatusOK, &documentEntry{Document: entry.Document, ChunkCount: entry.ChunkCount})
		return
	}

	doc, ok := h.store.Document(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	writeJSON(w, http.StatusOK, &documentEntry{Document: *doc, ChunkCount: h.store.DocChunkCount(id)})
}
