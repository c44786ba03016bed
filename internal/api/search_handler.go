package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"searchweave/internal/search"
)

// SearchHandler 检索 API
type SearchHandler struct {
	engine *search.Engine
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// RegisterRoutes 注册检索路由
func (h *SearchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/search", h.Search)
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		writeSearchError(w, err)
		return
	}

	resp, err := h.engine.Search(r.Context(), req)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseSearchRequest 解析查询参数。语义校验交给引擎，
// 这里只负责类型转换，转换失败即按参数错误处理。
func parseSearchRequest(r *http.Request) (*search.Request, error) {
	q := r.URL.Query()

	req := &search.Request{
		Query:  strings.TrimSpace(q.Get("q")),
		DocID:  strings.TrimSpace(q.Get("doc_id")),
		Cursor: strings.TrimSpace(q.Get("cursor")),
	}

	// 未传的参数用 -1 表示，显式传入的值（包括 0）原样交给引擎校验。
	var err error
	if req.K, err = parseIntParam(q.Get("k"), "k"); err != nil {
		return nil, err
	}
	if req.Neighbors, err = parseIntParam(q.Get("neighbors"), "neighbors"); err != nil {
		return nil, err
	}
	if req.PerDoc, err = parseIntParam(q.Get("per_doc"), "per_doc"); err != nil {
		return nil, err
	}

	if req.YearMin, req.YearMax, err = parseYearParam(q.Get("year")); err != nil {
		return nil, err
	}

	for _, raw := range q["contains"] {
		for _, term := range strings.Split(raw, ",") {
			if term = strings.TrimSpace(term); term != "" {
				req.Contains = append(req.Contains, term)
			}
		}
	}

	if v := q.Get("sort"); v != "" {
		req.Sort = search.SortOrder(v)
	}
	return req, nil
}

// parseIntParam 把缺省参数映射成 -1。负值直接拒绝，
// 否则会与“未传”混淆、绕过引擎的区间校验。
func parseIntParam(v, name string) (int, error) {
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &search.ValidationError{Field: name, Reason: "must be an integer"}
	}
	if n < 0 {
		return 0, &search.ValidationError{Field: name, Reason: "must not be negative"}
	}
	return n, nil
}

// parseYearParam 支持单年 "2015" 与闭区间 "2015-2020"。
func parseYearParam(v string) (int, int, error) {
	if v == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(v, "-", 2)
	min, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, &search.ValidationError{Field: "year", Reason: "must be YYYY or YYYY-YYYY"}
	}
	max := min
	if len(parts) == 2 {
		if max, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, &search.ValidationError{Field: "year", Reason: "must be YYYY or YYYY-YYYY"}
		}
	}
	return min, max, nil
}
