package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"searchweave/internal/index"
	applog "searchweave/internal/platform/log"
	"searchweave/internal/search"
)

// errorEnvelope 统一错误响应
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&errorEnvelope{
		Error: errorBody{Code: code, Message: message},
	})
}

// writeSearchError 将检索错误映射为 HTTP 状态码与错误码
func writeSearchError(w http.ResponseWriter, err error) {
	var ve *search.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error())
		return
	}
	var de *search.DecodeError
	if errors.As(err, &de) {
		writeError(w, http.StatusBadRequest, "decode_error", de.Error())
		return
	}
	var ue *search.UpstreamUnavailableError
	if errors.As(err, &ue) {
		applog.Error("[API] Upstream unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", ue.Error())
		return
	}
	var ie *index.IntegrityError
	if errors.As(err, &ie) {
		applog.Error("[API] Index integrity violation", "error", err)
		writeError(w, http.StatusInternalServerError, "integrity_error", "index state is inconsistent")
		return
	}
	applog.Error("[API] Search failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
}
