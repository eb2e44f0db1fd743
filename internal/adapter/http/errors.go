package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/couchcryptid/quakemap/internal/domain"
)

const (
	codeNetworkError     = "network_error"
	codeDataShapeError   = "data_shape_error"
	codeRenderError      = "render_error"
	codeInvalidTimeFrame = "invalid_time_frame"
	codeSuperseded       = "superseded"
	codeCanceled         = "canceled"
	codeNoSession        = "no_session"
	codeForbidden        = "forbidden"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeRenderError maps a render failure onto the error envelope.
func writeRenderError(w http.ResponseWriter, err error) {
	status, resp := renderErrorResponse(err)
	writeErrorResponse(w, status, resp)
}

func renderErrorResponse(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}
	switch {
	case errors.Is(err, domain.ErrInvalidWindow):
		resp.Code = codeInvalidTimeFrame
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrSuperseded):
		resp.Code = codeSuperseded
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		resp.Code = codeNetworkError
		resp.Retryable = true
		return http.StatusBadGateway, resp
	case errors.Is(err, domain.ErrDataShape):
		resp.Code = codeDataShapeError
		return http.StatusBadGateway, resp
	case errors.Is(err, context.Canceled):
		resp.Code = codeCanceled
		resp.Retryable = true
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, domain.ErrRender):
		resp.Code = codeRenderError
		return http.StatusInternalServerError, resp
	default:
		resp.Code = codeInternalError
		resp.Error = "internal error"
		return http.StatusInternalServerError, resp
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
