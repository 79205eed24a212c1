package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/martin/jobpilot/internal/types"
)

// errorResponse is the JSON error body every handler returns.
type errorResponse struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// httpStatus maps the error taxonomy onto status codes: precondition
// failures 422, missing resources 404, bad input 400, credit exhaustion
// 402, rate limiting 429, confirmation conflicts 409, upstream failures
// 502.
func httpStatus(err error) int {
	var vErr *types.ValidationError
	if errors.As(err, &vErr) {
		switch vErr.Code {
		case types.CodeNotFound:
			return http.StatusNotFound
		case types.CodeInvalidInput:
			return http.StatusBadRequest
		default:
			return http.StatusUnprocessableEntity
		}
	}
	var qErr *types.QuotaError
	if errors.As(err, &qErr) {
		return http.StatusPaymentRequired
	}
	var rlErr *types.RateLimitError
	if errors.As(err, &rlErr) {
		return http.StatusTooManyRequests
	}
	var cErr *types.ConflictError
	if errors.As(err, &cErr) {
		return http.StatusConflict
	}
	var uErr *types.UpstreamError
	if errors.As(err, &uErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err as the JSON error body. Rate-limit rejections
// additionally carry a Retry-After header.
func writeError(w http.ResponseWriter, err error) {
	var rlErr *types.RateLimitError
	if errors.As(err, &rlErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds()))
	}

	status := httpStatus(err)
	body := errorResponse{Code: types.CodeOf(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		body = errorResponse{Code: "INTERNAL", Message: "internal error"}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
