package utils

import (
	"encoding/json"
	"net/http"
)

// Error kinds exposed to clients. These strings are part of the API; clients
// branch on them, so they stay stable even when messages change.
const (
	ErrKindUnauthenticated    = "unauthenticated"
	ErrKindForbidden          = "forbidden"
	ErrKindRateLimited        = "rate_limited"
	ErrKindQuotaExceeded      = "quota_exceeded"
	ErrKindInvalidRequest     = "invalid_request"
	ErrKindNotFound           = "not_found"
	ErrKindBackendUnavailable = "backend_unavailable"
	ErrKindBackendError       = "backend_error"
	ErrKindStoreUnavailable   = "store_unavailable"
	ErrKindInternal           = "internal_error"
)

// ErrorBody is the JSON error envelope, shaped the way OpenAI clients expect.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return err
	}
	return nil
}

// RespondWithError sends an error response with a stable error kind
func RespondWithError(w http.ResponseWriter, code int, kind, message string) {
	RespondWithJSON(w, code, ErrorBody{Error: ErrorDetail{
		Message: message,
		Type:    kind,
		Code:    code,
	}})
}
