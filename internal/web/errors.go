package web

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-success response: a stable
// machine-readable code, a human-readable message and the correlation id.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WriteJSONError writes a JSON error response with the given status, code
// and message.
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	cid := CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:         code,
		Message:       message,
		CorrelationID: cid,
	})
}
