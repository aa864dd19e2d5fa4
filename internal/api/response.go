package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/bankops/internal/web"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := web.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(web.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
