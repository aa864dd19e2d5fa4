package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/example/bankops/internal/web"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware appends one hash-chained entry per request, so money
// operations leave a tamper-evident trail independent of the ledger.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			cid := web.CorrelationIDFromContext(r.Context())
			payload := fmt.Sprintf("cid=%s method=%s path=%s status=%d dur_ms=%d", cid, r.Method, r.URL.Path, sw.status, dur.Milliseconds())
			a.Append(payload)
		})
	}
}
