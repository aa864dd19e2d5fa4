package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/bankops/internal/accounts"
	"github.com/example/bankops/internal/bank"
	"github.com/example/bankops/internal/web"
	"github.com/example/bankops/pkg/audit"
)

// Auditor appends one tamper-evident entry per handled request.
type Auditor interface {
	Append(payload string) *audit.Entry
}

// Orchestrator is the operation surface the HTTP layer exposes.
type Orchestrator interface {
	Deposit(ctx context.Context, accountID int64, currency string, amount float64) (*accounts.View, error)
	Withdraw(ctx context.Context, accountID int64, currency string, amount float64) (*accounts.View, error)
	Transfer(ctx context.Context, sourceID, targetID int64, currency string, amount float64) (*accounts.View, error)
	History(ctx context.Context, accountID int64) (*bank.History, error)
}

// Dependencies carries everything the router needs. Absent optional pieces
// (limiter, auditor, allowlist) simply disable their middleware.
type Dependencies struct {
	Logger *slog.Logger
	Bank   Orchestrator

	Auditor      Auditor
	RateLimiter  *web.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

// NewRouter builds the orchestrator's HTTP surface.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	depositV, err := web.NewJSONSchemaValidator(depositSchema)
	if err != nil {
		return nil, err
	}
	withdrawV, err := web.NewJSONSchemaValidator(withdrawSchema)
	if err != nil {
		return nil, err
	}
	transferV, err := web.NewJSONSchemaValidator(transferSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(web.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(web.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(web.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(web.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(depositV.Middleware).Post("/deposit", handleDeposit(deps))
		r.With(withdrawV.Middleware).Post("/withdraw", handleWithdraw(deps))
		r.With(transferV.Middleware).Post("/transfer", handleTransfer(deps))
		r.Get("/history", handleHistory(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.WriteJSONError(w, r, http.StatusNotFound, "not_found", "")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		web.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
