package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/example/bankops/internal/accounts"
	"github.com/example/bankops/internal/bank"
	"github.com/example/bankops/internal/ledger"
	"github.com/example/bankops/internal/rates"
	"github.com/example/bankops/internal/web"
)

type depositRequest struct {
	AccountID int64   `json:"account_id"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
}

type transferRequest struct {
	SourceID int64   `json:"source_id"`
	TargetID int64   `json:"target_id"`
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

type accountResponse struct {
	CorrelationID string         `json:"correlation_id"`
	Account       *accounts.View `json:"account"`
}

type historyResponse struct {
	CorrelationID string `json:"correlation_id"`
	*bank.History
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			web.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
			return
		}

		view, err := deps.Bank.Deposit(r.Context(), req.AccountID, req.Currency, req.Amount)
		if err != nil {
			writeOperationError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accountResponse{
			CorrelationID: web.CorrelationIDFromContext(r.Context()),
			Account:       view,
		})
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			web.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
			return
		}

		view, err := deps.Bank.Withdraw(r.Context(), req.AccountID, req.Currency, req.Amount)
		if err != nil {
			writeOperationError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accountResponse{
			CorrelationID: web.CorrelationIDFromContext(r.Context()),
			Account:       view,
		})
	}
}

func handleTransfer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			web.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
			return
		}

		view, err := deps.Bank.Transfer(r.Context(), req.SourceID, req.TargetID, req.Currency, req.Amount)
		if err != nil {
			writeOperationError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accountResponse{
			CorrelationID: web.CorrelationIDFromContext(r.Context()),
			Account:       view,
		})
	}
}

func handleHistory(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("account_id")
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || accountID < 1 {
			web.WriteJSONError(w, r, http.StatusBadRequest, "validation_error", "account_id must be a positive integer")
			return
		}

		history, err := deps.Bank.History(r.Context(), accountID)
		if err != nil {
			writeOperationError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, historyResponse{
			CorrelationID: web.CorrelationIDFromContext(r.Context()),
			History:       history,
		})
	}
}

// writeOperationError maps the orchestrator's error taxonomy onto HTTP.
// Business rejections are 422 with a stable code; upstream infrastructure
// failures are 502; an unknown account is 404.
func writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bank.ErrInvalidAmount):
		web.WriteJSONError(w, r, http.StatusUnprocessableEntity, "invalid_amount", err.Error())
	case errors.Is(err, bank.ErrSameAccount):
		web.WriteJSONError(w, r, http.StatusUnprocessableEntity, "same_account", err.Error())
	case errors.Is(err, bank.ErrInsufficientBalance):
		web.WriteJSONError(w, r, http.StatusUnprocessableEntity, "insufficient_balance", err.Error())
	case errors.Is(err, accounts.ErrNotFound):
		web.WriteJSONError(w, r, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, rates.ErrRateUnavailable):
		web.WriteJSONError(w, r, http.StatusBadGateway, "rate_unavailable", err.Error())
	case errors.Is(err, accounts.ErrUnreachable):
		web.WriteJSONError(w, r, http.StatusBadGateway, "account_unreachable", err.Error())
	case errors.Is(err, ledger.ErrUnreachable):
		web.WriteJSONError(w, r, http.StatusBadGateway, "recorder_unreachable", err.Error())
	default:
		web.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error", "")
	}
}
