package bank

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/example/bankops/internal/accounts"
	"github.com/example/bankops/internal/journal"
	"github.com/example/bankops/internal/ledger"
	"github.com/example/bankops/internal/rates"
)

// AccountGateway reads and mutates remote account balances. The remote
// service serializes concurrent deltas per account and enforces any
// floor-at-zero constraint.
type AccountGateway interface {
	ReadBalance(ctx context.Context, accountID int64) (float64, error)
	ApplyDelta(ctx context.Context, accountID int64, delta float64) (*accounts.View, error)
}

// Recorder appends and lists immutable transaction records.
type Recorder interface {
	Record(ctx context.Context, tx ledger.Transaction) error
	ListForAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error)
}

// IntentJournal is the local write-ahead store used to make balance
// mutations auditable even when the ledger append fails.
type IntentJournal interface {
	Open(ctx context.Context, operation string, sourceID, targetID int64, amount float64, currency string, rate, referenceAmount float64) (*journal.Intent, error)
	MarkMutated(ctx context.Context, id string) error
	MarkRecorded(ctx context.Context, id string) error
	MarkAborted(ctx context.Context, id, detail string) error
	MarkCompensated(ctx context.Context, id, detail string) error
	MarkCompensationFailed(ctx context.Context, id, detail string) error
}

// Service orchestrates deposit, withdrawal, transfer and history retrieval
// across the account service, the ledger service and the rate provider.
// Every balance mutation is expressed in the reference currency
// (amount * rate); every persisted record keeps the original amount and
// currency plus the rate actually used.
//
// The service holds no shared mutable state and performs no retries or
// timeouts of its own; transport-level policy belongs to the injected
// clients.
type Service struct {
	rates     rates.Provider
	accounts  AccountGateway
	recorder  Recorder
	journal   IntentJournal
	reference string
	logger    *slog.Logger
}

// NewService wires the orchestrator from its collaborators.
func NewService(provider rates.Provider, gateway AccountGateway, recorder Recorder, j IntentJournal, reference string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rates:     provider,
		accounts:  gateway,
		recorder:  recorder,
		journal:   j,
		reference: reference,
		logger:    logger,
	}
}

// Deposit credits an account with money entering from the external world.
// The ledger record keeps source = ExternalParty.
func (s *Service) Deposit(ctx context.Context, accountID int64, currency string, amount float64) (*accounts.View, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	rate, err := s.rates.Rate(ctx, currency)
	if err != nil {
		return nil, err
	}
	referenceAmount := amount * rate

	intent, err := s.journal.Open(ctx, "deposit", ledger.ExternalParty, accountID, amount, currency, rate, referenceAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to journal deposit intent: %w", err)
	}

	view, err := s.accounts.ApplyDelta(ctx, accountID, +referenceAmount)
	if err != nil {
		s.abortIntent(ctx, intent.ID, err)
		return nil, err
	}
	s.markMutated(ctx, intent.ID)

	tx := ledger.Transaction{
		SourceID:       ledger.ExternalParty,
		TargetID:       accountID,
		Amount:         amount,
		CurrencySource: currency,
		CurrencyTarget: s.reference,
		Rate:           rate,
	}
	if err := s.recorder.Record(ctx, tx); err != nil {
		// The credit stays applied; the intent stays unconfirmed so the
		// reconciler can re-submit the record.
		s.logger.Warn("ledger record failed after deposit credit",
			"intent_id", intent.ID, "account_id", accountID, "error", err)
		return view, err
	}
	s.markRecorded(ctx, intent.ID)

	return view, nil
}

// Withdraw debits an account with money leaving to the external world. The
// balance-sufficiency check happens before any mutation; a rejected
// withdrawal touches nothing.
func (s *Service) Withdraw(ctx context.Context, accountID int64, currency string, amount float64) (*accounts.View, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	rate, err := s.rates.Rate(ctx, currency)
	if err != nil {
		return nil, err
	}
	referenceAmount := amount * rate

	balance, err := s.accounts.ReadBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance < referenceAmount {
		return nil, ErrInsufficientBalance
	}

	intent, err := s.journal.Open(ctx, "withdraw", accountID, ledger.ExternalParty, amount, currency, rate, referenceAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to journal withdraw intent: %w", err)
	}

	view, err := s.accounts.ApplyDelta(ctx, accountID, -referenceAmount)
	if err != nil {
		s.abortIntent(ctx, intent.ID, err)
		return nil, err
	}
	s.markMutated(ctx, intent.ID)

	tx := ledger.Transaction{
		SourceID:       accountID,
		TargetID:       ledger.ExternalParty,
		Amount:         amount,
		CurrencySource: currency,
		CurrencyTarget: s.reference,
		Rate:           rate,
	}
	if err := s.recorder.Record(ctx, tx); err != nil {
		s.logger.Warn("ledger record failed after withdrawal debit",
			"intent_id", intent.ID, "account_id", accountID, "error", err)
		return view, err
	}
	s.markRecorded(ctx, intent.ID)

	return view, nil
}

// Transfer moves money from one account to another: debit then credit. If
// the credit leg fails after a successful debit, a compensating
// reverse-delta is issued to the source; if the compensation fails too,
// the debit is stranded and the journal row flags it for manual repair.
//
// On success the source account's post-debit view is returned: the caller
// acts on behalf of the source, and the target's balance is not theirs to
// see.
func (s *Service) Transfer(ctx context.Context, sourceID, targetID int64, currency string, amount float64) (*accounts.View, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if sourceID == targetID {
		return nil, ErrSameAccount
	}

	rate, err := s.rates.Rate(ctx, currency)
	if err != nil {
		return nil, err
	}
	referenceAmount := amount * rate

	balance, err := s.accounts.ReadBalance(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if balance < referenceAmount {
		return nil, ErrInsufficientBalance
	}

	intent, err := s.journal.Open(ctx, "transfer", sourceID, targetID, amount, currency, rate, referenceAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to journal transfer intent: %w", err)
	}

	sourceView, err := s.accounts.ApplyDelta(ctx, sourceID, -referenceAmount)
	if err != nil {
		s.abortIntent(ctx, intent.ID, err)
		return nil, err
	}

	if _, err := s.accounts.ApplyDelta(ctx, targetID, +referenceAmount); err != nil {
		return nil, s.compensate(ctx, intent.ID, sourceID, referenceAmount, err)
	}
	s.markMutated(ctx, intent.ID)

	tx := ledger.Transaction{
		SourceID:       sourceID,
		TargetID:       targetID,
		Amount:         amount,
		CurrencySource: currency,
		CurrencyTarget: s.reference,
		Rate:           rate,
	}
	if err := s.recorder.Record(ctx, tx); err != nil {
		s.logger.Warn("ledger record failed after transfer",
			"intent_id", intent.ID, "source_id", sourceID, "target_id", targetID, "error", err)
		return sourceView, err
	}
	s.markRecorded(ctx, intent.ID)

	return sourceView, nil
}

// compensate reverses a transfer debit after the credit leg failed.
func (s *Service) compensate(ctx context.Context, intentID string, sourceID int64, referenceAmount float64, cause error) error {
	if _, err := s.accounts.ApplyDelta(ctx, sourceID, +referenceAmount); err != nil {
		if jerr := s.journal.MarkCompensationFailed(ctx, intentID, cause.Error()); jerr != nil {
			s.logger.Error("failed to journal stranded debit", "intent_id", intentID, "error", jerr)
		}
		s.logger.Error("transfer debit stranded: credit and compensation both failed",
			"intent_id", intentID, "source_id", sourceID, "reference_amount", referenceAmount,
			"credit_error", cause, "compensation_error", err)
		return fmt.Errorf("transfer failed and debit of %.2f to account %d could not be reversed (intent %s): %w",
			referenceAmount, sourceID, intentID, cause)
	}

	if jerr := s.journal.MarkCompensated(ctx, intentID, cause.Error()); jerr != nil {
		s.logger.Error("failed to journal compensation", "intent_id", intentID, "error", jerr)
	}
	s.logger.Warn("transfer credit failed, debit reversed",
		"intent_id", intentID, "source_id", sourceID, "error", cause)
	return fmt.Errorf("transfer failed, debit reversed: %w", cause)
}

// History returns the account's transaction records partitioned into the
// four semantic buckets.
func (s *Service) History(ctx context.Context, accountID int64) (*History, error) {
	records, err := s.recorder.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return ClassifyHistory(records, accountID), nil
}

func (s *Service) abortIntent(ctx context.Context, id string, cause error) {
	if err := s.journal.MarkAborted(ctx, id, cause.Error()); err != nil {
		s.logger.Error("failed to journal aborted intent", "intent_id", id, "error", err)
	}
}

func (s *Service) markMutated(ctx context.Context, id string) {
	if err := s.journal.MarkMutated(ctx, id); err != nil {
		s.logger.Error("failed to journal mutation", "intent_id", id, "error", err)
	}
}

func (s *Service) markRecorded(ctx context.Context, id string) {
	if err := s.journal.MarkRecorded(ctx, id); err != nil {
		s.logger.Error("failed to journal record confirmation", "intent_id", id, "error", err)
	}
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}
