package bank

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/bankops/internal/journal"
	"github.com/example/bankops/internal/ledger"
)

// ReconcileJournal is the journal surface the reconciler consumes.
type ReconcileJournal interface {
	ListUnconfirmed(ctx context.Context, olderThan time.Duration) ([]*journal.Intent, error)
	ListStranded(ctx context.Context) ([]*journal.Intent, error)
	MarkRecorded(ctx context.Context, id string) error
}

// Reconciler repairs the gap left by best-effort ledger recording: balance
// mutations whose ledger record never made it. It rebuilds the record from
// the journal intent and re-submits it. Stranded transfer debits
// (compensation failures) cannot be repaired automatically and are only
// reported.
type Reconciler struct {
	journal   ReconcileJournal
	recorder  Recorder
	reference string
	grace     time.Duration
	logger    *slog.Logger
}

// NewReconciler wires a reconciler. Intents younger than grace are left
// alone; an in-flight request may still confirm them.
func NewReconciler(j ReconcileJournal, recorder Recorder, reference string, grace time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		journal:   j,
		recorder:  recorder,
		reference: reference,
		grace:     grace,
		logger:    logger,
	}
}

// RunOnce performs a single reconciliation sweep and returns the number of
// records repaired. A record that fails to re-submit stays unconfirmed and
// is retried on the next sweep.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	intents, err := r.journal.ListUnconfirmed(ctx, r.grace)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, in := range intents {
		tx := ledger.Transaction{
			SourceID:       in.SourceID,
			TargetID:       in.TargetID,
			Amount:         in.Amount,
			CurrencySource: in.Currency,
			CurrencyTarget: r.reference,
			Rate:           in.Rate,
			RecordedAt:     in.CreatedAt,
		}

		if err := r.recorder.Record(ctx, tx); err != nil {
			r.logger.Warn("reconciler could not re-submit ledger record",
				"intent_id", in.ID, "operation", in.Operation, "error", err)
			continue
		}

		if err := r.journal.MarkRecorded(ctx, in.ID); err != nil {
			r.logger.Error("reconciler could not confirm repaired record",
				"intent_id", in.ID, "error", err)
			continue
		}

		r.logger.Info("reconciler repaired missing ledger record",
			"intent_id", in.ID, "operation", in.Operation,
			"source_id", in.SourceID, "target_id", in.TargetID)
		repaired++
	}

	stranded, err := r.journal.ListStranded(ctx)
	if err != nil {
		return repaired, err
	}
	for _, in := range stranded {
		r.logger.Error("stranded transfer debit needs manual repair",
			"intent_id", in.ID, "source_id", in.SourceID, "target_id", in.TargetID,
			"reference_amount", in.ReferenceAmount, "detail", in.Detail)
	}

	return repaired, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}
