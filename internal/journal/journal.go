package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Intent states. An intent is opened before the first balance mutation of
// an operation and resolved once the matching ledger record is confirmed.
// Rows left in StateMutated are mutations whose ledger record never made
// it; the reconciler re-submits those. StateCompensationFailed marks a
// stranded transfer debit that needs manual repair.
const (
	StatePending            = "pending"
	StateMutated            = "mutated"
	StateRecorded           = "recorded"
	StateAborted            = "aborted"
	StateCompensated        = "compensated"
	StateCompensationFailed = "compensation_failed"
)

// ErrNotFound is returned when no intent with the given id exists.
var ErrNotFound = errors.New("journal intent not found")

// Intent is one write-ahead row describing a mutating operation before it
// touches the account service.
type Intent struct {
	ID              string
	Operation       string
	SourceID        int64
	TargetID        int64
	Amount          float64
	Currency        string
	Rate            float64
	ReferenceAmount float64
	State           string
	Detail          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store persists intents in an embedded SQLite database. One writer per
// node; the store exists so reconciliation can detect and repair missing
// ledger records instead of silently dropping failed appends.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on the given database handle and runs the
// schema migration.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS operation_intents (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		rate REAL NOT NULL,
		reference_amount REAL NOT NULL,
		state TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operation_intents_state ON operation_intents(state);
	CREATE INDEX IF NOT EXISTS idx_operation_intents_created_at ON operation_intents(created_at);
	`)
	return err
}

// Open writes a new pending intent and returns it.
func (s *Store) Open(ctx context.Context, operation string, sourceID, targetID int64, amount float64, currency string, rate, referenceAmount float64) (*Intent, error) {
	now := time.Now().UTC()
	in := &Intent{
		ID:              uuid.NewString(),
		Operation:       operation,
		SourceID:        sourceID,
		TargetID:        targetID,
		Amount:          amount,
		Currency:        currency,
		Rate:            rate,
		ReferenceAmount: referenceAmount,
		State:           StatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_intents
			(id, operation, source_id, target_id, amount, currency, rate, reference_amount, state, detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		in.ID, in.Operation, in.SourceID, in.TargetID, in.Amount, in.Currency, in.Rate, in.ReferenceAmount, in.State, in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open intent: %w", err)
	}

	return in, nil
}

// MarkMutated records that the balance mutation(s) of the intent have been
// applied but the ledger record is not yet confirmed.
func (s *Store) MarkMutated(ctx context.Context, id string) error {
	return s.setState(ctx, id, StateMutated, "")
}

// MarkRecorded resolves the intent: the ledger record is confirmed.
func (s *Store) MarkRecorded(ctx context.Context, id string) error {
	return s.setState(ctx, id, StateRecorded, "")
}

// MarkAborted resolves an intent whose operation failed before any balance
// mutation was applied. Nothing to reconcile.
func (s *Store) MarkAborted(ctx context.Context, id, detail string) error {
	return s.setState(ctx, id, StateAborted, detail)
}

// MarkCompensated records that a transfer debit was reversed after the
// credit leg failed.
func (s *Store) MarkCompensated(ctx context.Context, id, detail string) error {
	return s.setState(ctx, id, StateCompensated, detail)
}

// MarkCompensationFailed records a stranded debit: the credit leg failed
// and the compensating reverse-delta failed too.
func (s *Store) MarkCompensationFailed(ctx context.Context, id, detail string) error {
	return s.setState(ctx, id, StateCompensationFailed, detail)
}

func (s *Store) setState(ctx context.Context, id, state, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operation_intents SET state = ?, detail = ?, updated_at = ? WHERE id = ?`,
		state, detail, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update intent %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns one intent by id.
func (s *Store) Get(ctx context.Context, id string) (*Intent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operation, source_id, target_id, amount, currency, rate, reference_amount, state, detail, created_at, updated_at
		FROM operation_intents WHERE id = ?`, id)

	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return in, err
}

// ListUnconfirmed returns intents stuck in the mutated state for longer
// than the grace period, oldest first. These are mutations whose ledger
// record is missing.
func (s *Store) ListUnconfirmed(ctx context.Context, olderThan time.Duration) ([]*Intent, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, source_id, target_id, amount, currency, rate, reference_amount, state, detail, created_at, updated_at
		FROM operation_intents
		WHERE state = ? AND updated_at <= ?
		ORDER BY created_at ASC`, StateMutated, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list unconfirmed intents: %w", err)
	}
	defer rows.Close()

	var out []*Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// ListStranded returns intents whose compensation failed, oldest first.
func (s *Store) ListStranded(ctx context.Context) ([]*Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, source_id, target_id, amount, currency, rate, reference_amount, state, detail, created_at, updated_at
		FROM operation_intents
		WHERE state = ?
		ORDER BY created_at ASC`, StateCompensationFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list stranded intents: %w", err)
	}
	defer rows.Close()

	var out []*Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIntent(row scannable) (*Intent, error) {
	var in Intent
	err := row.Scan(
		&in.ID, &in.Operation, &in.SourceID, &in.TargetID, &in.Amount,
		&in.Currency, &in.Rate, &in.ReferenceAmount, &in.State, &in.Detail,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}
