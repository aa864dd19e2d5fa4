package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/bankops/internal/accounts"
	"github.com/example/bankops/internal/journal"
	"github.com/example/bankops/internal/ledger"
	"github.com/example/bankops/internal/rates"
)

type fakeRates struct {
	rate  float64
	err   error
	calls int
}

func (f *fakeRates) Rate(ctx context.Context, currency string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if currency == "USD" {
		return 1, nil
	}
	return f.rate, nil
}

type appliedDelta struct {
	accountID int64
	delta     float64
}

type fakeGateway struct {
	balances  map[int64]float64
	reads     int
	deltas    []appliedDelta
	failDelta map[int64]error
	readErr   error
}

func newFakeGateway(balances map[int64]float64) *fakeGateway {
	return &fakeGateway{balances: balances, failDelta: map[int64]error{}}
}

func (f *fakeGateway) ReadBalance(ctx context.Context, accountID int64) (float64, error) {
	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	b, ok := f.balances[accountID]
	if !ok {
		return 0, accounts.ErrNotFound
	}
	return b, nil
}

func (f *fakeGateway) ApplyDelta(ctx context.Context, accountID int64, delta float64) (*accounts.View, error) {
	if err := f.failDelta[accountID]; err != nil {
		return nil, err
	}
	f.deltas = append(f.deltas, appliedDelta{accountID: accountID, delta: delta})
	f.balances[accountID] += delta
	return &accounts.View{ID: accountID, Balance: f.balances[accountID]}, nil
}

type fakeRecorder struct {
	records   []ledger.Transaction
	recordErr error
	list      []ledger.Transaction
	listErr   error
}

func (f *fakeRecorder) Record(ctx context.Context, tx ledger.Transaction) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, tx)
	return nil
}

func (f *fakeRecorder) ListForAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

type fakeJournal struct {
	intents map[string]*journal.Intent
	opened  int
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{intents: map[string]*journal.Intent{}}
}

func (f *fakeJournal) Open(ctx context.Context, operation string, sourceID, targetID int64, amount float64, currency string, rate, referenceAmount float64) (*journal.Intent, error) {
	f.opened++
	in := &journal.Intent{
		ID:              fmt.Sprintf("intent-%d", f.opened),
		Operation:       operation,
		SourceID:        sourceID,
		TargetID:        targetID,
		Amount:          amount,
		Currency:        currency,
		Rate:            rate,
		ReferenceAmount: referenceAmount,
		State:           journal.StatePending,
	}
	f.intents[in.ID] = in
	return in, nil
}

func (f *fakeJournal) setState(id, state, detail string) error {
	in, ok := f.intents[id]
	if !ok {
		return journal.ErrNotFound
	}
	in.State = state
	in.Detail = detail
	return nil
}

func (f *fakeJournal) MarkMutated(ctx context.Context, id string) error {
	return f.setState(id, journal.StateMutated, "")
}

func (f *fakeJournal) MarkRecorded(ctx context.Context, id string) error {
	return f.setState(id, journal.StateRecorded, "")
}

func (f *fakeJournal) MarkAborted(ctx context.Context, id, detail string) error {
	return f.setState(id, journal.StateAborted, detail)
}

func (f *fakeJournal) MarkCompensated(ctx context.Context, id, detail string) error {
	return f.setState(id, journal.StateCompensated, detail)
}

func (f *fakeJournal) MarkCompensationFailed(ctx context.Context, id, detail string) error {
	return f.setState(id, journal.StateCompensationFailed, detail)
}

func (f *fakeJournal) single(t *testing.T) *journal.Intent {
	t.Helper()
	require.Len(t, f.intents, 1)
	for _, in := range f.intents {
		return in
	}
	return nil
}

func newTestService(gw *fakeGateway, rec *fakeRecorder, j *fakeJournal, r *fakeRates) *Service {
	return NewService(r, gw, rec, j, "USD", slog.Default())
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		gw := newFakeGateway(map[int64]float64{1: 100, 2: 100})
		rec := &fakeRecorder{}
		j := newFakeJournal()
		r := &fakeRates{rate: 1.08}
		svc := newTestService(gw, rec, j, r)

		_, err := svc.Deposit(context.Background(), 1, "USD", amount)
		require.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Withdraw(context.Background(), 1, "USD", amount)
		require.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Transfer(context.Background(), 1, 2, "USD", amount)
		require.ErrorIs(t, err, ErrInvalidAmount)

		require.Zero(t, r.calls, "no rate lookup on rejected amount")
		require.Zero(t, gw.reads)
		require.Empty(t, gw.deltas, "no mutation on rejected amount")
		require.Empty(t, rec.records)
		require.Zero(t, j.opened)
	}
}

func TestDepositAppliesReferenceDeltaAndRecords(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 0})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	view, err := svc.Deposit(context.Background(), 1, "USD", 50)
	require.NoError(t, err)
	require.Equal(t, 50.0, view.Balance)

	require.Equal(t, []appliedDelta{{accountID: 1, delta: 50}}, gw.deltas)

	require.Len(t, rec.records, 1)
	tx := rec.records[0]
	require.Equal(t, ledger.ExternalParty, tx.SourceID)
	require.Equal(t, int64(1), tx.TargetID)
	require.Equal(t, 50.0, tx.Amount)
	require.Equal(t, "USD", tx.CurrencySource)
	require.Equal(t, "USD", tx.CurrencyTarget)
	require.Equal(t, 1.0, tx.Rate)

	require.Equal(t, journal.StateRecorded, j.single(t).State)
}

func TestDepositConvertsForeignCurrency(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 0})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1.08})

	_, err := svc.Deposit(context.Background(), 1, "EUR", 50)
	require.NoError(t, err)

	// The mutation is in the reference currency, the record keeps the
	// original amount plus the rate used.
	require.Equal(t, []appliedDelta{{accountID: 1, delta: 54}}, gw.deltas)
	require.Len(t, rec.records, 1)
	require.Equal(t, 50.0, rec.records[0].Amount)
	require.Equal(t, "EUR", rec.records[0].CurrencySource)
	require.Equal(t, 1.08, rec.records[0].Rate)
}

func TestDepositAbortsOnRateUnavailable(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 0})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{err: rates.ErrRateUnavailable})

	_, err := svc.Deposit(context.Background(), 1, "EUR", 50)
	require.ErrorIs(t, err, rates.ErrRateUnavailable)
	require.Empty(t, gw.deltas, "no mutation after rate failure")
	require.Empty(t, rec.records)
	require.Zero(t, j.opened)
}

func TestDepositSurfacesRecordFailureWithoutRollback(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 0})
	rec := &fakeRecorder{recordErr: ledger.ErrUnreachable}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	view, err := svc.Deposit(context.Background(), 1, "USD", 50)
	require.ErrorIs(t, err, ledger.ErrUnreachable)

	// The credit stays applied and the intent stays unconfirmed for the
	// reconciler.
	require.NotNil(t, view)
	require.Equal(t, []appliedDelta{{accountID: 1, delta: 50}}, gw.deltas)
	require.Equal(t, journal.StateMutated, j.single(t).State)
}

func TestWithdrawRejectsInsufficientBalance(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 30})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	_, err := svc.Withdraw(context.Background(), 1, "USD", 50)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Empty(t, gw.deltas, "no delta applied on rejection")
	require.Empty(t, rec.records, "no record written on rejection")
	require.Zero(t, j.opened)
}

func TestWithdrawDebitsAndRecords(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 100})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	view, err := svc.Withdraw(context.Background(), 1, "USD", 50)
	require.NoError(t, err)
	require.Equal(t, 50.0, view.Balance)

	require.Equal(t, []appliedDelta{{accountID: 1, delta: -50}}, gw.deltas)
	require.Len(t, rec.records, 1)
	require.Equal(t, int64(1), rec.records[0].SourceID)
	require.Equal(t, ledger.ExternalParty, rec.records[0].TargetID)
	require.Equal(t, journal.StateRecorded, j.single(t).State)
}

func TestTransferRejectsSameAccount(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 100})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	r := &fakeRates{rate: 1.08}
	svc := newTestService(gw, rec, j, r)

	_, err := svc.Transfer(context.Background(), 1, 1, "EUR", 50)
	require.ErrorIs(t, err, ErrSameAccount)
	require.Zero(t, r.calls, "no external call on same-account rejection")
	require.Zero(t, gw.reads)
	require.Empty(t, gw.deltas)
	require.Empty(t, rec.records)
}

func TestTransferDebitsThenCredits(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 100, 2: 0})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	view, err := svc.Transfer(context.Background(), 1, 2, "USD", 20)
	require.NoError(t, err)

	require.Equal(t, []appliedDelta{
		{accountID: 1, delta: -20},
		{accountID: 2, delta: 20},
	}, gw.deltas, "debit precedes credit")

	// The response is the source account's post-debit view.
	require.Equal(t, int64(1), view.ID)
	require.Equal(t, 80.0, view.Balance)

	require.Len(t, rec.records, 1)
	require.Equal(t, int64(1), rec.records[0].SourceID)
	require.Equal(t, int64(2), rec.records[0].TargetID)
	require.Equal(t, 20.0, rec.records[0].Amount)
	require.Equal(t, 1.0, rec.records[0].Rate)

	require.Equal(t, journal.StateRecorded, j.single(t).State)
}

func TestTransferInsufficientBalance(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 10, 2: 0})
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	_, err := svc.Transfer(context.Background(), 1, 2, "USD", 20)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Empty(t, gw.deltas)
	require.Empty(t, rec.records)
	require.Zero(t, j.opened)
}

func TestTransferCompensatesFailedCredit(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 100, 2: 0})
	gw.failDelta[2] = accounts.ErrUnreachable
	rec := &fakeRecorder{}
	j := newFakeJournal()
	svc := newTestService(gw, rec, j, &fakeRates{rate: 1})

	_, err := svc.Transfer(context.Background(), 1, 2, "USD", 20)
	require.ErrorIs(t, err, accounts.ErrUnreachable)

	// Debit followed by the compensating reverse-delta.
	require.Equal(t, []appliedDelta{
		{accountID: 1, delta: -20},
		{accountID: 1, delta: 20},
	}, gw.deltas)
	require.Equal(t, 100.0, gw.balances[1], "source balance restored")
	require.Empty(t, rec.records, "no record for a compensated transfer")
	require.Equal(t, journal.StateCompensated, j.single(t).State)
}

func TestTransferStrandedDebitWhenCompensationFails(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{1: 100, 2: 0})
	rec := &fakeRecorder{}
	j := newFakeJournal()

	// The debit succeeds, then every later delta fails: the credit leg
	// and the compensating reverse-delta.
	calls := 0
	hook := &hookGateway{gateway: gw, onApply: func(accountID int64) error {
		calls++
		if calls > 1 {
			return accounts.ErrUnreachable
		}
		return nil
	}}
	svc := NewService(&fakeRates{rate: 1}, hook, rec, j, "USD", slog.Default())

	_, err := svc.Transfer(context.Background(), 1, 2, "USD", 20)
	require.ErrorIs(t, err, accounts.ErrUnreachable)
	require.Contains(t, err.Error(), "could not be reversed")

	require.Equal(t, []appliedDelta{{accountID: 1, delta: -20}}, gw.deltas, "debit stands")
	require.Equal(t, journal.StateCompensationFailed, j.single(t).State)
}

type hookGateway struct {
	gateway *fakeGateway
	onApply func(accountID int64) error
}

func (h *hookGateway) ReadBalance(ctx context.Context, accountID int64) (float64, error) {
	return h.gateway.ReadBalance(ctx, accountID)
}

func (h *hookGateway) ApplyDelta(ctx context.Context, accountID int64, delta float64) (*accounts.View, error) {
	if err := h.onApply(accountID); err != nil {
		return nil, err
	}
	return h.gateway.ApplyDelta(ctx, accountID, delta)
}

func TestHistoryClassifiesRecords(t *testing.T) {
	rec := &fakeRecorder{list: []ledger.Transaction{
		{SourceID: -1, TargetID: 5, Amount: 50},
		{SourceID: 5, TargetID: -1, Amount: 20},
		{SourceID: 5, TargetID: 2, Amount: 10},
		{SourceID: 3, TargetID: 5, Amount: 5},
	}}
	svc := newTestService(newFakeGateway(nil), rec, newFakeJournal(), &fakeRates{rate: 1})

	h, err := svc.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, h.Deposits, 1)
	require.Len(t, h.Withdraws, 1)
	require.Len(t, h.TransfersSent, 1)
	require.Len(t, h.TransfersReceived, 1)
}

func TestHistorySurfacesRecorderFailure(t *testing.T) {
	rec := &fakeRecorder{listErr: ledger.ErrUnreachable}
	svc := newTestService(newFakeGateway(nil), rec, newFakeJournal(), &fakeRates{rate: 1})

	_, err := svc.History(context.Background(), 5)
	require.ErrorIs(t, err, ledger.ErrUnreachable)
}

func TestWithdrawSurfacesReadFailure(t *testing.T) {
	gw := newFakeGateway(map[int64]float64{})
	gw.readErr = errors.New("boom")
	svc := newTestService(gw, &fakeRecorder{}, newFakeJournal(), &fakeRates{rate: 1})

	_, err := svc.Withdraw(context.Background(), 1, "USD", 50)
	require.Error(t, err)
	require.Empty(t, gw.deltas)
}
