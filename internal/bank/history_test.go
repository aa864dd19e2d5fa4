package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bankops/internal/ledger"
)

func TestClassifyHistoryBuckets(t *testing.T) {
	records := []ledger.Transaction{
		{SourceID: -1, TargetID: 5, Amount: 100},
		{SourceID: 5, TargetID: -1, Amount: 40},
		{SourceID: 5, TargetID: 2, Amount: 25},
		{SourceID: 3, TargetID: 5, Amount: 10},
	}

	h := ClassifyHistory(records, 5)

	require.Len(t, h.Deposits, 1)
	assert.Equal(t, 100.0, h.Deposits[0].Amount)

	require.Len(t, h.Withdraws, 1)
	assert.Equal(t, 40.0, h.Withdraws[0].Amount)

	require.Len(t, h.TransfersSent, 1)
	assert.Equal(t, int64(2), h.TransfersSent[0].TargetID)

	require.Len(t, h.TransfersReceived, 1)
	assert.Equal(t, int64(3), h.TransfersReceived[0].SourceID)

	// Each record landed in exactly one bucket.
	total := len(h.Deposits) + len(h.Withdraws) + len(h.TransfersSent) + len(h.TransfersReceived)
	assert.Equal(t, len(records), total)
}

func TestClassifyHistoryPreservesOrder(t *testing.T) {
	records := []ledger.Transaction{
		{SourceID: -1, TargetID: 5, Amount: 1},
		{SourceID: -1, TargetID: 5, Amount: 2},
		{SourceID: -1, TargetID: 5, Amount: 3},
	}

	h := ClassifyHistory(records, 5)

	require.Len(t, h.Deposits, 3)
	assert.Equal(t, 1.0, h.Deposits[0].Amount)
	assert.Equal(t, 2.0, h.Deposits[1].Amount)
	assert.Equal(t, 3.0, h.Deposits[2].Amount)
}

func TestClassifyHistoryDropsUnrelatedRecords(t *testing.T) {
	records := []ledger.Transaction{
		{SourceID: 7, TargetID: 8, Amount: 12},
		{SourceID: -1, TargetID: 9, Amount: 13},
	}

	h := ClassifyHistory(records, 5)

	assert.Empty(t, h.Deposits)
	assert.Empty(t, h.Withdraws)
	assert.Empty(t, h.TransfersSent)
	assert.Empty(t, h.TransfersReceived)
}

func TestClassifyHistoryIdempotent(t *testing.T) {
	records := []ledger.Transaction{
		{SourceID: -1, TargetID: 5, Amount: 100},
		{SourceID: 5, TargetID: 2, Amount: 25},
	}

	first := ClassifyHistory(records, 5)
	second := ClassifyHistory(records, 5)

	assert.Equal(t, first, second)
}

func TestClassifyHistoryEmptyInput(t *testing.T) {
	h := ClassifyHistory(nil, 5)

	// Buckets are present and empty, never nil: the JSON response always
	// carries all four keys.
	require.NotNil(t, h.Deposits)
	require.NotNil(t, h.Withdraws)
	require.NotNil(t, h.TransfersSent)
	require.NotNil(t, h.TransfersReceived)
}
