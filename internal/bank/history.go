package bank

import "github.com/example/bankops/internal/ledger"

// History partitions an account's transaction records into four disjoint
// buckets. A record lands in at most one bucket; input order is preserved
// within each bucket.
type History struct {
	Deposits          []ledger.Transaction `json:"deposits"`
	Withdraws         []ledger.Transaction `json:"withdraws"`
	TransfersSent     []ledger.Transaction `json:"transfers_sent"`
	TransfersReceived []ledger.Transaction `json:"transfers_received"`
}

// ClassifyHistory buckets records by how the focal account participates.
// Records unrelated to the focal account are dropped; the upstream query
// filter should never produce them.
func ClassifyHistory(records []ledger.Transaction, focal int64) *History {
	h := &History{
		Deposits:          []ledger.Transaction{},
		Withdraws:         []ledger.Transaction{},
		TransfersSent:     []ledger.Transaction{},
		TransfersReceived: []ledger.Transaction{},
	}

	for _, tx := range records {
		switch {
		case tx.SourceID == ledger.ExternalParty && tx.TargetID == focal:
			h.Deposits = append(h.Deposits, tx)
		case tx.SourceID == focal && tx.TargetID == ledger.ExternalParty:
			h.Withdraws = append(h.Withdraws, tx)
		case tx.SourceID == focal && tx.TargetID != ledger.ExternalParty && tx.TargetID != focal:
			h.TransfersSent = append(h.TransfersSent, tx)
		case tx.TargetID == focal && tx.SourceID != ledger.ExternalParty && tx.SourceID != focal:
			h.TransfersReceived = append(h.TransfersReceived, tx)
		}
	}

	return h
}
