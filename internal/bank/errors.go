package bank

import "errors"

// Business rejections. These are always checked before any mutating call is
// issued, so a rejected request performs zero mutations. Infrastructure
// failures keep the sentinel errors of the client packages they originate
// from (rates.ErrRateUnavailable, accounts.ErrUnreachable and so on).
var (
	// ErrInvalidAmount rejects non-positive or non-finite amounts.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrSameAccount rejects a transfer whose source and target are the
	// same account.
	ErrSameAccount = errors.New("transfer requires two distinct accounts")

	// ErrInsufficientBalance rejects a withdrawal or transfer exceeding
	// the source account's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
