// Package settlement integrates with the network that actually moves value.
//
// The engine only orchestrates when and by whom a transfer is invoked; the
// gateway behind this package executes it. The transfer primitive is not
// idempotent - a second call with the same parameters moves value again -
// which is why callers serialize invocations per milestone.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
)

// LockRequest asks the gateway to hold a contract's total in escrow.
type LockRequest struct {
	ContractID      string
	Amount          decimal.Decimal
	Currency        contract.Currency
	SenderAddress   string
	ReceiverAddress string
}

// LockResult is the gateway's confirmation of a fund lock.
type LockResult struct {
	Reference string
}

// TransferRequest asks the gateway to pay one milestone out of escrow.
type TransferRequest struct {
	MilestoneID     string
	Amount          decimal.Decimal
	Currency        contract.Currency
	SenderAddress   string
	ReceiverAddress string
}

// TransferResult is the gateway's record of an executed payout.
type TransferResult struct {
	// Reference is the settlement network's transaction identifier.
	Reference string
	// Ledger is the ledger number the transaction was recorded in.
	Ledger int64
}

// Gateway executes escrow operations on the settlement network. A call
// either returns a definite result or an error; callers must never infer
// success from a missing response.
type Gateway interface {
	// LockFunds holds the contract total in escrow on acceptance.
	LockFunds(ctx context.Context, req LockRequest) (LockResult, error)
	// Transfer pays a milestone amount from escrow to the receiver.
	// Not idempotent: callers guard against duplicate invocations.
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
}
