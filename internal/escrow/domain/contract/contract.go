// Package contract defines the escrow contract aggregate and its lifecycle rules.
package contract

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the settlement asset code for a contract.
type Currency string

const (
	// CurrencyXLM is the native Stellar lumen asset.
	CurrencyXLM Currency = "XLM"
	// CurrencyUSDC is the USD Coin asset.
	CurrencyUSDC Currency = "USDC"
)

// DefaultCurrency is applied when a proposal omits the currency.
const DefaultCurrency = CurrencyXLM

// ReleaseMethod describes how milestone funds leave escrow.
type ReleaseMethod string

const (
	// ReleaseManual requires an explicit release action by the sender.
	ReleaseManual ReleaseMethod = "manual"
	// ReleaseAuto pays each milestone once its due date passes.
	ReleaseAuto ReleaseMethod = "auto"
)

// Role is the derived relationship between an address and a contract.
type Role string

const (
	// RoleSent marks contracts proposed by the address.
	RoleSent Role = "sent"
	// RoleReceived marks contracts proposed to the address.
	RoleReceived Role = "received"
)

// SumTolerance is the accepted difference between the milestone sum and
// the contract total, in currency units.
var SumTolerance = decimal.RequireFromString("0.01")

// Contract is a proposed or active payment agreement between a sender
// and a receiver, optionally split into milestones. Terms are immutable
// after creation; only Status and the milestones' completion fields change.
type Contract struct {
	ID          string
	Code        string
	Title       string
	Description string
	TotalAmount decimal.Decimal
	Currency    Currency
	// SenderAddress is the proposing party's account identifier on the
	// settlement network.
	SenderAddress string
	// ReceiverAddress is the accepting party's account identifier.
	ReceiverAddress string
	// DueDate is the overall deadline; required for auto release without
	// a milestone split.
	DueDate       *time.Time
	ReleaseMethod ReleaseMethod
	Status        Status
	CreatedAt     time.Time
	// Milestones are ordered by Sequence, ascending.
	Milestones []Milestone
}

// RoleFor derives the relationship between an address and this contract.
// A contract where sender and receiver coincide is reported as sent.
func (c Contract) RoleFor(address string) Role {
	if c.SenderAddress == address {
		return RoleSent
	}
	return RoleReceived
}

// IsParty reports whether the address is the sender or receiver.
func (c Contract) IsParty(address string) bool {
	return address == c.SenderAddress || address == c.ReceiverAddress
}

// PendingMilestones returns the milestones not yet completed, in sequence order.
func (c Contract) PendingMilestones() []Milestone {
	var pending []Milestone
	for _, m := range c.Milestones {
		if m.Status == MilestonePending {
			pending = append(pending, m)
		}
	}
	return pending
}

// AllMilestonesCompleted reports whether every milestone has been paid out.
// A contract without milestones is never milestone-complete.
func (c Contract) AllMilestonesCompleted() bool {
	if len(c.Milestones) == 0 {
		return false
	}
	for _, m := range c.Milestones {
		if m.Status != MilestoneCompleted {
			return false
		}
	}
	return true
}

// ParseCurrency canonicalizes a currency code, rejecting values outside
// the supported set.
func ParseCurrency(value string) (Currency, bool) {
	switch Currency(strings.ToUpper(strings.TrimSpace(value))) {
	case CurrencyXLM:
		return CurrencyXLM, true
	case CurrencyUSDC:
		return CurrencyUSDC, true
	default:
		return "", false
	}
}

// ParseReleaseMethod canonicalizes a release method label.
func ParseReleaseMethod(value string) (ReleaseMethod, bool) {
	switch ReleaseMethod(strings.ToLower(strings.TrimSpace(value))) {
	case ReleaseManual:
		return ReleaseManual, true
	case ReleaseAuto:
		return ReleaseAuto, true
	default:
		return "", false
	}
}
