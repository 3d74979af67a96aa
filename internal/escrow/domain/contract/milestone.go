package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// MilestoneStatus describes a milestone's completion state. The status is
// monotonic: once completed it never reverts.
type MilestoneStatus string

const (
	// MilestonePending indicates funds are still held in escrow.
	MilestonePending MilestoneStatus = "pending"
	// MilestoneCompleted indicates funds have been released to the receiver.
	MilestoneCompleted MilestoneStatus = "completed"
)

// Milestone is a sub-amount of a contract with its own release condition
// and completion state.
type Milestone struct {
	ID         string
	ContractID string
	// Sequence is 1-based and contiguous within a contract.
	Sequence    int
	Title       string
	Description string
	Amount      decimal.Decimal
	// DueDate is required when the owning contract releases automatically.
	DueDate *time.Time
	Status  MilestoneStatus
	// ReleaseDate is set only on completion.
	ReleaseDate *time.Time
	// TransferRef is the settlement network's reference for the payout,
	// set only on completion.
	TransferRef string
}

// IsDue reports whether an auto-release milestone is ready to pay at now.
func (m Milestone) IsDue(now time.Time) bool {
	if m.Status != MilestonePending || m.DueDate == nil {
		return false
	}
	return !now.Before(*m.DueDate)
}

// SumAmounts totals milestone amounts. An empty slice sums to zero.
func SumAmounts(milestones []Milestone) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range milestones {
		sum = sum.Add(m.Amount)
	}
	return sum
}

// ParseMilestoneStatus canonicalizes a milestone status label.
func ParseMilestoneStatus(value string) (MilestoneStatus, bool) {
	switch MilestoneStatus(value) {
	case MilestonePending:
		return MilestonePending, true
	case MilestoneCompleted:
		return MilestoneCompleted, true
	default:
		return "", false
	}
}
