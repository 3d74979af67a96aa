// Package storage defines persistence contracts for escrow engine state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
)

// ErrNotFound indicates a requested contract or milestone is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a conditional write found unexpected prior state.
var ErrConflict = errors.New("conflicting state")

// ErrDuplicateCode indicates the share code is already claimed.
var ErrDuplicateCode = errors.New("contract code already exists")

// DueMilestone is a pending auto-release milestone whose due date has
// passed, joined with the owning contract's acting identity.
type DueMilestone struct {
	ContractID    string
	MilestoneID   string
	SenderAddress string
	DueDate       time.Time
}

// ContractStore persists contracts and their milestones.
//
// Status mutations are conditional writes keyed on the expected prior
// status so that two near-simultaneous transitions cannot both succeed;
// a failed condition surfaces ErrConflict.
type ContractStore interface {
	// CreateContract inserts a contract and its milestones atomically.
	CreateContract(ctx context.Context, c contract.Contract) error
	// GetContract returns a contract with its milestones ordered by sequence.
	GetContract(ctx context.Context, contractID string) (contract.Contract, error)
	// GetContractByCode resolves a share code to its contract.
	GetContractByCode(ctx context.Context, code string) (contract.Contract, error)
	// ListContractsByAddress returns contracts where the address is the
	// sender or the receiver, newest first.
	ListContractsByAddress(ctx context.Context, address string) ([]contract.Contract, error)
	// GetMilestone returns one milestone by id.
	GetMilestone(ctx context.Context, milestoneID string) (contract.Milestone, error)
	// UpdateContractStatus transitions contract status from the expected
	// prior value. Returns ErrConflict when the stored status differs.
	UpdateContractStatus(ctx context.Context, contractID string, from, to contract.Status) error
	// CompleteMilestone marks a pending milestone completed with its
	// release date and settlement reference. Returns ErrConflict when the
	// milestone is no longer pending.
	CompleteMilestone(ctx context.Context, milestoneID string, releaseDate time.Time, transferRef string) error
	// ListDueAutoMilestones returns pending milestones of active
	// auto-release contracts whose due date is at or before now.
	ListDueAutoMilestones(ctx context.Context, now time.Time) ([]DueMilestone, error)
}
