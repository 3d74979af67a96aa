// Package query is the read side of the escrow service. It never
// mutates state; it annotates stored contracts with facts derived for a
// particular viewer.
package query

import (
	"context"
	"errors"
	"strings"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/storage"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

// ContractSummary is a contract viewed from one party's perspective.
type ContractSummary struct {
	Contract contract.Contract
	// Role is sent when the viewer is the contract sender, received
	// otherwise.
	Role                contract.Role
	MilestonesTotal     int
	MilestonesCompleted int
}

// Query reads contracts for display.
type Query struct {
	store storage.ContractStore
}

// New wires the read side over the contract store.
func New(store storage.ContractStore) *Query {
	return &Query{store: store}
}

// ListForAddress returns every contract the address participates in,
// newest first, annotated with the viewer's role and completion counts.
func (q *Query) ListForAddress(ctx context.Context, address string) ([]ContractSummary, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return []ContractSummary{}, nil
	}

	contracts, err := q.store.ListContractsByAddress(ctx, address)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list contracts", err)
	}

	summaries := make([]ContractSummary, 0, len(contracts))
	for _, c := range contracts {
		completed := 0
		for _, m := range c.Milestones {
			if m.Status == contract.MilestoneCompleted {
				completed++
			}
		}
		summaries = append(summaries, ContractSummary{
			Contract:            c,
			Role:                c.RoleFor(address),
			MilestonesTotal:     len(c.Milestones),
			MilestonesCompleted: completed,
		})
	}
	return summaries, nil
}

// GetByID returns one contract with its full ordered milestone set.
func (q *Query) GetByID(ctx context.Context, contractID string) (contract.Contract, error) {
	c, err := q.store.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, mapReadErr(err)
	}
	return c, nil
}

// GetByCode resolves a share code, as used by contract invitation links.
func (q *Query) GetByCode(ctx context.Context, code string) (contract.Contract, error) {
	c, err := q.store.GetContractByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return contract.Contract{}, mapReadErr(err)
	}
	return c, nil
}

func mapReadErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeNotFound, "contract not found", err)
	}
	return apperrors.Wrap(apperrors.CodeStorageUnavailable, "load contract", err)
}
