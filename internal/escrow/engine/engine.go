// Package engine owns every contract status transition. All mutations
// go through conditional store writes so that concurrent callers cannot
// both win the same transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/planner"
	"github.com/lockupfinance/lockup/internal/escrow/settlement"
	"github.com/lockupfinance/lockup/internal/escrow/storage"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
	"github.com/lockupfinance/lockup/internal/platform/id"
)

// codeAttempts bounds retries when a generated share code collides.
const codeAttempts = 5

// Engine persists validated plans and drives the contract lifecycle.
type Engine struct {
	store   storage.ContractStore
	gateway settlement.Gateway
	now     func() time.Time
}

// New wires an engine over its store and settlement gateway.
func New(store storage.ContractStore, gateway settlement.Gateway) *Engine {
	return &Engine{
		store:   store,
		gateway: gateway,
		now:     time.Now,
	}
}

// Create persists a validated plan as a pending contract. Terms are
// immutable after this point; only statuses and release records change
// later.
func (e *Engine) Create(ctx context.Context, plan planner.Plan) (contract.Contract, error) {
	contractID, err := id.NewID()
	if err != nil {
		return contract.Contract{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "generate contract id", err)
	}

	c := contract.Contract{
		ID:              contractID,
		Title:           plan.Title,
		Description:     plan.Description,
		TotalAmount:     plan.TotalAmount,
		Currency:        plan.Currency,
		SenderAddress:   plan.SenderAddress,
		ReceiverAddress: plan.ReceiverAddress,
		DueDate:         plan.DueDate,
		ReleaseMethod:   plan.ReleaseMethod,
		Status:          contract.StatusPending,
		CreatedAt:       e.now().UTC(),
	}
	for _, m := range plan.Milestones {
		milestoneID, err := id.NewID()
		if err != nil {
			return contract.Contract{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "generate milestone id", err)
		}
		m.ID = milestoneID
		m.ContractID = contractID
		c.Milestones = append(c.Milestones, m)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := id.NewShortCode()
		if err != nil {
			return contract.Contract{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "generate share code", err)
		}
		c.Code = code

		err = e.store.CreateContract(ctx, c)
		if err == nil {
			return c, nil
		}
		if errors.Is(err, storage.ErrDuplicateCode) {
			continue
		}
		return contract.Contract{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "persist contract", err)
	}
	return contract.Contract{}, apperrors.New(apperrors.CodeStorageUnavailable,
		fmt.Sprintf("could not allocate a unique share code after %d attempts", codeAttempts))
}

// Accept moves a pending contract to active on behalf of its receiver
// and locks the contract total in escrow. A failed fund lock rolls the
// contract back to pending so the receiver can retry.
func (e *Engine) Accept(ctx context.Context, contractID, callerAddress string) (contract.Contract, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return contract.Contract{}, err
	}
	if callerAddress != c.ReceiverAddress {
		return contract.Contract{}, contract.ErrNotReceiver
	}

	if err := e.transition(ctx, contractID, contract.StatusPending, contract.StatusActive); err != nil {
		return contract.Contract{}, err
	}

	_, err = e.gateway.LockFunds(ctx, settlement.LockRequest{
		ContractID:      c.ID,
		Amount:          c.TotalAmount,
		Currency:        c.Currency,
		SenderAddress:   c.SenderAddress,
		ReceiverAddress: c.ReceiverAddress,
	})
	if err != nil {
		if rbErr := e.store.UpdateContractStatus(ctx, contractID, contract.StatusActive, contract.StatusPending); rbErr != nil {
			log.Printf("contract %s: rollback after failed fund lock: %v", contractID, rbErr)
		}
		return contract.Contract{}, apperrors.Wrap(apperrors.CodeFundLockFailed, "lock contract funds", err)
	}

	c.Status = contract.StatusActive
	return c, nil
}

// Reject moves a pending contract to its terminal rejected status on
// behalf of its receiver. No funds are ever touched.
func (e *Engine) Reject(ctx context.Context, contractID, callerAddress string) (contract.Contract, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return contract.Contract{}, err
	}
	if callerAddress != c.ReceiverAddress {
		return contract.Contract{}, contract.ErrNotReceiver
	}

	if err := e.transition(ctx, contractID, contract.StatusPending, contract.StatusRejected); err != nil {
		return contract.Contract{}, err
	}
	c.Status = contract.StatusRejected
	return c, nil
}

// RecomputeCompletion promotes an active contract to completed once
// every milestone has been paid. Losing the conditional write to a
// concurrent recompute is not an error.
func (e *Engine) RecomputeCompletion(ctx context.Context, contractID string) error {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return err
	}
	if c.Status != contract.StatusActive || !c.AllMilestonesCompleted() {
		return nil
	}

	err = e.store.UpdateContractStatus(ctx, contractID, contract.StatusActive, contract.StatusCompleted)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "complete contract", err)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, contractID string) (contract.Contract, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return contract.Contract{}, apperrors.Wrap(apperrors.CodeNotFound, "contract not found", err)
		}
		return contract.Contract{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "load contract", err)
	}
	return c, nil
}

func (e *Engine) transition(ctx context.Context, contractID string, from, to contract.Status) error {
	err := e.store.UpdateContractStatus(ctx, contractID, from, to)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConflict):
		return apperrors.WithMetadata(apperrors.CodeContractStatusConflict,
			fmt.Sprintf("contract is no longer %s", from),
			map[string]string{"from": string(from), "to": string(to)})
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, "contract not found", err)
	default:
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "update contract status", err)
	}
}
