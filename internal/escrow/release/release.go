// Package release coordinates milestone payouts. Each milestone is paid
// at most once: an in-process per-milestone guard serializes callers of
// the same milestone, and the store's conditional completion write backs
// that up across processes.
package release

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/settlement"
	"github.com/lockupfinance/lockup/internal/escrow/storage"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

// CompletionNotifier recomputes a contract's status after a milestone
// completes. Implemented by the engine.
type CompletionNotifier interface {
	RecomputeCompletion(ctx context.Context, contractID string) error
}

// Coordinator owns milestone release. The transfer call is the only
// long-blocking operation; it is dispatched at most once per milestone
// and its definite outcome decides whether the milestone completes.
type Coordinator struct {
	store    storage.ContractStore
	gateway  settlement.Gateway
	notifier CompletionNotifier
	tracer   trace.Tracer
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New wires a coordinator over its store, settlement gateway, and the
// engine's completion hook.
func New(store storage.ContractStore, gateway settlement.Gateway, notifier CompletionNotifier) *Coordinator {
	return &Coordinator{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		tracer:   otel.Tracer("lockup/escrow/release"),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Release pays one pending milestone of an active contract on behalf of
// the contract sender. A concurrent call for the same milestone fails
// immediately rather than queuing. A failed transfer leaves the
// milestone pending and may be retried by calling Release again.
func (c *Coordinator) Release(ctx context.Context, contractID, milestoneID, callerAddress string) (contract.Milestone, error) {
	if !c.tryAcquire(milestoneID) {
		return contract.Milestone{}, apperrors.New(apperrors.CodeReleaseInProgress,
			"release already in progress for this milestone")
	}
	defer c.releaseGuard(milestoneID)

	// Always decide against current persisted state, never a cached view.
	owner, err := c.store.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return contract.Milestone{}, apperrors.Wrap(apperrors.CodeNotFound, "contract not found", err)
		}
		return contract.Milestone{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "load contract", err)
	}
	if owner.Status != contract.StatusActive {
		return contract.Milestone{}, apperrors.New(apperrors.CodeContractStatusConflict,
			"milestones can only be released on an active contract")
	}
	if callerAddress != owner.SenderAddress {
		return contract.Milestone{}, contract.ErrNotSender
	}

	milestone, ok := findMilestone(owner, milestoneID)
	if !ok {
		return contract.Milestone{}, apperrors.New(apperrors.CodeNotFound, "milestone not found")
	}
	if milestone.Status != contract.MilestonePending {
		return contract.Milestone{}, apperrors.New(apperrors.CodeMilestoneStatusConflict,
			"milestone has already been released")
	}

	result, err := c.transfer(ctx, owner, milestone)
	if err != nil {
		return contract.Milestone{}, apperrors.Wrap(apperrors.CodeTransferFailed, "transfer milestone funds", err)
	}

	releaseDate := c.now().UTC()
	err = c.store.CompleteMilestone(ctx, milestoneID, releaseDate, result.Reference)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConflict):
		// Another process completed it between our read and write.
		return contract.Milestone{}, apperrors.New(apperrors.CodeMilestoneStatusConflict,
			"milestone has already been released")
	default:
		return contract.Milestone{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "record milestone completion", err)
	}

	if err := c.notifier.RecomputeCompletion(ctx, contractID); err != nil {
		// The payout already happened; the recompute retries on the
		// next release of this contract.
		log.Printf("contract %s: recompute completion: %v", contractID, err)
	}

	milestone.Status = contract.MilestoneCompleted
	milestone.ReleaseDate = &releaseDate
	milestone.TransferRef = result.Reference
	return milestone, nil
}

// transfer dispatches the external payout. Not cancellable once sent;
// the coordinator waits for a definite outcome.
func (c *Coordinator) transfer(ctx context.Context, owner contract.Contract, m contract.Milestone) (settlement.TransferResult, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.Transfer", trace.WithAttributes(
		attribute.String("contract.id", owner.ID),
		attribute.String("milestone.id", m.ID),
		attribute.String("amount", m.Amount.String()),
		attribute.String("currency", string(owner.Currency)),
	))
	defer span.End()

	result, err := c.gateway.Transfer(ctx, settlement.TransferRequest{
		MilestoneID:     m.ID,
		Amount:          m.Amount,
		Currency:        owner.Currency,
		SenderAddress:   owner.SenderAddress,
		ReceiverAddress: owner.ReceiverAddress,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return settlement.TransferResult{}, err
	}
	span.SetAttributes(attribute.String("transfer.reference", result.Reference))
	return result, nil
}

func (c *Coordinator) tryAcquire(milestoneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.inFlight[milestoneID]; held {
		return false
	}
	c.inFlight[milestoneID] = struct{}{}
	return true
}

func (c *Coordinator) releaseGuard(milestoneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, milestoneID)
}

func findMilestone(owner contract.Contract, milestoneID string) (contract.Milestone, bool) {
	for _, m := range owner.Milestones {
		if m.ID == milestoneID {
			return m, true
		}
	}
	return contract.Milestone{}, false
}
