// Package scheduler pays due milestones of auto-release contracts. It
// is just another caller of the release coordinator, acting with each
// contract's own sender identity, so every safety property of manual
// release applies unchanged.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/storage"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 30 * time.Second

// DueLister enumerates milestones ready for automatic release.
type DueLister interface {
	ListDueAutoMilestones(ctx context.Context, now time.Time) ([]storage.DueMilestone, error)
}

// Releaser pays single milestones. Implemented by the release
// coordinator.
type Releaser interface {
	Release(ctx context.Context, contractID, milestoneID, callerAddress string) (contract.Milestone, error)
}

// Scheduler polls for due milestones and releases them.
type Scheduler struct {
	lister   DueLister
	releaser Releaser
	interval time.Duration
	now      func() time.Time
}

// New wires a scheduler. A non-positive interval falls back to
// DefaultInterval.
func New(lister DueLister, releaser Releaser, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		lister:   lister,
		releaser: releaser,
		interval: interval,
		now:      time.Now,
	}
}

// Run polls until the context is cancelled. The first sweep happens
// immediately; failures are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep releases every currently due milestone. One failed release does
// not stop the rest of the sweep.
func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.lister.ListDueAutoMilestones(ctx, s.now().UTC())
	if err != nil {
		log.Printf("list due milestones: %v", err)
		return
	}

	for _, d := range due {
		if ctx.Err() != nil {
			return
		}
		_, err := s.releaser.Release(ctx, d.ContractID, d.MilestoneID, d.SenderAddress)
		switch {
		case err == nil:
			log.Printf("auto release contract=%s milestone=%s due=%s", d.ContractID, d.MilestoneID, d.DueDate.Format(time.RFC3339))
		case isBenignConflict(err):
			// A manual release (or another scheduler) got there first.
		default:
			log.Printf("auto release contract=%s milestone=%s: %v", d.ContractID, d.MilestoneID, err)
		}
	}
}

func isBenignConflict(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.CodeReleaseInProgress,
		apperrors.CodeMilestoneStatusConflict,
		apperrors.CodeContractStatusConflict:
		return true
	}
	return false
}
