package release

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/engine"
	"github.com/lockupfinance/lockup/internal/escrow/settlement"
	"github.com/lockupfinance/lockup/internal/escrow/storage"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

const (
	senderAddr   = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	receiverAddr = "GDW6AUTBXTOC7FIKUO5BOO3OGLK4SF7ZPOBLMQHMZDI45J2Z6VXRB5NR"
)

type memStore struct {
	mu        sync.Mutex
	contracts map[string]contract.Contract
}

func newMemStore() *memStore {
	return &memStore{contracts: make(map[string]contract.Contract)}
}

func (s *memStore) CreateContract(_ context.Context, c contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ID] = c
	return nil
}

func (s *memStore) GetContract(_ context.Context, contractID string) (contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[contractID]
	if !ok {
		return contract.Contract{}, storage.ErrNotFound
	}
	copied := c
	copied.Milestones = append([]contract.Milestone(nil), c.Milestones...)
	return copied, nil
}

func (s *memStore) GetContractByCode(_ context.Context, code string) (contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.Code == code {
			return c, nil
		}
	}
	return contract.Contract{}, storage.ErrNotFound
}

func (s *memStore) ListContractsByAddress(context.Context, string) ([]contract.Contract, error) {
	return nil, nil
}

func (s *memStore) GetMilestone(_ context.Context, milestoneID string) (contract.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		for _, m := range c.Milestones {
			if m.ID == milestoneID {
				return m, nil
			}
		}
	}
	return contract.Milestone{}, storage.ErrNotFound
}

func (s *memStore) UpdateContractStatus(_ context.Context, contractID string, from, to contract.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[contractID]
	if !ok {
		return storage.ErrNotFound
	}
	if c.Status != from {
		return storage.ErrConflict
	}
	c.Status = to
	s.contracts[contractID] = c
	return nil
}

func (s *memStore) CompleteMilestone(_ context.Context, milestoneID string, releaseDate time.Time, transferRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.contracts {
		for i, m := range c.Milestones {
			if m.ID != milestoneID {
				continue
			}
			if m.Status != contract.MilestonePending {
				return storage.ErrConflict
			}
			c.Milestones[i].Status = contract.MilestoneCompleted
			c.Milestones[i].ReleaseDate = &releaseDate
			c.Milestones[i].TransferRef = transferRef
			s.contracts[id] = c
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) ListDueAutoMilestones(context.Context, time.Time) ([]storage.DueMilestone, error) {
	return nil, nil
}

func (s *memStore) get(t *testing.T, contractID string) contract.Contract {
	t.Helper()
	c, err := s.GetContract(context.Background(), contractID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	return c
}

type stubGateway struct {
	mu            sync.Mutex
	transferCalls int
	transferErr   error
	started       chan struct{}
	proceed       chan struct{}
}

func (g *stubGateway) LockFunds(context.Context, settlement.LockRequest) (settlement.LockResult, error) {
	return settlement.LockResult{Reference: "lock-1"}, nil
}

func (g *stubGateway) Transfer(context.Context, settlement.TransferRequest) (settlement.TransferResult, error) {
	g.mu.Lock()
	g.transferCalls++
	err := g.transferErr
	g.mu.Unlock()
	if g.started != nil {
		g.started <- struct{}{}
		<-g.proceed
	}
	if err != nil {
		return settlement.TransferResult{}, err
	}
	return settlement.TransferResult{Reference: "tx-1", Ledger: 7}, nil
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transferCalls
}

func seedActiveContract(store *memStore) contract.Contract {
	c := contract.Contract{
		ID:              "c-1",
		Code:            "AB12CD34",
		Title:           "Website redesign",
		TotalAmount:     decimal.RequireFromString("1000"),
		Currency:        contract.CurrencyUSDC,
		SenderAddress:   senderAddr,
		ReceiverAddress: receiverAddr,
		ReleaseMethod:   contract.ReleaseManual,
		Status:          contract.StatusActive,
		CreatedAt:       time.Now().UTC(),
		Milestones: []contract.Milestone{
			{ID: "m-1", ContractID: "c-1", Sequence: 1, Title: "Design",
				Amount: decimal.RequireFromString("400"), Status: contract.MilestonePending},
			{ID: "m-2", ContractID: "c-1", Sequence: 2, Title: "Build",
				Amount: decimal.RequireFromString("600"), Status: contract.MilestonePending},
		},
	}
	store.contracts[c.ID] = c
	return c
}

func newCoordinator(store *memStore, gateway settlement.Gateway) *Coordinator {
	return New(store, gateway, engine.New(store, gateway))
}

func TestReleaseCompletesMilestone(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	gateway := &stubGateway{}
	coord := newCoordinator(store, gateway)

	released, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != contract.MilestoneCompleted {
		t.Errorf("status = %q, want completed", released.Status)
	}
	if released.TransferRef != "tx-1" {
		t.Errorf("transfer ref = %q, want tx-1", released.TransferRef)
	}
	if released.ReleaseDate == nil {
		t.Error("release date not set")
	}

	stored := store.get(t, "c-1")
	if stored.Milestones[0].Status != contract.MilestoneCompleted {
		t.Errorf("stored milestone status = %q, want completed", stored.Milestones[0].Status)
	}
	if stored.Status != contract.StatusActive {
		t.Errorf("contract status = %q, want still active with one milestone pending", stored.Status)
	}
}

func TestReleaseLastMilestoneCompletesContract(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	coord := newCoordinator(store, &stubGateway{})

	if _, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr); err != nil {
		t.Fatalf("release m-1: %v", err)
	}
	if _, err := coord.Release(context.Background(), "c-1", "m-2", senderAddr); err != nil {
		t.Fatalf("release m-2: %v", err)
	}
	if got := store.get(t, "c-1").Status; got != contract.StatusCompleted {
		t.Fatalf("contract status = %q, want completed", got)
	}
}

func TestReleaseConcurrentCallsPayOnce(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	gateway := &stubGateway{
		started: make(chan struct{}, 1),
		proceed: make(chan struct{}),
	}
	coord := newCoordinator(store, gateway)

	firstErr := make(chan error, 1)
	go func() {
		_, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
		firstErr <- err
	}()

	// Wait until the first call is inside the transfer, then race it.
	<-gateway.started
	_, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
	if !apperrors.IsCode(err, apperrors.CodeReleaseInProgress) {
		t.Fatalf("second call err = %v, want %s", err, apperrors.CodeReleaseInProgress)
	}

	close(gateway.proceed)
	if err := <-firstErr; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if gateway.calls() != 1 {
		t.Fatalf("transfer calls = %d, want exactly 1", gateway.calls())
	}
	if got := store.get(t, "c-1").Milestones[0].Status; got != contract.MilestoneCompleted {
		t.Fatalf("milestone status = %q, want completed", got)
	}
}

func TestReleaseFailureLeavesMilestonePendingAndRetryable(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	gateway := &stubGateway{transferErr: errors.New("settlement timeout")}
	coord := newCoordinator(store, gateway)

	_, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
	if !apperrors.IsCode(err, apperrors.CodeTransferFailed) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTransferFailed)
	}
	if got := store.get(t, "c-1").Milestones[0].Status; got != contract.MilestonePending {
		t.Fatalf("milestone status = %q, want pending after failure", got)
	}

	gateway.transferErr = nil
	released, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
	if err != nil {
		t.Fatalf("retry release: %v", err)
	}
	if released.Status != contract.MilestoneCompleted {
		t.Fatalf("status = %q, want completed after retry", released.Status)
	}
}

func TestReleaseRequiresSender(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	gateway := &stubGateway{}
	coord := newCoordinator(store, gateway)

	_, err := coord.Release(context.Background(), "c-1", "m-1", receiverAddr)
	if !apperrors.IsCode(err, apperrors.CodeNotContractSender) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeNotContractSender)
	}
	if gateway.calls() != 0 {
		t.Errorf("transfer calls = %d, want 0", gateway.calls())
	}
}

func TestReleaseRequiresActiveContract(t *testing.T) {
	store := newMemStore()
	c := seedActiveContract(store)
	c.Status = contract.StatusPending
	store.contracts[c.ID] = c
	coord := newCoordinator(store, &stubGateway{})

	_, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
	if !apperrors.IsCode(err, apperrors.CodeContractStatusConflict) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeContractStatusConflict)
	}
}

func TestReleaseCompletedMilestoneConflicts(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	gateway := &stubGateway{}
	coord := newCoordinator(store, gateway)

	if _, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, err := coord.Release(context.Background(), "c-1", "m-1", senderAddr)
	if !apperrors.IsCode(err, apperrors.CodeMilestoneStatusConflict) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeMilestoneStatusConflict)
	}
	if gateway.calls() != 1 {
		t.Errorf("transfer calls = %d, want 1", gateway.calls())
	}
}

func TestReleaseUnknownMilestone(t *testing.T) {
	store := newMemStore()
	seedActiveContract(store)
	coord := newCoordinator(store, &stubGateway{})

	_, err := coord.Release(context.Background(), "c-1", "m-9", senderAddr)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeNotFound)
	}
}
