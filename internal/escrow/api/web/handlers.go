// Package web is the HTTP JSON surface of the escrow service.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/planner"
	"github.com/lockupfinance/lockup/internal/escrow/query"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

// ContractService drives contract lifecycle transitions. Implemented by
// the engine.
type ContractService interface {
	Create(ctx context.Context, plan planner.Plan) (contract.Contract, error)
	Accept(ctx context.Context, contractID, callerAddress string) (contract.Contract, error)
	Reject(ctx context.Context, contractID, callerAddress string) (contract.Contract, error)
}

// MilestoneReleaser pays single milestones. Implemented by the release
// coordinator.
type MilestoneReleaser interface {
	Release(ctx context.Context, contractID, milestoneID, callerAddress string) (contract.Milestone, error)
}

// ContractReader serves display queries. Implemented by the query side.
type ContractReader interface {
	ListForAddress(ctx context.Context, address string) ([]query.ContractSummary, error)
	GetByID(ctx context.Context, contractID string) (contract.Contract, error)
	GetByCode(ctx context.Context, code string) (contract.Contract, error)
}

// Handler exposes the contract API over HTTP JSON.
type Handler struct {
	contracts ContractService
	releaser  MilestoneReleaser
	reader    ContractReader
}

// NewHandler wires the API over its collaborators.
func NewHandler(contracts ContractService, releaser MilestoneReleaser, reader ContractReader) *Handler {
	return &Handler{contracts: contracts, releaser: releaser, reader: reader}
}

// Routes builds the API route table with shared middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/contracts", h.handleCreate)
	mux.HandleFunc("GET /api/contracts", h.handleList)
	mux.HandleFunc("GET /api/contracts/{id}", h.handleGet)
	mux.HandleFunc("GET /api/contracts/code/{code}", h.handleGetByCode)
	mux.HandleFunc("POST /api/contracts/{id}/decision", h.handleDecision)
	mux.HandleFunc("POST /api/contracts/{id}/milestones/{milestoneID}/release", h.handleRelease)
	return Chain(mux, RequestID(), RecoverPanic())
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload proposalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeMalformedRequest, "could not decode proposal", err))
		return
	}

	plan, err := planner.Validate(payload.toProposal())
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.contracts.Create(r.Context(), plan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractPayload(created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.reader.ListForAddress(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	list := contractListPayload{Contracts: make([]contractSummaryPayload, 0, len(summaries))}
	for _, s := range summaries {
		list.Contracts = append(list.Contracts, toSummaryPayload(s))
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPayload(c))
}

func (h *Handler) handleGetByCode(w http.ResponseWriter, r *http.Request) {
	c, err := h.reader.GetByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPayload(c))
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	var payload decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeMalformedRequest, "could not decode decision", err))
		return
	}

	contractID := r.PathValue("id")
	var (
		decided contract.Contract
		err     error
	)
	switch payload.Decision {
	case "accept":
		decided, err = h.contracts.Accept(r.Context(), contractID, payload.CallerAddress)
	case "reject":
		decided, err = h.contracts.Reject(r.Context(), contractID, payload.CallerAddress)
	default:
		writeError(w, apperrors.New(apperrors.CodeMalformedRequest, "decision must be accept or reject"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPayload(decided))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var payload releasePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeMalformedRequest, "could not decode release request", err))
		return
	}

	released, err := h.releaser.Release(r.Context(), r.PathValue("id"), r.PathValue("milestoneID"), payload.CallerAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestonePayload(released))
}
