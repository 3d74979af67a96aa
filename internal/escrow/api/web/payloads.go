package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/planner"
	"github.com/lockupfinance/lockup/internal/escrow/query"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

type proposalPayload struct {
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	TotalAmount     decimal.Decimal         `json:"totalAmount"`
	Currency        string                  `json:"currency"`
	SenderAddress   string                  `json:"senderAddress"`
	ReceiverAddress string                  `json:"receiverAddress"`
	DueDate         *time.Time              `json:"dueDate"`
	ReleaseMethod   string                  `json:"releaseMethod"`
	Milestones      []milestoneDraftPayload `json:"milestones"`
}

type milestoneDraftPayload struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"dueDate"`
}

func (p proposalPayload) toProposal() planner.Proposal {
	proposal := planner.Proposal{
		Title:           p.Title,
		Description:     p.Description,
		TotalAmount:     p.TotalAmount,
		Currency:        p.Currency,
		SenderAddress:   p.SenderAddress,
		ReceiverAddress: p.ReceiverAddress,
		DueDate:         p.DueDate,
		ReleaseMethod:   p.ReleaseMethod,
	}
	for _, m := range p.Milestones {
		proposal.Milestones = append(proposal.Milestones, planner.MilestoneDraft{
			Title:       m.Title,
			Description: m.Description,
			Amount:      m.Amount,
			DueDate:     m.DueDate,
		})
	}
	return proposal
}

type decisionPayload struct {
	CallerAddress string `json:"callerAddress"`
	Decision      string `json:"decision"`
}

type releasePayload struct {
	CallerAddress string `json:"callerAddress"`
}

type contractPayload struct {
	ID              string             `json:"id"`
	Code            string             `json:"code"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	Currency        string             `json:"currency"`
	SenderAddress   string             `json:"senderAddress"`
	ReceiverAddress string             `json:"receiverAddress"`
	DueDate         *time.Time         `json:"dueDate,omitempty"`
	ReleaseMethod   string             `json:"releaseMethod"`
	Status          string             `json:"status"`
	CreatedAt       time.Time          `json:"createdAt"`
	Milestones      []milestonePayload `json:"milestones"`
}

type milestonePayload struct {
	ID          string          `json:"id"`
	Sequence    int             `json:"sequence"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Status      string          `json:"status"`
	ReleaseDate *time.Time      `json:"releaseDate,omitempty"`
	TransferRef string          `json:"transferRef,omitempty"`
}

type contractSummaryPayload struct {
	contractPayload
	Role                string `json:"role"`
	MilestonesTotal     int    `json:"milestonesTotal"`
	MilestonesCompleted int    `json:"milestonesCompleted"`
}

type contractListPayload struct {
	Contracts []contractSummaryPayload `json:"contracts"`
}

func toContractPayload(c contract.Contract) contractPayload {
	payload := contractPayload{
		ID:              c.ID,
		Code:            c.Code,
		Title:           c.Title,
		Description:     c.Description,
		TotalAmount:     c.TotalAmount,
		Currency:        string(c.Currency),
		SenderAddress:   c.SenderAddress,
		ReceiverAddress: c.ReceiverAddress,
		DueDate:         c.DueDate,
		ReleaseMethod:   string(c.ReleaseMethod),
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt,
		Milestones:      make([]milestonePayload, 0, len(c.Milestones)),
	}
	for _, m := range c.Milestones {
		payload.Milestones = append(payload.Milestones, toMilestonePayload(m))
	}
	return payload
}

func toMilestonePayload(m contract.Milestone) milestonePayload {
	return milestonePayload{
		ID:          m.ID,
		Sequence:    m.Sequence,
		Title:       m.Title,
		Description: m.Description,
		Amount:      m.Amount,
		DueDate:     m.DueDate,
		Status:      string(m.Status),
		ReleaseDate: m.ReleaseDate,
		TransferRef: m.TransferRef,
	}
}

func toSummaryPayload(s query.ContractSummary) contractSummaryPayload {
	return contractSummaryPayload{
		contractPayload:     toContractPayload(s.Contract),
		Role:                string(s.Role),
		MilestonesTotal:     s.MilestonesTotal,
		MilestonesCompleted: s.MilestonesCompleted,
	}
}

type errorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON body with normalized headers and status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders any error as the API error envelope. Validation
// batches keep their per-field breakdown; everything else maps through
// the code's HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var verrs planner.ValidationErrors
	if errors.As(err, &verrs) {
		body := errorBody{
			Code:    "VALIDATION_FAILED",
			Message: "the proposal has invalid fields",
			Fields:  make([]fieldError, 0, len(verrs)),
		}
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fieldError{
				Field:   fe.Field,
				Code:    string(fe.Code),
				Message: fe.Message,
			})
		}
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": body})
		return
	}

	code := apperrors.GetCode(err)
	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, code.HTTPStatus(), map[string]errorBody{"error": {
		Code:    string(code),
		Message: message,
	}})
}
