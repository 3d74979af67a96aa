// Package planner validates proposed contract terms and milestone
// breakdowns before anything is persisted. Validation is a pure
// function: it collects every violation instead of aborting on the
// first one, so a caller can surface all field errors together.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/settlement"
	apperrors "github.com/lockupfinance/lockup/internal/platform/errors"
)

// Limits on the milestone breakdown of a single contract.
const (
	MinMilestones = 2
	MaxMilestones = 5
)

// Proposal carries the raw, untrusted terms submitted by a sender.
type Proposal struct {
	Title           string
	Description     string
	TotalAmount     decimal.Decimal
	Currency        string
	SenderAddress   string
	ReceiverAddress string
	DueDate         *time.Time
	ReleaseMethod   string
	Milestones      []MilestoneDraft
}

// MilestoneDraft is one requested slice of the contract total.
type MilestoneDraft struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	DueDate     *time.Time
}

// Plan is a fully validated proposal with canonical field values and a
// sequence-numbered milestone set. Only a Plan may be handed to the
// engine for persistence.
type Plan struct {
	Title           string
	Description     string
	TotalAmount     decimal.Decimal
	Currency        contract.Currency
	SenderAddress   string
	ReceiverAddress string
	DueDate         *time.Time
	ReleaseMethod   contract.ReleaseMethod
	Milestones      []contract.Milestone
}

// FieldError names a single invalid proposal field.
type FieldError struct {
	Field   string
	Code    apperrors.Code
	Message string
}

// ValidationErrors is the complete batch of field errors for a
// proposal. It is non-empty whenever returned.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	messages := make([]string, len(v))
	for i, fe := range v {
		messages[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return "invalid proposal: " + strings.Join(messages, "; ")
}

// Validate checks a proposal and returns either a canonical Plan or the
// full set of field errors.
func Validate(p Proposal) (Plan, error) {
	var errs ValidationErrors
	fail := func(field string, code apperrors.Code, message string) {
		errs = append(errs, FieldError{Field: field, Code: code, Message: message})
	}

	plan := Plan{
		Title:           strings.TrimSpace(p.Title),
		Description:     strings.TrimSpace(p.Description),
		TotalAmount:     p.TotalAmount,
		SenderAddress:   strings.TrimSpace(p.SenderAddress),
		ReceiverAddress: strings.TrimSpace(p.ReceiverAddress),
		DueDate:         p.DueDate,
	}

	if plan.Title == "" {
		fail("title", apperrors.CodeContractTitleEmpty, "title is required")
	}
	if !p.TotalAmount.IsPositive() {
		fail("totalAmount", apperrors.CodeContractAmountInvalid, "total amount must be greater than zero")
	}

	plan.Currency = contract.DefaultCurrency
	if raw := strings.TrimSpace(p.Currency); raw != "" {
		currency, ok := contract.ParseCurrency(raw)
		if !ok {
			fail("currency", apperrors.CodeContractCurrencyInvalid, fmt.Sprintf("unsupported currency %q", raw))
		} else {
			plan.Currency = currency
		}
	}

	plan.ReleaseMethod = contract.ReleaseManual
	if raw := strings.TrimSpace(p.ReleaseMethod); raw != "" {
		method, ok := contract.ParseReleaseMethod(raw)
		if !ok {
			fail("releaseMethod", apperrors.CodeContractReleaseMethodBad, fmt.Sprintf("unsupported release method %q", raw))
		} else {
			plan.ReleaseMethod = method
		}
	}

	if !settlement.IsValidAccountID(plan.SenderAddress) {
		fail("senderAddress", apperrors.CodeContractSenderInvalid, "sender address is not a valid account id")
	}
	if !settlement.IsValidAccountID(plan.ReceiverAddress) {
		fail("receiverAddress", apperrors.CodeContractReceiverInvalid, "receiver address is not a valid account id")
	}

	if plan.ReleaseMethod == contract.ReleaseAuto && len(p.Milestones) == 0 && plan.DueDate == nil {
		fail("dueDate", apperrors.CodeContractDueDateRequired, "due date is required for automatic release")
	}

	if len(p.Milestones) > 0 {
		plan.Milestones = validateMilestones(p, plan, &errs)
	}

	if len(errs) > 0 {
		return Plan{}, errs
	}
	return plan, nil
}

func validateMilestones(p Proposal, plan Plan, errs *ValidationErrors) []contract.Milestone {
	fail := func(field string, code apperrors.Code, message string) {
		*errs = append(*errs, FieldError{Field: field, Code: code, Message: message})
	}

	if len(p.Milestones) < MinMilestones || len(p.Milestones) > MaxMilestones {
		fail("milestones", apperrors.CodeMilestoneCountInvalid,
			fmt.Sprintf("milestone count must be between %d and %d", MinMilestones, MaxMilestones))
	}

	milestones := make([]contract.Milestone, 0, len(p.Milestones))
	for i, draft := range p.Milestones {
		milestone := contract.Milestone{
			Sequence:    i + 1,
			Title:       strings.TrimSpace(draft.Title),
			Description: strings.TrimSpace(draft.Description),
			Amount:      draft.Amount,
			DueDate:     draft.DueDate,
			Status:      contract.MilestonePending,
		}
		if milestone.Title == "" {
			fail(fmt.Sprintf("milestones[%d].title", i), apperrors.CodeMilestoneTitleEmpty, "milestone title is required")
		}
		if !draft.Amount.IsPositive() {
			fail(fmt.Sprintf("milestones[%d].amount", i), apperrors.CodeMilestoneAmountInvalid, "milestone amount must be greater than zero")
		}
		if plan.ReleaseMethod == contract.ReleaseAuto && draft.DueDate == nil {
			fail(fmt.Sprintf("milestones[%d].dueDate", i), apperrors.CodeMilestoneDueDateMissing, "milestone due date is required for automatic release")
		}
		milestones = append(milestones, milestone)
	}

	// Only compare the sum against a meaningful total; a non-positive
	// total already failed above and would produce a confusing
	// remainder message on top of it.
	if p.TotalAmount.IsPositive() {
		diff := contract.SumAmounts(milestones).Sub(p.TotalAmount)
		switch {
		case diff.GreaterThan(contract.SumTolerance):
			fail("milestones", apperrors.CodeMilestoneSumExceeds,
				fmt.Sprintf("milestone amounts exceed total by %s %s", diff.StringFixed(2), plan.Currency))
		case diff.Neg().GreaterThan(contract.SumTolerance):
			fail("milestones", apperrors.CodeMilestoneSumShort,
				fmt.Sprintf("%s %s remaining to allocate", diff.Neg().StringFixed(2), plan.Currency))
		}
	}

	return milestones
}

// EvenSplit divides total into n amounts that sum exactly to total. Each
// share is truncated to two decimal places and the last share absorbs
// the rounding remainder. Returns nil when n is not positive.
func EvenSplit(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	share := total.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	amounts := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		amounts[i] = share
		allocated = allocated.Add(share)
	}
	amounts[n-1] = total.Sub(allocated)
	return amounts
}
