package errors

import (
	stderrors "errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeMalformedRequest marks a request body that could not be decoded.
	CodeMalformedRequest Code = "MALFORMED_REQUEST"

	// Contract validation errors
	CodeContractTitleEmpty       Code = "CONTRACT_TITLE_EMPTY"
	CodeContractAmountInvalid    Code = "CONTRACT_AMOUNT_INVALID"
	CodeContractCurrencyInvalid  Code = "CONTRACT_CURRENCY_INVALID"
	CodeContractSenderInvalid    Code = "CONTRACT_SENDER_ADDRESS_INVALID"
	CodeContractReceiverInvalid  Code = "CONTRACT_RECEIVER_ADDRESS_INVALID"
	CodeContractDueDateRequired  Code = "CONTRACT_DUE_DATE_REQUIRED"
	CodeContractReleaseMethodBad Code = "CONTRACT_RELEASE_METHOD_INVALID"

	// Milestone validation errors
	CodeMilestoneCountInvalid   Code = "MILESTONE_COUNT_INVALID"
	CodeMilestoneTitleEmpty     Code = "MILESTONE_TITLE_EMPTY"
	CodeMilestoneAmountInvalid  Code = "MILESTONE_AMOUNT_INVALID"
	CodeMilestoneDueDateMissing Code = "MILESTONE_DUE_DATE_REQUIRED"
	CodeMilestoneSumExceeds     Code = "MILESTONE_SUM_EXCEEDS_TOTAL"
	CodeMilestoneSumShort       Code = "MILESTONE_SUM_BELOW_TOTAL"

	// Authorization errors
	CodeNotContractReceiver Code = "NOT_CONTRACT_RECEIVER"
	CodeNotContractSender   Code = "NOT_CONTRACT_SENDER"

	// State conflict errors
	CodeContractStatusConflict  Code = "CONTRACT_STATUS_CONFLICT"
	CodeMilestoneStatusConflict Code = "MILESTONE_STATUS_CONFLICT"
	CodeReleaseInProgress       Code = "RELEASE_IN_PROGRESS"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"

	// Settlement errors
	CodeFundLockFailed Code = "FUND_LOCK_FAILED"
	CodeTransferFailed Code = "TRANSFER_FAILED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeMalformedRequest,
		CodeContractTitleEmpty,
		CodeContractAmountInvalid,
		CodeContractCurrencyInvalid,
		CodeContractSenderInvalid,
		CodeContractReceiverInvalid,
		CodeContractDueDateRequired,
		CodeContractReleaseMethodBad,
		CodeMilestoneCountInvalid,
		CodeMilestoneTitleEmpty,
		CodeMilestoneAmountInvalid,
		CodeMilestoneDueDateMissing,
		CodeMilestoneSumExceeds,
		CodeMilestoneSumShort:
		return http.StatusBadRequest

	// Forbidden - caller is not the required contract party
	case CodeNotContractReceiver,
		CodeNotContractSender:
		return http.StatusForbidden

	// Conflict - state doesn't allow the transition
	case CodeContractStatusConflict,
		CodeMilestoneStatusConflict,
		CodeReleaseInProgress:
		return http.StatusConflict

	// Not found - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	// Bad gateway - settlement network failure, retryable by the caller
	case CodeFundLockFailed,
		CodeTransferFailed:
		return http.StatusBadGateway

	// Service unavailable - store unreachable, retryable by the caller
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
// Returns nil if the error is not a domain error or has no metadata.
func GetMetadata(err error) map[string]string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
