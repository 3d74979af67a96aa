package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeContractStatusConflict, "contract is not pending")
	target := New(CodeContractStatusConflict, "different message")

	if !stderrors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodeNotFound, "missing")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk gone")
	err := Wrap(CodeStorageUnavailable, "load contract", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if got := GetCode(err); got != CodeStorageUnavailable {
		t.Fatalf("GetCode = %q, want %q", got, CodeStorageUnavailable)
	}
}

func TestGetCodeUnknownForForeignErrors(t *testing.T) {
	if got := GetCode(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("GetCode = %q, want %q", got, CodeUnknown)
	}
	if got := GetCode(nil); got != CodeUnknown {
		t.Fatalf("GetCode(nil) = %q, want %q", got, CodeUnknown)
	}
}

func TestGetMetadata(t *testing.T) {
	err := WithMetadata(CodeMilestoneSumExceeds, "milestones exceed total", map[string]string{
		"remainder": "100.00",
		"currency":  "USDC",
	})
	meta := GetMetadata(err)
	if meta["remainder"] != "100.00" {
		t.Fatalf("remainder = %q, want 100.00", meta["remainder"])
	}
	if GetMetadata(fmt.Errorf("plain")) != nil {
		t.Fatal("expected nil metadata for foreign error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeContractTitleEmpty, http.StatusBadRequest},
		{CodeMilestoneSumExceeds, http.StatusBadRequest},
		{CodeNotContractReceiver, http.StatusForbidden},
		{CodeNotContractSender, http.StatusForbidden},
		{CodeContractStatusConflict, http.StatusConflict},
		{CodeReleaseInProgress, http.StatusConflict},
		{CodeNotFound, http.StatusNotFound},
		{CodeTransferFailed, http.StatusBadGateway},
		{CodeFundLockFailed, http.StatusBadGateway},
		{CodeStorageUnavailable, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}
