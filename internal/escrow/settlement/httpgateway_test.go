package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
)

func TestHTTPGatewayTransfer(t *testing.T) {
	var got transferPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transfers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(transferResponse{Reference: "tx-123", Ledger: 42})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(server.URL)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	result, err := gateway.Transfer(context.Background(), TransferRequest{
		MilestoneID:     "m-1",
		Amount:          decimal.RequireFromString("400"),
		Currency:        contract.CurrencyUSDC,
		SenderAddress:   "GSENDER",
		ReceiverAddress: "GRECEIVER",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Reference != "tx-123" || result.Ledger != 42 {
		t.Fatalf("result = %+v", result)
	}
	if got.MilestoneID != "m-1" || got.Amount != "400" || got.Currency != "USDC" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestHTTPGatewayLockFunds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/locks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(lockResponse{Reference: "lock-9"})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(server.URL + "/")
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	result, err := gateway.LockFunds(context.Background(), LockRequest{
		ContractID: "c-1",
		Amount:     decimal.RequireFromString("1000"),
		Currency:   contract.CurrencyXLM,
	})
	if err != nil {
		t.Fatalf("lock funds: %v", err)
	}
	if result.Reference != "lock-9" {
		t.Fatalf("reference = %q, want lock-9", result.Reference)
	}
}

func TestHTTPGatewaySurfacesGatewayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient escrow balance"})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(server.URL)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	_, err = gateway.Transfer(context.Background(), TransferRequest{MilestoneID: "m-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "insufficient escrow balance") {
		t.Fatalf("expected gateway message in error, got %v", err)
	}
}

func TestHTTPGatewayRejectsMissingReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(transferResponse{})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(server.URL)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if _, err := gateway.Transfer(context.Background(), TransferRequest{MilestoneID: "m-1"}); err == nil {
		t.Fatal("expected error for missing reference")
	}
}

func TestNewHTTPGatewayRequiresURL(t *testing.T) {
	if _, err := NewHTTPGateway("  "); err == nil {
		t.Fatal("expected error for empty url")
	}
}
