package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lockupfinance/lockup/internal/platform/timeouts"
)

// HTTPGateway talks to a settlement gateway over HTTP JSON.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway client for the provided base URL.
func NewHTTPGateway(baseURL string) (*HTTPGateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("settlement gateway url is required")
	}
	return &HTTPGateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeouts.SettlementRequest,
		},
	}, nil
}

type lockPayload struct {
	ContractID      string `json:"contract_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`
}

type lockResponse struct {
	Reference string `json:"reference"`
}

type transferPayload struct {
	MilestoneID     string `json:"milestone_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`
}

type transferResponse struct {
	Reference string `json:"reference"`
	Ledger    int64  `json:"ledger"`
}

// LockFunds holds the contract total in escrow on acceptance.
func (g *HTTPGateway) LockFunds(ctx context.Context, req LockRequest) (LockResult, error) {
	if g == nil || g.httpClient == nil {
		return LockResult{}, fmt.Errorf("settlement gateway is not configured")
	}
	var resp lockResponse
	err := g.post(ctx, "/locks", lockPayload{
		ContractID:      req.ContractID,
		Amount:          req.Amount.String(),
		Currency:        string(req.Currency),
		SenderAddress:   req.SenderAddress,
		ReceiverAddress: req.ReceiverAddress,
	}, &resp)
	if err != nil {
		return LockResult{}, fmt.Errorf("lock funds: %w", err)
	}
	if strings.TrimSpace(resp.Reference) == "" {
		return LockResult{}, fmt.Errorf("lock funds: gateway returned no reference")
	}
	return LockResult{Reference: resp.Reference}, nil
}

// Transfer pays a milestone amount from escrow to the receiver.
func (g *HTTPGateway) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if g == nil || g.httpClient == nil {
		return TransferResult{}, fmt.Errorf("settlement gateway is not configured")
	}
	var resp transferResponse
	err := g.post(ctx, "/transfers", transferPayload{
		MilestoneID:     req.MilestoneID,
		Amount:          req.Amount.String(),
		Currency:        string(req.Currency),
		SenderAddress:   req.SenderAddress,
		ReceiverAddress: req.ReceiverAddress,
	}, &resp)
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer: %w", err)
	}
	if strings.TrimSpace(resp.Reference) == "" {
		return TransferResult{}, fmt.Errorf("transfer: gateway returned no reference")
	}
	return TransferResult{Reference: resp.Reference, Ledger: resp.Ledger}, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call gateway: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		message := readErrorMessage(httpResp.Body)
		if message == "" {
			message = httpResp.Status
		}
		return fmt.Errorf("gateway rejected request: %s", message)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(payload.Error)
}

var _ Gateway = (*HTTPGateway)(nil)
