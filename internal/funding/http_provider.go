package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// HTTPProvider quotes and executes funding through a provider's REST API.
// GET {base}/fee answers fee terms for a token, POST {base}/execute draws
// the loan.
type HTTPProvider struct {
	name    string
	baseURL string
	client  *http.Client
}

var _ domain.FundingProvider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTPProvider for the given API base URL. It
// uses a default HTTP client with a 10-second timeout.
func NewHTTPProvider(name, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the provider identifier.
func (h *HTTPProvider) Name() string { return h.name }

type feeResponse struct {
	Supported     bool    `json:"supported"`
	FeePercentage float64 `json:"feePercentage"`
}

// GetFee asks the provider API for its fee on borrowing amount of token.
func (h *HTTPProvider) GetFee(ctx context.Context, token domain.Token, amount float64) (domain.FundingQuote, error) {
	q := url.Values{}
	q.Set("token", strings.ToLower(token.Address.Hex()))
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/fee?"+q.Encode(), nil)
	if err != nil {
		return domain.FundingQuote{}, fmt.Errorf("funding: %s: create request: %w", h.name, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.FundingQuote{}, fmt.Errorf("funding: %s: fee request: %w: %v", h.name, domain.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.FundingQuote{}, fmt.Errorf("funding: %s: unexpected status %d: %s", h.name, resp.StatusCode, string(body))
	}

	var fee feeResponse
	if err := json.NewDecoder(resp.Body).Decode(&fee); err != nil {
		return domain.FundingQuote{}, fmt.Errorf("funding: %s: decode fee response: %w", h.name, err)
	}
	if !fee.Supported {
		return domain.FundingQuote{}, fmt.Errorf("funding: %s does not fund %s: %w", h.name, token.String(), domain.ErrNoProviderForToken)
	}

	feeAmount := amount * fee.FeePercentage / 100
	return domain.FundingQuote{
		Provider:      h.name,
		Token:         token,
		Amount:        amount,
		FeePercentage: fee.FeePercentage,
		FeeAmount:     feeAmount,
		TotalRequired: amount + feeAmount,
		QuotedAt:      time.Now().UTC(),
	}, nil
}

type executeRequest struct {
	Token         string  `json:"token"`
	Amount        float64 `json:"amount"`
	OpportunityID string  `json:"opportunityId,omitempty"`
}

type executeResponse struct {
	Success bool    `json:"success"`
	Fee     float64 `json:"fee"`
	TxRef   string  `json:"txRef"`
	Reason  string  `json:"reason"`
}

// Execute draws the loan through the provider API.
func (h *HTTPProvider) Execute(ctx context.Context, fr domain.FundingRequest) (domain.FundingResult, error) {
	payload := executeRequest{
		Token:         strings.ToLower(fr.Token.Address.Hex()),
		Amount:        fr.Amount,
		OpportunityID: fr.Opportunity.ID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.FundingResult{}, fmt.Errorf("funding: %s: marshal request: %w", h.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return domain.FundingResult{}, fmt.Errorf("funding: %s: create request: %w", h.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.FundingResult{}, fmt.Errorf("funding: %s: execute request: %w: %v", h.name, domain.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.FundingResult{}, fmt.Errorf("funding: %s: unexpected status %d: %s", h.name, resp.StatusCode, string(respBody))
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.FundingResult{}, fmt.Errorf("funding: %s: decode execute response: %w", h.name, err)
	}
	return domain.FundingResult{
		Success: out.Success,
		Fee:     out.Fee,
		TxRef:   out.TxRef,
		Reason:  out.Reason,
	}, nil
}
