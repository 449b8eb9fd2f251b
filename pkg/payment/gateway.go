package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds one gateway charge attempt.
const DefaultTimeout = 15 * time.Second

// Gateway charges through a remote payment gateway over HTTP.
type Gateway struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewGateway creates a gateway client. timeout of zero means DefaultTimeout.
func NewGateway(url, apiKey string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gatewayResponse struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"` // "succeeded" | "declined"
	DeclineReason string `json:"decline_reason"`
}

// Charge posts the charge to the gateway. Transport failures and timeouts
// surface as errors; a 402 response is a decline, decided and final.
func (g *Gateway) Charge(ctx context.Context, c Charge) (Receipt, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return Receipt{}, fmt.Errorf("payment: marshal charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/charges", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("payment: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("payment: gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPaymentRequired:
		var gr gatewayResponse
		if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
			return Receipt{}, fmt.Errorf("payment: decode gateway response: %w", err)
		}
		return Receipt{
			Reference:     gr.Reference,
			Succeeded:     gr.Status == "succeeded",
			DeclineReason: gr.DeclineReason,
		}, nil
	default:
		return Receipt{}, fmt.Errorf("payment: gateway status %d", resp.StatusCode)
	}
}
