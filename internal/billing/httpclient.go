package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPPaymentClient talks to the payment collaborator's JSON API. The
// idempotency key rides in both the request body and a header so either
// side can enforce at-most-once.
type HTTPPaymentClient struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTPPaymentClient builds a client for the collaborator at base.
func NewHTTPPaymentClient(base, token string) (*HTTPPaymentClient, error) {
	if base == "" {
		return nil, fmt.Errorf("billing: payment url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("billing: parse payment url: %w", err)
	}
	return &HTTPPaymentClient{base: base, token: token, client: &http.Client{}}, nil
}

type chargePayload struct {
	CustomerRef    string `json:"customer_ref"`
	AmountCents    int64  `json:"amount_cents"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description"`
}

type chargeResponse struct {
	Ref    string `json:"ref"`
	Status string `json:"status"` // paid, declined
}

// CreateCharge posts the charge. Timeouts surface as the context error so
// the runner can classify the outcome as unknown.
func (c *HTTPPaymentClient) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body, err := json.Marshal(chargePayload{
		CustomerRef:    req.DriverRef,
		AmountCents:    req.AmountCents,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		return ChargeResult{}, fmt.Errorf("billing: encode charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/charges", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("billing: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ChargeResult{}, ctx.Err()
		}
		return ChargeResult{}, fmt.Errorf("billing: create charge: %w", err)
	}
	defer resp.Body.Close()
	return decodeCharge(resp)
}

// RetrieveCharge looks a charge up by idempotency key. A 404 wraps
// ErrChargeNotFound, telling the reconciler the charge never landed.
func (c *HTTPPaymentClient) RetrieveCharge(ctx context.Context, idempotencyKey string) (ChargeResult, error) {
	u := c.base + "/charges/" + url.PathEscape(idempotencyKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("billing: build request: %w", err)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("billing: retrieve charge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ChargeResult{}, fmt.Errorf("billing: charge %s: %w", idempotencyKey, ErrChargeNotFound)
	}
	return decodeCharge(resp)
}

func decodeCharge(resp *http.Response) (ChargeResult, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("billing: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return ChargeResult{}, fmt.Errorf("billing: collaborator returned %d: %s", resp.StatusCode, raw)
	}
	var decoded chargeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ChargeResult{}, fmt.Errorf("billing: decode response: %w", err)
	}
	return ChargeResult{Ref: decoded.Ref, Paid: decoded.Status == "paid"}, nil
}
