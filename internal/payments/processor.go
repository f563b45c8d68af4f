package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/souqline/backend/internal/models"
)

// Processor is the outbound side of the payment processor.
type Processor interface {
	CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	Refund(ctx context.Context, paymentID, idempotencyKey string) error
}

// HTTPProcessor talks to the processor's REST API with a bearer key.
type HTTPProcessor struct {
	baseURL   string
	apiKey    string
	returnURL string
	client    *http.Client
}

func NewHTTPProcessor(baseURL, apiKey, returnURL string) *HTTPProcessor {
	return &HTTPProcessor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		returnURL: returnURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ Processor = (*HTTPProcessor)(nil)

type checkoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *HTTPProcessor) CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	payload := map[string]any{
		"amount":              req.Amount,
		"description":         req.Description,
		"client_reference_id": req.AccountID,
		"metadata":            req.Metadata,
		"success_url":         p.returnURL,
		"cancel_url":          p.returnURL,
	}
	var out checkoutResponse
	if err := p.post(ctx, "/v1/checkout/sessions", req.IdempotencyKey, payload, &out); err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return nil, fmt.Errorf("create checkout: response missing id or url")
	}
	return &models.CheckoutSession{ID: out.ID, RedirectURL: out.URL}, nil
}

func (p *HTTPProcessor) Refund(ctx context.Context, paymentID, idempotencyKey string) error {
	payload := map[string]any{"payment_intent": paymentID}
	if err := p.post(ctx, "/v1/refunds", idempotencyKey, payload, nil); err != nil {
		return fmt.Errorf("refund %s: %w", paymentID, err)
	}
	return nil
}

func (p *HTTPProcessor) post(ctx context.Context, path, idempotencyKey string, payload any, out any) error {
	if p.baseURL == "" || p.apiKey == "" {
		return fmt.Errorf("payment processor is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("processor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
