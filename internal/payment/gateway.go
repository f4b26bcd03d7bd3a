package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"boipaben/server/internal/config"
)

// ErrBadSignature is returned when a webhook payload fails verification.
var ErrBadSignature = errors.New("webhook signature mismatch")

// CheckoutItem is one line of a checkout session.
type CheckoutItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// CreateSessionReq describes a checkout session to open with the gateway.
type CreateSessionReq struct {
	PayerEmail string
	Items      []CheckoutItem
	Amount     float64
	SuccessURL string
	CancelURL  string
}

// Session is an open checkout session. Ref is the gateway's session
// reference; it travels through the webhook back to us and deduplicates the
// resulting order.
type Session struct {
	Ref         string
	CheckoutURL string
	ExpiresAt   string
}

// WebhookEvent is the payload the gateway posts on payment completion.
type WebhookEvent struct {
	SessionRef string  `json:"session_ref"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	PayerEmail string  `json:"payer_email"`
}

// EventStatusPaid is the only webhook status that records a sale.
const EventStatusPaid = "paid"

// Gateway is the payment provider client.
type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionReq) (*Session, error)
	// VerifyWebhookSignature checks the signature header against the raw
	// request body before the payload is trusted.
	VerifyWebhookSignature(sigHeader string, rawBody []byte) error
}

type httpGateway struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

// NewHTTPGateway builds the production gateway client from config.
func NewHTTPGateway(cfg *config.Config) Gateway {
	return &httpGateway{
		baseURL:       cfg.PaymentAPIBaseURL,
		apiKey:        cfg.PaymentAPIKey,
		webhookSecret: cfg.PaymentWebhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *httpGateway) CreateSession(ctx context.Context, req CreateSessionReq) (*Session, error) {
	body := map[string]interface{}{
		"payer_email": req.PayerEmail,
		"items":       req.Items,
		"amount":      req.Amount,
		"success_url": req.SuccessURL,
		"cancel_url":  req.CancelURL,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/checkout/sessions", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway create session failed: %s", resp.Status)
	}

	var out struct {
		Ref         string `json:"ref"`
		CheckoutURL string `json:"checkout_url"`
		ExpiresAt   string `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if out.Ref == "" {
		return nil, errors.New("gateway returned empty session ref")
	}

	return &Session{Ref: out.Ref, CheckoutURL: out.CheckoutURL, ExpiresAt: out.ExpiresAt}, nil
}

func (g *httpGateway) VerifyWebhookSignature(sigHeader string, rawBody []byte) error {
	return VerifySignature(g.webhookSecret, sigHeader, rawBody)
}

// VerifySignature checks an HMAC-SHA256 hex signature over the raw body.
func VerifySignature(secret, sigHeader string, rawBody []byte) error {
	if sigHeader == "" {
		return fmt.Errorf("%w: missing signature header", ErrBadSignature)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
		return ErrBadSignature
	}
	return nil
}

// SignPayload produces the signature the gateway would attach to rawBody.
// Exported for tests and local webhook simulation.
func SignPayload(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
