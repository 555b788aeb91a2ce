package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/fernlabs/tally/pkg/config"
	"github.com/fernlabs/tally/pkg/logctx"
)

// ErrProcessor indicates the payment processor failed, rejected the call or
// timed out. Callers must not infer charge success or failure from it.
var ErrProcessor = errors.New("checkout: processor error")

// Processor is the surface of the external checkout provider used by the
// billing core. The charge result is asynchronous and arrives on the webhook.
type Processor interface {
	// CreateVaultingSession opens a hosted session that vaults a payment
	// method for later invoice charges.
	CreateVaultingSession(ctx context.Context, req *VaultingSessionRequest) (*VaultingSession, error)
	// ChargeInvoice submits an invoice charge. A nil error only means the
	// processor accepted the submission.
	ChargeInvoice(ctx context.Context, req *ChargeRequest) (*ChargeSubmission, error)
}

type VaultingSessionRequest struct {
	CompanyID   string            `json:"company_id"`
	RedirectURL string            `json:"redirect_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type VaultingSession struct {
	SessionID   string `json:"session_id"`
	PurchaseURL string `json:"purchase_url"`
}

type ChargeRequest struct {
	InvoiceID string `json:"invoice_id"`
	// Amount is in minor units of Currency.
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type ChargeSubmission struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// Client is a thin REST client for the checkout provider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: cfg.Checkout.BaseURL,
		apiKey:  cfg.Checkout.APIKey,
		http:    &http.Client{Timeout: cfg.Checkout.Timeout},
		log:     log,
	}
}

func (c *Client) CreateVaultingSession(ctx context.Context, req *VaultingSessionRequest) (*VaultingSession, error) {
	var out VaultingSession
	if err := c.post(ctx, "/v1/vault_sessions", req, &out); err != nil {
		return nil, err
	}
	if out.PurchaseURL == "" {
		return nil, fmt.Errorf("%w: vault session without purchase_url", ErrProcessor)
	}
	return &out, nil
}

func (c *Client) ChargeInvoice(ctx context.Context, req *ChargeRequest) (*ChargeSubmission, error) {
	var out ChargeSubmission
	if err := c.post(ctx, "/v1/charges", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// includes client timeout and context cancellation
		return fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProcessor, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logctx.FromCtx(ctx, c.log).Warnw("checkout request rejected",
			"path", path, "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("%w: status %d", ErrProcessor, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProcessor, err)
	}
	return nil
}
