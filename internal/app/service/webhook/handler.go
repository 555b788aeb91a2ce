package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	webhooklog "github.com/fernlabs/tally/internal/app/service/webhook_log"
	"github.com/fernlabs/tally/pkg/logctx"
)

// Event types delivered by the checkout provider.
const (
	EventChargeSucceeded = "charge.succeeded"
	EventChargeFailed    = "charge.failed"
	EventSetupCompleted  = "setup.completed"
)

// Event is the provider's webhook envelope. Metadata echoes whatever was sent
// on the originating vaulting session or charge.
type Event struct {
	Type          string            `json:"type"`
	PaymentID     string            `json:"payment_id"`
	InvoiceID     string            `json:"invoice_id"`
	AccountID     string            `json:"account_id"`
	FailureReason string            `json:"failure_reason"`
	Metadata      map[string]string `json:"metadata"`
}

// Handler applies processor webhook events to the billing core. Every
// delivery is logged before handling so failures can be replayed.
type Handler struct {
	logSvc   *webhooklog.Service
	invoices invoice.Aggregator
	accounts *account.Service
	Logger   *zap.SugaredLogger
}

func NewHandler(logSvc *webhooklog.Service, invoices invoice.Aggregator, accounts *account.Service, log *zap.SugaredLogger) *Handler {
	return &Handler{logSvc: logSvc, invoices: invoices, accounts: accounts, Logger: log}
}

// HandleEvent parses and dispatches one delivery. The returned error reflects
// the handling outcome; the delivery itself is always logged.
func (h *Handler) HandleEvent(ctx context.Context, traceID string, payload []byte) (resErr error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if ev.Type == "" {
		return fmt.Errorf("webhook event without type")
	}

	entry, err := h.logSvc.Record(ctx, ev.Type, traceID, payload)
	if err != nil {
		// handle anyway, the processor retries on failure responses
		logctx.FromCtx(ctx, h.Logger).Errorw("failed to log webhook delivery", "err", err)
	}

	accountID := ev.AccountID
	if accountID == "" {
		accountID = ev.Metadata["account_id"]
	}

	defer func() {
		var accPtr, invPtr *string
		if accountID != "" {
			accPtr = &accountID
		}
		if ev.InvoiceID != "" {
			invPtr = &ev.InvoiceID
		}
		h.logSvc.MarkOutcome(ctx, entry, accPtr, invPtr, resErr)
	}()

	switch ev.Type {
	case EventChargeSucceeded:
		_, resErr = h.invoices.RecordChargeResult(ctx, ev.InvoiceID, true, "")
	case EventChargeFailed:
		reason := ev.FailureReason
		if reason == "" {
			reason = "charge failed"
		}
		_, resErr = h.invoices.RecordChargeResult(ctx, ev.InvoiceID, false, reason)
	case EventSetupCompleted:
		if accountID == "" {
			resErr = fmt.Errorf("setup event without account id")
			break
		}
		resErr = h.accounts.MarkPaymentMethodConnected(ctx, accountID, true)
	default:
		resErr = fmt.Errorf("unsupported event type: %s", ev.Type)
	}

	if resErr != nil {
		logctx.FromCtx(ctx, h.Logger).Errorw("webhook handling failed",
			"type", ev.Type, "invoice_id", ev.InvoiceID, "account_id", accountID, "err", resErr)
		return resErr
	}

	logctx.FromCtx(ctx, h.Logger).Infow("webhook handled",
		"type", ev.Type, "invoice_id", ev.InvoiceID, "account_id", accountID)
	return nil
}
