package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/pkg/config"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/metrics"
	"github.com/fernlabs/tally/pkg/tool"
	types "github.com/fernlabs/tally/pkg/types"
)

var (
	// ErrInvoiceNotFound is returned by lookups when no invoice matches.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrTransactionNotFound is returned by AttachTransaction when the
	// referenced transaction does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidState is returned when an operation is illegal for the
	// invoice's current status.
	ErrInvalidState = errors.New("operation not allowed in current invoice state")
	// ErrInvalidPeriod is returned by Open when periodStart >= periodEnd.
	ErrInvalidPeriod = errors.New("invalid billing period")
	// ErrOverlappingPeriod is returned by Open when an existing invoice of the
	// account intersects the requested window.
	ErrOverlappingPeriod = errors.New("billing period overlaps an existing invoice")
	// ErrVersionConflict signals a concurrent writer won the optimistic-lock
	// race; the operation may be retried by the caller.
	ErrVersionConflict = errors.New("invoice modified concurrently")
)

// Aggregator owns the invoice state machine:
//
//	pending -> charging -> paid
//	pending -> charging -> failed -> charging -> ... -> failed (terminal
//	once the retry budget is spent)
type Aggregator interface {
	Open(ctx context.Context, accountID string, periodStart, periodEnd time.Time) (*models.Invoice, error)
	AttachTransaction(ctx context.Context, invoiceID, transactionID string) (*models.Invoice, error)
	SubmitCharge(ctx context.Context, invoiceID string) (*models.Invoice, error)
	RecordChargeResult(ctx context.Context, invoiceID string, success bool, failureReason string) (*models.Invoice, error)
	List(ctx context.Context, accountID string, limit int) ([]*models.Invoice, error)
	ListRetriable(ctx context.Context, limit int) ([]*models.Invoice, error)
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
}

type Service struct {
	cfg       *config.Config
	db        *gorm.DB
	log       *zap.SugaredLogger
	processor checkout.Processor
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, processor checkout.Processor) Aggregator {
	return &Service{cfg: cfg, db: db, log: log, processor: processor}
}

func (s *Service) maxRetries() int {
	if s.cfg != nil && s.cfg.Billing.MaxChargeRetries > 0 {
		return s.cfg.Billing.MaxChargeRetries
	}
	return 3
}

// Open creates a pending invoice covering the half-open window
// [periodStart, periodEnd). Any intersection with an existing invoice of the
// same account fails with ErrOverlappingPeriod.
func (s *Service) Open(ctx context.Context, accountID string, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	if accountID == "" {
		return nil, fmt.Errorf("invalid params: account id required")
	}
	if !periodStart.Before(periodEnd) {
		return nil, ErrInvalidPeriod
	}

	inv := &models.Invoice{
		ID:          tool.GenerateUUIDV7(),
		AccountID:   accountID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      types.InvoiceStatusPending,
		TransactionIDs: datatypes.JSONSlice[string]{},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var overlapping int64
		err := tx.Model(&models.Invoice{}).
			Where("account_id = ? AND period_start < ? AND ? < period_end", accountID, periodEnd, periodStart).
			Count(&overlapping).Error
		if err != nil {
			return fmt.Errorf("failed to check period overlap: %w", err)
		}
		if overlapping > 0 {
			return ErrOverlappingPeriod
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		if errors.Is(err, ErrOverlappingPeriod) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open invoice: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("invoice opened",
		"invoice_id", inv.ID, "account_id", accountID,
		"period_start", periodStart, "period_end", periodEnd)
	return inv, nil
}

// AttachTransaction adds a recorded transaction to a pending invoice,
// maintaining the running sums. Legal only while the invoice is pending.
func (s *Service) AttachTransaction(ctx context.Context, invoiceID, transactionID string) (*models.Invoice, error) {
	var out *models.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := findByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != types.InvoiceStatusPending {
			return ErrInvalidState
		}

		var txn models.Transaction
		if err := tx.Where("id = ?", transactionID).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("failed to load transaction: %w", err)
		}
		if txn.AccountID != inv.AccountID {
			return ErrInvalidState
		}
		if txn.InvoiceID != nil {
			if *txn.InvoiceID == inv.ID {
				out = inv // already attached, idempotent
				return nil
			}
			return ErrInvalidState
		}

		ids := append([]string(inv.TransactionIDs), txn.ID)
		currency := inv.Currency
		if currency == "" {
			currency = txn.Currency
		}

		updates := map[string]any{
			"total_sales":       inv.TotalSales + txn.SaleAmount,
			"total_fee":         inv.TotalFee + txn.FeeAmount,
			"transaction_count": inv.TransactionCount + 1,
			"transaction_ids":   datatypes.JSONSlice[string](ids),
			"currency":          currency,
			"version":           inv.Version + 1,
		}
		if err := casUpdate(ctx, tx, inv, updates); err != nil {
			return err
		}

		claim := tx.Model(&models.Transaction{}).
			Where("id = ? AND invoice_id IS NULL", txn.ID).
			Update("invoice_id", inv.ID)
		if claim.Error != nil {
			return fmt.Errorf("failed to assign transaction: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			// a concurrent attach claimed the transaction first; roll back
			// the sums updated above
			return ErrVersionConflict
		}

		return s.reload(ctx, tx, inv.ID, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitCharge moves a pending or retriable failed invoice to charging and
// submits the total to the processor. Submitting an invoice that is already
// charging is a no-op returning the current state. A processor timeout leaves
// the invoice charging; the webhook or a reconciliation poll supplies the
// eventual result.
func (s *Service) SubmitCharge(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	inv, err := s.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch inv.Status {
	case types.InvoiceStatusCharging:
		return inv, nil
	case types.InvoiceStatusPaid:
		return nil, ErrInvalidState
	case types.InvoiceStatusFailed:
		if inv.RetryCount >= s.maxRetries() {
			return nil, ErrInvalidState
		}
	case types.InvoiceStatusPending:
	default:
		return nil, ErrInvalidState
	}

	// Reserve the charging state before the network call so a concurrent
	// submit observes charging and no-ops.
	if err := casUpdate(ctx, s.db.WithContext(ctx), inv, map[string]any{
		"status":  types.InvoiceStatusCharging,
		"version": inv.Version + 1,
	}); err != nil {
		return nil, err
	}

	currency := inv.Currency
	if currency == "" {
		currency = "usd"
	}

	sub, err := s.processor.ChargeInvoice(ctx, &checkout.ChargeRequest{
		InvoiceID: inv.ID,
		Amount:    inv.TotalFee,
		Currency:  currency,
		Metadata:  map[string]string{"account_id": inv.AccountID},
	})
	metrics.ChargesSubmitted.Inc()
	if err != nil {
		// The charge may or may not have reached the processor; keep the
		// invoice charging and let reconciliation decide.
		logctx.FromCtx(ctx, s.log).Errorw("charge submission failed",
			"invoice_id", inv.ID, "err", err)
		return nil, err
	}

	if sub.PaymentID != "" {
		if err := s.db.WithContext(ctx).Model(&models.Invoice{}).
			Where("id = ?", inv.ID).
			Update("external_payment_id", sub.PaymentID).Error; err != nil {
			return nil, fmt.Errorf("failed to store payment id: %w", err)
		}
	}

	return s.FindByID(ctx, invoiceID)
}

// RecordChargeResult applies the processor's asynchronous outcome. Success
// finalizes the invoice as paid; failure increments the retry counter and
// leaves the invoice retriable until the budget is spent.
func (s *Service) RecordChargeResult(ctx context.Context, invoiceID string, success bool, failureReason string) (*models.Invoice, error) {
	inv, err := s.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != types.InvoiceStatusCharging {
		return nil, ErrInvalidState
	}

	var updates map[string]any
	if success {
		now := time.Now()
		updates = map[string]any{
			"status":  types.InvoiceStatusPaid,
			"paid_at": &now,
			"version": inv.Version + 1,
		}
		metrics.ChargeResults.WithLabelValues("success").Inc()
	} else {
		updates = map[string]any{
			"status":         types.InvoiceStatusFailed,
			"retry_count":    inv.RetryCount + 1,
			"failure_reason": failureReason,
			"version":        inv.Version + 1,
		}
		metrics.ChargeResults.WithLabelValues("failure").Inc()
	}

	if err := casUpdate(ctx, s.db.WithContext(ctx), inv, updates); err != nil {
		return nil, err
	}

	out, err := s.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("charge result recorded",
		"invoice_id", inv.ID,
		"success", success,
		"retry_count", out.RetryCount,
		"terminal", out.Terminal(s.maxRetries()),
	)
	return out, nil
}

// List returns the account's invoices ordered by creation time descending.
func (s *Service) List(ctx context.Context, accountID string, limit int) ([]*models.Invoice, error) {
	if limit <= 0 {
		limit = 20
	}
	var items []*models.Invoice
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return items, nil
}

// ListRetriable returns failed invoices that still have retry budget left,
// oldest first. Used by the charge-retry sweep.
func (s *Service) ListRetriable(ctx context.Context, limit int) ([]*models.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []*models.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", types.InvoiceStatusFailed, s.maxRetries()).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list retriable invoices: %w", err)
	}
	return items, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	return findByID(ctx, s.db.WithContext(ctx), id)
}

func (s *Service) reload(ctx context.Context, tx *gorm.DB, id string, out **models.Invoice) error {
	inv, err := findByID(ctx, tx, id)
	if err != nil {
		return err
	}
	*out = inv
	return nil
}

func findByID(ctx context.Context, tx *gorm.DB, id string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return &inv, nil
}

// casUpdate applies updates guarded by the invoice's version column. A zero
// rows-affected result means a concurrent writer got there first.
func casUpdate(ctx context.Context, tx *gorm.DB, inv *models.Invoice, updates map[string]any) error {
	res := tx.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update invoice: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
