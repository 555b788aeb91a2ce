package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fernlabs/tally/pkg/types"
)

// Invoice rolls up an account's transactions for one billing period
// [PeriodStart, PeriodEnd) and tracks the charge lifecycle.
type Invoice struct {
	ID        string `gorm:"column:id;primary_key;type:uuid;index:idx_invoice_account_id,priority:2,sort:desc" json:"id"`
	AccountID string `gorm:"column:account_id;type:uuid;not null;index:idx_invoice_account_id,priority:1" json:"account_id"`

	PeriodStart time.Time `gorm:"column:period_start;not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"column:period_end;not null" json:"period_end"`

	// Running sums over attached transactions; maintained by the aggregator,
	// never recomputed from scratch on read.
	TotalSales       int64                      `gorm:"column:total_sales;type:bigint;not null;default:0" json:"total_sales"`
	TotalFee         int64                      `gorm:"column:total_fee;type:bigint;not null;default:0" json:"total_fee"`
	TransactionCount int                        `gorm:"column:transaction_count;not null;default:0" json:"transaction_count"`
	TransactionIDs   datatypes.JSONSlice[string] `gorm:"column:transaction_ids;type:jsonb;default:'[]'" json:"transaction_ids"`

	// Currency is taken from the first attached transaction and passed through
	// to the processor unchanged; no conversion happens here.
	Currency string `gorm:"column:currency;type:varchar(8)" json:"currency"`

	Status types.InvoiceStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// ExternalPaymentID is set once a charge has been submitted to the processor.
	ExternalPaymentID *string    `gorm:"column:external_payment_id;type:varchar(128);default:null" json:"external_payment_id"`
	FailureReason     *string    `gorm:"column:failure_reason;type:varchar(255);default:null" json:"failure_reason"`
	PaidAt            *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	RetryCount        int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`

	// Version implements optimistic concurrency: every state-changing update
	// runs WHERE id = ? AND version = ? and bumps the counter.
	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoice"
}

// Terminal reports whether no further state transition is possible.
func (inv *Invoice) Terminal(maxRetries int) bool {
	if inv == nil {
		return false
	}
	switch inv.Status {
	case types.InvoiceStatusPaid:
		return true
	case types.InvoiceStatusFailed:
		return inv.RetryCount >= maxRetries
	}
	return false
}

// Overlaps reports whether the invoice period intersects [start, end).
func (inv *Invoice) Overlaps(start, end time.Time) bool {
	return inv != nil && start.Before(inv.PeriodEnd) && inv.PeriodStart.Before(end)
}
