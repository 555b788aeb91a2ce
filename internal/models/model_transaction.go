package models

import (
	"time"

	"github.com/fernlabs/tally/pkg/types"
)

// Transaction is a single sale/fee event on an account's ledger. Immutable
// after creation except for the invoice assignment set by aggregation.
type Transaction struct {
	ID        string `gorm:"column:id;primary_key;type:uuid;index:idx_account_id_id,priority:2,sort:desc" json:"id"`
	AccountID string `gorm:"column:account_id;type:uuid;not null;index:idx_account_id_id,priority:1" json:"account_id"`
	// ExternalPaymentID is the processor-side payment identifier.
	ExternalPaymentID string  `gorm:"column:external_payment_id;type:varchar(128);not null;uniqueIndex" json:"external_payment_id"`
	ProductID         string  `gorm:"column:product_id;type:varchar(64)" json:"product_id"`
	ProductName       string  `gorm:"column:product_name;type:varchar(255)" json:"product_name"`
	// Amounts are integer minor units (cents). FeeAmount never exceeds SaleAmount.
	SaleAmount int64                   `gorm:"column:sale_amount;type:bigint;not null" json:"sale_amount"`
	FeeAmount  int64                   `gorm:"column:fee_amount;type:bigint;not null" json:"fee_amount"`
	Currency   string                  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Provider   types.PaymentProvider   `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	Status     types.TransactionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// InvoiceID is nil until the aggregator attaches this transaction to an invoice.
	InvoiceID *string   `gorm:"column:invoice_id;type:uuid;default:null;index" json:"invoice_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}

// Net is the sale amount minus the platform fee.
func (t *Transaction) Net() int64 {
	if t == nil {
		return 0
	}
	return t.SaleAmount - t.FeeAmount
}
