package types

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	// InvoiceStatusPending means the invoice shell exists and transactions
	// may still be attached; no charge has been attempted.
	InvoiceStatusPending InvoiceStatus = "pending"
	// InvoiceStatusCharging means a charge was submitted to the payment
	// processor and the result has not been recorded yet.
	InvoiceStatusCharging InvoiceStatus = "charging"
	// InvoiceStatusPaid is the terminal success state.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusFailed means the last charge attempt failed. The state is
	// retriable until the retry budget is exhausted.
	InvoiceStatusFailed InvoiceStatus = "failed"
)

type TransactionStatus string

const (
	TransactionStatusRecorded TransactionStatus = "recorded"
)

// PaymentProvider identifies the external checkout/payment provider.
type PaymentProvider string

const (
	PaymentProviderCheckout PaymentProvider = "checkout"
	// PaymentProviderInner marks internally generated records (no real charge).
	PaymentProviderInner PaymentProvider = "inner"
)
