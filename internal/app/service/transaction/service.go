package transaction

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/tool"
	types "github.com/fernlabs/tally/pkg/types"
)

const defaultListLimit = 20

var (
	// ErrInvalidAmount is returned when sale/fee amounts violate
	// saleAmount >= 0 and 0 <= feeAmount <= saleAmount.
	ErrInvalidAmount = errors.New("invalid sale or fee amount")
	// ErrTransactionNotFound is returned by lookups when no row matches.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Recorder appends sale/fee events to an account's ledger and serves listings.
type Recorder interface {
	Record(ctx context.Context, req *RecordRequest) (*models.Transaction, error)
	ListRecent(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	// Scan implements filtered/paginated listing for admin pages.
	Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error)
}

type RecordRequest struct {
	AccountID         string `json:"account_id"`
	ExternalPaymentID string `json:"external_payment_id"`
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	SaleAmount        int64  `json:"sale_amount"`
	FeeAmount         int64  `json:"fee_amount"`
	Currency          string `json:"currency"`
	// Provider defaults to the checkout processor when empty.
	Provider types.PaymentProvider `json:"provider"`
}

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.Transaction `json:"items"`
	Total int64                 `json:"total"`
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) Recorder {
	return &Service{db: db, log: log}
}

// Record appends a new transaction with status "recorded" and no invoice
// assignment. Amounts are validated, the row is immutable afterwards.
func (s *Service) Record(ctx context.Context, req *RecordRequest) (*models.Transaction, error) {
	if req == nil || req.AccountID == "" || req.ExternalPaymentID == "" {
		return nil, fmt.Errorf("invalid params: account id and external payment id required")
	}
	if req.SaleAmount < 0 || req.FeeAmount < 0 || req.FeeAmount > req.SaleAmount {
		return nil, ErrInvalidAmount
	}

	provider := req.Provider
	if provider == "" {
		provider = types.PaymentProviderCheckout
	}

	txn := &models.Transaction{
		ID:                tool.GenerateUUIDV7(),
		AccountID:         req.AccountID,
		ExternalPaymentID: req.ExternalPaymentID,
		ProductID:         req.ProductID,
		ProductName:       req.ProductName,
		SaleAmount:        req.SaleAmount,
		FeeAmount:         req.FeeAmount,
		Currency:          req.Currency,
		Provider:          provider,
		Status:            types.TransactionStatusRecorded,
	}
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("transaction recorded",
		"transaction_id", txn.ID,
		"account_id", txn.AccountID,
		"sale_amount", txn.SaleAmount,
		"fee_amount", txn.FeeAmount,
		"currency", txn.Currency,
	)
	return txn, nil
}

// ListRecent returns the account's transactions ordered by creation time
// descending, capped at limit (default 20).
func (s *Service) ListRecent(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var items []*models.Transaction
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return items, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &txn, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan implements paginated admin listing with filters.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Transaction{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []*models.Transaction

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &ScanResponse{Items: rows, Total: total}, nil
}
