package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/fernlabs/tally/internal/app/service/invoice"
	"github.com/fernlabs/tally/internal/app/service/transaction"
	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/response"
	"github.com/fernlabs/tally/pkg/types"
)

type ScanTransactionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type AdminTransactionItem struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	ExternalPaymentID string    `json:"external_payment_id"`
	ProductID         string    `json:"product_id"`
	ProductName       string    `json:"product_name"`
	SaleAmount        int64     `json:"sale_amount"`
	FeeAmount         int64     `json:"fee_amount"`
	NetAmount         int64     `json:"net_amount"`
	Currency          string    `json:"currency"`
	InvoiceID         *string   `json:"invoice_id"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func toAdminTransactionItem(m *models.Transaction) *AdminTransactionItem {
	return &AdminTransactionItem{
		ID:                m.ID,
		AccountID:         m.AccountID,
		ExternalPaymentID: m.ExternalPaymentID,
		ProductID:         m.ProductID,
		ProductName:       m.ProductName,
		SaleAmount:        m.SaleAmount,
		FeeAmount:         m.FeeAmount,
		NetAmount:         m.Net(),
		Currency:          m.Currency,
		InvoiceID:         m.InvoiceID,
		Status:            string(m.Status),
		CreatedAt:         m.CreatedAt,
	}
}

type ScanTransactionsResponse struct {
	Items []*AdminTransactionItem `json:"items"`
	Total int64                   `json:"total"`
}

// @Summary      Scan Transactions (Admin)
// @Description  Retrieves a paginated and filterable list of all transactions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ScanTransactionsRequest true "Scan request with filters, pagination, and sorting"
// @Success      200  {object}  response.APIResponse[ScanTransactionsResponse]
// @Router       /api/v1/admin/scan_transactions [post]
func ApiScanTransactions(recorder transaction.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanTransactionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := recorder.Scan(c.Request.Context(), &transaction.ScanRequest{
			Filters: req.Filters, From: req.From, Size: req.Size,
			SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.Transaction, _ int) *AdminTransactionItem { return toAdminTransactionItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ScanTransactionsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Record Transaction (Admin)
// @Description  Appends a sale/fee transaction to an account's ledger.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body transaction.RecordRequest true "Transaction to record"
// @Success      200  {object}  response.APIResponse[models.Transaction]
// @Router       /api/v1/admin/record_transaction [post]
func ApiRecordTransaction(recorder transaction.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transaction.RecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		txn, err := recorder.Record(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, transaction.ErrInvalidAmount) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(txn))
	}
}

type OpenInvoiceRequest struct {
	AccountID   string    `json:"account_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// @Summary      Open Invoice (Admin)
// @Description  Opens a pending invoice covering a billing period.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body OpenInvoiceRequest true "Invoice period"
// @Success      200  {object}  response.APIResponse[models.Invoice]
// @Router       /api/v1/admin/open_invoice [post]
func ApiOpenInvoice(invoices invoice.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OpenInvoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		inv, err := invoices.Open(c.Request.Context(), req.AccountID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			writeInvoiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(inv))
	}
}

type AttachTransactionRequest struct {
	InvoiceID     string `json:"invoice_id"`
	TransactionID string `json:"transaction_id"`
}

// @Summary      Attach Transaction (Admin)
// @Description  Adds a recorded transaction to a pending invoice and updates its running sums.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body AttachTransactionRequest true "Invoice and transaction ids"
// @Success      200  {object}  response.APIResponse[models.Invoice]
// @Router       /api/v1/admin/attach_transaction [post]
func ApiAttachTransaction(invoices invoice.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AttachTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		inv, err := invoices.AttachTransaction(c.Request.Context(), req.InvoiceID, req.TransactionID)
		if err != nil {
			writeInvoiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(inv))
	}
}

type SubmitChargeRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// @Summary      Submit Charge (Admin)
// @Description  Moves the invoice to charging and submits its total to the checkout provider.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body SubmitChargeRequest true "Invoice id"
// @Success      200  {object}  response.APIResponse[models.Invoice]
// @Router       /api/v1/admin/submit_charge [post]
func ApiSubmitCharge(invoices invoice.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitChargeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		inv, err := invoices.SubmitCharge(c.Request.Context(), req.InvoiceID)
		if err != nil {
			writeInvoiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(inv))
	}
}

func writeInvoiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, invoice.ErrInvoiceNotFound), errors.Is(err, invoice.ErrTransactionNotFound):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
	case errors.Is(err, invoice.ErrInvalidPeriod):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, invoice.ErrInvalidState),
		errors.Is(err, invoice.ErrOverlappingPeriod),
		errors.Is(err, invoice.ErrVersionConflict):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
	default:
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
	}
}

func RegisterAdminRoutes(r gin.IRouter, recorder transaction.Recorder, invoices invoice.Aggregator) {
	r.POST("/scan_transactions", ApiScanTransactions(recorder))
	r.POST("/record_transaction", ApiRecordTransaction(recorder))
	r.POST("/open_invoice", ApiOpenInvoice(invoices))
	r.POST("/attach_transaction", ApiAttachTransaction(invoices))
	r.POST("/submit_charge", ApiSubmitCharge(invoices))
}
