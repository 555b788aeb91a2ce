package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	webhooklog "github.com/fernlabs/tally/internal/app/service/webhook_log"
	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/pkg/config"
	types "github.com/fernlabs/tally/pkg/types"
)

type fakeProcessor struct{}

func (fakeProcessor) CreateVaultingSession(context.Context, *checkout.VaultingSessionRequest) (*checkout.VaultingSession, error) {
	return &checkout.VaultingSession{SessionID: "vs_1", PurchaseURL: "https://pay.example.com/vs_1"}, nil
}

func (fakeProcessor) ChargeInvoice(context.Context, *checkout.ChargeRequest) (*checkout.ChargeSubmission, error) {
	return &checkout.ChargeSubmission{PaymentID: "pay_1", Status: "accepted"}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:webhookdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.Invoice{}, &models.WebhookEventLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestHandler(t *testing.T) (*Handler, invoice.Aggregator, *account.Service, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{}
	cfg.Billing.MaxChargeRetries = 3

	accounts := account.NewService(db, log)
	invoices := invoice.NewService(cfg, db, log, fakeProcessor{})
	logSvc := webhooklog.New(db, log)
	return NewHandler(logSvc, invoices, accounts, log), invoices, accounts, db
}

func chargingInvoice(t *testing.T, invoices invoice.Aggregator) *models.Invoice {
	t.Helper()
	ctx := context.Background()

	inv, err := invoices.Open(ctx, "acc_1", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	inv, err = invoices.SubmitCharge(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, types.InvoiceStatusCharging, inv.Status)
	return inv
}

func TestHandleEvent_ChargeSucceeded(t *testing.T) {
	ctx := context.Background()
	h, invoices, _, db := newTestHandler(t)
	inv := chargingInvoice(t, invoices)

	payload := fmt.Sprintf(`{"type":"charge.succeeded","invoice_id":%q,"payment_id":"pay_1"}`, inv.ID)
	require.NoError(t, h.HandleEvent(ctx, "trace_1", []byte(payload)))

	got, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, types.InvoiceStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)

	var logs int64
	require.NoError(t, db.Model(&models.WebhookEventLog{}).Count(&logs).Error)
	require.EqualValues(t, 1, logs)
}

func TestHandleEvent_ChargeFailed(t *testing.T) {
	ctx := context.Background()
	h, invoices, _, _ := newTestHandler(t)
	inv := chargingInvoice(t, invoices)

	payload := fmt.Sprintf(`{"type":"charge.failed","invoice_id":%q,"failure_reason":"card_declined"}`, inv.ID)
	require.NoError(t, h.HandleEvent(ctx, "trace_1", []byte(payload)))

	got, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, types.InvoiceStatusFailed, got.Status)
	require.EqualValues(t, 1, got.RetryCount)
	require.NotNil(t, got.FailureReason)
	require.Equal(t, "card_declined", *got.FailureReason)
}

func TestHandleEvent_SetupCompleted(t *testing.T) {
	ctx := context.Background()
	h, _, accounts, _ := newTestHandler(t)

	acc, err := accounts.Create(ctx, &account.CreateRequest{ExternalUserID: "user_1", ExternalCompanyID: "biz_1"})
	require.NoError(t, err)

	payload := fmt.Sprintf(`{"type":"setup.completed","metadata":{"account_id":%q}}`, acc.ID)
	require.NoError(t, h.HandleEvent(ctx, "trace_1", []byte(payload)))

	got, err := accounts.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.PaymentMethodConnected)
}

func TestHandleEvent_ResultForNonChargingInvoice(t *testing.T) {
	ctx := context.Background()
	h, invoices, _, _ := newTestHandler(t)

	inv, err := invoices.Open(ctx, "acc_1", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	payload := fmt.Sprintf(`{"type":"charge.succeeded","invoice_id":%q}`, inv.ID)
	require.ErrorIs(t, h.HandleEvent(ctx, "trace_1", []byte(payload)), invoice.ErrInvalidState)
}

func TestHandleEvent_BadPayload(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	require.Error(t, h.HandleEvent(context.Background(), "t", []byte("not json")))
	require.Error(t, h.HandleEvent(context.Background(), "t", []byte(`{"invoice_id":"x"}`)))
	require.Error(t, h.HandleEvent(context.Background(), "t", []byte(`{"type":"payout.created"}`)))
}
