package billingsetup

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
	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/pkg/config"
)

type fakeProcessor struct {
	sessions []*checkout.VaultingSessionRequest
	err      error
}

func (f *fakeProcessor) CreateVaultingSession(_ context.Context, req *checkout.VaultingSessionRequest) (*checkout.VaultingSession, error) {
	f.sessions = append(f.sessions, req)
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.VaultingSession{SessionID: "vs_1", PurchaseURL: "https://pay.example.com/vs_1"}, nil
}

func (f *fakeProcessor) ChargeInvoice(context.Context, *checkout.ChargeRequest) (*checkout.ChargeSubmission, error) {
	return nil, fmt.Errorf("not used")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:setupdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *account.Service, *fakeProcessor) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Checkout.RedirectURL = "https://app.example.com/billing/done"
	accounts := account.NewService(setupTestDB(t), zap.NewNop().Sugar())
	proc := &fakeProcessor{}
	return NewService(cfg, accounts, proc, zap.NewNop().Sugar()), accounts, proc
}

func TestBeginSetup_CreatesAccountAndSession(t *testing.T) {
	ctx := context.Background()
	svc, accounts, proc := newTestService(t)

	res, err := svc.BeginSetup(ctx, &BeginSetupRequest{
		ExternalUserID:    "user_1",
		ExternalCompanyID: "biz_1",
	})
	require.NoError(t, err)
	require.Equal(t, "https://pay.example.com/vs_1", res.PurchaseURL)

	acc, err := accounts.FindByExternalUserID(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, acc.ID, res.AccountID)
	// BeginSetup must not mark the method connected; the webhook does.
	require.False(t, acc.PaymentMethodConnected)

	require.Len(t, proc.sessions, 1)
	require.Equal(t, "biz_1", proc.sessions[0].CompanyID)
	require.Equal(t, "https://app.example.com/billing/done", proc.sessions[0].RedirectURL)
	require.Equal(t, acc.ID, proc.sessions[0].Metadata["account_id"])
}

func TestBeginSetup_ReusesExistingAccount(t *testing.T) {
	ctx := context.Background()
	svc, accounts, _ := newTestService(t)

	acc, err := accounts.Create(ctx, &account.CreateRequest{ExternalUserID: "user_1", ExternalCompanyID: "biz_1"})
	require.NoError(t, err)

	res, err := svc.BeginSetup(ctx, &BeginSetupRequest{ExternalUserID: "user_1", ExternalCompanyID: "biz_1"})
	require.NoError(t, err)
	require.Equal(t, acc.ID, res.AccountID)
}

func TestBeginSetup_AlreadyConnected(t *testing.T) {
	ctx := context.Background()
	svc, accounts, proc := newTestService(t)

	acc, err := accounts.Create(ctx, &account.CreateRequest{ExternalUserID: "user_1", ExternalCompanyID: "biz_1"})
	require.NoError(t, err)
	require.NoError(t, accounts.MarkPaymentMethodConnected(ctx, acc.ID, true))

	_, err = svc.BeginSetup(ctx, &BeginSetupRequest{ExternalUserID: "user_1"})
	require.ErrorIs(t, err, ErrAlreadyConnected)
	require.Empty(t, proc.sessions)

	// AllowUpdate lets the user vault a replacement method.
	res, err := svc.BeginSetup(ctx, &BeginSetupRequest{ExternalUserID: "user_1", AllowUpdate: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.PurchaseURL)
}

func TestBeginSetup_ProcessorError(t *testing.T) {
	ctx := context.Background()
	svc, _, proc := newTestService(t)
	proc.err = checkout.ErrProcessor

	_, err := svc.BeginSetup(ctx, &BeginSetupRequest{ExternalUserID: "user_1"})
	require.ErrorIs(t, err, checkout.ErrProcessor)
}

func TestBeginSetup_InvalidParams(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.BeginSetup(context.Background(), &BeginSetupRequest{})
	require.Error(t, err)
}
