package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fernlabs/tally/internal/app/service/analytics"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/pkg/config"
	types "github.com/fernlabs/tally/pkg/types"
)

type fakeProcessor struct {
	charges int
}

func (f *fakeProcessor) CreateVaultingSession(context.Context, *checkout.VaultingSessionRequest) (*checkout.VaultingSession, error) {
	return &checkout.VaultingSession{SessionID: "vs", PurchaseURL: "https://pay.example.com/vs"}, nil
}

func (f *fakeProcessor) ChargeInvoice(context.Context, *checkout.ChargeRequest) (*checkout.ChargeSubmission, error) {
	f.charges++
	return &checkout.ChargeSubmission{PaymentID: fmt.Sprintf("pay_%d", f.charges), Status: "accepted"}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:schedulerdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Invoice{}, &models.AnalyticsSnapshot{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestScheduler(t *testing.T) (*Scheduler, *analytics.Service, invoice.Aggregator, *fakeProcessor) {
	t.Helper()

	db := setupTestDB(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{}
	cfg.Billing.MaxChargeRetries = 3
	cfg.Analytics.ResetInterval = 7 * 24 * time.Hour

	analyticsSvc := analytics.NewService(cfg, db, log)
	proc := &fakeProcessor{}
	invoices := invoice.NewService(cfg, db, log, proc)
	return New(cfg, analyticsSvc, invoices, log), analyticsSvc, invoices, proc
}

func TestChargeRetrySweep_ResubmitsFailedInvoices(t *testing.T) {
	ctx := context.Background()
	s, _, invoices, proc := newTestScheduler(t)

	inv, err := invoices.Open(ctx, "acc_1", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	_, err = invoices.SubmitCharge(ctx, inv.ID)
	require.NoError(t, err)
	_, err = invoices.RecordChargeResult(ctx, inv.ID, false, "card_declined")
	require.NoError(t, err)
	require.Equal(t, 1, proc.charges)

	s.runChargeRetrySweep()

	got, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, types.InvoiceStatusCharging, got.Status)
	require.Equal(t, 2, proc.charges)
}

func TestChargeRetrySweep_SkipsTerminalInvoices(t *testing.T) {
	ctx := context.Background()
	s, _, invoices, proc := newTestScheduler(t)

	inv, err := invoices.Open(ctx, "acc_1", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = invoices.SubmitCharge(ctx, inv.ID)
		require.NoError(t, err)
		_, err = invoices.RecordChargeResult(ctx, inv.ID, false, "card_declined")
		require.NoError(t, err)
	}
	require.Equal(t, 3, proc.charges)

	s.runChargeRetrySweep()
	require.Equal(t, 3, proc.charges)

	got, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, types.InvoiceStatusFailed, got.Status)
}

func TestWeeklyResetSweep_ResetsDueAccounts(t *testing.T) {
	ctx := context.Background()
	s, analyticsSvc, _, _ := newTestScheduler(t)
	past := time.Now().Add(-8 * 24 * time.Hour)

	require.NoError(t, analyticsSvc.RecordView(ctx, "acc_1", past))
	require.NoError(t, analyticsSvc.RecordView(ctx, "acc_2", past))

	s.runWeeklyResetSweep()

	for _, id := range []string{"acc_1", "acc_2"} {
		snap, err := analyticsSvc.Snapshot(ctx, id, time.Now())
		require.NoError(t, err)
		require.EqualValues(t, 0, snap.WeeklyViews)
		require.EqualValues(t, 1, snap.TotalViews)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	s.cfg.Scheduler.WeeklyResetSpec = "@hourly"
	s.cfg.Scheduler.ChargeRetrySpec = "@every 5m"

	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerStart_BadSpec(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	s.cfg.Scheduler.WeeklyResetSpec = "not a cron spec"
	require.Error(t, s.Start())
}
