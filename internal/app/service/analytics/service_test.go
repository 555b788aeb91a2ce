package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/config"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:analyticsdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.AnalyticsSnapshot{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Analytics.ResetInterval = 7 * 24 * time.Hour
	return NewService(cfg, setupTestDB(t), zap.NewNop().Sugar())
}

func TestRecordView_CreatesRowLazily(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	now := time.Now().UTC()

	require.NoError(t, svc.RecordView(ctx, "acc_1", now))
	require.NoError(t, svc.RecordView(ctx, "acc_1", now))

	snap, err := svc.Snapshot(ctx, "acc_1", now)
	require.NoError(t, err)
	require.EqualValues(t, 2, snap.TotalViews)
	require.EqualValues(t, 2, snap.WeeklyViews)
	require.EqualValues(t, 0, snap.TotalConversions)
	require.Zero(t, snap.ConversionRate)
}

func TestRecordConversion_AdvancesRevenueAndRate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.RecordView(ctx, "acc_1", now))
	}
	require.NoError(t, svc.RecordConversion(ctx, "acc_1", 2500, now))

	snap, err := svc.Snapshot(ctx, "acc_1", now)
	require.NoError(t, err)
	require.EqualValues(t, 1, snap.TotalConversions)
	require.EqualValues(t, 2500, snap.TotalRevenue)
	require.EqualValues(t, 2500, snap.WeeklyRevenue)
	require.InDelta(t, 0.25, snap.ConversionRate, 1e-9)
}

func TestRecordConversion_RejectsNegativeRevenue(t *testing.T) {
	svc := newTestService(t)
	require.Error(t, svc.RecordConversion(context.Background(), "acc_1", -1, time.Now()))
}

func TestResetWeekly_ZeroesWeeklyKeepsCumulative(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordView(ctx, "acc_1", start))
	require.NoError(t, svc.RecordConversion(ctx, "acc_1", 900, start))

	later := start.Add(8 * 24 * time.Hour)
	snap, err := svc.Snapshot(ctx, "acc_1", later)
	require.NoError(t, err)

	require.EqualValues(t, 1, snap.TotalViews)
	require.EqualValues(t, 1, snap.TotalConversions)
	require.EqualValues(t, 900, snap.TotalRevenue)
	require.EqualValues(t, 0, snap.WeeklyViews)
	require.EqualValues(t, 0, snap.WeeklyConversions)
	require.EqualValues(t, 0, snap.WeeklyRevenue)
	require.True(t, snap.LastResetAt.Equal(later))
}

func TestResetWeekly_IdempotentWithinWindow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordView(ctx, "acc_1", start))

	resetAt := start.Add(7 * 24 * time.Hour)
	require.NoError(t, svc.ResetWeeklyIfDue(ctx, "acc_1", resetAt))

	// Activity after the reset must survive a repeated call in the same window.
	require.NoError(t, svc.RecordView(ctx, "acc_1", resetAt.Add(time.Hour)))
	require.NoError(t, svc.ResetWeeklyIfDue(ctx, "acc_1", resetAt.Add(2*time.Hour)))

	snap, err := svc.Snapshot(ctx, "acc_1", resetAt.Add(3*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, snap.WeeklyViews)
	require.EqualValues(t, 2, snap.TotalViews)
	require.True(t, snap.LastResetAt.Equal(resetAt))
}

func TestWeeklyNeverExceedsCumulative(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for week := 0; week < 3; week++ {
		for i := 0; i < 5; i++ {
			require.NoError(t, svc.RecordView(ctx, "acc_1", now))
			if i%2 == 0 {
				require.NoError(t, svc.RecordConversion(ctx, "acc_1", 100, now))
			}
		}
		now = now.Add(7 * 24 * time.Hour)
		snap, err := svc.Snapshot(ctx, "acc_1", now)
		require.NoError(t, err)
		require.LessOrEqual(t, snap.WeeklyViews, snap.TotalViews)
		require.LessOrEqual(t, snap.WeeklyConversions, snap.TotalConversions)
		require.LessOrEqual(t, snap.WeeklyRevenue, snap.TotalRevenue)
	}
}

func TestSnapshot_NotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Snapshot(context.Background(), "missing", time.Now())
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestListAccountIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	now := time.Now().UTC()

	require.NoError(t, svc.RecordView(ctx, "acc_1", now))
	require.NoError(t, svc.RecordView(ctx, "acc_2", now))

	ids, err := svc.ListAccountIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"acc_1", "acc_2"}, ids)
}
