package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/config"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/metrics"
	"github.com/fernlabs/tally/pkg/tool"
)

// ErrSnapshotNotFound is returned by Snapshot for accounts that never
// recorded a view or conversion.
var ErrSnapshotNotFound = errors.New("analytics snapshot not found")

const defaultResetInterval = 7 * 24 * time.Hour

// Snapshot is the read model returned to callers; ConversionRate is computed
// here, never stored.
type Snapshot struct {
	AccountID         string    `json:"account_id"`
	TotalViews        int64     `json:"total_views"`
	TotalConversions  int64     `json:"total_conversions"`
	ConversionRate    float64   `json:"conversion_rate"`
	TotalRevenue      int64     `json:"total_revenue"`
	WeeklyViews       int64     `json:"weekly_views"`
	WeeklyConversions int64     `json:"weekly_conversions"`
	WeeklyRevenue     int64     `json:"weekly_revenue"`
	LastResetAt       time.Time `json:"last_reset_at"`
}

type Service struct {
	cfg *config.Config
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, log: log}
}

func (s *Service) resetInterval() time.Duration {
	if s.cfg != nil && s.cfg.Analytics.ResetInterval > 0 {
		return s.cfg.Analytics.ResetInterval
	}
	return defaultResetInterval
}

// RecordView bumps the view counters. The weekly and cumulative columns move
// in a single UPDATE so weekly <= cumulative can never be observed broken.
func (s *Service) RecordView(ctx context.Context, accountID string, now time.Time) error {
	return s.increment(ctx, accountID, now, map[string]any{
		"total_views":  gorm.Expr("total_views + 1"),
		"weekly_views": gorm.Expr("weekly_views + 1"),
	})
}

// RecordConversion bumps the conversion counters and adds revenue.
func (s *Service) RecordConversion(ctx context.Context, accountID string, revenue int64, now time.Time) error {
	if revenue < 0 {
		return fmt.Errorf("invalid params: revenue must be non-negative")
	}
	return s.increment(ctx, accountID, now, map[string]any{
		"total_conversions":  gorm.Expr("total_conversions + 1"),
		"weekly_conversions": gorm.Expr("weekly_conversions + 1"),
		"total_revenue":      gorm.Expr("total_revenue + ?", revenue),
		"weekly_revenue":     gorm.Expr("weekly_revenue + ?", revenue),
	})
}

func (s *Service) increment(ctx context.Context, accountID string, now time.Time, updates map[string]any) error {
	if accountID == "" {
		return fmt.Errorf("invalid params: account id required")
	}

	res := s.db.WithContext(ctx).Model(&models.AnalyticsSnapshot{}).
		Where("account_id = ?", accountID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update counters: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// First event for this account: create the row, ignoring a concurrent
	// creator, then apply the increment on whichever row won.
	snap := &models.AnalyticsSnapshot{
		ID:          tool.GenerateUUIDV7(),
		AccountID:   accountID,
		LastResetAt: now,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(snap).Error; err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	res = s.db.WithContext(ctx).Model(&models.AnalyticsSnapshot{}).
		Where("account_id = ?", accountID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update counters: %w", res.Error)
	}
	return nil
}

// ResetWeeklyIfDue zeroes the weekly counters when at least one reset
// interval has elapsed since the last reset. The guard lives in the WHERE
// clause, so concurrent callers reset at most once per window and repeat
// calls within a window are no-ops.
func (s *Service) ResetWeeklyIfDue(ctx context.Context, accountID string, now time.Time) error {
	threshold := now.Add(-s.resetInterval())

	res := s.db.WithContext(ctx).Model(&models.AnalyticsSnapshot{}).
		Where("account_id = ? AND last_reset_at <= ?", accountID, threshold).
		Updates(map[string]any{
			"weekly_views":       0,
			"weekly_conversions": 0,
			"weekly_revenue":     0,
			"last_reset_at":      now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to reset weekly counters: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.WeeklyResets.Inc()
		logctx.FromCtx(ctx, s.log).Infow("weekly counters reset",
			"account_id", accountID, "reset_at", now)
	}
	return nil
}

// Snapshot runs the due-reset first, then reads, so callers always see
// "this week's" figures.
func (s *Service) Snapshot(ctx context.Context, accountID string, now time.Time) (*Snapshot, error) {
	if err := s.ResetWeeklyIfDue(ctx, accountID, now); err != nil {
		return nil, err
	}

	var row models.AnalyticsSnapshot
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return &Snapshot{
		AccountID:         row.AccountID,
		TotalViews:        row.TotalViews,
		TotalConversions:  row.TotalConversions,
		ConversionRate:    row.ConversionRate(),
		TotalRevenue:      row.TotalRevenue,
		WeeklyViews:       row.WeeklyViews,
		WeeklyConversions: row.WeeklyConversions,
		WeeklyRevenue:     row.WeeklyRevenue,
		LastResetAt:       row.LastResetAt,
	}, nil
}

// ListAccountIDs returns ids of all accounts with a snapshot row. Used by the
// weekly-reset sweep.
func (s *Service) ListAccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.AnalyticsSnapshot{}).
		Pluck("account_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshot accounts: %w", err)
	}
	return ids, nil
}
