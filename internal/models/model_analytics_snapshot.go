package models

import (
	"time"
)

// AnalyticsSnapshot keeps cumulative and weekly counters per account.
// Cumulative counters never reset; weekly counters are zeroed once per
// elapsed reset window, so weekly <= cumulative always holds.
type AnalyticsSnapshot struct {
	ID        string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	AccountID string `gorm:"column:account_id;type:uuid;not null;uniqueIndex" json:"account_id"`

	TotalViews       int64 `gorm:"column:total_views;type:bigint;not null;default:0" json:"total_views"`
	TotalConversions int64 `gorm:"column:total_conversions;type:bigint;not null;default:0" json:"total_conversions"`
	TotalRevenue     int64 `gorm:"column:total_revenue;type:bigint;not null;default:0" json:"total_revenue"`

	WeeklyViews       int64 `gorm:"column:weekly_views;type:bigint;not null;default:0" json:"weekly_views"`
	WeeklyConversions int64 `gorm:"column:weekly_conversions;type:bigint;not null;default:0" json:"weekly_conversions"`
	WeeklyRevenue     int64 `gorm:"column:weekly_revenue;type:bigint;not null;default:0" json:"weekly_revenue"`

	LastResetAt time.Time `gorm:"column:last_reset_at;not null" json:"last_reset_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (AnalyticsSnapshot) TableName() string {
	return "analytics_snapshot"
}

// ConversionRate is computed on read, never stored. Zero when there are no views.
func (s *AnalyticsSnapshot) ConversionRate() float64 {
	if s == nil || s.TotalViews == 0 {
		return 0
	}
	return float64(s.TotalConversions) / float64(s.TotalViews)
}
