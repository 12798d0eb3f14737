package analytics

import (
	"strings"
	"time"
)

const DayFormat = "2006-01-02"

// Day returns the UTC calendar day used to key stats and click locks.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// DailyStat accumulates per-site, per-day counters. Counters only ever
// increase; rows are merged on conflict, never replaced.
type DailyStat struct {
	WebsiteID string `gorm:"column:website_id;primaryKey"`
	Date      string `gorm:"column:date;primaryKey"`

	Views  int64 `gorm:"column:views"`
	Clicks int64 `gorm:"column:clicks"`

	ViewsDesktop int64 `gorm:"column:views_desktop"`
	ViewsMobile  int64 `gorm:"column:views_mobile"`
	ViewsTablet  int64 `gorm:"column:views_tablet"`

	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (DailyStat) TableName() string { return "daily_stats" }

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// DeviceFromUserAgent buckets a user agent into desktop/mobile/tablet.
// Coarse on purpose; this feeds percentage charts, not billing.
func DeviceFromUserAgent(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return DeviceTablet
	case strings.Contains(lower, "mobi") || strings.Contains(lower, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

type Delta struct {
	Views  int64
	Clicks int64
	Device string
}

// Report is the 7-day dashboard aggregate.
type Report struct {
	Views  int64        `json:"views"`
	Clicks int64        `json:"clicks"`
	CTR    float64      `json:"ctr"`
	Daily  []DailyPoint `json:"dailyStats"`
	Device []DeviceStat `json:"deviceStats"`

	LifetimeViews    int64 `json:"lifetimeViews"`
	LifetimeClicks   int64 `json:"lifetimeClicks"`
	LifetimeVisitors int64 `json:"lifetimeVisitors"`
}

type DailyPoint struct {
	Date   string `json:"date"`
	Views  int64  `json:"views"`
	Clicks int64  `json:"clicks"`
}

type DeviceStat struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}
