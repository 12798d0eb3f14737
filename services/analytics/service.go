package analytics

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Increment merge-upserts the per-day counters for a site. Callers inside a
// settlement transaction pass their tx so the aggregate moves atomically
// with the transfer; the view path passes the base connection.
func Increment(tx *gorm.DB, websiteID, date string, d Delta) error {
	now := time.Now()
	row := &DailyStat{
		WebsiteID: websiteID,
		Date:      date,
		Views:     d.Views,
		Clicks:    d.Clicks,
		UpdatedAt: now,
	}

	assignments := map[string]any{
		"views":      gorm.Expr("views + ?", d.Views),
		"clicks":     gorm.Expr("clicks + ?", d.Clicks),
		"updated_at": now,
	}

	if d.Views > 0 {
		switch d.Device {
		case DeviceMobile:
			row.ViewsMobile = d.Views
			assignments["views_mobile"] = gorm.Expr("views_mobile + ?", d.Views)
		case DeviceTablet:
			row.ViewsTablet = d.Views
			assignments["views_tablet"] = gorm.Expr("views_tablet + ?", d.Views)
		default:
			row.ViewsDesktop = d.Views
			assignments["views_desktop"] = gorm.Expr("views_desktop + ?", d.Views)
		}
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "website_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error
}

type lifetimeCounters struct {
	Views    int64
	Clicks   int64
	Visitors int64
}

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// Report builds the trailing window of daily points plus device breakdown.
// Read failures degrade to a zeroed report; the dashboard renders empty
// charts instead of an error.
func (s *Service) Report(ctx context.Context, websiteID string, days int) *Report {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if days <= 0 {
		days = 7
	}

	today := time.Now().UTC()
	dates := make([]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		dates = append(dates, Day(today.AddDate(0, 0, -i)))
	}

	var (
		rows     []*DailyStat
		lifetime lifetimeCounters
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).
			Where("website_id = ? AND date >= ?", websiteID, dates[0]).
			Find(&rows).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Table("websites").
			Select("views", "clicks", "visitors").
			Where("id = ?", websiteID).
			Scan(&lifetime).Error
	})

	report := &Report{}
	if err := g.Wait(); err != nil {
		zap.L().Error("failed to load daily stats",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("website_id", websiteID),
			zap.Error(err),
		)
		rows = nil
		lifetime = lifetimeCounters{}
	}
	report.LifetimeViews = lifetime.Views
	report.LifetimeClicks = lifetime.Clicks
	report.LifetimeVisitors = lifetime.Visitors

	byDate := make(map[string]*DailyStat, len(rows))
	var desktop, mobile, tablet int64
	for _, r := range rows {
		byDate[r.Date] = r
		desktop += r.ViewsDesktop
		mobile += r.ViewsMobile
		tablet += r.ViewsTablet
	}

	report.Daily = make([]DailyPoint, 0, len(dates))
	for _, date := range dates {
		point := DailyPoint{Date: date}
		if r, ok := byDate[date]; ok {
			point.Views = r.Views
			point.Clicks = r.Clicks
		}
		report.Views += point.Views
		report.Clicks += point.Clicks
		report.Daily = append(report.Daily, point)
	}

	if report.Views > 0 {
		report.CTR = float64(report.Clicks) / float64(report.Views) * 100
	}

	total := desktop + mobile + tablet
	if total > 0 {
		report.Device = []DeviceStat{
			{Name: "Desktop", Value: int64(math.Round(float64(desktop) / float64(total) * 100))},
			{Name: "Mobile", Value: int64(math.Round(float64(mobile) / float64(total) * 100))},
			{Name: "Tablet", Value: int64(math.Round(float64(tablet) / float64(total) * 100))},
		}
	} else {
		report.Device = []DeviceStat{
			{Name: "Desktop", Value: 100},
			{Name: "Mobile", Value: 0},
			{Name: "Tablet", Value: 0},
		}
	}

	return report
}
