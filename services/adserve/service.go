package adserve

import (
	"context"
	"math/rand"
	"time"

	"adbarter/pkg/config"
	"adbarter/pkg/db/option"
	"adbarter/pkg/errutil"
	"adbarter/pkg/repository"
	"adbarter/services/analytics"
	"adbarter/services/website"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	cfg   *config.Config
	sites repository.Repository[website.Website]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		cfg:   p.Config,
		sites: repository.ProvideStore[website.Website](p.DB),
	}
}

// poolSpec is one rung of the waterfall, tried in order.
type poolSpec struct {
	sameCategory bool
	creditOnly   bool
}

var waterfall = []poolSpec{
	{sameCategory: true, creditOnly: true},
	{sameCategory: false, creditOnly: true},
	{sameCategory: true, creditOnly: false},
	{sameCategory: false, creditOnly: false},
}

// Serve picks an ad for the publisher. Backend failures mid-waterfall
// degrade to a safe no-ad decision; only an unknown publisher is an error.
func (s *Service) Serve(ctx context.Context, publisherID, device string) (*Decision, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("publisher_id", publisherID),
	)

	publisher, err := s.sites.FindOne(ctx, &website.Website{ID: publisherID})
	if err != nil {
		zapLog.Error("failed to load publisher", zap.Error(err))
		return s.safeDefault(), nil
	}
	if publisher == nil {
		return nil, errutil.NotFound("website not found", nil)
	}

	if !publisher.ShowAds {
		return &Decision{
			Disabled:       true,
			RefreshSeconds: s.cfg.Exchange.DisabledRefreshSeconds,
		}, nil
	}

	candidate, err := s.pick(ctx, publisher)
	if err != nil {
		zapLog.Error("ad selection failed", zap.Error(err))
		return s.safeDefault(), nil
	}

	if real, ok := candidate.(RealAd); ok {
		s.recordView(ctx, publisher, device)
		zapLog.Debug("ad selected", zap.String("advertiser_id", real.Site.ID))
	}

	refresh := publisher.RefreshSeconds
	if refresh <= 0 {
		refresh = s.cfg.Exchange.DefaultRefreshSeconds
	}

	return &Decision{
		Ad:             adFromCandidate(candidate),
		RefreshSeconds: refresh,
	}, nil
}

// pick walks the waterfall and returns the first non-empty pool's random
// candidate, falling back to the promotion.
func (s *Service) pick(ctx context.Context, publisher *website.Website) (Candidate, error) {
	for _, pool := range waterfall {
		candidates, err := s.queryPool(ctx, publisher, pool)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			return RealAd{Site: candidates[rand.Intn(len(candidates))]}, nil
		}
	}

	return SystemPromotion{}, nil
}

func (s *Service) queryPool(ctx context.Context, publisher *website.Website, pool poolSpec) ([]*website.Website, error) {
	query := &website.Website{Active: true}
	if pool.sameCategory {
		query.Category = publisher.Category
	}
	if pool.creditOnly {
		query.HasCredits = true
	}

	rows, err := s.sites.Find(ctx, query, option.WithLimit(s.cfg.Exchange.CandidateWindow))
	if err != nil {
		return nil, err
	}

	// The publisher never advertises to itself.
	out := rows[:0]
	for _, row := range rows {
		if row.ID == publisher.ID {
			continue
		}
		out = append(out, row)
	}

	return out, nil
}

// recordView bumps the publisher's lifetime view counter and the per-day
// aggregate. Both are fire-and-forget relative to the response.
func (s *Service) recordView(ctx context.Context, publisher *website.Website, device string) {
	if err := s.db.WithContext(ctx).Model(&website.Website{}).
		Where("id = ?", publisher.ID).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
		zap.L().Warn("failed to increment view counter", zap.String("site_id", publisher.ID), zap.Error(err))
	}

	if err := analytics.Increment(s.db.WithContext(ctx), publisher.ID, analytics.Day(time.Now()), analytics.Delta{
		Views:  1,
		Device: device,
	}); err != nil {
		zap.L().Warn("failed to upsert daily views", zap.String("site_id", publisher.ID), zap.Error(err))
	}
}

func (s *Service) safeDefault() *Decision {
	return &Decision{RefreshSeconds: s.cfg.Exchange.SafeRefreshSeconds}
}
