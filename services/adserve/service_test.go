package adserve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"adbarter/pkg/config"
	"adbarter/pkg/errutil"
	"adbarter/services/analytics"
	"adbarter/services/testutil"
	"adbarter/services/website"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Exchange.DefaultRefreshSeconds = 30
	cfg.Exchange.DisabledRefreshSeconds = 600
	cfg.Exchange.SafeRefreshSeconds = 60
	cfg.Exchange.CandidateWindow = 20
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &website.Website{}, &analytics.DailyStat{})
	return NewService(ServiceParams{DB: db, Config: testConfig()})
}

func seedSite(t *testing.T, db *gorm.DB, id, userID, category string, active, hasCredits bool) *website.Website {
	t.Helper()

	site := &website.Website{
		ID:         id,
		UserID:     userID,
		Domain:     id + ".example.com",
		Category:   category,
		Active:     active,
		HasCredits: hasCredits,
		Status:     website.StatusApproved,
		ShowAds:    true,
	}
	require.NoError(t, db.Create(site).Error)
	return site
}

func TestServeUnknownPublisher(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Serve(context.Background(), "missing", analytics.DeviceDesktop)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestServePublisherOptedOut(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)
	require.NoError(t, svc.db.Model(pub).Update("show_ads", false).Error)

	decision, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)
	require.True(t, decision.Disabled)
	require.Nil(t, decision.Ad)
	require.Equal(t, 600, decision.RefreshSeconds)
}

func TestServePrefersFundedSameCategory(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)

	want := seedSite(t, svc.db, "funded-tech", "owner-2", "tech", true, true)
	seedSite(t, svc.db, "funded-other", "owner-3", "food", true, true)
	seedSite(t, svc.db, "broke-tech", "owner-4", "tech", true, false)

	for i := 0; i < 10; i++ {
		decision, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
		require.NoError(t, err)
		require.NotNil(t, decision.Ad)
		require.Equal(t, want.ID, decision.Ad.ID)
		require.False(t, decision.Ad.Promotion)
	}
}

func TestServeFallsBackAcrossPools(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)

	// Only an unfunded cross-category site exists: the last pool.
	want := seedSite(t, svc.db, "broke-other", "owner-2", "food", true, false)

	decision, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, decision.Ad)
	require.Equal(t, want.ID, decision.Ad.ID)
}

func TestServePromotionBackstop(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)

	decision, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, decision.Ad)
	require.True(t, decision.Ad.Promotion)
	require.Equal(t, PromotionSiteID, decision.Ad.ID)
}

func TestServeNeverSelectsSelf(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)

	// The publisher is the only active site, so the promotion must win.
	decision, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)
	require.True(t, decision.Ad.Promotion)
}

func TestServeRecordsView(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)
	seedSite(t, svc.db, "adv", "owner-2", "tech", true, true)

	_, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceMobile)
	require.NoError(t, err)

	stored := &website.Website{}
	require.NoError(t, svc.db.First(stored, "id = ?", pub.ID).Error)
	require.Equal(t, int64(1), stored.Views)

	stat := &analytics.DailyStat{}
	require.NoError(t, svc.db.First(stat, "website_id = ? AND date = ?", pub.ID, analytics.Day(time.Now())).Error)
	require.Equal(t, int64(1), stat.Views)
	require.Equal(t, int64(1), stat.ViewsMobile)
	require.Zero(t, stat.Clicks)
}

func TestServePromotionDoesNotRecordView(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)

	_, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)

	stored := &website.Website{}
	require.NoError(t, svc.db.First(stored, "id = ?", pub.ID).Error)
	require.Zero(t, stored.Views)
}

func TestServeRefreshFallsBackToDefault(t *testing.T) {
	svc := newTestService(t)
	pub := seedSite(t, svc.db, "pub", "owner-1", "tech", true, true)

	decision, err := svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)
	require.Equal(t, 30, decision.RefreshSeconds)

	require.NoError(t, svc.db.Model(pub).Update("refresh_seconds", 90).Error)

	decision, err = svc.Serve(context.Background(), pub.ID, analytics.DeviceDesktop)
	require.NoError(t, err)
	require.Equal(t, 90, decision.RefreshSeconds)
}
