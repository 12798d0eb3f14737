package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"adbarter/pkg/authtoken"
	"adbarter/pkg/authz"
	"adbarter/pkg/config"
	"adbarter/pkg/health"
	"adbarter/services/account"
	"adbarter/services/adserve"
	"adbarter/services/analytics"
	"adbarter/services/settlement"
	"adbarter/services/testutil"
	"adbarter/services/website"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	db       *gorm.DB
	cfg      *config.Config
	router   *gin.Engine
	verifier *authtoken.Verifier
	accounts *account.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := testutil.NewTestDB(t,
		&account.User{},
		&website.Website{},
		&analytics.DailyStat{},
		&settlement.ClickLog{},
	)

	cfg := &config.Config{}
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Webhook.PaymentSecret = "webhook-secret"
	cfg.Exchange.StartingCredits = 10
	cfg.Exchange.DefaultRefreshSeconds = 30
	cfg.Exchange.DisabledRefreshSeconds = 600
	cfg.Exchange.SafeRefreshSeconds = 60
	cfg.Exchange.CandidateWindow = 20

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	az, err := authz.New()
	require.NoError(t, err)

	accounts := account.NewService(account.ServiceParams{DB: db, Node: node, Config: cfg, Authz: az})
	websites := website.NewService(website.ServiceParams{DB: db, Node: node, Authz: az})
	serve := adserve.NewService(adserve.ServiceParams{DB: db, Config: cfg})
	settle := settlement.NewService(settlement.ServiceParams{DB: db, Config: cfg})
	stats := analytics.NewService(analytics.ServiceParams{DB: db})

	handler := NewHandler(HandlerParams{
		Config:     cfg,
		Accounts:   accounts,
		Websites:   websites,
		Adserve:    serve,
		Settlement: settle,
		Analytics:  stats,
	})

	verifier := authtoken.NewVerifier(cfg)
	router := NewRouter(RouterParams{
		Config:   cfg,
		Handler:  handler,
		Health:   health.ProvideHealth(health.HealthParams{DB: db}),
		Verifier: verifier,
	})

	return &testAPI{db: db, cfg: cfg, router: router, verifier: verifier, accounts: accounts}
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.verifier.Sign(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func seedExchange(t *testing.T, db *gorm.DB) (pub, adv *website.Website) {
	t.Helper()

	for _, u := range []*account.User{
		{ID: "pub-owner", Email: "pub@example.com", Credits: 5},
		{ID: "adv-owner", Email: "adv@example.com", Credits: 5},
	} {
		require.NoError(t, db.Create(u).Error)
	}

	pub = &website.Website{
		ID: "pub-site", UserID: "pub-owner", Domain: "pub.example.com",
		Category: "tech", Active: true, HasCredits: true,
		Status: website.StatusApproved, ShowAds: true,
	}
	adv = &website.Website{
		ID: "adv-site", UserID: "adv-owner", Domain: "adv.example.com",
		Category: "tech", Active: true, HasCredits: true,
		Status: website.StatusApproved, ShowAds: true,
	}
	require.NoError(t, db.Create(pub).Error)
	require.NoError(t, db.Create(adv).Error)
	return pub, adv
}

func TestServeAdsMissingPublisher(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(httptest.NewRequest(http.MethodGet, "/ads", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeAdsUnknownPublisher(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(httptest.NewRequest(http.MethodGet, "/ads?publisherId=nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeAdsReturnsDecision(t *testing.T) {
	api := newTestAPI(t)
	pub, adv := seedExchange(t, api.db)

	w := api.do(httptest.NewRequest(http.MethodGet, "/ads?publisherId="+pub.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var decision adserve.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	require.NotNil(t, decision.Ad)
	require.Equal(t, adv.ID, decision.Ad.ID)
	require.Equal(t, 30, decision.RefreshSeconds)
}

func TestClickMissingParams(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(httptest.NewRequest(http.MethodGet, "/click?publisherId=only", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClickRedirectsAndSettles(t *testing.T) {
	api := newTestAPI(t)
	pub, adv := seedExchange(t, api.db)

	req := httptest.NewRequest(http.MethodGet, "/click?publisherId="+pub.ID+"&advertiserId="+adv.ID, nil)
	req.RemoteAddr = "203.0.113.9:4444"

	w := api.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://adv.example.com", w.Header().Get("Location"))

	owner := &account.User{}
	require.NoError(t, api.db.First(owner, "id = ?", "pub-owner").Error)
	require.Equal(t, int64(6), owner.Credits)

	// Second click from the same address still redirects but moves nothing.
	w = api.do(req)
	require.Equal(t, http.StatusFound, w.Code)

	require.NoError(t, api.db.First(owner, "id = ?", "pub-owner").Error)
	require.Equal(t, int64(6), owner.Credits)
}

func TestClickUnknownPublisherNotFound(t *testing.T) {
	api := newTestAPI(t)
	_, adv := seedExchange(t, api.db)

	req := httptest.NewRequest(http.MethodGet, "/click?publisherId=no-such-site&advertiserId="+adv.ID, nil)
	w := api.do(req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestClickRedirectsWhenSettlementFails(t *testing.T) {
	api := newTestAPI(t)
	pub, adv := seedExchange(t, api.db)

	require.NoError(t, api.db.Migrator().DropTable(&settlement.ClickLog{}))

	req := httptest.NewRequest(http.MethodGet, "/click?publisherId="+pub.ID+"&advertiserId="+adv.ID, nil)
	req.RemoteAddr = "203.0.113.9:4444"

	w := api.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://adv.example.com", w.Header().Get("Location"))

	owner := &account.User{}
	require.NoError(t, api.db.First(owner, "id = ?", "pub-owner").Error)
	require.Equal(t, int64(5), owner.Credits)
}

func TestClickPromotionRedirectsToNetwork(t *testing.T) {
	api := newTestAPI(t)
	pub, _ := seedExchange(t, api.db)

	w := api.do(httptest.NewRequest(http.MethodGet, "/click?publisherId="+pub.ID+"&advertiserId="+adserve.PromotionSiteID, nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, adserve.PromotionURL, w.Header().Get("Location"))
}

func TestAuthenticatedRoutesRejectMissingToken(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = api.do(req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeReturnsAccount(t *testing.T) {
	api := newTestAPI(t)
	seedExchange(t, api.db)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", api.bearer(t, "pub-owner"))

	w := api.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "pub-owner", body["id"])
	require.Equal(t, float64(5), body["credits"])
}

func TestRegisterWebsiteEndpoint(t *testing.T) {
	api := newTestAPI(t)
	seedExchange(t, api.db)

	payload, err := json.Marshal(website.RegisterInput{Domain: "https://www.New-Site.com", Category: "tech"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/websites", bytes.NewReader(payload))
	req.Header.Set("Authorization", api.bearer(t, "pub-owner"))
	req.Header.Set("Content-Type", "application/json")

	w := api.do(req)
	require.Equal(t, http.StatusCreated, w.Code)

	var site website.Website
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &site))
	require.Equal(t, "new-site.com", site.Domain)
	require.Equal(t, website.StatusPending, site.Status)
}

func TestWebsiteStatsOwnerOnly(t *testing.T) {
	api := newTestAPI(t)
	pub, _ := seedExchange(t, api.db)

	req := httptest.NewRequest(http.MethodGet, "/v1/websites/"+pub.ID+"/stats", nil)
	req.Header.Set("Authorization", api.bearer(t, "adv-owner"))
	w := api.do(req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/websites/"+pub.ID+"/stats", nil)
	req.Header.Set("Authorization", api.bearer(t, "pub-owner"))
	w = api.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var report analytics.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Daily, 7)
}

func signWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	api := newTestAPI(t)

	body := []byte(`{"event":{"type":"charge:confirmed"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "deadbeef")

	w := api.do(req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentWebhookCreditsAccount(t *testing.T) {
	api := newTestAPI(t)
	seedExchange(t, api.db)

	body := []byte(`{"event":{"id":"evt-1","type":"charge:confirmed","data":{"code":"CH-1","metadata":{"user_id":"adv-owner","credits":50}}}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signWebhook(api.cfg.Webhook.PaymentSecret, body))

	w := api.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	owner := &account.User{}
	require.NoError(t, api.db.First(owner, "id = ?", "adv-owner").Error)
	require.Equal(t, int64(55), owner.Credits)
}

func TestPaymentWebhookIgnoresOtherEvents(t *testing.T) {
	api := newTestAPI(t)
	seedExchange(t, api.db)

	body := []byte(`{"event":{"type":"charge:pending","data":{"metadata":{"user_id":"adv-owner","credits":50}}}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signWebhook(api.cfg.Webhook.PaymentSecret, body))

	w := api.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	owner := &account.User{}
	require.NoError(t, api.db.First(owner, "id = ?", "adv-owner").Error)
	require.Equal(t, int64(5), owner.Credits)
}

func TestAdminStatusEndpointForbiddenForUser(t *testing.T) {
	api := newTestAPI(t)
	pub, _ := seedExchange(t, api.db)

	payload := []byte(`{"status":"approved"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/websites/"+pub.ID+"/status", bytes.NewReader(payload))
	req.Header.Set("Authorization", api.bearer(t, "adv-owner"))
	req.Header.Set("Content-Type", "application/json")

	w := api.do(req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminAdjustCreditsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	seedExchange(t, api.db)
	require.NoError(t, api.db.Create(&account.User{ID: "admin", Email: "admin@example.com", IsAdmin: true}).Error)

	payload := []byte(`{"delta":-3}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/users/adv-owner/credits", bytes.NewReader(payload))
	req.Header.Set("Authorization", api.bearer(t, "admin"))
	req.Header.Set("Content-Type", "application/json")

	w := api.do(req)
	require.Equal(t, http.StatusNoContent, w.Code)

	owner := &account.User{}
	require.NoError(t, api.db.First(owner, "id = ?", "adv-owner").Error)
	require.Equal(t, int64(2), owner.Credits)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
