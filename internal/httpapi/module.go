package httpapi

import (
	"adbarter/pkg/authtoken"
	"adbarter/pkg/config"
	"adbarter/pkg/health"
	"adbarter/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Provide(NewRouter),
)

type RouterParams struct {
	fx.In
	Config   *config.Config
	Handler  *Handler
	Health   health.HealthService
	Verifier *authtoken.Verifier
}

func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	// Widget surface. Unauthenticated; publishers identify by site id.
	r.GET("/ads", p.Handler.ServeAds)
	r.GET("/click", p.Handler.Click)

	v1 := r.Group("/v1")
	v1.POST("/webhooks/payment", p.Handler.PaymentWebhook)

	authed := v1.Group("")
	authed.Use(middleware.Auth(p.Verifier))

	authed.GET("/me", p.Handler.Me)

	authed.POST("/websites", p.Handler.RegisterWebsite)
	authed.GET("/websites", p.Handler.ListWebsites)
	authed.POST("/websites/:id/verify", p.Handler.VerifyWebsite)
	authed.PATCH("/websites/:id/campaign", p.Handler.ToggleCampaign)
	authed.PATCH("/websites/:id/showads", p.Handler.ToggleShowAds)
	authed.GET("/websites/:id/stats", p.Handler.WebsiteStats)
	authed.DELETE("/websites/:id", p.Handler.DeleteWebsite)

	admin := authed.Group("/admin")
	admin.GET("/websites", p.Handler.ListModerationWebsites)
	admin.POST("/websites/:id/status", p.Handler.SetWebsiteStatus)
	admin.POST("/users/:id/credits", p.Handler.AdjustCredits)
	admin.POST("/users/:id/ban", p.Handler.BanUser)
	admin.DELETE("/users/:id/ban", p.Handler.LiftBan)

	return r
}
