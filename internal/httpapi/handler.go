package httpapi

import (
	"net/http"

	"adbarter/pkg/config"
	"adbarter/pkg/errutil"
	"adbarter/pkg/middleware"
	"adbarter/services/account"
	"adbarter/services/adserve"
	"adbarter/services/analytics"
	"adbarter/services/settlement"
	"adbarter/services/website"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Handler struct {
	cfg *config.Config

	accounts   *account.Service
	websites   *website.Service
	adserve    *adserve.Service
	settlement *settlement.Service
	analytics  *analytics.Service
}

type HandlerParams struct {
	fx.In
	Config     *config.Config
	Accounts   *account.Service
	Websites   *website.Service
	Adserve    *adserve.Service
	Settlement *settlement.Service
	Analytics  *analytics.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		cfg:        p.Config,
		accounts:   p.Accounts,
		websites:   p.Websites,
		adserve:    p.Adserve,
		settlement: p.Settlement,
		analytics:  p.Analytics,
	}
}

// ServeAds is the widget's polling endpoint. Unauthenticated; the publisher
// identifies itself by site id.
func (h *Handler) ServeAds(c *gin.Context) {
	publisherID := c.Query("publisherId")
	if publisherID == "" {
		c.Error(errutil.BadRequest("publisherId is required", nil))
		return
	}

	device := analytics.DeviceFromUserAgent(c.GetHeader("User-Agent"))

	decision, err := h.adserve.Serve(c.Request.Context(), publisherID, device)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// Click settles and redirects. The visitor always ends up on the advertiser
// site; only unresolvable participants surface as errors.
func (h *Handler) Click(c *gin.Context) {
	publisherID := c.Query("publisherId")
	advertiserID := c.Query("advertiserId")
	if publisherID == "" || advertiserID == "" {
		c.Error(errutil.BadRequest("publisherId and advertiserId are required", nil))
		return
	}

	ua := c.GetHeader("User-Agent")
	visitor := settlement.Visitor{
		Identity:  settlement.VisitorIdentity(c.ClientIP()),
		Device:    analytics.DeviceFromUserAgent(ua),
		UserAgent: ua,
	}

	res, err := h.settlement.Process(c.Request.Context(), publisherID, advertiserID, visitor)
	if err != nil {
		c.Error(err)
		return
	}

	if !res.Settled {
		zap.L().Debug("click not settled",
			zap.String("publisher_id", publisherID),
			zap.String("advertiser_id", advertiserID),
			zap.String("reason", string(res.Reason)),
		)
	}

	c.Redirect(http.StatusFound, res.Destination)
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.accounts.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      user.ID,
		"email":   user.Email,
		"credits": user.Credits,
		"role":    user.Role(),
	})
}
