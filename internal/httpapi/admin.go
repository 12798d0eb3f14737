package httpapi

import (
	"net/http"
	"time"

	"adbarter/pkg/db/pagination"
	"adbarter/pkg/errutil"
	"adbarter/pkg/middleware"
	"adbarter/services/website"

	"github.com/gin-gonic/gin"
)

// Admin handlers delegate capability checks to the services; the authz
// layer rejects callers whose role cannot perform the action.

func (h *Handler) ListModerationWebsites(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	result, err := h.websites.ListModeration(c.Request.Context(), middleware.UserID(c), website.Status(c.Query("status")), page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type setStatusRequest struct {
	Status website.Status `json:"status"`
}

func (h *Handler) SetWebsiteStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	err := h.websites.SetStatus(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Status)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

type adjustCreditsRequest struct {
	Delta int64 `json:"delta"`
}

func (h *Handler) AdjustCredits(c *gin.Context) {
	var req adjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	err := h.accounts.AdminAdjustCredits(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Delta)
	if err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

type banRequest struct {
	Hours  int    `json:"hours"`
	Reason string `json:"reason"`
}

func (h *Handler) BanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	var until *time.Time
	if req.Hours > 0 {
		t := time.Now().Add(time.Duration(req.Hours) * time.Hour)
		until = &t
	}

	err := h.accounts.AdminBan(c.Request.Context(), middleware.UserID(c), c.Param("id"), until, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) LiftBan(c *gin.Context) {
	err := h.accounts.AdminLiftBan(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
