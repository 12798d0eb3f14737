package httpapi

import (
	"net/http"
	"strconv"

	"adbarter/pkg/errutil"
	"adbarter/pkg/middleware"
	"adbarter/services/website"

	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterWebsite(c *gin.Context) {
	var input website.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	site, err := h.websites.Register(c.Request.Context(), middleware.UserID(c), input)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, site)
}

func (h *Handler) ListWebsites(c *gin.Context) {
	sites, err := h.websites.ListByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"websites": sites})
}

func (h *Handler) VerifyWebsite(c *gin.Context) {
	err := h.websites.VerifyOwnership(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true})
}

func (h *Handler) ToggleCampaign(c *gin.Context) {
	active, err := h.websites.ToggleCampaign(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": active})
}

func (h *Handler) ToggleShowAds(c *gin.Context) {
	showAds, err := h.websites.ToggleShowAds(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"showAds": showAds})
}

func (h *Handler) DeleteWebsite(c *gin.Context) {
	if err := h.websites.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// WebsiteStats returns the dashboard report. Owner only.
func (h *Handler) WebsiteStats(c *gin.Context) {
	site, err := h.websites.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if site.UserID != middleware.UserID(c) {
		c.Error(errutil.Forbidden("not the site owner", nil))
		return
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 90 {
			days = n
		}
	}

	c.JSON(http.StatusOK, h.analytics.Report(c.Request.Context(), site.ID, days))
}
