package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
	"github.com/gin-gonic/gin"
)

// ListAccounts returns active accounts unless ?active=false.
func (h *Handler) ListAccounts(c *gin.Context) {
	activeOnly := true
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(c, http.StatusBadRequest, "active must be a boolean")
			return
		}
		activeOnly = b
	}
	list, err := h.accounts.ListAccounts(c.Request.Context(), userID(c), activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, list)
}

func (h *Handler) DisconnectAccount(c *gin.Context) {
	if err := h.accounts.Disconnect(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RefreshAccount(c *gin.Context) {
	v, err := h.accounts.RefreshAccountToken(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, v)
}

func (h *Handler) TestPublish(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "content is required")
		return
	}
	res, err := h.accounts.TestPublish(c.Request.Context(), userID(c), c.Param("id"), req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"platform_post_id": res.PlatformPostID})
}

func (h *Handler) SaveCredentials(c *gin.Context) {
	var req struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	platform := models.Platform(c.Param("platform"))
	if err := h.accounts.SaveCredentials(c.Request.Context(), userID(c), platform, req.ClientID, req.ClientSecret); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StartConnect(c *gin.Context) {
	url, err := h.connect.StartAuthorization(c.Request.Context(), userID(c), models.Platform(c.Param("platform")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"url": url})
}

func (h *Handler) CompleteConnect(c *gin.Context) {
	var req struct {
		Code  string `json:"code" binding:"required"`
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "code is required")
		return
	}
	views, err := h.connect.CompleteAuthorization(c.Request.Context(), userID(c), models.Platform(c.Param("platform")), req.Code, req.State)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, views)
}

// UpsertAccount is the OAuth callback collaborator's entry point.
func (h *Handler) UpsertAccount(c *gin.Context) {
	var req struct {
		UserID            string     `json:"user_id" binding:"required"`
		Platform          string     `json:"platform" binding:"required"`
		PlatformAccountID string     `json:"platform_account_id"`
		DisplayName       string     `json:"display_name"`
		AvatarURL         string     `json:"avatar_url"`
		AccountType       string     `json:"account_type"`
		AccessToken       string     `json:"access_token"`
		RefreshToken      string     `json:"refresh_token"`
		ExpiresAt         *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	v, err := h.accounts.UpsertAccount(c.Request.Context(), req.UserID, services.AccountInput{
		Platform:          models.Platform(req.Platform),
		PlatformAccountID: req.PlatformAccountID,
		DisplayName:       req.DisplayName,
		AvatarURL:         req.AvatarURL,
		AccountType:       models.AccountType(req.AccountType),
		AccessToken:       req.AccessToken,
		RefreshToken:      req.RefreshToken,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, v)
}
