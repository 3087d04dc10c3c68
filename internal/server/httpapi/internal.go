package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunDispatch runs one dispatcher batch and returns its summary.
func (h *Handler) RunDispatch(c *gin.Context) {
	sum, err := h.dispatcher.RunDueBatch(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "dispatch run",
		"processed", sum.Processed, "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	success(c, http.StatusOK, sum)
}

// ListPublished hands plaintext tokens to the analytics collaborator. The
// response must never be cached.
func (h *Handler) ListPublished(c *gin.Context) {
	list, err := h.analytics.ListPublishedTargets(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	success(c, http.StatusOK, list)
}

func (h *Handler) TargetMetrics(c *gin.Context) {
	m, err := h.analytics.FetchTargetMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, m)
}
