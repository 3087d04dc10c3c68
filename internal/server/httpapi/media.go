package httpapi

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

var uploadExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".m4v": true, ".mov": true,
}

// PresignUpload returns a one-off PUT URL and the media reference to put
// into image_url or video_url.
func (h *Handler) PresignUpload(c *gin.Context) {
	var req struct {
		Filename string `json:"filename" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "filename is required")
		return
	}
	if !uploadExtensions[strings.ToLower(path.Ext(req.Filename))] {
		fail(c, http.StatusBadRequest, "unsupported media type")
		return
	}
	if h.media == nil {
		fail(c, http.StatusServiceUnavailable, "media storage is not configured")
		return
	}

	ref, url, err := h.media.PresignUpload(c.Request.Context(), userID(c), req.Filename)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"ref": ref, "upload_url": url})
}
