package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
	"github.com/gin-gonic/gin"
)

type postRequest struct {
	Content     string     `json:"content"`
	ImageURL    *string    `json:"image_url"`
	VideoURL    *string    `json:"video_url"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Status      string     `json:"status"`
	AccountIDs  []string   `json:"account_ids"`
}

func (r postRequest) input() services.PostInput {
	return services.PostInput{
		Content:     r.Content,
		ImageURL:    r.ImageURL,
		VideoURL:    r.VideoURL,
		ScheduledAt: r.ScheduledAt,
		Status:      models.PostStatus(strings.ToUpper(strings.TrimSpace(r.Status))),
		AccountIDs:  r.AccountIDs,
	}
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	post, err := h.posts.Create(c.Request.Context(), userID(c), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusCreated, newPostView(post))
}

func (h *Handler) UpdatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	post, err := h.posts.Update(c.Request.Context(), userID(c), c.Param("id"), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostView(post))
}

func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RetryPost(c *gin.Context) {
	post, err := h.posts.Retry(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostView(post))
}

// ListPosts accepts an optional ?status= filter.
func (h *Handler) ListPosts(c *gin.Context) {
	var status *models.PostStatus
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		st := models.PostStatus(strings.ToUpper(s))
		status = &st
	}
	list, err := h.posts.List(c.Request.Context(), userID(c), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostViews(list))
}

func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.posts.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostView(post))
}

func (h *Handler) SubmitPost(c *gin.Context) {
	post, err := h.review.Submit(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostView(post))
}

// ApprovePost takes an optional note.
func (h *Handler) ApprovePost(c *gin.Context) {
	var req noteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request payload")
			return
		}
	}
	var note *string
	if req.Note != "" {
		note = &req.Note
	}
	post, err := h.review.Approve(c.Request.Context(), userID(c), c.Param("id"), note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostView(post))
}

func (h *Handler) RejectPost(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, common.Invalid("note", "a rejection note is required"))
		return
	}
	post, err := h.review.Reject(c.Request.Context(), userID(c), c.Param("id"), req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostView(post))
}

func (h *Handler) ListPendingReviews(c *gin.Context) {
	list, err := h.review.ListPending(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	success(c, http.StatusOK, newPostViews(list))
}
