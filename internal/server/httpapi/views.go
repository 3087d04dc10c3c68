package httpapi

import (
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

type targetView struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"account_id"`
	Status         models.PostStatus `json:"status"`
	PlatformPostID *string           `json:"platform_post_id,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
}

type postView struct {
	ID           string             `json:"id"`
	Content      string             `json:"content"`
	Kind         models.ContentKind `json:"kind"`
	ImageURL     *string            `json:"image_url,omitempty"`
	VideoURL     *string            `json:"video_url,omitempty"`
	ScheduledAt  *time.Time         `json:"scheduled_at,omitempty"`
	Status       models.PostStatus  `json:"status"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	ApprovedBy   *string            `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time         `json:"approved_at,omitempty"`
	ApprovalNote *string            `json:"approval_note,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Targets      []targetView       `json:"targets,omitempty"`
}

func newPostView(p *models.Post) postView {
	v := postView{
		ID:           p.ID,
		Content:      p.Content,
		Kind:         p.Kind,
		ImageURL:     p.ImageURL,
		VideoURL:     p.VideoURL,
		ScheduledAt:  p.ScheduledAt,
		Status:       p.Status,
		ErrorMessage: p.ErrorMessage,
		ApprovedBy:   p.ApprovedBy,
		ApprovedAt:   p.ApprovedAt,
		ApprovalNote: p.ApprovalNote,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	for _, t := range p.Targets {
		v.Targets = append(v.Targets, targetView{
			ID:             t.ID,
			AccountID:      t.AccountID,
			Status:         t.Status,
			PlatformPostID: t.PlatformPostID,
			ErrorMessage:   t.ErrorMessage,
			PublishedAt:    t.PublishedAt,
		})
	}
	return v
}

func newPostViews(list []*models.Post) []postView {
	out := make([]postView, 0, len(list))
	for _, p := range list {
		out = append(out, newPostView(p))
	}
	return out
}
