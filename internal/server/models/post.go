// Package models defines server-side data models persisted in the database.
package models

import "time"

// PostStatus is shared by posts and their targets. Targets use the subset
// SCHEDULED, PUBLISHING, PUBLISHED, FAILED plus whatever the review
// workflow mirrors onto them.
type PostStatus string

const (
	StatusDraft         PostStatus = "DRAFT"
	StatusPendingReview PostStatus = "PENDING_REVIEW"
	StatusScheduled     PostStatus = "SCHEDULED"
	StatusPublishing    PostStatus = "PUBLISHING"
	StatusPublished     PostStatus = "PUBLISHED"
	StatusFailed        PostStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusScheduled, StatusPublishing, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// ContentKind is derived from the post body and media at write time.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindLink  ContentKind = "link"
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
)

// Post is authored content plus scheduling and review metadata.
// Nullable columns are pointers.
type Post struct {
	ID           string
	UserID       string
	Content      string
	Kind         ContentKind
	ImageURL     *string
	VideoURL     *string
	ScheduledAt  *time.Time
	Status       PostStatus
	ErrorMessage *string
	ApprovedBy   *string
	ApprovedAt   *time.Time
	ApprovalNote *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Targets is populated by services, not by the posts repository.
	Targets []Target
}

// Target binds one post to one destination account.
type Target struct {
	ID             string
	PostID         string
	AccountID      string
	Status         PostStatus
	PlatformPostID *string
	ErrorMessage   *string
	PublishedAt    *time.Time
}
