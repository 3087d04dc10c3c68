package posts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Repository persists posts. Status-changing writes are conditional on the
// current status and report common.ErrStatusConflict when the row was not in
// the expected state.
type Repository interface {
	Create(ctx context.Context, post *models.Post) (*models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Post, error)
	ListByUser(ctx context.Context, userID string, status *models.PostStatus) ([]*models.Post, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	ListPendingForReviewer(ctx context.Context, reviewerID string) ([]*models.Post, error)
	UpdateContent(ctx context.Context, post *models.Post) error
	Transition(ctx context.Context, id string, from, to models.PostStatus, errMsg *string) error
	Approve(ctx context.Context, id string, to models.PostStatus, reviewerID string, note *string, at time.Time) error
	Reject(ctx context.Context, id string, note string) error
	Reschedule(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	ResetStuck(ctx context.Context, olderThan time.Time) ([]string, error)
}
