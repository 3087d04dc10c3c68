package targets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Repository persists post targets. Per-target outcome writes only apply to
// targets still in SCHEDULED.
type Repository interface {
	CreateMany(ctx context.Context, postID string, accountIDs []string, status models.PostStatus) ([]models.Target, error)
	ListByPost(ctx context.Context, postID string) ([]models.Target, error)
	Delete(ctx context.Context, id string) error
	SetStatusByPost(ctx context.Context, postID string, status models.PostStatus) error
	MarkPublished(ctx context.Context, id, platformPostID string, at time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	ResetFailed(ctx context.Context, postID string) (int64, error)
	ListPublished(ctx context.Context) ([]models.PublishedTarget, error)
	GetPublished(ctx context.Context, id string) (*models.PublishedTarget, error)
}
