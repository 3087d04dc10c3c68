package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Repository persists social accounts. Token columns hold vault output.
type Repository interface {
	Upsert(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error)
	GetByID(ctx context.Context, id string) (*models.SocialAccount, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.SocialAccount, error)
	ListAll(ctx context.Context) ([]*models.SocialAccount, error)
	Deactivate(ctx context.Context, id, userID string) error
	UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) error
}
