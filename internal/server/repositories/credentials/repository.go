package credentials

import (
	"context"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Repository persists user-supplied OAuth apps. Both id and secret are
// stored sealed.
type Repository interface {
	Get(ctx context.Context, userID string, platform models.Platform) (*models.Credential, error)
	Upsert(ctx context.Context, cred *models.Credential) error
	ListAll(ctx context.Context) ([]*models.Credential, error)
}
