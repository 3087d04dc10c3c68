package teams

import (
	"context"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Repository answers team membership questions for the review workflow.
type Repository interface {
	ReviewerRoles(ctx context.Context, reviewerID, authorID string) ([]models.TeamRole, error)
}
