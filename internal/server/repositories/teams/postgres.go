// Package teams provides read access to team membership.
package teams

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ReviewerRoles returns the roles reviewerID holds on every team that also
// includes authorID. An empty result means the two share no team.
func (r *PostgresRepository) ReviewerRoles(ctx context.Context, reviewerID, authorID string) ([]models.TeamRole, error) {
	query :=
		`SELECT r.role
		 FROM team_members r
		 JOIN team_members a ON a.team_id = r.team_id
		 WHERE r.user_id = $1 AND a.user_id = $2`

	rows, err := r.db.QueryContext(ctx, query, reviewerID, authorID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var roles []models.TeamRole
	for rows.Next() {
		var role models.TeamRole
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return roles, nil
}
