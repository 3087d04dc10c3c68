// Package credentials provides the PostgreSQL-backed credential record repository.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// PostgresRepository implements credential storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string, platform models.Platform) (*models.Credential, error) {
	query :=
		`SELECT id, user_id, platform, client_id, client_secret, updated_at
		 FROM platform_credentials
		 WHERE user_id = $1 AND platform = $2`

	c := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, userID, platform).
		Scan(&c.ID, &c.UserID, &c.Platform, &c.ClientID, &c.ClientSecret, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO platform_credentials (user_id, platform, client_id, client_secret)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, platform)
		DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			updated_at = now()
		RETURNING id, updated_at`

	err := r.db.QueryRowContext(ctx, query, cred.UserID, cred.Platform, cred.ClientID, cred.ClientSecret).
		Scan(&cred.ID, &cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Credential, error) {
	query := `SELECT id, user_id, platform, client_id, client_secret, updated_at FROM platform_credentials ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Credential
	for rows.Next() {
		c := &models.Credential{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Platform, &c.ClientID, &c.ClientSecret, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
