// Package accounts provides the PostgreSQL-backed social account repository.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

const accountColumns = `id, user_id, platform, platform_account_id, display_name, avatar_url, account_type,
		access_token, refresh_token, token_expires_at, active, created_at, updated_at`

// PostgresRepository implements account storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(s interface{ Scan(...any) error }) (*models.SocialAccount, error) {
	a := &models.SocialAccount{}
	err := s.Scan(&a.ID, &a.UserID, &a.Platform, &a.PlatformAccountID, &a.DisplayName, &a.AvatarURL, &a.AccountType,
		&a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Upsert inserts or refreshes the account keyed by (user, platform,
// platform account id) and reactivates it. A missing refresh token keeps
// the stored one.
func (r *PostgresRepository) Upsert(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	query := `
		INSERT INTO social_accounts (user_id, platform, platform_account_id, display_name, avatar_url, account_type,
			access_token, refresh_token, token_expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (user_id, platform, platform_account_id)
		DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			account_type = EXCLUDED.account_type,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, social_accounts.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			active = TRUE,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		account.UserID, account.Platform, account.PlatformAccountID, account.DisplayName, account.AvatarURL,
		account.AccountType, account.AccessToken, account.RefreshToken, account.TokenExpiresAt,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	account.Active = true
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	if err := dbx.CheckID(id); err != nil {
		return nil, err
	}
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts
		WHERE user_id = $1 AND (active OR NOT $2)
		ORDER BY platform, display_name`

	return r.list(ctx, query, userID, activeOnly)
}

// ListAll walks every account, active or not. Used by key rollout tooling.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.SocialAccount, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM social_accounts ORDER BY created_at`)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SocialAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Deactivate soft-disconnects an account owned by userID. Targets keep
// referencing it.
func (r *PostgresRepository) Deactivate(ctx context.Context, id, userID string) error {
	query :=
		`UPDATE social_accounts SET active = FALSE, updated_at = now()
		 WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExactlyOne(res); err != nil {
		if errors.Is(err, common.ErrStatusConflict) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}

// UpdateTokens stores refreshed (sealed) tokens. A nil refresh token keeps
// the stored one.
func (r *PostgresRepository) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	query :=
		`UPDATE social_accounts
		 SET access_token = $2, refresh_token = COALESCE($3, refresh_token), token_expires_at = $4, updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExactlyOne(res); err != nil {
		if errors.Is(err, common.ErrStatusConflict) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}
