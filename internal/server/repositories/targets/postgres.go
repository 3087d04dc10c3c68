// Package targets provides the PostgreSQL-backed post target repository.
package targets

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

// PostgresRepository implements target storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateMany inserts one target per account. Callers run it inside the same
// transaction as the post write so a target set is never partial.
func (r *PostgresRepository) CreateMany(ctx context.Context, postID string, accountIDs []string, status models.PostStatus) ([]models.Target, error) {
	query :=
		`INSERT INTO post_targets (post_id, account_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id`

	result := make([]models.Target, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		t := models.Target{PostID: postID, AccountID: accountID, Status: status}
		if err := r.db.QueryRowContext(ctx, query, postID, accountID, status).Scan(&t.ID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *PostgresRepository) ListByPost(ctx context.Context, postID string) ([]models.Target, error) {
	query :=
		`SELECT id, post_id, account_id, status, platform_post_id, error_message, published_at
		 FROM post_targets
		 WHERE post_id = $1
		 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.ID, &t.PostID, &t.AccountID, &t.Status, &t.PlatformPostID, &t.ErrorMessage, &t.PublishedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Delete removes one target row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM post_targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExactlyOne(res)
}

// SetStatusByPost mirrors a post status onto every one of its targets.
func (r *PostgresRepository) SetStatusByPost(ctx context.Context, postID string, status models.PostStatus) error {
	query :=
		`UPDATE post_targets SET status = $2, error_message = NULL
		 WHERE post_id = $1`

	if _, err := r.db.ExecContext(ctx, query, postID, status); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id, platformPostID string, at time.Time) error {
	query :=
		`UPDATE post_targets SET status = 'PUBLISHED', platform_post_id = $2, published_at = $3, error_message = NULL
		 WHERE id = $1 AND status = 'SCHEDULED'`

	res, err := r.db.ExecContext(ctx, query, id, platformPostID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExactlyOne(res)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	query :=
		`UPDATE post_targets SET status = 'FAILED', error_message = $2
		 WHERE id = $1 AND status = 'SCHEDULED'`

	res, err := r.db.ExecContext(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExactlyOne(res)
}

// ResetFailed returns only FAILED targets of a post to SCHEDULED; published
// ones are left untouched. It reports how many were reset.
func (r *PostgresRepository) ResetFailed(ctx context.Context, postID string) (int64, error) {
	query :=
		`UPDATE post_targets SET status = 'SCHEDULED', error_message = NULL
		 WHERE post_id = $1 AND status = 'FAILED'`

	res, err := r.db.ExecContext(ctx, query, postID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

const publishedQuery = `SELECT t.id, t.post_id, t.account_id, a.platform, t.platform_post_id, a.access_token, t.published_at
		 FROM post_targets t
		 JOIN social_accounts a ON a.id = t.account_id
		 WHERE t.status = 'PUBLISHED' AND t.platform_post_id IS NOT NULL`

func scanPublished(s interface{ Scan(...any) error }) (models.PublishedTarget, error) {
	var p models.PublishedTarget
	err := s.Scan(&p.TargetID, &p.PostID, &p.AccountID, &p.Platform, &p.PlatformPostID, &p.AccessToken, &p.PublishedAt)
	return p, err
}

// ListPublished is the analytics view over delivered targets. Tokens are
// returned sealed.
func (r *PostgresRepository) ListPublished(ctx context.Context) ([]models.PublishedTarget, error) {
	rows, err := r.db.QueryContext(ctx, publishedQuery+` ORDER BY t.published_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.PublishedTarget
	for rows.Next() {
		p, err := scanPublished(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetPublished(ctx context.Context, id string) (*models.PublishedTarget, error) {
	if err := dbx.CheckID(id); err != nil {
		return nil, err
	}
	p, err := scanPublished(r.db.QueryRowContext(ctx, publishedQuery+` AND t.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}
