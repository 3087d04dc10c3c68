// Package posts provides the PostgreSQL-backed post repository.
package posts

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

const postColumns = `id, user_id, content, kind, image_url, video_url, scheduled_at, status,
		error_message, approved_by, approved_at, approval_note, created_at, updated_at`

// PostgresRepository implements post storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*models.Post, error) {
	p := &models.Post{}
	err := s.Scan(&p.ID, &p.UserID, &p.Content, &p.Kind, &p.ImageURL, &p.VideoURL, &p.ScheduledAt, &p.Status,
		&p.ErrorMessage, &p.ApprovedBy, &p.ApprovedAt, &p.ApprovalNote, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	query :=
		`INSERT INTO posts (user_id, content, kind, image_url, video_url, scheduled_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		post.UserID, post.Content, post.Kind, post.ImageURL, post.VideoURL, post.ScheduledAt, post.Status,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return post, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return r.get(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
}

// GetByIDForUpdate locks the row for the rest of the enclosing transaction.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Post, error) {
	return r.get(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, id string) (*models.Post, error) {
	if err := dbx.CheckID(id); err != nil {
		return nil, err
	}
	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// ListByUser returns the user's posts, newest first, optionally filtered by status.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, status *models.PostStatus) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC`

	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}

	return r.list(ctx, query, userID, filter)
}

// ListDue returns at most limit SCHEDULED posts whose time has come,
// oldest-due first.
func (r *PostgresRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = 'SCHEDULED' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`

	return r.list(ctx, query, now, limit)
}

// ListPendingForReviewer returns PENDING_REVIEW posts written by teammates
// the reviewer holds a reviewing role over. The reviewer's own posts are
// never included.
func (r *PostgresRepository) ListPendingForReviewer(ctx context.Context, reviewerID string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p
		WHERE p.status = 'PENDING_REVIEW'
		  AND p.user_id <> $1
		  AND EXISTS (
			SELECT 1 FROM team_members r
			JOIN team_members a ON a.team_id = r.team_id
			WHERE r.user_id = $1
			  AND r.role IN ('OWNER', 'ADMIN', 'REVIEWER')
			  AND a.user_id = p.user_id
		  )
		ORDER BY p.created_at ASC`

	return r.list(ctx, query, reviewerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
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

// UpdateContent replaces content, media and schedule. Only DRAFT and
// SCHEDULED posts are editable; the status itself is left as is.
func (r *PostgresRepository) UpdateContent(ctx context.Context, post *models.Post) error {
	query :=
		`UPDATE posts SET content = $2, kind = $3, image_url = $4, video_url = $5, scheduled_at = $6, updated_at = now()
		 WHERE id = $1 AND status IN ('DRAFT', 'SCHEDULED')`

	return r.exec(ctx, query, post.ID, post.Content, post.Kind, post.ImageURL, post.VideoURL, post.ScheduledAt)
}

// Transition moves a post from one status to another only if it is still in
// the expected one. A zero-row update is ErrStatusConflict, which makes
// SCHEDULED -> PUBLISHING usable as an atomic claim.
func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.PostStatus, errMsg *string) error {
	query :=
		`UPDATE posts SET status = $3, error_message = $4, updated_at = now()
		 WHERE id = $1 AND status = $2`

	return r.exec(ctx, query, id, from, to, errMsg)
}

// Approve records the reviewer decision and moves PENDING_REVIEW to "to".
func (r *PostgresRepository) Approve(ctx context.Context, id string, to models.PostStatus, reviewerID string, note *string, at time.Time) error {
	query :=
		`UPDATE posts SET status = $2, approved_by = $3, approved_at = $4, approval_note = $5, updated_at = now()
		 WHERE id = $1 AND status = 'PENDING_REVIEW'`

	return r.exec(ctx, query, id, to, reviewerID, at, note)
}

// Reject returns a PENDING_REVIEW post to DRAFT with the reviewer's note.
func (r *PostgresRepository) Reject(ctx context.Context, id string, note string) error {
	query :=
		`UPDATE posts SET status = 'DRAFT', approval_note = $2, approved_by = NULL, approved_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'PENDING_REVIEW'`

	return r.exec(ctx, query, id, note)
}

// Reschedule is the manual retry: FAILED -> SCHEDULED at the given time.
func (r *PostgresRepository) Reschedule(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE posts SET status = 'SCHEDULED', scheduled_at = $2, error_message = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'FAILED'`

	return r.exec(ctx, query, id, at)
}

// Delete removes a post and, by cascade, its targets. A post being
// published cannot be deleted.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM posts WHERE id = $1 AND status <> 'PUBLISHING'`

	return r.exec(ctx, query, id)
}

// ResetStuck returns posts left in PUBLISHING since before olderThan to
// SCHEDULED and reports their ids.
func (r *PostgresRepository) ResetStuck(ctx context.Context, olderThan time.Time) ([]string, error) {
	query :=
		`UPDATE posts SET status = 'SCHEDULED', updated_at = now()
		 WHERE status = 'PUBLISHING' AND updated_at < $1
		 RETURNING id`

	rows, err := r.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExactlyOne(res)
}
