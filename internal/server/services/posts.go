package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/lifecycle"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
)

// PostInput is the full replaceable state of a post. Status is only read on
// create.
type PostInput struct {
	Content     string
	ImageURL    *string
	VideoURL    *string
	ScheduledAt *time.Time
	Status      models.PostStatus
	AccountIDs  []string
}

// PostService implements the authoring commands.
type PostService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         Clock
}

func NewPostService(db *sql.DB, m repomanager.RepositoryManager, _ *config.Config, log logging.Logger) *PostService {
	return &PostService{db: db, repomanager: m, log: log.With("module", "posts"), now: systemClock}
}

func normalizeInput(in *PostInput, status models.PostStatus) error {
	in.Content = strings.TrimSpace(in.Content)
	if in.ImageURL != nil && strings.TrimSpace(*in.ImageURL) == "" {
		in.ImageURL = nil
	}
	if in.VideoURL != nil && strings.TrimSpace(*in.VideoURL) == "" {
		in.VideoURL = nil
	}
	if in.Content == "" && in.ImageURL == nil && in.VideoURL == nil {
		return common.Invalid("content", "content or media is required")
	}
	if in.ImageURL != nil && in.VideoURL != nil {
		return common.Invalid("media", "attach an image or a video, not both")
	}
	if status == models.StatusScheduled && in.ScheduledAt == nil {
		return common.Invalid("scheduled_at", "a scheduled post needs a time")
	}
	if in.ScheduledAt != nil {
		t := in.ScheduledAt.UTC()
		in.ScheduledAt = &t
	}
	return nil
}

// Create stores a post and its targets atomically.
func (s *PostService) Create(ctx context.Context, userID string, in PostInput) (*models.Post, error) {
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if err := lifecycle.CheckInitial(in.Status); err != nil {
		return nil, err
	}
	if err := normalizeInput(&in, in.Status); err != nil {
		return nil, err
	}

	var post *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ids, err := VerifyTargetAccounts(ctx, s.repomanager.Accounts(tx), userID, in.AccountIDs)
		if err != nil {
			return err
		}

		post, err = s.repomanager.Posts(tx).Create(ctx, &models.Post{
			UserID:      userID,
			Content:     in.Content,
			Kind:        lifecycle.DeriveKind(in.Content, in.ImageURL, in.VideoURL),
			ImageURL:    in.ImageURL,
			VideoURL:    in.VideoURL,
			ScheduledAt: in.ScheduledAt,
			Status:      in.Status,
		})
		if err != nil {
			return err
		}

		post.Targets, err = s.repomanager.Targets(tx).CreateMany(ctx, post.ID, ids, in.Status)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "post created", "post_id", post.ID, "status", post.Status, "targets", len(post.Targets))
	return post, nil
}

// Update replaces content, schedule and the target set. The status is left
// unchanged, and targets already published to a still selected account are
// kept as they are.
func (s *PostService) Update(ctx context.Context, userID, postID string, in PostInput) (*models.Post, error) {
	var post *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		post, err = s.owned(ctx, tx, userID, postID, true)
		if err != nil {
			return err
		}
		if !lifecycle.CanEdit(post.Status) {
			return &lifecycle.TransitionError{From: post.Status, To: post.Status, Actor: lifecycle.Author, Known: true}
		}
		if err := normalizeInput(&in, post.Status); err != nil {
			return err
		}

		ids, err := VerifyTargetAccounts(ctx, s.repomanager.Accounts(tx), userID, in.AccountIDs)
		if err != nil {
			return err
		}

		post.Content = in.Content
		post.ImageURL = in.ImageURL
		post.VideoURL = in.VideoURL
		post.ScheduledAt = in.ScheduledAt
		post.Kind = lifecycle.DeriveKind(in.Content, in.ImageURL, in.VideoURL)
		if err := s.repomanager.Posts(tx).UpdateContent(ctx, post); err != nil {
			return err
		}

		post.Targets, err = s.replaceTargets(ctx, tx, post, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "post updated", "post_id", post.ID, "targets", len(post.Targets))
	return post, nil
}

// replaceTargets makes the target set match accountIDs. A target that was
// already published for a still selected account keeps its row, so a retried
// post is never delivered twice to the same account.
func (s *PostService) replaceTargets(ctx context.Context, tx dbx.DBTX, post *models.Post, accountIDs []string) ([]models.Target, error) {
	repo := s.repomanager.Targets(tx)
	current, err := repo.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		selected[id] = struct{}{}
	}

	kept := make(map[string]models.Target)
	for _, t := range current {
		if _, ok := selected[t.AccountID]; ok && t.Status == models.StatusPublished {
			kept[t.AccountID] = t
			continue
		}
		if err := repo.Delete(ctx, t.ID); err != nil {
			return nil, err
		}
	}

	fresh := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := kept[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	created, err := repo.CreateMany(ctx, post.ID, fresh, post.Status)
	if err != nil {
		return nil, err
	}

	result := make([]models.Target, 0, len(accountIDs))
	for _, id := range accountIDs {
		if t, ok := kept[id]; ok {
			result = append(result, t)
			continue
		}
		result = append(result, created[0])
		created = created[1:]
	}
	return result, nil
}

// Delete removes a post and, by cascade, its targets. Posts being published
// cannot be deleted.
func (s *PostService) Delete(ctx context.Context, userID, postID string) error {
	post, err := s.owned(ctx, s.db, userID, postID, false)
	if err != nil {
		return err
	}
	if !lifecycle.CanDelete(post.Status) {
		return &lifecycle.TransitionError{From: post.Status, To: post.Status, Actor: lifecycle.Author, Known: true}
	}
	if err := s.repomanager.Posts(s.db).Delete(ctx, post.ID); err != nil {
		if errors.Is(err, common.ErrStatusConflict) {
			return &lifecycle.TransitionError{From: models.StatusPublishing, To: models.StatusPublishing, Actor: lifecycle.Author, Known: true}
		}
		return err
	}
	s.log.Info(ctx, "post deleted", "post_id", post.ID)
	return nil
}

// Retry moves a FAILED post back to SCHEDULED for now and resets only its
// failed targets. Published targets are left untouched.
func (s *PostService) Retry(ctx context.Context, userID, postID string) (*models.Post, error) {
	var post *models.Post
	var reset int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		post, err = s.owned(ctx, tx, userID, postID, true)
		if err != nil {
			return err
		}
		if err := lifecycle.Check(post.Status, models.StatusScheduled, lifecycle.Author); err != nil {
			return err
		}

		at := s.now()
		if err := s.repomanager.Posts(tx).Reschedule(ctx, post.ID, at); err != nil {
			return err
		}
		if reset, err = s.repomanager.Targets(tx).ResetFailed(ctx, post.ID); err != nil {
			return err
		}

		post.Status = models.StatusScheduled
		post.ScheduledAt = &at
		post.ErrorMessage = nil
		post.Targets, err = s.repomanager.Targets(tx).ListByPost(ctx, post.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "post retry scheduled", "post_id", post.ID, "targets_reset", reset)
	return post, nil
}

// List returns the user's posts, optionally filtered by status.
func (s *PostService) List(ctx context.Context, userID string, status *models.PostStatus) ([]*models.Post, error) {
	if status != nil && !status.Valid() {
		return nil, common.Invalid("status", "unknown status "+string(*status))
	}
	return s.repomanager.Posts(s.db).ListByUser(ctx, userID, status)
}

// Get returns one post with its targets.
func (s *PostService) Get(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.owned(ctx, s.db, userID, postID, false)
	if err != nil {
		return nil, err
	}
	post.Targets, err = s.repomanager.Targets(s.db).ListByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// owned loads a post and hides other users' posts as not found.
func (s *PostService) owned(ctx context.Context, db dbx.DBTX, userID, postID string, lock bool) (*models.Post, error) {
	repo := s.repomanager.Posts(db)
	get := repo.GetByID
	if lock {
		get = repo.GetByIDForUpdate
	}
	post, err := get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return post, nil
}
