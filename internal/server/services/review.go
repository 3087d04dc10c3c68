package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/lifecycle"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/posts"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
)

// ReviewService gates the submit / approve / reject transitions by team role.
// Targets mirror the post status on every review transition.
type ReviewService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         Clock
}

func NewReviewService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *ReviewService {
	return &ReviewService{db: db, repomanager: m, log: log.With("module", "review"), now: systemClock}
}

// Submit moves the author's DRAFT post to PENDING_REVIEW.
func (s *ReviewService) Submit(ctx context.Context, userID, postID string) (*models.Post, error) {
	var post *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if post, err = s.repomanager.Posts(tx).GetByIDForUpdate(ctx, postID); err != nil {
			return err
		}
		if post.UserID != userID {
			return common.Forbidden("only the author may submit a post for review")
		}
		return s.move(ctx, tx, post, models.StatusPendingReview, lifecycle.Author, func(r posts.Repository) error {
			return r.Transition(ctx, post.ID, models.StatusDraft, models.StatusPendingReview, nil)
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "post submitted for review", "post_id", post.ID)
	return post, nil
}

// Approve moves a PENDING_REVIEW post to SCHEDULED, or to DRAFT when it has
// no scheduled time yet.
func (s *ReviewService) Approve(ctx context.Context, reviewerID, postID string, note *string) (*models.Post, error) {
	if note != nil && strings.TrimSpace(*note) == "" {
		note = nil
	}

	var post *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if post, err = s.reviewable(ctx, tx, reviewerID, postID); err != nil {
			return err
		}

		to := lifecycle.ApprovalTarget(post)
		at := s.now()
		if err := s.move(ctx, tx, post, to, lifecycle.Reviewer, func(r posts.Repository) error {
			return r.Approve(ctx, post.ID, to, reviewerID, note, at)
		}); err != nil {
			return err
		}
		post.ApprovedBy = &reviewerID
		post.ApprovedAt = &at
		post.ApprovalNote = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "post approved", "post_id", post.ID, "reviewer_id", reviewerID, "status", post.Status)
	return post, nil
}

// Reject sends a PENDING_REVIEW post back to DRAFT. The note is mandatory.
func (s *ReviewService) Reject(ctx context.Context, reviewerID, postID, note string) (*models.Post, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, common.Invalid("note", "a rejection note is required")
	}

	var post *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if post, err = s.reviewable(ctx, tx, reviewerID, postID); err != nil {
			return err
		}
		if err := s.move(ctx, tx, post, models.StatusDraft, lifecycle.Reviewer, func(r posts.Repository) error {
			return r.Reject(ctx, post.ID, note)
		}); err != nil {
			return err
		}
		post.ApprovedBy, post.ApprovedAt = nil, nil
		post.ApprovalNote = &note
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "post rejected", "post_id", post.ID, "reviewer_id", reviewerID)
	return post, nil
}

// ListPending returns only posts the reviewer is entitled to review.
func (s *ReviewService) ListPending(ctx context.Context, reviewerID string) ([]*models.Post, error) {
	return s.repomanager.Posts(s.db).ListPendingForReviewer(ctx, reviewerID)
}

// reviewable loads the post and enforces the reviewer policy: no
// self-approval regardless of role, and a reviewing role on a team that
// includes the author.
func (s *ReviewService) reviewable(ctx context.Context, tx dbx.DBTX, reviewerID, postID string) (*models.Post, error) {
	post, err := s.repomanager.Posts(tx).GetByIDForUpdate(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID == reviewerID {
		return nil, fmt.Errorf("%w: %w", common.ErrForbidden, common.ErrSelfApproval)
	}

	roles, err := s.repomanager.Teams(tx).ReviewerRoles(ctx, reviewerID, post.UserID)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(roles, models.TeamRole.CanReview) {
		return nil, common.Forbidden("a reviewing role on the author's team is required")
	}
	return post, nil
}

// move checks the edge, applies the status write and mirrors it onto the
// post's targets.
func (s *ReviewService) move(ctx context.Context, tx dbx.DBTX, post *models.Post, to models.PostStatus, actor lifecycle.Actor, write func(posts.Repository) error) error {
	if err := lifecycle.Check(post.Status, to, actor); err != nil {
		return err
	}
	if err := write(s.repomanager.Posts(tx)); err != nil {
		return err
	}
	if err := s.repomanager.Targets(tx).SetStatusByPost(ctx, post.ID, to); err != nil {
		return err
	}
	post.Status = to
	return nil
}
