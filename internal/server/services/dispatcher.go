package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/lifecycle"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crosspost/internal/server/tokenhealth"
	"golang.org/x/time/rate"
)

// TargetResult is the outcome of one target in a batch.
type TargetResult struct {
	TargetID       string            `json:"target_id"`
	AccountID      string            `json:"account_id"`
	Platform       models.Platform   `json:"platform,omitempty"`
	Status         models.PostStatus `json:"status"`
	PlatformPostID string            `json:"platform_post_id,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// PostResult is the outcome of one due post.
type PostResult struct {
	PostID  string            `json:"post_id"`
	Status  models.PostStatus `json:"status"`
	Skipped bool              `json:"skipped,omitempty"`
	Error   string            `json:"error,omitempty"`
	Targets []TargetResult    `json:"targets,omitempty"`
}

// BatchSummary is returned by RunDueBatch.
type BatchSummary struct {
	Processed  int          `json:"processed"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Reconciled int          `json:"reconciled"`
	Results    []PostResult `json:"results"`
}

// Dispatcher publishes due posts. Posts are processed one at a time and a
// post is only processed after a conditional SCHEDULED -> PUBLISHING claim
// succeeds, so overlapping invocations never publish the same post twice.
type Dispatcher struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	adapters    Adapters
	vault       Vault
	log         logging.Logger
	now         Clock

	batchSize    int
	stuckTimeout time.Duration

	perMinute int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewDispatcher(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, adapters Adapters, vault Vault, log logging.Logger) *Dispatcher {
	batch := cfg.DispatchBatchSize
	if batch <= 0 {
		batch = common.DefaultDispatchBatchSize
	}
	return &Dispatcher{
		db:           db,
		repomanager:  m,
		adapters:     adapters,
		vault:        vault,
		log:          log.With("module", "dispatcher"),
		now:          systemClock,
		batchSize:    batch,
		stuckTimeout: cfg.StuckPublishingTimeout,
		perMinute:    cfg.PublishRatePerMinute,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// RunDueBatch processes up to one batch of due posts, oldest first.
func (d *Dispatcher) RunDueBatch(ctx context.Context) (*BatchSummary, error) {
	summary := &BatchSummary{Results: []PostResult{}}
	posts := d.repomanager.Posts(d.db)

	if d.stuckTimeout > 0 {
		ids, err := posts.ResetStuck(ctx, d.now().Add(-d.stuckTimeout))
		if err != nil {
			d.log.Error(ctx, "reconcile stuck posts", "error", err)
		} else if len(ids) > 0 {
			summary.Reconciled = len(ids)
			d.log.Warn(ctx, "returned stuck posts to SCHEDULED", "post_ids", ids)
		}
	}

	due, err := posts.ListDue(ctx, d.now(), d.batchSize)
	if err != nil {
		return nil, err
	}

	for _, post := range due {
		res := d.processPost(ctx, post)
		summary.Results = append(summary.Results, res)

		switch {
		case res.Skipped:
			summary.Skipped++
		case res.Status == models.StatusPublished:
			summary.Processed++
			summary.Succeeded++
		default:
			summary.Processed++
			summary.Failed++
		}
	}

	d.log.Info(ctx, "dispatch batch finished",
		"due", len(due), "processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

func (d *Dispatcher) processPost(ctx context.Context, post *models.Post) PostResult {
	log := d.log.With("post_id", post.ID)
	res := PostResult{PostID: post.ID, Status: post.Status}
	posts := d.repomanager.Posts(d.db)
	targets := d.repomanager.Targets(d.db)

	if err := posts.Transition(ctx, post.ID, models.StatusScheduled, models.StatusPublishing, nil); err != nil {
		res.Skipped = true
		if !errors.Is(err, common.ErrStatusConflict) {
			res.Error = err.Error()
			log.Error(ctx, "claim post", "error", err)
		}
		return res
	}
	res.Status = models.StatusPublishing

	// Edits stop at the claim; publish what the post holds now, not the
	// due-list snapshot.
	claimed, err := posts.GetByID(ctx, post.ID)
	if err != nil {
		log.Error(ctx, "reload claimed post", "error", err)
		res.Error = err.Error()
		d.finish(ctx, post.ID, lifecycle.Outcome{Status: models.StatusFailed}, "could not load post: "+err.Error(), &res)
		return res
	}
	post = claimed

	list, err := targets.ListByPost(ctx, post.ID)
	if err != nil {
		log.Error(ctx, "list targets", "error", err)
		res.Error = err.Error()
		d.finish(ctx, post.ID, lifecycle.Outcome{Status: models.StatusFailed}, "could not load targets: "+err.Error(), &res)
		return res
	}

	content := platforms.Content{
		Text:     post.Content,
		Kind:     post.Kind,
		ImageRef: deref(post.ImageURL),
		VideoRef: deref(post.VideoURL),
	}

	statuses := make([]models.PostStatus, 0, len(list))
	for _, t := range list {
		if t.Status != models.StatusScheduled {
			statuses = append(statuses, t.Status)
			res.Targets = append(res.Targets, TargetResult{
				TargetID: t.ID, AccountID: t.AccountID, Status: t.Status, PlatformPostID: deref(t.PlatformPostID),
			})
			continue
		}

		tr := d.publishTarget(ctx, t, content)
		if tr.Error != "" {
			if err := targets.MarkFailed(ctx, t.ID, tr.Error); err != nil {
				log.Error(ctx, "record target failure", "target_id", t.ID, "error", err)
			}
			log.Warn(ctx, "target failed", "target_id", t.ID, "platform", tr.Platform, "error", tr.Error)
		} else {
			if err := targets.MarkPublished(ctx, t.ID, tr.PlatformPostID, d.now()); err != nil {
				log.Error(ctx, "record target success", "target_id", t.ID, "error", err)
			}
			log.Info(ctx, "target published", "target_id", t.ID, "platform", tr.Platform)
		}
		statuses = append(statuses, tr.Status)
		res.Targets = append(res.Targets, tr)
	}

	outcome := lifecycle.Aggregate(statuses)
	d.finish(ctx, post.ID, outcome, outcome.Summary(), &res)
	return res
}

func (d *Dispatcher) finish(ctx context.Context, postID string, outcome lifecycle.Outcome, summary string, res *PostResult) {
	if err := lifecycle.Check(models.StatusPublishing, outcome.Status, lifecycle.Dispatcher); err != nil {
		d.log.Error(ctx, "aggregate status", "post_id", postID, "error", err)
		return
	}
	if err := d.repomanager.Posts(d.db).Transition(ctx, postID, models.StatusPublishing, outcome.Status, strPtr(summary)); err != nil {
		d.log.Error(ctx, "record post outcome", "post_id", postID, "error", err)
		if res.Error == "" {
			res.Error = err.Error()
		}
		return
	}
	res.Status = outcome.Status
	if summary != "" {
		res.Error = summary
	}
}

// publishTarget never returns an error: every failure, including a panic in
// an adapter, becomes the target's error text.
func (d *Dispatcher) publishTarget(ctx context.Context, t models.Target, content platforms.Content) (tr TargetResult) {
	tr = TargetResult{TargetID: t.ID, AccountID: t.AccountID, Status: models.StatusFailed}

	defer func() {
		if p := recover(); p != nil {
			tr.Status = models.StatusFailed
			tr.PlatformPostID = ""
			tr.Error = fmt.Sprintf("adapter panic: %v", p)
			d.log.Error(ctx, "adapter panic", "target_id", t.ID, "panic", p)
		}
	}()

	id, err := d.attempt(ctx, t, content, &tr)
	if err != nil {
		tr.Error = err.Error()
		return tr
	}
	tr.Status = models.StatusPublished
	tr.PlatformPostID = id
	return tr
}

func (d *Dispatcher) attempt(ctx context.Context, t models.Target, content platforms.Content, tr *TargetResult) (string, error) {
	acct, err := d.repomanager.Accounts(d.db).GetByID(ctx, t.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", errors.New("account not found")
		}
		return "", err
	}
	tr.Platform = acct.Platform

	if !acct.Active {
		return "", errors.New("account is disconnected")
	}
	adapter, err := d.adapters.Get(acct.Platform)
	if err != nil {
		return "", err
	}
	if !tokenhealth.ClassifyAccount(acct, d.now()).Publishable() {
		return "", common.ErrTokenExpired
	}

	token, err := d.vault.Reveal(acct.AccessToken)
	if err != nil {
		d.log.Error(ctx, "reveal account token", "account_id", acct.ID, "error", err)
		return "", fmt.Errorf("credential could not be decrypted: %w", err)
	}

	ok, err := adapter.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrTokenExpired
	}

	if err := d.limiter(acct.ID).Wait(ctx); err != nil {
		return "", err
	}

	out, err := adapter.Publish(ctx, platforms.Account{
		ID:                acct.ID,
		PlatformAccountID: acct.PlatformAccountID,
		DisplayName:       acct.DisplayName,
		Type:              acct.AccountType,
		AccessToken:       token,
	}, content)
	if err != nil {
		return "", err
	}
	return out.PlatformPostID, nil
}

// limiter spaces publishes per account across batches for the lifetime of
// the dispatcher.
func (d *Dispatcher) limiter(accountID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[accountID]
	if !ok {
		limit := rate.Inf
		if d.perMinute > 0 {
			limit = rate.Limit(float64(d.perMinute) / 60)
		}
		l = rate.NewLimiter(limit, 1)
		d.limiters[accountID] = l
	}
	return l
}
