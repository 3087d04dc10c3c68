package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
)

// PublishedTargetView is what the analytics collaborator reads. AccessToken
// is plaintext and must not be persisted by the caller.
type PublishedTargetView struct {
	TargetID       string          `json:"target_id"`
	PostID         string          `json:"post_id"`
	AccountID      string          `json:"account_id"`
	Platform       models.Platform `json:"platform"`
	PlatformPostID string          `json:"platform_post_id"`
	AccessToken    string          `json:"access_token"`
	PublishedAt    time.Time       `json:"published_at"`
}

// AnalyticsService exposes published targets and per-target metrics.
type AnalyticsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	adapters    Adapters
	vault       Vault
	log         logging.Logger
}

func NewAnalyticsService(db *sql.DB, m repomanager.RepositoryManager, adapters Adapters, vault Vault, log logging.Logger) *AnalyticsService {
	return &AnalyticsService{db: db, repomanager: m, adapters: adapters, vault: vault, log: log.With("module", "analytics")}
}

// ListPublishedTargets skips targets whose token cannot be revealed.
func (s *AnalyticsService) ListPublishedTargets(ctx context.Context) ([]PublishedTargetView, error) {
	list, err := s.repomanager.Targets(s.db).ListPublished(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PublishedTargetView, 0, len(list))
	for _, t := range list {
		token, err := s.vault.Reveal(t.AccessToken)
		if err != nil {
			s.log.Error(ctx, "reveal account token", "account_id", t.AccountID, "error", err)
			continue
		}
		out = append(out, PublishedTargetView{
			TargetID:       t.TargetID,
			PostID:         t.PostID,
			AccountID:      t.AccountID,
			Platform:       t.Platform,
			PlatformPostID: t.PlatformPostID,
			AccessToken:    token,
			PublishedAt:    t.PublishedAt,
		})
	}
	return out, nil
}

// FetchTargetMetrics reads engagement counters for one published target.
func (s *AnalyticsService) FetchTargetMetrics(ctx context.Context, targetID string) (*platforms.Metrics, error) {
	t, err := s.repomanager.Targets(s.db).GetPublished(ctx, targetID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Get(t.Platform)
	if err != nil {
		return nil, err
	}
	token, err := s.vault.Reveal(t.AccessToken)
	if err != nil {
		return nil, err
	}
	return adapter.FetchMetrics(ctx, t.PlatformPostID, token)
}
