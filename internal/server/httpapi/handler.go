// Package httpapi is the HTTP command surface: user commands under /api/v1
// authenticated with a bearer JWT, and collaborator endpoints under
// /internal guarded by a shared secret.
package httpapi

import (
	"context"

	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
)

type postSvc interface {
	Create(ctx context.Context, userID string, in services.PostInput) (*models.Post, error)
	Update(ctx context.Context, userID, postID string, in services.PostInput) (*models.Post, error)
	Delete(ctx context.Context, userID, postID string) error
	Retry(ctx context.Context, userID, postID string) (*models.Post, error)
	List(ctx context.Context, userID string, status *models.PostStatus) ([]*models.Post, error)
	Get(ctx context.Context, userID, postID string) (*models.Post, error)
}

type reviewSvc interface {
	Submit(ctx context.Context, userID, postID string) (*models.Post, error)
	Approve(ctx context.Context, reviewerID, postID string, note *string) (*models.Post, error)
	Reject(ctx context.Context, reviewerID, postID, note string) (*models.Post, error)
	ListPending(ctx context.Context, reviewerID string) ([]*models.Post, error)
}

type accountSvc interface {
	UpsertAccount(ctx context.Context, userID string, in services.AccountInput) (*services.AccountView, error)
	ListAccounts(ctx context.Context, userID string, activeOnly bool) ([]services.AccountView, error)
	Disconnect(ctx context.Context, userID, accountID string) error
	RefreshAccountToken(ctx context.Context, userID, accountID string) (*services.AccountView, error)
	TestPublish(ctx context.Context, userID, accountID, text string) (*platforms.PublishResult, error)
	SaveCredentials(ctx context.Context, userID string, platform models.Platform, clientID, clientSecret string) error
}

type connectSvc interface {
	StartAuthorization(ctx context.Context, userID string, platform models.Platform) (string, error)
	CompleteAuthorization(ctx context.Context, userID string, platform models.Platform, code, state string) ([]services.AccountView, error)
}

type dispatchSvc interface {
	RunDueBatch(ctx context.Context) (*services.BatchSummary, error)
}

type analyticsSvc interface {
	ListPublishedTargets(ctx context.Context) ([]services.PublishedTargetView, error)
	FetchTargetMetrics(ctx context.Context, targetID string) (*platforms.Metrics, error)
}

type mediaSvc interface {
	PresignUpload(ctx context.Context, userID, filename string) (ref, url string, err error)
}

// Handler holds the services behind every route.
type Handler struct {
	posts      postSvc
	review     reviewSvc
	accounts   accountSvc
	connect    connectSvc
	dispatcher dispatchSvc
	analytics  analyticsSvc
	media      mediaSvc
	logger     logging.Logger
}

// Services groups the dependencies of NewHandler.
type Services struct {
	Posts      postSvc
	Review     reviewSvc
	Accounts   accountSvc
	Connect    connectSvc
	Dispatcher dispatchSvc
	Analytics  analyticsSvc
	Media      mediaSvc
}

func NewHandler(s Services, l logging.Logger) *Handler {
	return &Handler{
		posts:      s.Posts,
		review:     s.Review,
		accounts:   s.Accounts,
		connect:    s.Connect,
		dispatcher: s.Dispatcher,
		analytics:  s.Analytics,
		media:      s.Media,
		logger:     l.With("module", "http_api"),
	}
}
