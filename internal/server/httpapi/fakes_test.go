package httpapi

import (
	"context"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
)

type fakePosts struct {
	postSvc
	userID string
	postID string
	input  services.PostInput
	status *models.PostStatus

	post *models.Post
	list []*models.Post
	err  error
}

func (f *fakePosts) Create(_ context.Context, userID string, in services.PostInput) (*models.Post, error) {
	f.userID, f.input = userID, in
	return f.post, f.err
}

func (f *fakePosts) Update(_ context.Context, userID, postID string, in services.PostInput) (*models.Post, error) {
	f.userID, f.postID, f.input = userID, postID, in
	return f.post, f.err
}

func (f *fakePosts) Delete(_ context.Context, userID, postID string) error {
	f.userID, f.postID = userID, postID
	return f.err
}

func (f *fakePosts) Retry(_ context.Context, userID, postID string) (*models.Post, error) {
	f.userID, f.postID = userID, postID
	return f.post, f.err
}

func (f *fakePosts) List(_ context.Context, userID string, status *models.PostStatus) ([]*models.Post, error) {
	f.userID, f.status = userID, status
	return f.list, f.err
}

func (f *fakePosts) Get(_ context.Context, userID, postID string) (*models.Post, error) {
	f.userID, f.postID = userID, postID
	return f.post, f.err
}

type fakeReview struct {
	reviewSvc
	userID string
	note   *string
	post   *models.Post
	err    error
}

func (f *fakeReview) Submit(_ context.Context, userID, _ string) (*models.Post, error) {
	f.userID = userID
	return f.post, f.err
}

func (f *fakeReview) Approve(_ context.Context, reviewerID, _ string, note *string) (*models.Post, error) {
	f.userID, f.note = reviewerID, note
	return f.post, f.err
}

func (f *fakeReview) Reject(_ context.Context, reviewerID, _ string, note string) (*models.Post, error) {
	f.userID, f.note = reviewerID, &note
	return f.post, f.err
}

func (f *fakeReview) ListPending(_ context.Context, reviewerID string) ([]*models.Post, error) {
	f.userID = reviewerID
	return nil, f.err
}

type fakeAccounts struct {
	accountSvc
	userID     string
	activeOnly bool
	input      services.AccountInput
	views      []services.AccountView
	err        error
}

func (f *fakeAccounts) ListAccounts(_ context.Context, userID string, activeOnly bool) ([]services.AccountView, error) {
	f.userID, f.activeOnly = userID, activeOnly
	return f.views, f.err
}

func (f *fakeAccounts) UpsertAccount(_ context.Context, userID string, in services.AccountInput) (*services.AccountView, error) {
	f.userID, f.input = userID, in
	if f.err != nil {
		return nil, f.err
	}
	return &services.AccountView{ID: "acct-1", Platform: in.Platform, Active: true}, nil
}

func (f *fakeAccounts) TestPublish(_ context.Context, userID, _, _ string) (*platforms.PublishResult, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &platforms.PublishResult{PlatformPostID: "123"}, nil
}

type fakeDispatcher struct {
	calls int
	sum   *services.BatchSummary
	err   error
}

func (f *fakeDispatcher) RunDueBatch(context.Context) (*services.BatchSummary, error) {
	f.calls++
	return f.sum, f.err
}

type fakeAnalytics struct {
	analyticsSvc
	list []services.PublishedTargetView
}

func (f *fakeAnalytics) ListPublishedTargets(context.Context) ([]services.PublishedTargetView, error) {
	return f.list, nil
}
