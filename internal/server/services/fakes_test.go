package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/cryptox"
	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/posts"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/targets"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/teams"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// -------- in-memory store --------

// memDB backs every fake repository. It mirrors the conditional-update
// semantics of the Postgres repositories.
type memDB struct {
	mu       sync.Mutex
	seq      int
	posts    map[string]*models.Post
	targets  []*models.Target
	accounts map[string]*models.SocialAccount
	creds    map[string]*models.Credential
	roles    map[string][]models.TeamRole
}

func newMemDB() *memDB {
	return &memDB{
		posts:    map[string]*models.Post{},
		accounts: map[string]*models.SocialAccount{},
		creds:    map[string]*models.Credential{},
		roles:    map[string][]models.TeamRole{},
	}
}

func (m *memDB) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func copyPost(p *models.Post) *models.Post {
	c := *p
	c.Targets = nil
	return &c
}

func (m *memDB) grant(reviewerID, authorID string, roles ...models.TeamRole) {
	m.roles[reviewerID+"|"+authorID] = roles
}

func (m *memDB) post(id string) *models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyPost(m.posts[id])
}

func (m *memDB) targetsOf(postID string) []models.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Target
	for _, t := range m.targets {
		if t.PostID == postID {
			out = append(out, *t)
		}
	}
	return out
}

func (m *memDB) targetFor(postID, accountID string) models.Target {
	for _, t := range m.targetsOf(postID) {
		if t.AccountID == accountID {
			return t
		}
	}
	return models.Target{}
}

// -------- posts --------

type memPosts struct {
	posts.Repository
	m *memDB
}

func (r *memPosts) Create(_ context.Context, p *models.Post) (*models.Post, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p.ID = r.m.nextID("post")
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.m.posts[p.ID] = copyPost(p)
	return p, nil
}

func (r *memPosts) GetByID(_ context.Context, id string) (*models.Post, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.posts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyPost(p), nil
}

func (r *memPosts) GetByIDForUpdate(ctx context.Context, id string) (*models.Post, error) {
	return r.GetByID(ctx, id)
}

func (r *memPosts) ListByUser(_ context.Context, userID string, status *models.PostStatus) ([]*models.Post, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Post
	for _, p := range r.m.posts {
		if p.UserID == userID && (status == nil || p.Status == *status) {
			out = append(out, copyPost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPosts) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Post, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Post
	for _, p := range r.m.posts {
		if p.Status == models.StatusScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(now) {
			out = append(out, copyPost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPosts) ListPendingForReviewer(_ context.Context, reviewerID string) ([]*models.Post, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Post
	for _, p := range r.m.posts {
		if p.Status != models.StatusPendingReview || p.UserID == reviewerID {
			continue
		}
		if slices.ContainsFunc(r.m.roles[reviewerID+"|"+p.UserID], models.TeamRole.CanReview) {
			out = append(out, copyPost(p))
		}
	}
	return out, nil
}

func (r *memPosts) update(id string, guard func(*models.Post) bool, apply func(*models.Post)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.posts[id]
	if !ok || !guard(p) {
		return common.ErrStatusConflict
	}
	apply(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memPosts) UpdateContent(_ context.Context, post *models.Post) error {
	return r.update(post.ID, func(p *models.Post) bool {
		return p.Status == models.StatusDraft || p.Status == models.StatusScheduled
	}, func(p *models.Post) {
		p.Content, p.Kind, p.ImageURL, p.VideoURL, p.ScheduledAt = post.Content, post.Kind, post.ImageURL, post.VideoURL, post.ScheduledAt
	})
}

func (r *memPosts) Transition(_ context.Context, id string, from, to models.PostStatus, errMsg *string) error {
	return r.update(id, func(p *models.Post) bool { return p.Status == from }, func(p *models.Post) {
		p.Status, p.ErrorMessage = to, errMsg
	})
}

func (r *memPosts) Approve(_ context.Context, id string, to models.PostStatus, reviewerID string, note *string, at time.Time) error {
	return r.update(id, func(p *models.Post) bool { return p.Status == models.StatusPendingReview }, func(p *models.Post) {
		p.Status, p.ApprovedBy, p.ApprovedAt, p.ApprovalNote = to, &reviewerID, &at, note
	})
}

func (r *memPosts) Reject(_ context.Context, id string, note string) error {
	return r.update(id, func(p *models.Post) bool { return p.Status == models.StatusPendingReview }, func(p *models.Post) {
		p.Status, p.ApprovedBy, p.ApprovedAt, p.ApprovalNote = models.StatusDraft, nil, nil, &note
	})
}

func (r *memPosts) Reschedule(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(p *models.Post) bool { return p.Status == models.StatusFailed }, func(p *models.Post) {
		p.Status, p.ScheduledAt, p.ErrorMessage = models.StatusScheduled, &at, nil
	})
}

func (r *memPosts) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.posts[id]
	if !ok || p.Status == models.StatusPublishing {
		return common.ErrStatusConflict
	}
	delete(r.m.posts, id)
	r.m.targets = slices.DeleteFunc(r.m.targets, func(t *models.Target) bool { return t.PostID == id })
	return nil
}

func (r *memPosts) ResetStuck(_ context.Context, olderThan time.Time) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []string
	for _, p := range r.m.posts {
		if p.Status == models.StatusPublishing && p.UpdatedAt.Before(olderThan) {
			p.Status = models.StatusScheduled
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// -------- targets --------

type memTargets struct {
	targets.Repository
	m *memDB
}

func (r *memTargets) CreateMany(_ context.Context, postID string, accountIDs []string, status models.PostStatus) ([]models.Target, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]models.Target, 0, len(accountIDs))
	for _, a := range accountIDs {
		t := &models.Target{ID: r.m.nextID("target"), PostID: postID, AccountID: a, Status: status}
		r.m.targets = append(r.m.targets, t)
		out = append(out, *t)
	}
	return out, nil
}

func (r *memTargets) ListByPost(_ context.Context, postID string) ([]models.Target, error) {
	return r.m.targetsOf(postID), nil
}

func (r *memTargets) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := len(r.m.targets)
	r.m.targets = slices.DeleteFunc(r.m.targets, func(t *models.Target) bool { return t.ID == id })
	if len(r.m.targets) == n {
		return common.ErrStatusConflict
	}
	return nil
}

func (r *memTargets) SetStatusByPost(_ context.Context, postID string, status models.PostStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.targets {
		if t.PostID == postID {
			t.Status, t.ErrorMessage = status, nil
		}
	}
	return nil
}

func (r *memTargets) scheduled(id string, apply func(*models.Target)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.targets {
		if t.ID == id && t.Status == models.StatusScheduled {
			apply(t)
			return nil
		}
	}
	return common.ErrStatusConflict
}

func (r *memTargets) MarkPublished(_ context.Context, id, platformPostID string, at time.Time) error {
	return r.scheduled(id, func(t *models.Target) {
		t.Status, t.PlatformPostID, t.PublishedAt, t.ErrorMessage = models.StatusPublished, &platformPostID, &at, nil
	})
}

func (r *memTargets) MarkFailed(_ context.Context, id, errMsg string) error {
	return r.scheduled(id, func(t *models.Target) {
		t.Status, t.ErrorMessage = models.StatusFailed, &errMsg
	})
}

func (r *memTargets) ResetFailed(_ context.Context, postID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, t := range r.m.targets {
		if t.PostID == postID && t.Status == models.StatusFailed {
			t.Status, t.ErrorMessage = models.StatusScheduled, nil
			n++
		}
	}
	return n, nil
}

func (r *memTargets) ListPublished(_ context.Context) ([]models.PublishedTarget, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.PublishedTarget
	for _, t := range r.m.targets {
		if t.Status != models.StatusPublished {
			continue
		}
		a := r.m.accounts[t.AccountID]
		out = append(out, models.PublishedTarget{
			TargetID: t.ID, PostID: t.PostID, AccountID: t.AccountID, Platform: a.Platform,
			PlatformPostID: *t.PlatformPostID, AccessToken: a.AccessToken, PublishedAt: *t.PublishedAt,
		})
	}
	return out, nil
}

func (r *memTargets) GetPublished(ctx context.Context, id string) (*models.PublishedTarget, error) {
	list, _ := r.ListPublished(ctx)
	for _, t := range list {
		if t.TargetID == id {
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

// -------- accounts / credentials / teams --------

type memAccounts struct {
	accounts.Repository
	m *memDB
}

func (r *memAccounts) Upsert(_ context.Context, a *models.SocialAccount) (*models.SocialAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, cur := range r.m.accounts {
		if cur.UserID == a.UserID && cur.Platform == a.Platform && cur.PlatformAccountID == a.PlatformAccountID {
			a.ID, a.CreatedAt = cur.ID, cur.CreatedAt
			if a.RefreshToken == nil {
				a.RefreshToken = cur.RefreshToken
			}
		}
	}
	if a.ID == "" {
		a.ID = r.m.nextID("acct")
		a.CreatedAt = time.Now().UTC()
	}
	a.Active = true
	c := *a
	r.m.accounts[a.ID] = &c
	return a, nil
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*models.SocialAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *a
	return &c, nil
}

func (r *memAccounts) ListByUser(_ context.Context, userID string, activeOnly bool) ([]*models.SocialAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.m.accounts {
		if a.UserID == userID && (a.Active || !activeOnly) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAccounts) Deactivate(_ context.Context, id, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok || a.UserID != userID {
		return common.ErrorNotFound
	}
	a.Active = false
	return nil
}

func (r *memAccounts) UpdateTokens(_ context.Context, id, access string, refresh *string, exp *time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.AccessToken = access
	if refresh != nil {
		a.RefreshToken = refresh
	}
	if exp != nil {
		a.TokenExpiresAt = exp
	}
	return nil
}

type memCredentials struct {
	credentials.Repository
	m *memDB
}

func (r *memCredentials) Get(_ context.Context, userID string, p models.Platform) (*models.Credential, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.creds[userID+"|"+string(p)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cc := *c
	return &cc, nil
}

func (r *memCredentials) Upsert(_ context.Context, c *models.Credential) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cc := *c
	r.m.creds[c.UserID+"|"+string(c.Platform)] = &cc
	return nil
}

type memTeams struct {
	teams.Repository
	m *memDB
}

func (r *memTeams) ReviewerRoles(_ context.Context, reviewerID, authorID string) ([]models.TeamRole, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.roles[reviewerID+"|"+authorID], nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	m *memDB
}

func (f *fakeRepoManager) Posts(dbx.DBTX) posts.Repository       { return &memPosts{m: f.m} }
func (f *fakeRepoManager) Targets(dbx.DBTX) targets.Repository   { return &memTargets{m: f.m} }
func (f *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository { return &memAccounts{m: f.m} }
func (f *fakeRepoManager) Credentials(dbx.DBTX) credentials.Repository {
	return &memCredentials{m: f.m}
}
func (f *fakeRepoManager) Teams(dbx.DBTX) teams.Repository { return &memTeams{m: f.m} }

// -------- adapters --------

type fakeAdapter struct {
	platforms.Adapter
	platform models.Platform

	mu        sync.Mutex
	publishFn func(platforms.Account, platforms.Content) (*platforms.PublishResult, error)
	valid     func(token string) (bool, error)
	published []platforms.Account
	validated int
	refreshed []platforms.Account
	creds     []platforms.AppCredentials

	identities []platforms.Identity
	grants     []platforms.Grant
	issued     int
}

func (a *fakeAdapter) Platform() models.Platform { return a.platform }

func (a *fakeAdapter) ValidateToken(_ context.Context, token string) (bool, error) {
	a.mu.Lock()
	a.validated++
	a.mu.Unlock()
	if a.valid != nil {
		return a.valid(token)
	}
	return true, nil
}

func (a *fakeAdapter) Publish(_ context.Context, acct platforms.Account, c platforms.Content) (*platforms.PublishResult, error) {
	a.mu.Lock()
	a.published = append(a.published, acct)
	a.mu.Unlock()
	return a.publishFn(acct, c)
}

func (a *fakeAdapter) RefreshToken(_ context.Context, creds platforms.AppCredentials, acct platforms.Account) (*platforms.Tokens, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshed = append(a.refreshed, acct)
	a.creds = append(a.creds, creds)
	exp := time.Now().Add(60 * 24 * time.Hour).UTC()
	return &platforms.Tokens{AccessToken: "fresh-" + acct.AccessToken, ExpiresAt: &exp}, nil
}

func (a *fakeAdapter) FetchMetrics(_ context.Context, id, token string) (*platforms.Metrics, error) {
	if token == "" {
		return nil, common.ErrTokenExpired
	}
	return &platforms.Metrics{Likes: int64(len(id)), Comments: 1}, nil
}

func (a *fakeAdapter) BuildAuthorizationURL(_ context.Context, creds platforms.AppCredentials) (*platforms.Authorization, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issued++
	a.creds = append(a.creds, creds)
	state := fmt.Sprintf("%s-state-%d", a.platform, a.issued)
	return &platforms.Authorization{
		URL:      "https://auth.example.com/" + string(a.platform) + "?state=" + state,
		State:    state,
		Verifier: "verifier-" + state,
	}, nil
}

func (a *fakeAdapter) ExchangeCode(_ context.Context, _ platforms.AppCredentials, g platforms.Grant) ([]platforms.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if g.ReturnedState != g.IssuedState {
		return nil, common.ErrInvalidState
	}
	a.grants = append(a.grants, g)
	return a.identities, nil
}

func (a *fakeAdapter) publishCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.published)
}

func returns(id string) func(platforms.Account, platforms.Content) (*platforms.PublishResult, error) {
	return func(platforms.Account, platforms.Content) (*platforms.PublishResult, error) {
		return &platforms.PublishResult{PlatformPostID: id}, nil
	}
}

// -------- helpers --------

func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestVault(t *testing.T) *cryptox.Vault {
	t.Helper()
	v, err := cryptox.NewVault("test-encryption-key")
	require.NoError(t, err)
	return v
}

func testConfig() *config.Config {
	return &config.Config{
		DispatchBatchSize: 10,
		OAuthRedirectBase: "https://app.example.com/oauth/callback",
		OAuthStateTTL:     10 * time.Minute,
		Platforms: map[string]config.PlatformApp{
			"twitter": {ClientID: "sys-id", ClientSecret: "sys-secret"},
		},
	}
}

type env struct {
	t        *testing.T
	db       *sql.DB
	mem      *memDB
	rm       *fakeRepoManager
	vault    *cryptox.Vault
	adapters *platforms.Registry
	fakes    map[models.Platform]*fakeAdapter
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := newMemDB()
	fakes := map[models.Platform]*fakeAdapter{}
	var list []platforms.Adapter
	for _, p := range models.Platforms {
		f := &fakeAdapter{platform: p, publishFn: returns(string(p) + "_post")}
		fakes[p] = f
		list = append(list, f)
	}
	return &env{
		t:        t,
		db:       newTxDB(t),
		mem:      mem,
		rm:       &fakeRepoManager{m: mem},
		vault:    newTestVault(t),
		adapters: platforms.NewRegistry(list...),
		fakes:    fakes,
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func (e *env) clock() time.Time { return e.now }

// account stores an active account with a sealed token.
func (e *env) account(userID string, p models.Platform, typ models.AccountType, token string) *models.SocialAccount {
	e.t.Helper()
	sealed, err := e.vault.Seal(token)
	require.NoError(e.t, err)
	a, err := (&memAccounts{m: e.mem}).Upsert(context.Background(), &models.SocialAccount{
		UserID: userID, Platform: p, PlatformAccountID: string(p) + "-" + token,
		DisplayName: string(p), AccountType: typ, AccessToken: sealed,
	})
	require.NoError(e.t, err)
	return a
}

func (e *env) posts() *PostService {
	s := NewPostService(e.db, e.rm, testConfig(), logging.Nop{})
	s.now = e.clock
	return s
}

func (e *env) review() *ReviewService {
	s := NewReviewService(e.db, e.rm, logging.Nop{})
	s.now = e.clock
	return s
}

func (e *env) dispatcher(cfg *config.Config) *Dispatcher {
	if cfg == nil {
		cfg = testConfig()
	}
	d := NewDispatcher(e.db, e.rm, cfg, e.adapters, e.vault, logging.Nop{})
	d.now = e.clock
	return d
}

func (e *env) accounts() *AccountService {
	s := NewAccountService(e.db, e.rm, testConfig(), e.adapters, e.vault, logging.Nop{})
	s.now = e.clock
	return s
}

func ptr[T any](v T) *T { return &v }
