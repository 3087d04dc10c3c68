package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crosspost/internal/server/tokenhealth"
)

// AccountInput is what the OAuth callback hands over. Tokens are plaintext.
type AccountInput struct {
	Platform          models.Platform
	PlatformAccountID string
	DisplayName       string
	AvatarURL         string
	AccountType       models.AccountType
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
}

// AccountView is a social account without its tokens.
type AccountView struct {
	ID                string             `json:"id"`
	Platform          models.Platform    `json:"platform"`
	PlatformAccountID string             `json:"platform_account_id"`
	DisplayName       string             `json:"display_name"`
	AvatarURL         *string            `json:"avatar_url,omitempty"`
	AccountType       models.AccountType `json:"account_type"`
	Active            bool               `json:"active"`
	TokenExpiresAt    *time.Time         `json:"token_expires_at,omitempty"`
	Health            tokenhealth.Status `json:"health"`
	NeedsReconnect    bool               `json:"needs_reconnect"`
}

func viewOf(a *models.SocialAccount, now time.Time) AccountView {
	h := tokenhealth.ClassifyAccount(a, now)
	return AccountView{
		ID:                a.ID,
		Platform:          a.Platform,
		PlatformAccountID: a.PlatformAccountID,
		DisplayName:       a.DisplayName,
		AvatarURL:         a.AvatarURL,
		AccountType:       a.AccountType,
		Active:            a.Active,
		TokenExpiresAt:    a.TokenExpiresAt,
		Health:            h,
		NeedsReconnect:    h.NeedsReconnect(),
	}
}

// AccountService manages connected accounts and user OAuth apps. Tokens and
// client secrets only exist in plaintext for the duration of one call.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cfg         *config.Config
	adapters    Adapters
	vault       Vault
	log         logging.Logger
	now         Clock
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, adapters Adapters, vault Vault, log logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		cfg:         cfg,
		adapters:    adapters,
		vault:       vault,
		log:         log.With("module", "accounts"),
		now:         systemClock,
	}
}

// UpsertAccount stores or refreshes the binding identified by
// (user, platform, platform account id) and reactivates it.
func (s *AccountService) UpsertAccount(ctx context.Context, userID string, in AccountInput) (*AccountView, error) {
	if _, err := models.ParsePlatform(string(in.Platform)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PlatformAccountID) == "" {
		return nil, common.Invalid("platform_account_id", "is required")
	}
	if in.AccessToken == "" {
		return nil, common.Invalid("access_token", "is required")
	}
	if in.AccountType == "" {
		in.AccountType = models.AccountProfile
	}

	access, err := s.vault.Seal(in.AccessToken)
	if err != nil {
		return nil, err
	}
	var refresh *string
	if in.RefreshToken != "" {
		sealed, err := s.vault.Seal(in.RefreshToken)
		if err != nil {
			return nil, err
		}
		refresh = &sealed
	}

	acct, err := s.repomanager.Accounts(s.db).Upsert(ctx, &models.SocialAccount{
		UserID:            userID,
		Platform:          in.Platform,
		PlatformAccountID: in.PlatformAccountID,
		DisplayName:       in.DisplayName,
		AvatarURL:         strPtr(in.AvatarURL),
		AccountType:       in.AccountType,
		AccessToken:       access,
		RefreshToken:      refresh,
		TokenExpiresAt:    in.ExpiresAt,
		Active:            true,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account connected", "account_id", acct.ID, "platform", acct.Platform, "type", acct.AccountType)
	v := viewOf(acct, s.now())
	return &v, nil
}

// ListAccounts returns the user's accounts with token health.
func (s *AccountService) ListAccounts(ctx context.Context, userID string, activeOnly bool) ([]AccountView, error) {
	list, err := s.repomanager.Accounts(s.db).ListByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]AccountView, 0, len(list))
	for _, a := range list {
		out = append(out, viewOf(a, now))
	}
	return out, nil
}

// Disconnect soft-deletes the account; historical targets keep referencing it.
func (s *AccountService) Disconnect(ctx context.Context, userID, accountID string) error {
	if err := s.repomanager.Accounts(s.db).Deactivate(ctx, accountID, userID); err != nil {
		return err
	}
	s.log.Info(ctx, "account disconnected", "account_id", accountID)
	return nil
}

// RefreshAccountToken renews the account's token through its adapter.
func (s *AccountService) RefreshAccountToken(ctx context.Context, userID, accountID string) (*AccountView, error) {
	acct, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Get(acct.Platform)
	if err != nil {
		return nil, err
	}
	creds, err := s.AppCredentials(ctx, userID, acct.Platform)
	if err != nil {
		return nil, err
	}
	pa, err := s.reveal(acct)
	if err != nil {
		return nil, err
	}

	tok, err := adapter.RefreshToken(ctx, creds, pa)
	if err != nil {
		s.log.Warn(ctx, "token refresh failed", "account_id", acct.ID, "platform", acct.Platform, "error", err)
		return nil, err
	}

	access, err := s.vault.Seal(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	var refresh *string
	if tok.RefreshToken != "" {
		sealed, err := s.vault.Seal(tok.RefreshToken)
		if err != nil {
			return nil, err
		}
		refresh = &sealed
	}
	if err := s.repomanager.Accounts(s.db).UpdateTokens(ctx, acct.ID, access, refresh, tok.ExpiresAt); err != nil {
		return nil, err
	}

	acct.AccessToken = access
	if refresh != nil {
		acct.RefreshToken = refresh
	}
	if tok.ExpiresAt != nil {
		acct.TokenExpiresAt = tok.ExpiresAt
	}
	s.log.Info(ctx, "token refreshed", "account_id", acct.ID, "platform", acct.Platform)
	v := viewOf(acct, s.now())
	return &v, nil
}

// TestPublish sends one post to one account outside the dispatcher. It is
// gated by token health like a scheduled publish.
func (s *AccountService) TestPublish(ctx context.Context, userID, accountID, text string) (*platforms.PublishResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, common.Invalid("content", "is required")
	}
	acct, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, common.Invalid("account_id", "account is disconnected")
	}
	if !tokenhealth.ClassifyAccount(acct, s.now()).Publishable() {
		return nil, common.ErrTokenExpired
	}

	adapter, err := s.adapters.Get(acct.Platform)
	if err != nil {
		return nil, err
	}
	pa, err := s.reveal(acct)
	if err != nil {
		return nil, err
	}

	ok, err := adapter.ValidateToken(ctx, pa.AccessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrTokenExpired
	}

	content := platforms.Content{Text: text, Kind: models.KindText}
	return adapter.Publish(ctx, pa, content)
}

// SaveCredentials stores the user's own OAuth app for a platform.
func (s *AccountService) SaveCredentials(ctx context.Context, userID string, platform models.Platform, clientID, clientSecret string) error {
	if _, err := models.ParsePlatform(string(platform)); err != nil {
		return err
	}
	clientID, clientSecret = strings.TrimSpace(clientID), strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return common.Invalid("credentials", "client id and secret are required")
	}

	id, err := s.vault.Seal(clientID)
	if err != nil {
		return err
	}
	secret, err := s.vault.Seal(clientSecret)
	if err != nil {
		return err
	}
	if err := s.repomanager.Credentials(s.db).Upsert(ctx, &models.Credential{
		UserID: userID, Platform: platform, ClientID: id, ClientSecret: secret,
	}); err != nil {
		return err
	}
	s.log.Info(ctx, "credentials saved", "platform", platform)
	return nil
}

// AppCredentials resolves the OAuth app for (user, platform): the user's own
// record when present, the configured system default otherwise.
func (s *AccountService) AppCredentials(ctx context.Context, userID string, platform models.Platform) (platforms.AppCredentials, error) {
	creds := platforms.AppCredentials{RedirectURL: s.redirectURL(platform)}

	rec, err := s.repomanager.Credentials(s.db).Get(ctx, userID, platform)
	switch {
	case err == nil:
		if creds.ClientID, err = s.vault.Reveal(rec.ClientID); err != nil {
			return creds, err
		}
		if creds.ClientSecret, err = s.vault.Reveal(rec.ClientSecret); err != nil {
			return creds, err
		}
		return creds, nil
	case !errors.Is(err, common.ErrorNotFound):
		return creds, err
	}

	if app, ok := s.cfg.App(string(platform)); ok {
		creds.ClientID, creds.ClientSecret = app.ClientID, app.ClientSecret
	}
	return creds, nil
}

func (s *AccountService) redirectURL(platform models.Platform) string {
	if s.cfg.OAuthRedirectBase == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.OAuthRedirectBase, "/") + "/" + string(platform)
}

func (s *AccountService) owned(ctx context.Context, userID, accountID string) (*models.SocialAccount, error) {
	acct, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return acct, nil
}

func (s *AccountService) reveal(acct *models.SocialAccount) (platforms.Account, error) {
	access, err := s.vault.Reveal(acct.AccessToken)
	if err != nil {
		s.log.Error(context.Background(), "reveal account token", "account_id", acct.ID, "error", err)
		return platforms.Account{}, err
	}
	refresh, err := s.vault.RevealOptional(acct.RefreshToken)
	if err != nil {
		return platforms.Account{}, err
	}
	return platforms.Account{
		ID:                acct.ID,
		PlatformAccountID: acct.PlatformAccountID,
		DisplayName:       acct.DisplayName,
		Type:              acct.AccountType,
		AccessToken:       access,
		RefreshToken:      refresh,
	}, nil
}
