package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/oauthstate"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
)

// ConnectService drives the adapter authorization flow and hands the
// resulting identities to AccountService.
type ConnectService struct {
	accounts *AccountService
	adapters Adapters
	states   oauthstate.Store
	ttl      time.Duration
	log      logging.Logger
	now      Clock
}

func NewConnectService(accounts *AccountService, adapters Adapters, states oauthstate.Store, cfg *config.Config, log logging.Logger) *ConnectService {
	ttl := cfg.OAuthStateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ConnectService{
		accounts: accounts,
		adapters: adapters,
		states:   states,
		ttl:      ttl,
		log:      log.With("module", "connect"),
		now:      systemClock,
	}
}

// StartAuthorization returns the URL the user should be redirected to.
func (s *ConnectService) StartAuthorization(ctx context.Context, userID string, platform models.Platform) (string, error) {
	adapter, err := s.adapters.Get(platform)
	if err != nil {
		return "", err
	}
	creds, err := s.accounts.AppCredentials(ctx, userID, platform)
	if err != nil {
		return "", err
	}

	auth, err := adapter.BuildAuthorizationURL(ctx, creds)
	if err != nil {
		return "", err
	}
	pending := oauthstate.Pending{State: auth.State, Platform: platform, UserID: userID, Verifier: auth.Verifier, CreatedAt: s.now()}
	if err := s.states.Save(ctx, auth.State, pending, s.ttl); err != nil {
		return "", err
	}
	return auth.URL, nil
}

// CompleteAuthorization consumes the state, exchanges the code and stores
// every identity the platform returned.
func (s *ConnectService) CompleteAuthorization(ctx context.Context, userID string, platform models.Platform, code, state string) ([]AccountView, error) {
	if state == "" {
		return nil, common.ErrInvalidState
	}
	pending, err := s.states.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	if pending.UserID != userID || pending.Platform != platform {
		s.log.Warn(ctx, "authorization state bound to another attempt", "platform", platform)
		return nil, common.ErrInvalidState
	}

	adapter, err := s.adapters.Get(platform)
	if err != nil {
		return nil, err
	}
	creds, err := s.accounts.AppCredentials(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	identities, err := adapter.ExchangeCode(ctx, creds, platforms.Grant{
		Code:          code,
		ReturnedState: state,
		IssuedState:   pending.State,
		Verifier:      pending.Verifier,
	})
	if err != nil {
		s.log.Warn(ctx, "code exchange failed", "platform", platform, "error", err)
		return nil, err
	}

	out := make([]AccountView, 0, len(identities))
	for _, id := range identities {
		v, err := s.accounts.UpsertAccount(ctx, userID, AccountInput{
			Platform:          platform,
			PlatformAccountID: id.PlatformAccountID,
			DisplayName:       id.DisplayName,
			AvatarURL:         id.AvatarURL,
			AccountType:       id.AccountType,
			AccessToken:       id.AccessToken,
			RefreshToken:      id.RefreshToken,
			ExpiresAt:         id.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
