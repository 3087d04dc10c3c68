package platforms

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/oauthstate"
	"golang.org/x/oauth2"
)

// oauthFlow is the authorization-code flow shared by all adapters.
type oauthFlow struct {
	platform  models.Platform
	authURL   string
	tokenURL  string
	authStyle oauth2.AuthStyle
	scopes    []string
	pkce      bool
	// extra authorization URL parameters
	params map[string]string
	http   *http.Client
	// timeout bounds each token endpoint call
	timeout time.Duration
}

func (f *oauthFlow) config(creds AppCredentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
		Scopes:       f.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.authURL,
			TokenURL:  f.tokenURL,
			AuthStyle: f.authStyle,
		},
	}
}

func (f *oauthFlow) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.http)
	return context.WithTimeout(ctx, f.timeout)
}

func (f *oauthFlow) authorize(creds AppCredentials) (*Authorization, error) {
	if creds.ClientID == "" {
		return nil, validationError(f.platform, "no OAuth client configured")
	}

	state, err := oauthstate.NewState()
	if err != nil {
		return nil, err
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(f.params)+1)
	for k, v := range f.params {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	auth := &Authorization{State: state}
	if f.pkce {
		auth.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(auth.Verifier))
	}
	auth.URL = f.config(creds).AuthCodeURL(state, opts...)

	return auth, nil
}

// checkState compares in constant time. An empty issued state never matches.
func checkState(grant Grant) error {
	if grant.IssuedState == "" ||
		subtle.ConstantTimeCompare([]byte(grant.ReturnedState), []byte(grant.IssuedState)) != 1 {
		return common.ErrInvalidState
	}
	return nil
}

func (f *oauthFlow) exchange(ctx context.Context, creds AppCredentials, grant Grant) (*oauth2.Token, error) {
	if err := checkState(grant); err != nil {
		return nil, err
	}
	if grant.Code == "" {
		return nil, validationError(f.platform, "authorization code is missing")
	}

	var opts []oauth2.AuthCodeOption
	if f.pkce {
		if grant.Verifier == "" {
			return nil, fmt.Errorf("%w: missing PKCE verifier", common.ErrInvalidState)
		}
		opts = append(opts, oauth2.VerifierOption(grant.Verifier))
	}

	ctx, cancel := f.context(ctx)
	defer cancel()

	tok, err := f.config(creds).Exchange(ctx, grant.Code, opts...)
	if err != nil {
		return nil, f.tokenError(err)
	}
	return tok, nil
}

func (f *oauthFlow) refresh(ctx context.Context, creds AppCredentials, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, validationError(f.platform, "account has no refresh token; reconnect required")
	}

	ctx, cancel := f.context(ctx)
	defer cancel()

	src := f.config(creds).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)})
	tok, err := src.Token()
	if err != nil {
		return nil, f.tokenError(err)
	}
	t := tokensFrom(tok)
	if t.RefreshToken == "" {
		t.RefreshToken = refreshToken
	}
	return &t, nil
}

func (f *oauthFlow) tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = truncate(string(re.Body))
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return authorizationError(f.platform, status, msg)
	}
	return platformError(f.platform, 0, err.Error())
}

func tokensFrom(tok *oauth2.Token) Tokens {
	t := Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		t.ExpiresAt = &exp
	}
	return t
}
