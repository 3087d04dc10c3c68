package platforms

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/media"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"golang.org/x/oauth2"
)

// FacebookEndpoints points the Graph-based adapters (Facebook, Instagram)
// at the live API or a test server.
type FacebookEndpoints struct {
	AuthURL  string
	GraphURL string
}

func (e FacebookEndpoints) withDefaults() FacebookEndpoints {
	if e.AuthURL == "" {
		e.AuthURL = "https://www.facebook.com/v19.0/dialog/oauth"
	}
	if e.GraphURL == "" {
		e.GraphURL = "https://graph.facebook.com/v19.0"
	}
	return e
}

// graph wraps the Graph API calls shared by Facebook and Instagram.
type graph struct {
	api   *apiClient
	base  string
	flow  *oauthFlow
	media media.Source
}

func newGraph(p models.Platform, opts Options, ep FacebookEndpoints, scopes []string) *graph {
	ep = ep.withDefaults()
	return &graph{
		api:  &apiClient{platform: p, http: opts.client(), timeout: opts.timeout()},
		base: ep.GraphURL,
		flow: &oauthFlow{
			platform:  p,
			authURL:   ep.AuthURL,
			tokenURL:  joinURL(ep.GraphURL, "oauth", "access_token"),
			authStyle: oauth2.AuthStyleInParams,
			scopes:    scopes,
			params:    map[string]string{"response_type": "code"},
			http:      opts.client(),
			timeout:   opts.timeout(),
		},
		media: opts.Media,
	}
}

func (g *graph) url(path string, query url.Values) string {
	u := joinURL(g.base, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// longLived swaps a token for a long-lived one (about 60 days).
func (g *graph) longLived(ctx context.Context, creds AppCredentials, token string) (*Tokens, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", creds.ClientID)
	q.Set("client_secret", creds.ClientSecret)
	q.Set("fb_exchange_token", token)

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if _, err := g.api.do(ctx, request{method: http.MethodGet, url: g.url("oauth/access_token", q)}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, platformError(g.api.platform, 0, "token exchange returned no access token")
	}

	t := &Tokens{AccessToken: out.AccessToken}
	if out.ExpiresIn > 0 {
		exp := time.Now().UTC().Add(time.Duration(out.ExpiresIn) * time.Second)
		t.ExpiresAt = &exp
	}
	return t, nil
}

type graphPicture struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
}

type graphPage struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	AccessToken string       `json:"access_token"`
	Picture     graphPicture `json:"picture"`
	Instagram   *struct {
		ID                string `json:"id"`
		Username          string `json:"username"`
		ProfilePictureURL string `json:"profile_picture_url"`
	} `json:"instagram_business_account"`
}

func (g *graph) pages(ctx context.Context, token, fields string) ([]graphPage, error) {
	var out struct {
		Data []graphPage `json:"data"`
	}
	q := url.Values{"fields": {fields}}
	if _, err := g.api.do(ctx, request{method: http.MethodGet, url: g.url("me/accounts", q), token: token}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (g *graph) validate(ctx context.Context, token string) (bool, error) {
	return g.api.probe(ctx, request{method: http.MethodGet, url: g.url("me", url.Values{"fields": {"id"}}), token: token})
}

func (g *graph) refresh(ctx context.Context, creds AppCredentials, account Account) (*Tokens, error) {
	if account.AccessToken == "" {
		return nil, validationError(g.api.platform, "account has no access token; reconnect required")
	}
	return g.longLived(ctx, creds, account.AccessToken)
}

func (g *graph) mediaURL(ctx context.Context, ref string) (string, error) {
	if media.IsRemote(ref) {
		return ref, nil
	}
	if g.media == nil {
		return "", platformError(g.api.platform, 0, "media storage is not configured")
	}
	u, err := g.media.URL(ctx, ref)
	if err != nil {
		return "", platformError(g.api.platform, 0, err.Error())
	}
	return u, nil
}

var firstLink = regexp.MustCompile(`(?i)\bhttps?://[^\s]+`)
