// Package platforms holds one adapter per destination network. Every adapter
// translates the generic publish/authorize/refresh/metrics contract into
// that network's protocol and reports failures as *Error.
package platforms

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/media"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// AppCredentials is the OAuth application used for one authorization
// attempt: the user's own, or the system default.
type AppCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Authorization is a freshly issued authorization attempt. State and
// Verifier must be stored server-side until the callback arrives.
type Authorization struct {
	URL      string
	State    string
	Verifier string
}

// Grant is what the callback presents: the state the platform echoed back
// and the state recorded when the attempt was issued.
type Grant struct {
	Code          string
	ReturnedState string
	IssuedState   string
	Verifier      string
}

// Tokens are plaintext tokens as received from a platform.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Identity is one publishable (or at least connectable) identity obtained
// from an authorization.
type Identity struct {
	Tokens
	PlatformAccountID string
	DisplayName       string
	AvatarURL         string
	AccountType       models.AccountType
}

// Account is the decrypted view of a stored social account handed to an
// adapter for the duration of one call.
type Account struct {
	ID                string
	PlatformAccountID string
	DisplayName       string
	Type              models.AccountType
	AccessToken       string
	RefreshToken      string
}

// Content is what gets published: text plus at most one media reference.
type Content struct {
	Text     string
	Kind     models.ContentKind
	ImageRef string
	VideoRef string
}

// MediaRef returns the single attached media reference, if any.
func (c Content) MediaRef() (ref string, video bool) {
	if c.VideoRef != "" {
		return c.VideoRef, true
	}
	return c.ImageRef, false
}

// PublishResult identifies the created post on the platform.
type PublishResult struct {
	PlatformPostID string
}

// Metrics are engagement counters for one published post.
type Metrics struct {
	Likes       int64 `json:"likes"`
	Comments    int64 `json:"comments"`
	Shares      int64 `json:"shares"`
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
}

// Adapter is implemented once per destination platform.
type Adapter interface {
	Platform() models.Platform

	// BuildAuthorizationURL issues an unguessable, single-use state and,
	// where the platform requires it, a PKCE verifier.
	BuildAuthorizationURL(ctx context.Context, creds AppCredentials) (*Authorization, error)
	// ExchangeCode rejects a grant whose returned state does not match the
	// issued one before talking to the platform.
	ExchangeCode(ctx context.Context, creds AppCredentials, grant Grant) ([]Identity, error)
	// RefreshToken renews an account's token with the platform's own
	// refresh mechanism.
	RefreshToken(ctx context.Context, creds AppCredentials, account Account) (*Tokens, error)

	// Publish enforces platform constraints before any network I/O.
	Publish(ctx context.Context, account Account, content Content) (*PublishResult, error)
	// ValidateToken is a cheap liveness probe. false with a nil error means
	// the platform rejected the token.
	ValidateToken(ctx context.Context, accessToken string) (bool, error)
	FetchMetrics(ctx context.Context, platformPostID, accessToken string) (*Metrics, error)
}

// Options are shared by all adapters.
type Options struct {
	HTTPClient *http.Client
	// Timeout bounds every single platform call.
	Timeout time.Duration
	Media   media.Source
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 30 * time.Second
}
