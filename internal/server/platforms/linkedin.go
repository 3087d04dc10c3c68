package platforms

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/netx"
	"github.com/dmitrijs2005/crosspost/internal/server/media"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"golang.org/x/oauth2"
)

// LinkedInTextLimit is the maximum share commentary length.
const LinkedInTextLimit = 3000

var linkedInScopes = []string{"openid", "profile", "w_member_social"}

// LinkedInEndpoints points the adapter at the live API or a test server.
type LinkedInEndpoints struct {
	AuthURL  string
	TokenURL string
	APIURL   string
}

func (e LinkedInEndpoints) withDefaults() LinkedInEndpoints {
	if e.AuthURL == "" {
		e.AuthURL = "https://www.linkedin.com/oauth/v2/authorization"
	}
	if e.TokenURL == "" {
		e.TokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	}
	if e.APIURL == "" {
		e.APIURL = "https://api.linkedin.com"
	}
	return e
}

// LinkedIn shares to a member's feed through the UGC Posts API.
type LinkedIn struct {
	api   *apiClient
	base  string
	flow  *oauthFlow
	media media.Source
	http  *http.Client
}

func NewLinkedIn(opts Options, ep LinkedInEndpoints) *LinkedIn {
	ep = ep.withDefaults()
	return &LinkedIn{
		api:  &apiClient{platform: models.PlatformLinkedIn, http: opts.client(), timeout: opts.timeout()},
		base: ep.APIURL,
		flow: &oauthFlow{
			platform:  models.PlatformLinkedIn,
			authURL:   ep.AuthURL,
			tokenURL:  ep.TokenURL,
			authStyle: oauth2.AuthStyleInParams,
			scopes:    linkedInScopes,
			http:      opts.client(),
			timeout:   opts.timeout(),
		},
		media: opts.Media,
		http:  opts.client(),
	}
}

func (l *LinkedIn) Platform() models.Platform { return models.PlatformLinkedIn }

func (l *LinkedIn) BuildAuthorizationURL(_ context.Context, creds AppCredentials) (*Authorization, error) {
	return l.flow.authorize(creds)
}

type linkedInUser struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (l *LinkedIn) ExchangeCode(ctx context.Context, creds AppCredentials, grant Grant) ([]Identity, error) {
	tok, err := l.flow.exchange(ctx, creds, grant)
	if err != nil {
		return nil, err
	}

	var me linkedInUser
	if _, err := l.api.do(ctx, request{method: http.MethodGet, url: joinURL(l.base, "v2", "userinfo"), token: tok.AccessToken}, &me); err != nil {
		return nil, err
	}

	return []Identity{{
		Tokens:            tokensFrom(tok),
		PlatformAccountID: me.Sub,
		DisplayName:       me.Name,
		AvatarURL:         me.Picture,
		AccountType:       models.AccountProfile,
	}}, nil
}

func (l *LinkedIn) RefreshToken(ctx context.Context, creds AppCredentials, account Account) (*Tokens, error) {
	return l.flow.refresh(ctx, creds, account.RefreshToken)
}

func authorURN(id string) string {
	if strings.HasPrefix(id, "urn:li:") {
		return id
	}
	return "urn:li:person:" + id
}

func (l *LinkedIn) Publish(ctx context.Context, account Account, content Content) (*PublishResult, error) {
	if err := charLimit(models.PlatformLinkedIn, content.Text, LinkedInTextLimit); err != nil {
		return nil, err
	}
	author := authorURN(account.PlatformAccountID)

	share := map[string]any{
		"shareCommentary":    map[string]any{"text": content.Text},
		"shareMediaCategory": "NONE",
	}

	ref, video := content.MediaRef()
	switch {
	case ref != "":
		asset, err := l.upload(ctx, account.AccessToken, author, ref, video)
		if err != nil {
			return nil, err
		}
		category := "IMAGE"
		if video {
			category = "VIDEO"
		}
		share["shareMediaCategory"] = category
		share["media"] = []map[string]any{{"status": "READY", "media": asset}}
	case content.Kind == models.KindLink:
		if link := firstLink.FindString(content.Text); link != "" {
			share["shareMediaCategory"] = "ARTICLE"
			share["media"] = []map[string]any{{"status": "READY", "originalUrl": link}}
		}
	}

	body := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": share,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	r := request{
		method:  http.MethodPost,
		url:     joinURL(l.base, "v2", "ugcPosts"),
		token:   account.AccessToken,
		json:    body,
		headers: map[string]string{"X-Restli-Protocol-Version": "2.0.0"},
	}
	resp, err := l.api.do(ctx, r, &out)
	if err != nil {
		return nil, err
	}

	id := resp.Header.Get("X-RestLi-Id")
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return nil, platformError(models.PlatformLinkedIn, 0, "publish returned no post id")
	}
	return &PublishResult{PlatformPostID: id}, nil
}

// upload registers an asset and PUTs the media bytes to the returned slot.
func (l *LinkedIn) upload(ctx context.Context, token, owner, ref string, video bool) (string, error) {
	if l.media == nil {
		return "", platformError(models.PlatformLinkedIn, 0, "media storage is not configured")
	}
	obj, err := l.media.Fetch(ctx, ref)
	if err != nil {
		return "", platformError(models.PlatformLinkedIn, 0, err.Error())
	}

	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if video {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}
	body := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{recipe},
			"owner":   owner,
			"serviceRelationships": []map[string]any{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	var reg struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	r := request{method: http.MethodPost, url: joinURL(l.base, "v2", "assets") + "?action=registerUpload", token: token, json: body}
	if _, err := l.api.do(ctx, r, &reg); err != nil {
		return "", err
	}

	slot := reg.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"].UploadURL
	if slot == "" || reg.Value.Asset == "" {
		return "", platformError(models.PlatformLinkedIn, 0, "upload registration returned no upload URL")
	}

	ctx, cancel := context.WithTimeout(ctx, l.api.timeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if err := netx.PutBinary(ctx, l.http, slot, obj.Data, obj.ContentType, h); err != nil {
		var ue *netx.UploadError
		if errors.As(err, &ue) {
			return "", l.api.statusError(ue.Status, []byte(ue.Body))
		}
		return "", platformError(models.PlatformLinkedIn, 0, err.Error())
	}
	return reg.Value.Asset, nil
}

func (l *LinkedIn) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	return l.api.probe(ctx, request{method: http.MethodGet, url: joinURL(l.base, "v2", "userinfo"), token: accessToken})
}

func (l *LinkedIn) FetchMetrics(ctx context.Context, platformPostID, accessToken string) (*Metrics, error) {
	var out struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
	}
	r := request{
		method: http.MethodGet,
		url:    joinURL(l.base, "v2", "socialActions", url.PathEscape(platformPostID)),
		token:  accessToken,
	}
	if _, err := l.api.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &Metrics{Likes: out.LikesSummary.TotalLikes, Comments: out.CommentsSummary.AggregatedTotalComments}, nil
}
