package platforms

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// FacebookTextLimit is the maximum length of a Page post.
const FacebookTextLimit = 63206

var facebookScopes = []string{"public_profile", "pages_show_list", "pages_read_engagement", "pages_manage_posts"}

// Facebook publishes to Pages through the Graph API. Personal profiles can
// be connected but never published to.
type Facebook struct {
	g *graph
}

func NewFacebook(opts Options, ep FacebookEndpoints) *Facebook {
	return &Facebook{g: newGraph(models.PlatformFacebook, opts, ep, facebookScopes)}
}

func (f *Facebook) Platform() models.Platform { return models.PlatformFacebook }

func (f *Facebook) BuildAuthorizationURL(_ context.Context, creds AppCredentials) (*Authorization, error) {
	return f.g.flow.authorize(creds)
}

// ExchangeCode returns the user's profile followed by every Page they
// manage, each Page carrying its own Page token.
func (f *Facebook) ExchangeCode(ctx context.Context, creds AppCredentials, grant Grant) ([]Identity, error) {
	tok, err := f.g.flow.exchange(ctx, creds, grant)
	if err != nil {
		return nil, err
	}
	user, err := f.g.longLived(ctx, creds, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	var me struct {
		ID      string       `json:"id"`
		Name    string       `json:"name"`
		Picture graphPicture `json:"picture"`
	}
	q := url.Values{"fields": {"id,name,picture{url}"}}
	if _, err := f.g.api.do(ctx, request{method: http.MethodGet, url: f.g.url("me", q), token: user.AccessToken}, &me); err != nil {
		return nil, err
	}

	identities := []Identity{{
		Tokens:            *user,
		PlatformAccountID: me.ID,
		DisplayName:       me.Name,
		AvatarURL:         me.Picture.Data.URL,
		AccountType:       models.AccountProfile,
	}}

	pages, err := f.g.pages(ctx, user.AccessToken, "id,name,access_token,picture{url}")
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		identities = append(identities, Identity{
			Tokens:            Tokens{AccessToken: p.AccessToken},
			PlatformAccountID: p.ID,
			DisplayName:       p.Name,
			AvatarURL:         p.Picture.Data.URL,
			AccountType:       models.AccountPage,
		})
	}
	return identities, nil
}

func (f *Facebook) RefreshToken(ctx context.Context, creds AppCredentials, account Account) (*Tokens, error) {
	return f.g.refresh(ctx, creds, account)
}

func (f *Facebook) Publish(ctx context.Context, account Account, content Content) (*PublishResult, error) {
	if account.Type != models.AccountPage {
		return nil, validationError(models.PlatformFacebook, "only Pages can be published to; personal profiles are not supported")
	}
	if err := charLimit(models.PlatformFacebook, content.Text, FacebookTextLimit); err != nil {
		return nil, err
	}

	ref, video := content.MediaRef()
	form := url.Values{}
	var edge string

	switch {
	case ref != "" && video:
		u, err := f.g.mediaURL(ctx, ref)
		if err != nil {
			return nil, err
		}
		edge = "videos"
		form.Set("file_url", u)
		form.Set("description", content.Text)
	case ref != "":
		u, err := f.g.mediaURL(ctx, ref)
		if err != nil {
			return nil, err
		}
		edge = "photos"
		form.Set("url", u)
		form.Set("caption", content.Text)
	default:
		edge = "feed"
		form.Set("message", content.Text)
		if content.Kind == models.KindLink {
			if link := firstLink.FindString(content.Text); link != "" {
				form.Set("link", link)
			}
		}
	}

	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	r := request{method: http.MethodPost, url: f.g.url(account.PlatformAccountID+"/"+edge, nil), token: account.AccessToken, form: form}
	if _, err := f.g.api.do(ctx, r, &out); err != nil {
		return nil, err
	}

	id := out.PostID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return nil, platformError(models.PlatformFacebook, 0, "publish returned no post id")
	}
	return &PublishResult{PlatformPostID: id}, nil
}

func (f *Facebook) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	return f.g.validate(ctx, accessToken)
}

func (f *Facebook) FetchMetrics(ctx context.Context, platformPostID, accessToken string) (*Metrics, error) {
	var post struct {
		Reactions struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"reactions"`
		Comments struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
		Shares struct {
			Count int64 `json:"count"`
		} `json:"shares"`
	}
	q := url.Values{"fields": {"reactions.summary(total_count).limit(0),comments.summary(total_count).limit(0),shares"}}
	if _, err := f.g.api.do(ctx, request{method: http.MethodGet, url: f.g.url(platformPostID, q), token: accessToken}, &post); err != nil {
		return nil, err
	}

	m := &Metrics{
		Likes:    post.Reactions.Summary.TotalCount,
		Comments: post.Comments.Summary.TotalCount,
		Shares:   post.Shares.Count,
	}

	// Insights need read_insights; missing counters stay zero.
	var insights struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	iq := url.Values{"metric": {"post_impressions,post_clicks"}}
	if _, err := f.g.api.do(ctx, request{method: http.MethodGet, url: f.g.url(platformPostID+"/insights", iq), token: accessToken}, &insights); err == nil {
		for _, d := range insights.Data {
			if len(d.Values) == 0 {
				continue
			}
			switch d.Name {
			case "post_impressions":
				m.Impressions = d.Values[0].Value
			case "post_clicks":
				m.Clicks = d.Values[0].Value
			}
		}
	}
	return m, nil
}
