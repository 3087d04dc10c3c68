package platforms

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// InstagramCaptionLimit is the maximum caption length.
const InstagramCaptionLimit = 2200

var instagramScopes = []string{"instagram_basic", "instagram_content_publish", "pages_show_list", "business_management"}

// Instagram publishes to professional accounts linked to a Facebook Page,
// using the two-step container flow. Every post needs an image or a video.
type Instagram struct {
	g *graph
	// PollInterval and PollAttempts bound the wait for video containers.
	PollInterval time.Duration
	PollAttempts int
}

func NewInstagram(opts Options, ep FacebookEndpoints) *Instagram {
	return &Instagram{
		g:            newGraph(models.PlatformInstagram, opts, ep, instagramScopes),
		PollInterval: 5 * time.Second,
		PollAttempts: 24,
	}
}

func (a *Instagram) Platform() models.Platform { return models.PlatformInstagram }

func (a *Instagram) BuildAuthorizationURL(_ context.Context, creds AppCredentials) (*Authorization, error) {
	return a.g.flow.authorize(creds)
}

// ExchangeCode returns one identity per Page that has a linked Instagram
// professional account.
func (a *Instagram) ExchangeCode(ctx context.Context, creds AppCredentials, grant Grant) ([]Identity, error) {
	tok, err := a.g.flow.exchange(ctx, creds, grant)
	if err != nil {
		return nil, err
	}
	user, err := a.g.longLived(ctx, creds, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	pages, err := a.g.pages(ctx, user.AccessToken, "id,name,access_token,instagram_business_account{id,username,profile_picture_url}")
	if err != nil {
		return nil, err
	}

	var identities []Identity
	for _, p := range pages {
		if p.Instagram == nil || p.Instagram.ID == "" {
			continue
		}
		identities = append(identities, Identity{
			Tokens:            *user,
			PlatformAccountID: p.Instagram.ID,
			DisplayName:       p.Instagram.Username,
			AvatarURL:         p.Instagram.ProfilePictureURL,
			AccountType:       models.AccountPage,
		})
	}
	if len(identities) == 0 {
		return nil, validationError(models.PlatformInstagram, "no Instagram professional account is linked to your Facebook Pages")
	}
	return identities, nil
}

func (a *Instagram) RefreshToken(ctx context.Context, creds AppCredentials, account Account) (*Tokens, error) {
	return a.g.refresh(ctx, creds, account)
}

func (a *Instagram) Publish(ctx context.Context, account Account, content Content) (*PublishResult, error) {
	ref, video := content.MediaRef()
	if ref == "" {
		return nil, validationError(models.PlatformInstagram, "an image or video is required")
	}
	if err := charLimit(models.PlatformInstagram, content.Text, InstagramCaptionLimit); err != nil {
		return nil, err
	}

	mediaURL, err := a.g.mediaURL(ctx, ref)
	if err != nil {
		return nil, err
	}

	form := url.Values{"caption": {content.Text}}
	if video {
		form.Set("media_type", "REELS")
		form.Set("video_url", mediaURL)
	} else {
		form.Set("image_url", mediaURL)
	}

	var container struct {
		ID string `json:"id"`
	}
	r := request{method: http.MethodPost, url: a.g.url(account.PlatformAccountID+"/media", nil), token: account.AccessToken, form: form}
	if _, err := a.g.api.do(ctx, r, &container); err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, platformError(models.PlatformInstagram, 0, "media container was not created")
	}

	if video {
		if err := a.waitReady(ctx, container.ID, account.AccessToken); err != nil {
			return nil, err
		}
	}

	var out struct {
		ID string `json:"id"`
	}
	r = request{
		method: http.MethodPost,
		url:    a.g.url(account.PlatformAccountID+"/media_publish", nil),
		token:  account.AccessToken,
		form:   url.Values{"creation_id": {container.ID}},
	}
	if _, err := a.g.api.do(ctx, r, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, platformError(models.PlatformInstagram, 0, "publish returned no media id")
	}
	return &PublishResult{PlatformPostID: out.ID}, nil
}

// waitReady polls a video container until processing finishes.
func (a *Instagram) waitReady(ctx context.Context, containerID, token string) error {
	for i := 0; i < a.PollAttempts; i++ {
		var st struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		q := url.Values{"fields": {"status_code,status"}}
		if _, err := a.g.api.do(ctx, request{method: http.MethodGet, url: a.g.url(containerID, q), token: token}, &st); err != nil {
			return err
		}

		switch st.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			msg := "video processing failed"
			if st.Status != "" {
				msg += ": " + st.Status
			}
			return platformError(models.PlatformInstagram, 0, msg)
		}

		select {
		case <-ctx.Done():
			return platformError(models.PlatformInstagram, 0, ctx.Err().Error())
		case <-time.After(a.PollInterval):
		}
	}
	return platformError(models.PlatformInstagram, 0, "video processing did not finish in time")
}

func (a *Instagram) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	return a.g.validate(ctx, accessToken)
}

func (a *Instagram) FetchMetrics(ctx context.Context, platformPostID, accessToken string) (*Metrics, error) {
	var m struct {
		LikeCount     int64 `json:"like_count"`
		CommentsCount int64 `json:"comments_count"`
	}
	q := url.Values{"fields": {"like_count,comments_count"}}
	if _, err := a.g.api.do(ctx, request{method: http.MethodGet, url: a.g.url(platformPostID, q), token: accessToken}, &m); err != nil {
		return nil, err
	}
	out := &Metrics{Likes: m.LikeCount, Comments: m.CommentsCount}

	var insights struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	iq := url.Values{"metric": {"impressions,shares"}}
	if _, err := a.g.api.do(ctx, request{method: http.MethodGet, url: a.g.url(platformPostID+"/insights", iq), token: accessToken}, &insights); err == nil {
		for _, d := range insights.Data {
			if len(d.Values) == 0 {
				continue
			}
			switch d.Name {
			case "impressions":
				out.Impressions = d.Values[0].Value
			case "shares":
				out.Shares = d.Values[0].Value
			}
		}
	}
	return out, nil
}
