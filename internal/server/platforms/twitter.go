package platforms

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/media"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"golang.org/x/oauth2"
)

// TwitterTextLimit is the tweet length, counted in code points.
const TwitterTextLimit = 280

// DefaultChunkSize is the APPEND segment size for media uploads.
const DefaultChunkSize = 4 << 20

var twitterScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access", "media.write"}

type TwitterEndpoints struct {
	AuthURL   string
	TokenURL  string
	APIURL    string
	UploadURL string
}

func (e TwitterEndpoints) withDefaults() TwitterEndpoints {
	if e.AuthURL == "" {
		e.AuthURL = "https://twitter.com/i/oauth2/authorize"
	}
	if e.TokenURL == "" {
		e.TokenURL = "https://api.twitter.com/2/oauth2/token"
	}
	if e.APIURL == "" {
		e.APIURL = "https://api.twitter.com"
	}
	if e.UploadURL == "" {
		e.UploadURL = "https://api.twitter.com/2/media/upload"
	}
	return e
}

// Twitter posts through API v2 with OAuth 2.0 + PKCE. Media goes through
// the chunked INIT / APPEND / FINALIZE upload.
type Twitter struct {
	api    *apiClient
	base   string
	upload string
	flow   *oauthFlow
	media  media.Source

	ChunkSize    int
	PollInterval time.Duration
	PollAttempts int
}

func NewTwitter(opts Options, ep TwitterEndpoints) *Twitter {
	ep = ep.withDefaults()
	return &Twitter{
		api:    &apiClient{platform: models.PlatformTwitter, http: opts.client(), timeout: opts.timeout()},
		base:   ep.APIURL,
		upload: ep.UploadURL,
		flow: &oauthFlow{
			platform:  models.PlatformTwitter,
			authURL:   ep.AuthURL,
			tokenURL:  ep.TokenURL,
			authStyle: oauth2.AuthStyleInHeader,
			scopes:    twitterScopes,
			pkce:      true,
			http:      opts.client(),
			timeout:   opts.timeout(),
		},
		media:        opts.Media,
		ChunkSize:    DefaultChunkSize,
		PollInterval: 2 * time.Second,
		PollAttempts: 30,
	}
}

func (t *Twitter) Platform() models.Platform { return models.PlatformTwitter }

func (t *Twitter) BuildAuthorizationURL(_ context.Context, creds AppCredentials) (*Authorization, error) {
	return t.flow.authorize(creds)
}

type twitterUser struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

func (t *Twitter) me(ctx context.Context, token string) (*twitterUser, error) {
	var me twitterUser
	q := url.Values{"user.fields": {"profile_image_url"}}
	r := request{method: http.MethodGet, url: joinURL(t.base, "2", "users", "me") + "?" + q.Encode(), token: token}
	if _, err := t.api.do(ctx, r, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (t *Twitter) ExchangeCode(ctx context.Context, creds AppCredentials, grant Grant) ([]Identity, error) {
	tok, err := t.flow.exchange(ctx, creds, grant)
	if err != nil {
		return nil, err
	}
	me, err := t.me(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	name := me.Data.Name
	if name == "" {
		name = "@" + me.Data.Username
	}
	return []Identity{{
		Tokens:            tokensFrom(tok),
		PlatformAccountID: me.Data.ID,
		DisplayName:       name,
		AvatarURL:         me.Data.ProfileImageURL,
		AccountType:       models.AccountProfile,
	}}, nil
}

func (t *Twitter) RefreshToken(ctx context.Context, creds AppCredentials, account Account) (*Tokens, error) {
	return t.flow.refresh(ctx, creds, account.RefreshToken)
}

func (t *Twitter) Publish(ctx context.Context, account Account, content Content) (*PublishResult, error) {
	if err := charLimit(models.PlatformTwitter, content.Text, TwitterTextLimit); err != nil {
		return nil, err
	}

	body := map[string]any{"text": content.Text}
	if ref, video := content.MediaRef(); ref != "" {
		id, err := t.uploadMedia(ctx, account.AccessToken, ref, video)
		if err != nil {
			return nil, err
		}
		body["media"] = map[string]any{"media_ids": []string{id}}
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	r := request{method: http.MethodPost, url: joinURL(t.base, "2", "tweets"), token: account.AccessToken, json: body}
	if _, err := t.api.do(ctx, r, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, platformError(models.PlatformTwitter, 0, "publish returned no tweet id")
	}
	return &PublishResult{PlatformPostID: out.Data.ID}, nil
}

type uploadStatus struct {
	MediaIDString string `json:"media_id_string"`
	Data          *struct {
		ID             string          `json:"id"`
		ProcessingInfo *processingInfo `json:"processing_info"`
	} `json:"data"`
	ProcessingInfo *processingInfo `json:"processing_info"`
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (u *uploadStatus) id() string {
	if u.MediaIDString != "" {
		return u.MediaIDString
	}
	if u.Data != nil {
		return u.Data.ID
	}
	return ""
}

func (u *uploadStatus) processing() *processingInfo {
	if u.ProcessingInfo != nil {
		return u.ProcessingInfo
	}
	if u.Data != nil {
		return u.Data.ProcessingInfo
	}
	return nil
}

// uploadMedia runs INIT, APPEND per chunk, FINALIZE and, when the platform
// reports asynchronous processing, STATUS until it settles.
func (t *Twitter) uploadMedia(ctx context.Context, token, ref string, video bool) (string, error) {
	if t.media == nil {
		return "", platformError(models.PlatformTwitter, 0, "media storage is not configured")
	}
	obj, err := t.media.Fetch(ctx, ref)
	if err != nil {
		return "", platformError(models.PlatformTwitter, 0, err.Error())
	}

	category := "tweet_image"
	if video {
		category = "tweet_video"
	}

	var init uploadStatus
	form := url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(obj.Size(), 10)},
		"media_type":     {obj.ContentType},
		"media_category": {category},
	}
	if _, err := t.api.do(ctx, request{method: http.MethodPost, url: t.upload, token: token, form: form}, &init); err != nil {
		return "", err
	}
	mediaID := init.id()
	if mediaID == "" {
		return "", platformError(models.PlatformTwitter, 0, "media upload INIT returned no media id")
	}

	chunk := t.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	for seg, off := 0, 0; off < len(obj.Data); seg, off = seg+1, off+chunk {
		end := min(off+chunk, len(obj.Data))
		if err := t.appendChunk(ctx, token, mediaID, seg, obj.Data[off:end]); err != nil {
			return "", err
		}
	}

	var fin uploadStatus
	form = url.Values{"command": {"FINALIZE"}, "media_id": {mediaID}}
	if _, err := t.api.do(ctx, request{method: http.MethodPost, url: t.upload, token: token, form: form}, &fin); err != nil {
		return "", err
	}

	if err := t.waitProcessed(ctx, token, mediaID, fin.processing()); err != nil {
		return "", err
	}
	return mediaID, nil
}

func (t *Twitter) appendChunk(ctx context.Context, token, mediaID string, segment int, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(segment))
	part, err := w.CreateFormFile("media", "chunk")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	r := request{method: http.MethodPost, url: t.upload, token: token, body: &buf, ctype: w.FormDataContentType()}
	_, err = t.api.do(ctx, r, nil)
	return err
}

func (t *Twitter) waitProcessed(ctx context.Context, token, mediaID string, info *processingInfo) error {
	for i := 0; info != nil; i++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "media processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg += ": " + info.Error.Message
			}
			return platformError(models.PlatformTwitter, 0, msg)
		}
		if i >= t.PollAttempts {
			return platformError(models.PlatformTwitter, 0, "media processing did not finish in time")
		}

		wait := t.PollInterval
		if info.CheckAfterSecs > 0 {
			wait = time.Duration(info.CheckAfterSecs) * time.Second
		}
		select {
		case <-ctx.Done():
			return platformError(models.PlatformTwitter, 0, ctx.Err().Error())
		case <-time.After(wait):
		}

		var st uploadStatus
		q := url.Values{"command": {"STATUS"}, "media_id": {mediaID}}
		if _, err := t.api.do(ctx, request{method: http.MethodGet, url: t.upload + "?" + q.Encode(), token: token}, &st); err != nil {
			return err
		}
		info = st.processing()
	}
	return nil
}

func (t *Twitter) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	return t.api.probe(ctx, request{method: http.MethodGet, url: joinURL(t.base, "2", "users", "me"), token: accessToken})
}

func (t *Twitter) FetchMetrics(ctx context.Context, platformPostID, accessToken string) (*Metrics, error) {
	var out struct {
		Data struct {
			PublicMetrics struct {
				LikeCount       int64 `json:"like_count"`
				ReplyCount      int64 `json:"reply_count"`
				RetweetCount    int64 `json:"retweet_count"`
				QuoteCount      int64 `json:"quote_count"`
				ImpressionCount int64 `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	q := url.Values{"tweet.fields": {"public_metrics"}}
	r := request{method: http.MethodGet, url: joinURL(t.base, "2", "tweets", url.PathEscape(platformPostID)) + "?" + q.Encode(), token: accessToken}
	if _, err := t.api.do(ctx, r, &out); err != nil {
		return nil, err
	}
	pm := out.Data.PublicMetrics
	return &Metrics{
		Likes:       pm.LikeCount,
		Comments:    pm.ReplyCount,
		Shares:      pm.RetweetCount + pm.QuoteCount,
		Impressions: pm.ImpressionCount,
	}, nil
}
