package platforms

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusError(t *testing.T) {
	c := &apiClient{platform: models.PlatformFacebook}

	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"graph 190", 400, `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`, KindAuthorization, "Error validating access token"},
		{"graph other", 400, `{"error":{"message":"Invalid parameter","code":100}}`, KindPlatform, "Invalid parameter"},
		{"plain 401", 401, `nope`, KindAuthorization, "nope"},
		{"oauth style", 400, `{"error":"invalid_grant","error_description":"expired code"}`, KindPlatform, "expired code"},
		{"twitter detail", 403, `{"title":"Forbidden","detail":"You are not permitted"}`, KindPlatform, "You are not permitted"},
		{"twitter errors", 400, `{"errors":[{"message":"duplicate content"}]}`, KindPlatform, "duplicate content"},
		{"linkedin", 422, `{"message":"bad author","status":422}`, KindPlatform, "bad author"},
		{"empty body", 502, ``, KindPlatform, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.statusError(tt.status, []byte(tt.body))
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, tt.status, pe.Status)
		})
	}
}

func TestErrorMatchesSentinels(t *testing.T) {
	auth := authorizationError(models.PlatformLinkedIn, 401, "token expired")
	assert.ErrorIs(t, auth, common.ErrTokenExpired)
	assert.NotErrorIs(t, auth, common.ErrValidation)
	assert.Equal(t, "linkedin: token expired (HTTP 401)", auth.Error())

	val := validationError(models.PlatformTwitter, "too long")
	assert.ErrorIs(t, val, common.ErrValidation)
	assert.Equal(t, "twitter: too long", val.Error())

	wrapped := errors.Join(errors.New("ctx"), auth)
	assert.Equal(t, KindAuthorization, KindOf(wrapped))
	assert.Equal(t, KindPlatform, KindOf(errors.New("plain")))
}

func TestProbe(t *testing.T) {
	status := http.StatusOK
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	c := &apiClient{platform: models.PlatformLinkedIn, http: srv.Client(), timeout: time.Second}
	r := request{method: http.MethodGet, url: srv.URL + "/me", token: "t"}

	for _, tc := range []struct {
		status int
		ok     bool
		err    bool
	}{
		{http.StatusOK, true, false},
		{http.StatusUnauthorized, false, false},
		{http.StatusForbidden, false, false},
		{http.StatusBadRequest, false, false},
		{http.StatusInternalServerError, false, true},
	} {
		status = tc.status
		ok, err := c.probe(context.Background(), r)
		assert.Equal(t, tc.ok, ok, "status %d", tc.status)
		assert.Equal(t, tc.err, err != nil, "status %d", tc.status)
	}
}

func TestCharLimitCountsCodePoints(t *testing.T) {
	emoji := strings.Repeat("\U0001F600", 280)
	require.NoError(t, charLimit(models.PlatformTwitter, emoji, 280))

	err := charLimit(models.PlatformTwitter, emoji+"x", 280)
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "281")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := strings.Repeat("a", maxErrorBody+10)
	assert.Len(t, truncate(long), maxErrorBody+3)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(Options{})
	assert.Equal(t, models.Platforms, r.Platforms())

	for _, p := range models.Platforms {
		a, err := r.Get(p)
		require.NoError(t, err)
		assert.Equal(t, p, a.Platform())
	}

	_, err := r.Get(models.Platform("myspace"))
	assert.ErrorIs(t, err, common.ErrUnsupportedPlatform)

	partial := NewRegistry(NewTwitter(Options{}, TwitterEndpoints{}))
	assert.Equal(t, []models.Platform{models.PlatformTwitter}, partial.Platforms())
}
