package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/auth"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/lifecycle"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	posts      *fakePosts
	review     *fakeReview
	accounts   *fakeAccounts
	dispatcher *fakeDispatcher
	analytics  *fakeAnalytics
	router     *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		posts:      &fakePosts{},
		review:     &fakeReview{},
		accounts:   &fakeAccounts{},
		dispatcher: &fakeDispatcher{sum: &services.BatchSummary{Processed: 2, Succeeded: 1, Failed: 1}},
		analytics:  &fakeAnalytics{},
	}
	cfg := &config.Config{
		Environment:        config.EnvDevelopment,
		SecretKey:          testSecret,
		CronSecret:         "cron-secret",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
	handler := NewHandler(Services{
		Posts:      h.posts,
		Review:     h.review,
		Accounts:   h.accounts,
		Dispatcher: h.dispatcher,
		Analytics:  h.analytics,
	}, logging.Nop{})
	h.router = NewRouter(handler, cfg)
	return h
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (h *harness) do(method, path, authz string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	expired, err := auth.GenerateToken("u1", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	forged, err := auth.GenerateToken("u1", []byte("other"), time.Hour)
	require.NoError(t, err)

	for name, authz := range map[string]string{
		"missing":    "",
		"not bearer": "Basic dTE6cGFzcw==",
		"empty":      "Bearer ",
		"expired":    "Bearer " + expired,
		"forged":     "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			rec := h.do(http.MethodGet, "/api/v1/posts", authz, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Empty(t, h.posts.userID, "no request may reach the service")

	rec := h.do(http.MethodGet, "/api/v1/posts", bearer(t, "u1"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", h.posts.userID)
}

func TestCronSecret(t *testing.T) {
	h := newHarness(t)

	for _, secret := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch/run", nil)
		if secret != "" {
			req.Header.Set(common.CronSecretHeaderName, secret)
		}
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Zero(t, h.dispatcher.calls)

	req := httptest.NewRequest(http.MethodPost, "/internal/dispatch/run", nil)
	req.Header.Set(common.CronSecretHeaderName, "cron-secret")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.dispatcher.calls)
	var body struct {
		Data services.BatchSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.Processed)
	assert.Equal(t, 1, body.Data.Failed)
}

func TestCronSecret_EmptyConfigClosesEndpoints(t *testing.T) {
	r := gin.New()
	r.GET("/x", cronSecret(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(common.CronSecretHeaderName, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.Invalid("content", "required"), http.StatusBadRequest},
		{common.ErrUnsupportedPlatform, http.StatusBadRequest},
		{common.ErrInvalidState, http.StatusBadRequest},
		{common.Forbidden("not yours"), http.StatusForbidden},
		{fmt.Errorf("%w: %w", common.ErrForbidden, common.ErrSelfApproval), http.StatusForbidden},
		{common.ErrorNotFound, http.StatusNotFound},
		{&lifecycle.TransitionError{From: models.StatusPublishing, To: models.StatusDraft}, http.StatusConflict},
		{common.ErrStatusConflict, http.StatusConflict},
		{common.ErrTokenExpired, http.StatusUnprocessableEntity},
		{&platforms.Error{Platform: models.PlatformTwitter, Kind: platforms.KindAuthorization, Status: 401}, http.StatusUnprocessableEntity},
		{&platforms.Error{Platform: models.PlatformTwitter, Kind: platforms.KindValidation}, http.StatusBadRequest},
		{&platforms.Error{Platform: models.PlatformTwitter, Kind: platforms.KindPlatform, Status: 503}, http.StatusBadGateway},
		{common.ErrVaultLocked, http.StatusServiceUnavailable},
		{errors.New("db error: boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, msg := statusOf(tt.err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}

	_, msg := statusOf(errors.New("db error: password=hunter2"))
	assert.Equal(t, "internal error", msg, "internal details never leak")
}
