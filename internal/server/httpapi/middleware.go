package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "user_id"

// authRequired accepts "Authorization: Bearer <jwt>" and stores the user id
// on both the gin and the request context.
func authRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := auth.GetUserIDFromToken(strings.TrimSpace(token), secret)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// cronSecret guards collaborator endpoints. An empty configured secret
// closes them entirely.
func cronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(common.CronSecretHeaderName)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			fail(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}

func requestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}

func userID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
