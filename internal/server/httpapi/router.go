package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires middleware and routes.
func NewRouter(h *Handler, cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
		corsCfg.AllowCredentials = true
	}
	if corsCfg.AllowAllOrigins || len(corsCfg.AllowOrigins) > 0 {
		r.Use(cors.New(corsCfg))
	}

	r.GET("/healthz", func(c *gin.Context) {
		success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1", authRequired([]byte(cfg.SecretKey)))

	posts := api.Group("/posts")
	posts.POST("", h.CreatePost)
	posts.GET("", h.ListPosts)
	posts.GET("/:id", h.GetPost)
	posts.PUT("/:id", h.UpdatePost)
	posts.DELETE("/:id", h.DeletePost)
	posts.POST("/:id/retry", h.RetryPost)
	posts.POST("/:id/submit", h.SubmitPost)
	posts.POST("/:id/approve", h.ApprovePost)
	posts.POST("/:id/reject", h.RejectPost)

	api.GET("/reviews/pending", h.ListPendingReviews)

	accounts := api.Group("/accounts")
	accounts.GET("", h.ListAccounts)
	accounts.DELETE("/:id", h.DisconnectAccount)
	accounts.POST("/:id/refresh", h.RefreshAccount)
	accounts.POST("/:id/test-publish", h.TestPublish)

	api.POST("/media/uploads", h.PresignUpload)
	api.PUT("/credentials/:platform", h.SaveCredentials)
	api.GET("/connect/:platform", h.StartConnect)
	api.POST("/connect/:platform/callback", h.CompleteConnect)

	internal := r.Group("/internal", cronSecret(cfg.CronSecret))
	internal.POST("/dispatch/run", h.RunDispatch)
	internal.POST("/accounts", h.UpsertAccount)
	internal.GET("/analytics/published", h.ListPublished)
	internal.GET("/analytics/targets/:id/metrics", h.TargetMetrics)

	return r
}
