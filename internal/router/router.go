// internal/router/router.go

// Package router holds the route table shared by the server and tests.
package router

import (
	"translator-back/internal/activity"
	"translator-back/internal/auth"
	"translator-back/internal/config"
	"translator-back/internal/handlers"
	"translator-back/internal/metrics"
	"translator-back/internal/middleware"
	"translator-back/internal/translation"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Deps struct {
	Config   config.Config
	DB       *gorm.DB
	Tokens   *auth.TokenService
	Pipeline *translation.Pipeline
	Store    *translation.Store
	Audit    *activity.Recorder

	// Objects is nil when uploads are disabled.
	Objects handlers.ObjectStore

	// Redis is optional; the rate limiter falls back to process memory.
	Redis *redis.Client
}

func New(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware(d.Config.CORSOrigins))

	authDeps := handlers.AuthDeps{
		DB:           d.DB,
		Tokens:       d.Tokens,
		Audit:        d.Audit,
		BcryptCost:   d.Config.BcryptCost,
		SecureCookie: d.Config.IsProduction(),
	}
	translationDeps := handlers.TranslationDeps{
		Pipeline: d.Pipeline,
		Store:    d.Store,
		Audit:    d.Audit,
	}

	r.GET("/health", handlers.Health(d.DB))
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")

	// Public routes
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", handlers.Signup(authDeps))
		authGroup.POST("/login", handlers.Login(authDeps))
		authGroup.POST("/logout", handlers.Logout(authDeps))
	}
	api.POST("/refresh/accessToken", handlers.RefreshAccessToken(authDeps))

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(d.Tokens))
	{
		protected.GET("/users/me", handlers.GetMe(d.DB))
	}

	translate := protected.Group("/translate")
	translate.Use(middleware.RateLimit(d.Config.RateLimit, d.Redis))
	{
		translate.POST("/translate", handlers.Translate(translationDeps))
		translate.POST("/translateJson", handlers.TranslateJSON(translationDeps))
		translate.POST("/upload", handlers.UploadSource(d.Objects, d.Audit))
		translate.GET("/translationJobs", handlers.GetTranslationJobs(translationDeps))
		translate.GET("/translationJobs/:id/download", handlers.DownloadTranslation(translationDeps))
		translate.GET("/translationHistory/:id", handlers.GetTranslationHistory(translationDeps))
	}

	return r
}
