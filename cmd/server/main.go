// cmd/server/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"translator-back/internal/activity"
	"translator-back/internal/auth"
	"translator-back/internal/config"
	"translator-back/internal/database"
	"translator-back/internal/llm"
	"translator-back/internal/router"
	"translator-back/internal/storage"
	"translator-back/internal/translation"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	level := slog.LevelDebug
	if cfg.IsProduction() {
		level = slog.LevelInfo
		gin.SetMode(gin.ReleaseMode)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate models
	if err := database.MigrateDB(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	tokens := auth.NewTokenService(db, cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	provider := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	if err := provider.Ready(); err != nil {
		slog.Warn("translations will fail until the provider is configured", "error", err)
	}

	audit := activity.NewRecorder(db)
	store := translation.NewStore(db)
	opts := []translation.Option{
		translation.WithAuditor(audit),
		translation.WithLiteralPrepass(cfg.LiteralPrepass),
	}

	deps := router.Deps{
		Config: cfg,
		DB:     db,
		Tokens: tokens,
		Store:  store,
		Audit:  audit,
	}

	if cfg.MinIO.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO)
		cancel()
		if err != nil {
			log.Fatal("Failed to initialize MinIO client:", err)
		}
		deps.Objects = minioClient
		opts = append(opts, translation.WithObjects(minioClient))
	} else {
		slog.Info("MINIO_ENDPOINT not set, uploads disabled")
	}

	if cfg.RateLimit.RedisAddr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		defer deps.Redis.Close()
	}

	deps.Pipeline = translation.NewPipeline(provider, store, opts...)
	r := router.New(deps)

	slog.Info("server starting", "port", cfg.Port, "env", cfg.Env, "model", cfg.OpenAIModel)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
