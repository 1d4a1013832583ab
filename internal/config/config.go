// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	DBDriver    string // postgres or sqlite
	DatabaseURL string
	DBPath      string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	BcryptCost       int

	CORSOrigins []string

	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	LiteralPrepass bool

	RateLimit RateLimitConfig
	MinIO     MinIOConfig
}

// MinIOConfig locates the bucket for uploaded source documents.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether uploads are configured.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// RateLimitConfig controls the token bucket guarding the translation routes.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

var ErrMissingSecret = errors.New("missing required secret")

// Load reads the process environment. Only the token signing secrets are
// mandatory; the provider key is checked when a translation is requested.
func Load() (Config, error) {
	cfg := Config{
		Env:  envStr("APP_ENV", "development"),
		Port: envStr("PORT", "8080"),

		DBDriver:    strings.ToLower(envStr("DB_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      envStr("DB_PATH", "translator.db"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
		AccessTokenTTL:   envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:       envInt("BCRYPT_COST", 10),

		CORSOrigins: envList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envStr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		LiteralPrepass: envBool("TRANSLATION_LITERAL_PREPASS", false),

		RateLimit: loadRateLimit(),
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envStr("MINIO_BUCKET", "translator-uploads"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("%w: JWT_SECRET", ErrMissingSecret)
	}
	if cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("%w: JWT_REFRESH_SECRET", ErrMissingSecret)
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		return Config{}, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required for the postgres driver")
	}
	return cfg, nil
}

// IsProduction reports whether cookies should carry the Secure flag.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func loadRateLimit() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:translate"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

func envList(k string, d []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return d
	}
	return out
}
