// internal/router/router_test.go
package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"translator-back/internal/activity"
	"translator-back/internal/auth"
	"translator-back/internal/config"
	"translator-back/internal/database"
	"translator-back/internal/llm/llmtest"
	"translator-back/internal/translation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, rl config.RateLimitConfig) (*gin.Engine, *auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	tokens := auth.NewTokenService(db, "access-secret", "refresh-secret", time.Minute, time.Hour)
	store := translation.NewStore(db)

	return New(Deps{
		Config: config.Config{
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   rl,
		},
		DB:       db,
		Tokens:   tokens,
		Pipeline: translation.NewPipeline(&llmtest.Provider{}, store),
		Store:    store,
		Audit:    activity.NewRecorder(db),
	}), tokens
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{})

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/translate/translate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Translation-Status")

	req = httptest.NewRequest(http.MethodOptions, "/api/translate/translate", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(r, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTranslateRoutesAreRateLimited(t *testing.T) {
	r, tokens := newTestRouter(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		Prefix:         "test",
	})
	token, err := tokens.IssueAccessToken("user-1")
	require.NoError(t, err)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, get("/api/translate/translationJobs").Code)
	assert.Equal(t, http.StatusOK, get("/api/translate/translationJobs").Code)
	rec := get("/api/translate/translationJobs")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Routes outside /api/translate share no bucket.
	assert.NotEqual(t, http.StatusTooManyRequests, get("/api/users/me").Code)
}
