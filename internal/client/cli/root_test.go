// internal/client/cli/root_test.go
package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"translator-back/internal/activity"
	"translator-back/internal/auth"
	"translator-back/internal/client/config"
	servercfg "translator-back/internal/config"
	"translator-back/internal/database"
	"translator-back/internal/llm/llmtest"
	"translator-back/internal/router"
	"translator-back/internal/translation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func startServer(t *testing.T, provider *llmtest.Provider) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	store := translation.NewStore(db)
	audit := activity.NewRecorder(db)

	srv := httptest.NewServer(router.New(router.Deps{
		Config:   servercfg.Config{BcryptCost: bcrypt.MinCost},
		DB:       db,
		Tokens:   auth.NewTokenService(db, "access-secret", "refresh-secret", time.Minute, time.Hour),
		Pipeline: translation.NewPipeline(provider, store, translation.WithAuditor(audit)),
		Store:    store,
		Audit:    audit,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLISession(t *testing.T) {
	t.Setenv("TRANSLATOR_CONFIG", filepath.Join(t.TempDir(), "translator.yaml"))
	url := startServer(t, &llmtest.Provider{Chunks: []string{"Hallo", " Welt"}})

	out, err := run(t, "secret123\n", "--server", url, "signup", "--email", "ann@example.com", "--name", "Ann")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed up as ann@example.com")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, url, cfg.Server)
	assert.NotEmpty(t, cfg.AccessToken)
	assert.NotEmpty(t, cfg.RefreshToken)

	out, err = run(t, "", "me")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ann@example.com")

	out, err = run(t, "", "translate", "--to", "German", "Hello world")
	require.NoError(t, err, out)
	assert.True(t, strings.HasPrefix(out, "Hallo Welt\n"), out)
	assert.Contains(t, out, "job: ")

	out, err = run(t, "", "jobs")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	jobID := strings.Fields(lines[1])[0]

	out, err = run(t, "", "history", jobID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[bot] Hallo Welt")

	out, err = run(t, "", "download", jobID)
	require.NoError(t, err, out)
	assert.Equal(t, "Hallo Welt", out)

	out, err = run(t, "", "logout")
	require.NoError(t, err, out)
	cfg, err = config.LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.RefreshToken)

	_, err = run(t, "", "me")
	assert.Error(t, err)
}

func TestCLITranslateRequiresTarget(t *testing.T) {
	t.Setenv("TRANSLATOR_CONFIG", filepath.Join(t.TempDir(), "translator.yaml"))

	_, err := run(t, "", "translate", "Hello")
	assert.Error(t, err)
}

func TestCLITranslateRejectsInvalidJSON(t *testing.T) {
	t.Setenv("TRANSLATOR_CONFIG", filepath.Join(t.TempDir(), "translator.yaml"))

	_, err := run(t, "{broken", "translate", "--to", "German", "--json")
	assert.EqualError(t, err, "content is not valid JSON")
}
