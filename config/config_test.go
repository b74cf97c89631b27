package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasksvc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
store_driver: memory
github_owner: Octo-Org
settle_timeout: 5s
notify_max_attempts: 3
`), 0o600))

	t.Setenv("TASKSVC_CONFIG", path)
	t.Setenv("PORT", "9100")
	t.Setenv("SECRET", "s3cret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("POLL_INTERVAL_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "Octo-Org", cfg.GitHubOwner)
	assert.Equal(t, 5*time.Second, cfg.SettleTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.NotifyMaxAttempts)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	require.NoError(t, cfg.Validate())
}

func TestLoadLowercaseSecret(t *testing.T) {
	t.Setenv("SECRET", "")
	t.Setenv("secret", "lower")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "lower", cfg.Secret)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("TASKSVC_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Secret = "s"
	base.OpenAIKey = "k"
	base.GitHubToken = "t"
	require.NoError(t, base.Validate())

	noToken := base
	noToken.GitHubToken = ""
	assert.ErrorContains(t, noToken.Validate(), "GITHUB_TOKEN")

	pg := base
	pg.StoreDriver = DriverPostgres
	assert.ErrorContains(t, pg.Validate(), "PG_DSN")

	unknown := base
	unknown.StoreDriver = "s3"
	assert.ErrorContains(t, unknown.Validate(), "unknown store driver")

	noSecret := base
	noSecret.Secret = ""
	assert.ErrorContains(t, noSecret.Validate(), "SECRET")
}

func TestNamingConvention(t *testing.T) {
	cfg := Default()
	cfg.GitHubOwner = "Octo-Org"
	assert.Equal(t, "https://github.com/Octo-Org/todo_x1", cfg.RepoURL("todo_x1"))
	assert.Equal(t, "https://octo-org.github.io/todo_x1/", cfg.PagesURL("todo_x1"))

	cfg.PagesBaseURL = "http://localhost:8000/sites/"
	assert.Equal(t, "http://localhost:8000/sites/todo_x1/", cfg.PagesURL("todo_x1"))
}

func TestSelfHostedDriversDefaultToSitesRoute(t *testing.T) {
	for _, driver := range []string{DriverMemory, DriverPostgres} {
		cfg := Default()
		cfg.GitHubOwner = "octo"
		cfg.StoreDriver = driver
		cfg.Port = "9100"
		assert.Equal(t, "http://localhost:9100/sites/todo_x1/", cfg.PagesURL("todo_x1"), driver)

		cfg.PagesBaseURL = "https://apps.example.com/sites"
		assert.Equal(t, "https://apps.example.com/sites/todo_x1/", cfg.PagesURL("todo_x1"), driver)
	}
}
