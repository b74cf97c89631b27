package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverGitHub   = "github"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is built once at startup and handed to every constructor.
type Config struct {
	Port           string        `yaml:"port"`
	Secret         string        `yaml:"secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`

	StoreDriver   string `yaml:"store_driver"`
	PGDSN         string `yaml:"pg_dsn"`
	GitHubToken   string `yaml:"github_token"`
	GitHubOwner   string `yaml:"github_owner"`
	GitHubAPIBase string `yaml:"github_api_base"`
	GitHubWebBase string `yaml:"github_web_base"`
	PagesBaseURL  string `yaml:"pages_base_url"`
	DefaultBranch string `yaml:"default_branch"`

	OpenAIKey     string  `yaml:"openai_api_key"`
	OpenAIBaseURL string  `yaml:"openai_base_url"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`

	NotifyMaxAttempts int           `yaml:"notify_max_attempts"`
	NotifyBaseDelay   time.Duration `yaml:"notify_base_delay"`
	SettleTimeout     time.Duration `yaml:"settle_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`

	LicenseHolder string `yaml:"license_holder"`
	LicenseYear   int    `yaml:"license_year"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:              "8000",
		RequestTimeout:    10 * time.Minute,
		HTTPTimeout:       30 * time.Second,
		StoreDriver:       DriverGitHub,
		GitHubOwner:       "Saikat-Sukai",
		GitHubAPIBase:     "https://api.github.com",
		GitHubWebBase:     "https://github.com",
		DefaultBranch:     "main",
		OpenAIBaseURL:     "https://api.openai.com/v1",
		Model:             "gpt-4o-mini",
		Temperature:       0.3,
		NotifyMaxAttempts: 5,
		NotifyBaseDelay:   time.Second,
		SettleTimeout:     20 * time.Second,
		PollInterval:      500 * time.Millisecond,
		LicenseYear:       time.Now().Year(),
	}
}

// Load reads defaults, then the YAML file named by TASKSVC_CONFIG (if any),
// then environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("TASKSVC_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envDefault("PORT", c.Port)
	c.Secret = envDefault("SECRET", envDefault("secret", c.Secret))
	c.RequestTimeout = envSeconds("REQUEST_TIMEOUT_SEC", c.RequestTimeout)
	c.HTTPTimeout = envSeconds("HTTP_TIMEOUT_SEC", c.HTTPTimeout)

	c.StoreDriver = strings.ToLower(envDefault("STORE_DRIVER", c.StoreDriver))
	c.PGDSN = envDefault("PG_DSN", c.PGDSN)
	c.GitHubToken = envDefault("GITHUB_TOKEN", c.GitHubToken)
	c.GitHubOwner = envDefault("GITHUB_USERNAME", c.GitHubOwner)
	c.GitHubAPIBase = envDefault("GITHUB_API_BASE", c.GitHubAPIBase)
	c.GitHubWebBase = envDefault("GITHUB_WEB_BASE", c.GitHubWebBase)
	c.PagesBaseURL = envDefault("PAGES_BASE_URL", c.PagesBaseURL)
	c.DefaultBranch = envDefault("DEFAULT_BRANCH", c.DefaultBranch)

	c.OpenAIKey = envDefault("OPENAI_API_KEY", c.OpenAIKey)
	c.OpenAIBaseURL = envDefault("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.Model = envDefault("OPENAI_MODEL", c.Model)

	if raw := os.Getenv("NOTIFY_MAX_ATTEMPTS"); raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			c.NotifyMaxAttempts = v
		}
	}
	c.NotifyBaseDelay = envMillis("NOTIFY_BASE_DELAY_MS", c.NotifyBaseDelay)
	c.SettleTimeout = envSeconds("SETTLE_TIMEOUT_SEC", c.SettleTimeout)
	c.PollInterval = envMillis("POLL_INTERVAL_MS", c.PollInterval)
	c.LicenseHolder = envDefault("LICENSE_HOLDER", c.LicenseHolder)
	if raw := os.Getenv("LICENSE_YEAR"); raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			c.LicenseYear = v
		}
	}
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var missing []string
	if c.Secret == "" {
		missing = append(missing, "SECRET")
	}
	if c.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.StoreDriver {
	case DriverGitHub:
		if c.GitHubToken == "" {
			missing = append(missing, "GITHUB_TOKEN")
		}
	case DriverPostgres:
		if c.PGDSN == "" {
			missing = append(missing, "PG_DSN")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.GitHubOwner == "" {
		missing = append(missing, "GITHUB_USERNAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.NotifyMaxAttempts <= 0 {
		return fmt.Errorf("notify_max_attempts must be positive")
	}
	return nil
}

// RepoURL is the browsable location of a project.
func (c Config) RepoURL(project string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.GitHubWebBase, "/"), c.GitHubOwner, project)
}

// PagesURL is the public publication location of a project. Without
// PagesBaseURL, GitHub projects live on github.io and self-hosted drivers
// under this server's /sites/ route.
func (c Config) PagesURL(project string) string {
	base := c.PagesBaseURL
	if base == "" && c.StoreDriver != DriverGitHub {
		base = "http://localhost:" + c.Port + "/sites"
	}
	if base != "" {
		return fmt.Sprintf("%s/%s/", strings.TrimRight(base, "/"), project)
	}
	return fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(c.GitHubOwner), project)
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	}
	return def
}
