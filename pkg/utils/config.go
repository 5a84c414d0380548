package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type APIConfig struct {
	BaseURL   string            `toml:"base_url"`
	UserAgent string            `toml:"user_agent"`
	Headers   map[string]string `toml:"headers"`
}

type FetchConfig struct {
	RetryIntervalSeconds int `toml:"retry_interval_seconds"`
	MaxAttempts          int `toml:"max_attempts"`    // 0 retries forever
	MaxConcurrency       int `toml:"max_concurrency"` // 0 fetches every chapter at once
	TimeoutSeconds       int `toml:"timeout_seconds"`
}

type OutputConfig struct {
	Dir    string `toml:"dir"`
	Lang   string `toml:"lang"`
	Author string `toml:"author"`
}

type ServerConfig struct {
	Addr        string `toml:"addr"`
	SyncAddr    string `toml:"sync_addr"`
	JWTSecret   string `toml:"jwt_secret"`
	JWTIssuer   string `toml:"jwt_issuer"`
	JWTTTLHours int    `toml:"jwt_ttl_hours"`
	// finished jobs older than this are dropped with their artifacts
	JobRetentionMinutes int `toml:"job_retention_minutes"`
	MaxJobs             int `toml:"max_jobs"`
}

type DatabaseConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the whole application configuration. Values come from
// DefaultConfig, then the TOML file, then RANOBEPUB_* environment variables.
type Config struct {
	API      APIConfig      `toml:"api"`
	Fetch    FetchConfig    `toml:"fetch"`
	Output   OutputConfig   `toml:"output"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		API: APIConfig{
			BaseURL:   "https://api.mangalib.me/api/manga",
			UserAgent: "Mozilla/5.0",
		},
		Fetch: FetchConfig{
			RetryIntervalSeconds: 1,
			TimeoutSeconds:       60,
		},
		Output: OutputConfig{
			Dir:  ".",
			Lang: "ru",
		},
		Server: ServerConfig{
			Addr:     ":8080",
			SyncAddr: ":7070",
			// dev default (change for production)
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "ranobepub",
			JWTTTLHours: 24,

			JobRetentionMinutes: 60,
			MaxJobs:             100,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".ranobepub", "data.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads the config file at path. With an empty path it looks at
// ~/.config/ranobepub/config.toml and then ./ranobepub.toml; when neither
// exists the defaults are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", fmt.Errorf("stat config: %w", err)
		}
		return expanded, nil
	}

	candidates := []string{"~/.config/ranobepub/config.toml", "ranobepub.toml"}
	for _, c := range candidates {
		expanded, err := expandPath(c)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(expanded)
		if err == nil && !info.IsDir() {
			return expanded, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat config: %w", err)
		}
	}
	return "", nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("RANOBEPUB_API_BASE_URL", &c.API.BaseURL)
	setString("RANOBEPUB_USER_AGENT", &c.API.UserAgent)
	setString("RANOBEPUB_OUTPUT_DIR", &c.Output.Dir)
	setString("RANOBEPUB_HTTP_ADDR", &c.Server.Addr)
	setString("RANOBEPUB_SYNC_ADDR", &c.Server.SyncAddr)
	setString("RANOBEPUB_JWT_SECRET", &c.Server.JWTSecret)
	setString("RANOBEPUB_JWT_ISSUER", &c.Server.JWTIssuer)
	setString("RANOBEPUB_DB_PATH", &c.Database.Path)
	setString("RANOBEPUB_LOG_LEVEL", &c.Logging.Level)
	setString("RANOBEPUB_LOG_FORMAT", &c.Logging.Format)

	for key, dst := range map[string]*int{
		"RANOBEPUB_MAX_CONCURRENCY": &c.Fetch.MaxConcurrency,
		"RANOBEPUB_MAX_ATTEMPTS":    &c.Fetch.MaxAttempts,
		"RANOBEPUB_JWT_TTL_HOURS":   &c.Server.JWTTTLHours,
		"RANOBEPUB_JOB_RETENTION":   &c.Server.JobRetentionMinutes,
		"RANOBEPUB_MAX_JOBS":        &c.Server.MaxJobs,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalize() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	var err error
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return err
	}
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return err
	}
	return nil
}

// Validate checks value ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config error: 'api.base_url' is required")
	}
	if c.Fetch.RetryIntervalSeconds < 0 {
		return fmt.Errorf("config error: 'fetch.retry_interval_seconds' must be non-negative")
	}
	if c.Fetch.MaxAttempts < 0 {
		return fmt.Errorf("config error: 'fetch.max_attempts' must be non-negative")
	}
	if c.Fetch.MaxConcurrency < 0 {
		return fmt.Errorf("config error: 'fetch.max_concurrency' must be non-negative")
	}
	if c.Server.JWTTTLHours <= 0 {
		return fmt.Errorf("config error: 'server.jwt_ttl_hours' must be positive")
	}
	if c.Server.JobRetentionMinutes < 0 {
		return fmt.Errorf("config error: 'server.job_retention_minutes' must be non-negative")
	}
	if c.Server.MaxJobs < 0 {
		return fmt.Errorf("config error: 'server.max_jobs' must be non-negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config error: 'logging.format' must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Fetch.RetryIntervalSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c *Config) JWTDuration() time.Duration {
	return time.Duration(c.Server.JWTTTLHours) * time.Hour
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Server.JobRetentionMinutes) * time.Minute
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return p, nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p), nil
}
