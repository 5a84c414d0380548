package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "http://localhost:9000/api/manga/"
headers = { "Site-Id" = "3" }

[fetch]
retry_interval_seconds = 2
max_concurrency = 4

[output]
dir = "/tmp/books"

[logging]
level = "DEBUG"
format = "json"
`)
	t.Setenv("RANOBEPUB_MAX_ATTEMPTS", "5")
	t.Setenv("RANOBEPUB_DB_PATH", "/tmp/h.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/api/manga", cfg.API.BaseURL)
	assert.Equal(t, map[string]string{"Site-Id": "3"}, cfg.API.Headers)
	assert.Equal(t, "Mozilla/5.0", cfg.API.UserAgent, "defaults survive partial files")
	assert.Equal(t, 2*time.Second, cfg.RetryInterval())
	assert.Equal(t, 4, cfg.Fetch.MaxConcurrency)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, "/tmp/books", cfg.Output.Dir)
	assert.Equal(t, "/tmp/h.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 24*time.Hour, cfg.JWTDuration())
	assert.Equal(t, time.Hour, cfg.JobRetention())
	assert.Equal(t, 100, cfg.Server.MaxJobs)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `[fetch`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[fetch]\nmax_concurrency = -1\n"))
	assert.ErrorContains(t, err, "max_concurrency")

	_, err = LoadConfig(writeConfig(t, "[server]\nmax_jobs = -1\n"))
	assert.ErrorContains(t, err, "server.max_jobs")

	_, err = LoadConfig(writeConfig(t, "[logging]\nformat = \"xml\"\n"))
	assert.ErrorContains(t, err, "logging.format")

	t.Setenv("RANOBEPUB_MAX_CONCURRENCY", "many")
	_, err = LoadConfig(writeConfig(t, ""))
	assert.ErrorContains(t, err, "RANOBEPUB_MAX_CONCURRENCY")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/books")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "books"), got)

	got, err = expandPath("a/../b")
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)
}
