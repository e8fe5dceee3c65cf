package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/textextract")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 100, cfg.MaxPages)
	assert.Equal(t, []string{"eng"}, cfg.OCRLanguages)
	assert.True(t, cfg.ExtractImages)
	assert.True(t, cfg.PreserveLayout)
	assert.InDelta(t, 0.7, cfg.ConfidenceThreshold, 1e-9)
}

func TestLoadConfigFileUnderEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
DATABASE_URL: postgres://file/db
MAX_PAGES: 20
OCR_LANGUAGES: [eng, hin]
WORKER_CONCURRENCY: 8
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WORKER_CONCURRENCY", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, 20, cfg.MaxPages)
	assert.Equal(t, []string{"eng", "hin"}, cfg.OCRLanguages)
	assert.Equal(t, 2, cfg.WorkerConcurrency, "environment wins over file")
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RedisURL:            "redis://localhost:6379",
			QueueBackend:        "redis",
			DatabaseURL:         "postgres://localhost/db",
			WorkerConcurrency:   4,
			ProcessingTimeout:   300000,
			MaxFileSize:         50 * 1024 * 1024,
			MaxPages:            100,
			ImageConcurrency:    1,
			ConfidenceThreshold: 0.7,
			OCRLanguages:        []string{"eng"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, false},
		{"bad backend", func(c *Config) { c.QueueBackend = "kafka" }, false},
		{"asynq backend", func(c *Config) { c.QueueBackend = "asynq" }, true},
		{"zero concurrency", func(c *Config) { c.WorkerConcurrency = 0 }, false},
		{"tiny file limit", func(c *Config) { c.MaxFileSize = 10 }, false},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, false},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, false},
		{"no languages", func(c *Config) { c.OCRLanguages = nil }, false},
		{"negative ttl", func(c *Config) { c.ResultCacheTTL = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
