package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tfidf", cfg.Retrieval.Scheme)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 1, cfg.Retrieval.Shards)
	assert.Equal(t, SourceFile, cfg.Index.Source)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  scheme: binary
  topK: 5
  shards: 4
  legacyBinary: true
index:
  source: sqlite
redis:
  cacheTTL: 2m
`), 0o644))

	t.Setenv("VSR_SQLITE_PATH", "/tmp/postings.db")
	t.Setenv("VSR_RETRIEVAL_SHARDS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "binary", cfg.Retrieval.Scheme)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 8, cfg.Retrieval.Shards)
	assert.True(t, cfg.Retrieval.LegacyBinary)
	assert.Equal(t, SourceSQLite, cfg.Index.Source)
	assert.Equal(t, "/tmp/postings.db", cfg.SQLite.Path)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 100, cfg.Retrieval.MaxResults)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		sentinel error
	}{
		{"unknown scheme", func(c *Config) { c.Retrieval.Scheme = "bm25" }, apperrors.ErrUnknownScheme},
		{"zero topK", func(c *Config) { c.Retrieval.TopK = 0 }, apperrors.ErrInvalidInput},
		{"maxResults below topK", func(c *Config) { c.Retrieval.MaxResults = 3 }, apperrors.ErrInvalidInput},
		{"zero shards", func(c *Config) { c.Retrieval.Shards = 0 }, apperrors.ErrInvalidInput},
		{"file without path", func(c *Config) { c.Index.Path = "" }, apperrors.ErrInvalidInput},
		{"bad source", func(c *Config) { c.Index.Source = "s3" }, apperrors.ErrInvalidInput},
		{"bad snapshot store", func(c *Config) { c.Analytics.SnapshotInterval = time.Minute; c.Analytics.Store = "mongo" }, apperrors.ErrInvalidInput},
		{"sqlite store without path", func(c *Config) {
			c.Analytics.SnapshotInterval = time.Minute
			c.Analytics.Store = SourceSQLite
			c.Analytics.StorePath = ""
		}, apperrors.ErrInvalidInput},
		{"bad rate", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RequestsPerSecond = 0 }, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := defaultConfig().Postgres
	assert.Equal(t,
		"host=localhost port=5432 user=retrieval password=localdev dbname=retrieval sslmode=disable",
		p.DSN(),
	)
}
