// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Retrieval, Index, Postgres, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// RetrievalConfig selects the weighting scheme and controls how queries are
// scored against the digest.
type RetrievalConfig struct {
	Scheme       string `yaml:"scheme"`
	TopK         int    `yaml:"topK"`
	MaxResults   int    `yaml:"maxResults"`
	Shards       int    `yaml:"shards"`
	LegacyBinary bool   `yaml:"legacyBinary"`
}

// IndexConfig names where the precomputed inverted index comes from.
type IndexConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	Table  string `yaml:"table"`
}

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

// QueryConfig controls how free-text queries are turned into term counts.
type QueryConfig struct {
	Stem      bool `yaml:"stem"`
	StopWords bool `yaml:"stopWords"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig points at a local SQLite database holding a postings table.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	QueryEvents string `yaml:"queryEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyticsConfig sizes the query-event pipeline. A zero SnapshotInterval
// disables snapshot persistence; Store picks the snapshot database
// ("postgres" or "sqlite", the latter at StorePath).
type AnalyticsConfig struct {
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	Store            string        `yaml:"store"`
	StorePath        string        `yaml:"storePath"`
}

// RateLimitConfig bounds request throughput on the HTTP API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging for requests.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate rejects configurations the service cannot run with. An unknown
// weighting scheme is an error here rather than a silent fallback.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Retrieval.Scheme) {
	case "tfidf", "tf", "binary":
	default:
		return apperrors.Newf(apperrors.ErrUnknownScheme, http.StatusBadRequest, "retrieval.scheme %q", c.Retrieval.Scheme)
	}
	if c.Retrieval.TopK <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "retrieval.topK must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxResults < c.Retrieval.TopK {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "retrieval.maxResults (%d) must be >= topK (%d)", c.Retrieval.MaxResults, c.Retrieval.TopK)
	}
	if c.Retrieval.Shards <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "retrieval.shards must be positive, got %d", c.Retrieval.Shards)
	}
	switch c.Index.Source {
	case SourceFile:
		if c.Index.Path == "" {
			return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "index.path is required for file source")
		}
	case SourcePostgres:
	case SourceSQLite:
		if c.SQLite.Path == "" {
			return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "sqlite.path is required for sqlite source")
		}
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "index.source %q (want file, postgres or sqlite)", c.Index.Source)
	}
	if c.Analytics.SnapshotInterval > 0 {
		switch c.Analytics.Store {
		case SourcePostgres:
		case SourceSQLite:
			if c.Analytics.StorePath == "" {
				return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "analytics.storePath is required for sqlite store")
			}
		default:
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "analytics.store %q (want postgres or sqlite)", c.Analytics.Store)
		}
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "rateLimit.requestsPerSecond must be positive")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Scheme:     "tfidf",
			TopK:       10,
			MaxResults: 100,
			Shards:     1,
		},
		Index: IndexConfig{
			Source: SourceFile,
			Path:   "data/index.json",
			Table:  "postings",
		},
		Query: QueryConfig{
			Stem:      true,
			StopWords: true,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "retrieval",
			User:            "retrieval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/index.db",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "retrieval-group",
			Topics: KafkaTopics{
				QueryEvents: "retrieval-query-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Analytics: AnalyticsConfig{
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
			Store:         "postgres",
			StorePath:     "data/analytics.db",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads VSR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VSR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VSR_RETRIEVAL_SCHEME"); v != "" {
		cfg.Retrieval.Scheme = v
	}
	if v := os.Getenv("VSR_RETRIEVAL_TOPK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("VSR_RETRIEVAL_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.Shards = n
		}
	}
	if v := os.Getenv("VSR_RETRIEVAL_LEGACY_BINARY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Retrieval.LegacyBinary = b
		}
	}
	if v := os.Getenv("VSR_INDEX_SOURCE"); v != "" {
		cfg.Index.Source = v
	}
	if v := os.Getenv("VSR_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("VSR_INDEX_TABLE"); v != "" {
		cfg.Index.Table = v
	}
	if v := os.Getenv("VSR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("VSR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("VSR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("VSR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("VSR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("VSR_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("VSR_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("VSR_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("VSR_ANALYTICS_STORE"); v != "" {
		cfg.Analytics.Store = v
	}
	if v := os.Getenv("VSR_ANALYTICS_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analytics.SnapshotInterval = d
		}
	}
	if v := os.Getenv("VSR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VSR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("VSR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("VSR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VSR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
