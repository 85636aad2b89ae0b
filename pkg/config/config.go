// Package config loads process configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Content cache kinds.
const (
	ContentCacheMemory = "memory"
	ContentCacheLRU    = "lru"
	ContentCacheRedis  = "redis"
)

// Config holds the settings of both binaries. Fields a binary does not use are ignored.
type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort        string `env:"HTTP_PORT" envDefault:":8080"`
	ProjectID       string `env:"GCP_PROJECT_ID"`
	CredentialsFile string `env:"GCP_CREDENTIALS_FILE"`

	Archive  ArchiveConfig
	PubSub   PubSubConfig
	Content  ContentConfig
	Redis    RedisConfig
	Index    IndexConfig
	Pipeline PipelineConfig
}

// ArchiveConfig locates archive envelopes.
type ArchiveConfig struct {
	BucketName   string `env:"ARCHIVE_BUCKET"`
	ObjectPrefix string `env:"ARCHIVE_PREFIX" envDefault:"archive"`
	PromoteTitle bool   `env:"ARCHIVE_PROMOTE_TITLE" envDefault:"false"`
}

// PubSubConfig names the delivery queue topic and the archiver's subscription to it.
type PubSubConfig struct {
	TopicID                string        `env:"DELIVERY_TOPIC_ID"`
	SubscriptionID         string        `env:"DELIVERY_SUBSCRIPTION_ID"`
	PublishTimeout         time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"30s"`
	MaxOutstandingMessages int           `env:"MAX_OUTSTANDING_MESSAGES" envDefault:"100"`
	NumGoroutines          int           `env:"RECEIVE_GOROUTINES" envDefault:"5"`
}

// ContentConfig selects the content store collections and the resolver cache.
type ContentConfig struct {
	CampaignsCollection string `env:"CONTENT_CAMPAIGNS_COLLECTION" envDefault:"campaigns"`
	JourneysCollection  string `env:"CONTENT_JOURNEYS_COLLECTION" envDefault:"journeys"`
	TemplatesCollection string `env:"CONTENT_TEMPLATES_COLLECTION" envDefault:"templates"`
	// Cache is one of memory, lru or redis.
	Cache     string `env:"CONTENT_CACHE" envDefault:"lru"`
	CacheSize int    `env:"CONTENT_CACHE_SIZE" envDefault:"1000"`
}

// RedisConfig is used by the redis content cache and the deduplication window.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"1h"`
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"5m"`
}

// IndexConfig names the BigQuery archive index table. An empty DatasetID disables the index.
type IndexConfig struct {
	DatasetID string `env:"BQ_DATASET_ID"`
	TableID   string `env:"BQ_TABLE_ID" envDefault:"archive_index"`
}

// PipelineConfig sizes the worker pools.
type PipelineConfig struct {
	NumWorkers     int           `env:"NUM_WORKERS" envDefault:"5"`
	MaxConcurrency int           `env:"ROUTER_MAX_CONCURRENCY" envDefault:"16"`
	MaxEventBytes  int           `env:"MAX_EVENT_BYTES" envDefault:"1048576"`
	ProcessTimeout time.Duration `env:"PROCESS_TIMEOUT" envDefault:"30s"`
}

// Load reads the given .env files, if they exist, and parses the environment.
// Variables already set in the environment take precedence over file values.
func Load(files ...string) (*Config, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ValidateRouter checks the settings the route command needs.
func (c *Config) ValidateRouter() error {
	var errs []error
	if c.ProjectID == "" {
		errs = append(errs, errors.New("GCP_PROJECT_ID is required"))
	}
	if c.Archive.BucketName == "" {
		errs = append(errs, errors.New("ARCHIVE_BUCKET is required"))
	}
	if c.PubSub.TopicID == "" {
		errs = append(errs, errors.New("DELIVERY_TOPIC_ID is required"))
	}
	if c.Pipeline.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("ROUTER_MAX_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateArchiver checks the settings the archive command needs.
func (c *Config) ValidateArchiver() error {
	var errs []error
	if c.ProjectID == "" {
		errs = append(errs, errors.New("GCP_PROJECT_ID is required"))
	}
	if c.Archive.BucketName == "" {
		errs = append(errs, errors.New("ARCHIVE_BUCKET is required"))
	}
	if c.PubSub.SubscriptionID == "" {
		errs = append(errs, errors.New("DELIVERY_SUBSCRIPTION_ID is required"))
	}
	if c.Pipeline.NumWorkers <= 0 {
		errs = append(errs, errors.New("NUM_WORKERS must be positive"))
	}
	switch c.Content.Cache {
	case ContentCacheMemory:
	case ContentCacheLRU:
		if c.Content.CacheSize <= 0 {
			errs = append(errs, errors.New("CONTENT_CACHE_SIZE must be positive for the lru cache"))
		}
	case ContentCacheRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CONTENT_CACHE %q", c.Content.Cache))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger at the named level. Unknown levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
