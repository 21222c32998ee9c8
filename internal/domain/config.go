package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	HIVDB   HIVDBConfig   `mapstructure:"hivdb"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Report  ReportConfig  `mapstructure:"report"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// HIVDBConfig represents the genotyping service client configuration
type HIVDBConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"` // requests per second
	RetryCount int           `mapstructure:"retry_count"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	UserAgent  string        `mapstructure:"user_agent"`

	// BreakerTimeout is how long an open circuit breaker rejects queries,
	// including in later runs sharing the archive
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
}

// CacheConfig represents response cache configuration. An empty RedisURL selects
// the in-process cache.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxItems    int           `mapstructure:"max_items"`
	TTL         time.Duration `mapstructure:"ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// ReportConfig represents spreadsheet output configuration
type ReportConfig struct {
	Language string `mapstructure:"language"` // "hu", "en"
}

// ArchiveConfig represents the run archive configuration
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"` // "stdout", "stderr", "file"
	Filename string `mapstructure:"filename"`
}
