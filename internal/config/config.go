package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hivdr-report/internal/domain"
	"github.com/hivdr-report/internal/labels"
	"github.com/hivdr-report/pkg/external"
)

// EnvPrefix prefixes every environment override, e.g. HIVDR_HIVDB_BASE_URL
const EnvPrefix = "HIVDR"

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"language":  "report.language",
	"log-level": "logging.level",
}

// Manager loads configuration from file, environment and flags using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty, in
// which case config.yaml is searched for in the usual locations. flags may be nil.
func NewManager(configFile string, flags *pflag.FlagSet) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(configFile, flags); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// DataDir returns the per-user directory holding the archive and logs
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".hivdr-report"
	}
	return filepath.Join(homeDir, ".hivdr-report")
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig(configFile string, flags *pflag.FlagSet) error {
	v := m.v

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath(DataDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	if flags != nil {
		if err := m.BindFlags(flags); err != nil {
			return err
		}
	}

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	if flags != nil {
		if off, err := flags.GetBool("no-cache"); err == nil && off {
			config.Cache.Enabled = false
		}
		if off, err := flags.GetBool("no-archive"); err == nil && off {
			config.Archive.Enabled = false
		}
	}

	m.config = config
	return nil
}

// BindFlags binds the command line flags that override configuration keys
func (m *Manager) BindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := m.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	// HIVDB defaults
	v.SetDefault("hivdb.base_url", external.DefaultHIVDBURL)
	v.SetDefault("hivdb.timeout", "60s")
	v.SetDefault("hivdb.rate_limit", 2)
	v.SetDefault("hivdb.retry_count", external.DefaultRetryCount)
	v.SetDefault("hivdb.retry_delay", external.DefaultRetryDelay.String())
	v.SetDefault("hivdb.user_agent", "hivdr-report/1.0")
	v.SetDefault("hivdb.breaker_timeout", external.DefaultBreakerTimeout.String())

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_items", 100)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Report defaults
	v.SetDefault("report.language", "hu")

	// Archive defaults
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", filepath.Join(DataDir(), "runs.db"))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.filename", filepath.Join(DataDir(), "hivdr-report.log"))
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetHIVDBConfig returns the genotyping service configuration
func (m *Manager) GetHIVDBConfig() *domain.HIVDBConfig {
	return &m.config.HIVDB
}

// ConfigFileUsed returns the path of the loaded config file, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// WriteConfig writes the effective configuration to path. An existing file
// is never overwritten.
func (m *Manager) WriteConfig(path string) error {
	if err := m.v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	u, err := url.Parse(config.HIVDB.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return domain.NewValidationError("hivdb.base_url", "must be an absolute URL", config.HIVDB.BaseURL)
	}
	if config.HIVDB.RetryCount < 1 {
		return domain.NewValidationError("hivdb.retry_count", "must be at least 1", config.HIVDB.RetryCount)
	}
	if config.HIVDB.RetryDelay < 0 {
		return domain.NewValidationError("hivdb.retry_delay", "must not be negative", config.HIVDB.RetryDelay)
	}
	if config.HIVDB.BreakerTimeout < 0 {
		return domain.NewValidationError("hivdb.breaker_timeout", "must not be negative", config.HIVDB.BreakerTimeout)
	}
	if config.HIVDB.RateLimit < 0 {
		return domain.NewValidationError("hivdb.rate_limit", "must not be negative", config.HIVDB.RateLimit)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" && config.Cache.MaxItems <= 0 {
		return domain.NewValidationError("cache.max_items", "must be positive for the in-memory cache", config.Cache.MaxItems)
	}

	if !labels.IsSupported(config.Report.Language) {
		return domain.NewValidationError("report.language", "unsupported language, use hu or en", config.Report.Language)
	}

	if config.Archive.Enabled && config.Archive.Path == "" {
		return domain.NewValidationError("archive.path", "is required when the archive is enabled", "")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewValidationError("logging.level", "invalid log level", config.Logging.Level)
	}

	return nil
}
