package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivdr-report/internal/domain"
	"github.com/hivdr-report/pkg/external"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("language", "hu", "")
	flags.String("log-level", "info", "")
	flags.Bool("no-cache", false, "")
	flags.Bool("no-archive", false, "")
	return flags
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(writeConfig(t, "{}\n"), nil)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, external.DefaultHIVDBURL, cfg.HIVDB.BaseURL)
	assert.Equal(t, 5, cfg.HIVDB.RetryCount)
	assert.Equal(t, 10*time.Second, cfg.HIVDB.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.HIVDB.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.HIVDB.BreakerTimeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.RedisURL)
	assert.Equal(t, "hu", cfg.Report.Language)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "runs.db", filepath.Base(cfg.Archive.Path))
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, m.Validate())
}

func TestNewManager_FileValues(t *testing.T) {
	path := writeConfig(t, `
hivdb:
  base_url: http://localhost:9999/graphql
  retry_count: 2
  retry_delay: 1s
report:
  language: en
cache:
  enabled: false
`)
	m, err := NewManager(path, nil)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "http://localhost:9999/graphql", m.GetHIVDBConfig().BaseURL)
	assert.Equal(t, 2, cfg.HIVDB.RetryCount)
	assert.Equal(t, time.Second, cfg.HIVDB.RetryDelay)
	assert.Equal(t, "en", cfg.Report.Language)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, path, m.ConfigFileUsed())
}

func TestNewManager_EnvOverrides(t *testing.T) {
	t.Setenv("HIVDR_REPORT_LANGUAGE", "en")
	t.Setenv("HIVDR_HIVDB_RETRY_COUNT", "3")

	m, err := NewManager(writeConfig(t, "{}\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "en", m.GetConfig().Report.Language)
	assert.Equal(t, 3, m.GetConfig().HIVDB.RetryCount)
}

func TestNewManager_FlagOverrides(t *testing.T) {
	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--language", "en", "--log-level", "debug", "--no-cache", "--no-archive"}))

	m, err := NewManager(writeConfig(t, "report:\n  language: hu\n"), flags)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "en", cfg.Report.Language)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Archive.Enabled)
}

func TestNewManager_UnchangedFlagsKeepFileValues(t *testing.T) {
	flags := testFlags()
	require.NoError(t, flags.Parse(nil))

	m, err := NewManager(writeConfig(t, "report:\n  language: en\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, "en", m.GetConfig().Report.Language)
	assert.True(t, m.GetConfig().Cache.Enabled)
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
		field  string
	}{
		{"relative url", func(c *domain.Config) { c.HIVDB.BaseURL = "graphql" }, "hivdb.base_url"},
		{"zero retries", func(c *domain.Config) { c.HIVDB.RetryCount = 0 }, "hivdb.retry_count"},
		{"negative delay", func(c *domain.Config) { c.HIVDB.RetryDelay = -time.Second }, "hivdb.retry_delay"},
		{"negative breaker timeout", func(c *domain.Config) { c.HIVDB.BreakerTimeout = -time.Minute }, "hivdb.breaker_timeout"},
		{"unknown language", func(c *domain.Config) { c.Report.Language = "de" }, "report.language"},
		{"archive without path", func(c *domain.Config) { c.Archive.Path = "" }, "archive.path"},
		{"bad log level", func(c *domain.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(writeConfig(t, "{}\n"), nil)
			require.NoError(t, err)
			tt.mutate(m.GetConfig())

			err = m.Validate()
			require.Error(t, err)
			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestManager_WriteConfig(t *testing.T) {
	m, err := NewManager(writeConfig(t, "report:\n  language: en\n"), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "written.yaml")
	require.NoError(t, m.WriteConfig(path))
	assert.Error(t, m.WriteConfig(path))

	reloaded, err := NewManager(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "en", reloaded.GetConfig().Report.Language)
	assert.Equal(t, 5, reloaded.GetConfig().HIVDB.RetryCount)
}
