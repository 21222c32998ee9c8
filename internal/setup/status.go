// Package setup reports on the local installation: configuration, data
// directory, run archive and response cache.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hivdr-report/internal/archive"
	"github.com/hivdr-report/internal/domain"
	"github.com/hivdr-report/internal/labels"
)

// Status represents the current setup status.
type Status struct {
	ConfigFile   string
	ServiceURL   string
	Language     string
	CacheBackend string
	ArchivePath  string
	ArchiveRuns  int64
	Issues       []string
}

// GetStatus checks the current setup status. configFile is the file the
// configuration was loaded from and may be empty.
func GetStatus(ctx context.Context, cfg *domain.Config, configFile string) *Status {
	status := &Status{
		ConfigFile: configFile,
		ServiceURL: cfg.HIVDB.BaseURL,
		Language:   labels.Match(cfg.Report.Language).String(),
		Issues:     []string{},
	}

	if configFile == "" {
		status.Issues = append(status.Issues, "No config file found, using defaults and environment")
	}

	switch {
	case !cfg.Cache.Enabled:
		status.CacheBackend = "disabled"
	case cfg.Cache.RedisURL != "":
		status.CacheBackend = "redis"
	case cfg.Archive.Enabled:
		status.CacheBackend = "memory+sqlite"
	default:
		status.CacheBackend = "memory"
	}

	if !cfg.Archive.Enabled {
		status.ArchivePath = "disabled"
		return status
	}
	status.ArchivePath = cfg.Archive.Path

	if _, err := os.Stat(cfg.Archive.Path); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Run archive will be created on first run: %s", cfg.Archive.Path))
		return status
	}

	store, err := archive.NewSQLiteStore(cfg.Archive.Path)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Cannot open run archive: %v", err))
		return status
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Cannot read run archive: %v", err))
		return status
	}
	status.ArchiveRuns = count
	return status
}

// Healthy returns true if all issues are just warnings (not errors).
func (s *Status) Healthy() bool {
	for _, issue := range s.Issues {
		if !strings.Contains(issue, "will be created") && !strings.Contains(issue, "using defaults") {
			return false
		}
	}
	return true
}

// EnsureDataDir creates the directory holding the archive if it doesn't exist.
func EnsureDataDir(cfg *domain.Config) error {
	if !cfg.Archive.Enabled {
		return nil
	}
	dir := filepath.Dir(cfg.Archive.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
