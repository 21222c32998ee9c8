package setup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivdr-report/internal/archive"
	"github.com/hivdr-report/internal/domain"
)

func testConfig(archivePath string) *domain.Config {
	return &domain.Config{
		HIVDB:   domain.HIVDBConfig{BaseURL: "https://hivdb.stanford.edu/graphql"},
		Cache:   domain.CacheConfig{Enabled: true},
		Report:  domain.ReportConfig{Language: "en"},
		Archive: domain.ArchiveConfig{Enabled: true, Path: archivePath},
	}
}

func TestGetStatus_FreshInstall(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "data", "runs.db"))

	status := GetStatus(context.Background(), cfg, "")
	assert.Equal(t, "memory+sqlite", status.CacheBackend)
	assert.Equal(t, "en", status.Language)
	assert.Len(t, status.Issues, 2)
	assert.True(t, status.Healthy())
}

func TestGetStatus_CountsArchivedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := archive.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), archive.NewRun("in.fasta", time.Now(), nil)))
	require.NoError(t, store.Close())

	cfg := testConfig(path)
	cfg.Cache.RedisURL = "redis://localhost:6379/0"

	status := GetStatus(context.Background(), cfg, "config.yaml")
	assert.Equal(t, int64(1), status.ArchiveRuns)
	assert.Equal(t, "redis", status.CacheBackend)
	assert.Empty(t, status.Issues)
	assert.True(t, status.Healthy())
}

func TestGetStatus_Disabled(t *testing.T) {
	cfg := testConfig("")
	cfg.Cache.Enabled = false
	cfg.Archive.Enabled = false

	status := GetStatus(context.Background(), cfg, "config.yaml")
	assert.Equal(t, "disabled", status.CacheBackend)
	assert.Equal(t, "disabled", status.ArchivePath)
}

func TestGetStatus_MemoryCacheWithoutArchive(t *testing.T) {
	cfg := testConfig("")
	cfg.Archive.Enabled = false

	status := GetStatus(context.Background(), cfg, "config.yaml")
	assert.Equal(t, "memory", status.CacheBackend)
}

func TestStatus_Healthy(t *testing.T) {
	status := &Status{Issues: []string{"Cannot open run archive: locked"}}
	assert.False(t, status.Healthy())
}

func TestEnsureDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "runs.db")
	require.NoError(t, EnsureDataDir(testConfig(path)))
	assert.DirExists(t, filepath.Dir(path))
}
