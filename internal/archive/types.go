// Package archive keeps a local history of normalized reports so a report can
// be re-rendered when writing the spreadsheet failed or a copy is needed later.
package archive

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hivdr-report/internal/domain"
)

// Status is the lifecycle state of an archived run
type Status string

const (
	StatusNormalized  Status = "normalized"
	StatusRendered    Status = "rendered"
	StatusWriteFailed Status = "write_failed"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Run is one archived report run
type Run struct {
	ID              string           `json:"id"`
	InputPath       string           `json:"input_path"`
	OutputPath      string           `json:"output_path"`
	DatabaseVersion string           `json:"database_version"`
	Status          Status           `json:"status"`
	QueriedAt       time.Time        `json:"queried_at"`
	Reports         []*domain.Report `json:"reports"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Headers returns the sequence headers covered by the run
func (r *Run) Headers() []string {
	out := make([]string, 0, len(r.Reports))
	for _, report := range r.Reports {
		out = append(out, report.Header)
	}
	return out
}

// Store defines the interface for run archive operations.
type Store interface {
	// Save stores a new run. An empty ID is filled in.
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by ID, or ErrRunNotFound.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns runs, newest first, with pagination.
	List(ctx context.Context, limit, offset int) ([]*Run, error)

	// Count returns the total number of archived runs.
	Count(ctx context.Context) (int64, error)

	// UpdateStatus records the outcome of rendering a run.
	UpdateStatus(ctx context.Context, id string, status Status, outputPath string) error

	// ExportJSON exports all runs to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Runs       []*Run    `json:"runs"`
}
