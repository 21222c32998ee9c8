package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hivdr-report/internal/archive"
	"github.com/hivdr-report/internal/domain"
	"github.com/hivdr-report/internal/fasta"
	"github.com/hivdr-report/internal/logging"
	"github.com/hivdr-report/internal/normalizer"
	"github.com/hivdr-report/pkg/external"
)

// ReportRenderer writes normalized reports to an output file
type ReportRenderer interface {
	Render(path string, reports []*domain.Report, meta domain.RunMetadata) error
}

// RunResult describes a completed report run
type RunResult struct {
	RunID      string           `json:"run_id"`
	InputPath  string           `json:"input_path"`
	OutputPath string           `json:"output_path"`
	QueriedAt  time.Time        `json:"queried_at"`
	Archived   bool             `json:"archived"`
	Reports    []*domain.Report `json:"reports"`
}

// Reporter drives one report run: load, analyze, normalize, archive, render
type Reporter struct {
	logger     *logrus.Logger
	analyzer   external.ResistanceAnalyzer
	normalizer *normalizer.Normalizer
	renderer   ReportRenderer
	archive    archive.Store
	now        func() time.Time
}

// NewReporter creates a new reporter. store may be nil to disable the archive.
func NewReporter(
	logger *logrus.Logger,
	analyzer external.ResistanceAnalyzer,
	renderer ReportRenderer,
	store archive.Store,
) *Reporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reporter{
		logger:     logger,
		analyzer:   analyzer,
		normalizer: normalizer.New(logger),
		renderer:   renderer,
		archive:    store,
		now:        time.Now,
	}
}

// Run produces the spreadsheet for the FASTA file at inputPath
func (r *Reporter) Run(ctx context.Context, inputPath, outputPath string) (*RunResult, error) {
	sequences, err := fasta.LoadFile(inputPath)
	if err != nil {
		return nil, err
	}
	if len(sequences) == 0 {
		return nil, domain.NewEmptyInputError(fmt.Sprintf("%s contains no FASTA records", inputPath))
	}

	result := &RunResult{
		RunID:      uuid.NewString(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		QueriedAt:  r.now(),
	}
	log := logging.WithRun(r.logger, result.RunID).WithFields(logrus.Fields{
		"input":     inputPath,
		"sequences": len(sequences),
	})
	log.Info("Querying HIVDB")

	resp, err := r.analyzer.Analyze(ctx, sequences)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze sequences: %w", err)
	}

	reports, err := r.normalizer.NormalizeAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize analysis: %w", err)
	}
	result.Reports = reports

	if r.archive != nil {
		run := archive.NewRun(inputPath, result.QueriedAt, reports)
		run.ID = result.RunID
		run.OutputPath = outputPath
		if err := r.archive.Save(ctx, run); err != nil {
			log.WithError(err).Warn("Failed to archive run")
		} else {
			result.Archived = true
		}
	}

	meta := domain.RunMetadata{
		RunID:     result.RunID,
		QueriedAt: result.QueriedAt,
		InputName: filepath.Base(inputPath),
	}
	if err := r.render(ctx, result, meta); err != nil {
		return result, err
	}

	log.WithField("output", outputPath).Info("Report run completed")
	return result, nil
}

// Rerender writes an archived run to outputPath
func (r *Reporter) Rerender(ctx context.Context, runID, outputPath string) (*RunResult, error) {
	if r.archive == nil {
		return nil, errors.New("run archive is disabled")
	}

	run, err := r.archive.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:      run.ID,
		InputPath:  run.InputPath,
		OutputPath: outputPath,
		QueriedAt:  run.QueriedAt,
		Archived:   true,
		Reports:    run.Reports,
	}
	meta := domain.RunMetadata{
		RunID:     run.ID,
		QueriedAt: run.QueriedAt,
		InputName: filepath.Base(run.InputPath),
	}
	if err := r.render(ctx, result, meta); err != nil {
		return result, err
	}

	logging.WithRun(r.logger, run.ID).WithField("output", outputPath).Info("Archived run re-rendered")
	return result, nil
}

// History lists archived runs, newest first
func (r *Reporter) History(ctx context.Context, limit, offset int) ([]*archive.Run, error) {
	if r.archive == nil {
		return nil, errors.New("run archive is disabled")
	}
	return r.archive.List(ctx, limit, offset)
}

func (r *Reporter) render(ctx context.Context, result *RunResult, meta domain.RunMetadata) error {
	renderErr := r.renderer.Render(result.OutputPath, result.Reports, meta)

	status := archive.StatusRendered
	if renderErr != nil {
		status = archive.StatusWriteFailed
	}
	if result.Archived {
		if err := r.archive.UpdateStatus(ctx, result.RunID, status, result.OutputPath); err != nil {
			logging.WithRun(r.logger, result.RunID).WithError(err).Warn("Failed to update archived run status")
		}
	}

	if renderErr == nil {
		return nil
	}

	var writeErr *domain.OutputWriteError
	if errors.As(renderErr, &writeErr) {
		writeErr.RunID = ""
		if result.Archived {
			writeErr.RunID = result.RunID
		}
		return writeErr
	}
	return &domain.OutputWriteError{Path: result.OutputPath, Err: renderErr}
}
