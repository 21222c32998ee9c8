package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hivdr-report/internal/archive"
	"github.com/hivdr-report/internal/config"
	"github.com/hivdr-report/internal/labels"
	"github.com/hivdr-report/internal/logging"
	"github.com/hivdr-report/internal/report"
	"github.com/hivdr-report/internal/service"
	"github.com/hivdr-report/internal/setup"
	"github.com/hivdr-report/pkg/external"
)

var version = "1.0.0"

var (
	configFile string
	language   string
	logLevel   string
	noCache    bool
	noArchive  bool

	historyLimit  int
	historyOffset int
	historyJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "hivdr-report <input.fasta> <output.xlsx>",
	Short: "Build an HIV drug resistance spreadsheet from FASTA sequences",
	Long: `Submits the sequences of a FASTA file to the Stanford HIVDB genotypic
resistance service and writes the interpreted result as a formatted xlsx
workbook, one worksheet per sequence.

Labels are written in Hungarian by default; use --language en for English.
Every run is archived locally so a report can be rendered again later.

Examples:

  # Hungarian report
  hivdr-report patient.fasta patient.xlsx

  # English report without the response cache
  hivdr-report --language en --no-cache patient.fasta patient.xlsx

  # Render an archived run again
  hivdr-report rerender 3f0c7a5e-5d1b-4c53-9b0e-7c2f4ad1e2b1 copy.xlsx`,
	Args:          cobra.ExactArgs(2),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runReport,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived report runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, cache and archive status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var initCmd = &cobra.Command{
	Use:   "init [config.yaml]",
	Short: "Write a config file holding the current settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var rerenderCmd = &cobra.Command{
	Use:   "rerender <run-id> <output.xlsx>",
	Short: "Write the spreadsheet of an archived run again",
	Args:  cobra.ExactArgs(2),
	RunE:  runRerender,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: config.yaml in ., ./config or ~/.hivdr-report)")
	flags.StringVar(&language, "language", "hu", "report language: hu or en")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&noCache, "no-cache", false, "always query the service, bypassing the response cache")
	flags.BoolVar(&noArchive, "no-archive", false, "do not archive this run")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of runs to skip")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "export every archived run as JSON")

	rootCmd.AddCommand(historyCmd, rerenderCmd, statusCmd, initCmd)
}

// app holds the components wired from configuration
type app struct {
	logger   *logrus.Logger
	reporter *service.Reporter
	store    archive.Store
	closers  []io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	manager, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()

	logger, logCloser, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, closers: []io.Closer{logCloser}}
	if used := manager.ConfigFileUsed(); used != "" {
		logger.WithField("config", used).Debug("Configuration loaded")
	}

	var sqlite *archive.SQLiteStore
	if cfg.Archive.Enabled {
		store, err := archive.NewSQLiteStore(cfg.Archive.Path)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.Archive.Path).Warn("Run archive unavailable")
		} else {
			sqlite = store
			a.store = store
			a.closers = append(a.closers, store)
		}
	}

	var persistent external.ResponseCache
	if sqlite != nil {
		persistent = sqlite.ResponseCache(cfg.Cache.TTL)
	}
	cache, err := external.NewResponseCache(cfg.Cache, persistent)
	if err != nil {
		logger.WithError(err).Warn("Response cache unavailable, falling back to in-memory cache")
		cache = external.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.TTL)
	}
	if cache != nil {
		a.closers = append(a.closers, cache)
	}

	client := external.NewResilientHIVDBClient(cfg.HIVDB, cache, cfg.Cache.TTL, logger)
	if sqlite != nil {
		client.WithStateStore(sqlite)
	}
	renderer := report.NewRenderer(labels.NewTranslator(cfg.Report.Language), logger)
	a.reporter = service.NewReporter(logger, client, renderer, a.store)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.WithError(err).Debug("Close failed")
		}
	}
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.reporter.Run(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d sequence report(s) to %s (run %s)\n",
		len(result.Reports), result.OutputPath, result.RunID)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if historyJSON {
		if a.store == nil {
			return fmt.Errorf("run archive is disabled")
		}
		return a.store.ExportJSON(cmd.Context(), cmd.OutOrStdout())
	}

	runs, err := a.reporter.History(cmd.Context(), historyLimit, historyOffset)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tSTATUS\tINPUT\tSEQUENCES\tDATABASE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			run.Status,
			run.InputPath,
			strings.Join(run.Headers(), ","),
			run.DatabaseVersion,
		)
	}
	return w.Flush()
}

func runRerender(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.reporter.Rerender(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote run %s to %s\n", result.RunID, result.OutputPath)
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	manager, err := config.NewManager(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return manager, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	status := setup.GetStatus(cmd.Context(), manager.GetConfig(), manager.ConfigFileUsed())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "hivdr-report status")
	fmt.Fprintf(out, "  Config file: %s\n", valueOr(status.ConfigFile, "-"))
	fmt.Fprintf(out, "  Service:     %s\n", status.ServiceURL)
	fmt.Fprintf(out, "  Language:    %s\n", status.Language)
	fmt.Fprintf(out, "  Cache:       %s\n", status.CacheBackend)
	fmt.Fprintf(out, "  Archive:     %s (%d runs)\n", status.ArchivePath, status.ArchiveRuns)
	for _, issue := range status.Issues {
		fmt.Fprintf(out, "  ! %s\n", issue)
	}
	if !status.Healthy() {
		return fmt.Errorf("setup has problems")
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	manager, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setup.EnsureDataDir(manager.GetConfig()); err != nil {
		return err
	}

	path := filepath.Join(config.DataDir(), "config.yaml")
	if len(args) == 1 {
		path = args[0]
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := manager.WriteConfig(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
