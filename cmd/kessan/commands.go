package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/analysis"
	"github.com/hyperjump/kessan/internal/cli"
	"github.com/hyperjump/kessan/internal/export"
	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/internal/server"
	"github.com/hyperjump/kessan/internal/watcher"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *rootOptions) error {
	cfg, resolvedConfigPath, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || opts.debug),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	watchSvc := newWatcher(cfg.Watch.Directories, cfg.Ingest.Extensions, cfg.Watch.RecursiveOrDefault(), components, logger)
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	go watchSvc.SyncExisting()

	srv := server.NewServer(
		components.Router,
		components.Indexer,
		components.Exporter,
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
	)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// newWatcher builds a watcher that ingests settled files through the indexer.
func newWatcher(dirs, extensions []string, recursive bool, components *Components, logger *zap.Logger) *watcher.Watcher {
	ing := components.Indexer
	return watcher.New(dirs, extensions,
		func(ctx context.Context, path string) {
			n, err := ing.IngestFile(ctx, path, false)
			if err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watch ingested file", zap.String("path", path), zap.Int("chunks", n))
		},
		watcher.WithLogger(logger),
		watcher.WithRecursive(recursive),
	)
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var force bool
	var output string
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest report files or directories into the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, _, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			report, err := components.Indexer.IngestPaths(cmd.Context(), args, force)
			if report != nil {
				if werr := cli.WriteReport(cmd.OutOrStdout(), report, format); werr != nil && err == nil {
					err = werr
				}
			}
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-ingest files that were already ingested")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

// analyzeFlags holds the analyze subcommand flags.
type analyzeFlags struct {
	company, company1, company2 string
	year, quarter               string
	year1, quarter1             string
	year2, quarter2             string
	section, question           string
	exportFormat                string
	output                      string
	serverURL                   string
}

// params builds the wire request for kind from the flags.
func (f *analyzeFlags) params(kind string) models.Params {
	return models.Params{
		AnalysisType: kind,
		Company:      f.company,
		Company1:     f.company1,
		Company2:     f.company2,
		Year:         f.year,
		Quarter:      f.quarter,
		Year1:        f.year1,
		Quarter1:     f.quarter1,
		Year2:        f.year2,
		Quarter2:     f.quarter2,
		Section:      f.section,
		Question:     f.question,
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <insight|compare|risk|qa>",
		Short: "Run an analysis over the indexed reports",
		Example: `  kessan analyze insight --company Apple
  kessan analyze compare --company1 Apple --company2 Google
  kessan analyze compare --year1 2023 --quarter1 Q1 --year2 2023 --quarter2 Q2
  kessan analyze risk --section risk_factors
  kessan analyze qa --question "What was total revenue?" --company Apple --export pdf`,
		ValidArgs: []string{"insight", "compare", "risk", "qa"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, f, args[0])
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.company, "company", "", "restrict to one company")
	fl.StringVar(&f.company1, "company1", "", "first company to compare")
	fl.StringVar(&f.company2, "company2", "", "second company to compare")
	fl.StringVar(&f.year, "year", "", "restrict to a fiscal year (with --quarter)")
	fl.StringVar(&f.quarter, "quarter", "", "restrict to a quarter, e.g. Q1 (with --year)")
	fl.StringVar(&f.year1, "year1", "", "first period year")
	fl.StringVar(&f.quarter1, "quarter1", "", "first period quarter")
	fl.StringVar(&f.year2, "year2", "", "second period year")
	fl.StringVar(&f.quarter2, "quarter2", "", "second period quarter")
	fl.StringVar(&f.section, "section", "", "restrict risk analysis to a report section")
	fl.StringVar(&f.question, "question", "", "question to answer (qa)")
	fl.StringVar(&f.exportFormat, "export", "", "also export the result: excel or pdf")
	fl.StringVar(&f.output, "output", "text", "output format: text or json")
	fl.StringVar(&f.serverURL, "server", "", "run against a kessan server at this URL instead of the local index")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *rootOptions, f *analyzeFlags, kind string) error {
	format, err := cli.ParseOutputFormat(f.output)
	if err != nil {
		return err
	}
	var exportFormat export.Format
	if f.exportFormat != "" {
		if exportFormat, err = export.ParseFormat(f.exportFormat); err != nil {
			return err
		}
	}
	cfg, _, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	params := f.params(kind)
	var env *models.Envelope
	if f.serverURL != "" {
		if env, err = newAPIClient(f.serverURL).Analyze(cmd.Context(), params); err != nil {
			return err
		}
	} else {
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer components.Close()
		env = components.Router.RunAnalysis(cmd.Context(), kind, params)
	}

	if err := cli.WriteEnvelope(cmd.OutOrStdout(), env, format); err != nil {
		return err
	}
	if !env.OK() {
		return errReported
	}
	if exportFormat != "" {
		path, err := export.New(cfg.Storage.ExportDir, export.WithLogger(logger)).Export(env, exportFormat)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", path)
	}
	return nil
}

// catalogFlags are shared by the read-only catalog commands.
type catalogFlags struct {
	output    string
	serverURL string
}

func (c *catalogFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.output, "output", "text", "output format: text or json")
	cmd.Flags().StringVar(&c.serverURL, "server", "", "query a kessan server at this URL instead of the local index")
}

// withCatalog runs fn against the server when --server is set, otherwise against the local index.
func withCatalog(cmd *cobra.Command, opts *rootOptions, c *catalogFlags, fn func(catalog, cli.OutputFormat) error) error {
	format, err := cli.ParseOutputFormat(c.output)
	if err != nil {
		return err
	}
	if c.serverURL != "" {
		return fn(newAPIClient(c.serverURL), format)
	}
	cfg, _, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components.Router, format)
}

// catalog is what the read-only commands need from either the router or the API client.
type catalog interface {
	Companies(ctx context.Context) ([]string, error)
	Quarters(ctx context.Context) ([]models.Period, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

func newCompaniesCmd(opts *rootOptions) *cobra.Command {
	c := &catalogFlags{}
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "List companies present in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, c, func(cat catalog, format cli.OutputFormat) error {
				companies, err := cat.Companies(cmd.Context())
				if err != nil {
					return err
				}
				return cli.WriteList(cmd.OutOrStdout(), "companies", companies, format)
			})
		},
	}
	c.bind(cmd)
	return cmd
}

func newQuartersCmd(opts *rootOptions) *cobra.Command {
	c := &catalogFlags{}
	cmd := &cobra.Command{
		Use:   "quarters",
		Short: "List reporting periods present in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, c, func(cat catalog, format cli.OutputFormat) error {
				quarters, err := cat.Quarters(cmd.Context())
				if err != nil {
					return err
				}
				return cli.WriteList(cmd.OutOrStdout(), "quarters", periodStrings(quarters), format)
			})
		},
	}
	c.bind(cmd)
	return cmd
}

func periodStrings(periods []models.Period) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.String()
	}
	return out
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	c := &catalogFlags{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, c, func(cat catalog, format cli.OutputFormat) error {
				stats, err := cat.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return cli.WriteStats(cmd.OutOrStdout(), stats, format)
			})
		},
	}
	c.bind(cmd)
	return cmd
}

func newQuestionsCmd() *cobra.Command {
	var company, year, quarter, output string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Suggest questions to ask about a company or period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			questions := analysis.SuggestQuestions(strings.TrimSpace(company), models.NewPeriod(year, quarter))
			return cli.WriteList(cmd.OutOrStdout(), "questions", questions, format)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company the questions are about")
	cmd.Flags().StringVar(&year, "year", "", "fiscal year (with --quarter)")
	cmd.Flags().StringVar(&quarter, "quarter", "", "quarter, e.g. Q1 (with --year)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "watch [dir]...",
		Short: "Watch inbox directories and ingest new reports as they arrive",
		Long: `Watch the configured inbox directories, plus any given on the command line,
and ingest report files once writes to them settle. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			dirs := append(append([]string(nil), cfg.Watch.Directories...), args...)
			if len(dirs) == 0 {
				return fmt.Errorf("no directories to watch: pass one or set watch.directories in the config")
			}
			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			ctx := cmd.Context()
			w := newWatcher(dirs, cfg.Ingest.Extensions, cfg.Watch.RecursiveOrDefault(), components, logger)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer w.Stop()
			if !noSync {
				n := w.SyncExisting()
				logger.Info("synced existing files", zap.Int("files", n))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", strings.Join(w.Directories(), ", "))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip ingesting files already present at startup")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kessan version %s\n", version)
		},
	}
}
