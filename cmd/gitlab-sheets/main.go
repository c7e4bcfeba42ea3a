package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/app"
	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/enrich"
	"github.com/cam3ron2/gitlab-sheets/internal/health"
	"github.com/cam3ron2/gitlab-sheets/internal/logging"
	"github.com/cam3ron2/gitlab-sheets/internal/metrics"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
	"github.com/cam3ron2/gitlab-sheets/internal/report"
	"github.com/cam3ron2/gitlab-sheets/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand(os.LookupEnv, os.Stdout).Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gitlab-sheets: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	envFile    string
	dryRun     bool

	lookup config.LookupFunc
	out    io.Writer
}

func newRootCommand(lookup config.LookupFunc, out io.Writer) *cobra.Command {
	opts := &options{lookup: lookup, out: out}

	root := &cobra.Command{
		Use:           "gitlab-sheets",
		Short:         "Sync GitLab issues and merge requests into Google Sheets",
		Long:          `Pulls issues and merge requests from GitLab projects and reconciles them into a Google spreadsheet, and maintains the spreadsheet's roll-up and housekeeping sheets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional YAML tuning file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "read from GitLab and Sheets but log writes instead of sending them")

	root.AddCommand(
		newRunCommand(opts, config.ScopeIssues, "Sync GitLab issues into the issues sheet", runIssues),
		newRunCommand(opts, config.ScopeMergeRequests, "Sync GitLab merge requests into the merge requests sheet", runMergeRequests),
		newRunCommand(opts, config.ScopeTeamCDS, "Roll up the selected milestones into the Team CDS sheet", runTeamCDS),
		newRunCommand(opts, config.ScopeNumberSteps, "Number the step column of a sheet", runNumberSteps),
		newRunCommand(opts, config.ScopeTableOfContents, "Rebuild the table of contents sheet", runTableOfContents),
		newRunCommand(opts, config.ScopeDropdowns, "Populate a dropdown from a list range", runDropdowns),
		newRunCommand(opts, config.ScopeMergeRuns, "Merge vertical runs of identical cells", runMergeRuns),
	)
	return root
}

// runtime is everything one command body needs.
type runtime struct {
	command  string
	cfg      *config.Config
	logger   *zap.Logger
	backends *app.Backends
	recorder *metrics.Recorder
	location *time.Location
	out      io.Writer
}

type runFunc func(ctx context.Context, rt *runtime) error

func newRunCommand(opts *options, scope config.Scope, short string, body runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   string(scope),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.execute(cmd, scope, body)
		},
	}
}

func needsGitLab(scope config.Scope) bool {
	return scope == config.ScopeIssues || scope == config.ScopeMergeRequests
}

func (o *options) loadConfig(cmd *cobra.Command, scope config.Scope) (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile, !cmd.Flags().Changed("env-file")); err != nil {
		return nil, err
	}

	var reader io.Reader
	if path := strings.TrimSpace(o.configPath); path != "" {
		configFile, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer func() {
			_ = configFile.Close()
		}()
		reader = configFile
	}

	cfg, err := config.Load(reader, o.lookup)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(scope); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (o *options) execute(cmd *cobra.Command, scope config.Scope, body runFunc) error {
	cfg, err := o.loadConfig(cmd, scope)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, closeLogger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLogger()
	}()
	logger = logger.With(zap.String("command", string(scope)), zap.Bool("dry_run", o.dryRun))

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "gitlab-sheets",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	recorder := metrics.NewRecorder()
	tracker := health.NewTracker(string(scope), needsGitLab(scope))
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverErr := app.Serve(serverCtx, cfg.Metrics.ListenAddr, app.NewHTTPHandler(recorder.Handler(), health.NewHandler(tracker)), logger)

	backends, err := app.NewBackends(ctx, cfg, app.BackendOptions{
		NeedsGitLab: needsGitLab(scope),
		DryRun:      o.dryRun,
		Logger:      logger,
	})
	if err != nil {
		tracker.SetPhase(health.PhaseFailed)
		return err
	}
	defer func() {
		_ = backends.Close()
	}()
	tracker.SetBackends(backends.GitLab != nil, backends.Sheets != nil, backends.CacheHealthy)

	location, err := time.LoadLocation(cfg.Sheets.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	rt := &runtime{
		command:  string(scope),
		cfg:      cfg,
		logger:   logger,
		backends: backends,
		recorder: recorder,
		location: location,
		out:      o.out,
	}

	report.Header(o.out, string(scope), o.dryRun)
	tracker.SetPhase(health.PhaseRunning)
	started := time.Now()
	runErr := body(ctx, rt)
	finished := time.Now()
	recorder.ObserveRun(string(scope), started, finished, runErr)
	if runErr != nil {
		tracker.SetPhase(health.PhaseFailed)
		logger.Error("run failed", zap.Error(runErr))
	} else {
		tracker.SetPhase(health.PhaseSucceeded)
		logger.Info("run complete", zap.Duration("elapsed", finished.Sub(started)))
	}

	pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pushCancel()
	if err := recorder.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
	}

	select {
	case serveErr, ok := <-serverErr:
		if ok && serveErr != nil {
			logger.Warn("http server failed", zap.Error(serveErr))
		}
	default:
	}

	report.Done(o.out, runErr, finished.Sub(started))
	return runErr
}

func (rt *runtime) enrichRunner() *enrich.Runner {
	return enrich.NewRunner(enrich.Config{
		Concurrency: rt.cfg.Enrich.Concurrency,
		Timeout:     rt.cfg.Enrich.Timeout,
		Cache:       rt.backends.Cache,
		Logger:      rt.logger,
		Observe: func(_, outcome string) {
			rt.recorder.ObserveEnrichment(rt.command, outcome)
		},
	})
}

func (rt *runtime) writerConfig() reconcile.WriterConfig {
	return reconcile.WriterConfig{
		InsertStrategy:    rt.cfg.Sheets.InsertStrategy,
		MaxRangesPerBatch: rt.cfg.Sheets.MaxRangesPerBatch,
		Logger:            rt.logger,
	}
}
