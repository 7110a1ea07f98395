package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/notice-watch/internal/app"
	"github.com/pfrederiksen/notice-watch/internal/config"
	"github.com/pfrederiksen/notice-watch/internal/logger"
	"github.com/pfrederiksen/notice-watch/internal/metrics"
	"github.com/pfrederiksen/notice-watch/internal/notice"
	"github.com/pfrederiksen/notice-watch/internal/notifier"
	"github.com/pfrederiksen/notice-watch/internal/scraper"
	"github.com/pfrederiksen/notice-watch/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

type options struct {
	envFile     string
	statePath   string
	format      string
	verbose     bool
	dryRun      bool
	pages       int
	metricsFile string
	limit       int
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "notice-watch",
		Short: "Email a digest of new notices on the graduate school bulletin board",
		Long: `A CLI tool that checks the bulletin board for notices posted since the last run.
The first run only records the current notices. Later runs email one digest
listing every new notice and remember what was sent.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file (default: .env if present)")
	pf.StringVar(&opts.statePath, "state-path", "", "State file path (or env: STATE_PATH)")
	pf.StringVar(&opts.format, "format", "text", "Output format: text or json")
	pf.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the digest instead of sending it and leave the state unchanged")
	cmd.Flags().IntVar(&opts.pages, "pages", config.DefaultPages, "Number of list pages to check (or env: PAGES)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file (or env: METRICS_FILE)")

	cmd.AddCommand(newStateCmd(opts))

	return cmd
}

func newStateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the persisted seen-notice state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runState(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "Number of most recent seen ids to list")
	return cmd
}

// loadConfig builds the configuration, letting explicitly set flags win over
// the environment, and installs the logger.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("state-path") {
		overrides["state_path"] = opts.statePath
	}
	if flags.Changed("pages") {
		overrides["pages"] = opts.pages
	}
	if flags.Changed("metrics-file") {
		overrides["metrics_file"] = opts.metricsFile
	}

	cfg, err := config.Load(config.Options{EnvFile: opts.envFile, Overrides: overrides})
	if err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if opts.verbose || cfg.SMTP.Debug {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.New(level, cmd.ErrOrStderr()))
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning, logger.Fields{"smtp_host": cfg.SMTP.Host})
	}
	return cfg, nil
}

// runCheck is the main command logic
func runCheck(cmd *cobra.Command, opts *options) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer logger.Default().Sync()

	store, err := storage.New(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	m := metrics.New()
	sc := scraper.New(notice.NewBoard(cfg.NoticeURL),
		scraper.WithTimeout(cfg.HTTPTimeout()),
		scraper.WithPageObserver(func(_, _ int) { m.PagesFetched.Inc() }),
	)

	runOpts := []app.Option{app.WithMetrics(m)}
	var n notifier.Notifier
	if opts.dryRun {
		// Keep the digest off stdout when it carries JSON.
		digestOut := cmd.OutOrStdout()
		if format == FormatJSON {
			digestOut = cmd.ErrOrStderr()
		}
		n = notifier.NewDryRunNotifier(digestOut, cfg.Location, cfg.SubjectPrefix)
		runOpts = append(runOpts, app.WithDryRun())
	} else {
		n = notifier.NewEmailNotifier(cfg.Email(), notifier.WithAttemptObserver(func(_ notifier.Profile, err error) {
			m.ObserveAttempt(attemptResult(err))
		}))
	}

	logger.Debug("Starting check", logger.Fields{
		"url":        cfg.NoticeURL,
		"pages":      cfg.Pages,
		"state_path": store.Path(),
		"dry_run":    opts.dryRun,
	})

	runner := app.NewRunner(sc, store, n, cfg.Pages, cfg.MaxSeenIDs, runOpts...)
	result, runErr := runner.Run(cmd.Context())

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics", logger.Fields{"path": cfg.MetricsFile, "error": err.Error()})
		}
	}

	if runErr != nil {
		return runErr
	}

	if err := WriteOutput(cmd.OutOrStdout(), result, format, opts.verbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func attemptResult(err error) string {
	var authErr *notifier.AuthError
	switch {
	case err == nil:
		return metrics.AttemptSent
	case errors.As(err, &authErr):
		return metrics.AttemptAuth
	default:
		return metrics.AttemptTransport
	}
}

func runState(cmd *cobra.Command, opts *options) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	state, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	return WriteState(cmd.OutOrStdout(), summarize(store.Path(), state, opts.limit), format)
}

// Run executes the CLI with args and returns the process exit code. Errors
// are printed to stderr as "ERROR: <message>".
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
