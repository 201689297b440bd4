package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autobuilder/internal/changes"
	"github.com/lucasnoah/autobuilder/internal/config"
	"github.com/lucasnoah/autobuilder/internal/db"
	"github.com/lucasnoah/autobuilder/internal/display"
	"github.com/lucasnoah/autobuilder/internal/input"
	"github.com/lucasnoah/autobuilder/internal/logger"
	"github.com/lucasnoah/autobuilder/internal/orchestrator"
	"github.com/lucasnoah/autobuilder/internal/runner"
	"github.com/lucasnoah/autobuilder/internal/watcher"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath string
	dbPath     string
	logPath    string
	debug      bool
	noHistory  bool
)

var rootCmd = &cobra.Command{
	Use:   "autobuilder <root>",
	Short: "Rebuild and retest a C/C++ tree on every save",
	Long: `autobuilder watches a source tree and runs the configured stage scripts
(clean, build, test, coverage, clang-format, clang-tidy) whenever matching
files change. Stage output is streamed to the terminal; type a command and
press ENTER to change options while it runs.

Configuration is read from ./autobuilder.yaml and run history is kept in
~/.autobuilder/autobuilder.db.`,
	Args:          rootArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWatch,
}

// rootArgs requires the source root and shows usage when it is missing.
func rootArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		_ = cmd.Usage()
		return err
	}
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", config.DefaultFileName, "path to the configuration file")
	pf.StringVar(&dbPath, "db", "", "path to the history database (default ~/.autobuilder/autobuilder.db)")
	pf.StringVar(&logPath, "log-file", "", "path to the log file (default ~/.autobuilder/logs/autobuilder.log)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record runs in the history database")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
}

func initLogging() error {
	path := logPath
	if path == "" {
		p, err := logger.DefaultLogPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := logger.Init(path); err != nil {
		return err
	}
	logger.SetDebug(debug)
	return nil
}

func openHistory() (*db.DB, error) {
	path := dbPath
	if path == "" {
		p, err := db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// loadStartupConfig opens the configuration and reports the cases that need
// the operator's attention before anything runs.
func loadStartupConfig(out *display.Printer) (*config.Config, error) {
	cfg, warning, err := config.Open(configPath)
	switch {
	case errors.Is(err, config.ErrCreated):
		out.Info("No configuration found. Defaults were written to %s; review them and start autobuilder again.", configPath)
		return nil, err
	case errors.Is(err, config.ErrIncompatible):
		out.Warning(fmt.Sprintf("%v\nDefaults were written to %s; carry your settings over and start autobuilder again.", err, configPath))
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if warning != "" {
		out.Warning(warning)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			out.Error("%s", e)
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.WithComponent("cli")

	out := display.New(cmd.OutOrStdout())
	cfg, err := loadStartupConfig(out)
	if err != nil {
		return err
	}

	agg := changes.NewAggregator()
	w, err := watcher.New(args[0], cfg.Options.Patterns, agg)
	if err != nil {
		return err
	}

	deps := orchestrator.Deps{
		Root:    w.Root(),
		Config:  config.NewManager(configPath, cfg),
		Changes: agg,
		Runner:  runner.New(cmd.OutOrStdout()),
		Printer: out,
		Watch:   w,
	}

	if !noHistory {
		d, err := openHistory()
		if err != nil {
			w.Close()
			return err
		}
		defer d.Close()
		if deps.Tests, err = d.ListTests(w.Root()); err != nil {
			log.Warn().Err(err).Msg("load known tests")
		}
		deps.History = d
	}

	if err := w.Start(); err != nil {
		w.Close()
		return err
	}

	deps.Commands = input.NewChannel(cmd.InOrStdin())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("root", w.Root()).Str("config", configPath).Bool("history", !noHistory).Msg("starting")
	return orchestrator.New(deps).Run(ctx)
}
