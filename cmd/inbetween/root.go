package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/maauso/gp-inbetween/internal/config"
)

// app holds state shared by all commands.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string

	stdout io.Writer
	stderr io.Writer

	// lookuper replaces the process environment in tests.
	lookuper envconfig.Lookuper
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "inbetween",
		Short: "Generate inbetween frames between two keyframes",
		Long: `inbetween sends two hand-drawn keyframes to a remote interpolation model,
scores the returned frames for quality and records review feedback used to
calibrate the auto-accept threshold.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newGenerateCmd(a),
		newReviewCmd(a, "accept"),
		newReviewCmd(a, "reject"),
		newStatsCmd(a),
		newInitConfigCmd(a),
		newServeCmd(a),
	)
	return root
}

// load resolves the config for cmd and builds the logger. Overrides come
// from flags the user actually set.
func (a *app) load(ctx context.Context, cmd *cobra.Command, local bool, overrides ...config.Override) (*config.RunConfig, *slog.Logger, error) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides = append(overrides, func(c *config.RunConfig) { c.Log.Level = a.logLevel })
	}
	if flags.Changed("log-format") {
		overrides = append(overrides, func(c *config.RunConfig) { c.Log.Format = a.logFormat })
	}

	opts := []config.LoadOption{
		config.WithFile(a.cfgFile),
		config.WithOverrides(overrides...),
	}
	if a.lookuper != nil {
		opts = append(opts, config.WithLookuper(a.lookuper))
	}
	if local {
		opts = append(opts, config.LocalOnly())
	}

	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger(a.stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
