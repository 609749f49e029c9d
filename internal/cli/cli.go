// Package cli provides the command-line interface for padsync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/config"
	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

type configKey struct{}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:    "padsync",
		Usage:   "Synchronize soundboard profiles between devices",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				Sources: cli.EnvVars("PADSYNC_CONFIG"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			configureColors(cmd, cfg)
			if err := configureLogging(cmd, cfg); err != nil {
				return ctx, err
			}
			return context.WithValue(ctx, configKey{}, cfg), nil
		},
		Commands: []*cli.Command{
			versionCommand(),
			configCommand(),
			profileCommand(),
			syncCommand(),
			statusCommand(),
			exportCommand(),
			importCommand(),
			backupCommand(),
			watchCommand(),
			pruneAudioCommand(),
			authCommand(),
		},
	}
	return app.Run(ctx, args)
}

// loadConfig reads the file named by --config, or the default config file.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configFrom returns the configuration loaded by the root command.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// configureColors sets up color output based on CLI flags and config.
func configureColors(cmd *cli.Command, cfg *config.Config) {
	ui.SetMode(cfg.Output.Color)
	if cmd.Bool("no-color") {
		ui.DisableColors()
	}
}

// configureLogging sets up the logger from config, with flags taking
// precedence over the configured level.
func configureLogging(cmd *cli.Command, cfg *config.Config) error {
	opts := logging.DefaultOptions()

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return err
	}
	opts.Level = level
	opts.JSON = cfg.Logging.JSON

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") && opts.Level > slog.LevelInfo {
		opts.Level = slog.LevelInfo
	}

	if cfg.Logging.File != "" {
		opts.File = &logging.FileOptions{
			Path:       cfg.LogFile(),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}
