// Package cli wires the explorer's commands: listing the catalog, running
// example scripts and test suites, watching for hot reloads, and managing
// snapshot history.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/multiplex55/koto-learning/config"
	"github.com/multiplex55/koto-learning/gojaengine"
	"github.com/multiplex55/koto-learning/library"
	"github.com/multiplex55/koto-learning/runtimelog"
)

const AppName = "koto-explorer"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Explore, run, and test a catalog of script examples",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "Path to a YAML config file",
					Value:   ".koto-explorer.yaml",
				},
				&cli.StringFlag{
					Name:    "examples",
					Usage:   "Examples root directory",
					EnvVars: []string{config.EnvExamplesDir},
				},
				&cli.StringFlag{
					Name:    "runtime-log",
					Usage:   "Append-only runtime log file",
					EnvVars: []string{config.EnvRuntimeLog},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List the loaded example catalog",
		Action: app.list,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "exec",
		Usage:     "Execute an example's script and print its output",
		ArgsUsage: "EXAMPLE",
		Action:    app.exec,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run an example's test suites and print the report",
		ArgsUsage: "EXAMPLE [SUITE]",
		Action:    app.run,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "watch",
		Usage:  "Watch the examples directory and report catalog reloads",
		Action: app.watch,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "history",
		Usage:     "List captured snapshots for a file",
		ArgsUsage: "PATH",
		Action:    app.history,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "revert",
		Usage:     "Restore a captured snapshot of a file",
		ArgsUsage: "PATH [SNAPSHOT-ID]",
		Action:    app.revert,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// loadConfig resolves settings from the config file, environment, and
// flags, in increasing precedence.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return cfg, err
	}
	cfg = config.FromEnv(cfg)
	if dir := ctx.String("examples"); dir != "" {
		cfg.ExamplesDir = dir
	}
	if path := ctx.String("runtime-log"); path != "" {
		cfg.RuntimeLog = path
	}
	return cfg, nil
}

// openLibrary builds the full stack: config, runtime log sink, engine, and
// the library itself. The caller closes both returned values.
func (a *App) openLibrary(ctx *cli.Context, watch bool) (*library.Library, *runtimelog.Sink, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	sink, err := runtimelog.Open(a.logger, cfg.RuntimeLog)
	if err != nil {
		return nil, nil, err
	}

	eng := gojaengine.New(a.logger, sink)

	lib, err := library.Open(a.logger, cfg, eng, watch)
	if err != nil {
		_ = sink.Close()
		return nil, nil, err
	}
	if loadErr := lib.LoadError(); loadErr != nil {
		a.logger.Warn().Err(loadErr).Msg("Catalog is empty")
	}
	for _, warn := range lib.Warnings() {
		a.logger.Warn().Str("example", warn.ID).Str("reason", warn.Reason).Msg("Example skipped")
	}

	return lib, sink, nil
}
