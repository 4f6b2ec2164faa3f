package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fmskin/config"
	"fmskin/misc"
	"fmskin/skin"
	"fmskin/state"
)

// beforeCommand loads configuration and sets up logging and optional debug
// report once command line is parsed.
func beforeCommand(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}

	var (
		err        error
		env        = state.EnvFromContext(ctx)
		configFile = cmd.String("config")
	)

	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to load configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to create debug report: %w", err)
		}
		if len(configFile) > 0 {
			if data, err := config.Dump(env.Cfg); err == nil {
				env.Rpt.StoreData("config/"+filepath.Base(configFile), data)
			}
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to create logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Started",
		zap.Strings("args", os.Args),
		zap.String("ver", misc.GetVersion()),
		zap.String("runtime", runtime.Version()),
		zap.String("hash", misc.GetGitHash()))
	if env.Rpt != nil {
		env.Log.Info("Debug report requested", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Info("No configuration file, using defaults")
	}
	return ctx, nil
}

// afterCommand flushes logs and finalizes debug report. Nothing may be logged
// after it, problems go to stderr.
func afterCommand(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Finished", zap.Duration("elapsed", env.Uptime()), zap.Strings("args", cmd.Args().Slice()))
	}
	env.RestoreStdLog()

	if env.Rpt != nil {
		if er := env.Rpt.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to finalize debug report: %w", er))
		}
	}
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		panicLog := filepath.Join(filepath.Dir(env.Cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
		if fi, er := os.Stat(panicLog); er == nil && fi.Size() == 0 {
			if er := os.Remove(panicLog); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log '%s': %w", panicLog, er))
			}
		}
	}
	return
}

// set when error was already logged, main then only sets exit code
var errLogged bool

// commands return plain errors, log them before context is destroyed
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	if env := state.EnvFromContext(ctx); env.Log != nil {
		env.Log.Error("Finished with error", zap.Error(err))
		errLogged = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func commandNotFound(ctx context.Context, _ *cli.Command, name string) {
	if env := state.EnvFromContext(ctx); env.Log != nil {
		env.Log.Warn("Unknown command", zap.String("command", name))
	}
}

func main() {

	// patch workers check context between assets
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "applies stylesheet overrides to UI skin bundles",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          beforeCommand,
		After:           afterCommand,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: commandNotFound,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:         "patch",
				Usage:        "Applies override stylesheets to bundle(s)",
				OnUsageError: usageErrorHandler,
				Action:       skin.Run,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write patched bundles to `DIRECTORY` instead of replacing originals"},
					&cli.StringFlag{Name: "primary-vars", Usage: "stylesheet `ASSET` receiving new variables nobody targets (overrides configuration)"},
					&cli.StringFlag{Name: "primary-selectors", Usage: "stylesheet `ASSET` receiving new selectors nobody targets (overrides configuration)"},
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "report what would be changed without writing anything"},
					&cli.BoolFlag{Name: "backup", Aliases: []string{"b"}, Usage: "copy bundle to <bundle>.bak before replacing it"},
					&cli.BoolFlag{Name: "no-scan-cache", Usage: "always scan bundles, ignore scan cache"},
				},
				ArgsUsage: "OVERRIDES BUNDLE [BUNDLE...]",
				CustomHelpTemplate: fmt.Sprintf(`%s
OVERRIDES:
    directory with override stylesheets (.css, .uss) or path to a single file

	Custom properties (--name) override variables, other declarations
	override properties of selector rules. File named after stylesheet asset
	(case insensitive) applies to that asset only, optional mapping file
	(mapping.yaml) maps file names to lists of assets ("*" - every asset).
	Everything else applies to all assets.

BUNDLE:
    skin bundle to patch, replaced in place unless --out is given
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "scan",
				Usage:        "Lists stylesheet assets with variables and selectors they define",
				OnUsageError: usageErrorHandler,
				Action:       skin.Scan,
				ArgsUsage:    "BUNDLE [BUNDLE...]",
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       dumpConfiguration,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Active configuration is embedded defaults with values from --config file
applied on top. Use --default to see embedded defaults only.
`, cli.CommandHelpTemplate),
			},
		},
	}

	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		// log may not exist yet (bad arguments) or is already closed
		if !errLogged {
			fmt.Fprintf(os.Stderr, "%s: %v\n", misc.GetAppName(), err)
		}
		os.Exit(1)
	}
}

func dumpConfiguration(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	var (
		data []byte
		kind = "actual"
	)
	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	if len(fname) == 0 {
		env.Log.Debug("Writing configuration", zap.String("kind", kind), zap.String("file", "STDOUT"))
		_, err = os.Stdout.Write(data)
		return err
	}

	env.Log.Info("Writing configuration", zap.String("kind", kind), zap.String("file", fname))
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return fmt.Errorf("unable to write configuration to '%s': %w", fname, err)
	}
	return nil
}
