// Command devstack toggles service blocks in a docker compose file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hornetgit/blockedit/internal/config"
	"github.com/hornetgit/blockedit/internal/logging"
)

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "devstack",
		Usage: "Add, replace and remove service blocks in a compose file without reformatting it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("DEVSTACK_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "console or json",
				Value:   config.LogFormatConsole,
				Sources: cli.EnvVars("DEVSTACK_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			upsertCommand(out),
			removeCommand(out),
			ensureScalarCommand(out),
			renderCommand(out),
			syncCommand(out),
			watchCommand(),
			initCommand(),
		},
	}
}

// newLogger builds the logger from the global flags. Settings from the
// config file, when given, apply to flags that were not set explicitly.
func newLogger(cmd *cli.Command, app *config.AppConfig) (*zap.Logger, error) {
	level, err := logging.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return nil, err
	}
	format := cmd.String("log-format")
	if app != nil {
		if !cmd.IsSet("log-level") {
			level = app.LogLevel
		}
		if !cmd.IsSet("log-format") {
			format = app.LogFormat
		}
	}
	return logging.New(level, format)
}

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		logger, lerr := logging.New(zapcore.ErrorLevel, config.LogFormatConsole)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "devstack: %v\n", err)
			os.Exit(1)
		}
		logger.Error("application error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
