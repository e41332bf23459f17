package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hornetgit/blockedit"
	"github.com/hornetgit/blockedit/internal/config"
	"github.com/hornetgit/blockedit/internal/render"
	"github.com/hornetgit/blockedit/internal/stack"
	"github.com/hornetgit/blockedit/internal/watch"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the devstack config file",
		Value:   "devstack.yaml",
		Sources: cli.EnvVars("DEVSTACK_CONFIG"),
	}
}

// loadStack loads the config named by --config and builds the logger for it.
func loadStack(cmd *cli.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cmd, &cfg.App)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func renderCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render a block template and check it is a valid block",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Service name"},
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Template file"},
			&cli.StringFlag{Name: "env-file", Usage: "Variables file (skipped when missing)", Value: ".env"},
			&cli.StringSliceFlag{Name: "set", Usage: "Set a variable, KEY=VALUE"},
			&cli.StringFlag{Name: "left-delim", Usage: "Left action delimiter", Value: "{{"},
			&cli.StringFlag{Name: "right-delim", Usage: "Right action delimiter", Value: "}}"},
			&cli.BoolFlag{Name: "list-vars", Usage: "Print the variables available to templates and exit"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			overrides, err := render.ParseAssignments(cmd.StringSlice("set"))
			if err != nil {
				return err
			}
			vars, err := render.LoadVars(cmd.String("env-file"), overrides)
			if err != nil {
				return err
			}
			r := render.New(vars, render.WithDelims(cmd.String("left-delim"), cmd.String("right-delim")))

			if cmd.Bool("list-vars") {
				for _, v := range append(r.Vars(), render.ServiceNameVar) {
					fmt.Fprintln(out, v)
				}
				return nil
			}

			name := cmd.String("name")
			if name == "" || cmd.String("template") == "" {
				return fmt.Errorf("render needs --name and --template")
			}
			text, err := r.RenderFile(name, cmd.String("template"))
			if err != nil {
				return err
			}
			block, err := blockedit.ParseBlock(name, []byte(text))
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, block.String())
			return err
		},
	}
}

func syncCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Bring the compose file in line with the config",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the diff instead of writing the file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadStack(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dryRun := cmd.Bool("dry-run")
			res, err := stack.NewSyncer(cfg, logger, blockedit.WithDryRun(dryRun)).Sync(ctx)
			if err != nil {
				return err
			}
			return report(out, res, dryRun)
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Sync, then sync again whenever the config, env file or a template changes",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{Name: "debounce", Usage: "Quiet period before syncing", Value: watch.DefaultDebounce},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadStack(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runWatch(ctx, cmd.String("config"), cfg, cmd.Duration("debounce"), logger)
		},
	}
}

func watchedFiles(configPath string, cfg *config.Config) []string {
	files := []string{configPath, cfg.EnvFile}
	for _, svc := range cfg.Services {
		files = append(files, svc.Template)
	}
	return files
}

func runWatch(ctx context.Context, configPath string, cfg *config.Config, debounce time.Duration, logger *zap.Logger) error {
	if _, err := stack.NewSyncer(cfg, logger).Sync(ctx); err != nil {
		logger.Error("initial sync failed", zap.Error(err))
	}

	w, err := watch.New(watchedFiles(configPath, cfg), debounce, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		// The config is read again on every change; template and env file
		// paths added later are picked up on the next restart.
		return w.Run(gCtx, func(ctx context.Context) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			_, err = stack.NewSyncer(cfg, logger).Sync(ctx)
			return err
		})
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	return g.Wait()
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the directories listed in the config",
		Flags: []cli.Flag{configFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadStack(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return stack.Scaffold(cfg.Directories, logger)
		},
	}
}
