package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hornetgit/blockedit"
)

func editFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Path to the compose file",
			Value:   "compose.yaml",
			Sources: cli.EnvVars("DEVSTACK_COMPOSE_FILE"),
		},
		&cli.StringFlag{
			Name:  "root",
			Usage: "Root key whose children are service blocks",
			Value: blockedit.DefaultRoot,
		},
		&cli.IntFlag{
			Name:  "indent",
			Usage: "Indentation of block headers (0 detects it from the file)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Print the diff instead of writing the file",
		},
		&cli.BoolFlag{
			Name:  "no-verify",
			Usage: "Skip parsing the result as YAML before writing",
		},
	}
}

func newEditor(cmd *cli.Command, logger *zap.Logger) *blockedit.Editor {
	return blockedit.New(
		blockedit.WithRoot(cmd.String("root")),
		blockedit.WithIndent(int(cmd.Int("indent"))),
		blockedit.WithDryRun(cmd.Bool("dry-run")),
		blockedit.WithVerify(!cmd.Bool("no-verify")),
		blockedit.WithLogger(logger),
	)
}

// report prints what an edit did, and the diff on a dry run.
func report(out io.Writer, res *blockedit.Result, dryRun bool) error {
	for _, a := range res.Actions {
		fmt.Fprintln(out, a)
	}
	if !dryRun || !res.Changed {
		return nil
	}
	diff, err := res.Diff()
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, diff)
	return err
}

// runEdit wires the logger and editor for one edit command.
func runEdit(out io.Writer, fn func(ctx context.Context, ed *blockedit.Editor, path string) (*blockedit.Result, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		logger, err := newLogger(cmd, nil)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		res, err := fn(ctx, newEditor(cmd, logger), cmd.String("file"))
		if err != nil {
			return err
		}
		logger.Info("done", zap.String("file", res.Path), zap.Bool("changed", res.Changed), zap.Bool("written", res.Written))
		return report(out, res, cmd.Bool("dry-run"))
	}
}

func upsertCommand(out io.Writer) *cli.Command {
	var name, blockPath string
	return &cli.Command{
		Name:  "upsert",
		Usage: "Replace or add a service block",
		Flags: append(editFlags(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Service name", Required: true, Destination: &name},
			&cli.StringFlag{Name: "block", Aliases: []string{"b"}, Usage: `Block definition file ("-" for stdin)`, Required: true, Destination: &blockPath},
			&cli.StringFlag{Name: "anchor", Aliases: []string{"a"}, Usage: "Root key to insert before; the root key itself inserts first"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			anchor := cmd.String("anchor")
			if anchor == "" {
				anchor = cmd.String("root")
			}
			block, err := readBlock(name, blockPath)
			if err != nil {
				return err
			}
			upsert := func(ctx context.Context, ed *blockedit.Editor, path string) (*blockedit.Result, error) {
				return ed.UpsertBlock(ctx, path, name, block, anchor)
			}
			return runEdit(out, upsert)(ctx, cmd)
		},
	}
}

func readBlock(name, path string) (*blockedit.Block, error) {
	if path != "-" {
		return blockedit.ReadBlockFile(name, path)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}
	return blockedit.ParseBlock(name, data)
}

func removeCommand(out io.Writer) *cli.Command {
	var name string
	return &cli.Command{
		Name:  "remove",
		Usage: "Remove a service block",
		Flags: append(editFlags(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Service name", Required: true, Destination: &name},
		),
		Action: runEdit(out, func(ctx context.Context, ed *blockedit.Editor, path string) (*blockedit.Result, error) {
			return ed.RemoveBlock(ctx, path, name)
		}),
	}
}

func ensureScalarCommand(out io.Writer) *cli.Command {
	var rootKey, entry string
	return &cli.Command{
		Name:  "ensure-scalar",
		Usage: "Declare an entry (such as a named volume) under a root key once",
		Flags: append(editFlags(),
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Root-level key to add the entry under", Value: "volumes", Destination: &rootKey},
			&cli.StringFlag{Name: "entry", Aliases: []string{"e"}, Usage: `Entry line, e.g. "pgadmin_data:"`, Required: true, Destination: &entry},
		),
		Action: runEdit(out, func(ctx context.Context, ed *blockedit.Editor, path string) (*blockedit.Result, error) {
			return ed.EnsureScalar(ctx, path, rootKey, entry)
		}),
	}
}
