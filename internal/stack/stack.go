// Package stack keeps a compose file in line with the devstack config:
// enabled services get their rendered block, disabled ones are removed.
package stack

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hornetgit/blockedit"
	"github.com/hornetgit/blockedit/internal/config"
	"github.com/hornetgit/blockedit/internal/render"
)

// Syncer applies a config to its compose file.
type Syncer struct {
	cfg    *config.Config
	editor *blockedit.Editor
	logger *zap.Logger
}

// NewSyncer returns a Syncer for cfg. Extra editor options (dry run, for
// instance) are applied after the compose layout from cfg.
func NewSyncer(cfg *config.Config, logger *zap.Logger, opts ...blockedit.Option) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	all := append(cfg.EditorOptions(), blockedit.WithLogger(logger.Named("blockedit")))
	all = append(all, opts...)
	return &Syncer{cfg: cfg, editor: blockedit.New(all...), logger: logger}
}

// Plan renders every enabled service and returns the edits that bring the
// compose file in line with the config. Volumes of disabled services are
// left declared.
func (s *Syncer) Plan() (blockedit.Plan, error) {
	var plan blockedit.Plan

	vars, err := render.LoadVars(s.cfg.EnvFile, s.cfg.Vars)
	if err != nil {
		return plan, err
	}
	r := render.New(vars)

	for _, svc := range s.cfg.Services {
		if !svc.Enabled {
			plan.Blocks = append(plan.Blocks, blockedit.BlockOp{Name: svc.Name})
			continue
		}
		text, err := r.RenderFile(svc.Name, svc.Template)
		if err != nil {
			return plan, err
		}
		block, err := blockedit.ParseBlock(svc.Name, []byte(text))
		if err != nil {
			return plan, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		plan.Blocks = append(plan.Blocks, blockedit.BlockOp{Name: svc.Name, Block: block, Anchor: svc.Anchor})
		for _, v := range svc.Volumes {
			plan.Scalars = append(plan.Scalars, blockedit.ScalarOp{Root: s.cfg.Compose.VolumesKey, Entry: v + ":"})
		}
	}
	return plan, nil
}

// Sync plans and applies the config to the compose file in one write.
func (s *Syncer) Sync(ctx context.Context) (*blockedit.Result, error) {
	plan, err := s.Plan()
	if err != nil {
		return nil, err
	}
	res, err := s.editor.Apply(ctx, s.cfg.Compose.Path, plan)
	if err != nil {
		return nil, err
	}
	s.logger.Info("stack synced",
		zap.String("compose", res.Path),
		zap.Bool("changed", res.Changed),
		zap.Bool("written", res.Written),
		zap.Int("actions", len(res.Actions)))
	return res, nil
}

// Scaffold creates the configured directories (bind mount targets and the
// like). Existing directories are left alone.
func Scaffold(dirs []string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scaffold %s: %w", dir, err)
		}
		logger.Info("created directory", zap.String("dir", dir))
	}
	return nil
}
