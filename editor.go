package blockedit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// BlockOp upserts or removes one block. A nil Block removes it.
type BlockOp struct {
	Name   string
	Block  *Block
	Anchor string
}

// ScalarOp ensures Entry is declared under the root-level key Root.
type ScalarOp struct {
	Root  string
	Entry string
}

// Plan is a batch of edits applied to a single file with one atomic write.
type Plan struct {
	Blocks  []BlockOp
	Scalars []ScalarOp
}

// Editor runs plans against files on disk. It holds no per-file state and
// performs no locking: callers must not run two edits on the same path at
// once.
type Editor struct {
	root   string
	indent int
	dryRun bool
	verify bool
	logger *zap.Logger
}

// Option configures an Editor.
type Option func(*Editor)

// WithRoot sets the root key whose children are blocks (default "services").
func WithRoot(key string) Option { return func(e *Editor) { e.root = key } }

// WithIndent fixes the block header indentation instead of detecting it.
func WithIndent(n int) Option { return func(e *Editor) { e.indent = n } }

// WithDryRun computes results without writing files.
func WithDryRun(dryRun bool) Option { return func(e *Editor) { e.dryRun = dryRun } }

// WithVerify toggles the yaml.v3 check of the result (on by default).
func WithVerify(verify bool) Option { return func(e *Editor) { e.verify = verify } }

// WithLogger sets the logger used for stage tracing.
func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Editor.
func New(opts ...Option) *Editor {
	e := &Editor{root: DefaultRoot, verify: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpsertBlock replaces (or adds) the block called name in the file at path.
// A nil block removes it instead and anchorKey is ignored.
func (e *Editor) UpsertBlock(ctx context.Context, path, name string, block *Block, anchorKey string) (*Result, error) {
	return e.Apply(ctx, path, Plan{Blocks: []BlockOp{{Name: name, Block: block, Anchor: anchorKey}}})
}

// RemoveBlock removes the block called name, if present.
func (e *Editor) RemoveBlock(ctx context.Context, path, name string) (*Result, error) {
	return e.UpsertBlock(ctx, path, name, nil, "")
}

// EnsureScalar declares entry under rootKey in the file at path.
func (e *Editor) EnsureScalar(ctx context.Context, path, rootKey, entry string) (*Result, error) {
	return e.Apply(ctx, path, Plan{Scalars: []ScalarOp{{Root: rootKey, Entry: entry}}})
}

// Apply runs the pipeline load → locate → remove → insert → ensure-scalar →
// verify → persist. Every transformation happens on an in-memory copy; the
// file is touched only by the final persist step, and only when the content
// actually changed. On error the file is left byte-identical.
func (e *Editor) Apply(ctx context.Context, path string, plan Plan) (*Result, error) {
	r := &run{
		editor: e,
		path:   path,
		plan:   plan,
		found:  map[string]Range{},
		result: &Result{Path: path},
		log:    e.logger.With(zap.String("path", path)),
	}
	if err := r.exec(ctx); err != nil {
		r.log.Debug("upsert failed", zap.Stringer("stage", r.stage), zap.Error(err))
		r.stage = StageFail
		return nil, err
	}
	return r.result, nil
}

type run struct {
	editor *Editor
	path   string
	plan   Plan
	stage  Stage
	log    *zap.Logger

	mode   fs.FileMode
	doc    *Document
	found  map[string]Range
	result *Result
}

func (r *run) exec(ctx context.Context) error {
	steps := []struct {
		stage Stage
		fn    func() error
	}{
		{StageLoad, r.load},
		{StageLocate, r.locate},
		{StageRemove, r.remove},
		{StageInsert, r.insert},
		{StageEnsureScalar, r.ensureScalars},
		{StageVerify, r.verifyResult},
		{StagePersist, r.persist},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return &Error{Stage: s.stage, Err: err}
		}
		r.stage = s.stage
		r.log.Debug("stage", zap.Stringer("stage", s.stage))
		if err := s.fn(); err != nil {
			return stageErr(s.stage, "", err)
		}
	}
	r.stage = StageDone
	return nil
}

func (r *run) note(subject, format string, args ...interface{}) {
	a := Action{Stage: r.stage, Subject: subject, Detail: fmt.Sprintf(format, args...)}
	r.result.Actions = append(r.result.Actions, a)
	r.log.Debug("action", zap.Stringer("stage", r.stage), zap.String("subject", subject), zap.String("detail", a.Detail))
}

func (r *run) load() error {
	subject := fmt.Sprintf("file %q", r.path)
	for _, op := range r.plan.Blocks {
		if err := validName(op.Name); err != nil {
			return &Error{Stage: StageLoad, Subject: blockSubject(op.Name), Err: err}
		}
		if op.Block != nil && op.Block.name != op.Name {
			return &Error{Stage: StageLoad, Subject: blockSubject(op.Name),
				Err: fmt.Errorf("%w: definition declares %q", ErrInvalidBlock, op.Block.name)}
		}
	}

	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Stage: StageLoad, Subject: subject, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	if err != nil {
		return &Error{Stage: StageLoad, Subject: subject, Err: fmt.Errorf("%w: %v", ErrIOFailure, err)}
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return &Error{Stage: StageLoad, Subject: subject, Err: fmt.Errorf("%w: %v", ErrIOFailure, err)}
	}
	r.mode = info.Mode().Perm()
	r.result.Before = data

	doc, err := Parse(data, WithRootKey(r.editor.root), WithBlockIndent(r.editor.indent))
	if err != nil {
		return &Error{Stage: StageLoad, Subject: subject, Err: fmt.Errorf("%w: %v", ErrInvalidDocument, err)}
	}
	r.doc = doc
	return nil
}

func (r *run) locate() error {
	for _, op := range r.plan.Blocks {
		rng, found, err := r.doc.Locate(op.Name)
		if err != nil {
			return &Error{Stage: StageLocate, Subject: blockSubject(op.Name), Err: err}
		}
		if found {
			r.found[op.Name] = rng
			r.note(blockSubject(op.Name), "found on lines %d-%d", rng.Start+1, rng.End)
		}
	}
	return nil
}

func (r *run) remove() error {
	for _, op := range r.plan.Blocks {
		if _, ok := r.found[op.Name]; !ok {
			continue
		}
		// Ranges shift after each removal, so locate again on the working copy.
		removed, err := r.doc.Remove(op.Name)
		if err != nil {
			return &Error{Stage: StageRemove, Subject: blockSubject(op.Name), Err: err}
		}
		if removed {
			r.note(blockSubject(op.Name), "removed")
		}
	}
	return nil
}

func (r *run) insert() error {
	for _, op := range r.plan.Blocks {
		if op.Block == nil {
			continue
		}
		anchor := ResolveAnchor(r.doc.Root(), op.Anchor)
		if err := r.doc.Insert(op.Block, anchor); err != nil {
			return &Error{Stage: StageInsert, Subject: blockSubject(op.Name), Err: err}
		}
		r.note(blockSubject(op.Name), "inserted %s", anchor)
	}
	return nil
}

func (r *run) ensureScalars() error {
	for _, op := range r.plan.Scalars {
		added, err := r.doc.EnsureScalar(op.Root, op.Entry)
		if err != nil {
			return &Error{Stage: StageEnsureScalar, Subject: keySubject(op.Root), Err: err}
		}
		if added {
			r.note(keySubject(op.Root), "added %q", op.Entry)
		}
	}
	return nil
}

func (r *run) verifyResult() error {
	r.result.After = r.doc.Bytes()
	r.result.Changed = !bytes.Equal(r.result.Before, r.result.After)
	if !r.editor.verify || !r.result.Changed {
		return nil
	}
	var present, absent []string
	for _, op := range r.plan.Blocks {
		if op.Block != nil {
			present = append(present, op.Name)
		} else {
			absent = append(absent, op.Name)
		}
	}
	if err := verifyOutput(r.result.Before, r.result.After, r.doc.Root(), present, absent); err != nil {
		return &Error{Stage: StageVerify, Subject: fmt.Sprintf("file %q", r.path), Err: err}
	}
	return nil
}

func (r *run) persist() error {
	if !r.result.Changed {
		r.note(fmt.Sprintf("file %q", r.path), "unchanged")
		return nil
	}
	if r.editor.dryRun {
		r.note(fmt.Sprintf("file %q", r.path), "dry run, not written")
		return nil
	}
	if err := writeAtomic(r.path, r.result.After, r.mode); err != nil {
		return &Error{Stage: StagePersist, Subject: fmt.Sprintf("file %q", r.path), Err: fmt.Errorf("%w: %v", ErrIOFailure, err)}
	}
	r.result.Written = true
	r.note(fmt.Sprintf("file %q", r.path), "written")
	return nil
}
