package blockedit

import (
	"bytes"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	gyaml "github.com/goccy/go-yaml"
	"github.com/pmezard/go-difflib/difflib"
)

// Action records one thing the pipeline did (or decided not to do).
type Action struct {
	Stage   Stage
	Subject string
	Detail  string
}

func (a Action) String() string {
	return fmt.Sprintf("%s %s: %s", a.Stage, a.Subject, a.Detail)
}

// Result describes a completed Apply.
type Result struct {
	Path    string
	Before  []byte
	After   []byte
	Changed bool
	Written bool
	Actions []Action
}

// Diff returns a unified diff between the original and the new document, or
// "" when nothing changed.
func (r *Result) Diff() (string, error) {
	if !r.Changed {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(r.Before)),
		B:        difflib.SplitLines(string(r.After)),
		FromFile: r.Path,
		ToFile:   r.Path + " (updated)",
		Context:  3,
	})
}

// MergePatch returns the RFC 7386 JSON merge patch that turns the original
// document into the new one. It is the logical counterpart of Diff: layout
// changes do not show up, only data does.
func (r *Result) MergePatch() ([]byte, error) {
	from, err := yamlToJSON(r.Before)
	if err != nil {
		return nil, fmt.Errorf("blockedit: original document: %w", err)
	}
	to, err := yamlToJSON(r.After)
	if err != nil {
		return nil, fmt.Errorf("blockedit: updated document: %w", err)
	}
	return jsonpatch.CreateMergePatch(from, to)
}

func yamlToJSON(data []byte) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	return gyaml.YAMLToJSON(data)
}
