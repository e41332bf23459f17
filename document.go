// Package blockedit edits named service blocks inside compose-style YAML
// documents without re-encoding them. Documents are handled as lines so that
// comments, quoting and blank-line layout survive every edit; only the lines of
// the block being toggled ever change.
package blockedit

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultRoot is the root key whose children are treated as blocks.
const DefaultRoot = "services"

// Document is a line-oriented view of a YAML file. The zero value is not
// usable; create one with Parse.
type Document struct {
	lines        []string
	finalNewline bool
	root         string
	indent       int

	// cr is set for CRLF documents; added lines get the same ending.
	cr bool
}

// ParseOption configures how a Document interprets its root section.
type ParseOption func(*Document)

// WithRootKey sets the root-level key whose children are blocks.
func WithRootKey(key string) ParseOption {
	return func(d *Document) { d.root = key }
}

// WithBlockIndent fixes the indentation of block headers. When unset (or 0)
// the indentation is taken from the existing children of the root section,
// falling back to the indent unit detected over the whole document.
func WithBlockIndent(n int) ParseOption {
	return func(d *Document) { d.indent = n }
}

// Parse splits data into lines. An empty input yields an empty document.
func Parse(data []byte, opts ...ParseOption) (*Document, error) {
	d := &Document{root: DefaultRoot}
	for _, opt := range opts {
		opt(d)
	}
	if d.root == "" || strings.ContainsAny(d.root, ": \t") {
		return nil, fmt.Errorf("blockedit: invalid root key %q", d.root)
	}
	if d.indent < 0 {
		return nil, fmt.Errorf("blockedit: negative block indent %d", d.indent)
	}

	text := string(data)
	if strings.HasSuffix(text, "\n") {
		d.finalNewline = true
		text = strings.TrimSuffix(text, "\n")
	}
	if text != "" || d.finalNewline {
		d.lines = strings.Split(text, "\n")
		d.cr = strings.HasSuffix(d.lines[0], "\r")
	}
	return d, nil
}

// newLines terminates added lines like the rest of the document.
func (d *Document) newLines(lines []string) []string {
	if !d.cr {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\r"
	}
	return out
}

// Bytes renders the document, restoring the final newline state of the input.
func (d *Document) Bytes() []byte {
	if len(d.lines) == 0 {
		if d.finalNewline {
			return []byte("\n")
		}
		return []byte{}
	}
	var sb strings.Builder
	for i, l := range d.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l)
	}
	if d.finalNewline {
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Lines returns a copy of the document lines.
func (d *Document) Lines() []string {
	return append([]string(nil), d.lines...)
}

// Root returns the root key the document was parsed with.
func (d *Document) Root() string { return d.root }

// Clone returns an independent copy.
func (d *Document) Clone() *Document {
	cp := *d
	cp.lines = append([]string(nil), d.lines...)
	return &cp
}

// Range is a half-open line range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of lines covered.
func (r Range) Len() int { return r.End - r.Start }

var errNoSection = errors.New("section not present")

// section returns the line range of the root-level key: Start is the key line
// itself, End the next root-level entry (or end of document).
func (d *Document) section(key string) (Range, error) {
	start := -1
	for i, l := range d.lines {
		if !rootKeyLine(l, key) {
			continue
		}
		if start >= 0 {
			return Range{}, fmt.Errorf("%w: root key %q declared on lines %d and %d", ErrAmbiguousMatch, key, start+1, i+1)
		}
		start = i
	}
	if start < 0 {
		return Range{}, errNoSection
	}
	end := len(d.lines)
	for i := start + 1; i < len(d.lines); i++ {
		if isRootBoundary(d.lines[i]) {
			end = i
			break
		}
	}
	return Range{Start: start, End: end}, nil
}

// childIndent returns the indentation of the first content line nested in
// sec, or 0 when the section has no children.
func (d *Document) childIndent(sec Range) int {
	for i := sec.Start + 1; i < sec.End; i++ {
		if isBlankOrComment(d.lines[i]) {
			continue
		}
		return countLeadingIndent(d.lines[i])
	}
	return 0
}

// unitIndent returns the indentation new children of sec should get.
func (d *Document) unitIndent(sec Range) int {
	if n := d.childIndent(sec); n > 0 {
		return n
	}
	return detectIndent(d.lines)
}

// blockIndent is the header indentation of blocks in the root section.
func (d *Document) blockIndent(sec Range) int {
	if d.indent > 0 {
		return d.indent
	}
	return d.unitIndent(sec)
}
