package blockedit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	gyaml "github.com/goccy/go-yaml"
)

// Block is one service definition: a header line "name:" at column 0 followed
// by its nested lines.
type Block struct {
	name  string
	lines []string
}

// Name returns the block's key.
func (b *Block) Name() string { return b.name }

// Lines returns a copy of the block lines, header first, unindented.
func (b *Block) Lines() []string { return append([]string(nil), b.lines...) }

// String renders the block with a trailing newline.
func (b *Block) String() string { return strings.Join(b.lines, "\n") + "\n" }

// indented shifts every non-blank line right by n spaces. Blank lines are
// emitted empty so no trailing whitespace is introduced.
func (b *Block) indented(n int) []string {
	pad := strings.Repeat(" ", n)
	out := make([]string, len(b.lines))
	for i, l := range b.lines {
		if isBlank(l) {
			out[i] = ""
			continue
		}
		out[i] = pad + l
	}
	return out
}

// ParseBlock builds a Block from rendered text. Leading and trailing blank
// lines are dropped and a uniformly indented block (e.g. cut from another
// compose file) is shifted back to column 0. The text must be a YAML mapping
// with the single key name.
func ParseBlock(name string, text []byte) (*Block, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	raw := strings.Split(strings.ReplaceAll(string(text), "\r\n", "\n"), "\n")
	first, last := 0, len(raw)
	for first < last && isBlank(raw[first]) {
		first++
	}
	for last > first && isBlank(raw[last-1]) {
		last--
	}
	if first == last {
		return nil, fmt.Errorf("%w: %q: empty definition", ErrInvalidBlock, name)
	}
	raw = raw[first:last]

	base := countLeadingIndent(raw[0])
	lines := make([]string, len(raw))
	for i, l := range raw {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			continue
		}
		ind := countLeadingIndent(l)
		if ind < base {
			return nil, fmt.Errorf("%w: %q: line %d is indented less than the header", ErrInvalidBlock, name, i+1)
		}
		// Anything at header level after the header, comments included,
		// would end the block when it is located again later.
		if i > 0 && ind == base {
			return nil, fmt.Errorf("%w: %q: line %d is not nested under the header", ErrInvalidBlock, name, i+1)
		}
		lines[i] = l[base:]
	}

	key, _, ok := headerKey(lines[0])
	if !ok || key != name {
		return nil, fmt.Errorf("%w: header %q does not declare %q", ErrInvalidBlock, lines[0], name)
	}

	if err := checkBlockYAML(name, lines); err != nil {
		return nil, err
	}
	return &Block{name: name, lines: lines}, nil
}

// ReadBlockFile reads and parses a block definition from path.
func ReadBlockFile(name, path string) (*Block, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Stage: StageLoad, Subject: fmt.Sprintf("block file %q", path), Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	if err != nil {
		return nil, &Error{Stage: StageLoad, Subject: fmt.Sprintf("block file %q", path), Err: fmt.Errorf("%w: %v", ErrIOFailure, err)}
	}
	b, err := ParseBlock(name, data)
	if err != nil {
		return nil, &Error{Stage: StageLoad, Subject: blockSubject(name), Err: err}
	}
	return b, nil
}

// checkBlockYAML decodes the block into an ordered map and requires exactly
// one key, equal to name. This rejects template output that would silently
// add sibling services or break the compose file.
func checkBlockYAML(name string, lines []string) error {
	var ms gyaml.MapSlice
	src := []byte(strings.Join(lines, "\n") + "\n")
	if err := gyaml.UnmarshalWithOptions(src, &ms, gyaml.UseOrderedMap()); err != nil {
		return fmt.Errorf("%w: %q is not valid YAML: %v", ErrInvalidBlock, name, err)
	}
	if len(ms) != 1 {
		return fmt.Errorf("%w: %q must define exactly one key, got %d", ErrInvalidBlock, name, len(ms))
	}
	if !keyEquals(ms[0].Key, name) {
		return fmt.Errorf("%w: %q decodes to key %v", ErrInvalidBlock, name, ms[0].Key)
	}
	return nil
}

func keyEquals(k interface{}, want string) bool {
	switch vv := k.(type) {
	case string:
		return vv == want
	case fmt.Stringer:
		return vv.String() == want
	default:
		return fmt.Sprint(vv) == want
	}
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty block name", ErrInvalidBlock)
	}
	if strings.ContainsAny(name, ": \t\r\n#") {
		return fmt.Errorf("%w: block name %q contains reserved characters", ErrInvalidBlock, name)
	}
	return nil
}
