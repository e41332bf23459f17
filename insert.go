package blockedit

import (
	"errors"
	"fmt"
)

// Position selects where Insert places a block relative to its anchor key.
type Position int

const (
	// PositionBefore appends the block at the end of the root section, right
	// before the root-level anchor key that follows the section.
	PositionBefore Position = iota
	// PositionFirstUnder makes the block the first child of the anchor key,
	// which must be the root key.
	PositionFirstUnder
)

// Anchor is the insertion reference point for a block.
type Anchor struct {
	Key      string
	Position Position
}

// Before anchors a block in front of the root-level key.
func Before(key string) Anchor { return Anchor{Key: key, Position: PositionBefore} }

// FirstUnder anchors a block as the first child of key.
func FirstUnder(key string) Anchor { return Anchor{Key: key, Position: PositionFirstUnder} }

// ResolveAnchor maps an anchor key name as used on the command line: the root
// key itself means "first child", any other key means "before that key".
func ResolveAnchor(root, key string) Anchor {
	if key == root {
		return FirstUnder(key)
	}
	return Before(key)
}

func (a Anchor) String() string {
	if a.Position == PositionFirstUnder {
		return fmt.Sprintf("first under %q", a.Key)
	}
	return fmt.Sprintf("before %q", a.Key)
}

// Insert places b at anchor, re-indented so its header lines up with the
// other blocks of the root section, followed by one blank spacing line unless
// it ends the document. The spacing line is owned by the block and goes away
// with it on removal, which keeps remove-then-insert byte-stable. Added lines
// take the document's line ending.
//
// Insert never deduplicates: a block that already exists is an
// ErrAmbiguousMatch. Remove it first.
func (d *Document) Insert(b *Block, anchor Anchor) error {
	if b == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	if _, found, err := d.Locate(b.name); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: block %q already present", ErrAmbiguousMatch, b.name)
	}

	sec, err := d.section(d.root)
	if errors.Is(err, errNoSection) {
		return fmt.Errorf("%w: root key %q not present", ErrMalformedAnchor, d.root)
	}
	if err != nil {
		return err
	}

	at, err := d.insertionPoint(sec, anchor)
	if err != nil {
		return err
	}

	lines := b.indented(d.blockIndent(sec))
	if at < len(d.lines) {
		lines = append(lines, "")
	}
	d.lines = spliceLines(d.lines, at, at, d.newLines(lines))
	return nil
}

func (d *Document) insertionPoint(sec Range, anchor Anchor) (int, error) {
	switch anchor.Position {
	case PositionFirstUnder:
		if anchor.Key != d.root {
			return 0, fmt.Errorf("%w: blocks can only be placed under %q, not %q", ErrMalformedAnchor, d.root, anchor.Key)
		}
		at := sec.Start + 1
		for at < len(d.lines) && isBlank(d.lines[at]) {
			at++
		}
		return at, nil

	case PositionBefore:
		if anchor.Key == "" {
			return 0, fmt.Errorf("%w: empty anchor key", ErrMalformedAnchor)
		}
		at := -1
		for i, l := range d.lines {
			if rootKeyLine(l, anchor.Key) {
				at = i
				break
			}
		}
		if at < 0 {
			return 0, fmt.Errorf("%w: anchor key %q not present", ErrMalformedAnchor, anchor.Key)
		}
		if at != sec.End {
			return 0, fmt.Errorf("%w: anchor key %q does not directly follow %q", ErrMalformedAnchor, anchor.Key, d.root)
		}
		// Keep root-level comments attached to the anchor key.
		for at-1 > sec.Start && isComment(d.lines[at-1]) && countLeadingIndent(d.lines[at-1]) == 0 {
			at--
		}
		return at, nil

	default:
		return 0, fmt.Errorf("%w: unknown position %d", ErrMalformedAnchor, anchor.Position)
	}
}
