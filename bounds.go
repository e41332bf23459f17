package blockedit

import (
	"errors"
	"fmt"
)

// Locate finds the block named name among the children of the root section.
//
// A header matches only when the key is exactly name, followed by ':' and
// nothing but whitespace or a comment, at the block indentation. The range
// covers the header, every deeper or blank line after it, and stops at the
// first non-blank line indented at or above the header. Trailing blank lines
// therefore belong to the block.
//
// found is false when the root section or the block is absent.
func (d *Document) Locate(name string) (r Range, found bool, err error) {
	sec, err := d.section(d.root)
	if errors.Is(err, errNoSection) {
		return Range{}, false, nil
	}
	if err != nil {
		return Range{}, false, err
	}

	indent := d.blockIndent(sec)
	// A configured indent that disagrees with the section's children would
	// match nested keys (a "traefik" label map) as headers.
	if observed := d.childIndent(sec); observed > 0 && observed != indent {
		return Range{}, false, fmt.Errorf("%w: %q children are indented %d, expected indent %d",
			ErrAmbiguousMatch, d.root, observed, indent)
	}

	start := -1
	for i := sec.Start + 1; i < sec.End; i++ {
		key, ind, ok := headerKey(d.lines[i])
		// Deeper keys with the same name are not blocks.
		if !ok || key != name || ind != indent {
			continue
		}
		if start >= 0 {
			return Range{}, false, fmt.Errorf("%w: %q declared on lines %d and %d", ErrAmbiguousMatch, name, start+1, i+1)
		}
		start = i
	}
	if start < 0 {
		return Range{}, false, nil
	}
	return Range{Start: start, End: d.blockEnd(start, indent)}, true, nil
}

// blockEnd scans forward from a header line at indent.
func (d *Document) blockEnd(start, indent int) int {
	for i := start + 1; i < len(d.lines); i++ {
		l := d.lines[i]
		if isBlank(l) {
			continue
		}
		if countLeadingIndent(l) <= indent {
			return i
		}
	}
	return len(d.lines)
}

// Remove deletes the named block. It reports whether anything was removed;
// removing an absent block leaves the document untouched.
func (d *Document) Remove(name string) (bool, error) {
	r, found, err := d.Locate(name)
	if err != nil || !found {
		return false, err
	}
	d.RemoveRange(r)
	return true, nil
}

// RemoveRange excises r. Lines outside r keep their content and order.
func (d *Document) RemoveRange(r Range) {
	if r.Start < 0 || r.End > len(d.lines) || r.Start >= r.End {
		return
	}
	d.lines = spliceLines(d.lines, r.Start, r.End, nil)
}
