package blockedit

import (
	"errors"
	"fmt"
	"strings"
)

// EnsureScalar makes sure entry (a bare key line such as "pgadmin_data:") is
// declared under the root-level rootKey. An entry is already present when a
// line equal to it, ignoring surrounding whitespace, exists in rootKey's
// nested region, or when a direct child declares the same key with a value.
// Otherwise it is inserted as the first nested line. Entries given without
// indentation get the indent used by the existing children.
//
// It reports whether the document changed.
func (d *Document) EnsureScalar(rootKey, entry string) (bool, error) {
	entry = strings.TrimRight(entry, " \t\r\n")
	want := strings.TrimSpace(entry)
	if want == "" {
		return false, fmt.Errorf("%w: empty entry for %q", ErrInvalidBlock, rootKey)
	}
	if strings.Contains(want, "\n") {
		return false, fmt.Errorf("%w: entry %q spans several lines", ErrInvalidBlock, want)
	}

	sec, err := d.section(rootKey)
	if errors.Is(err, errNoSection) {
		return false, fmt.Errorf("%w: root key %q not present", ErrMalformedAnchor, rootKey)
	}
	if err != nil {
		return false, err
	}

	unit := d.unitIndent(sec)
	wantKey, _, wantIsKey := mapKey(want)
	for i := sec.Start + 1; i < sec.End; i++ {
		l := d.lines[i]
		if strings.TrimSpace(l) == want {
			return false, nil
		}
		if !wantIsKey {
			continue
		}
		if k, ind, ok := mapKey(l); ok && ind == unit && k == wantKey {
			return false, nil
		}
	}

	line := entry
	if countLeadingIndent(entry) == 0 {
		line = strings.Repeat(" ", unit) + entry
	}
	d.lines = spliceLines(d.lines, sec.Start+1, sec.Start+1, d.newLines([]string{line}))
	return true, nil
}
