package blockedit

import (
	"strings"
)

// countLeadingIndent counts the indentation of a line. YAML forbids tabs for
// indentation, but a tab is counted as one column so malformed input still
// produces a stable answer.
func countLeadingIndent(line string) int {
	n := 0
	for n < len(line) {
		switch line[n] {
		case ' ', '\t':
			n++
		default:
			return n
		}
	}
	return n
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isComment(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) > 0 && t[0] == '#'
}

func isBlankOrComment(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) == 0 || t[0] == '#'
}

// headerKey reports whether line is a block mapping key of the form
// "<indent>key:" possibly followed by spaces and/or a comment, and returns the
// key and its indentation. "key: value" lines are not headers.
func headerKey(line string) (string, int, bool) {
	key, rest, indent, ok := splitKeyLine(line)
	if !ok {
		return "", 0, false
	}
	rest = strings.TrimSpace(rest)
	if rest != "" && rest[0] != '#' {
		return "", 0, false
	}
	return key, indent, true
}

// mapKey is like headerKey but also accepts "key: value" lines.
func mapKey(line string) (string, int, bool) {
	key, _, indent, ok := splitKeyLine(line)
	return key, indent, ok
}

func splitKeyLine(line string) (key, rest string, indent int, ok bool) {
	indent = countLeadingIndent(line)
	body := strings.TrimRight(line[indent:], " \t\r")
	if body == "" || body[0] == '#' || body[0] == '-' {
		return "", "", 0, false
	}
	for i := 0; i < len(body); i++ {
		if body[i] != ':' {
			continue
		}
		// A colon only separates a key when followed by whitespace or EOL;
		// "image: nginx:1.27" must split at the first colon, "http://x" never.
		if i+1 == len(body) || body[i+1] == ' ' || body[i+1] == '\t' {
			k := strings.TrimSpace(body[:i])
			if k == "" {
				return "", "", 0, false
			}
			return k, body[i+1:], indent, true
		}
	}
	return "", "", 0, false
}

// rootKeyLine reports whether line is a root-level (column 0) header for key.
func rootKeyLine(line, key string) bool {
	k, indent, ok := headerKey(line)
	return ok && indent == 0 && k == key
}

// isRootBoundary reports whether line starts a new root-level entry: any
// non-blank, non-comment content at column 0.
func isRootBoundary(line string) bool {
	return !isBlankOrComment(line) && countLeadingIndent(line) == 0
}

// detectIndent returns the base indent of the document: the GCD of all
// non-zero indents of content lines, or 2 when nothing useful is found.
func detectIndent(lines []string) int {
	indents := []int{}
	for _, ln := range lines {
		if isBlankOrComment(ln) {
			continue
		}
		n := countLeadingIndent(ln)
		if n > 0 {
			indents = append(indents, n)
		}
	}

	if len(indents) == 0 {
		return 2
	}

	result := indents[0]
	for i := 1; i < len(indents); i++ {
		result = gcd(result, indents[i])
		if result == 1 {
			break
		}
	}

	if result > 0 && result <= 8 {
		return result
	}
	return 2
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// spliceLines returns lines with [start, end) replaced by repl. The input
// slice is never modified.
func spliceLines(lines []string, start, end int, repl []string) []string {
	out := make([]string, 0, len(lines)-(end-start)+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	out = append(out, lines[end:]...)
	return out
}
