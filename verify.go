package blockedit

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// parseMapping decodes data with yaml.v3 and returns the top-level mapping.
func parseMapping(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top-level YAML is not a mapping")
	}
	// Decoding into a node skips the duplicate key check; decoding into a
	// plain value does not.
	var probe interface{}
	if err := doc.Decode(&probe); err != nil {
		return nil, err
	}
	return doc.Content[0], nil
}

func mappingValues(m *yaml.Node, key string) []*yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	var out []*yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			out = append(out, m.Content[i+1])
		}
	}
	return out
}

// verifyOutput checks the transformed document with a real YAML parser. The
// text surgery never looks past indentation, so this is what catches template
// output or hand edits that would leave a broken compose file behind.
//
// A document that did not parse before the edit is not held to the check.
func verifyOutput(before, after []byte, root string, present, absent []string) error {
	if _, err := parseMapping(before); err != nil {
		return nil
	}
	top, err := parseMapping(after)
	if err != nil {
		return fmt.Errorf("%w: result does not parse: %v", ErrInvalidDocument, err)
	}
	if len(present) == 0 && len(absent) == 0 {
		return nil
	}

	var section *yaml.Node
	if vals := mappingValues(top, root); len(vals) == 1 {
		section = vals[0]
	}
	for _, name := range present {
		if n := len(mappingValues(section, name)); n != 1 {
			return fmt.Errorf("%w: expected one %q under %q, found %d", ErrInvalidDocument, name, root, n)
		}
	}
	for _, name := range absent {
		if n := len(mappingValues(section, name)); n != 0 {
			return fmt.Errorf("%w: %q still declared under %q", ErrInvalidDocument, name, root)
		}
	}
	return nil
}
