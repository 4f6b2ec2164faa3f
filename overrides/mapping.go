package overrides

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseMapping decodes mapping file contents. Mapping is a yaml document
// where each key is source file name (extension optional) and value is
// either a single asset name or a list of them. Document order is kept.
func ParseMapping(data []byte) ([]Target, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unable to decode mapping: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("mapping must be a yaml map, line %d", root.Line)
	}

	targets := make([]Target, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]

		var assets []string
		switch valNode.Kind {
		case yaml.ScalarNode:
			assets = []string{valNode.Value}
		case yaml.SequenceNode:
			if err := valNode.Decode(&assets); err != nil {
				return nil, fmt.Errorf("mapping for %q, line %d: %w", keyNode.Value, valNode.Line, err)
			}
		default:
			return nil, fmt.Errorf("mapping for %q, line %d: expected asset name or list of names", keyNode.Value, valNode.Line)
		}

		cleaned := assets[:0]
		for _, a := range assets {
			if a = strings.TrimSpace(a); a != "" {
				cleaned = append(cleaned, a)
			}
		}
		if len(cleaned) == 0 {
			continue
		}
		targets = append(targets, Target{Source: stem(keyNode.Value), Assets: cleaned})
	}
	return targets, nil
}

func stem(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	return strings.TrimSuffix(name, filepath.Ext(name))
}
