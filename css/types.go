package css

import (
	"fmt"
	"io"
	"strings"
)

// Declaration is a single property declaration with its raw value text.
type Declaration struct {
	Property string // Property name, custom properties keep leading "--"
	Value    string // Raw value text with "!important" stripped
}

// IsCustom returns true for custom property (variable) declarations.
func (d Declaration) IsCustom() bool {
	return strings.HasPrefix(d.Property, "--")
}

// Rule represents a single CSS rule (selector + declarations in source order).
type Rule struct {
	Selector     string // Selector text with whitespace collapsed
	Declarations []Declaration
}

// Stylesheet represents a parsed override stylesheet.
type Stylesheet struct {
	Rules    []Rule   // Rules in source order, grouped selectors are split
	Warnings []string // Warnings for unsupported features
}

// Variables returns custom property declarations from all rules in source
// order. Later declarations of the same name win when collected into a map.
func (s *Stylesheet) Variables() []Declaration {
	var vars []Declaration
	for _, r := range s.Rules {
		for _, d := range r.Declarations {
			if d.IsCustom() {
				vars = append(vars, d)
			}
		}
	}
	return vars
}

// RulesBySelector returns all rules matching the given selector string.
func (s *Stylesheet) RulesBySelector(selector string) []Rule {
	selector = normalizeSelector(selector)
	var matches []Rule
	for _, r := range s.Rules {
		if r.Selector == selector {
			matches = append(matches, r)
		}
	}
	return matches
}

// WriteTo writes the stylesheet to w in source order, implementing io.WriterTo.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i := range s.Rules {
		n, err := writeRule(w, &s.Rules[i])
		total += int64(n)
		if err != nil {
			return total, err
		}

		// Add blank line between rules (except after last)
		if i < len(s.Rules)-1 {
			n, err = fmt.Fprint(w, "\n")
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

// writeRule writes a single CSS rule to w.
func writeRule(w io.Writer, rule *Rule) (int, error) {
	var total int
	n, err := fmt.Fprintf(w, "%s {\n", rule.Selector)
	total += n
	if err != nil {
		return total, err
	}
	for _, d := range rule.Declarations {
		n, err = fmt.Fprintf(w, "  %s: %s;\n", d.Property, d.Value)
		total += n
		if err != nil {
			return total, err
		}
	}
	n, err = fmt.Fprint(w, "}\n")
	total += n
	return total, err
}

func normalizeSelector(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
