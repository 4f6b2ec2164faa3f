package uss

import (
	"fmt"
	"strings"
)

// Longhand is a single per-side property produced by shorthand expansion.
type Longhand struct {
	Property string
	Raw      string
}

// shorthands lists longhands in top, right, bottom, left order (corners go
// clockwise from top-left for border-radius).
var shorthands = map[string][4]string{
	"padding":       {"padding-top", "padding-right", "padding-bottom", "padding-left"},
	"margin":        {"margin-top", "margin-right", "margin-bottom", "margin-left"},
	"border-width":  {"border-top-width", "border-right-width", "border-bottom-width", "border-left-width"},
	"border-color":  {"border-top-color", "border-right-color", "border-bottom-color", "border-left-color"},
	"border-radius": {"border-top-left-radius", "border-top-right-radius", "border-bottom-right-radius", "border-bottom-left-radius"},
}

// IsShorthand reports whether property is a box shorthand Expand knows.
func IsShorthand(property string) bool {
	_, ok := shorthands[property]
	return ok
}

// Expand splits shorthand box property into per-side longhands. Properties
// which are not shorthands are returned unchanged as single longhand.
func Expand(property, raw string) ([]Longhand, error) {
	sides, ok := shorthands[property]
	if !ok {
		return []Longhand{{Property: property, Raw: raw}}, nil
	}
	tokens := splitTokens(raw)

	var values [4]string
	switch len(tokens) {
	case 1:
		values = [4]string{tokens[0], tokens[0], tokens[0], tokens[0]}
	case 2:
		values = [4]string{tokens[0], tokens[1], tokens[0], tokens[1]}
	case 3:
		values = [4]string{tokens[0], tokens[1], tokens[2], tokens[1]}
	case 4:
		values = [4]string{tokens[0], tokens[1], tokens[2], tokens[3]}
	default:
		return nil, fmt.Errorf("%w: %s expects 1 to 4 values, got %d", ErrValueParse, property, len(tokens))
	}

	res := make([]Longhand, 0, len(sides))
	for i, side := range sides {
		res = append(res, Longhand{Property: side, Raw: values[i]})
	}
	return res, nil
}

// splitTokens splits on whitespace outside of parentheses so functional
// values like rgb(1, 2, 3) stay intact.
func splitTokens(raw string) []string {
	var (
		tokens []string
		cur    strings.Builder
		depth  int
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
