package uss

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

var (
	// ErrUnknownProperty is returned for properties we do not know how to encode.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrValueParse is returned when raw text does not match the grammar of
	// the expected value kind.
	ErrValueParse = errors.New("unable to parse value")
)

var (
	reNumber     = regexp.MustCompile(`^([+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+))([a-zA-Z%]*)$`)
	reIdentifier = regexp.MustCompile(`^-?[a-zA-Z_][a-zA-Z0-9_-]*$`)
	reFunction   = regexp.MustCompile(`^([a-zA-Z-]+)\((.*)\)$`)
	reReference  = regexp.MustCompile(`^(?i:var)\(\s*(--[a-zA-Z0-9_-]+)\s*(?:,(.*))?\)$`)
)

// Reference is var(--name) value. Fallback is raw text after the comma,
// empty when there is none.
type Reference struct {
	Name     string
	Fallback string
}

// String returns stylesheet text for the reference.
func (r Reference) String() string {
	if r.Fallback == "" {
		return "var(" + r.Name + ")"
	}
	return "var(" + r.Name + ", " + r.Fallback + ")"
}

// ParseReference recognizes var(--name[, fallback]). ok is false when raw is
// not a var() call at all, malformed calls are reported as ErrValueParse.
func ParseReference(raw string) (ref Reference, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 4 || !strings.EqualFold(raw[:4], "var(") {
		return Reference{}, false, nil
	}
	m := reReference.FindStringSubmatch(raw)
	if m == nil {
		return Reference{}, true, fmt.Errorf("%w: malformed variable reference %q", ErrValueParse, raw)
	}
	ref = Reference{Name: m[1], Fallback: strings.TrimSpace(m[2])}
	if ref.Fallback == "" && strings.Contains(raw, ",") {
		return Reference{}, true, fmt.Errorf("%w: empty fallback in %q", ErrValueParse, raw)
	}
	return ref, true, nil
}

// Parse converts raw stylesheet text to a typed value according to the kind
// property expects.
func Parse(property, raw string) (Value, error) {
	kind := KindFor(property)
	if kind == KindUnknown {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownProperty, property)
	}
	v, err := parseAs(kind, Keywords(property), raw)
	if err != nil {
		return Value{}, fmt.Errorf("property %s: %w", property, err)
	}
	return v, nil
}

// ParseVariable converts raw text of a custom property. Variables carry no
// registry entry so kind comes from hint (kind of value already stored) or is
// inferred from syntax when hint is KindUnknown.
func ParseVariable(raw string, hint Kind) (Value, error) {
	if hint != KindUnknown {
		return parseAs(hint, nil, raw)
	}
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "rgb"):
		return parseColor(raw)
	case strings.HasPrefix(raw, "url(") || strings.HasPrefix(raw, "resource("):
		return parseResource(raw)
	case reNumber.MatchString(raw):
		return parseScalar(raw)
	}
	if _, ok := colornames.Map[strings.ToLower(raw)]; ok {
		return parseColor(raw)
	}
	return parseKeyword(nil, raw)
}

// parseAs is exhaustive over value kinds. Empty vocabulary means any
// identifier is accepted as a keyword.
func parseAs(kind Kind, vocabulary []string, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, fmt.Errorf("%w: empty value", ErrValueParse)
	}
	switch kind {
	case KindColor:
		return parseColor(raw)
	case KindScalar:
		if v, err := parseScalar(raw); err == nil {
			return v, nil
		}
		if slices.Contains(vocabulary, raw) {
			return KeywordValue(raw), nil
		}
		return Value{}, fmt.Errorf("%w: %q is not a number", ErrValueParse, raw)
	case KindKeyword:
		return parseKeyword(vocabulary, raw)
	case KindResource:
		return parseResource(raw)
	case KindUnknown:
		return Value{}, fmt.Errorf("%w: no value kind", ErrValueParse)
	}
	return Value{}, fmt.Errorf("%w: unexpected kind %d", ErrValueParse, kind)
}

func parseScalar(raw string) (Value, error) {
	m := reNumber.FindStringSubmatch(raw)
	if m == nil {
		return Value{}, fmt.Errorf("%w: %q is not a number", ErrValueParse, raw)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %w", ErrValueParse, raw, err)
	}
	if m[2] == "" {
		return ScalarValue(n, UnitNone), nil
	}
	unit, ok := knownUnits[strings.ToLower(m[2])]
	if !ok {
		return Value{}, fmt.Errorf("%w: unsupported unit %q", ErrValueParse, m[2])
	}
	return ScalarValue(n, unit), nil
}

func parseKeyword(vocabulary []string, raw string) (Value, error) {
	if len(vocabulary) == 0 {
		if !reIdentifier.MatchString(raw) {
			return Value{}, fmt.Errorf("%w: %q is not an identifier", ErrValueParse, raw)
		}
		return KeywordValue(raw), nil
	}
	if !slices.Contains(vocabulary, raw) {
		return Value{}, fmt.Errorf("%w: %q is not one of %s", ErrValueParse, raw, strings.Join(vocabulary, ", "))
	}
	return KeywordValue(raw), nil
}

func parseResource(raw string) (Value, error) {
	m := reFunction.FindStringSubmatch(raw)
	if m == nil || (m[1] != "url" && m[1] != "resource") {
		return Value{}, fmt.Errorf("%w: %q is not a resource reference", ErrValueParse, raw)
	}
	path := strings.TrimSpace(m[2])
	if len(path) >= 2 && (path[0] == '\'' || path[0] == '"') && path[len(path)-1] == path[0] {
		path = path[1 : len(path)-1]
	}
	if path == "" {
		return Value{}, fmt.Errorf("%w: empty resource path", ErrValueParse)
	}
	return ResourceValue(path), nil
}

func parseColor(raw string) (Value, error) {
	if strings.HasPrefix(raw, "#") {
		c, err := parseHex(raw[1:])
		if err != nil {
			return Value{}, err
		}
		return ColorValue(c), nil
	}
	if m := reFunction.FindStringSubmatch(raw); m != nil {
		fn := strings.ToLower(m[1])
		if fn != "rgb" && fn != "rgba" {
			return Value{}, fmt.Errorf("%w: unsupported color function %q", ErrValueParse, m[1])
		}
		c, err := parseRGB(m[2])
		if err != nil {
			return Value{}, err
		}
		return ColorValue(c), nil
	}
	if strings.EqualFold(raw, "transparent") {
		return ColorValue(Color{}), nil
	}
	if named, ok := colornames.Map[strings.ToLower(raw)]; ok {
		return ColorValue(Color{R: named.R, G: named.G, B: named.B, A: named.A}), nil
	}
	return Value{}, fmt.Errorf("%w: %q is not a color", ErrValueParse, raw)
}

func parseHex(digits string) (Color, error) {
	for _, r := range digits {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return Color{}, fmt.Errorf("%w: bad hex color #%s", ErrValueParse, digits)
		}
	}
	nibble := func(i int) uint8 {
		v, _ := strconv.ParseUint(digits[i:i+1], 16, 8)
		return uint8(v * 17)
	}
	byteAt := func(i int) uint8 {
		v, _ := strconv.ParseUint(digits[i:i+2], 16, 8)
		return uint8(v)
	}
	switch len(digits) {
	case 3:
		return Color{R: nibble(0), G: nibble(1), B: nibble(2), A: 0xff}, nil
	case 4:
		return Color{R: nibble(0), G: nibble(1), B: nibble(2), A: nibble(3)}, nil
	case 6:
		return Color{R: byteAt(0), G: byteAt(2), B: byteAt(4), A: 0xff}, nil
	case 8:
		return Color{R: byteAt(0), G: byteAt(2), B: byteAt(4), A: byteAt(6)}, nil
	}
	return Color{}, fmt.Errorf("%w: bad hex color length #%s", ErrValueParse, digits)
}

// parseRGB accepts comma or whitespace separated components, with optional
// slash before alpha.
func parseRGB(args string) (Color, error) {
	parts := strings.FieldsFunc(args, func(r rune) bool {
		return r == ',' || r == '/' || r == ' ' || r == '\t'
	})
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, fmt.Errorf("%w: rgb() expects 3 or 4 components, got %d", ErrValueParse, len(parts))
	}
	var ch [3]uint8
	for i := range 3 {
		v, err := parseChannel(parts[i])
		if err != nil {
			return Color{}, err
		}
		ch[i] = v
	}
	c := Color{R: ch[0], G: ch[1], B: ch[2], A: 0xff}
	if len(parts) == 4 {
		a, err := parseAlpha(parts[3])
		if err != nil {
			return Color{}, err
		}
		c.A = a
	}
	return c, nil
}

func parseChannel(s string) (uint8, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad color component %q", ErrValueParse, s)
		}
		return clampByte(f * 255 / 100), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad color component %q", ErrValueParse, s)
	}
	return clampByte(f), nil
}

func parseAlpha(s string) (uint8, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad alpha %q", ErrValueParse, s)
		}
		return clampByte(f * 255 / 100), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad alpha %q", ErrValueParse, s)
	}
	return clampByte(f * 255), nil
}

func clampByte(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, f))))
}
