package uss

import (
	"fmt"
	"strconv"
)

// Color is RGBA with 8 bits per channel.
type Color struct {
	R uint8 `ion:"r"`
	G uint8 `ion:"g"`
	B uint8 `ion:"b"`
	A uint8 `ion:"a"`
}

// String returns #RRGGBB for opaque colors and #RRGGBBAA otherwise.
func (c Color) String() string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// Value is a typed stylesheet value. Kind selects which of the remaining
// fields is meaningful.
type Value struct {
	Kind   Kind
	Color  Color   // KindColor
	Number float64 // KindScalar
	Unit   Unit    // KindScalar, may be empty
	Text   string  // KindKeyword token or KindResource path
}

func ColorValue(c Color) Value {
	return Value{Kind: KindColor, Color: c}
}

func ScalarValue(n float64, u Unit) Value {
	return Value{Kind: KindScalar, Number: n, Unit: u}
}

func KeywordValue(token string) Value {
	return Value{Kind: KindKeyword, Text: token}
}

func ResourceValue(path string) Value {
	return Value{Kind: KindResource, Text: path}
}

// String returns stylesheet text for the value.
func (v Value) String() string {
	switch v.Kind {
	case KindColor:
		return v.Color.String()
	case KindScalar:
		return formatNumber(v.Number) + string(v.Unit)
	case KindKeyword:
		return v.Text
	case KindResource:
		return `resource("` + v.Text + `")`
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
