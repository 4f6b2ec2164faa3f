// Package uss models compiled UI stylesheet assets: typed value arrays,
// rules and variable definitions, and the codec translating stylesheet text
// into slot writes.
package uss

// Kind is the kind of value a property expects.
type Kind int

const (
	KindUnknown Kind = iota
	KindColor
	KindScalar
	KindKeyword
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindColor:
		return "color"
	case KindScalar:
		return "scalar"
	case KindKeyword:
		return "keyword"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Unit of a scalar value. Empty unit means plain number.
type Unit string

const (
	UnitNone    Unit = ""
	UnitPx      Unit = "px"
	UnitEm      Unit = "em"
	UnitRem     Unit = "rem"
	UnitPt      Unit = "pt"
	UnitPercent Unit = "%"
	UnitDeg     Unit = "deg"
	UnitSecond  Unit = "s"
	UnitMilli   Unit = "ms"
)

var knownUnits = map[string]Unit{
	"px":  UnitPx,
	"em":  UnitEm,
	"rem": UnitRem,
	"pt":  UnitPt,
	"%":   UnitPercent,
	"deg": UnitDeg,
	"s":   UnitSecond,
	"ms":  UnitMilli,
}
