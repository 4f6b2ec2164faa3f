package uss

import (
	"slices"
	"strings"
)

// HandleType identifies which typed array a handle points into.
type HandleType uint8

const (
	HandleNone HandleType = iota
	HandleKeyword
	HandleFloat
	HandleDimension
	HandleColor
	HandleResource
	// HandleVariable points at string slot holding referenced variable name.
	HandleVariable
)

func (t HandleType) String() string {
	switch t {
	case HandleKeyword:
		return "keyword"
	case HandleFloat:
		return "float"
	case HandleDimension:
		return "dimension"
	case HandleColor:
		return "color"
	case HandleResource:
		return "resource"
	case HandleVariable:
		return "variable"
	default:
		return "none"
	}
}

// Handle is (array, slot index) pair stored in property value list.
type Handle struct {
	Type  HandleType `ion:"type"`
	Index int        `ion:"index"`
}

// IsLiteral reports whether handle points at concrete value.
func (h Handle) IsLiteral() bool {
	return h.Type != HandleNone && h.Type != HandleVariable
}

// Dimension is scalar with unit.
type Dimension struct {
	Value float64 `ion:"value"`
	Unit  Unit    `ion:"unit"`
}

// Property is single declaration inside rule. Variable definitions are
// properties with names starting with "--". Variable reference is stored as
// HandleVariable optionally followed by literal fallback handle.
type Property struct {
	Name   string   `ion:"name"`
	Values []Handle `ion:"values"`
	Line   int      `ion:"line"`
}

// IsVariable reports whether property defines custom property.
func (p Property) IsVariable() bool {
	return IsVariableName(p.Name)
}

type Rule struct {
	Properties []Property `ion:"properties"`
	Line       int        `ion:"line"`
}

// Selector maps selector text to index of the rule it selects.
type Selector struct {
	Text string `ion:"text"`
	Rule int    `ion:"rule"`
}

// Sheet is single stylesheet asset. Value arrays are local to the sheet,
// slots are never removed or reordered.
type Sheet struct {
	Name       string      `ion:"name"`
	Colors     []Color     `ion:"colors"`
	Floats     []float64   `ion:"floats"`
	Dimensions []Dimension `ion:"dimensions"`
	Strings    []string    `ion:"strings"`
	Rules      []Rule      `ion:"rules"`
	Selectors  []Selector  `ion:"selectors"`
}

// Location addresses property inside sheet.
type Location struct {
	Rule     int
	Property int
}

// IsVariableName reports whether name is custom property name.
func IsVariableName(name string) bool {
	return strings.HasPrefix(name, "--")
}

// NormalizeSelector collapses whitespace so selector texts from stylesheet
// sources and assets compare equal.
func NormalizeSelector(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Prop returns property at location.
func (s *Sheet) Prop(loc Location) *Property {
	return &s.Rules[loc.Rule].Properties[loc.Property]
}

// RulesFor returns indexes of rules selected by selector text.
func (s *Sheet) RulesFor(selector string) []int {
	selector = NormalizeSelector(selector)
	var res []int
	for _, sel := range s.Selectors {
		if NormalizeSelector(sel.Text) == selector && !slices.Contains(res, sel.Rule) {
			res = append(res, sel.Rule)
		}
	}
	return res
}

// SelectorTexts returns distinct selector texts in sheet order.
func (s *Sheet) SelectorTexts() []string {
	var res []string
	for _, sel := range s.Selectors {
		text := NormalizeSelector(sel.Text)
		if !slices.Contains(res, text) {
			res = append(res, text)
		}
	}
	return res
}

// SelectorsOf returns selector texts pointing at rule.
func (s *Sheet) SelectorsOf(rule int) []string {
	var res []string
	for _, sel := range s.Selectors {
		if sel.Rule == rule {
			res = append(res, NormalizeSelector(sel.Text))
		}
	}
	return res
}

// FindProperty returns last declaration of property in rules selected by
// selector, last one wins as in any cascade.
func (s *Sheet) FindProperty(selector, property string) (Location, bool) {
	var (
		loc   Location
		found bool
	)
	for _, ri := range s.RulesFor(selector) {
		for pi, p := range s.Rules[ri].Properties {
			if p.Name == property {
				loc, found = Location{Rule: ri, Property: pi}, true
			}
		}
	}
	return loc, found
}

// Definitions returns every definition of variable name.
func (s *Sheet) Definitions(name string) []Location {
	var res []Location
	for ri, r := range s.Rules {
		for pi, p := range r.Properties {
			if p.Name == name {
				res = append(res, Location{Rule: ri, Property: pi})
			}
		}
	}
	return res
}

// VariableNames returns distinct defined variable names in sheet order.
func (s *Sheet) VariableNames() []string {
	var res []string
	for _, r := range s.Rules {
		for _, p := range r.Properties {
			if p.IsVariable() && !slices.Contains(res, p.Name) {
				res = append(res, p.Name)
			}
		}
	}
	return res
}

// Usages returns locations of properties referencing variable name together
// with position of the reference handle in the value list.
func (s *Sheet) Usages(name string) []Usage {
	var res []Usage
	for ri, r := range s.Rules {
		for pi, p := range r.Properties {
			for vi, h := range p.Values {
				if ref, ok := s.ReferenceName(h); ok && ref == name {
					res = append(res, Usage{Location: Location{Rule: ri, Property: pi}, Value: vi})
				}
			}
		}
	}
	return res
}

// Usage is reference to variable inside property value list.
type Usage struct {
	Location
	Value int
}

// Fallback returns the literal handle following reference, if any.
func (s *Sheet) Fallback(u Usage) (Handle, bool) {
	values := s.Prop(u.Location).Values
	if u.Value+1 < len(values) && values[u.Value+1].IsLiteral() {
		return values[u.Value+1], true
	}
	return Handle{}, false
}

// VariablesRule returns rule holding variable definitions, preferring one
// selected by :root.
func (s *Sheet) VariablesRule() (int, bool) {
	if rules := s.RulesFor(":root"); len(rules) > 0 {
		return rules[0], true
	}
	for ri, r := range s.Rules {
		for _, p := range r.Properties {
			if p.IsVariable() {
				return ri, true
			}
		}
	}
	return 0, false
}

// AddRule appends empty rule selected by selector and returns its index.
func (s *Sheet) AddRule(selector string) int {
	s.Rules = append(s.Rules, Rule{})
	idx := len(s.Rules) - 1
	s.Selectors = append(s.Selectors, Selector{Text: NormalizeSelector(selector), Rule: idx})
	return idx
}

// AddProperty appends property to rule and returns its location.
func (s *Sheet) AddProperty(rule int, name string, values ...Handle) Location {
	r := &s.Rules[rule]
	r.Properties = append(r.Properties, Property{Name: name, Values: values})
	return Location{Rule: rule, Property: len(r.Properties) - 1}
}

// Clone returns deep copy of the sheet.
func (s *Sheet) Clone() *Sheet {
	c := &Sheet{
		Name:       s.Name,
		Colors:     slices.Clone(s.Colors),
		Floats:     slices.Clone(s.Floats),
		Dimensions: slices.Clone(s.Dimensions),
		Strings:    slices.Clone(s.Strings),
		Selectors:  slices.Clone(s.Selectors),
		Rules:      make([]Rule, len(s.Rules)),
	}
	for i, r := range s.Rules {
		c.Rules[i] = Rule{Line: r.Line, Properties: make([]Property, len(r.Properties))}
		for j, p := range r.Properties {
			c.Rules[i].Properties[j] = Property{Name: p.Name, Line: p.Line, Values: slices.Clone(p.Values)}
		}
	}
	return c
}

// SplitRule isolates selector from other selectors sharing rule so it can be
// patched independently. Properties are copied, value handles keep pointing
// at the same slots. The copy is inserted right after rule to keep cascade
// order, indexes of later rules shift by one. Returns index of the rule now
// selected by selector only.
func (s *Sheet) SplitRule(rule int, selector string) int {
	selector = NormalizeSelector(selector)
	var (
		target []int
		others bool
	)
	for i, sel := range s.Selectors {
		if sel.Rule != rule {
			continue
		}
		if NormalizeSelector(sel.Text) == selector {
			target = append(target, i)
		} else {
			others = true
		}
	}
	if len(target) == 0 || !others {
		return rule
	}

	src := s.Rules[rule]
	dup := Rule{Line: src.Line, Properties: make([]Property, len(src.Properties))}
	for i, p := range src.Properties {
		dup.Properties[i] = Property{Name: p.Name, Line: p.Line, Values: slices.Clone(p.Values)}
	}
	idx := rule + 1
	s.Rules = slices.Insert(s.Rules, idx, dup)
	for i := range s.Selectors {
		if s.Selectors[i].Rule >= idx {
			s.Selectors[i].Rule++
		}
	}
	for _, i := range target {
		s.Selectors[i].Rule = idx
	}
	return idx
}

// IsolateRules splits every rule selector shares with other selectors and
// returns rules selected by it afterwards.
func (s *Sheet) IsolateRules(selector string) []int {
	for {
		split := false
		for _, ri := range s.RulesFor(selector) {
			if s.SplitRule(ri, selector) != ri {
				split = true
				break
			}
		}
		if !split {
			return s.RulesFor(selector)
		}
	}
}
