package patch

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"fmskin/overrides"
)

// Scope tells whether entry is about variable or selector property.
type Scope int

const (
	ScopeVariable Scope = iota
	ScopeSelector
)

func (s Scope) String() string {
	if s == ScopeSelector {
		return "selector"
	}
	return "variable"
}

// Action is a decision made for single override in single asset.
type Action int

const (
	ActionUpdated Action = iota
	ActionUnchanged
	ActionAdded
	ActionResolved
	ActionSkipped
)

func (a Action) String() string {
	switch a {
	case ActionUpdated:
		return "updated"
	case ActionUnchanged:
		return "unchanged"
	case ActionAdded:
		return "added"
	case ActionResolved:
		return "resolved"
	case ActionSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Reason explains skipped entries.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonLivesElsewhere: new content already exists in another asset.
	ReasonLivesElsewhere
	// ReasonAmbiguousTarget: new content, asset is neither targeted nor primary.
	ReasonAmbiguousTarget
	ReasonUnknownProperty
	ReasonValueParse
	ReasonUnresolvable
)

func (r Reason) String() string {
	switch r {
	case ReasonLivesElsewhere:
		return "lives elsewhere"
	case ReasonAmbiguousTarget:
		return "ambiguous new content target"
	case ReasonUnknownProperty:
		return "unknown property"
	case ReasonValueParse:
		return "value parse error"
	case ReasonUnresolvable:
		return "unresolvable reference"
	default:
		return ""
	}
}

// Entry records one decision.
type Entry struct {
	Scope    Scope
	Action   Action
	Name     string // variable name or selector text
	Property string // selector entries only
	Value    string // new value as written to the asset
	Reason   Reason
	Detail   string   // human readable reason, e.g. "lives in Colors"
	Assets   []string // assets the name lives in for ReasonLivesElsewhere
}

// Subject returns name the entry is about.
func (e Entry) Subject() string {
	if e.Scope == ScopeSelector {
		return e.Name + " { " + e.Property + " }"
	}
	return e.Name
}

// String formats entry for logs and dry-run output.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Action, e.Subject())
	if e.Value != "" {
		fmt.Fprintf(&b, " = %s", e.Value)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	return b.String()
}

// AssetReport collects decisions for single asset. Before and After hold
// stylesheet text and are set only when asset was changed.
type AssetReport struct {
	Asset    string
	Entries  []Entry
	Changed  bool
	Before   string
	After    string
	Targeted bool     // some override source names the asset
	Sources  []string // targeted sources applied on top of global overrides
}

func (ar *AssetReport) add(e Entry) {
	ar.Entries = append(ar.Entries, e)
	switch e.Action {
	case ActionUpdated, ActionAdded, ActionResolved:
		ar.Changed = true
	}
}

// Counts is number of entries per scope and action.
type Counts struct {
	VarsUpdated      int
	VarsAdded        int
	VarsSkipped      int
	VarsResolved     int
	SelectorsUpdated int
	SelectorsAdded   int
	SelectorsSkipped int
}

// Report aggregates per-asset reports. Assets are kept in the order assets
// were passed to Run so result does not depend on worker scheduling.
type Report struct {
	Assets []AssetReport
	Counts Counts
}

func merge(reports []AssetReport) *Report {
	r := &Report{Assets: reports}
	for _, ar := range reports {
		for _, e := range ar.Entries {
			r.Counts.count(e)
		}
	}
	return r
}

func (c *Counts) count(e Entry) {
	switch {
	case e.Scope == ScopeVariable && e.Action == ActionUpdated:
		c.VarsUpdated++
	case e.Scope == ScopeVariable && e.Action == ActionAdded:
		c.VarsAdded++
	case e.Scope == ScopeVariable && e.Action == ActionSkipped:
		c.VarsSkipped++
	case e.Scope == ScopeVariable && e.Action == ActionResolved:
		c.VarsResolved++
	case e.Scope == ScopeSelector && e.Action == ActionUpdated:
		c.SelectorsUpdated++
	case e.Scope == ScopeSelector && e.Action == ActionAdded:
		c.SelectorsAdded++
	case e.Scope == ScopeSelector && e.Action == ActionSkipped:
		c.SelectorsSkipped++
	}
}

// Changed returns names of changed assets in natural order.
func (r *Report) Changed() []string {
	var names []string
	for _, ar := range r.Assets {
		if ar.Changed {
			names = append(names, ar.Asset)
		}
	}
	sort.Sort(natural.StringSlice(names))
	return names
}

// Asset returns report for asset name.
func (r *Report) Asset(name string) (AssetReport, bool) {
	for _, ar := range r.Assets {
		if ar.Asset == name {
			return ar, true
		}
	}
	return AssetReport{}, false
}

// Skipped returns all skipped entries grouped by subject, each with list of
// assets where it was skipped.
func (r *Report) Skipped() []SkipSummary {
	bySubject := make(map[string]*SkipSummary)
	for _, ar := range r.Assets {
		for _, e := range ar.Entries {
			if e.Action != ActionSkipped {
				continue
			}
			key := e.Subject() + "\x00" + e.Detail
			ss, ok := bySubject[key]
			if !ok {
				ss = &SkipSummary{Entry: e}
				bySubject[key] = ss
			}
			ss.SkippedIn = append(ss.SkippedIn, ar.Asset)
		}
	}
	res := make([]SkipSummary, 0, len(bySubject))
	for _, ss := range bySubject {
		sort.Sort(natural.StringSlice(ss.SkippedIn))
		res = append(res, *ss)
	}
	slices.SortFunc(res, func(a, b SkipSummary) int {
		return cmp.Or(
			naturalCompare(a.Entry.Subject(), b.Entry.Subject()),
			strings.Compare(a.Entry.Detail, b.Entry.Detail),
		)
	})
	return res
}

// SkipSummary is skipped entry with assets it was skipped in.
type SkipSummary struct {
	Entry     Entry
	SkippedIn []string
}

// MultiAssetTouches returns selector properties which were matched in more
// than one asset, values are asset names in natural order.
func (r *Report) MultiAssetTouches() map[overrides.Key][]string {
	touched := make(map[overrides.Key][]string)
	for _, ar := range r.Assets {
		for _, e := range ar.Entries {
			if e.Scope != ScopeSelector || (e.Action != ActionUpdated && e.Action != ActionUnchanged) {
				continue
			}
			key := overrides.Key{Selector: e.Name, Property: e.Property}
			touched[key] = appendUnique(touched[key], ar.Asset)
		}
	}
	for k, assets := range touched {
		if len(assets) < 2 {
			delete(touched, k)
			continue
		}
		sort.Sort(natural.StringSlice(assets))
	}
	return touched
}

// Summary returns human readable lines describing the run.
func (r *Report) Summary() []string {
	c := r.Counts
	lines := []string{
		fmt.Sprintf("variables: %d updated, %d added, %d resolved, %d skipped",
			c.VarsUpdated, c.VarsAdded, c.VarsResolved, c.VarsSkipped),
		fmt.Sprintf("selectors: %d updated, %d added, %d skipped",
			c.SelectorsUpdated, c.SelectorsAdded, c.SelectorsSkipped),
	}
	if changed := r.Changed(); len(changed) > 0 {
		lines = append(lines, "changed assets: "+strings.Join(changed, ", "))
	}
	for _, ss := range r.Skipped() {
		lines = append(lines, fmt.Sprintf("skipped %s in %s: %s",
			ss.Entry.Subject(), strings.Join(ss.SkippedIn, ", "), ss.Entry.Detail))
	}
	touches := r.MultiAssetTouches()
	keys := make([]overrides.Key, 0, len(touches))
	for k := range touches {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s { %s } touched %d assets: %s",
			k.Selector, k.Property, len(touches[k]), strings.Join(touches[k], ", ")))
	}
	return lines
}

func sortKeys(keys []overrides.Key) {
	slices.SortFunc(keys, func(a, b overrides.Key) int {
		return cmp.Or(naturalCompare(a.Selector, b.Selector), strings.Compare(a.Property, b.Property))
	})
}

func naturalCompare(a, b string) int {
	switch {
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	}
	return 0
}
