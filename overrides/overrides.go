// Package overrides holds user supplied stylesheet overrides and computes
// the effective set applying to a single stylesheet asset.
package overrides

import (
	"maps"
	"slices"

	"golang.org/x/text/cases"
)

// Wildcard target applies a source to every asset without counting as
// explicit targeting.
const Wildcard = "*"

// Key addresses property of a selector rule.
type Key struct {
	Selector string `ion:"selector"`
	Property string `ion:"property"`
}

// Source is a single override file.
type Source struct {
	Name      string            // file stem
	Path      string            // last file contributing to the source
	Vars      map[string]string // variable name -> raw value
	Selectors map[Key]string    // (selector, property) -> raw value
}

// NewSource returns empty source.
func NewSource(name string) *Source {
	return &Source{
		Name:      name,
		Vars:      make(map[string]string),
		Selectors: make(map[Key]string),
	}
}

// Empty reports whether source carries no overrides.
func (s *Source) Empty() bool {
	return len(s.Vars) == 0 && len(s.Selectors) == 0
}

// merge overlays other on top of s.
func (s *Source) merge(other *Source) {
	maps.Copy(s.Vars, other.Vars)
	maps.Copy(s.Selectors, other.Selectors)
}

// Target maps source stem to asset names.
type Target struct {
	Source string
	Assets []string
}

// Set is complete override set as collected from disk.
type Set struct {
	Sources []*Source // collection order
	Mapping []Target  // mapping file order
}

// Source returns source by stem, case insensitive.
func (s *Set) Source(name string) *Source {
	key := fold(name)
	for _, src := range s.Sources {
		if fold(src.Name) == key {
			return src
		}
	}
	return nil
}

// Effective is override result for a single asset.
type Effective struct {
	Vars               map[string]string
	Selectors          map[Key]string
	ExplicitlyTargeted bool
	Sources            []string // names of sources applied on top of global tier, in order

	targetedVars      map[string]bool
	targetedSelectors map[Key]bool
}

// VarTargeted reports whether variable value comes from a source targeting
// the asset by name or stem.
func (e Effective) VarTargeted(name string) bool {
	return e.targetedVars[name]
}

// SelectorTargeted reports whether selector property value comes from a
// source targeting the asset by name or stem.
func (e Effective) SelectorTargeted(key Key) bool {
	return e.targetedSelectors[key]
}

// Empty reports whether there is nothing to apply.
func (e Effective) Empty() bool {
	return len(e.Vars) == 0 && len(e.Selectors) == 0
}

// Resolver computes effective overrides per asset. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	global   *Source
	mapped   []mappedSource
	byStem   map[string][]*Source
	explicit map[string]bool // folded asset names with at least one targeted source
}

type mappedSource struct {
	src      *Source
	assets   map[string]bool // folded asset names
	wildcard bool
}

// NewResolver prepares resolver for set. Assets are names of every stylesheet
// asset in the bundle, sources whose stem matches one of them are targeted to
// it. Sources neither mapped nor matching an asset are global.
func NewResolver(set *Set, assets []string) *Resolver {
	r := &Resolver{
		global:   NewSource("global"),
		byStem:   make(map[string][]*Source),
		explicit: make(map[string]bool),
	}

	known := make(map[string]bool, len(assets))
	for _, a := range assets {
		known[fold(a)] = true
	}

	mapped := make(map[string]bool)
	for _, t := range set.Mapping {
		src := set.Source(t.Source)
		if src == nil {
			continue
		}
		ms := mappedSource{src: src, assets: make(map[string]bool)}
		for _, a := range t.Assets {
			if a == Wildcard {
				ms.wildcard = true
				continue
			}
			ms.assets[fold(a)] = true
			r.explicit[fold(a)] = true
		}
		mapped[fold(src.Name)] = true
		r.mapped = append(r.mapped, ms)
	}

	for _, src := range set.Sources {
		stem := fold(src.Name)
		switch {
		case mapped[stem]:
		case known[stem]:
			r.byStem[stem] = append(r.byStem[stem], src)
			r.explicit[stem] = true
		default:
			r.global.merge(src)
		}
	}
	return r
}

// Effective returns overrides for asset: global tier first, then sources
// mapped to the asset in mapping order, then stem matched sources. Later
// sources win on collision.
func (r *Resolver) Effective(asset string) Effective {
	key := fold(asset)
	eff := Effective{
		Vars:               maps.Clone(r.global.Vars),
		Selectors:          maps.Clone(r.global.Selectors),
		ExplicitlyTargeted: r.explicit[key],
		targetedVars:       make(map[string]bool),
		targetedSelectors:  make(map[Key]bool),
	}
	for _, ms := range r.mapped {
		explicit := ms.assets[key]
		if !ms.wildcard && !explicit {
			continue
		}
		eff.overlay(ms.src, explicit)
	}
	for _, src := range r.byStem[key] {
		eff.overlay(src, true)
	}
	return eff
}

// overlay applies src on top of e. Keys coming from a source applied without
// explicit targeting lose their targeted mark.
func (e *Effective) overlay(src *Source, explicit bool) {
	for name, v := range src.Vars {
		e.Vars[name] = v
		e.targetedVars[name] = explicit
	}
	for k, v := range src.Selectors {
		e.Selectors[k] = v
		e.targetedSelectors[k] = explicit
	}
	if !slices.Contains(e.Sources, src.Name) {
		e.Sources = append(e.Sources, src.Name)
	}
}

// fold returns case folded name. Caser keeps state so new one is made for
// every call.
func fold(s string) string {
	return cases.Fold().String(s)
}
