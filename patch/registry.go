package patch

import (
	"slices"

	"golang.org/x/text/cases"

	"fmskin/overrides"
	"fmskin/uss"
)

// Index lists names a single asset contains. It is what registry is built
// from and what scan cache keeps between runs.
type Index struct {
	Asset     string          `ion:"asset"`
	Variables []string        `ion:"variables"`
	Selectors []string        `ion:"selectors"`
	Pairs     []overrides.Key `ion:"pairs"`
}

// IndexSheet scans sheet.
func IndexSheet(s *uss.Sheet) Index {
	idx := Index{
		Asset:     s.Name,
		Variables: s.VariableNames(),
		Selectors: s.SelectorTexts(),
	}
	for ri, r := range s.Rules {
		for _, sel := range s.SelectorsOf(ri) {
			for _, p := range r.Properties {
				if p.IsVariable() {
					continue
				}
				key := overrides.Key{Selector: sel, Property: p.Name}
				if !slices.Contains(idx.Pairs, key) {
					idx.Pairs = append(idx.Pairs, key)
				}
			}
		}
	}
	return idx
}

// Registry maps names to assets containing them across the whole bundle. It
// is built before any asset is patched and is read only afterwards.
type Registry struct {
	vars      map[string][]string
	selectors map[string][]string
	pairs     map[overrides.Key][]string
}

// NewRegistry builds registry from per-asset indexes.
func NewRegistry(indexes []Index) *Registry {
	r := &Registry{
		vars:      make(map[string][]string),
		selectors: make(map[string][]string),
		pairs:     make(map[overrides.Key][]string),
	}
	for _, idx := range indexes {
		for _, v := range idx.Variables {
			r.vars[v] = appendUnique(r.vars[v], idx.Asset)
		}
		for _, s := range idx.Selectors {
			s = uss.NormalizeSelector(s)
			r.selectors[s] = appendUnique(r.selectors[s], idx.Asset)
		}
		for _, k := range idx.Pairs {
			k.Selector = uss.NormalizeSelector(k.Selector)
			r.pairs[k] = appendUnique(r.pairs[k], idx.Asset)
		}
	}
	return r
}

// RegistryFromSheets scans sheets and builds registry.
func RegistryFromSheets(sheets []*uss.Sheet) *Registry {
	indexes := make([]Index, 0, len(sheets))
	for _, s := range sheets {
		indexes = append(indexes, IndexSheet(s))
	}
	return NewRegistry(indexes)
}

// VariableAssets returns assets defining variable name.
func (r *Registry) VariableAssets(name string) []string {
	return r.vars[name]
}

// SelectorAssets returns assets having rule for selector.
func (r *Registry) SelectorAssets(selector string) []string {
	return r.selectors[uss.NormalizeSelector(selector)]
}

// PropertyAssets returns assets where selector rule has property.
func (r *Registry) PropertyAssets(key overrides.Key) []string {
	key.Selector = uss.NormalizeSelector(key.Selector)
	return r.pairs[key]
}

// others returns assets from list other than asset.
func others(assets []string, asset string) []string {
	var res []string
	for _, a := range assets {
		if !sameAsset(a, asset) {
			res = append(res, a)
		}
	}
	return res
}

func sameAsset(a, b string) bool {
	return cases.Fold().String(a) == cases.Fold().String(b)
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
