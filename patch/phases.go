package patch

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/zap"

	"fmskin/overrides"
	"fmskin/uss"
)

// assetPatch is state of a single asset run, never shared between workers.
type assetPatch struct {
	*Patcher
	sheet *uss.Sheet
	eff   overrides.Effective
	rep   AssetReport
	log   *zap.Logger

	matchedVars  map[string]bool
	matchedPairs map[overrides.Key]bool
}

type parsedProperty struct {
	name  string
	value assignment
}

// resolveDefinitions replaces variable definitions whose reference chain
// reaches an overridden variable with literal values, override values win
// over values defined in the asset. Chains not touched by overrides stay
// references, broken ones are reported. Definitions overridden themselves are
// left to updateExisting. Runs only when there are variable overrides for
// the asset.
func (ap *assetPatch) resolveDefinitions() {
	if len(ap.eff.Vars) == 0 {
		return
	}
	for ri := range ap.sheet.Rules {
		for pi := range ap.sheet.Rules[ri].Properties {
			prop := &ap.sheet.Rules[ri].Properties[pi]
			if !prop.IsVariable() || len(prop.Values) == 0 {
				continue
			}
			ref, ok := ap.sheet.ReferenceName(prop.Values[0])
			if !ok {
				continue
			}

			if _, ok := ap.eff.Vars[prop.Name]; ok {
				continue
			}

			entry := Entry{Scope: ScopeVariable, Name: prop.Name}
			touches, err := ap.chainTouches(prop.Name, ref)
			if err != nil {
				ap.skip(entry, err)
				continue
			}
			if !touches {
				continue
			}
			v, err := ap.resolve(ref, map[string]bool{prop.Name: true})
			if err != nil {
				ap.skip(entry, err)
				continue
			}
			prop.Values = []uss.Handle{ap.sheet.Append(v)}

			entry.Action, entry.Value, entry.Detail = ActionResolved, v.String(), "was var("+ref+")"
			ap.record(entry)
		}
	}
}

// chainTouches follows reference chain of variable name starting at ref and
// reports whether any variable on it is overridden. Chains ending in a cycle
// or undefined variable before reaching an override are errors.
func (ap *assetPatch) chainTouches(name, ref string) (bool, error) {
	seen := map[string]bool{name: true}
	for {
		if _, ok := ap.eff.Vars[ref]; ok {
			return true, nil
		}
		if seen[ref] {
			return false, fmt.Errorf("%w: cycle through %s", ErrUnresolvableReference, ref)
		}
		seen[ref] = true

		defs := ap.sheet.Definitions(ref)
		if len(defs) == 0 {
			return false, fmt.Errorf("%w: %s is not defined", ErrUnresolvableReference, ref)
		}
		values := ap.sheet.Prop(defs[len(defs)-1]).Values
		if len(values) == 0 {
			return false, fmt.Errorf("%w: %s has no value", ErrUnresolvableReference, ref)
		}
		next, ok := ap.sheet.ReferenceName(values[0])
		if !ok {
			return false, nil
		}
		ref = next
	}
}

// resolve follows reference chain to a literal, consulting overrides first.
func (ap *assetPatch) resolve(name string, seen map[string]bool) (uss.Value, error) {
	if seen[name] {
		return uss.Value{}, fmt.Errorf("%w: cycle through %s", ErrUnresolvableReference, name)
	}
	seen[name] = true

	if raw, ok := ap.eff.Vars[name]; ok {
		a, err := ap.parseVar(name, raw)
		if err != nil || !a.isReference() {
			return a.value, err
		}
		v, err := ap.resolve(a.ref, seen)
		if err != nil && a.fallback != nil {
			return *a.fallback, nil
		}
		return v, err
	}
	defs := ap.sheet.Definitions(name)
	if len(defs) == 0 {
		return uss.Value{}, fmt.Errorf("%w: %s is not defined", ErrUnresolvableReference, name)
	}
	values := ap.sheet.Prop(defs[len(defs)-1]).Values
	if len(values) == 0 {
		return uss.Value{}, fmt.Errorf("%w: %s has no value", ErrUnresolvableReference, name)
	}
	if v, ok := ap.sheet.Literal(values[0]); ok {
		return v, nil
	}
	if ref, ok := ap.sheet.ReferenceName(values[0]); ok {
		return ap.resolve(ref, seen)
	}
	return uss.Value{}, fmt.Errorf("%w: %s has invalid value handle", ErrUnresolvableReference, name)
}

// literalKind returns kind of literal variable name eventually resolves to
// inside the asset.
func (ap *assetPatch) literalKind(name string) uss.Kind {
	seen := make(map[string]bool)
	for !seen[name] {
		seen[name] = true
		defs := ap.sheet.Definitions(name)
		if len(defs) == 0 {
			break
		}
		values := ap.sheet.Prop(defs[len(defs)-1]).Values
		if len(values) == 0 {
			break
		}
		if v, ok := ap.sheet.Literal(values[0]); ok {
			return v.Kind
		}
		ref, ok := ap.sheet.ReferenceName(values[0])
		if !ok {
			break
		}
		name = ref
	}
	for _, u := range ap.sheet.Usages(name) {
		if fb, ok := ap.sheet.Fallback(u); ok {
			v, _ := ap.sheet.Literal(fb)
			return v.Kind
		}
	}
	return uss.KindUnknown
}

// parseVar parses variable value using kind of value already stored as hint.
// Value of a different kind is still accepted when syntax is unambiguous.
func (ap *assetPatch) parseVar(name, raw string) (assignment, error) {
	hint := ap.literalKind(name)
	a, err := parseAssignment(raw, func(text string) (uss.Value, error) {
		v, err := uss.ParseVariable(text, hint)
		if err != nil && hint != uss.KindUnknown {
			if inferred, ierr := uss.ParseVariable(text, uss.KindUnknown); ierr == nil {
				return inferred, nil
			}
		}
		return v, err
	})
	if err == nil && a.ref == name {
		return assignment{}, fmt.Errorf("%w: %s refers to itself", ErrUnresolvableReference, name)
	}
	return a, err
}

// updateExisting overwrites slots of variables and selector rules the asset
// already has.
func (ap *assetPatch) updateExisting() {
	for _, name := range ap.varNames() {
		defs := ap.sheet.Definitions(name)
		usages := ap.sheet.Usages(name)
		if len(defs) == 0 && len(usages) == 0 {
			continue
		}
		ap.matchedVars[name] = true

		entry := Entry{Scope: ScopeVariable, Name: name}
		a, err := ap.parseVar(name, ap.eff.Vars[name])
		if err != nil {
			ap.skip(entry, err)
			continue
		}

		changed := false
		for _, loc := range defs {
			if ap.assign(ap.sheet.Prop(loc), a) {
				changed = true
			}
		}
		v, ok := ap.literal(name, a)
		if !ok {
			usages = nil
		}
		// reverse order keeps value positions valid when fallback is inserted
		for i := len(usages) - 1; i >= 0; i-- {
			u := usages[i]
			prop := ap.sheet.Prop(u.Location)
			if fb, ok := ap.sheet.Fallback(u); ok {
				if h, c := ap.sheet.Encode(fb, v); c {
					prop.Values[u.Value+1] = h
					changed = true
				}
				continue
			}
			if len(defs) == 0 {
				prop.Values = slices.Insert(prop.Values, u.Value+1, ap.sheet.Append(v))
				changed = true
			}
		}

		entry.Action, entry.Value = ActionUnchanged, a.String()
		if changed {
			entry.Action = ActionUpdated
		}
		ap.record(entry)
	}

	for _, key := range ap.selectorKeys() {
		if len(ap.sheet.RulesFor(key.Selector)) == 0 {
			continue
		}
		ap.matchedPairs[key] = true
		ap.applySelector(key, false)
	}
}

// placeVariables adds variables no asset has yet.
func (ap *assetPatch) placeVariables() {
	target := -1
	for _, name := range ap.varNames() {
		if ap.matchedVars[name] {
			continue
		}
		entry := Entry{Scope: ScopeVariable, Name: name}
		if !ap.decide(&entry, ap.eff.VarTargeted(name), ap.registry.VariableAssets(name), ap.opts.PrimaryVariableAsset) {
			continue
		}
		a, err := ap.parseVar(name, ap.eff.Vars[name])
		if err != nil {
			ap.skip(entry, err)
			continue
		}
		if target < 0 {
			if ri, ok := ap.sheet.VariablesRule(); ok {
				target = ri
			} else {
				target = ap.sheet.AddRule(":root")
			}
		}
		ap.sheet.AddProperty(target, name, ap.handles(a)...)

		entry.Action, entry.Value = ActionAdded, a.String()
		ap.record(entry)
	}
}

// placeSelectors adds selector properties whose selector the asset lacks.
func (ap *assetPatch) placeSelectors() {
	for _, key := range ap.selectorKeys() {
		if ap.matchedPairs[key] {
			continue
		}
		entry := Entry{Scope: ScopeSelector, Name: key.Selector, Property: key.Property}
		if !ap.decide(&entry, ap.eff.SelectorTargeted(key), ap.registry.SelectorAssets(key.Selector), ap.opts.PrimarySelectorAsset) {
			continue
		}
		ap.applySelector(key, true)
	}
}

// decide applies placement rule for new content: explicit targeting wins,
// then content living in another asset is left there, then primary asset
// takes it. Records skip entry and returns false when content stays out.
func (ap *assetPatch) decide(e *Entry, targeted bool, livesIn []string, primary string) bool {
	if targeted {
		return true
	}
	if elsewhere := others(livesIn, ap.sheet.Name); len(elsewhere) > 0 {
		e.Action, e.Reason = ActionSkipped, ReasonLivesElsewhere
		e.Detail, e.Assets = "lives in "+strings.Join(elsewhere, ", "), elsewhere
		ap.record(*e)
		return false
	}
	if sameAsset(ap.sheet.Name, primary) {
		return true
	}
	e.Action, e.Reason = ActionSkipped, ReasonAmbiguousTarget
	e.Detail = "not targeted, primary is " + primary
	ap.record(*e)
	return false
}

// applySelector writes selector override into every rule selected by it,
// creating rule when asset has none.
func (ap *assetPatch) applySelector(key overrides.Key, added bool) {
	parsed := ap.parseSelectorValue(key)
	if len(parsed) == 0 {
		return
	}

	rules := ap.sheet.IsolateRules(key.Selector)
	if len(rules) == 0 {
		rules = []int{ap.sheet.AddRule(key.Selector)}
	}

	for _, pp := range parsed {
		changed := false
		for _, ri := range rules {
			if loc, ok := findInRule(ap.sheet, ri, pp.name); ok {
				if ap.assign(ap.sheet.Prop(loc), pp.value) {
					changed = true
				}
				continue
			}
			ap.sheet.AddProperty(ri, pp.name, ap.handles(pp.value)...)
			changed = true
		}

		entry := Entry{Scope: ScopeSelector, Name: key.Selector, Property: pp.name, Value: pp.value.String()}
		switch {
		case added:
			entry.Action = ActionAdded
		case changed:
			entry.Action = ActionUpdated
		default:
			entry.Action = ActionUnchanged
		}
		ap.record(entry)
	}
}

// parseSelectorValue expands shorthand and parses every longhand, recording
// skip entries for those which cannot be encoded.
func (ap *assetPatch) parseSelectorValue(key overrides.Key) []parsedProperty {
	raw := ap.eff.Selectors[key]
	longhands, err := uss.Expand(key.Property, raw)
	if err != nil {
		ap.skip(Entry{Scope: ScopeSelector, Name: key.Selector, Property: key.Property}, err)
		return nil
	}
	res := make([]parsedProperty, 0, len(longhands))
	for _, lh := range longhands {
		entry := Entry{Scope: ScopeSelector, Name: key.Selector, Property: lh.Property}
		if uss.KindFor(lh.Property) == uss.KindUnknown {
			ap.skip(entry, fmt.Errorf("%w: %s", uss.ErrUnknownProperty, lh.Property))
			continue
		}
		a, err := parseAssignment(lh.Raw, func(text string) (uss.Value, error) {
			return uss.Parse(lh.Property, text)
		})
		if err != nil {
			ap.skip(entry, err)
			continue
		}
		res = append(res, parsedProperty{name: lh.Property, value: a})
	}
	return res
}

// setSingle makes property hold single literal value, overwriting existing
// literal slot when possible. Reports whether anything changed.
func (ap *assetPatch) setSingle(prop *uss.Property, v uss.Value) bool {
	var old uss.Handle
	if len(prop.Values) == 1 && prop.Values[0].IsLiteral() {
		old = prop.Values[0]
	}
	h, changed := ap.sheet.Encode(old, v)
	if changed || len(prop.Values) != 1 || prop.Values[0] != h {
		prop.Values = []uss.Handle{h}
		return true
	}
	return false
}

func findInRule(s *uss.Sheet, rule int, name string) (uss.Location, bool) {
	var (
		loc   uss.Location
		found bool
	)
	for pi, p := range s.Rules[rule].Properties {
		if p.Name == name {
			loc, found = uss.Location{Rule: rule, Property: pi}, true
		}
	}
	return loc, found
}

func (ap *assetPatch) skip(e Entry, err error) {
	e.Action = ActionSkipped
	e.Detail = err.Error()
	switch {
	case errors.Is(err, uss.ErrUnknownProperty):
		e.Reason = ReasonUnknownProperty
	case errors.Is(err, ErrUnresolvableReference):
		e.Reason = ReasonUnresolvable
	default:
		e.Reason = ReasonValueParse
	}
	ap.record(e)
}

func (ap *assetPatch) record(e Entry) {
	ap.rep.add(e)
	switch e.Reason {
	case ReasonUnknownProperty, ReasonValueParse, ReasonUnresolvable:
		ap.log.Warn("Override not applied", zap.String("override", e.Subject()), zap.String("reason", e.Detail))
	default:
		ap.log.Debug("Override", zap.Stringer("entry", e))
	}
}

func (ap *assetPatch) varNames() []string {
	names := make([]string, 0, len(ap.eff.Vars))
	for name := range ap.eff.Vars {
		names = append(names, name)
	}
	sort.Sort(natural.StringSlice(names))
	return names
}

func (ap *assetPatch) selectorKeys() []overrides.Key {
	keys := make([]overrides.Key, 0, len(ap.eff.Selectors))
	for k := range ap.eff.Selectors {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}
