package patch

import (
	"fmt"

	"fmskin/uss"
)

// assignment is parsed override value: either a literal or a reference to
// another variable with optional literal fallback.
type assignment struct {
	value    uss.Value
	ref      string
	fallback *uss.Value
}

func (a assignment) isReference() bool {
	return a.ref != ""
}

func (a assignment) String() string {
	if !a.isReference() {
		return a.value.String()
	}
	r := uss.Reference{Name: a.ref}
	if a.fallback != nil {
		r.Fallback = a.fallback.String()
	}
	return r.String()
}

// parseAssignment recognizes var() references, everything else and
// reference fallbacks go through parse.
func parseAssignment(raw string, parse func(string) (uss.Value, error)) (assignment, error) {
	ref, ok, err := uss.ParseReference(raw)
	if err != nil {
		return assignment{}, err
	}
	if !ok {
		v, err := parse(raw)
		if err != nil {
			return assignment{}, err
		}
		return assignment{value: v}, nil
	}
	a := assignment{ref: ref.Name}
	if ref.Fallback != "" {
		v, err := parse(ref.Fallback)
		if err != nil {
			return assignment{}, fmt.Errorf("fallback of %s: %w", ref.Name, err)
		}
		a.fallback = &v
	}
	return a, nil
}

// handles stores a in fresh slots and returns property value list for it.
func (ap *assetPatch) handles(a assignment) []uss.Handle {
	if !a.isReference() {
		return []uss.Handle{ap.sheet.Append(a.value)}
	}
	values := []uss.Handle{ap.sheet.AppendReference(a.ref)}
	if a.fallback != nil {
		values = append(values, ap.sheet.Append(*a.fallback))
	}
	return values
}

// assign makes property hold a. Literal slot is overwritten in place when
// possible, references always go to new slots. Reports whether anything
// changed.
func (ap *assetPatch) assign(prop *uss.Property, a assignment) bool {
	if !a.isReference() {
		return ap.setSingle(prop, a.value)
	}
	if ap.holdsReference(prop.Values, a) {
		return false
	}
	prop.Values = ap.handles(a)
	return true
}

func (ap *assetPatch) holdsReference(values []uss.Handle, a assignment) bool {
	if len(values) == 0 {
		return false
	}
	if name, ok := ap.sheet.ReferenceName(values[0]); !ok || name != a.ref {
		return false
	}
	if a.fallback == nil {
		return len(values) == 1
	}
	if len(values) != 2 {
		return false
	}
	v, ok := ap.sheet.Literal(values[1])
	return ok && v == *a.fallback
}

// literal returns value a stands for inside the asset: the literal itself,
// resolved reference, or reference fallback.
func (ap *assetPatch) literal(name string, a assignment) (uss.Value, bool) {
	if !a.isReference() {
		return a.value, true
	}
	if v, err := ap.resolve(a.ref, map[string]bool{name: true}); err == nil {
		return v, true
	}
	if a.fallback != nil {
		return *a.fallback, true
	}
	return uss.Value{}, false
}
