package uss

import (
	"errors"
	"fmt"
)

// ErrSlotMismatch is returned when value cannot be stored in the slot a
// handle points at.
var ErrSlotMismatch = errors.New("slot does not match value")

// HandleTypeFor returns handle type value is stored under.
func HandleTypeFor(v Value) HandleType {
	switch v.Kind {
	case KindColor:
		return HandleColor
	case KindScalar:
		if v.Unit == UnitNone {
			return HandleFloat
		}
		return HandleDimension
	case KindKeyword:
		return HandleKeyword
	case KindResource:
		return HandleResource
	case KindUnknown:
	}
	return HandleNone
}

type array int

const (
	arrayNone array = iota
	arrayColors
	arrayFloats
	arrayDimensions
	arrayStrings
)

func (t HandleType) array() array {
	switch t {
	case HandleColor:
		return arrayColors
	case HandleFloat:
		return arrayFloats
	case HandleDimension:
		return arrayDimensions
	case HandleKeyword, HandleResource, HandleVariable:
		return arrayStrings
	default:
		return arrayNone
	}
}

func (s *Sheet) valid(h Handle) bool {
	if h.Index < 0 {
		return false
	}
	switch h.Type.array() {
	case arrayColors:
		return h.Index < len(s.Colors)
	case arrayFloats:
		return h.Index < len(s.Floats)
	case arrayDimensions:
		return h.Index < len(s.Dimensions)
	case arrayStrings:
		return h.Index < len(s.Strings)
	default:
		return false
	}
}

// Literal returns value stored at literal handle.
func (s *Sheet) Literal(h Handle) (Value, bool) {
	if !h.IsLiteral() || !s.valid(h) {
		return Value{}, false
	}
	switch h.Type {
	case HandleColor:
		return ColorValue(s.Colors[h.Index]), true
	case HandleFloat:
		return ScalarValue(s.Floats[h.Index], UnitNone), true
	case HandleDimension:
		d := s.Dimensions[h.Index]
		return ScalarValue(d.Value, d.Unit), true
	case HandleKeyword:
		return KeywordValue(s.Strings[h.Index]), true
	case HandleResource:
		return ResourceValue(s.Strings[h.Index]), true
	}
	return Value{}, false
}

// ReferenceName returns variable name a reference handle points at.
func (s *Sheet) ReferenceName(h Handle) (string, bool) {
	if h.Type != HandleVariable || !s.valid(h) {
		return "", false
	}
	return s.Strings[h.Index], true
}

// Append stores value in a new slot and returns handle to it.
func (s *Sheet) Append(v Value) Handle {
	switch HandleTypeFor(v) {
	case HandleColor:
		s.Colors = append(s.Colors, v.Color)
		return Handle{Type: HandleColor, Index: len(s.Colors) - 1}
	case HandleFloat:
		s.Floats = append(s.Floats, v.Number)
		return Handle{Type: HandleFloat, Index: len(s.Floats) - 1}
	case HandleDimension:
		s.Dimensions = append(s.Dimensions, Dimension{Value: v.Number, Unit: v.Unit})
		return Handle{Type: HandleDimension, Index: len(s.Dimensions) - 1}
	case HandleKeyword:
		s.Strings = append(s.Strings, v.Text)
		return Handle{Type: HandleKeyword, Index: len(s.Strings) - 1}
	case HandleResource:
		s.Strings = append(s.Strings, v.Text)
		return Handle{Type: HandleResource, Index: len(s.Strings) - 1}
	}
	return Handle{}
}

// AppendReference stores variable name in a new string slot and returns
// reference handle.
func (s *Sheet) AppendReference(name string) Handle {
	s.Strings = append(s.Strings, name)
	return Handle{Type: HandleVariable, Index: len(s.Strings) - 1}
}

// Overwrite writes value into the slot h points at. Handle type must match
// the type value would be stored under. Reports whether stored value changed.
func (s *Sheet) Overwrite(h Handle, v Value) (bool, error) {
	if !s.valid(h) {
		return false, fmt.Errorf("%w: %s slot %d out of range", ErrSlotMismatch, h.Type, h.Index)
	}
	if HandleTypeFor(v) != h.Type {
		return false, fmt.Errorf("%w: %s value into %s slot", ErrSlotMismatch, v.Kind, h.Type)
	}
	if old, _ := s.Literal(h); old == v {
		return false, nil
	}
	switch h.Type {
	case HandleColor:
		s.Colors[h.Index] = v.Color
	case HandleFloat:
		s.Floats[h.Index] = v.Number
	case HandleDimension:
		s.Dimensions[h.Index] = Dimension{Value: v.Number, Unit: v.Unit}
	case HandleKeyword, HandleResource:
		s.Strings[h.Index] = v.Text
	}
	return true, nil
}

// Shared reports whether slot h points at is referenced by more than one
// handle in the sheet.
func (s *Sheet) Shared(h Handle) bool {
	arr, count := h.Type.array(), 0
	for _, r := range s.Rules {
		for _, p := range r.Properties {
			for _, v := range p.Values {
				if v.Index == h.Index && v.Type.array() == arr {
					count++
				}
			}
		}
	}
	return count > 1
}

// Encode stores value for handle h. Slot is overwritten in place when it is
// compatible and not shared with other handles, otherwise value goes to a new
// slot. Returns handle holding the value and whether anything changed.
func (s *Sheet) Encode(h Handle, v Value) (Handle, bool) {
	if s.valid(h) && HandleTypeFor(v) == h.Type && !s.Shared(h) {
		changed, err := s.Overwrite(h, v)
		if err == nil {
			return h, changed
		}
	}
	if old, ok := s.Literal(h); ok && old == v {
		return h, false
	}
	return s.Append(v), true
}
