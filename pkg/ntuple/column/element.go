// Package column provides the typed column streams that fields map onto: the
// on-disk element type set, the pack/unpack codecs (bit packing, byte-split
// encoding, delta encoding for index columns, half-precision floats), column
// representation sets, and the per-column append/read wrapper used by fields.
package column

import (
	"github.com/ajitpratap0/quasar/pkg/errors"
)

// ElementType identifies the on-disk encoding of one column element.
type ElementType int

const (
	ElementUnknown ElementType = iota
	ElementBit
	ElementInt8
	ElementUInt8
	ElementInt16
	ElementUInt16
	ElementInt32
	ElementUInt32
	ElementInt64
	ElementUInt64
	ElementReal16
	ElementReal32
	ElementReal64
	ElementIndex32
	ElementIndex64
	ElementSplitIndex32
	ElementSplitIndex64
	ElementSwitch
	ElementSplitInt16
	ElementSplitUInt16
	ElementSplitInt32
	ElementSplitUInt32
	ElementSplitInt64
	ElementSplitUInt64
	ElementSplitReal16
	ElementSplitReal32
	ElementSplitReal64
)

type elementInfo struct {
	name     string
	packed   int // on-disk bytes per element
	unpacked int // canonical in-memory bytes per element
}

var elementInfos = map[ElementType]elementInfo{
	ElementBit:          {"bit", 1, 1},
	ElementInt8:         {"int8", 1, 1},
	ElementUInt8:        {"uint8", 1, 1},
	ElementInt16:        {"int16", 2, 2},
	ElementUInt16:       {"uint16", 2, 2},
	ElementInt32:        {"int32", 4, 4},
	ElementUInt32:       {"uint32", 4, 4},
	ElementInt64:        {"int64", 8, 8},
	ElementUInt64:       {"uint64", 8, 8},
	ElementReal16:       {"real16", 2, 4},
	ElementReal32:       {"real32", 4, 4},
	ElementReal64:       {"real64", 8, 8},
	ElementIndex32:      {"index32", 4, 8},
	ElementIndex64:      {"index64", 8, 8},
	ElementSplitIndex32: {"splitindex32", 4, 8},
	ElementSplitIndex64: {"splitindex64", 8, 8},
	ElementSwitch:       {"switch", 12, 16},
	ElementSplitInt16:   {"splitint16", 2, 2},
	ElementSplitUInt16:  {"splituint16", 2, 2},
	ElementSplitInt32:   {"splitint32", 4, 4},
	ElementSplitUInt32:  {"splituint32", 4, 4},
	ElementSplitInt64:   {"splitint64", 8, 8},
	ElementSplitUInt64:  {"splituint64", 8, 8},
	ElementSplitReal16:  {"splitreal16", 2, 4},
	ElementSplitReal32:  {"splitreal32", 4, 4},
	ElementSplitReal64:  {"splitreal64", 8, 8},
}

// plainCounterparts maps every split-encoded element to its unencoded
// equivalent, used when compression or split encoding is disabled.
var plainCounterparts = map[ElementType]ElementType{
	ElementSplitIndex32: ElementIndex32,
	ElementSplitIndex64: ElementIndex64,
	ElementSplitInt16:   ElementInt16,
	ElementSplitUInt16:  ElementUInt16,
	ElementSplitInt32:   ElementInt32,
	ElementSplitUInt32:  ElementUInt32,
	ElementSplitInt64:   ElementInt64,
	ElementSplitUInt64:  ElementUInt64,
	ElementSplitReal16:  ElementReal16,
	ElementSplitReal32:  ElementReal32,
	ElementSplitReal64:  ElementReal64,
}

func (e ElementType) String() string {
	if info, ok := elementInfos[e]; ok {
		return info.name
	}
	return "unknown"
}

// PackedSize returns the on-disk bytes of one element.
func (e ElementType) PackedSize() int { return elementInfos[e].packed }

// UnpackedSize returns the canonical in-memory bytes of one element.
func (e ElementType) UnpackedSize() int { return elementInfos[e].unpacked }

// IsSplit reports whether the element uses byte-split encoding.
func (e ElementType) IsSplit() bool {
	_, ok := plainCounterparts[e]
	return ok
}

// PlainCounterpart returns the unencoded equivalent of a split element, or the
// element itself if it is already plain.
func (e ElementType) PlainCounterpart() ElementType {
	if plain, ok := plainCounterparts[e]; ok {
		return plain
	}
	return e
}

// ElementTypeFromName resolves a wire name back to an element type.
func ElementTypeFromName(name string) (ElementType, error) {
	for e, info := range elementInfos {
		if info.name == name {
			return e, nil
		}
	}
	return ElementUnknown, errors.Newf(errors.ErrorTypeSchemaMismatch,
		"unknown column element type %q", name)
}

// Switch is the canonical in-memory form of a switch column element: the
// cluster-local item index of the active variant alternative and its 1-based
// tag. Tag 0 marks a valueless variant.
type Switch struct {
	Index uint64
	Tag   uint32
	_     [4]byte
}

// Representation is one physical encoding of a field: an ordered sequence of
// column element types.
type Representation []ElementType

// Equal reports element-wise equality.
func (r Representation) Equal(other Representation) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Plain returns the representation with every split element replaced by its
// unencoded counterpart.
func (r Representation) Plain() Representation {
	out := make(Representation, len(r))
	for i, e := range r {
		out[i] = e.PlainCounterpart()
	}
	return out
}

// RepresentationSet declares the column representations of a field. The first
// serialization entry is the default for writing. Every serialization entry is
// implicitly part of the deserialization union; extra entries are accepted for
// reading only.
type RepresentationSet struct {
	serialization   []Representation
	deserialization []Representation
}

// NewRepresentationSet builds a set from serialization types and extra
// deserialization-only types.
func NewRepresentationSet(serialization, deserializationExtra []Representation) RepresentationSet {
	all := make([]Representation, 0, len(serialization)+len(deserializationExtra))
	all = append(all, serialization...)
	all = append(all, deserializationExtra...)
	return RepresentationSet{serialization: serialization, deserialization: all}
}

// SerializationDefault returns the default representation for writing.
func (s RepresentationSet) SerializationDefault() Representation {
	return s.serialization[0]
}

// Serialization returns all representations valid for writing.
func (s RepresentationSet) Serialization() []Representation { return s.serialization }

// HasSerialization reports whether rep is declared for writing.
func (s RepresentationSet) HasSerialization(rep Representation) bool {
	for _, r := range s.serialization {
		if r.Equal(rep) {
			return true
		}
	}
	return false
}

// MatchDeserialization returns the declared representation matching the
// on-disk element types, searching the serialization set and the extra
// deserialization-only entries.
func (s RepresentationSet) MatchDeserialization(onDisk Representation) (Representation, bool) {
	for _, r := range s.deserialization {
		if r.Equal(onDisk) {
			return r, true
		}
	}
	return nil, false
}
