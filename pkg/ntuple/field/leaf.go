package field

import (
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// reps is a shorthand for building representation sets.
func reps(serialization []column.Representation, extra ...column.Representation) column.RepresentationSet {
	return column.NewRepresentationSet(serialization, extra)
}

func rep(elems ...column.ElementType) column.Representation { return elems }

// leafImpl is the shared impl of primitive leaves: one mappable column, the
// default representation split-encoded where one exists.
type leafImpl struct {
	baseImpl
	set column.RepresentationSet
}

func (l *leafImpl) cloneImpl() kindImpl                           { return &leafImpl{set: l.set} }
func (l *leafImpl) representations() column.RepresentationSet     { return l.set }
func (l *leafImpl) readGlobal(f *Field, idx int64, p unsafe.Pointer) error {
	return f.principal.Read(idx, p)
}
func (l *leafImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	return f.principal.ReadLocal(idx, p)
}

// leafSpec ties a primitive type name to its Go type and representations.
var leafSpecs = map[string]struct {
	goType reflect.Type
	set    func() column.RepresentationSet
}{
	"bool": {reflect.TypeOf(false), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementBit)})
	}},
	"int8": {reflect.TypeOf(int8(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementInt8)})
	}},
	"uint8": {reflect.TypeOf(uint8(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementUInt8)})
	}},
	"int16": {reflect.TypeOf(int16(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitInt16), rep(column.ElementInt16)})
	}},
	"uint16": {reflect.TypeOf(uint16(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitUInt16), rep(column.ElementUInt16)})
	}},
	"int32": {reflect.TypeOf(int32(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitInt32), rep(column.ElementInt32)})
	}},
	"uint32": {reflect.TypeOf(uint32(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitUInt32), rep(column.ElementUInt32)})
	}},
	"int64": {reflect.TypeOf(int64(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitInt64), rep(column.ElementInt64)})
	}},
	"uint64": {reflect.TypeOf(uint64(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitUInt64), rep(column.ElementUInt64)})
	}},
	"float32": {reflect.TypeOf(float32(0)), func() column.RepresentationSet {
		return reps(
			[]column.Representation{rep(column.ElementSplitReal32), rep(column.ElementReal32)},
			rep(column.ElementSplitReal16), rep(column.ElementReal16))
	}},
	"float64": {reflect.TypeOf(float64(0)), func() column.RepresentationSet {
		return reps([]column.Representation{rep(column.ElementSplitReal64), rep(column.ElementReal64)})
	}},
	// index64 is the cluster-size counter leaf; its canonical in-memory form
	// is a uint64 and 32-bit index columns widen on read.
	"index64": {reflect.TypeOf(uint64(0)), func() column.RepresentationSet {
		return reps(
			[]column.Representation{rep(column.ElementSplitIndex64), rep(column.ElementIndex64)},
			rep(column.ElementSplitIndex32), rep(column.ElementIndex32))
	}},
}

// newLeafField builds a primitive leaf; callers guarantee typeName is in
// leafSpecs.
func newLeafField(name, typeName string, reg *typereg.Registry) *Field {
	spec := leafSpecs[typeName]
	f := newField(name, typeName, descriptor.StructureLeaf, spec.goType, reg,
		&leafImpl{set: spec.set()})
	f.traits = TraitTrivialType | TraitMappable
	f.simple = true
	return f
}

// stringImpl maps a string onto an offset column plus a byte payload column.
type stringImpl struct {
	baseImpl
	nWritten uint64
}

func (s *stringImpl) cloneImpl() kindImpl { return &stringImpl{} }

func (s *stringImpl) representations() column.RepresentationSet {
	return reps(
		[]column.Representation{
			rep(column.ElementSplitIndex64, column.ElementUInt8),
			rep(column.ElementIndex64, column.ElementUInt8),
		},
		rep(column.ElementSplitIndex32, column.ElementUInt8),
		rep(column.ElementIndex32, column.ElementUInt8))
}

func (s *stringImpl) destroy(_ *Field, p unsafe.Pointer) {
	*(*string)(p) = ""
}

func (s *stringImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	str := *(*string)(p)
	if len(str) > 0 {
		data := unsafe.Pointer(unsafe.StringData(str))
		if err := f.columns[1].AppendV(data, len(str)); err != nil {
			return 0, err
		}
	}
	s.nWritten += uint64(len(str))
	if err := f.columns[0].Append(unsafe.Pointer(&s.nWritten)); err != nil {
		return 0, err
	}
	return len(str) + f.columns[0].PackedSize(), nil
}

func (s *stringImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return s.readLocal(f, local, p)
}

func (s *stringImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	start, size, err := f.principal.GetCollectionInfoLocal(idx)
	if err != nil {
		return err
	}
	if size == 0 {
		*(*string)(p) = ""
		return nil
	}
	buf := make([]byte, size)
	if err := f.columns[1].ReadV(start, int64(size), unsafe.Pointer(&buf[0])); err != nil {
		return err
	}
	*(*string)(p) = string(buf)
	return nil
}

func (s *stringImpl) commitClusterImpl(*Field) { s.nWritten = 0 }

func newStringField(name string, reg *typereg.Registry) *Field {
	f := newField(name, "string", descriptor.StructureLeaf, reflect.TypeOf(""), reg, &stringImpl{})
	f.traits = TraitTriviallyConstructible
	return f
}
