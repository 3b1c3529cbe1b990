package field

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
)

// variantImpl maps a closed set of alternatives onto one switch column. The
// in-memory layout is a synthesized struct holding one slot per alternative
// plus a byte tag at a fixed offset: Go has no unions, and overlapping
// pointer-bearing storage would be invisible to the garbage collector. The
// switch element stores the cluster-local item index of the active
// alternative and its 1-based tag; tag 0 means valueless.
type variantImpl struct {
	baseImpl
	altOffsets []uintptr
	tagOffset  uintptr
	nWritten   []uint64
}

func (v *variantImpl) cloneImpl() kindImpl {
	return &variantImpl{
		altOffsets: append([]uintptr(nil), v.altOffsets...),
		tagOffset:  v.tagOffset,
		nWritten:   make([]uint64, len(v.nWritten)),
	}
}

func (v *variantImpl) representations() column.RepresentationSet {
	return reps([]column.Representation{rep(column.ElementSwitch)})
}

func (v *variantImpl) tag(p unsafe.Pointer) uint8 {
	return *(*uint8)(unsafe.Add(p, v.tagOffset))
}

func (v *variantImpl) setTag(p unsafe.Pointer, tag uint8) {
	*(*uint8)(unsafe.Add(p, v.tagOffset)) = tag
}

func (v *variantImpl) destroy(f *Field, p unsafe.Pointer) {
	if tag := v.tag(p); tag > 0 {
		f.children[tag-1].destroyValue(unsafe.Add(p, v.altOffsets[tag-1]))
	}
	v.setTag(p, 0)
}

func (v *variantImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	tag := v.tag(p)
	if int(tag) > len(f.children) {
		return 0, errors.Newf(errors.ErrorTypeInvalidArgument,
			"variant %q holds invalid tag %d", f.name, tag)
	}
	var sw column.Switch
	nbytes := 0
	if tag > 0 {
		n, err := f.children[tag-1].Append(unsafe.Add(p, v.altOffsets[tag-1]))
		if err != nil {
			return 0, err
		}
		nbytes = n
		sw = column.Switch{Index: v.nWritten[tag-1], Tag: uint32(tag)}
		v.nWritten[tag-1]++
	}
	if err := f.principal.Append(unsafe.Pointer(&sw)); err != nil {
		return nbytes, err
	}
	return nbytes + f.principal.PackedSize(), nil
}

func (v *variantImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return v.readLocal(f, local, p)
}

func (v *variantImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	var sw column.Switch
	if err := f.principal.ReadLocal(idx, unsafe.Pointer(&sw)); err != nil {
		return err
	}
	if int(sw.Tag) > len(f.children) {
		return errors.Newf(errors.ErrorTypeSchemaMismatch,
			"variant %q read invalid tag %d", f.name, sw.Tag)
	}
	prev := v.tag(p)
	if prev > 0 && prev != uint8(sw.Tag) {
		f.children[prev-1].destroyValue(unsafe.Add(p, v.altOffsets[prev-1]))
	}
	if sw.Tag == 0 {
		v.setTag(p, 0)
		return nil
	}
	child := f.children[sw.Tag-1]
	at := column.LocalIndex{Cluster: idx.Cluster, Index: int64(sw.Index)}
	if err := child.ReadLocal(at, unsafe.Add(p, v.altOffsets[sw.Tag-1])); err != nil {
		return err
	}
	v.setTag(p, uint8(sw.Tag))
	return nil
}

// splitValue yields exactly one value for the active alternative, none when
// valueless.
func (v *variantImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	tag := v.tag(p)
	if tag == 0 || int(tag) > len(f.children) {
		return nil
	}
	return []*Value{f.children[tag-1].BindValue(unsafe.Add(p, v.altOffsets[tag-1]))}
}

func (v *variantImpl) commitClusterImpl(*Field) {
	for i := range v.nWritten {
		v.nWritten[i] = 0
	}
}

// NewVariantField builds a variant over the alternative fields. The in-memory
// value is the synthesized tagged struct returned by the field's GoType.
func NewVariantField(name string, alternatives []*Field) (*Field, error) {
	if len(alternatives) == 0 || len(alternatives) > 254 {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"variant %q needs between 1 and 254 alternatives", name)
	}
	sfs := make([]reflect.StructField, len(alternatives)+1)
	names := make([]string, len(alternatives))
	for i, alt := range alternatives {
		sfs[i] = reflect.StructField{Name: fmt.Sprintf("A%d", i), Type: alt.goType}
		names[i] = alt.typeName
	}
	sfs[len(alternatives)] = reflect.StructField{Name: "Tag", Type: reflect.TypeOf(uint8(0))}
	goType := reflect.StructOf(sfs)

	impl := &variantImpl{
		altOffsets: make([]uintptr, len(alternatives)),
		tagOffset:  goType.Field(len(alternatives)).Offset,
		nWritten:   make([]uint64, len(alternatives)),
	}
	for i := range alternatives {
		impl.altOffsets[i] = goType.Field(i).Offset
	}

	typeName := "variant[" + strings.Join(names, ",") + "]"
	f := newField(name, typeName, descriptor.StructureVariant, goType, alternatives[0].reg, impl)
	for _, alt := range alternatives {
		if err := f.Attach(alt); err != nil {
			return nil, err
		}
	}
	andChildTraits(f)
	// the zero value is a valid valueless variant regardless of alternatives
	f.traits |= TraitTriviallyConstructible
	return f, nil
}

// VariantTag returns the 1-based tag of the value at p; 0 means valueless.
func VariantTag(f *Field, p unsafe.Pointer) (uint8, error) {
	impl, ok := f.impl.(*variantImpl)
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeInvalidArgument, "field %q is not a variant", f.name)
	}
	return impl.tag(p), nil
}

// SetVariantTag activates an alternative (or 0 for valueless) of the value at
// p; the caller fills the alternative slot afterwards.
func SetVariantTag(f *Field, p unsafe.Pointer, tag uint8) error {
	impl, ok := f.impl.(*variantImpl)
	if !ok {
		return errors.Newf(errors.ErrorTypeInvalidArgument, "field %q is not a variant", f.name)
	}
	if int(tag) > len(f.children) {
		return errors.Newf(errors.ErrorTypeInvalidArgument,
			"variant %q has no alternative %d", f.name, tag)
	}
	impl.setTag(p, tag)
	return nil
}

// VariantSlot returns the storage slot of alternative tag (1-based) of the
// value at p.
func VariantSlot(f *Field, p unsafe.Pointer, tag uint8) (unsafe.Pointer, error) {
	impl, ok := f.impl.(*variantImpl)
	if !ok || tag == 0 || int(tag) > len(f.children) {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"variant %q has no alternative %d", f.name, tag)
	}
	return unsafe.Add(p, impl.altOffsets[tag-1]), nil
}
