package field

import (
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
)

// nullableImpl carries the on-disk representation shared by the nullable
// family. The encoding is dense or sparse: dense uses a bit column (1 =
// present) and writes a default-constructed item for every missing slot so
// the item column stays 1:1 with the outer entries; sparse uses an index
// column counting the present items, and missing slots contribute nothing to
// the item column.
type nullableImpl struct {
	baseImpl
	nWritten    uint64
	defaultItem *Value
}

func nullableReps() column.RepresentationSet {
	return reps([]column.Representation{
		rep(column.ElementBit),
		rep(column.ElementSplitIndex64),
		rep(column.ElementIndex64),
		rep(column.ElementSplitIndex32),
		rep(column.ElementIndex32),
	})
}

func (n *nullableImpl) representations() column.RepresentationSet { return nullableReps() }

func (n *nullableImpl) commitClusterImpl(*Field) { n.nWritten = 0 }

// isDense reports whether the active representation is the bitmask encoding.
func (n *nullableImpl) isDense(f *Field) bool {
	rep := f.matchedRep
	if rep == nil {
		rep = f.ColumnRepresentative()
	}
	return len(rep) > 0 && rep[0] == column.ElementBit
}

func (n *nullableImpl) appendValue(f *Field, item unsafe.Pointer) (int, error) {
	if n.isDense(f) {
		present := byte(1)
		if err := f.principal.Append(unsafe.Pointer(&present)); err != nil {
			return 0, err
		}
	} else {
		n.nWritten++
		if err := f.principal.Append(unsafe.Pointer(&n.nWritten)); err != nil {
			return 0, err
		}
	}
	nbytes, err := f.children[0].Append(item)
	if err != nil {
		return 0, err
	}
	return nbytes + f.principal.PackedSize(), nil
}

func (n *nullableImpl) appendNull(f *Field) (int, error) {
	if n.isDense(f) {
		present := byte(0)
		if err := f.principal.Append(unsafe.Pointer(&present)); err != nil {
			return 0, err
		}
		if n.defaultItem == nil {
			var err error
			if n.defaultItem, err = f.children[0].NewValue(); err != nil {
				return 0, err
			}
		}
		nbytes, err := f.children[0].Append(n.defaultItem.Ptr())
		if err != nil {
			return 0, err
		}
		return nbytes + f.principal.PackedSize(), nil
	}
	if err := f.principal.Append(unsafe.Pointer(&n.nWritten)); err != nil {
		return 0, err
	}
	return f.principal.PackedSize(), nil
}

// itemIndex translates the nullable field's cluster-local entry index into
// the item subfield's index, or an invalid index for a missing value.
func (n *nullableImpl) itemIndex(f *Field, idx column.LocalIndex) (column.LocalIndex, error) {
	if n.isDense(f) {
		var present byte
		if err := f.principal.ReadLocal(idx, unsafe.Pointer(&present)); err != nil {
			return column.InvalidLocalIndex, err
		}
		if present == 0 {
			return column.InvalidLocalIndex, nil
		}
		return idx, nil
	}
	start, size, err := f.principal.GetCollectionInfoLocal(idx)
	if err != nil {
		return column.InvalidLocalIndex, err
	}
	if size == 0 {
		return column.InvalidLocalIndex, nil
	}
	return column.LocalIndex{Cluster: idx.Cluster, Index: start.Index + int64(size) - 1}, nil
}

// SetDense forces the bitmask encoding; only allowed before connecting.
func SetDense(f *Field) error {
	if _, ok := f.impl.(nullable); !ok {
		return errors.Newf(errors.ErrorTypeInvalidArgument, "field %q is not nullable", f.name)
	}
	return f.SetColumnRepresentative(rep(column.ElementBit))
}

// SetSparse forces the index encoding; only allowed before connecting.
func SetSparse(f *Field) error {
	if _, ok := f.impl.(nullable); !ok {
		return errors.Newf(errors.ErrorTypeInvalidArgument, "field %q is not nullable", f.name)
	}
	return f.SetColumnRepresentative(rep(column.ElementSplitIndex64))
}

// IsDense reports whether the nullable field uses the bitmask encoding.
func IsDense(f *Field) (bool, error) {
	impl, ok := f.impl.(nullable)
	if !ok {
		return false, errors.Newf(errors.ErrorTypeInvalidArgument, "field %q is not nullable", f.name)
	}
	return impl.nullableBase().isDense(f), nil
}

// nullable is implemented by the members of the nullable family.
type nullable interface {
	nullableBase() *nullableImpl
}

// chooseDefaultEncoding picks dense when the item's on-disk element size is
// at most 4 bytes.
func chooseDefaultEncoding(f *Field, item *Field) {
	itemRep := item.ColumnRepresentative()
	dense := len(itemRep) > 0 && itemRep[0].PackedSize() <= 4
	if dense {
		f.repChoice = rep(column.ElementBit)
	} else {
		f.repChoice = rep(column.ElementSplitIndex64)
	}
}

// pointerImpl is the unique-owning reference: a *T that is nil for missing
// entries.
type pointerImpl struct {
	nullableImpl
}

func (p *pointerImpl) cloneImpl() kindImpl { return &pointerImpl{} }

func (p *pointerImpl) nullableBase() *nullableImpl { return &p.nullableImpl }

func (p *pointerImpl) destroy(f *Field, obj unsafe.Pointer) {
	if inner := *(*unsafe.Pointer)(obj); inner != nil {
		f.children[0].destroyValue(inner)
	}
	*(*unsafe.Pointer)(obj) = nil
}

func (p *pointerImpl) appendImpl(f *Field, obj unsafe.Pointer) (int, error) {
	inner := *(*unsafe.Pointer)(obj)
	if inner == nil {
		return p.appendNull(f)
	}
	return p.appendValue(f, inner)
}

func (p *pointerImpl) readGlobal(f *Field, globalIndex int64, obj unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return p.readLocal(f, local, obj)
}

func (p *pointerImpl) readLocal(f *Field, idx column.LocalIndex, obj unsafe.Pointer) error {
	itemIdx, err := p.itemIndex(f, idx)
	if err != nil {
		return err
	}
	rv := reflect.NewAt(f.goType, obj).Elem()
	if !itemIdx.IsValid() {
		rv.Set(reflect.Zero(f.goType))
		return nil
	}
	if rv.IsNil() {
		inner := reflect.New(f.children[0].goType)
		if err := f.children[0].constructValue(inner.UnsafePointer()); err != nil {
			return err
		}
		rv.Set(inner)
	}
	return f.children[0].ReadLocal(itemIdx, rv.UnsafePointer())
}

// splitValue yields the pointee when present.
func (p *pointerImpl) splitValue(f *Field, obj unsafe.Pointer) []*Value {
	inner := *(*unsafe.Pointer)(obj)
	if inner == nil {
		return nil
	}
	return []*Value{f.children[0].BindValue(inner)}
}

// NewPointerField builds a nullable unique-owning reference over the item
// field.
func NewPointerField(name string, item *Field) (*Field, error) {
	goType := reflect.PointerTo(item.goType)
	f := newField(name, "*"+item.typeName, descriptor.StructureCollection, goType, item.reg,
		&pointerImpl{})
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	f.traits = TraitTriviallyConstructible
	chooseDefaultEncoding(f, item)
	return f, nil
}

// optionalImpl stores the item inline next to a presence flag:
// struct { V T; Ok bool }.
type optionalImpl struct {
	nullableImpl
	okOffset uintptr
}

func (o *optionalImpl) cloneImpl() kindImpl { return &optionalImpl{okOffset: o.okOffset} }

func (o *optionalImpl) nullableBase() *nullableImpl { return &o.nullableImpl }

func (o *optionalImpl) ok(p unsafe.Pointer) *bool {
	return (*bool)(unsafe.Add(p, o.okOffset))
}

func (o *optionalImpl) destroy(f *Field, p unsafe.Pointer) {
	if *o.ok(p) {
		f.children[0].destroyValue(p)
	}
	*o.ok(p) = false
}

func (o *optionalImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	if !*o.ok(p) {
		return o.appendNull(f)
	}
	return o.appendValue(f, p)
}

func (o *optionalImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return o.readLocal(f, local, p)
}

func (o *optionalImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	itemIdx, err := o.itemIndex(f, idx)
	if err != nil {
		return err
	}
	if !itemIdx.IsValid() {
		if *o.ok(p) {
			f.children[0].destroyValue(p)
		}
		*o.ok(p) = false
		return nil
	}
	if err := f.children[0].ReadLocal(itemIdx, p); err != nil {
		return err
	}
	*o.ok(p) = true
	return nil
}

func (o *optionalImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	if !*o.ok(p) {
		return nil
	}
	return []*Value{f.children[0].BindValue(p)}
}

// NewOptionalField builds an optional value stored inline with a presence
// flag.
func NewOptionalField(name string, item *Field) (*Field, error) {
	goType := reflect.StructOf([]reflect.StructField{
		{Name: "V", Type: item.goType},
		{Name: "Ok", Type: reflect.TypeOf(false)},
	})
	impl := &optionalImpl{okOffset: goType.Field(1).Offset}
	f := newField(name, "optional["+item.typeName+"]", descriptor.StructureCollection, goType,
		item.reg, impl)
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	andChildTraits(f)
	f.traits |= TraitTriviallyConstructible
	chooseDefaultEncoding(f, item)
	return f, nil
}
