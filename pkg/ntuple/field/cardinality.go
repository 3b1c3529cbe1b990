package field

import (
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// cardinalityImpl projects a collection's offset column onto a scalar "size
// per entry". The field is read-only: it binds to the on-disk id of a
// collection field and never generates write columns.
type cardinalityImpl struct {
	baseImpl
	width int // 32 or 64
}

func (c *cardinalityImpl) cloneImpl() kindImpl { return &cardinalityImpl{width: c.width} }

func (c *cardinalityImpl) canWrite() bool { return false }

func (c *cardinalityImpl) representations() column.RepresentationSet {
	return reps(nil,
		rep(column.ElementSplitIndex64),
		rep(column.ElementIndex64),
		rep(column.ElementSplitIndex32),
		rep(column.ElementIndex32))
}

func (c *cardinalityImpl) store(p unsafe.Pointer, size uint64) {
	if c.width == 32 {
		*(*uint32)(p) = uint32(size)
	} else {
		*(*uint64)(p) = size
	}
}

func (c *cardinalityImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	_, size, err := f.principal.GetCollectionInfo(globalIndex)
	if err != nil {
		return err
	}
	c.store(p, size)
	return nil
}

func (c *cardinalityImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	_, size, err := f.principal.GetCollectionInfoLocal(idx)
	if err != nil {
		return err
	}
	c.store(p, size)
	return nil
}

// readBulkImpl walks the offset pages in page-sized batches: the first entry
// resolves through the collection info, every following size is the
// difference of consecutive offsets mapped straight from the page buffers.
// Fills all slots regardless of the mask.
func (c *cardinalityImpl) readBulkImpl(f *Field, spec *BulkSpec) (int, error) {
	start, size, err := f.principal.GetCollectionInfoLocal(spec.FirstIndex)
	if err != nil {
		return 0, err
	}
	c.store(spec.valuePtrAt(0), size)
	lastOffset := uint64(start.Index) + size

	remaining := spec.Count - 1
	entry := 1
	for remaining > 0 {
		at := column.LocalIndex{
			Cluster: spec.FirstIndex.Cluster,
			Index:   spec.FirstIndex.Index + int64(entry),
		}
		buf, nAvail, err := f.principal.MapV(at)
		if err != nil {
			return 0, err
		}
		batch := remaining
		if int64(batch) > nAvail {
			batch = int(nAvail)
		}
		for i := 0; i < batch; i++ {
			off := readOffset(buf, i)
			c.store(spec.valuePtrAt(entry+i), off-lastOffset)
			lastOffset = off
		}
		remaining -= batch
		entry += batch
	}
	for i := 0; i < spec.Count; i++ {
		spec.MaskAvail[i] = true
	}
	return BulkAll, nil
}

// NewCardinalityField builds the read-only size projection of a collection;
// width is 32 or 64.
func NewCardinalityField(name string, width int, reg *typereg.Registry) (*Field, error) {
	var goType reflect.Type
	var typeName string
	switch width {
	case 32:
		goType, typeName = reflect.TypeOf(uint32(0)), "cardinality32"
	case 64:
		goType, typeName = reflect.TypeOf(uint64(0)), "cardinality64"
	default:
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"cardinality width must be 32 or 64, got %d", width)
	}
	f := newField(name, typeName, descriptor.StructureLeaf, goType, reg,
		&cardinalityImpl{width: width})
	f.traits = TraitTrivialType
	return f, nil
}

// atomicImpl delegates transparently to the inner field; the wrapper adds no
// columns and the in-memory value is the plain inner type.
type atomicImpl struct {
	baseImpl
}

func (a *atomicImpl) cloneImpl() kindImpl { return &atomicImpl{} }

func (a *atomicImpl) construct(f *Field, p unsafe.Pointer) error {
	return f.children[0].constructValue(p)
}

func (a *atomicImpl) destroy(f *Field, p unsafe.Pointer) {
	f.children[0].destroyValue(p)
}

func (a *atomicImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	return f.children[0].Append(p)
}

func (a *atomicImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	return f.children[0].Read(globalIndex, p)
}

func (a *atomicImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	return f.children[0].ReadLocal(idx, p)
}

func (a *atomicImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	return []*Value{f.children[0].BindValue(p)}
}

// NewAtomicField wraps the item field without adding columns.
func NewAtomicField(name string, item *Field) (*Field, error) {
	f := newField(name, "atomic["+item.typeName+"]", descriptor.StructureLeaf, item.goType,
		item.reg, &atomicImpl{})
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	f.traits = item.traits &^ TraitMappable
	return f, nil
}
