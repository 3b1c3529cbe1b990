package field

import (
	"encoding/binary"
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// collectionReps is the shared on-disk format of variable-length collections:
// one cluster-local offset column; 32-bit index columns widen on read.
func collectionReps() column.RepresentationSet {
	return reps(
		[]column.Representation{
			rep(column.ElementSplitIndex64),
			rep(column.ElementIndex64),
		},
		rep(column.ElementSplitIndex32),
		rep(column.ElementIndex32))
}

// sliceImpl maps a Go slice onto an offset column plus one item subfield.
// Offsets are cluster-local: the offset of entry i is the number of items in
// the cluster up to and including entry i.
type sliceImpl struct {
	baseImpl
	itemSize uintptr
	nWritten uint64
}

func (s *sliceImpl) cloneImpl() kindImpl { return &sliceImpl{itemSize: s.itemSize} }

func (s *sliceImpl) representations() column.RepresentationSet { return collectionReps() }

func (s *sliceImpl) destroy(f *Field, p unsafe.Pointer) {
	rv := reflect.NewAt(f.goType, p).Elem()
	item := f.children[0]
	if item.traits&TraitTriviallyDestructible == 0 && rv.Len() > 0 {
		base := rv.UnsafePointer()
		for i := 0; i < rv.Len(); i++ {
			item.destroyValue(unsafe.Add(base, uintptr(i)*s.itemSize))
		}
	}
	rv.Set(reflect.Zero(f.goType))
}

func (s *sliceImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	rv := reflect.NewAt(f.goType, p).Elem()
	n := rv.Len()
	nbytes := 0
	if n > 0 {
		base := rv.UnsafePointer()
		for i := 0; i < n; i++ {
			w, err := f.children[0].Append(unsafe.Add(base, uintptr(i)*s.itemSize))
			if err != nil {
				return nbytes, err
			}
			nbytes += w
		}
	}
	s.nWritten += uint64(n)
	if err := f.principal.Append(unsafe.Pointer(&s.nWritten)); err != nil {
		return nbytes, err
	}
	return nbytes + f.principal.PackedSize(), nil
}

func (s *sliceImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return s.readLocal(f, local, p)
}

func (s *sliceImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	start, size, err := f.principal.GetCollectionInfoLocal(idx)
	if err != nil {
		return err
	}
	rv := reflect.NewAt(f.goType, p).Elem()
	n := int(size)
	if rv.Cap() < n {
		rv.Set(reflect.MakeSlice(f.goType, n, n))
	} else {
		rv.SetLen(n)
	}
	if n == 0 {
		return nil
	}
	base := rv.UnsafePointer()
	item := f.children[0]
	for i := 0; i < n; i++ {
		at := column.LocalIndex{Cluster: start.Cluster, Index: start.Index + int64(i)}
		if err := item.ReadLocal(at, unsafe.Add(base, uintptr(i)*s.itemSize)); err != nil {
			return err
		}
	}
	return nil
}

// readBulkImpl reads the offsets of the whole range, bulk-copies the items of
// the covered contiguous item span into the bulk's aux buffer and repoints
// the slice headers into it. The fast path requires a simple, pointer-free
// item; anything else falls back to the slot-by-slot default. The aux layout
// stays valid until the bulk adopts a new range.
func (s *sliceImpl) readBulkImpl(f *Field, spec *BulkSpec) (int, error) {
	item := f.children[0]
	if !item.IsSimple() || item.traits&TraitTrivialType != TraitTrivialType {
		return f.defaultReadBulk(spec)
	}

	// Collection begin of the first entry plus the offsets of all entries.
	first, _, err := f.principal.GetCollectionInfoLocal(spec.FirstIndex)
	if err != nil {
		return 0, err
	}
	offsets := make([]uint64, spec.Count)
	if err := f.principal.ReadV(spec.FirstIndex, int64(spec.Count),
		unsafe.Pointer(&offsets[0])); err != nil {
		return 0, err
	}

	nItems := offsets[spec.Count-1] - uint64(first.Index)
	need := int(uintptr(nItems) * s.itemSize)
	if cap(*spec.AuxData) < need {
		*spec.AuxData = make([]byte, need)
	}
	*spec.AuxData = (*spec.AuxData)[:need]
	aux := *spec.AuxData
	if nItems > 0 {
		if err := item.principal.ReadV(first, int64(nItems), unsafe.Pointer(&aux[0])); err != nil {
			return 0, err
		}
	}

	// Repoint the slice headers of the required slots into the aux buffer.
	// The aux layout is stable across calls on the same range, so headers set
	// by earlier calls stay valid.
	nRead := 0
	prev := uint64(first.Index)
	for i := 0; i < spec.Count; i++ {
		n := int(offsets[i] - prev)
		begin := prev
		prev = offsets[i]
		if spec.MaskReq != nil && !spec.MaskReq[i] {
			continue
		}
		if spec.MaskAvail[i] {
			continue
		}
		hdr := reflect.NewAt(f.goType, spec.valuePtrAt(i)).Elem()
		if n == 0 {
			hdr.Set(reflect.Zero(f.goType))
		} else {
			base := unsafe.Pointer(&aux[uintptr(begin-uint64(first.Index))*s.itemSize])
			hdr.Set(reflect.NewAt(reflect.ArrayOf(n, item.goType), base).Elem().Slice(0, n))
		}
		spec.MaskAvail[i] = true
		nRead++
	}
	return nRead, nil
}

func (s *sliceImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	rv := reflect.NewAt(f.goType, p).Elem()
	n := rv.Len()
	if n == 0 {
		return nil
	}
	base := rv.UnsafePointer()
	out := make([]*Value, n)
	for i := 0; i < n; i++ {
		out[i] = f.children[0].BindValue(unsafe.Add(base, uintptr(i)*s.itemSize))
	}
	return out
}

func (s *sliceImpl) commitClusterImpl(*Field) { s.nWritten = 0 }

// NewSliceField builds a variable-length collection over the given item
// field.
func NewSliceField(name string, item *Field) (*Field, error) {
	goType := reflect.SliceOf(item.goType)
	f := newField(name, "[]"+item.typeName, descriptor.StructureCollection, goType, item.reg,
		&sliceImpl{itemSize: item.ValueSize()})
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	f.traits = TraitTriviallyConstructible
	return f, nil
}

func newSliceField(name string, item *Field, reg *typereg.Registry) (*Field, error) {
	item.reg = reg
	return NewSliceField(name, item)
}

// readOffset reads from an offset column page stored in canonical uint64
// form.
func readOffset(buf []byte, i int) uint64 {
	return binary.LittleEndian.Uint64(buf[i*8:])
}
