package field

import (
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// proxiedImpl iterates a container through the registry-supplied proxy
// protocol: a length function plus either a contiguous stride or
// create/next/destroy iterator functions. On read, the container is cleared
// and repopulated through the proxy's insert function.
type proxiedImpl struct {
	baseImpl
	proxy    *typereg.CollectionProxy
	itemSize uintptr
	nWritten uint64
}

func (c *proxiedImpl) cloneImpl() kindImpl {
	return &proxiedImpl{proxy: c.proxy, itemSize: c.itemSize}
}

func (c *proxiedImpl) representations() column.RepresentationSet { return collectionReps() }

func (c *proxiedImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	nbytes := 0
	n := c.proxy.Len(p)
	if n > 0 {
		if c.proxy.Stride > 0 {
			base := c.proxy.Base(p)
			for i := 0; i < n; i++ {
				w, err := f.children[0].Append(unsafe.Add(base, uintptr(i)*c.proxy.Stride))
				if err != nil {
					return nbytes, err
				}
				nbytes += w
			}
		} else {
			iter := c.proxy.CreateIterator(p)
			for item := iter.Next(); item != nil; item = iter.Next() {
				w, err := f.children[0].Append(item)
				if err != nil {
					iter.Destroy()
					return nbytes, err
				}
				nbytes += w
			}
			iter.Destroy()
		}
	}
	c.nWritten += uint64(n)
	if err := f.principal.Append(unsafe.Pointer(&c.nWritten)); err != nil {
		return nbytes, err
	}
	return nbytes + f.principal.PackedSize(), nil
}

func (c *proxiedImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return c.readLocal(f, local, p)
}

func (c *proxiedImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	start, size, err := f.principal.GetCollectionInfoLocal(idx)
	if err != nil {
		return err
	}
	c.proxy.Clear(p)
	if size == 0 {
		return nil
	}
	item := f.children[0]
	scratch, err := item.NewValue()
	if err != nil {
		return err
	}
	defer scratch.Destroy()
	for i := uint64(0); i < size; i++ {
		at := column.LocalIndex{Cluster: start.Cluster, Index: start.Index + int64(i)}
		if err := item.ReadLocal(at, scratch.Ptr()); err != nil {
			return err
		}
		c.proxy.Insert(p, scratch.Ptr())
	}
	return nil
}

func (c *proxiedImpl) construct(f *Field, p unsafe.Pointer) error {
	if info, ok := f.reg.LookupGoType(f.goType); ok && info.Construct != nil {
		info.Construct(p)
	}
	return nil
}

func (c *proxiedImpl) destroy(f *Field, p unsafe.Pointer) {
	c.proxy.Clear(p)
}

func (c *proxiedImpl) commitClusterImpl(*Field) { c.nWritten = 0 }

// newProxiedCollectionField builds a collection field over a registered proxy
// type.
func newProxiedCollectionField(name string, info *typereg.Info, reg *typereg.Registry,
	visiting map[string]bool) (*Field, error) {
	item, err := createField("_0", info.Proxy.ItemTypeName, reg, visiting)
	if err != nil {
		return nil, err
	}
	f := newField(name, info.Name, descriptor.StructureCollection, info.GoType, reg,
		&proxiedImpl{proxy: info.Proxy, itemSize: item.ValueSize()})
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	if info.Construct == nil {
		f.traits = TraitTriviallyConstructible
	}
	return f, nil
}

// setImpl materializes a collection into a map-backed set. The on-disk format
// is identical to any other variable-length collection.
type setImpl struct {
	baseImpl
	itemSize uintptr
	nWritten uint64
}

func (s *setImpl) cloneImpl() kindImpl { return &setImpl{itemSize: s.itemSize} }

func (s *setImpl) representations() column.RepresentationSet { return collectionReps() }

func (s *setImpl) construct(f *Field, p unsafe.Pointer) error {
	rv := reflect.NewAt(f.goType, p).Elem()
	rv.Set(reflect.MakeMap(f.goType))
	return nil
}

func (s *setImpl) destroy(f *Field, p unsafe.Pointer) {
	reflect.NewAt(f.goType, p).Elem().Set(reflect.Zero(f.goType))
}

func (s *setImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	rv := reflect.NewAt(f.goType, p).Elem()
	item := f.children[0]
	nbytes := 0
	n := 0
	iter := rv.MapRange()
	scratch := reflect.New(item.goType)
	for iter.Next() {
		scratch.Elem().Set(iter.Key())
		w, err := item.Append(scratch.UnsafePointer())
		if err != nil {
			return nbytes, err
		}
		nbytes += w
		n++
	}
	s.nWritten += uint64(n)
	if err := f.principal.Append(unsafe.Pointer(&s.nWritten)); err != nil {
		return nbytes, err
	}
	return nbytes + f.principal.PackedSize(), nil
}

func (s *setImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return s.readLocal(f, local, p)
}

func (s *setImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	start, size, err := f.principal.GetCollectionInfoLocal(idx)
	if err != nil {
		return err
	}
	rv := reflect.NewAt(f.goType, p).Elem()
	rv.Set(reflect.MakeMapWithSize(f.goType, int(size)))
	item := f.children[0]
	scratch := reflect.New(item.goType)
	empty := reflect.ValueOf(struct{}{})
	for i := uint64(0); i < size; i++ {
		at := column.LocalIndex{Cluster: start.Cluster, Index: start.Index + int64(i)}
		if err := item.ReadLocal(at, scratch.UnsafePointer()); err != nil {
			return err
		}
		rv.SetMapIndex(scratch.Elem(), empty)
	}
	return nil
}

func (s *setImpl) commitClusterImpl(*Field) { s.nWritten = 0 }

// NewSetField builds a set over the item field, backed by map[T]struct{}.
func NewSetField(name string, item *Field) (*Field, error) {
	goType := reflect.MapOf(item.goType, reflect.TypeOf(struct{}{}))
	f := newField(name, "set["+item.typeName+"]", descriptor.StructureCollection, goType,
		item.reg, &setImpl{itemSize: item.ValueSize()})
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	return f, nil
}

// CollectionWriter keeps the running item count an untyped collection field
// writes as its offset; committing a cluster resets it.
type CollectionWriter struct {
	offset uint64
}

// Advance records n freshly written items.
func (w *CollectionWriter) Advance(n int) { w.offset += uint64(n) }

// Count returns the running cluster-local item count.
func (w *CollectionWriter) Count() uint64 { return w.offset }

// collectionFieldImpl is the write-only untyped collection: it exposes the
// writer's running offset as its column and resets the writer at cluster
// boundaries. Reading an untyped collection goes through a slice field
// instead.
type collectionFieldImpl struct {
	baseImpl
	writer *CollectionWriter
}

func (c *collectionFieldImpl) cloneImpl() kindImpl {
	return &collectionFieldImpl{writer: c.writer}
}

func (c *collectionFieldImpl) representations() column.RepresentationSet { return collectionReps() }

func (c *collectionFieldImpl) appendImpl(f *Field, _ unsafe.Pointer) (int, error) {
	count := c.writer.Count()
	if err := f.principal.Append(unsafe.Pointer(&count)); err != nil {
		return 0, err
	}
	return f.principal.PackedSize(), nil
}

func (c *collectionFieldImpl) commitClusterImpl(*Field) { c.writer.offset = 0 }

// NewCollectionField builds a write-only untyped collection whose items are
// described by the given sub fields and counted by the writer.
func NewCollectionField(name string, writer *CollectionWriter, items []*Field) (*Field, error) {
	if writer == nil {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "collection field needs a writer")
	}
	f := newField(name, "", descriptor.StructureCollection, reflect.TypeOf(uint64(0)), nil,
		&collectionFieldImpl{writer: writer})
	for _, item := range items {
		if err := f.Attach(item); err != nil {
			return nil, err
		}
	}
	f.traits = TraitTrivialType
	return f, nil
}
