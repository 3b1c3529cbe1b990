package field

import (
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/pool"
)

// BulkAll is returned by ReadBulk when the full bulk range was read
// independent of the provided masks; callers treat it as "every slot valid".
const BulkAll = -1

// BulkSpec is the input to ReadBulk: a cluster-local range, the required and
// available masks, the destination value array and field-owned scratch
// memory that survives between calls on the same bulk.
type BulkSpec struct {
	FirstIndex column.LocalIndex
	Count      int
	// MaskReq marks the slots the caller needs; nil means all.
	MaskReq []bool
	// MaskAvail marks the slots holding valid values; ReadBulk sets the bits
	// of the slots it populates.
	MaskAvail []bool
	// Values is the destination array of Count constructed values.
	Values unsafe.Pointer
	// AuxData is scratch memory owned by the bulk handle. Fields may stash
	// auxiliary arrays here whose layout stays valid across calls.
	AuxData *[]byte

	valueSize uintptr
}

func (s *BulkSpec) valuePtrAt(i int) unsafe.Pointer {
	return unsafe.Add(s.Values, uintptr(i)*s.valueSize)
}

var auxPool = pool.New(
	func() []byte { return make([]byte, 0, 4096) },
	func(b []byte) {},
)

// Bulk manages an array of consecutive values from one cluster. A single bulk
// serves repeated masked reads over the same range: each call may require a
// different subset of slots, and already valid slots are never re-read.
type Bulk struct {
	field     *Field
	values    reflect.Value // slice backing the value array
	base      unsafe.Pointer
	valueSize uintptr
	capacity  int
	size      int
	maskAvail []bool
	nValid    int
	first     column.LocalIndex
	aux       []byte
}

// NewBulk returns an empty bulk; the first ReadBulk adopts a range and
// allocates the value array.
func (f *Field) NewBulk() *Bulk {
	return &Bulk{field: f, valueSize: f.ValueSize(), first: column.InvalidLocalIndex}
}

// Field returns the field the bulk reads from.
func (b *Bulk) Field() *Field { return b.field }

// NValid returns the number of slots currently holding valid values.
func (b *Bulk) NValid() int { return b.nValid }

// ValuePtrAt returns the raw pointer of slot i relative to the adopted range.
func (b *Bulk) ValuePtrAt(i int) unsafe.Pointer {
	return unsafe.Add(b.base, uintptr(i)*b.valueSize)
}

// BulkAt returns slot i as a typed pointer.
func BulkAt[T any](b *Bulk, i int) *T { return (*T)(b.ValuePtrAt(i)) }

func (b *Bulk) containsRange(first column.LocalIndex, size int) bool {
	if first.Cluster != b.first.Cluster {
		return false
	}
	return first.Index >= b.first.Index &&
		first.Index+int64(size) <= b.first.Index+int64(b.size)
}

// reset adopts a new range. The value array is reused when the capacity
// allows; all availability bits are cleared.
func (b *Bulk) reset(first column.LocalIndex, size int) error {
	destructible := b.field.traits&TraitTriviallyDestructible == 0
	constructible := b.field.traits&TraitTriviallyConstructible == 0

	if destructible && b.capacity > 0 {
		for i := 0; i < b.capacity; i++ {
			b.field.destroyValue(b.ValuePtrAt(i))
		}
	}
	if size > b.capacity {
		b.values = reflect.MakeSlice(reflect.SliceOf(b.field.goType), size, size)
		b.base = b.values.UnsafePointer()
		b.capacity = size
	}
	if constructible {
		for i := 0; i < size; i++ {
			if err := b.field.constructValue(b.ValuePtrAt(i)); err != nil {
				return err
			}
		}
	}
	if cap(b.maskAvail) < size {
		b.maskAvail = make([]bool, size)
	} else {
		b.maskAvail = b.maskAvail[:size]
		for i := range b.maskAvail {
			b.maskAvail[i] = false
		}
	}
	if b.aux == nil {
		b.aux = auxPool.Get()
	}
	b.first = first
	b.size = size
	b.nValid = 0
	return nil
}

// ReadBulk reads size values starting at the cluster-local index first. Only
// slots with a true maskReq bit are guaranteed to be populated; a nil mask
// requests all. The returned pointer is the base of the value array at the
// requested offset.
func (b *Bulk) ReadBulk(first column.LocalIndex, maskReq []bool, size int) (unsafe.Pointer, error) {
	if !b.containsRange(first, size) {
		if err := b.reset(first, size); err != nil {
			return nil, err
		}
	}

	// We may read a sub range of the currently adopted range.
	offset := int(first.Index - b.first.Index)

	if b.nValid == b.size {
		return b.ValuePtrAt(offset), nil
	}

	spec := &BulkSpec{
		FirstIndex: first,
		Count:      size,
		MaskReq:    maskReq,
		MaskAvail:  b.maskAvail[offset:],
		Values:     b.ValuePtrAt(offset),
		AuxData:    &b.aux,
		valueSize:  b.valueSize,
	}
	nRead, err := b.field.ReadBulk(spec)
	if err != nil {
		return nil, err
	}
	if nRead == BulkAll {
		if offset == 0 && size == b.size {
			b.nValid = b.size
		} else {
			b.countValid()
		}
	} else {
		b.nValid += nRead
	}
	return b.ValuePtrAt(offset), nil
}

func (b *Bulk) countValid() {
	n := 0
	for _, ok := range b.maskAvail {
		if ok {
			n++
		}
	}
	b.nValid = n
}

// Release returns the scratch memory to the pool and drops the value array.
func (b *Bulk) Release() {
	if b.field.traits&TraitTriviallyDestructible == 0 {
		for i := 0; i < b.capacity; i++ {
			b.field.destroyValue(b.ValuePtrAt(i))
		}
	}
	b.values = reflect.Value{}
	b.base = nil
	b.capacity = 0
	b.size = 0
	b.nValid = 0
	b.first = column.InvalidLocalIndex
	if b.aux != nil {
		auxPool.Put(b.aux[:0])
		b.aux = nil
	}
}
