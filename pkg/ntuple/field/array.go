package field

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// arrayImpl maps fixed size arrays; no offset column is needed, the element
// index of the item advances by the array length per entry.
type arrayImpl struct {
	baseImpl
	itemSize uintptr
	length   int
}

func (a *arrayImpl) cloneImpl() kindImpl {
	return &arrayImpl{itemSize: a.itemSize, length: a.length}
}

func (a *arrayImpl) construct(f *Field, p unsafe.Pointer) error {
	for i := 0; i < a.length; i++ {
		if err := f.children[0].constructValue(unsafe.Add(p, uintptr(i)*a.itemSize)); err != nil {
			return err
		}
	}
	return nil
}

func (a *arrayImpl) destroy(f *Field, p unsafe.Pointer) {
	for i := 0; i < a.length; i++ {
		f.children[0].destroyValue(unsafe.Add(p, uintptr(i)*a.itemSize))
	}
}

func (a *arrayImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	nbytes := 0
	for i := 0; i < a.length; i++ {
		n, err := f.children[0].Append(unsafe.Add(p, uintptr(i)*a.itemSize))
		if err != nil {
			return nbytes, err
		}
		nbytes += n
	}
	return nbytes, nil
}

func (a *arrayImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	for i := 0; i < a.length; i++ {
		idx := globalIndex*int64(a.length) + int64(i)
		if err := f.children[0].Read(idx, unsafe.Add(p, uintptr(i)*a.itemSize)); err != nil {
			return err
		}
	}
	return nil
}

func (a *arrayImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	for i := 0; i < a.length; i++ {
		at := column.LocalIndex{Cluster: idx.Cluster, Index: idx.Index*int64(a.length) + int64(i)}
		if err := f.children[0].ReadLocal(at, unsafe.Add(p, uintptr(i)*a.itemSize)); err != nil {
			return err
		}
	}
	return nil
}

func (a *arrayImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	out := make([]*Value, a.length)
	for i := 0; i < a.length; i++ {
		out[i] = f.children[0].BindValue(unsafe.Add(p, uintptr(i)*a.itemSize))
	}
	return out
}

// NewArrayField builds a fixed size array of length n over the item field.
func NewArrayField(name string, item *Field, n int) (*Field, error) {
	goType := reflect.ArrayOf(n, item.goType)
	typeName := fmt.Sprintf("[%d]%s", n, item.typeName)
	f := newField(name, typeName, descriptor.StructureLeaf, goType, item.reg,
		&arrayImpl{itemSize: item.ValueSize(), length: n})
	if err := f.Attach(item); err != nil {
		return nil, err
	}
	f.repetitions = n
	andChildTraits(f)
	return f, nil
}

const (
	wordSize    = 8
	bitsPerWord = 64
)

// bitsetImpl stores N single-bit elements per entry on one bit column and
// reconstructs them into a word-backed value.
type bitsetImpl struct {
	baseImpl
	n int
}

func (b *bitsetImpl) cloneImpl() kindImpl { return &bitsetImpl{n: b.n} }

func (b *bitsetImpl) representations() column.RepresentationSet {
	return reps([]column.Representation{rep(column.ElementBit)})
}

func (b *bitsetImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	words := unsafe.Slice((*uint64)(p), (b.n+bitsPerWord-1)/bitsPerWord)
	var elem byte
	for i := 0; i < b.n; i++ {
		elem = 0
		if words[i/bitsPerWord]&(1<<(i%bitsPerWord)) != 0 {
			elem = 1
		}
		if err := f.principal.Append(unsafe.Pointer(&elem)); err != nil {
			return i, err
		}
	}
	return b.n * f.principal.PackedSize(), nil
}

func (b *bitsetImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	local, err := f.principal.GlobalToLocal(globalIndex * int64(b.n))
	if err != nil {
		return err
	}
	return b.readBits(f, local, p)
}

func (b *bitsetImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	at := column.LocalIndex{Cluster: idx.Cluster, Index: idx.Index * int64(b.n)}
	return b.readBits(f, at, p)
}

func (b *bitsetImpl) readBits(f *Field, at column.LocalIndex, p unsafe.Pointer) error {
	words := unsafe.Slice((*uint64)(p), (b.n+bitsPerWord-1)/bitsPerWord)
	for i := range words {
		words[i] = 0
	}
	var elem byte
	for i := 0; i < b.n; i++ {
		idx := column.LocalIndex{Cluster: at.Cluster, Index: at.Index + int64(i)}
		if err := f.principal.ReadLocal(idx, unsafe.Pointer(&elem)); err != nil {
			return err
		}
		if elem != 0 {
			words[i/bitsPerWord] |= 1 << (i % bitsPerWord)
		}
	}
	return nil
}

// NewBitsetField builds a bitset of fixed width n, word-backed in memory.
func NewBitsetField(name string, n int, reg *typereg.Registry) (*Field, error) {
	nWords := (n + bitsPerWord - 1) / bitsPerWord
	goType := reflect.ArrayOf(nWords, reflect.TypeOf(uint64(0)))
	f := newField(name, fmt.Sprintf("bitset[%d]", n), descriptor.StructureLeaf, goType, reg,
		&bitsetImpl{n: n})
	f.repetitions = n
	f.traits = TraitTrivialType
	return f, nil
}
