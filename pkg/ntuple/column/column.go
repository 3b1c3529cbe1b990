package column

import (
	"encoding/binary"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
)

// LocalIndex addresses one element relative to a cluster. Indices inside a
// cluster are 0-based and independent of other clusters.
type LocalIndex struct {
	Cluster int
	Index   int64
}

// InvalidLocalIndex marks an absent element, e.g. the item of a missing
// nullable value.
var InvalidLocalIndex = LocalIndex{Cluster: -1, Index: -1}

// IsValid reports whether the index addresses an element.
func (i LocalIndex) IsValid() bool { return i.Cluster >= 0 && i.Index >= 0 }

// SinkColumn is the write-side handle a page sink returns for one column.
// Elements are handed over in canonical unpacked form; the sink packs and
// compresses them when a cluster is sealed.
type SinkColumn interface {
	// AppendV appends n canonical elements.
	AppendV(data []byte, n int) error
	// NElements returns the total number of elements appended so far.
	NElements() int64
}

// SourceColumn is the read-side handle a page source returns for one column.
type SourceColumn interface {
	NElements() int64
	// GlobalToLocal translates a global element index into cluster-local form.
	GlobalToLocal(globalIndex int64) (LocalIndex, error)
	// ClusterStart returns the global index of the first element of a cluster.
	ClusterStart(cluster int) (int64, error)
	// ReadV copies count canonical elements starting at from into dst.
	ReadV(from LocalIndex, count int64, dst []byte) error
	// MapV returns a zero-copy view of canonical elements starting at from,
	// extending at most to the end of the cluster page. The view stays valid
	// until the next MapV or ReadV call on a different cluster.
	MapV(from LocalIndex) ([]byte, int64, error)
}

// Column connects a field to one typed element stream. A column is owned by
// exactly one field and connected either to a sink or to a source.
type Column struct {
	elem       ElementType
	index      uint32
	firstEntry int64
	sink       SinkColumn
	source     SourceColumn
}

// NewWriteColumn returns a column bound to a sink handle.
func NewWriteColumn(elem ElementType, index uint32, firstEntry int64, sink SinkColumn) *Column {
	return &Column{elem: elem, index: index, firstEntry: firstEntry, sink: sink}
}

// NewReadColumn returns a column bound to a source handle.
func NewReadColumn(elem ElementType, index uint32, source SourceColumn) *Column {
	return &Column{elem: elem, index: index, source: source}
}

// ElementType returns the on-disk element type of the column.
func (c *Column) ElementType() ElementType { return c.elem }

// Index returns the order of the column within its owning field.
func (c *Column) Index() uint32 { return c.index }

// FirstEntry returns the global index of the first entry with on-disk data.
func (c *Column) FirstEntry() int64 { return c.firstEntry }

// PackedSize returns the on-disk bytes of one element.
func (c *Column) PackedSize() int { return c.elem.PackedSize() }

// NElements returns the number of elements written to or available from the
// column.
func (c *Column) NElements() int64 {
	if c.sink != nil {
		return c.sink.NElements()
	}
	if c.source != nil {
		return c.source.NElements()
	}
	return 0
}

func (c *Column) elemBytes(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n*c.elem.UnpackedSize())
}

// Append writes one canonical element taken from p.
func (c *Column) Append(p unsafe.Pointer) error {
	if c.sink == nil {
		return errors.New(errors.ErrorTypeStateViolation, "column is not connected to a sink")
	}
	return c.sink.AppendV(c.elemBytes(p, 1), 1)
}

// AppendV writes n canonical elements taken from p.
func (c *Column) AppendV(p unsafe.Pointer, n int) error {
	if c.sink == nil {
		return errors.New(errors.ErrorTypeStateViolation, "column is not connected to a sink")
	}
	return c.sink.AppendV(c.elemBytes(p, n), n)
}

// Read populates p with the element at the given global index.
func (c *Column) Read(globalIndex int64, p unsafe.Pointer) error {
	local, err := c.GlobalToLocal(globalIndex)
	if err != nil {
		return err
	}
	return c.ReadLocal(local, p)
}

// ReadLocal populates p with the element at the given cluster-local index.
func (c *Column) ReadLocal(idx LocalIndex, p unsafe.Pointer) error {
	return c.ReadV(idx, 1, p)
}

// ReadV populates p with count consecutive elements starting at idx.
func (c *Column) ReadV(idx LocalIndex, count int64, p unsafe.Pointer) error {
	if c.source == nil {
		return errors.New(errors.ErrorTypeStateViolation, "column is not connected to a source")
	}
	return c.source.ReadV(idx, count, c.elemBytes(p, int(count)))
}

// MapV returns a zero-copy view of canonical elements starting at idx and the
// number of elements until the end of the cluster page.
func (c *Column) MapV(idx LocalIndex) ([]byte, int64, error) {
	if c.source == nil {
		return nil, 0, errors.New(errors.ErrorTypeStateViolation, "column is not connected to a source")
	}
	return c.source.MapV(idx)
}

// GlobalToLocal translates a global element index into cluster-local form.
func (c *Column) GlobalToLocal(globalIndex int64) (LocalIndex, error) {
	if c.source == nil {
		return LocalIndex{}, errors.New(errors.ErrorTypeStateViolation, "column is not connected to a source")
	}
	return c.source.GlobalToLocal(globalIndex)
}

// LocalToGlobal translates a cluster-local index back to a global one.
func (c *Column) LocalToGlobal(idx LocalIndex) (int64, error) {
	if c.source == nil {
		return 0, errors.New(errors.ErrorTypeStateViolation, "column is not connected to a source")
	}
	start, err := c.source.ClusterStart(idx.Cluster)
	if err != nil {
		return 0, err
	}
	return start + idx.Index, nil
}

// GetCollectionInfo interprets the column as a stream of cluster-local
// collection offsets: it returns the index of the first item and the size of
// the collection of the entry at globalIndex.
func (c *Column) GetCollectionInfo(globalIndex int64) (LocalIndex, uint64, error) {
	local, err := c.GlobalToLocal(globalIndex)
	if err != nil {
		return LocalIndex{}, 0, err
	}
	return c.GetCollectionInfoLocal(local)
}

// GetCollectionInfoLocal is GetCollectionInfo for a cluster-local entry index.
// The offset of the first entry of a cluster counts from zero.
func (c *Column) GetCollectionInfoLocal(idx LocalIndex) (LocalIndex, uint64, error) {
	var prev, cur uint64
	if idx.Index == 0 {
		var buf [8]byte
		if err := c.source.ReadV(idx, 1, buf[:]); err != nil {
			return LocalIndex{}, 0, err
		}
		cur = binary.LittleEndian.Uint64(buf[:])
	} else {
		var buf [16]byte
		from := LocalIndex{Cluster: idx.Cluster, Index: idx.Index - 1}
		if err := c.source.ReadV(from, 2, buf[:]); err != nil {
			return LocalIndex{}, 0, err
		}
		prev = binary.LittleEndian.Uint64(buf[:8])
		cur = binary.LittleEndian.Uint64(buf[8:])
	}
	start := LocalIndex{Cluster: idx.Cluster, Index: int64(prev)}
	return start, cur - prev, nil
}
