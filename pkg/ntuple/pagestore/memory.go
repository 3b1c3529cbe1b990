package pagestore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/logger"
	"github.com/ajitpratap0/quasar/pkg/metrics"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/pool"
)

// storedPage is one sealed cluster page of a column.
type storedPage struct {
	codec      string
	data       []byte
	nElements  int
	packedSize int
}

// storedColumn is the persisted element stream of one column.
type storedColumn struct {
	fieldID    descriptor.FieldID
	index      uint32
	elem       column.ElementType
	firstEntry int64
	pages      []storedPage
}

// MemoryStore keeps a dataset's pages and descriptor in memory. A sink fills
// it; any number of sources may read it afterwards.
type MemoryStore struct {
	name string

	mu       sync.Mutex
	columns  []*storedColumn
	descData []byte
}

// NewMemoryStore creates an empty store for a named dataset.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name}
}

// Name returns the dataset name.
func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) addColumn(c *storedColumn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = append(s.columns, c)
}

// MemorySink is the write side of a MemoryStore.
type MemorySink struct {
	store   *MemoryStore
	opts    WriteOptions
	builder *descriptor.Builder
	open    []*sinkColumn
	log     *zap.Logger
	sealed  bool
}

// NewMemorySink creates a sink that seals pages into the given store.
func NewMemorySink(store *MemoryStore, opts WriteOptions) *MemorySink {
	return &MemorySink{
		store:   store,
		opts:    opts,
		builder: descriptor.NewBuilder(store.name),
		log:     logger.With(zap.String("dataset", store.name)),
	}
}

// Options implements PageSink.
func (s *MemorySink) Options() WriteOptions { return s.opts }

// AddField implements PageSink.
func (s *MemorySink) AddField(fd descriptor.FieldDescriptor) descriptor.FieldID {
	return s.builder.AddField(fd)
}

// AddColumn implements PageSink.
func (s *MemorySink) AddColumn(fieldID descriptor.FieldID, elem column.ElementType,
	index uint32, firstEntry int64) (column.SinkColumn, error) {
	if s.sealed {
		return nil, errors.New(errors.ErrorTypeStateViolation, "sink already committed")
	}
	stored := &storedColumn{fieldID: fieldID, index: index, elem: elem, firstEntry: firstEntry}
	s.store.addColumn(stored)
	s.builder.AddColumn(descriptor.ColumnDescriptor{
		FieldID:     fieldID,
		Index:       index,
		ElementType: elem.String(),
		FirstEntry:  firstEntry,
	})
	sc := &sinkColumn{stored: stored, elem: elem}
	s.open = append(s.open, sc)
	return sc, nil
}

// CommitCluster implements PageSink. Every column seals one page per cluster,
// including columns without elements in this cluster.
func (s *MemorySink) CommitCluster() error {
	if s.sealed {
		return errors.New(errors.ErrorTypeStateViolation, "sink already committed")
	}
	var totalBytes int
	for _, sc := range s.open {
		n, err := sc.seal(s.opts.Compression)
		if err != nil {
			return err
		}
		totalBytes += n
	}
	metrics.ClustersCommitted.WithLabelValues(s.store.name).Inc()
	s.log.Debug("cluster committed",
		zap.Int("columns", len(s.open)),
		zap.Int("bytes", totalBytes))
	return nil
}

// CommitDataset implements PageSink.
func (s *MemorySink) CommitDataset() error {
	if s.sealed {
		return errors.New(errors.ErrorTypeStateViolation, "sink already committed")
	}
	pending := false
	for _, sc := range s.open {
		if sc.n > 0 {
			pending = true
			break
		}
	}
	if pending {
		if err := s.CommitCluster(); err != nil {
			return err
		}
	}
	data, err := s.builder.Descriptor().Marshal()
	if err != nil {
		return err
	}
	s.store.mu.Lock()
	s.store.descData = data
	s.store.mu.Unlock()
	s.sealed = true
	s.log.Info("dataset committed", zap.Int("columns", len(s.open)))
	return nil
}

// sinkColumn buffers canonical elements of the open cluster.
type sinkColumn struct {
	stored *storedColumn
	elem   column.ElementType
	buf    []byte
	n      int
	total  int64
}

// AppendV implements column.SinkColumn.
func (c *sinkColumn) AppendV(data []byte, n int) error {
	if c.buf == nil {
		c.buf = pool.GlobalBufferPool.Get(4096)[:0]
	}
	c.buf = append(c.buf, data...)
	c.n += n
	c.total += int64(n)
	return nil
}

// NElements implements column.SinkColumn.
func (c *sinkColumn) NElements() int64 { return c.total }

// seal packs and compresses the open page and appends it to the stored column.
// Returns the on-disk byte count of the sealed page.
func (c *sinkColumn) seal(codec string) (int, error) {
	packed, err := column.Pack(c.elem, c.buf, c.n)
	if err != nil {
		return 0, err
	}
	compressed, usedCodec, err := compressPage(codec, packed)
	if err != nil {
		return 0, err
	}
	c.stored.pages = append(c.stored.pages, storedPage{
		codec:      usedCodec,
		data:       compressed,
		nElements:  c.n,
		packedSize: len(packed),
	})
	metrics.PagesCommitted.WithLabelValues(usedCodec).Inc()
	metrics.BytesWritten.WithLabelValues(usedCodec).Add(float64(len(compressed)))
	metrics.BytesUnpacked.WithLabelValues(usedCodec).Add(float64(len(c.buf)))
	if c.buf != nil {
		pool.GlobalBufferPool.Put(c.buf)
		c.buf = nil
	}
	c.n = 0
	return len(compressed), nil
}

// MemorySource is the read side of a MemoryStore.
type MemorySource struct {
	store *MemoryStore
	desc  *descriptor.Descriptor
}

// NewMemorySource opens a committed store for reading.
func NewMemorySource(store *MemoryStore) *MemorySource {
	return &MemorySource{store: store}
}

// Descriptor implements PageSource.
func (s *MemorySource) Descriptor() (*descriptor.Descriptor, error) {
	if s.desc != nil {
		return s.desc, nil
	}
	s.store.mu.Lock()
	data := s.store.descData
	s.store.mu.Unlock()
	if data == nil {
		return nil, errors.New(errors.ErrorTypeStateViolation, "dataset not committed")
	}
	desc, err := descriptor.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	s.desc = desc
	return desc, nil
}

// LookupColumns implements PageSource.
func (s *MemorySource) LookupColumns(fieldID descriptor.FieldID) ([]SourceColumnInfo, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var out []SourceColumnInfo
	for _, c := range s.store.columns {
		if c.fieldID != fieldID {
			continue
		}
		out = append(out, SourceColumnInfo{
			ElementType: c.elem,
			Index:       c.index,
			Handle:      newSourceColumn(c, s.store.name),
		})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// LookupTypeVersion implements PageSource.
func (s *MemorySource) LookupTypeVersion(fieldID descriptor.FieldID) (uint32, error) {
	desc, err := s.Descriptor()
	if err != nil {
		return 0, err
	}
	fd, err := desc.Field(fieldID)
	if err != nil {
		return 0, err
	}
	return fd.TypeVersion, nil
}

// sourceColumn reads canonical elements back out of a stored column. It caches
// the most recently loaded cluster page; fields read with cluster locality, so
// one page cache per reader suffices.
type sourceColumn struct {
	col     *storedColumn
	dataset string
	starts  []int64

	cachedCluster int
	cache         []byte
}

func newSourceColumn(col *storedColumn, dataset string) *sourceColumn {
	starts := make([]int64, len(col.pages)+1)
	for i, p := range col.pages {
		starts[i+1] = starts[i] + int64(p.nElements)
	}
	return &sourceColumn{col: col, dataset: dataset, starts: starts, cachedCluster: -1}
}

// NElements implements column.SourceColumn.
func (c *sourceColumn) NElements() int64 { return c.starts[len(c.starts)-1] }

// GlobalToLocal implements column.SourceColumn.
func (c *sourceColumn) GlobalToLocal(globalIndex int64) (column.LocalIndex, error) {
	if globalIndex < 0 || globalIndex >= c.NElements() {
		return column.LocalIndex{}, errors.Newf(errors.ErrorTypeIO,
			"element index %d out of range (have %d)", globalIndex, c.NElements())
	}
	cluster := 0
	for c.starts[cluster+1] <= globalIndex {
		cluster++
	}
	return column.LocalIndex{Cluster: cluster, Index: globalIndex - c.starts[cluster]}, nil
}

// ClusterStart implements column.SourceColumn.
func (c *sourceColumn) ClusterStart(cluster int) (int64, error) {
	if cluster < 0 || cluster >= len(c.col.pages) {
		return 0, errors.Newf(errors.ErrorTypeIO, "cluster %d out of range", cluster)
	}
	return c.starts[cluster], nil
}

func (c *sourceColumn) load(cluster int) error {
	if cluster == c.cachedCluster {
		return nil
	}
	if cluster < 0 || cluster >= len(c.col.pages) {
		return errors.Newf(errors.ErrorTypeIO, "cluster %d out of range", cluster)
	}
	page := c.col.pages[cluster]
	packed, err := decompressPage(page.codec, page.data, page.packedSize)
	if err != nil {
		return err
	}
	unpacked, err := column.Unpack(c.col.elem, packed, page.nElements)
	if err != nil {
		return err
	}
	c.cache = unpacked
	c.cachedCluster = cluster
	metrics.PagesLoaded.WithLabelValues(c.dataset).Inc()
	return nil
}

// ReadV implements column.SourceColumn.
func (c *sourceColumn) ReadV(from column.LocalIndex, count int64, dst []byte) error {
	if err := c.load(from.Cluster); err != nil {
		return err
	}
	w := int64(c.col.elem.UnpackedSize())
	n := int64(c.col.pages[from.Cluster].nElements)
	if from.Index < 0 || from.Index+count > n {
		return errors.Newf(errors.ErrorTypeIO,
			"read [%d, %d) out of cluster %d range (%d elements)",
			from.Index, from.Index+count, from.Cluster, n)
	}
	copy(dst, c.cache[from.Index*w:(from.Index+count)*w])
	return nil
}

// MapV implements column.SourceColumn.
func (c *sourceColumn) MapV(from column.LocalIndex) ([]byte, int64, error) {
	if err := c.load(from.Cluster); err != nil {
		return nil, 0, err
	}
	n := int64(c.col.pages[from.Cluster].nElements)
	if from.Index < 0 || from.Index >= n {
		return nil, 0, errors.Newf(errors.ErrorTypeIO,
			"map index %d out of cluster %d range (%d elements)", from.Index, from.Cluster, n)
	}
	w := int64(c.col.elem.UnpackedSize())
	return c.cache[from.Index*w:], n - from.Index, nil
}
