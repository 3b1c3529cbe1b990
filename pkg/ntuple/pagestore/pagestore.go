// Package pagestore supplies and consumes pages of packed column elements.
// Fields talk to it through the narrow PageSink and PageSource interfaces;
// the in-memory implementation seals one page per column and cluster, packs
// elements with the column codecs and optionally compresses them with zstd or
// lz4.
package pagestore

import (
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
)

// Compression codecs understood by the page store.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// WriteOptions steer column representation selection and page sealing.
type WriteOptions struct {
	// Compression selects the page codec; CompressionNone disables compression
	// and makes fields swap split-encoded columns for their plain counterparts.
	Compression string
	// UseSplitEncoding keeps split-encoded default representations. Turning it
	// off swaps split columns for plain ones even when compression is on.
	UseSplitEncoding bool
}

// DefaultWriteOptions compresses with zstd and keeps split encodings.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Compression: CompressionZstd, UseSplitEncoding: true}
}

// CompressionEnabled reports whether pages are compressed.
func (o WriteOptions) CompressionEnabled() bool {
	return o.Compression != "" && o.Compression != CompressionNone
}

// SplitEnabled reports whether split-encoded representations stay in effect.
func (o WriteOptions) SplitEnabled() bool {
	return o.CompressionEnabled() && o.UseSplitEncoding
}

// PageSink receives column elements from a connected field tree.
type PageSink interface {
	// Options returns the write options the sink was created with.
	Options() WriteOptions
	// AddField registers a field descriptor and assigns its on-disk id.
	AddField(fd descriptor.FieldDescriptor) descriptor.FieldID
	// AddColumn creates the element stream for one column of a field.
	AddColumn(fieldID descriptor.FieldID, elem column.ElementType, index uint32,
		firstEntry int64) (column.SinkColumn, error)
	// CommitCluster seals the open pages of every column.
	CommitCluster() error
	// CommitDataset seals a trailing open cluster and persists the descriptor.
	CommitDataset() error
}

// SourceColumnInfo describes one on-disk column found for a field.
type SourceColumnInfo struct {
	ElementType column.ElementType
	Index       uint32
	Handle      column.SourceColumn
}

// PageSource hands out descriptors and per-column read handles.
type PageSource interface {
	// Descriptor returns the persisted schema of the dataset.
	Descriptor() (*descriptor.Descriptor, error)
	// LookupColumns returns the on-disk columns of a field, ordered by index.
	LookupColumns(fieldID descriptor.FieldID) ([]SourceColumnInfo, error)
	// LookupTypeVersion returns the on-disk type version of a field.
	LookupTypeVersion(fieldID descriptor.FieldID) (uint32, error)
}
