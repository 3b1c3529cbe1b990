// Package testutil provides testing utilities for Quasar: a write/read
// harness around the in-memory page store and helpers for driving field
// trees in tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quasar/pkg/ntuple/field"
	"github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
)

// Harness owns one in-memory dataset with a connected write tree.
type Harness struct {
	Store *pagestore.MemoryStore
	Sink  *pagestore.MemorySink
	Root  *field.Field
}

// NewHarness builds a root over the given fields and connects it to a fresh
// in-memory sink.
func NewHarness(t *testing.T, name string, opts pagestore.WriteOptions, fields ...*field.Field) *Harness {
	t.Helper()
	root := field.NewRoot()
	for _, f := range fields {
		require.NoError(t, root.Attach(f))
	}
	store := pagestore.NewMemoryStore(name)
	sink := pagestore.NewMemorySink(store, opts)
	require.NoError(t, root.ConnectSink(sink, 0))
	return &Harness{Store: store, Sink: sink, Root: root}
}

// CommitCluster closes the current cluster on the field tree and the sink.
func (h *Harness) CommitCluster(t *testing.T) {
	t.Helper()
	h.Root.CommitCluster()
	require.NoError(t, h.Sink.CommitCluster())
}

// CommitDataset seals the dataset for reading.
func (h *Harness) CommitDataset(t *testing.T) {
	t.Helper()
	require.NoError(t, h.Sink.CommitDataset())
}

// ReadRoot clones the write tree, binds it to the committed dataset and
// returns the connected read tree.
func (h *Harness) ReadRoot(t *testing.T) *field.Field {
	t.Helper()
	readRoot := field.NewRoot()
	for _, f := range h.Root.SubFields() {
		require.NoError(t, readRoot.Attach(f.Clone(f.Name())))
	}
	source := pagestore.NewMemorySource(h.Store)
	require.NoError(t, readRoot.ConnectSource(source))
	return readRoot
}

// Child finds a direct child by name.
func Child(t *testing.T, parent *field.Field, name string) *field.Field {
	t.Helper()
	for _, c := range parent.SubFields() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("no child %q below %q", name, parent.Name())
	return nil
}
