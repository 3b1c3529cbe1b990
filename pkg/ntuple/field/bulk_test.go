package field_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/field"
	"github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
	"github.com/ajitpratap0/quasar/pkg/testutil"
)

// writeVectorCluster fills one cluster with nEntries vector-of-float32
// entries; entry i holds i%4 items with values i + k/2.
func writeVectorCluster(t *testing.T, name string, nEntries int) (*testutil.Harness, [][]float32) {
	t.Helper()
	vec, err := field.Create("vals", "[]float32")
	require.NoError(t, err)
	h := testutil.NewHarness(t, name, pagestore.DefaultWriteOptions(), vec)

	entries := make([][]float32, nEntries)
	for i := 0; i < nEntries; i++ {
		entry := make([]float32, i%4)
		for k := range entry {
			entry[k] = float32(i) + float32(k)/2
		}
		entries[i] = entry
		_, err := field.Bind(vec, &entry).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)
	return h, entries
}

func TestBulkMaskedVectorRead(t *testing.T) {
	h, entries := writeVectorCluster(t, "bulk_vec", 128)
	readVec := testutil.Child(t, h.ReadRoot(t), "vals")

	bulk := readVec.NewBulk()
	defer bulk.Release()
	first := column.LocalIndex{Cluster: 0, Index: 100}

	check := func(slot int) {
		got := *field.BulkAt[[]float32](bulk, slot)
		want := entries[100+slot]
		if len(want) == 0 {
			assert.Empty(t, got, "slot %d", slot)
		} else {
			assert.Equal(t, want, got, "slot %d", slot)
		}
	}

	maskReq := []bool{true, false, true, true, false, false, true, false}
	_, err := bulk.ReadBulk(first, maskReq, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, bulk.NValid(), "only the requested slots are populated")
	for _, slot := range []int{0, 2, 3, 6} {
		check(slot)
	}

	// a second call with a different mask populates the remaining slots
	// without re-reading the first set
	maskReq = []bool{false, true, false, false, false, true, false, true}
	_, err = bulk.ReadBulk(first, maskReq, 8)
	require.NoError(t, err)
	assert.Equal(t, 7, bulk.NValid(), "slot 4 was never requested")
	for _, slot := range []int{0, 1, 2, 3, 5, 6, 7} {
		check(slot)
	}

	// repeated reads of already valid slots return the same data
	_, err = bulk.ReadBulk(first, []bool{true, true, true, true, false, true, true, true}, 8)
	require.NoError(t, err)
	assert.Equal(t, 7, bulk.NValid(), "valid count is non-decreasing")
	for _, slot := range []int{0, 1, 2, 3, 5, 6, 7} {
		check(slot)
	}
}

func TestBulkSimpleFieldIgnoresMask(t *testing.T) {
	f, err := field.Create("x", "float64")
	require.NoError(t, err)
	h := testutil.NewHarness(t, "bulk_simple", pagestore.DefaultWriteOptions(), f)
	for i := 0; i < 32; i++ {
		v := float64(i) * 1.5
		_, err := f.Append(unsafe.Pointer(&v))
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readF := testutil.Child(t, h.ReadRoot(t), "x")
	bulk := readF.NewBulk()
	defer bulk.Release()

	maskReq := make([]bool, 8)
	maskReq[3] = true
	_, err = bulk.ReadBulk(column.LocalIndex{Cluster: 0, Index: 8}, maskReq, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, bulk.NValid(), "simple fields copy the whole range regardless of the mask")
	for i := 0; i < 8; i++ {
		assert.Equal(t, float64(8+i)*1.5, *field.BulkAt[float64](bulk, i))
	}
}

func TestBulkCardinality(t *testing.T) {
	h, entries := writeVectorCluster(t, "bulk_card", 64)
	readVec := testutil.Child(t, h.ReadRoot(t), "vals")

	card, err := field.Create("n_vals", "cardinality64")
	require.NoError(t, err)
	require.NoError(t, card.SetOnDiskID(readVec.OnDiskID()))
	require.NoError(t, card.ConnectSource(pagestore.NewMemorySource(h.Store)))

	bulk := card.NewBulk()
	defer bulk.Release()
	_, err = bulk.ReadBulk(column.LocalIndex{Cluster: 0, Index: 16}, nil, 32)
	require.NoError(t, err)
	assert.Equal(t, 32, bulk.NValid(), "cardinality bulk fills all slots")
	for i := 0; i < 32; i++ {
		assert.Equal(t, uint64(len(entries[16+i])), *field.BulkAt[uint64](bulk, i), "slot %d", i)
	}
}

func TestBulkResetOnNewRange(t *testing.T) {
	h, entries := writeVectorCluster(t, "bulk_reset", 64)
	readVec := testutil.Child(t, h.ReadRoot(t), "vals")

	bulk := readVec.NewBulk()
	defer bulk.Release()

	_, err := bulk.ReadBulk(column.LocalIndex{Cluster: 0, Index: 0}, nil, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, bulk.NValid())

	// adopting a disjoint range clears the availability mask
	_, err = bulk.ReadBulk(column.LocalIndex{Cluster: 0, Index: 32}, []bool{true, false, false, false}, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.NValid())
	assert.Empty(t, entries[32])
	assert.Empty(t, *field.BulkAt[[]float32](bulk, 0))
}
