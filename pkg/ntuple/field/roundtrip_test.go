package field_test

import (
	"math"
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/field"
	"github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
	"github.com/ajitpratap0/quasar/pkg/testutil"
)

type flatEvent struct {
	A int32   `quasar:"a"`
	B float64 `quasar:"b"`
	C string  `quasar:"c"`
}

func TestRoundtripFlatRecord(t *testing.T) {
	reg := typereg.NewRegistry()
	_, err := reg.RegisterStruct("FlatEvent", reflect.TypeOf(flatEvent{}), 1)
	require.NoError(t, err)

	evt, err := field.CreateWithRegistry("evt", "FlatEvent", reg)
	require.NoError(t, err)

	entries := []flatEvent{
		{A: 1, B: 2.5, C: "x"},
		{A: -1, B: 0.0, C: ""},
		{A: math.MaxInt32, B: math.NaN(), C: "hello"},
	}

	h := testutil.NewHarness(t, "flat", pagestore.DefaultWriteOptions(), evt)
	for i := range entries {
		_, err := field.Bind(evt, &entries[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readEvt := testutil.Child(t, h.ReadRoot(t), "evt")
	v, err := readEvt.NewValue()
	require.NoError(t, err)
	defer v.Destroy()

	for i, want := range entries {
		require.NoError(t, v.Read(int64(i)))
		got := *field.As[flatEvent](v)
		assert.Equal(t, want.A, got.A, "entry %d", i)
		assert.Equal(t, want.C, got.C, "entry %d", i)
		if math.IsNaN(want.B) {
			assert.True(t, math.IsNaN(got.B), "entry %d", i)
		} else {
			assert.Equal(t, want.B, got.B, "entry %d", i)
		}
	}
}

func TestRoundtripVectorOffsets(t *testing.T) {
	vec, err := field.Create("hits", "[]int32")
	require.NoError(t, err)

	entries := [][]int32{{1, 2, 3}, {}, {4}, {5, 6}}
	h := testutil.NewHarness(t, "vec", pagestore.DefaultWriteOptions(), vec)
	for i := range entries {
		_, err := field.Bind(vec, &entries[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readRoot := h.ReadRoot(t)
	readVec := testutil.Child(t, readRoot, "hits")

	var got []int32
	for i, want := range entries {
		require.NoError(t, readVec.Read(int64(i), unsafe.Pointer(&got)))
		if len(want) == 0 {
			assert.Empty(t, got, "entry %d", i)
		} else {
			assert.Equal(t, want, got, "entry %d", i)
		}
	}

	// the item column holds the flattened items; item index 4 is 5
	item := readVec.SubFields()[0]
	var single int32
	require.NoError(t, item.ReadLocal(column.LocalIndex{Cluster: 0, Index: 4}, unsafe.Pointer(&single)))
	assert.Equal(t, int32(5), single)

	// the offset column ends the cluster with 3, 3, 4, 6: verify through the
	// cardinality projection bound to the same on-disk field
	card, err := field.Create("n_hits", "cardinality64")
	require.NoError(t, err)
	require.NoError(t, card.SetOnDiskID(readVec.OnDiskID()))
	require.NoError(t, card.ConnectSource(pagestore.NewMemorySource(h.Store)))
	sizes := make([]uint64, len(entries))
	for i := range entries {
		require.NoError(t, card.Read(int64(i), unsafe.Pointer(&sizes[i])))
	}
	assert.Equal(t, []uint64{3, 0, 1, 2}, sizes)
}

func TestRoundtripVariant(t *testing.T) {
	vr, err := field.Create("payload", "variant[int32,string,[]int32]")
	require.NoError(t, err)

	h := testutil.NewHarness(t, "variant", pagestore.DefaultWriteOptions(), vr)

	v, err := vr.NewValue()
	require.NoError(t, err)
	defer v.Destroy()

	writeAlt := func(tag uint8, set func(unsafe.Pointer)) {
		require.NoError(t, field.SetVariantTag(vr, v.Ptr(), tag))
		if set != nil {
			slot, err := field.VariantSlot(vr, v.Ptr(), tag)
			require.NoError(t, err)
			set(slot)
		}
		_, err := v.Append()
		require.NoError(t, err)
	}
	writeAlt(1, func(p unsafe.Pointer) { *(*int32)(p) = 42 })
	writeAlt(2, func(p unsafe.Pointer) { *(*string)(p) = "hi" })
	writeAlt(3, func(p unsafe.Pointer) { *(*[]int32)(p) = []int32{7, 8} })
	writeAlt(0, nil)

	h.CommitCluster(t)
	h.CommitDataset(t)

	readVr := testutil.Child(t, h.ReadRoot(t), "payload")
	r, err := readVr.NewValue()
	require.NoError(t, err)
	defer r.Destroy()

	require.NoError(t, r.Read(0))
	tag, err := field.VariantTag(readVr, r.Ptr())
	require.NoError(t, err)
	assert.Equal(t, uint8(1), tag)
	handles := readVr.Split(r)
	require.Len(t, handles, 1, "split yields exactly one child handle")
	assert.Equal(t, int32(42), *field.As[int32](handles[0]))

	require.NoError(t, r.Read(1))
	tag, _ = field.VariantTag(readVr, r.Ptr())
	require.Equal(t, uint8(2), tag)
	slot, err := field.VariantSlot(readVr, r.Ptr(), 2)
	require.NoError(t, err)
	assert.Equal(t, "hi", *(*string)(slot))

	require.NoError(t, r.Read(2))
	tag, _ = field.VariantTag(readVr, r.Ptr())
	require.Equal(t, uint8(3), tag)
	slot, err = field.VariantSlot(readVr, r.Ptr(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8}, *(*[]int32)(slot))

	require.NoError(t, r.Read(3))
	tag, _ = field.VariantTag(readVr, r.Ptr())
	assert.Equal(t, uint8(0), tag, "tag 0 reads back as valueless")
	assert.Empty(t, readVr.Split(r))
}

func TestRoundtripDenseNullable(t *testing.T) {
	ptr, err := field.Create("maybe", "*int32")
	require.NoError(t, err)
	dense, err := field.IsDense(ptr)
	require.NoError(t, err)
	assert.True(t, dense, "4-byte items default to the dense encoding")

	one, seven := int32(1), int32(7)
	entries := []*int32{&one, nil, nil, &seven}

	h := testutil.NewHarness(t, "nullable", pagestore.DefaultWriteOptions(), ptr)
	for i := range entries {
		_, err := field.Bind(ptr, &entries[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readPtr := testutil.Child(t, h.ReadRoot(t), "maybe")

	// dense: the item column stays 1:1 with the presence bits
	assert.Equal(t, int64(4), readPtr.NElements(), "four presence bits")
	assert.Equal(t, int64(4), readPtr.SubFields()[0].NElements(),
		"one item per outer entry, defaults for missing slots")

	var got *int32
	for i, want := range entries {
		require.NoError(t, readPtr.Read(int64(i), unsafe.Pointer(&got)))
		if want == nil {
			assert.Nil(t, got, "entry %d", i)
		} else {
			require.NotNil(t, got, "entry %d", i)
			assert.Equal(t, *want, *got, "entry %d", i)
		}
	}
}

func TestRoundtripSparseNullable(t *testing.T) {
	opt, err := field.Create("maybe", "optional[string]")
	require.NoError(t, err)
	dense, err := field.IsDense(opt)
	require.NoError(t, err)
	assert.False(t, dense, "8-byte offset items default to the sparse encoding")

	type optString struct {
		V  string
		Ok bool
	}
	entries := []optString{{V: "a", Ok: true}, {}, {V: "xyz", Ok: true}, {}}

	h := testutil.NewHarness(t, "sparse", pagestore.DefaultWriteOptions(), opt)
	for i := range entries {
		_, err := field.Bind(opt, &entries[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readOpt := testutil.Child(t, h.ReadRoot(t), "maybe")
	assert.Equal(t, int64(2), readOpt.SubFields()[0].NElements(),
		"sparse: one item per present entry only")

	var got optString
	for i, want := range entries {
		require.NoError(t, readOpt.Read(int64(i), unsafe.Pointer(&got)))
		assert.Equal(t, want.Ok, got.Ok, "entry %d", i)
		if want.Ok {
			assert.Equal(t, want.V, got.V, "entry %d", i)
		}
	}
}

func TestRoundtripFixedArrayAndBitset(t *testing.T) {
	arr, err := field.Create("xyz", "[3]float64")
	require.NoError(t, err)
	bits, err := field.Create("flags", "bitset[13]")
	require.NoError(t, err)

	arrEntries := [][3]float64{{1, 2, 3}, {4, 5, 6}}
	bitEntries := [][1]uint64{{0b1010110101101}, {0b0000000000011}}

	h := testutil.NewHarness(t, "fixed", pagestore.DefaultWriteOptions(), arr, bits)
	for i := range arrEntries {
		_, err := field.Bind(arr, &arrEntries[i]).Append()
		require.NoError(t, err)
		_, err = field.Bind(bits, &bitEntries[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readRoot := h.ReadRoot(t)
	readArr := testutil.Child(t, readRoot, "xyz")
	readBits := testutil.Child(t, readRoot, "flags")

	var gotArr [3]float64
	var gotBits [1]uint64
	for i := range arrEntries {
		require.NoError(t, readArr.Read(int64(i), unsafe.Pointer(&gotArr)))
		assert.Equal(t, arrEntries[i], gotArr)
		require.NoError(t, readBits.Read(int64(i), unsafe.Pointer(&gotBits)))
		assert.Equal(t, bitEntries[i], gotBits)
	}
}

func TestRoundtripSet(t *testing.T) {
	set, err := field.Create("tags", "set[int16]")
	require.NoError(t, err)

	entries := []map[int16]struct{}{
		{1: {}, 5: {}, 9: {}},
		{},
		{3: {}},
	}

	h := testutil.NewHarness(t, "set", pagestore.DefaultWriteOptions(), set)
	for i := range entries {
		_, err := field.Bind(set, &entries[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readSet := testutil.Child(t, h.ReadRoot(t), "tags")
	var got map[int16]struct{}
	for i, want := range entries {
		require.NoError(t, readSet.Read(int64(i), unsafe.Pointer(&got)))
		assert.Equal(t, want, got, "entry %d", i)
	}
}

type colorEnum int16

func TestRoundtripEnumAndPair(t *testing.T) {
	reg := typereg.NewRegistry()
	_, err := reg.RegisterEnum("Color", reflect.TypeOf(colorEnum(0)))
	require.NoError(t, err)

	en, err := field.CreateWithRegistry("color", "Color", reg)
	require.NoError(t, err)
	assert.Equal(t, unsafe.Sizeof(colorEnum(0)), en.ValueSize(),
		"enum size mirrors the underlying integer subfield")

	pr, err := field.CreateWithRegistry("kv", "pair[int32,float64]", reg)
	require.NoError(t, err)

	type kv struct {
		K int32
		V float64
	}
	colors := []colorEnum{2, 0, 7}
	pairs := []kv{{1, 0.5}, {2, 1.5}, {3, 2.5}}

	h := testutil.NewHarness(t, "enumpair", pagestore.DefaultWriteOptions(), en, pr)
	for i := range colors {
		_, err := field.Bind(en, &colors[i]).Append()
		require.NoError(t, err)
		_, err = field.Bind(pr, &pairs[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readRoot := h.ReadRoot(t)
	readEn := testutil.Child(t, readRoot, "color")
	readPr := testutil.Child(t, readRoot, "kv")

	var gotColor colorEnum
	var gotPair kv
	for i := range colors {
		require.NoError(t, readEn.Read(int64(i), unsafe.Pointer(&gotColor)))
		assert.Equal(t, colors[i], gotColor)
		require.NoError(t, readPr.Read(int64(i), unsafe.Pointer(&gotPair)))
		assert.Equal(t, pairs[i], gotPair)
	}
}

type evtV1 struct {
	X int32 `quasar:"x"`
}

type evtV2 struct {
	X int32 `quasar:"x"`
	Y int32 `quasar:"-"`
}

func TestSchemaEvolutionRule(t *testing.T) {
	wreg := typereg.NewRegistry()
	_, err := wreg.RegisterStruct("Evt", reflect.TypeOf(evtV1{}), 1)
	require.NoError(t, err)

	evt, err := field.CreateWithRegistry("evt", "Evt", wreg)
	require.NoError(t, err)

	h := testutil.NewHarness(t, "evolution", pagestore.DefaultWriteOptions(), evt)
	for x := int32(0); x < 10; x++ {
		e := evtV1{X: x}
		_, err := field.Bind(evt, &e).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	// the reader's view of Evt is version 2 with a derived member y = 2*x
	rreg := typereg.NewRegistry()
	_, err = rreg.RegisterStruct("Evt", reflect.TypeOf(evtV2{}), 2)
	require.NoError(t, err)
	rreg.AddReadRule("Evt", 1, func(obj unsafe.Pointer) {
		e := (*evtV2)(obj)
		e.Y = 2 * e.X
	})

	readEvt, err := field.CreateWithRegistry("evt", "Evt", rreg)
	require.NoError(t, err)
	require.NoError(t, readEvt.SetOnDiskID(evt.OnDiskID()))
	require.NoError(t, readEvt.ConnectSource(pagestore.NewMemorySource(h.Store)))
	assert.Equal(t, uint32(1), readEvt.OnDiskTypeVersion())
	assert.True(t, readEvt.HasReadCallbacks(), "evolution rule installed as read callback")

	var got evtV2
	for i := int64(0); i < 10; i++ {
		require.NoError(t, readEvt.Read(i, unsafe.Pointer(&got)))
		assert.Equal(t, int32(i), got.X)
		assert.Equal(t, 2*got.X, got.Y, "entry %d transformed by the rule", i)
	}
}

func TestRoundtripAtomicAndNestedVector(t *testing.T) {
	at, err := field.Create("counter", "atomic[int64]")
	require.NoError(t, err)
	nested, err := field.Create("matrix", "[][]float32")
	require.NoError(t, err)

	counters := []int64{10, -3}
	matrices := [][][]float32{{{1, 2}, {3}}, {{4, 5, 6}}}

	h := testutil.NewHarness(t, "nested", pagestore.DefaultWriteOptions(), at, nested)
	for i := range counters {
		_, err := field.Bind(at, &counters[i]).Append()
		require.NoError(t, err)
		_, err = field.Bind(nested, &matrices[i]).Append()
		require.NoError(t, err)
	}
	h.CommitCluster(t)
	h.CommitDataset(t)

	readRoot := h.ReadRoot(t)
	readAt := testutil.Child(t, readRoot, "counter")
	readNested := testutil.Child(t, readRoot, "matrix")

	var gotCounter int64
	var gotMatrix [][]float32
	for i := range counters {
		require.NoError(t, readAt.Read(int64(i), unsafe.Pointer(&gotCounter)))
		assert.Equal(t, counters[i], gotCounter)
		require.NoError(t, readNested.Read(int64(i), unsafe.Pointer(&gotMatrix)))
		assert.Equal(t, matrices[i], gotMatrix)
	}
}

func TestValueSizePreservedAcrossConnections(t *testing.T) {
	for _, typeName := range []string{"int32", "string", "[]float64", "variant[int32,string]"} {
		f, err := field.Create("x", typeName)
		require.NoError(t, err)
		size, align := f.ValueSize(), f.Alignment()

		h := testutil.NewHarness(t, "sizes_"+typeName, pagestore.DefaultWriteOptions(), f)
		v, err := f.NewValue()
		require.NoError(t, err)
		_, err = v.Append()
		require.NoError(t, err)
		v.Destroy()
		h.CommitCluster(t)
		h.CommitDataset(t)

		readF := testutil.Child(t, h.ReadRoot(t), "x")
		assert.Equal(t, size, readF.ValueSize(), typeName)
		assert.Equal(t, align, readF.Alignment(), typeName)
	}
}

func TestAppendReturnsPackedSize(t *testing.T) {
	f, err := field.Create("x", "int32")
	require.NoError(t, err)
	h := testutil.NewHarness(t, "packed", pagestore.DefaultWriteOptions(), f)

	v := int32(5)
	n, err := f.Append(unsafe.Pointer(&v))
	require.NoError(t, err)
	assert.Equal(t, 4, n, "mappable fields report the principal column's packed size")
	h.CommitCluster(t)
	h.CommitDataset(t)
}

func TestWriteOptionsDisableSplitEncoding(t *testing.T) {
	f, err := field.Create("x", "int64")
	require.NoError(t, err)
	h := testutil.NewHarness(t, "plain",
		pagestore.WriteOptions{Compression: pagestore.CompressionNone}, f)

	v := int64(-7)
	_, err = f.Append(unsafe.Pointer(&v))
	require.NoError(t, err)
	h.CommitCluster(t)
	h.CommitDataset(t)

	// without compression the split default decays to the plain counterpart
	readF := testutil.Child(t, h.ReadRoot(t), "x")
	assert.Equal(t, column.Representation{column.ElementInt64},
		readF.OnDiskColumnRepresentation())

	var got int64
	require.NoError(t, readF.Read(0, unsafe.Pointer(&got)))
	assert.Equal(t, v, got)
}
