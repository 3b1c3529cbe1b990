package column

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packUnpack(t *testing.T, elem ElementType, unpacked []byte, n int) []byte {
	t.Helper()
	packed, err := Pack(elem, unpacked, n)
	require.NoError(t, err)
	out, err := Unpack(elem, packed, n)
	require.NoError(t, err)
	return out
}

func TestPackRoundtripIntegers(t *testing.T) {
	values := []int32{0, 1, -1, math.MaxInt32, math.MinInt32, 42}
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}

	for _, elem := range []ElementType{ElementInt32, ElementSplitInt32} {
		out := packUnpack(t, elem, buf, len(values))
		assert.Equal(t, buf, out, "element %s", elem)
	}
}

func TestPackRoundtripBits(t *testing.T) {
	bools := []byte{1, 0, 0, 1, 1, 1, 0, 1, 1, 0, 1}
	out := packUnpack(t, ElementBit, bools, len(bools))
	assert.Equal(t, bools, out)

	packed, err := Pack(ElementBit, bools, len(bools))
	require.NoError(t, err)
	assert.Len(t, packed, 2, "11 bits pack into 2 bytes")
}

func TestPackRoundtripIndexColumns(t *testing.T) {
	offsets := []uint64{3, 3, 4, 6, 6, 100}
	buf := make([]byte, len(offsets)*8)
	for i, v := range offsets {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}

	for _, elem := range []ElementType{
		ElementIndex32, ElementIndex64, ElementSplitIndex32, ElementSplitIndex64,
	} {
		out := packUnpack(t, elem, buf, len(offsets))
		assert.Equal(t, buf, out, "element %s", elem)
	}

	// split index columns delta-encode before interleaving
	packed, err := Pack(ElementSplitIndex64, buf, len(offsets))
	require.NoError(t, err)
	plain := unsplitBytes(packed, 8, len(offsets))
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(plain[0:]))
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(plain[8:]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(plain[16:]))
}

func TestPackRoundtripReals(t *testing.T) {
	values := []float64{0, 2.5, -1e300, math.Pi}
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	for _, elem := range []ElementType{ElementReal64, ElementSplitReal64} {
		out := packUnpack(t, elem, buf, len(values))
		assert.Equal(t, buf, out, "element %s", elem)
	}
}

func TestPackHalfPrecision(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, 65504, float32(math.Inf(1))}
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	out := packUnpack(t, ElementReal16, buf, len(values))
	for i, want := range values {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		assert.Equal(t, want, got, "value %d survives half conversion exactly", i)
	}

	// NaN stays NaN
	nan := make([]byte, 4)
	binary.LittleEndian.PutUint32(nan, math.Float32bits(float32(math.NaN())))
	out = packUnpack(t, ElementReal16, nan, 1)
	assert.True(t, math.IsNaN(float64(math.Float32frombits(binary.LittleEndian.Uint32(out)))))
}

func TestPackSwitch(t *testing.T) {
	sw := []Switch{{Index: 7, Tag: 2}, {Index: 0, Tag: 0}}
	buf := make([]byte, len(sw)*16)
	for i, s := range sw {
		binary.LittleEndian.PutUint64(buf[i*16:], s.Index)
		binary.LittleEndian.PutUint32(buf[i*16+8:], s.Tag)
	}
	packed, err := Pack(ElementSwitch, buf, len(sw))
	require.NoError(t, err)
	assert.Len(t, packed, 24)
	out, err := Unpack(ElementSwitch, packed, len(sw))
	require.NoError(t, err)
	assert.Equal(t, buf, out)
}

func TestElementSizes(t *testing.T) {
	assert.Equal(t, 1, ElementBit.PackedSize())
	assert.Equal(t, 4, ElementIndex32.PackedSize())
	assert.Equal(t, 8, ElementIndex32.UnpackedSize())
	assert.Equal(t, 2, ElementReal16.PackedSize())
	assert.Equal(t, 4, ElementReal16.UnpackedSize())
	assert.Equal(t, 12, ElementSwitch.PackedSize())
	assert.Equal(t, 16, ElementSwitch.UnpackedSize())
}

func TestPlainCounterparts(t *testing.T) {
	assert.Equal(t, ElementInt64, ElementSplitInt64.PlainCounterpart())
	assert.Equal(t, ElementIndex32, ElementSplitIndex32.PlainCounterpart())
	assert.Equal(t, ElementBit, ElementBit.PlainCounterpart())
	assert.True(t, ElementSplitReal32.IsSplit())
	assert.False(t, ElementReal32.IsSplit())

	rep := Representation{ElementSplitIndex64, ElementUInt8}
	assert.Equal(t, Representation{ElementIndex64, ElementUInt8}, rep.Plain())
}

func TestRepresentationSet(t *testing.T) {
	set := NewRepresentationSet(
		[]Representation{{ElementSplitInt32}, {ElementInt32}},
		[]Representation{{ElementInt16}},
	)
	assert.Equal(t, Representation{ElementSplitInt32}, set.SerializationDefault())
	assert.True(t, set.HasSerialization(Representation{ElementInt32}))
	assert.False(t, set.HasSerialization(Representation{ElementInt16}))

	matched, ok := set.MatchDeserialization(Representation{ElementInt16})
	assert.True(t, ok)
	assert.Equal(t, Representation{ElementInt16}, matched)
	_, ok = set.MatchDeserialization(Representation{ElementInt64})
	assert.False(t, ok)
}

func TestElementTypeNames(t *testing.T) {
	for elem, info := range elementInfos {
		back, err := ElementTypeFromName(info.name)
		require.NoError(t, err)
		assert.Equal(t, elem, back)
	}
	_, err := ElementTypeFromName("no-such-element")
	assert.Error(t, err)
}
