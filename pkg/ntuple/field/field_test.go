package field

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
)

func TestEnsureValidName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"pt", true},
		{"track_hits", true},
		{"x1", true},
		{"", false},
		{"1x", false},
		{"a.b", false},
		{"a\x01b", false},
	}
	for _, tc := range tests {
		err := EnsureValidName(tc.name)
		if tc.valid {
			assert.NoError(t, err, "name %q", tc.name)
		} else {
			assert.Error(t, err, "name %q", tc.name)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
		}
	}
}

func TestCreatePrimitives(t *testing.T) {
	for _, typeName := range []string{
		"bool", "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "string", "index64",
	} {
		f, err := Create("x", typeName)
		require.NoError(t, err, typeName)
		assert.Equal(t, typeName, f.TypeName())
		assert.Equal(t, StateUnconnected, f.State())
	}
}

func TestCreateAliases(t *testing.T) {
	f, err := Create("b", "byte")
	require.NoError(t, err)
	assert.Equal(t, "uint8", f.TypeName())
	assert.Equal(t, "byte", f.TypeAlias())

	f, err = Create("r", "rune")
	require.NoError(t, err)
	assert.Equal(t, "int32", f.TypeName())
}

func TestCreateComposites(t *testing.T) {
	for _, typeName := range []string{
		"[]int32",
		"[4]float32",
		"[][]float64",
		"*int32",
		"optional[float64]",
		"variant[int32,string,[]int32]",
		"set[int16]",
		"bitset[13]",
		"pair[int32,float64]",
		"tuple[int8,int16,int32]",
		"atomic[int64]",
		"cardinality32",
		"cardinality64",
	} {
		f, err := Create("x", typeName)
		require.NoError(t, err, typeName)
		assert.Equal(t, typeName, f.TypeName())

		// canonical type names create equivalent fields again
		g, err := Create("y", f.TypeName())
		require.NoError(t, err, typeName)
		assert.Equal(t, f.TypeName(), g.TypeName())
		assert.Equal(t, f.ValueSize(), g.ValueSize())
		assert.Equal(t, f.Alignment(), g.Alignment())
	}
}

func TestCreateNormalizesSpaces(t *testing.T) {
	f, err := Create("v", "variant[int32, string]")
	require.NoError(t, err)
	assert.Equal(t, "variant[int32,string]", f.TypeName())
	assert.Empty(t, f.TypeAlias(), "space normalization yields the canonical name")
}

func TestCreateUnknownType(t *testing.T) {
	_, err := Create("x", "no_such_type")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestCreateInvalidName(t *testing.T) {
	_, err := Create("bad.name", "int32")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestCloneResetsState(t *testing.T) {
	f, err := Create("jets", "[]float32")
	require.NoError(t, err)
	require.NoError(t, f.SetOnDiskID(17))
	f.SetDescription("jet momenta")

	c := f.Clone("jets2")
	assert.Equal(t, "jets2", c.Name())
	assert.Equal(t, f.TypeName(), c.TypeName())
	assert.Equal(t, f.OnDiskID(), c.OnDiskID())
	assert.Equal(t, StateUnconnected, c.State())
	assert.Equal(t, f.Description(), c.Description())
	require.Len(t, c.SubFields(), 1)
	assert.Same(t, c, c.SubFields()[0].Parent())
}

func TestTraits(t *testing.T) {
	leaf, _ := Create("a", "int32")
	assert.Equal(t, TraitTrivialType|TraitMappable, leaf.Traits())
	assert.True(t, leaf.IsSimple())

	str, _ := Create("s", "string")
	assert.Equal(t, TraitTriviallyConstructible, str.Traits()&TraitTriviallyConstructible)
	assert.Zero(t, str.Traits()&TraitMappable)
	assert.False(t, str.IsSimple())

	vec, _ := Create("v", "[]string")
	assert.Zero(t, vec.Traits()&TraitMappable)

	arr, _ := Create("w", "[3]int32")
	assert.Equal(t, TraitTrivialType, arr.Traits())
	assert.Equal(t, 3, arr.Repetitions())
}

func TestReadCallbacksDemoteSimple(t *testing.T) {
	f, err := Create("pt", "float32")
	require.NoError(t, err)
	require.True(t, f.IsSimple())

	id := f.AddReadCallback(func(unsafe.Pointer) {})
	assert.False(t, f.IsSimple(), "registering a callback clears simple")
	assert.True(t, f.HasReadCallbacks())

	f.RemoveReadCallback(id)
	assert.True(t, f.IsSimple(), "removing the last callback restores simple")
	assert.False(t, f.HasReadCallbacks())
}

func TestSetColumnRepresentative(t *testing.T) {
	f, err := Create("n", "int64")
	require.NoError(t, err)
	assert.True(t, f.HasDefaultColumnRepresentative())
	assert.Equal(t, column.Representation{column.ElementSplitInt64}, f.ColumnRepresentative())

	require.NoError(t, f.SetColumnRepresentative(column.Representation{column.ElementInt64}))
	assert.False(t, f.HasDefaultColumnRepresentative())
	assert.Equal(t, column.Representation{column.ElementInt64}, f.ColumnRepresentative())

	err = f.SetColumnRepresentative(column.Representation{column.ElementReal64})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestSchemaIteratorOrder(t *testing.T) {
	// root
	//   a: pair[int32,float64]      (children _0, _1)
	//   b: []string                 (child _0)
	//   c: int8
	root := NewRoot()
	a, err := Create("a", "pair[int32,float64]")
	require.NoError(t, err)
	b, err := Create("b", "[]string")
	require.NoError(t, err)
	c, err := Create("c", "int8")
	require.NoError(t, err)
	require.NoError(t, root.Attach(a))
	require.NoError(t, root.Attach(b))
	require.NoError(t, root.Attach(c))

	var visited []string
	it := root.Iterate()
	for it.Next() {
		visited = append(visited, it.Field().QualifiedName())
	}
	assert.Equal(t, []string{"a", "a._0", "a._1", "b", "b._0", "c"}, visited,
		"depth-first pre-order, every field exactly once")
}

func TestAttachRejectsDuplicates(t *testing.T) {
	root := NewRoot()
	a, _ := Create("a", "int32")
	b, _ := Create("a", "float64")
	require.NoError(t, root.Attach(a))
	err := root.Attach(b)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestUnconnectedOperationsFail(t *testing.T) {
	f, _ := Create("x", "int32")
	v := int32(1)
	_, err := f.Append(unsafe.Pointer(&v))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStateViolation))
	err = f.Read(0, unsafe.Pointer(&v))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStateViolation))
}

func TestVariantLayout(t *testing.T) {
	f, err := Create("v", "variant[int32,string]")
	require.NoError(t, err)
	v, err := f.NewValue()
	require.NoError(t, err)
	defer v.Destroy()

	tag, err := VariantTag(f, v.Ptr())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), tag, "freshly constructed variant is valueless")

	require.NoError(t, SetVariantTag(f, v.Ptr(), 1))
	slot, err := VariantSlot(f, v.Ptr(), 1)
	require.NoError(t, err)
	*(*int32)(slot) = 42

	handles := f.Split(v)
	require.Len(t, handles, 1, "split yields exactly one child handle")
	assert.Equal(t, int32(42), *As[int32](handles[0]))
	assert.Equal(t, "int32", handles[0].Field().TypeName())
}
