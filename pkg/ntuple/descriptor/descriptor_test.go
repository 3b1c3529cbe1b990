package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quasar/pkg/errors"
)

func buildSample() *Builder {
	b := NewBuilder("events")
	jets := b.AddField(FieldDescriptor{
		ParentID: 0, Name: "jets", TypeName: "[]float32",
		Structure: StructureCollection,
	})
	b.AddField(FieldDescriptor{
		ParentID: jets, Name: "_0", TypeName: "float32",
		Structure: StructureLeaf,
	})
	b.AddColumn(ColumnDescriptor{FieldID: jets, Index: 0, ElementType: "splitindex64"})
	return b
}

func TestBuilderAssignsIDs(t *testing.T) {
	desc := buildSample().Descriptor()

	root, err := desc.Field(0)
	require.NoError(t, err)
	assert.Equal(t, []FieldID{1}, root.Children)

	jets, err := desc.Field(1)
	require.NoError(t, err)
	assert.Equal(t, "jets", jets.Name)
	assert.Equal(t, []FieldID{2}, jets.Children)

	top := desc.TopLevel()
	require.Len(t, top, 1)
	assert.Equal(t, FieldID(1), top[0].ID)
}

func TestChildByName(t *testing.T) {
	desc := buildSample().Descriptor()

	child, err := desc.ChildByName(1, "_0")
	require.NoError(t, err)
	assert.Equal(t, "float32", child.TypeName)

	_, err = desc.ChildByName(1, "nope")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch))
}

func TestMarshalRoundtrip(t *testing.T) {
	desc := buildSample().Descriptor()
	data, err := desc.Marshal()
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, desc.Name, back.Name)
	require.Len(t, back.Fields, 3)
	cols := back.FieldColumns(1)
	require.Len(t, cols, 1)
	assert.Equal(t, "splitindex64", cols[0].ElementType)
}

func TestStructureString(t *testing.T) {
	assert.Equal(t, "record", StructureRecord.String())
	assert.Equal(t, "collection", StructureCollection.String())
	assert.Equal(t, "unknown", Structure(99).String())
}
