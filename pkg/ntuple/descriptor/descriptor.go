// Package descriptor holds the persisted schema metadata of a dataset: the
// on-disk field tree and the columns attached to each field. The descriptor is
// built while connecting a field tree to a page sink and consulted when binding
// on-disk ids to in-memory fields on the read side.
package descriptor

import (
	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/quasar/pkg/errors"
)

// FieldID identifies a field in the on-disk schema.
type FieldID uint64

// InvalidFieldID marks an unset on-disk id.
const InvalidFieldID = FieldID(^uint64(0))

// InvalidTypeVersion marks a field without a recorded type version.
const InvalidTypeVersion = ^uint32(0)

// Structure is the role of a field in the data model.
type Structure int

const (
	StructureLeaf Structure = iota
	StructureRecord
	StructureCollection
	StructureVariant
	StructureUnsplit
)

var structureNames = map[Structure]string{
	StructureLeaf:       "leaf",
	StructureRecord:     "record",
	StructureCollection: "collection",
	StructureVariant:    "variant",
	StructureUnsplit:    "unsplit",
}

func (s Structure) String() string {
	if n, ok := structureNames[s]; ok {
		return n
	}
	return "unknown"
}

// FieldDescriptor is the persisted form of one field.
type FieldDescriptor struct {
	ID          FieldID  `json:"id"`
	ParentID    FieldID  `json:"parent_id"`
	Name        string   `json:"name"`
	TypeName    string   `json:"type_name"`
	TypeAlias   string   `json:"type_alias,omitempty"`
	TypeVersion uint32   `json:"type_version"`
	Structure   Structure `json:"structure"`
	Repetitions int      `json:"repetitions,omitempty"`
	Description string   `json:"description,omitempty"`
	Children    []FieldID `json:"children,omitempty"`
}

// ColumnDescriptor is the persisted form of one column. Index is the order of
// the column within its owning field; element types use the wire names of the
// column package.
type ColumnDescriptor struct {
	FieldID     FieldID `json:"field_id"`
	Index       uint32  `json:"index"`
	ElementType string  `json:"element_type"`
	FirstEntry  int64   `json:"first_entry"`
}

// Descriptor is the complete persisted schema of a dataset.
type Descriptor struct {
	Name    string             `json:"name,omitempty"`
	Fields  []FieldDescriptor  `json:"fields"`
	Columns []ColumnDescriptor `json:"columns"`
}

// Field returns the descriptor of the given field id.
func (d *Descriptor) Field(id FieldID) (*FieldDescriptor, error) {
	for i := range d.Fields {
		if d.Fields[i].ID == id {
			return &d.Fields[i], nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeSchemaMismatch, "no field descriptor for id %d", id)
}

// FieldColumns returns the column descriptors of a field, ordered by index.
func (d *Descriptor) FieldColumns(id FieldID) []ColumnDescriptor {
	var out []ColumnDescriptor
	for _, c := range d.Columns {
		if c.FieldID == id {
			out = append(out, c)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ChildByName finds the child of parentID with the given (unqualified) name.
func (d *Descriptor) ChildByName(parentID FieldID, name string) (*FieldDescriptor, error) {
	parent, err := d.Field(parentID)
	if err != nil {
		return nil, err
	}
	for _, childID := range parent.Children {
		child, err := d.Field(childID)
		if err != nil {
			return nil, err
		}
		if child.Name == name {
			return child, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
		"field %q not found below descriptor id %d", name, parentID)
}

// TopLevel returns the descriptors of the fields directly below the root.
func (d *Descriptor) TopLevel() []FieldDescriptor {
	var out []FieldDescriptor
	for _, f := range d.Fields {
		if f.ParentID == 0 && f.ID != 0 {
			out = append(out, f)
		}
	}
	return out
}

// Marshal serializes the descriptor.
func (d *Descriptor) Marshal() ([]byte, error) {
	data, err := gojson.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "marshal descriptor")
	}
	return data, nil
}

// Unmarshal deserializes a descriptor.
func Unmarshal(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := gojson.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "unmarshal descriptor")
	}
	return &d, nil
}

// Builder accumulates a descriptor while a field tree connects to a sink.
// Field id 0 is reserved for the anonymous root.
type Builder struct {
	desc   Descriptor
	nextID FieldID
}

// NewBuilder returns an empty builder with the root field pre-registered.
func NewBuilder(name string) *Builder {
	b := &Builder{nextID: 1}
	b.desc.Name = name
	b.desc.Fields = append(b.desc.Fields, FieldDescriptor{
		ID:        0,
		ParentID:  InvalidFieldID,
		Structure: StructureRecord,
	})
	return b
}

// AddField registers a field below parentID and returns its assigned id.
func (b *Builder) AddField(fd FieldDescriptor) FieldID {
	fd.ID = b.nextID
	b.nextID++
	b.desc.Fields = append(b.desc.Fields, fd)
	for i := range b.desc.Fields {
		if b.desc.Fields[i].ID == fd.ParentID {
			b.desc.Fields[i].Children = append(b.desc.Fields[i].Children, fd.ID)
			break
		}
	}
	return fd.ID
}

// AddColumn registers a column of a previously added field.
func (b *Builder) AddColumn(cd ColumnDescriptor) {
	b.desc.Columns = append(b.desc.Columns, cd)
}

// Descriptor returns the built descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return &b.desc
}
