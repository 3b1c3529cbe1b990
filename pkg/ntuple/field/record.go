package field

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// prefixBase is the reserved name prefix of base subobject fields, keeping
// them apart from data members of the same identifier.
const prefixBase = ":"

// recordImpl lays its children out at fixed byte offsets, exactly like the
// corresponding Go struct.
type recordImpl struct {
	baseImpl
	offsets []uintptr
}

func (r *recordImpl) cloneImpl() kindImpl {
	return &recordImpl{offsets: append([]uintptr(nil), r.offsets...)}
}

func (r *recordImpl) construct(f *Field, p unsafe.Pointer) error {
	for i, c := range f.children {
		if err := c.constructValue(unsafe.Add(p, r.offsets[i])); err != nil {
			return err
		}
	}
	return nil
}

func (r *recordImpl) destroy(f *Field, p unsafe.Pointer) {
	for i, c := range f.children {
		c.destroyValue(unsafe.Add(p, r.offsets[i]))
	}
}

func (r *recordImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	nbytes := 0
	for i, c := range f.children {
		n, err := c.Append(unsafe.Add(p, r.offsets[i]))
		if err != nil {
			return nbytes, err
		}
		nbytes += n
	}
	return nbytes, nil
}

func (r *recordImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	for i, c := range f.children {
		if err := c.Read(globalIndex, unsafe.Add(p, r.offsets[i])); err != nil {
			return err
		}
	}
	return nil
}

func (r *recordImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	for i, c := range f.children {
		if err := c.ReadLocal(idx, unsafe.Add(p, r.offsets[i])); err != nil {
			return err
		}
	}
	return nil
}

func (r *recordImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	out := make([]*Value, len(f.children))
	for i, c := range f.children {
		out[i] = c.BindValue(unsafe.Add(p, r.offsets[i]))
	}
	return out
}

// synthesizeStruct builds the Go layout of an untyped record over the item
// field types.
func synthesizeStruct(items []*Field) (reflect.Type, []uintptr) {
	sfs := make([]reflect.StructField, len(items))
	for i, item := range items {
		sfs[i] = reflect.StructField{Name: fmt.Sprintf("F%d", i), Type: item.goType}
	}
	st := reflect.StructOf(sfs)
	offsets := make([]uintptr, len(items))
	for i := range items {
		offsets[i] = st.Field(i).Offset
	}
	return st, offsets
}

// andChildTraits folds the children's traits into a record-like field.
func andChildTraits(f *Field) {
	f.traits = TraitTrivialType
	for _, c := range f.children {
		f.traits &= c.traits
	}
	f.traits &^= TraitMappable
}

func newRecordFrom(name, typeName string, items []*Field, reg *typereg.Registry) (*Field, error) {
	goType, offsets := synthesizeStruct(items)
	f := newField(name, typeName, descriptor.StructureRecord, goType, reg,
		&recordImpl{offsets: offsets})
	for _, item := range items {
		if err := f.Attach(item); err != nil {
			return nil, err
		}
	}
	andChildTraits(f)
	return f, nil
}

// NewRecordField builds an untyped record over the given item fields; the
// in-memory layout follows Go struct rules. Ownership of the items moves to
// the record.
func NewRecordField(name string, items []*Field) (*Field, error) {
	return newRecordFrom(name, "", items, nil)
}

// NewPairField builds a two-element record named pair[T1,T2].
func NewPairField(name string, first, second *Field) (*Field, error) {
	typeName := "pair[" + first.typeName + "," + second.typeName + "]"
	return newRecordFrom(name, typeName, []*Field{first, second}, nil)
}

// NewTupleField builds an n-element record named tuple[T1,...].
func NewTupleField(name string, items []*Field) (*Field, error) {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.typeName
	}
	typeName := "tuple[" + strings.Join(names, ",") + "]"
	return newRecordFrom(name, typeName, items, nil)
}

// classImpl is a record over a registered struct type. Embedded structs
// become base subobject children with the reserved colon prefix; at source
// connect time, schema-evolution read rules matching the on-disk type version
// are installed as read callbacks.
type classImpl struct {
	recordImpl
	info *typereg.Info
}

func (c *classImpl) cloneImpl() kindImpl {
	return &classImpl{
		recordImpl: recordImpl{offsets: append([]uintptr(nil), c.offsets...)},
		info:       c.info,
	}
}

func (c *classImpl) construct(f *Field, p unsafe.Pointer) error {
	if c.info.Construct != nil {
		c.info.Construct(p)
		return nil
	}
	return c.recordImpl.construct(f, p)
}

func (c *classImpl) typeVersion() uint32 { return c.info.TypeVersion }

func (c *classImpl) onConnectSource(f *Field) error {
	rules := f.reg.ReadRules(c.info.Name, f.onDiskTypeVersion)
	for _, rule := range rules {
		r := rule
		f.AddReadCallback(func(obj unsafe.Pointer) { r(obj) })
	}
	if len(rules) == 0 && c.info.TypeVersion != f.onDiskTypeVersion {
		return errors.Newf(errors.ErrorTypeSchemaMismatch,
			"type %s version %d on disk, %d in memory, and no evolution rule",
			c.info.Name, f.onDiskTypeVersion, c.info.TypeVersion)
	}
	return nil
}

func newClassField(name string, info *typereg.Info, reg *typereg.Registry,
	visiting map[string]bool) (*Field, error) {
	if visiting[info.Name] {
		return nil, errors.Newf(errors.ErrorTypeUnsupported,
			"type %s refers to itself", info.Name)
	}
	visiting[info.Name] = true
	defer delete(visiting, info.Name)

	impl := &classImpl{info: info}
	f := newField(name, info.Name, descriptor.StructureRecord, info.GoType, reg, impl)
	for _, m := range info.Members {
		childName := m.Name
		if m.Embedded {
			childName = prefixBase + m.Name
		}
		child, err := createField(childName, m.TypeName, reg, visiting)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInvalidArgument,
				fmt.Sprintf("member %s of %s", m.Name, info.Name))
		}
		impl.offsets = append(impl.offsets, m.Offset)
		if err := f.Attach(child); err != nil {
			return nil, err
		}
	}
	andChildTraits(f)
	return f, nil
}

// enumImpl wraps one integer subfield matching the enum's underlying width;
// value size and alignment mirror the subfield.
type enumImpl struct {
	baseImpl
}

func (e *enumImpl) cloneImpl() kindImpl { return &enumImpl{} }

func (e *enumImpl) appendImpl(f *Field, p unsafe.Pointer) (int, error) {
	return f.children[0].Append(p)
}

func (e *enumImpl) readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error {
	return f.children[0].Read(globalIndex, p)
}

func (e *enumImpl) readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error {
	return f.children[0].ReadLocal(idx, p)
}

func (e *enumImpl) splitValue(f *Field, p unsafe.Pointer) []*Value {
	return []*Value{f.children[0].BindValue(p)}
}

func newEnumField(name string, info *typereg.Info, reg *typereg.Registry) (*Field, error) {
	f := newField(name, info.Name, descriptor.StructureLeaf, info.GoType, reg, &enumImpl{})
	intField := newLeafField("_0", info.Underlying, reg)
	if err := f.Attach(intField); err != nil {
		return nil, err
	}
	f.traits = TraitTrivialType
	return f, nil
}
