// Package field implements the object-to-columns mapper of the Quasar storage
// engine. A field translates read and write calls from and to the underlying
// typed column streams: leaves map primitive values onto single columns,
// container fields recurse over their children and add offset, switch or
// presence columns of their own. Fields form a tree below an anonymous root;
// a field exclusively owns its children and its columns and is connected to
// either a page sink or a page source, never both.
//
// Fields are not safe for concurrent use; one logical writer or reader drives
// a field tree at a time.
package field

import (
	"reflect"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/logger"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
	"github.com/ajitpratap0/quasar/pkg/ntuple/descriptor"
	"github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// Trait bits describe properties of a field's value type that allow
// optimizations.
type Trait int

const (
	// TraitTriviallyConstructible marks types for which freshly allocated
	// (zeroed) memory is a valid value; no construct call is needed.
	TraitTriviallyConstructible Trait = 0x01
	// TraitTriviallyDestructible marks types released by freeing their memory.
	TraitTriviallyDestructible Trait = 0x02
	// TraitMappable marks leaf types that map 1:1 onto one packed column.
	TraitMappable Trait = 0x04
	// TraitTrivialType is shorthand for trivially constructible and
	// destructible.
	TraitTrivialType = TraitTriviallyConstructible | TraitTriviallyDestructible
)

// State tracks the connection lifecycle of a field.
//
//	[*] --> Unconnected --> ConnectedToSink
//	             |
//	             --> ConnectedToSource
//
// A field never moves between sink and source; Clone resets to Unconnected.
type State int

const (
	StateUnconnected State = iota
	StateConnectedToSink
	StateConnectedToSource
)

// ReadCallback is invoked after every non-fast-path read with a pointer to
// the freshly populated value.
type ReadCallback func(obj unsafe.Pointer)

// kindImpl carries the kind-specific behavior of a field. The Field node owns
// lifecycle, dispatch and the fast paths; the impl supplies layout, column
// generation and the recursive read/append logic.
type kindImpl interface {
	cloneImpl() kindImpl
	representations() column.RepresentationSet
	construct(f *Field, p unsafe.Pointer) error
	destroy(f *Field, p unsafe.Pointer)
	appendImpl(f *Field, p unsafe.Pointer) (int, error)
	readGlobal(f *Field, globalIndex int64, p unsafe.Pointer) error
	readLocal(f *Field, idx column.LocalIndex, p unsafe.Pointer) error
	readBulkImpl(f *Field, spec *BulkSpec) (int, error)
	splitValue(f *Field, p unsafe.Pointer) []*Value
	commitClusterImpl(f *Field)
	onConnectSource(f *Field) error
	typeVersion() uint32
	canWrite() bool
}

// baseImpl provides the defaults shared by most kinds.
type baseImpl struct{}

func (baseImpl) representations() column.RepresentationSet { return column.RepresentationSet{} }
func (baseImpl) construct(*Field, unsafe.Pointer) error    { return nil }
func (baseImpl) destroy(*Field, unsafe.Pointer)            {}
func (baseImpl) appendImpl(f *Field, _ unsafe.Pointer) (int, error) {
	return 0, errors.Newf(errors.ErrorTypeInternal, "field %q has no append implementation", f.name)
}
func (baseImpl) readGlobal(f *Field, _ int64, _ unsafe.Pointer) error {
	return errors.Newf(errors.ErrorTypeInternal, "field %q has no read implementation", f.name)
}
func (baseImpl) readLocal(f *Field, _ column.LocalIndex, _ unsafe.Pointer) error {
	return errors.Newf(errors.ErrorTypeInternal, "field %q has no read implementation", f.name)
}
func (baseImpl) readBulkImpl(f *Field, spec *BulkSpec) (int, error) {
	return f.defaultReadBulk(spec)
}
func (baseImpl) splitValue(*Field, unsafe.Pointer) []*Value { return nil }
func (baseImpl) commitClusterImpl(*Field)                   {}
func (baseImpl) onConnectSource(*Field) error               { return nil }
func (baseImpl) typeVersion() uint32                        { return 0 }
func (baseImpl) canWrite() bool                             { return true }

// Field is one node of the schema tree.
type Field struct {
	name        string
	typeName    string
	typeAlias   string
	description string
	structure   descriptor.Structure
	repetitions int
	traits      Trait
	simple      bool
	state       State

	onDiskID          descriptor.FieldID
	onDiskTypeVersion uint32

	parent   *Field
	children []*Field

	columns   []*column.Column
	principal *column.Column

	readCallbacks []ReadCallback
	nCallbacks    int

	// repChoice overrides the default serialization representation; matchedRep
	// records the representation found on disk after a source connect.
	repChoice  column.Representation
	matchedRep column.Representation

	goType reflect.Type
	reg    *typereg.Registry
	impl   kindImpl
}

// newField wires the common node state; concrete constructors fill in the
// impl and traits.
func newField(name, typeName string, structure descriptor.Structure, goType reflect.Type,
	reg *typereg.Registry, impl kindImpl) *Field {
	if reg == nil {
		reg = typereg.Default()
	}
	return &Field{
		name:              name,
		typeName:          typeName,
		structure:         structure,
		goType:            goType,
		reg:               reg,
		impl:              impl,
		onDiskID:          descriptor.InvalidFieldID,
		onDiskTypeVersion: descriptor.InvalidTypeVersion,
	}
}

// Name returns the field name relative to its parent.
func (f *Field) Name() string { return f.name }

// TypeName returns the canonical type name.
func (f *Field) TypeName() string { return f.typeName }

// TypeAlias returns the spelling the field was created with, if it differed
// from the canonical type name.
func (f *Field) TypeAlias() string { return f.typeAlias }

// Description returns the free-text description.
func (f *Field) Description() string { return f.description }

// SetDescription attaches a free-text description.
func (f *Field) SetDescription(d string) { f.description = d }

// Structure returns the role of the field in the data model.
func (f *Field) Structure() descriptor.Structure { return f.structure }

// Repetitions returns the fixed array length, or 0.
func (f *Field) Repetitions() int { return f.repetitions }

// Traits returns the trait bitset.
func (f *Field) Traits() Trait { return f.traits }

// IsSimple reports whether reads take the single-column fast path: the field
// maps onto one packed column and carries no read callbacks.
func (f *Field) IsSimple() bool { return f.simple }

// HasReadCallbacks reports whether any post-read callback is registered.
func (f *Field) HasReadCallbacks() bool { return f.nCallbacks > 0 }

// Parent returns the owning field, or nil at the root.
func (f *Field) Parent() *Field { return f.parent }

// SubFields returns the ordered children.
func (f *Field) SubFields() []*Field { return f.children }

// GoType returns the in-memory type the field maps.
func (f *Field) GoType() reflect.Type { return f.goType }

// ValueSize returns the bytes taken by one value.
func (f *Field) ValueSize() uintptr {
	if f.goType == nil {
		return 0
	}
	return f.goType.Size()
}

// Alignment returns the required value alignment.
func (f *Field) Alignment() uintptr {
	if f.goType == nil {
		return 0
	}
	return uintptr(f.goType.Align())
}

// State returns the connection state.
func (f *Field) State() State { return f.state }

// OnDiskID returns the descriptor id bound to this field.
func (f *Field) OnDiskID() descriptor.FieldID { return f.onDiskID }

// SetOnDiskID binds the field to a descriptor id; only allowed while
// unconnected.
func (f *Field) SetOnDiskID(id descriptor.FieldID) error {
	if f.state != StateUnconnected {
		return errors.New(errors.ErrorTypeStateViolation,
			"on-disk id can only be set on an unconnected field")
	}
	f.onDiskID = id
	return nil
}

// OnDiskTypeVersion returns the type version recorded in the descriptor;
// valid after a source connect.
func (f *Field) OnDiskTypeVersion() uint32 { return f.onDiskTypeVersion }

// NElements returns the element count of the principal column.
func (f *Field) NElements() int64 {
	if f.principal == nil {
		return 0
	}
	return f.principal.NElements()
}

// QualifiedName returns the field name and parent names separated by dots.
// Base subobject fields carry a leading colon, so qualified paths contain
// ".:" at those boundaries.
func (f *Field) QualifiedName() string {
	name := f.name
	for p := f.parent; p != nil && p.name != ""; p = p.parent {
		name = p.name + "." + name
	}
	return name
}

// isRoot reports whether the field is the anonymous container at the top.
func (f *Field) isRoot() bool { return f.parent == nil && f.name == "" && f.goType == nil }

// Attach adds a child to the list of nested fields, transferring ownership.
func (f *Field) Attach(child *Field) error {
	if child.parent != nil {
		return errors.Newf(errors.ErrorTypeInvalidArgument,
			"field %q is already attached to %q", child.name, child.parent.name)
	}
	for _, c := range f.children {
		if c.name == child.name {
			return errors.Newf(errors.ErrorTypeInvalidArgument,
				"duplicate field name %q below %q", child.name, f.name)
		}
	}
	child.parent = f
	f.children = append(f.children, child)
	return nil
}

// Clone copies the field and its sub fields with a possibly new name and a
// new, unconnected set of columns. The on-disk id is preserved.
func (f *Field) Clone(newName string) *Field {
	clone := &Field{
		name:              newName,
		typeName:          f.typeName,
		typeAlias:         f.typeAlias,
		description:       f.description,
		structure:         f.structure,
		repetitions:       f.repetitions,
		traits:            f.traits,
		simple:            f.traits&TraitMappable != 0,
		state:             StateUnconnected,
		onDiskID:          f.onDiskID,
		onDiskTypeVersion: descriptor.InvalidTypeVersion,
		repChoice:         f.repChoice,
		goType:            f.goType,
		reg:               f.reg,
		impl:              f.impl.cloneImpl(),
	}
	for _, c := range f.children {
		child := c.Clone(c.name)
		child.parent = clone
		clone.children = append(clone.children, child)
	}
	return clone
}

// AddReadCallback registers a function invoked after every non-fast-path
// read. Registering a callback demotes a simple field to the slow path. The
// returned id removes the callback again.
func (f *Field) AddReadCallback(fn ReadCallback) int {
	f.readCallbacks = append(f.readCallbacks, fn)
	f.nCallbacks++
	f.recomputeSimple()
	return len(f.readCallbacks) - 1
}

// RemoveReadCallback removes a previously registered callback. A mappable
// field becomes simple again once the last callback is gone.
func (f *Field) RemoveReadCallback(id int) {
	if id < 0 || id >= len(f.readCallbacks) || f.readCallbacks[id] == nil {
		return
	}
	f.readCallbacks[id] = nil
	f.nCallbacks--
	f.recomputeSimple()
}

func (f *Field) recomputeSimple() {
	f.simple = f.traits&TraitMappable != 0 && f.nCallbacks == 0
}

func (f *Field) invokeReadCallbacks(p unsafe.Pointer) {
	for _, fn := range f.readCallbacks {
		if fn != nil {
			fn(p)
		}
	}
}

// constructValue initializes freshly allocated (zeroed) memory.
func (f *Field) constructValue(p unsafe.Pointer) error {
	if f.traits&TraitTriviallyConstructible != 0 {
		return nil
	}
	return f.impl.construct(f, p)
}

// destroyValue releases the resources of a value; the memory itself stays.
func (f *Field) destroyValue(p unsafe.Pointer) {
	if f.traits&TraitTriviallyDestructible != 0 {
		return
	}
	f.impl.destroy(f, p)
}

// Append writes the value at p into the columns and returns the number of
// packed bytes.
func (f *Field) Append(p unsafe.Pointer) (int, error) {
	if f.state != StateConnectedToSink {
		return 0, errors.Newf(errors.ErrorTypeStateViolation,
			"append on field %q requires a sink connection", f.name)
	}
	if f.traits&TraitMappable == 0 {
		return f.impl.appendImpl(f, p)
	}
	if err := f.principal.Append(p); err != nil {
		return 0, err
	}
	return f.principal.PackedSize(), nil
}

// Read populates the value at p with the entry at globalIndex.
func (f *Field) Read(globalIndex int64, p unsafe.Pointer) error {
	if f.state != StateConnectedToSource {
		return errors.Newf(errors.ErrorTypeStateViolation,
			"read on field %q requires a source connection", f.name)
	}
	if f.simple {
		return f.principal.Read(globalIndex, p)
	}
	var err error
	if f.traits&TraitMappable != 0 {
		err = f.principal.Read(globalIndex, p)
	} else {
		err = f.impl.readGlobal(f, globalIndex, p)
	}
	if err != nil {
		return err
	}
	if f.nCallbacks > 0 {
		f.invokeReadCallbacks(p)
	}
	return nil
}

// ReadLocal populates the value at p with the entry at a cluster-local index.
func (f *Field) ReadLocal(idx column.LocalIndex, p unsafe.Pointer) error {
	if f.state != StateConnectedToSource {
		return errors.Newf(errors.ErrorTypeStateViolation,
			"read on field %q requires a source connection", f.name)
	}
	if f.simple {
		return f.principal.ReadLocal(idx, p)
	}
	var err error
	if f.traits&TraitMappable != 0 {
		err = f.principal.ReadLocal(idx, p)
	} else {
		err = f.impl.readLocal(f, idx, p)
	}
	if err != nil {
		return err
	}
	if f.nCallbacks > 0 {
		f.invokeReadCallbacks(p)
	}
	return nil
}

// ReadBulk fills the requested slots of a bulk range. Simple fields ignore
// the mask and copy the whole range from the principal column; other kinds
// fall back to their bulk implementation. Returns the number of newly
// available slots, or BulkAll when the full range was read regardless of the
// masks.
func (f *Field) ReadBulk(spec *BulkSpec) (int, error) {
	if f.state != StateConnectedToSource {
		return 0, errors.Newf(errors.ErrorTypeStateViolation,
			"bulk read on field %q requires a source connection", f.name)
	}
	if f.simple {
		if err := f.principal.ReadV(spec.FirstIndex, int64(spec.Count), spec.Values); err != nil {
			return 0, err
		}
		for i := range spec.MaskAvail[:spec.Count] {
			spec.MaskAvail[i] = true
		}
		return BulkAll, nil
	}
	return f.impl.readBulkImpl(f, spec)
}

// defaultReadBulk loops over the required slots and reads them one by one.
func (f *Field) defaultReadBulk(spec *BulkSpec) (int, error) {
	nRead := 0
	for i := 0; i < spec.Count; i++ {
		if spec.MaskReq != nil && !spec.MaskReq[i] {
			continue
		}
		if spec.MaskAvail[i] {
			continue
		}
		idx := column.LocalIndex{Cluster: spec.FirstIndex.Cluster, Index: spec.FirstIndex.Index + int64(i)}
		if err := f.ReadLocal(idx, spec.valuePtrAt(i)); err != nil {
			return nRead, err
		}
		spec.MaskAvail[i] = true
		nRead++
	}
	return nRead, nil
}

// Split creates the list of direct child values for the value at v: interior
// pointers for composite fields, the active alternative for a variant, the
// pointee for a present nullable reference. Leaves return nothing.
func (f *Field) Split(v *Value) []*Value {
	return f.impl.splitValue(f, v.ptr)
}

// CommitCluster resets per-cluster state (collection offsets, variant tag
// counters, nullable item counters) and recurses. It must run at every
// cluster boundary; skipping it corrupts the offsets of following clusters.
func (f *Field) CommitCluster() {
	f.impl.commitClusterImpl(f)
	for _, c := range f.children {
		c.CommitCluster()
	}
}

// ColumnRepresentative returns the chosen serialization representation, or
// the field's default.
func (f *Field) ColumnRepresentative() column.Representation {
	if f.repChoice != nil {
		return f.repChoice
	}
	reps := f.impl.representations()
	if len(reps.Serialization()) == 0 {
		return nil
	}
	return reps.SerializationDefault()
}

// HasDefaultColumnRepresentative reports whether no explicit representation
// was fixed.
func (f *Field) HasDefaultColumnRepresentative() bool { return f.repChoice == nil }

// SetColumnRepresentative fixes a serialization representation. Only allowed
// before connecting, and the representation must be declared by the field.
func (f *Field) SetColumnRepresentative(rep column.Representation) error {
	if f.state != StateUnconnected {
		return errors.New(errors.ErrorTypeStateViolation,
			"column representation can only be set before connecting")
	}
	if !f.impl.representations().HasSerialization(rep) {
		return errors.Newf(errors.ErrorTypeInvalidArgument,
			"representation %v is not declared by field %q", rep, f.name)
	}
	f.repChoice = rep
	return nil
}

// OnDiskColumnRepresentation returns the representation matched on disk;
// valid after a source connect.
func (f *Field) OnDiskColumnRepresentation() column.Representation { return f.matchedRep }

// ConnectSink creates the field's columns against a page sink and recurses.
// Connecting the anonymous root connects the forest below it.
func (f *Field) ConnectSink(sink pagestore.PageSink, firstEntry int64) error {
	if f.state != StateUnconnected {
		return errors.Newf(errors.ErrorTypeStateViolation,
			"field %q is already connected", f.name)
	}
	if !f.impl.canWrite() {
		return errors.Newf(errors.ErrorTypeStateViolation,
			"field %q of type %s is read-only", f.name, f.typeName)
	}
	if !f.isRoot() {
		parentID := descriptor.FieldID(0)
		if f.parent != nil && !f.parent.isRoot() {
			parentID = f.parent.onDiskID
		}
		f.onDiskID = sink.AddField(descriptor.FieldDescriptor{
			ParentID:    parentID,
			Name:        f.name,
			TypeName:    f.typeName,
			TypeAlias:   f.typeAlias,
			TypeVersion: f.impl.typeVersion(),
			Structure:   f.structure,
			Repetitions: f.repetitions,
			Description: f.description,
		})

		rep := f.ColumnRepresentative()
		if !sink.Options().SplitEnabled() {
			rep = rep.Plain()
		}
		for i, elem := range rep {
			handle, err := sink.AddColumn(f.onDiskID, elem, uint32(i), firstEntry)
			if err != nil {
				return err
			}
			f.columns = append(f.columns, column.NewWriteColumn(elem, uint32(i), firstEntry, handle))
		}
		if len(f.columns) > 0 {
			f.principal = f.columns[0]
		}
		f.state = StateConnectedToSink
	}
	for _, c := range f.children {
		if err := c.ConnectSink(sink, firstEntry); err != nil {
			return err
		}
	}
	if f.isRoot() {
		logger.Debug("field tree connected to sink",
			zap.Int("top_fields", len(f.children)),
			zap.Int64("first_entry", firstEntry))
	}
	return nil
}

// ConnectSource binds the field to the on-disk columns of its descriptor id
// and recurses, resolving children by name in the descriptor. The on-disk
// column types must match one of the representations the field declares.
func (f *Field) ConnectSource(source pagestore.PageSource) error {
	if f.state != StateUnconnected {
		return errors.Newf(errors.ErrorTypeStateViolation,
			"field %q is already connected", f.name)
	}
	desc, err := source.Descriptor()
	if err != nil {
		return err
	}
	if !f.isRoot() {
		if f.onDiskID == descriptor.InvalidFieldID {
			return errors.Newf(errors.ErrorTypeStateViolation,
				"field %q has no on-disk id bound", f.name)
		}
		infos, err := source.LookupColumns(f.onDiskID)
		if err != nil {
			return err
		}
		onDisk := make(column.Representation, len(infos))
		for i, info := range infos {
			onDisk[i] = info.ElementType
		}
		reps := f.impl.representations()
		if len(onDisk) > 0 || len(reps.Serialization()) > 0 {
			matched, ok := reps.MatchDeserialization(onDisk)
			if !ok {
				return errors.Newf(errors.ErrorTypeSchemaMismatch,
					"on-disk columns %v of field %q match no declared representation",
					onDisk, f.QualifiedName())
			}
			f.matchedRep = matched
		}
		if f.onDiskTypeVersion, err = source.LookupTypeVersion(f.onDiskID); err != nil {
			return err
		}
		for _, info := range infos {
			f.columns = append(f.columns, column.NewReadColumn(info.ElementType, info.Index, info.Handle))
		}
		if len(f.columns) > 0 {
			f.principal = f.columns[0]
		}
		f.state = StateConnectedToSource
	}
	for _, c := range f.children {
		if c.onDiskID == descriptor.InvalidFieldID {
			parentID := descriptor.FieldID(0)
			if !f.isRoot() {
				parentID = f.onDiskID
			}
			fd, err := desc.ChildByName(parentID, c.name)
			if err != nil {
				return err
			}
			c.onDiskID = fd.ID
		}
		if err := c.ConnectSource(source); err != nil {
			return err
		}
	}
	if !f.isRoot() {
		if err := f.impl.onConnectSource(f); err != nil {
			return err
		}
	}
	return nil
}

// NewRoot returns the anonymous record container owning a forest of top-level
// fields. The root itself never connects to storage and has no value.
func NewRoot() *Field {
	f := newField("", "", descriptor.StructureRecord, nil, nil, rootImpl{})
	f.onDiskID = 0
	return f
}

type rootImpl struct{ baseImpl }

func (rootImpl) cloneImpl() kindImpl { return rootImpl{} }
