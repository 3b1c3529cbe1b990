package field

import (
	"reflect"
	"unsafe"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/column"
)

// Value points to an object with column I/O support and keeps a pointer to
// the field that created it. Only fields create values, through generation,
// binding or splitting. Owning values release the object when destroyed;
// only NewValue creates owning values.
type Value struct {
	field   *Field
	ptr     unsafe.Pointer
	backing reflect.Value // keeps the owning allocation alive
	owning  bool
}

// NewValue allocates storage for one value of the field's type, constructs it
// and returns an owning handle.
func (f *Field) NewValue() (*Value, error) {
	if f.goType == nil {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"field %q has no value type", f.name)
	}
	rv := reflect.New(f.goType)
	v := &Value{field: f, ptr: rv.UnsafePointer(), backing: rv, owning: true}
	if err := f.constructValue(v.ptr); err != nil {
		return nil, err
	}
	return v, nil
}

// BindValue creates a non-owning handle for an already constructed object.
func (f *Field) BindValue(p unsafe.Pointer) *Value {
	return &Value{field: f, ptr: p}
}

// Bind creates a non-owning handle for a typed object.
func Bind[T any](f *Field, obj *T) *Value {
	return f.BindValue(unsafe.Pointer(obj))
}

// Field returns the field that created the value.
func (v *Value) Field() *Field { return v.field }

// Ptr returns the raw object pointer.
func (v *Value) Ptr() unsafe.Pointer { return v.ptr }

// IsOwning reports whether destroying the handle releases the object.
func (v *Value) IsOwning() bool { return v.owning }

// As returns the object as a typed pointer.
func As[T any](v *Value) *T { return (*T)(v.ptr) }

// Append writes the value into the field's columns and returns the packed
// byte count.
func (v *Value) Append() (int, error) { return v.field.Append(v.ptr) }

// Read populates the value with the entry at globalIndex.
func (v *Value) Read(globalIndex int64) error { return v.field.Read(globalIndex, v.ptr) }

// ReadLocal populates the value with the entry at a cluster-local index.
func (v *Value) ReadLocal(idx column.LocalIndex) error { return v.field.ReadLocal(idx, v.ptr) }

// Release drops ownership and returns the raw pointer; the caller keeps the
// object alive from here on.
func (v *Value) Release() unsafe.Pointer {
	v.owning = false
	return v.ptr
}

// Destroy releases the object if the handle owns it.
func (v *Value) Destroy() {
	if v.owning && v.ptr != nil {
		v.field.destroyValue(v.ptr)
		v.owning = false
	}
}
