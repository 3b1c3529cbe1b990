// Package arrow bridges Quasar field trees to Apache Arrow: it maps a schema
// of connected fields onto an arrow.Schema and materializes entry ranges as
// Arrow record batches, one column per top-level field.
package arrow

import (
	"fmt"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/field"
)

// NewSchema maps the given fields onto an Arrow schema. Supported are the
// primitive leaves, strings and slices of those.
func NewSchema(fields []*field.Field) (*arrow.Schema, error) {
	arrowFields := make([]arrow.Field, len(fields))
	for i, f := range fields {
		dt, err := dataTypeOf(f)
		if err != nil {
			return nil, err
		}
		arrowFields[i] = arrow.Field{Name: f.Name(), Type: dt}
	}
	return arrow.NewSchema(arrowFields, nil), nil
}

func dataTypeOf(f *field.Field) (arrow.DataType, error) {
	t := f.GoType()
	if t == nil {
		return nil, errors.Newf(errors.ErrorTypeUnsupported,
			"field %q has no value type", f.Name())
	}
	if t.Kind() == reflect.Slice {
		inner, err := primitiveType(t.Elem())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeUnsupported,
				fmt.Sprintf("field %q", f.Name()))
		}
		return arrow.ListOf(inner), nil
	}
	dt, err := primitiveType(t)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnsupported,
			fmt.Sprintf("field %q", f.Name()))
	}
	return dt, nil
}

func primitiveType(t reflect.Type) (arrow.DataType, error) {
	switch t.Kind() {
	case reflect.Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case reflect.Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case reflect.Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case reflect.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case reflect.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case reflect.Uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case reflect.Uint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case reflect.Uint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case reflect.Uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case reflect.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case reflect.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case reflect.String:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupported, "type %s", t)
	}
}

// ReadRecord materializes count entries starting at the global index start as
// one Arrow record batch. The fields must be connected to a page source.
func ReadRecord(fields []*field.Field, start, count int64) (arrow.Record, error) {
	schema, err := NewSchema(fields)
	if err != nil {
		return nil, err
	}
	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()

	for i, f := range fields {
		v, err := f.NewValue()
		if err != nil {
			return nil, err
		}
		for entry := start; entry < start+count; entry++ {
			if err := v.Read(entry); err != nil {
				v.Destroy()
				return nil, err
			}
			if err := appendValue(builder.Field(i), reflect.NewAt(f.GoType(), v.Ptr()).Elem()); err != nil {
				v.Destroy()
				return nil, err
			}
		}
		v.Destroy()
	}
	return builder.NewRecord(), nil
}

func appendValue(b array.Builder, rv reflect.Value) error {
	switch builder := b.(type) {
	case *array.BooleanBuilder:
		builder.Append(rv.Bool())
	case *array.Int8Builder:
		builder.Append(int8(rv.Int()))
	case *array.Int16Builder:
		builder.Append(int16(rv.Int()))
	case *array.Int32Builder:
		builder.Append(int32(rv.Int()))
	case *array.Int64Builder:
		builder.Append(rv.Int())
	case *array.Uint8Builder:
		builder.Append(uint8(rv.Uint()))
	case *array.Uint16Builder:
		builder.Append(uint16(rv.Uint()))
	case *array.Uint32Builder:
		builder.Append(uint32(rv.Uint()))
	case *array.Uint64Builder:
		builder.Append(rv.Uint())
	case *array.Float32Builder:
		builder.Append(float32(rv.Float()))
	case *array.Float64Builder:
		builder.Append(rv.Float())
	case *array.StringBuilder:
		builder.Append(rv.String())
	case *array.ListBuilder:
		builder.Append(true)
		value := builder.ValueBuilder()
		for i := 0; i < rv.Len(); i++ {
			if err := appendValue(value, rv.Index(i)); err != nil {
				return err
			}
		}
	default:
		return errors.Newf(errors.ErrorTypeUnsupported, "arrow builder %T", b)
	}
	return nil
}
