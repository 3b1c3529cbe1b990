// Package typereg is the type reflection service of the field engine. It
// resolves a type name to a structural description: struct members with byte
// offsets (embedded structs play the role of base subobjects), the underlying
// integer type of enums, and the iterator protocol of proxied collections.
// It also keeps the schema-evolution read rules consulted when a field
// connects to a page source.
package typereg

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/logger"
)

// Kind classifies a registered type.
type Kind int

const (
	KindStruct Kind = iota
	KindEnum
	KindCollectionProxy
)

// Member describes one data member of a registered struct. Embedded structs
// are flagged; the field engine maps them as base subobjects with a reserved
// name prefix.
type Member struct {
	Name     string
	TypeName string
	Offset   uintptr
	Embedded bool
}

// Iterator walks the items of a proxied collection. Next returns nil when the
// collection is exhausted; Destroy releases iterator state.
type Iterator interface {
	Next() unsafe.Pointer
	Destroy()
}

// CollectionProxy supplies the runtime iteration protocol for container types
// without a compile-time item layout the engine can walk on its own.
type CollectionProxy struct {
	// ItemTypeName names the element type in the engine's grammar.
	ItemTypeName string
	// Stride is the distance between consecutive items when the collection
	// stores them contiguously; 0 forces the iterator protocol.
	Stride uintptr
	// Len returns the number of items.
	Len func(coll unsafe.Pointer) int
	// CreateIterator starts an iteration over the collection.
	CreateIterator func(coll unsafe.Pointer) Iterator
	// Base returns the contiguous storage base; only used when Stride > 0.
	Base func(coll unsafe.Pointer) unsafe.Pointer
	// Clear empties the collection before a read repopulates it.
	Clear func(coll unsafe.Pointer)
	// Insert adds one item during a read.
	Insert func(coll unsafe.Pointer, item unsafe.Pointer)
}

// Info is the structural description of a registered type.
type Info struct {
	Name        string
	Kind        Kind
	GoType      reflect.Type
	TypeVersion uint32
	// Members lists struct data members in declaration order.
	Members []Member
	// Underlying names the integer type backing an enum.
	Underlying string
	// Proxy is set for collection-proxy types.
	Proxy *CollectionProxy
	// Construct initializes a freshly allocated value when the zero value is
	// not usable as-is (the analogue of an I/O constructor). May be nil.
	Construct func(obj unsafe.Pointer)
}

// ReadRule transforms an object in place after it has been read; installed as
// a post-read callback when the on-disk type version matches.
type ReadRule func(obj unsafe.Pointer)

type ruleKey struct {
	typeName string
	version  uint32
}

// Registry resolves type names and keeps evolution rules. It is safe for
// concurrent lookups; registration is expected at program start.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Info
	byType  map[reflect.Type]*Info
	rules   map[ruleKey][]ReadRule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Info),
		byType: make(map[reflect.Type]*Info),
		rules:  make(map[ruleKey][]ReadRule),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

func (r *Registry) add(info *Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[info.Name]; ok {
		return errors.Newf(errors.ErrorTypeInvalidArgument, "type %q already registered", info.Name)
	}
	r.byName[info.Name] = info
	r.byType[info.GoType] = info
	logger.Debug("type registered",
		zap.String("type", info.Name),
		zap.Uint32("version", info.TypeVersion))
	return nil
}

// RegisterStruct registers a named struct type. Member type names are derived
// from the Go types; nested named types must be registered first. A
// `quasar:"name"` struct tag overrides the member name, `quasar:"-"` skips
// the member.
func (r *Registry) RegisterStruct(name string, goType reflect.Type, version uint32) (*Info, error) {
	if goType.Kind() != reflect.Struct {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"RegisterStruct(%q): %s is not a struct", name, goType)
	}
	info := &Info{Name: name, Kind: KindStruct, GoType: goType, TypeVersion: version}
	for i := 0; i < goType.NumField(); i++ {
		sf := goType.Field(i)
		memberName := sf.Name
		if tag, ok := sf.Tag.Lookup("quasar"); ok {
			if tag == "-" {
				continue
			}
			memberName = tag
		}
		typeName, err := r.TypeNameFor(sf.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeUnsupported,
				fmt.Sprintf("member %s.%s", name, sf.Name))
		}
		info.Members = append(info.Members, Member{
			Name:     memberName,
			TypeName: typeName,
			Offset:   sf.Offset,
			Embedded: sf.Anonymous,
		})
	}
	if err := r.add(info); err != nil {
		return nil, err
	}
	return info, nil
}

// RegisterEnum registers a named integer type as an enum.
func (r *Registry) RegisterEnum(name string, goType reflect.Type) (*Info, error) {
	underlying, ok := enumUnderlying(goType.Kind())
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"RegisterEnum(%q): %s has no integer underlying type", name, goType)
	}
	info := &Info{Name: name, Kind: KindEnum, GoType: goType, Underlying: underlying}
	if err := r.add(info); err != nil {
		return nil, err
	}
	return info, nil
}

// RegisterProxy registers a collection type iterated through a proxy.
func (r *Registry) RegisterProxy(name string, goType reflect.Type, proxy *CollectionProxy,
	construct func(unsafe.Pointer)) (*Info, error) {
	if proxy == nil || proxy.Len == nil || (proxy.Stride == 0 && proxy.CreateIterator == nil) {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"RegisterProxy(%q): incomplete iteration protocol", name)
	}
	info := &Info{
		Name:      name,
		Kind:      KindCollectionProxy,
		GoType:    goType,
		Proxy:     proxy,
		Construct: construct,
	}
	if err := r.add(info); err != nil {
		return nil, err
	}
	return info, nil
}

// Resolve returns the description of a registered type name.
func (r *Registry) Resolve(name string) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "unknown type %q", name)
	}
	return info, nil
}

// LookupGoType returns the registered description of a Go type, if any.
func (r *Registry) LookupGoType(t reflect.Type) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byType[t]
	return info, ok
}

// AddReadRule registers a schema-evolution transformation applied after every
// read of the named type when the on-disk type version matches.
func (r *Registry) AddReadRule(typeName string, onDiskVersion uint32, rule ReadRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ruleKey{typeName: typeName, version: onDiskVersion}
	r.rules[key] = append(r.rules[key], rule)
}

// ReadRules returns the rules for (type, on-disk version) in registration
// order.
func (r *Registry) ReadRules(typeName string, onDiskVersion uint32) []ReadRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[ruleKey{typeName: typeName, version: onDiskVersion}]
}

// TypeNameFor derives the engine grammar name of a Go type: registered names
// win, then builtins, slices, fixed arrays, pointers and set-shaped maps.
func (r *Registry) TypeNameFor(t reflect.Type) (string, error) {
	if info, ok := r.LookupGoType(t); ok {
		return info.Name, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return "bool", nil
	case reflect.Int8:
		return "int8", nil
	case reflect.Int16:
		return "int16", nil
	case reflect.Int32:
		return "int32", nil
	case reflect.Int64:
		return "int64", nil
	case reflect.Uint8:
		return "uint8", nil
	case reflect.Uint16:
		return "uint16", nil
	case reflect.Uint32:
		return "uint32", nil
	case reflect.Uint64:
		return "uint64", nil
	case reflect.Float32:
		return "float32", nil
	case reflect.Float64:
		return "float64", nil
	case reflect.String:
		return "string", nil
	case reflect.Slice:
		inner, err := r.TypeNameFor(t.Elem())
		if err != nil {
			return "", err
		}
		return "[]" + inner, nil
	case reflect.Array:
		inner, err := r.TypeNameFor(t.Elem())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%d]%s", t.Len(), inner), nil
	case reflect.Pointer:
		inner, err := r.TypeNameFor(t.Elem())
		if err != nil {
			return "", err
		}
		return "*" + inner, nil
	case reflect.Map:
		if t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0 {
			inner, err := r.TypeNameFor(t.Key())
			if err != nil {
				return "", err
			}
			return "set[" + inner + "]", nil
		}
		return "", errors.Newf(errors.ErrorTypeUnsupported, "map type %s", t)
	default:
		return "", errors.Newf(errors.ErrorTypeUnsupported, "type %s (%s)", t, t.Kind())
	}
}

func enumUnderlying(k reflect.Kind) (string, bool) {
	switch k {
	case reflect.Int8:
		return "int8", true
	case reflect.Int16:
		return "int16", true
	case reflect.Int32:
		return "int32", true
	case reflect.Int64, reflect.Int:
		return "int64", true
	case reflect.Uint8:
		return "uint8", true
	case reflect.Uint16:
		return "uint16", true
	case reflect.Uint32:
		return "uint32", true
	case reflect.Uint64, reflect.Uint:
		return "uint64", true
	default:
		return "", false
	}
}
