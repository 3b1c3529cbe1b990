package field

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/typereg"
)

// aliases normalize alternative spellings to canonical type names.
var aliases = map[string]string{
	"byte": "uint8",
	"rune": "int32",
}

// EnsureValidName checks a field name: non-empty, no dots, no control
// characters, no leading digit.
func EnsureValidName(name string) error {
	if name == "" {
		return errors.New(errors.ErrorTypeInvalidArgument, "field name cannot be empty")
	}
	if name[0] >= '0' && name[0] <= '9' {
		return errors.Newf(errors.ErrorTypeInvalidArgument,
			"field name %q cannot start with a digit", name)
	}
	for _, r := range name {
		if r == '.' || r < 0x20 || r == 0x7f {
			return errors.Newf(errors.ErrorTypeInvalidArgument,
				"field name %q contains invalid characters", name)
		}
	}
	return nil
}

// Create parses the type name and manufactures the matching field, resolving
// named types through the default registry.
func Create(name, typeName string) (*Field, error) {
	return CreateWithRegistry(name, typeName, typereg.Default())
}

// CreateWithRegistry is Create against an explicit type registry.
func CreateWithRegistry(name, typeName string, reg *typereg.Registry) (*Field, error) {
	if err := EnsureValidName(name); err != nil {
		return nil, err
	}
	normalized := strings.ReplaceAll(typeName, " ", "")
	f, err := createField(name, normalized, reg, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	if f.typeName != normalized {
		f.typeAlias = normalized
	}
	return f, nil
}

// createField builds a field for a normalized type name. The visiting set
// rejects self-referential types.
func createField(name, typeName string, reg *typereg.Registry, visiting map[string]bool) (*Field, error) {
	if alias, ok := aliases[typeName]; ok {
		typeName = alias
	}

	if _, ok := leafSpecs[typeName]; ok {
		return newLeafField(name, typeName, reg), nil
	}

	switch {
	case typeName == "string":
		return newStringField(name, reg), nil
	case typeName == "cardinality32":
		return NewCardinalityField(name, 32, reg)
	case typeName == "cardinality64":
		return NewCardinalityField(name, 64, reg)
	case strings.HasPrefix(typeName, "[]"):
		item, err := createField("_0", typeName[2:], reg, visiting)
		if err != nil {
			return nil, err
		}
		return newSliceField(name, item, reg)
	case strings.HasPrefix(typeName, "["):
		closing := strings.IndexByte(typeName, ']')
		if closing < 0 {
			return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "malformed type %q", typeName)
		}
		n, err := strconv.Atoi(typeName[1:closing])
		if err != nil || n <= 0 {
			return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
				"invalid array length in %q", typeName)
		}
		item, err := createField("_0", typeName[closing+1:], reg, visiting)
		if err != nil {
			return nil, err
		}
		return NewArrayField(name, item, n)
	case strings.HasPrefix(typeName, "*"):
		item, err := createField("_0", typeName[1:], reg, visiting)
		if err != nil {
			return nil, err
		}
		return NewPointerField(name, item)
	}

	if head, args, ok := splitGeneric(typeName); ok {
		switch head {
		case "optional":
			if len(args) != 1 {
				return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
					"optional takes one type argument, got %q", typeName)
			}
			item, err := createField("_0", args[0], reg, visiting)
			if err != nil {
				return nil, err
			}
			return NewOptionalField(name, item)
		case "set":
			if len(args) != 1 {
				return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
					"set takes one type argument, got %q", typeName)
			}
			item, err := createField("_0", args[0], reg, visiting)
			if err != nil {
				return nil, err
			}
			return NewSetField(name, item)
		case "atomic":
			if len(args) != 1 {
				return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
					"atomic takes one type argument, got %q", typeName)
			}
			item, err := createField("_0", args[0], reg, visiting)
			if err != nil {
				return nil, err
			}
			return NewAtomicField(name, item)
		case "bitset":
			if len(args) != 1 {
				return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
					"bitset takes one width argument, got %q", typeName)
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
					"invalid bitset width in %q", typeName)
			}
			return NewBitsetField(name, n, reg)
		case "variant":
			alts := make([]*Field, len(args))
			for i, arg := range args {
				alt, err := createField("_"+strconv.Itoa(i), arg, reg, visiting)
				if err != nil {
					return nil, err
				}
				alts[i] = alt
			}
			return NewVariantField(name, alts)
		case "pair":
			if len(args) != 2 {
				return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
					"pair takes two type arguments, got %q", typeName)
			}
			first, err := createField("_0", args[0], reg, visiting)
			if err != nil {
				return nil, err
			}
			second, err := createField("_1", args[1], reg, visiting)
			if err != nil {
				return nil, err
			}
			return NewPairField(name, first, second)
		case "tuple":
			items := make([]*Field, len(args))
			for i, arg := range args {
				item, err := createField("_"+strconv.Itoa(i), arg, reg, visiting)
				if err != nil {
					return nil, err
				}
				items[i] = item
			}
			return NewTupleField(name, items)
		}
	}

	info, err := reg.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	switch info.Kind {
	case typereg.KindStruct:
		return newClassField(name, info, reg, visiting)
	case typereg.KindEnum:
		return newEnumField(name, info, reg)
	case typereg.KindCollectionProxy:
		return newProxiedCollectionField(name, info, reg, visiting)
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupported, "type %q", typeName)
	}
}

// splitGeneric decomposes "head[a,b,c]" into its head and top-level comma
// separated arguments.
func splitGeneric(typeName string) (string, []string, bool) {
	open := strings.IndexByte(typeName, '[')
	if open <= 0 || typeName[len(typeName)-1] != ']' {
		return "", nil, false
	}
	head := typeName[:open]
	inner := typeName[open+1 : len(typeName)-1]
	if inner == "" {
		return head, nil, true
	}
	var args []string
	depth := 0
	last := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, inner[last:i])
				last = i + 1
			}
		}
	}
	args = append(args, inner[last:])
	return head, args, true
}
