package decompiler

import "github.com/chazu/ncsdecomp/pkg/bytecode"

// Type is the script-level type of a stack value.
type Type int

const (
	TypeUnknown Type = iota
	TypeVoid
	TypeInt
	TypeFloat
	TypeString
	TypeObject
	TypeVector
	TypeStruct
	TypeAction
	TypeEffect
	TypeEvent
	TypeLocation
	TypeTalent
	TypeItemProperty
)

var typeNames = map[Type]string{
	TypeUnknown:      "unknown",
	TypeVoid:         "void",
	TypeInt:          "int",
	TypeFloat:        "float",
	TypeString:       "string",
	TypeObject:       "object",
	TypeVector:       "vector",
	TypeStruct:       "struct",
	TypeAction:       "action",
	TypeEffect:       "effect",
	TypeEvent:        "event",
	TypeLocation:     "location",
	TypeTalent:       "talent",
	TypeItemProperty: "itemproperty",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Slots returns the number of stack slots a value of this type occupies.
// Structs report 0 because their width is carried by the value itself.
func (t Type) Slots() int {
	switch t {
	case TypeVector:
		return 3
	case TypeVoid, TypeAction, TypeStruct:
		return 0
	default:
		return 1
	}
}

// ParseType maps a catalog type name to a Type.
func ParseType(name string) Type {
	for t, n := range typeNames {
		if n == name {
			return t
		}
	}
	return TypeUnknown
}

// FromCode maps an instruction type qualifier to a Type.
func FromCode(c bytecode.TypeCode) Type {
	switch c {
	case bytecode.TypeInt:
		return TypeInt
	case bytecode.TypeFloat:
		return TypeFloat
	case bytecode.TypeString:
		return TypeString
	case bytecode.TypeObject:
		return TypeObject
	case bytecode.TypeEffect:
		return TypeEffect
	case bytecode.TypeEvent:
		return TypeEvent
	case bytecode.TypeLocation:
		return TypeLocation
	case bytecode.TypeTalent:
		return TypeTalent
	case bytecode.TypeItemProperty:
		return TypeItemProperty
	}
	return TypeUnknown
}
