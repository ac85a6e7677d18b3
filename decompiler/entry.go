package decompiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Constant type tags as they appear in the instruction stream.
const (
	TagInt    = 3
	TagFloat  = 4
	TagString = 5
	TagObject = 6
)

// StackEntry is a symbolic value occupying one or more operand stack slots.
type StackEntry interface {
	Type() Type
	// Size is the number of slots the entry occupies.
	Size() int
	// GetElement projects the slot at pos, counted from the top of the
	// entry starting at 1. Atomic entries return themselves for any pos >= 1.
	GetElement(pos int) (StackEntry, error)
	String() string
	Clone() StackEntry
	Close()
}

// NewConst builds a constant entry from a type tag and a literal value.
func NewConst(tag int, value any) (StackEntry, error) {
	switch tag {
	case TagInt:
		switch v := value.(type) {
		case int:
			return &IntConst{Value: int64(v)}, nil
		case int32:
			return &IntConst{Value: int64(v)}, nil
		case int64:
			return &IntConst{Value: v}, nil
		case uint32:
			return &IntConst{Value: int64(v)}, nil
		}
	case TagFloat:
		switch v := value.(type) {
		case float32:
			return &FloatConst{Value: float64(v)}, nil
		case float64:
			return &FloatConst{Value: v}, nil
		}
	case TagString:
		if v, ok := value.(string); ok {
			return &StringConst{Value: v}, nil
		}
	case TagObject:
		switch v := value.(type) {
		case int:
			return &ObjectConst{Value: int32(v)}, nil
		case int32:
			return &ObjectConst{Value: v}, nil
		}
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnsupportedConstType, tag)
	}
	return nil, fmt.Errorf("%w: tag %d with %T value", ErrUnsupportedConstType, tag, value)
}

func atomicElement(e StackEntry, pos int) (StackEntry, error) {
	if pos < 1 {
		return nil, fmt.Errorf("%w: element %d", ErrInvalidStackAccess, pos)
	}
	return e, nil
}

// IntConst is an integer literal.
type IntConst struct {
	Value int64
}

func (c *IntConst) Type() Type { return TypeInt }
func (c *IntConst) Size() int  { return 1 }

func (c *IntConst) GetElement(pos int) (StackEntry, error) { return atomicElement(c, pos) }

// String renders the all-ones bit pattern in hex, everything else in decimal.
func (c *IntConst) String() string {
	if c.Value == -1 || c.Value == 0xFFFFFFFF {
		return "0xFFFFFFFF"
	}
	return strconv.FormatInt(c.Value, 10)
}

func (c *IntConst) Clone() StackEntry { return &IntConst{Value: c.Value} }
func (c *IntConst) Close()            {}

// FloatConst is a floating point literal.
type FloatConst struct {
	Value float64
}

func (c *FloatConst) Type() Type { return TypeFloat }
func (c *FloatConst) Size() int  { return 1 }

func (c *FloatConst) GetElement(pos int) (StackEntry, error) { return atomicElement(c, pos) }

func (c *FloatConst) String() string {
	s := strconv.FormatFloat(c.Value, 'f', -1, 32)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func (c *FloatConst) Clone() StackEntry { return &FloatConst{Value: c.Value} }
func (c *FloatConst) Close()            {}

// StringConst is a string literal.
type StringConst struct {
	Value string
}

func (c *StringConst) Type() Type { return TypeString }
func (c *StringConst) Size() int  { return 1 }

func (c *StringConst) GetElement(pos int) (StackEntry, error) { return atomicElement(c, pos) }
func (c *StringConst) String() string                         { return strconv.Quote(c.Value) }

func (c *StringConst) Clone() StackEntry { return &StringConst{Value: c.Value} }
func (c *StringConst) Close()            {}

// ObjectConst is an object id literal.
type ObjectConst struct {
	Value int32
}

func (c *ObjectConst) Type() Type { return TypeObject }
func (c *ObjectConst) Size() int  { return 1 }

func (c *ObjectConst) GetElement(pos int) (StackEntry, error) { return atomicElement(c, pos) }

func (c *ObjectConst) String() string {
	switch c.Value {
	case 0:
		return "OBJECT_SELF"
	case 1:
		return "OBJECT_INVALID"
	}
	return strconv.FormatInt(int64(c.Value), 10)
}

func (c *ObjectConst) Clone() StackEntry { return &ObjectConst{Value: c.Value} }
func (c *ObjectConst) Close()            {}

// Compound is an aggregate of contiguous entries such as a vector built from
// three float pushes. Fields are ordered from the lowest stack slot upward.
type Compound struct {
	Typ    Type
	Fields []StackEntry
}

func (c *Compound) Type() Type { return c.Typ }

func (c *Compound) Size() int {
	n := 0
	for _, f := range c.Fields {
		n += f.Size()
	}
	return n
}

// GetElement walks the fields from the top slot down, recursing into nested
// aggregates.
func (c *Compound) GetElement(pos int) (StackEntry, error) {
	if pos < 1 || pos > c.Size() {
		return nil, fmt.Errorf("%w: element %d of %d-slot %s", ErrInvalidStackAccess, pos, c.Size(), c.Typ)
	}
	for i := len(c.Fields) - 1; i >= 0; i-- {
		f := c.Fields[i]
		if pos <= f.Size() {
			return f.GetElement(pos)
		}
		pos -= f.Size()
	}
	return nil, fmt.Errorf("%w: element %d", ErrInvalidStackAccess, pos)
}

func (c *Compound) String() string {
	parts := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		parts[i] = f.String()
	}
	if c.Typ == TypeVector {
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c *Compound) Clone() StackEntry {
	fields := make([]StackEntry, len(c.Fields))
	for i, f := range c.Fields {
		fields[i] = f.Clone()
	}
	return &Compound{Typ: c.Typ, Fields: fields}
}

func (c *Compound) Close() {
	for _, f := range c.Fields {
		f.Close()
	}
	c.Fields = nil
}

// VarKind says where a variable lives.
type VarKind int

const (
	VarLocal VarKind = iota
	VarParam
	VarGlobal
	VarReturn
	VarMarker // saved base pointer slot
)

// VarInfo is the identity of a named variable. Clones of a Variable entry
// share it, so declaring the variable on one path is visible on all paths.
type VarInfo struct {
	Name     string
	Type     Type
	Slots    int
	Kind     VarKind
	Declared bool
}

// Variable is a stack entry that holds a named variable.
type Variable struct {
	Info *VarInfo
}

func (v *Variable) Type() Type { return v.Info.Type }
func (v *Variable) Size() int  { return v.Info.Slots }

func (v *Variable) GetElement(pos int) (StackEntry, error) { return atomicElement(v, pos) }
func (v *Variable) String() string                         { return v.Info.Name }

func (v *Variable) Clone() StackEntry { return &Variable{Info: v.Info} }
func (v *Variable) Close()            {}

// ExprEntry is a computed value that has not been consumed yet.
type ExprEntry struct {
	Expr Expression
	Typ  Type
	Slot int
}

func (e *ExprEntry) Type() Type { return e.Typ }
func (e *ExprEntry) Size() int  { return e.Slot }

func (e *ExprEntry) GetElement(pos int) (StackEntry, error) { return atomicElement(e, pos) }
func (e *ExprEntry) String() string                         { return e.Expr.String() }

func (e *ExprEntry) Clone() StackEntry {
	return &ExprEntry{Expr: e.Expr.Clone(), Typ: e.Typ, Slot: e.Slot}
}

func (e *ExprEntry) Close() {
	if e.Expr != nil {
		e.Expr.Close()
		e.Expr = nil
	}
}

func isConst(e StackEntry) bool {
	switch e.(type) {
	case *IntConst, *FloatConst, *StringConst, *ObjectConst:
		return true
	}
	return false
}
