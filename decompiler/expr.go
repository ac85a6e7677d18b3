package decompiler

import "strings"

// Expression is a node of a synthesized expression tree. Each node owns its
// operands and caches the stack entry that stands for its value.
type Expression interface {
	String() string
	Type() Type
	// Entry returns the stack entry representing this value, creating it on
	// first use.
	Entry() StackEntry
	Clone() Expression
	Close()
}

type exprBase struct {
	typ    Type
	slots  int
	cached *ExprEntry
}

func (b *exprBase) Type() Type { return b.typ }

func (b *exprBase) entry(self Expression) StackEntry {
	if b.cached == nil {
		b.cached = &ExprEntry{Expr: self, Typ: b.typ, Slot: b.slots}
	}
	return b.cached
}

func (b *exprBase) release() {
	b.cached = nil
}

func base(t Type, slots int) exprBase {
	return exprBase{typ: t, slots: slots}
}

func closeAll(exprs ...Expression) {
	for _, e := range exprs {
		if e != nil {
			e.Close()
		}
	}
}

// ConstExpr wraps a constant stack entry.
type ConstExpr struct {
	exprBase
	Value StackEntry
}

func NewConstExpr(v StackEntry) *ConstExpr {
	return &ConstExpr{exprBase: base(v.Type(), v.Size()), Value: v}
}

func (e *ConstExpr) String() string    { return e.Value.String() }
func (e *ConstExpr) Entry() StackEntry { return e.entry(e) }
func (e *ConstExpr) Clone() Expression { return NewConstExpr(e.Value.Clone()) }

func (e *ConstExpr) Close() {
	if e.Value != nil {
		e.Value.Close()
		e.Value = nil
	}
	e.release()
}

// VarExpr reads a named variable.
type VarExpr struct {
	exprBase
	Var *VarInfo
}

func NewVarExpr(v *VarInfo) *VarExpr {
	return &VarExpr{exprBase: base(v.Type, v.Slots), Var: v}
}

func (e *VarExpr) String() string    { return e.Var.Name }
func (e *VarExpr) Entry() StackEntry { return e.entry(e) }
func (e *VarExpr) Clone() Expression { return NewVarExpr(e.Var) }
func (e *VarExpr) Close()            { e.release() }

// BinaryExpr is an arithmetic, bitwise or shift operation.
type BinaryExpr struct {
	exprBase
	Op          string
	Left, Right Expression
}

func NewBinaryExpr(op string, l, r Expression, t Type) *BinaryExpr {
	return &BinaryExpr{exprBase: base(t, slotsOf(t)), Op: op, Left: l, Right: r}
}

func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

func (e *BinaryExpr) Entry() StackEntry { return e.entry(e) }

func (e *BinaryExpr) Clone() Expression {
	return NewBinaryExpr(e.Op, e.Left.Clone(), e.Right.Clone(), e.typ)
}

func (e *BinaryExpr) Close() {
	closeAll(e.Left, e.Right)
	e.Left, e.Right = nil, nil
	e.release()
}

// CondExpr is a comparison or a logical && / ||. It always yields an int.
type CondExpr struct {
	exprBase
	Op          string
	Left, Right Expression
}

func NewCondExpr(op string, l, r Expression) *CondExpr {
	return &CondExpr{exprBase: base(TypeInt, 1), Op: op, Left: l, Right: r}
}

func (e *CondExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

func (e *CondExpr) Entry() StackEntry { return e.entry(e) }
func (e *CondExpr) Clone() Expression { return NewCondExpr(e.Op, e.Left.Clone(), e.Right.Clone()) }

func (e *CondExpr) Close() {
	closeAll(e.Left, e.Right)
	e.Left, e.Right = nil, nil
	e.release()
}

// UnaryExpr is a negation, complement or logical not.
type UnaryExpr struct {
	exprBase
	Op string
	X  Expression
}

func NewUnaryExpr(op string, x Expression) *UnaryExpr {
	return &UnaryExpr{exprBase: base(x.Type(), slotsOf(x.Type())), Op: op, X: x}
}

func (e *UnaryExpr) String() string    { return e.Op + e.X.String() }
func (e *UnaryExpr) Entry() StackEntry { return e.entry(e) }
func (e *UnaryExpr) Clone() Expression { return NewUnaryExpr(e.Op, e.X.Clone()) }

func (e *UnaryExpr) Close() {
	closeAll(e.X)
	e.X = nil
	e.release()
}

// Not negates a condition. A negated comparison is printed in parentheses.
func Not(x Expression) Expression {
	if u, ok := x.(*UnaryExpr); ok && u.Op == "!" {
		inner := u.X
		u.X = nil
		u.Close()
		return inner
	}
	return NewUnaryExpr("!", x)
}

// CallExpr calls an engine action or a subroutine.
type CallExpr struct {
	exprBase
	Name string
	Args []Expression
}

func NewCallExpr(name string, args []Expression, ret Type, slots int) *CallExpr {
	return &CallExpr{exprBase: base(ret, slots), Name: name, Args: args}
}

func (e *CallExpr) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = stripParens(a.String())
	}
	return e.Name + "(" + strings.Join(parts, ", ") + ")"
}

func (e *CallExpr) Entry() StackEntry { return e.entry(e) }

func (e *CallExpr) Clone() Expression {
	args := make([]Expression, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Clone()
	}
	return NewCallExpr(e.Name, args, e.typ, e.slots)
}

func (e *CallExpr) Close() {
	closeAll(e.Args...)
	e.Args = nil
	e.release()
}

// FieldExpr selects a vector component or struct field.
type FieldExpr struct {
	exprBase
	X     Expression
	Field string
}

func NewFieldExpr(x Expression, field string, t Type, slots int) *FieldExpr {
	return &FieldExpr{exprBase: base(t, slots), X: x, Field: field}
}

func (e *FieldExpr) String() string    { return e.X.String() + "." + e.Field }
func (e *FieldExpr) Entry() StackEntry { return e.entry(e) }

func (e *FieldExpr) Clone() Expression {
	return NewFieldExpr(e.X.Clone(), e.Field, e.typ, e.slots)
}

func (e *FieldExpr) Close() {
	closeAll(e.X)
	e.X = nil
	e.release()
}

// VectorExpr is a vector literal assembled from three float values.
type VectorExpr struct {
	exprBase
	Elems [3]Expression
}

func NewVectorExpr(x, y, z Expression) *VectorExpr {
	return &VectorExpr{exprBase: base(TypeVector, 3), Elems: [3]Expression{x, y, z}}
}

func (e *VectorExpr) String() string {
	return "[" + stripParens(e.Elems[0].String()) + ", " + stripParens(e.Elems[1].String()) + ", " +
		stripParens(e.Elems[2].String()) + "]"
}

func (e *VectorExpr) Entry() StackEntry { return e.entry(e) }

func (e *VectorExpr) Clone() Expression {
	return NewVectorExpr(e.Elems[0].Clone(), e.Elems[1].Clone(), e.Elems[2].Clone())
}

func (e *VectorExpr) Close() {
	closeAll(e.Elems[:]...)
	e.Elems = [3]Expression{}
	e.release()
}

// PostfixExpr is an in-place increment or decrement.
type PostfixExpr struct {
	exprBase
	X  Expression
	Op string
}

func NewPostfixExpr(x Expression, op string) *PostfixExpr {
	return &PostfixExpr{exprBase: base(TypeInt, 1), X: x, Op: op}
}

func (e *PostfixExpr) String() string    { return e.X.String() + e.Op }
func (e *PostfixExpr) Entry() StackEntry { return e.entry(e) }
func (e *PostfixExpr) Clone() Expression { return NewPostfixExpr(e.X.Clone(), e.Op) }

func (e *PostfixExpr) Close() {
	closeAll(e.X)
	e.X = nil
	e.release()
}

// ClosureExpr is a deferred action argument. Its body is a detached block of
// statements.
type ClosureExpr struct {
	exprBase
	Body *Node
}

func NewClosureExpr(body *Node) *ClosureExpr {
	return &ClosureExpr{exprBase: base(TypeAction, 0), Body: body}
}

// String prints a single-statement body inline, which is the shape produced
// for the usual DelayCommand and AssignCommand arguments.
func (e *ClosureExpr) String() string {
	if e.Body == nil {
		return "{}"
	}
	stmts := make([]string, 0, len(e.Body.Children()))
	for _, c := range e.Body.Children() {
		stmts = append(stmts, c.inline())
	}
	if len(stmts) == 1 {
		return strings.TrimSuffix(stmts[0], ";")
	}
	return "{ " + strings.Join(stmts, " ") + " }"
}

func (e *ClosureExpr) Entry() StackEntry { return e.entry(e) }

func (e *ClosureExpr) Clone() Expression {
	if e.Body == nil {
		return NewClosureExpr(nil)
	}
	return NewClosureExpr(e.Body.Clone())
}

func (e *ClosureExpr) Close() {
	if e.Body != nil {
		e.Body.Close()
		e.Body = nil
	}
	e.release()
}

func slotsOf(t Type) int {
	if t == TypeStruct || t == TypeVoid {
		return 0
	}
	return t.Slots()
}

// hasSideEffects reports whether evaluating e calls out to a routine.
func hasSideEffects(e Expression) bool {
	switch x := e.(type) {
	case *CallExpr, *PostfixExpr:
		return true
	case *BinaryExpr:
		return hasSideEffects(x.Left) || hasSideEffects(x.Right)
	case *CondExpr:
		return hasSideEffects(x.Left) || hasSideEffects(x.Right)
	case *UnaryExpr:
		return hasSideEffects(x.X)
	case *FieldExpr:
		return hasSideEffects(x.X)
	case *VectorExpr:
		return hasSideEffects(x.Elems[0]) || hasSideEffects(x.Elems[1]) || hasSideEffects(x.Elems[2])
	}
	return false
}
