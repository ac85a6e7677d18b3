package decompiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/ncsdecomp/pkg/actions"
	"github.com/chazu/ncsdecomp/pkg/bytecode"
)

// subDecompiler reconstructs a single subroutine. Instances are never shared
// between goroutines.
type subDecompiler struct {
	an      *analysis
	sub     *Subroutine
	prog    *bytecode.Program
	catalog actions.Catalog

	names   *namer
	kind    VarKind // kind of the variables this routine declares
	globals *LocalVarStack

	loopHeads map[int]int // head index -> index of the furthest back edge
	loops     []*loopCtx
	active    map[int]bool

	at     int // offset of the instruction being translated
	diags  []Diagnostic
	report func(Diagnostic)
}

func newSubDecompiler(an *analysis, s *Subroutine, catalog actions.Catalog, globals *LocalVarStack, report func(Diagnostic)) *subDecompiler {
	d := &subDecompiler{
		an:        an,
		sub:       s,
		prog:      an.prog,
		catalog:   catalog,
		names:     newNamer(false),
		kind:      VarLocal,
		globals:   globals,
		loopHeads: make(map[int]int),
		active:    make(map[int]bool),
		report:    report,
	}
	for j := s.Start; j < s.End; j++ {
		in := &d.prog.Instructions[j]
		if !in.Op.IsJump() {
			continue
		}
		t, ok := d.prog.IndexOf(in.Target)
		if !ok || t > j || t < s.Start {
			continue
		}
		if l, seen := d.loopHeads[t]; !seen || j > l {
			d.loopHeads[t] = j
		}
	}
	return d
}

// namer hands out variable names numbered per type in declaration order.
type namer struct {
	global bool
	counts map[string]int
}

func newNamer(global bool) *namer {
	return &namer{global: global, counts: make(map[string]int)}
}

func (n *namer) next(t Type) string {
	tn := declType(t)
	n.counts[tn]++
	if n.global {
		return fmt.Sprintf("%sGlobal%d", tn, n.counts[tn])
	}
	return fmt.Sprintf("%s%d", tn, n.counts[tn])
}

func (n *namer) snapshot() map[string]int {
	c := make(map[string]int, len(n.counts))
	for k, v := range n.counts {
		c[k] = v
	}
	return c
}

func (n *namer) restore(c map[string]int) {
	n.counts = c
}

// frame is the simulated state along one control path.
type frame struct {
	*LocalVarStack
	ret     Expression   // value stored to the return slot and not yet returned
	closure *ClosureExpr // deferred action waiting for its ACTION
}

func (f *frame) clone() *frame {
	c := &frame{LocalVarStack: f.LocalVarStack.Clone()}
	if f.ret != nil {
		c.ret = f.ret.Clone()
	}
	if f.closure != nil {
		c.closure = f.closure.Clone().(*ClosureExpr)
	}
	return c
}

// adopt takes over the stack of g.
func (f *frame) adopt(g *frame) {
	f.LocalVarStack.Close()
	f.LocalVarStack = g.LocalVarStack
	g.LocalVarStack = nil
}

func (f *frame) close() {
	if f.LocalVarStack != nil {
		f.LocalVarStack.Close()
	}
	closeAll(f.ret)
	f.ret = nil
	if f.closure != nil {
		f.closure.Close()
		f.closure = nil
	}
}

func (d *subDecompiler) diag(kind DiagnosticKind, offset int, err error, format string, args ...any) {
	d.diags = append(d.diags, Diagnostic{
		Kind:       kind,
		Subroutine: d.sub.Name,
		Offset:     offset,
		Message:    fmt.Sprintf(format, args...),
		Err:        err,
	})
}

func (d *subDecompiler) flushDiagnostics() {
	for _, diag := range d.diags {
		log.Warningf("%s", diag.String())
		if d.report != nil {
			d.report(diag)
		}
	}
	d.diags = nil
}

func (d *subDecompiler) wrap(in *bytecode.Instruction, err error) error {
	var derr *DecompileError
	if errors.As(err, &derr) {
		return err
	}
	return &DecompileError{Subroutine: d.sub.Name, Offset: in.Offset, Err: err}
}

// declare names info if needed, marks it declared and emits the declaration.
func (d *subDecompiler) declare(out *Node, info *VarInfo, init Expression) {
	if info.Name == "" {
		info.Name = d.names.next(info.Type)
	}
	info.Declared = true
	out.AddChild(newStmt(KindDecl, d.at, declType(info.Type)+" "+info.Name, init))
}

func (d *subDecompiler) ensureDeclared(out *Node, info *VarInfo) {
	if info.Declared || (info.Kind != VarLocal && info.Kind != VarGlobal) {
		return
	}
	d.declare(out, info, nil)
}

// materialize turns the temporary at depth into a declared variable
// initialized with the temporary's value.
func (d *subDecompiler) materialize(out *Node, f *frame, depth int) (*VarInfo, error) {
	e, err := f.Peek(depth)
	if err != nil {
		return nil, err
	}
	if v, ok := e.(*Variable); ok {
		d.ensureDeclared(out, v.Info)
		return v.Info, nil
	}
	info := &VarInfo{Type: e.Type(), Slots: e.Size(), Kind: d.kind}
	old, err := f.Declare(f.posOf(depth), &Variable{Info: info})
	if err != nil {
		return nil, err
	}
	d.declare(out, info, d.take(out, old))
	return info, nil
}

// materializeAll declares every temporary and pending variable on the stack,
// deepest first. It runs before control flow splits so that both paths see
// the same named slots.
func (d *subDecompiler) materializeAll(out *Node, f *frame) error {
	for depth := f.Size() - 1; depth >= 0; depth-- {
		if _, err := d.materialize(out, f, depth); err != nil {
			return err
		}
	}
	return nil
}

// flushEffects declares every pending call result so that it is evaluated
// before the statement about to be emitted.
func (d *subDecompiler) flushEffects(out *Node, f *frame) error {
	for depth := f.Size() - 1; depth >= 0; depth-- {
		e, err := f.Peek(depth)
		if err != nil {
			return err
		}
		if x, ok := e.(*ExprEntry); ok && hasSideEffects(x.Expr) {
			if _, err := d.materialize(out, f, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// take converts a popped entry into an expression owned by the caller.
func (d *subDecompiler) take(out *Node, e StackEntry) Expression {
	switch x := e.(type) {
	case *ExprEntry:
		return x.Expr
	case *Variable:
		d.ensureDeclared(out, x.Info)
		return NewVarExpr(x.Info)
	case *Compound:
		if x.Typ == TypeVector && len(x.Fields) == 3 {
			return NewVectorExpr(d.take(out, x.Fields[0]), d.take(out, x.Fields[1]), d.take(out, x.Fields[2]))
		}
		parts := make([]string, len(x.Fields))
		for i, fe := range x.Fields {
			v := d.take(out, fe)
			parts[i] = stripParens(v.String())
			v.Close()
		}
		return NewVarExpr(&VarInfo{Name: "{" + strings.Join(parts, ", ") + "}", Type: x.Typ, Slots: x.Size(), Declared: true})
	}
	return NewConstExpr(e)
}

// popExpr pops the entries covering the top slots and returns their value.
// Three single-slot values popped for a vector operand form a vector literal.
func (d *subDecompiler) popExpr(out *Node, f *frame, slots int) (Expression, error) {
	e, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if e.Size() == slots {
		return d.take(out, e), nil
	}
	if e.Size() > slots {
		e.Close()
		return nil, fmt.Errorf("%w: %d-slot operand inside a %d-slot entry", ErrInvalidStackAccess, slots, e.Size())
	}
	parts := []StackEntry{e}
	n := e.Size()
	for n < slots {
		x, err := f.Pop()
		if err != nil {
			for _, p := range parts {
				p.Close()
			}
			return nil, err
		}
		parts = append(parts, x)
		n += x.Size()
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	if n != slots {
		for _, p := range parts {
			p.Close()
		}
		return nil, fmt.Errorf("%w: operand of %d slots straddles entries", ErrInvalidStackAccess, slots)
	}
	t := TypeStruct
	if slots == 3 && len(parts) == 3 {
		t = TypeVector
	}
	return d.take(out, &Compound{Typ: t, Fields: parts}), nil
}

// ref returns an expression reading the entry at depth, declaring it first
// when it is a temporary.
func (d *subDecompiler) ref(out *Node, f *frame, depth int) (Expression, error) {
	e, err := f.Peek(depth)
	if err != nil {
		return nil, err
	}
	switch x := e.(type) {
	case *Variable:
		d.ensureDeclared(out, x.Info)
		return NewVarExpr(x.Info), nil
	case *ExprEntry:
		switch x.Expr.(type) {
		case *VarExpr:
			return x.Expr.Clone(), nil
		case *FieldExpr:
			if !hasSideEffects(x.Expr) {
				return x.Expr.Clone(), nil
			}
		}
	}
	info, err := d.materialize(out, f, depth)
	if err != nil {
		return nil, err
	}
	return NewVarExpr(info), nil
}

// field projects component k, counted from the lowest slot, of a value of
// type t.
func field(x Expression, t Type, k, slots int) Expression {
	if t == TypeVector && slots == 1 && k >= 0 && k < 3 {
		return NewFieldExpr(x, string("xyz"[k]), TypeFloat, 1)
	}
	return NewFieldExpr(x, fmt.Sprintf("field%d", k), TypeUnknown, slots)
}

// span merges the entries covering positions hi..pos into one entry and
// returns its depth. Reserved slots merged this way become one variable.
func (d *subDecompiler) span(f *frame, depth, top, pos, hi, slots int) (int, error) {
	e, err := f.Peek(depth)
	if err != nil {
		return 0, err
	}
	if top+e.Size()-1 != pos {
		return 0, fmt.Errorf("%w: %d slots at %d straddle entries", ErrInvalidStackAccess, slots, pos)
	}
	count := 1
	all := top
	for all > hi {
		next, err := f.Peek(depth - count)
		if err != nil {
			return 0, err
		}
		all -= next.Size()
		count++
	}
	if all != hi {
		return 0, fmt.Errorf("%w: %d slots at %d straddle entries", ErrInvalidStackAccess, slots, pos)
	}

	t := TypeStruct
	if slots == 3 && count == 3 {
		t = TypeVector
	}
	c := f.merge(depth, count, t)
	newDepth := depth - count + 1

	reserved := true
	for _, fe := range c.Fields {
		if v, ok := fe.(*Variable); !ok || v.Info.Declared {
			reserved = false
			break
		}
		if t == TypeVector && fe.Type() != TypeFloat && fe.Type() != TypeUnknown {
			t = TypeStruct
		}
	}
	if reserved {
		if _, err := f.Declare(pos, &Variable{Info: &VarInfo{Type: t, Slots: slots, Kind: d.kind}}); err != nil {
			return 0, err
		}
	} else {
		c.Typ = t
	}
	return newDepth, nil
}

// lvalue returns an expression reading slots s ending at position p.
func (d *subDecompiler) lvalue(out *Node, f *frame, p, s int) (Expression, error) {
	e, depth, top, err := f.Locate(p)
	if err != nil {
		return nil, err
	}
	hi := p - s + 1
	if hi < 1 {
		return nil, fmt.Errorf("%w: %d slots at position %d", ErrInvalidStackAccess, s, p)
	}
	bottom := top + e.Size() - 1
	switch {
	case bottom == p && top == hi:
		return d.ref(out, f, depth)
	case hi >= top:
		x, err := d.ref(out, f, depth)
		if err != nil {
			return nil, err
		}
		return field(x, e.Type(), bottom-p, s), nil
	}
	depth, err = d.span(f, depth, top, p, hi, s)
	if err != nil {
		return nil, err
	}
	return d.ref(out, f, depth)
}

// assign stores src into the s slots ending at pos and leaves a reference
// to the target on the stack, as CPDOWNSP leaves its source in place.
func (d *subDecompiler) assign(out *Node, f *frame, pos, s int, src Expression) error {
	e, depth, top, err := f.Locate(pos)
	if err != nil {
		closeAll(src)
		return err
	}
	hi := pos - s + 1
	bottom := top + e.Size() - 1
	if bottom != pos || top != hi {
		if hi >= top && bottom >= pos {
			x, err := d.ref(out, f, depth)
			if err != nil {
				closeAll(src)
				return err
			}
			lhs := field(x, e.Type(), bottom-pos, s)
			out.AddChild(newStmt(KindAssign, d.at, lhs.String(), src))
			f.Push(lhs.Entry())
			return nil
		}
		if depth, err = d.span(f, depth, top, pos, hi, s); err != nil {
			closeAll(src)
			return err
		}
		if e, err = f.Peek(depth); err != nil {
			closeAll(src)
			return err
		}
	}

	v, ok := e.(*Variable)
	if !ok {
		info, err := d.materialize(out, f, depth)
		if err != nil {
			closeAll(src)
			return err
		}
		v = &Variable{Info: info}
	}
	info := v.Info
	switch {
	case info.Kind == VarReturn:
		closeAll(f.ret)
		f.ret = src
	case !info.Declared && (info.Kind == VarLocal || info.Kind == VarGlobal):
		d.declare(out, info, src)
	default:
		out.AddChild(newStmt(KindAssign, d.at, info.Name, src))
	}
	f.Push(NewVarExpr(info).Entry())
	return nil
}

// discard drops a popped entry, keeping any effect it has on the output.
func (d *subDecompiler) discard(out *Node, e StackEntry) {
	switch x := e.(type) {
	case *Variable:
		d.ensureDeclared(out, x.Info)
	case *ExprEntry:
		switch x.Expr.(type) {
		case *VarExpr, *FieldExpr, *ConstExpr:
			if hasSideEffects(x.Expr) {
				out.AddChild(newStmt(KindExpr, d.at, "", x.Expr))
				return
			}
			x.Close()
		case *CallExpr, *PostfixExpr:
			out.AddChild(newStmt(KindExpr, d.at, "", x.Expr))
		default:
			d.declare(out, &VarInfo{Type: x.Typ, Slots: x.Slot, Kind: d.kind}, x.Expr)
		}
	case *Compound:
		if x.Typ == TypeVector && len(x.Fields) == 3 {
			d.declare(out, &VarInfo{Type: TypeVector, Slots: 3, Kind: d.kind}, d.take(out, x))
			return
		}
		for _, fe := range x.Fields {
			d.discard(out, fe)
		}
	default:
		d.declare(out, &VarInfo{Type: e.Type(), Slots: e.Size(), Kind: d.kind}, NewConstExpr(e))
	}
}

// drop pops n slots, splitting an aggregate that straddles the boundary.
func (d *subDecompiler) drop(out *Node, f *frame, n int) error {
	for n > 0 {
		e, err := f.Peek(0)
		if err != nil {
			return err
		}
		if e.Size() <= n {
			f.Pop()
			n -= e.Size()
			d.discard(out, e)
			continue
		}
		c, ok := e.(*Compound)
		if !ok {
			return fmt.Errorf("%w: pop %d slots of a %d-slot %s", ErrInvalidStackAccess, n, e.Size(), e.Type())
		}
		f.Pop()
		for n > 0 && len(c.Fields) > 0 {
			last := c.Fields[len(c.Fields)-1]
			if last.Size() > n {
				c.Close()
				return fmt.Errorf("%w: pop %d slots inside a nested aggregate", ErrInvalidStackAccess, n)
			}
			c.Fields = c.Fields[:len(c.Fields)-1]
			n -= last.Size()
			d.discard(out, last)
		}
		switch len(c.Fields) {
		case 0:
		case 1:
			f.Push(c.Fields[0])
		default:
			c.Typ = TypeStruct
			f.Push(c)
		}
	}
	if f.Slots() < f.FrameBase() {
		f.AdjustFrameBase(f.Slots() - f.FrameBase())
	}
	return nil
}

// globalRef reads s global slots ending at BP-relative position p.
func (d *subDecompiler) globalRef(p, s int) (Expression, error) {
	if d.globals == nil {
		return nil, fmt.Errorf("%w: global access without a globals frame", ErrInvalidStackAccess)
	}
	e, _, top, err := d.globals.Locate(p)
	if err != nil {
		return nil, err
	}
	v, ok := e.(*Variable)
	if !ok {
		return nil, fmt.Errorf("%w: global slot %d is not a variable", ErrInvalidStackAccess, p)
	}
	x := NewVarExpr(v.Info)
	bottom := top + e.Size() - 1
	if bottom == p && top == p-s+1 {
		return x, nil
	}
	if p-s+1 < top {
		x.Close()
		return nil, fmt.Errorf("%w: %d global slots at %d straddle variables", ErrInvalidStackAccess, s, p)
	}
	return field(x, e.Type(), bottom-p, s), nil
}

var binarySymbols = map[bytecode.Opcode]string{
	bytecode.OpLogAnd:   "&&",
	bytecode.OpLogOr:    "||",
	bytecode.OpIncOr:    "|",
	bytecode.OpExcOr:    "^",
	bytecode.OpBoolAnd:  "&",
	bytecode.OpEqual:    "==",
	bytecode.OpNEqual:   "!=",
	bytecode.OpGEq:      ">=",
	bytecode.OpGT:       ">",
	bytecode.OpLT:       "<",
	bytecode.OpLEq:      "<=",
	bytecode.OpShLeft:   "<<",
	bytecode.OpShRight:  ">>",
	bytecode.OpUShRight: ">>>",
	bytecode.OpAdd:      "+",
	bytecode.OpSub:      "-",
	bytecode.OpMul:      "*",
	bytecode.OpDiv:      "/",
	bytecode.OpMod:      "%",
}

var unarySymbols = map[bytecode.Opcode]string{
	bytecode.OpNeg:  "-",
	bytecode.OpComp: "~",
	bytecode.OpNot:  "!",
}

// operandShape returns the slot widths of the operands of an arithmetic,
// logic or comparison instruction and the type of its result.
func operandShape(in *bytecode.Instruction) (ls, rs int, res Type) {
	if in.Op.IsUnary() {
		if in.Op == bytecode.OpNot {
			return 1, 0, TypeInt
		}
		return 1, 0, FromCode(in.Type)
	}
	ls, rs = 1, 1
	switch in.Type {
	case bytecode.TypeVectorVector:
		ls, rs, res = 3, 3, TypeVector
	case bytecode.TypeVectorFloat:
		ls, rs, res = 3, 1, TypeVector
	case bytecode.TypeFloatVector:
		ls, rs, res = 1, 3, TypeVector
	case bytecode.TypeStructStruct:
		n := bytecode.Slots(int(in.Size))
		ls, rs, res = n, n, TypeStruct
	case bytecode.TypeIntInt:
		res = TypeInt
	case bytecode.TypeFloatFloat, bytecode.TypeIntFloat, bytecode.TypeFloatInt:
		res = TypeFloat
	case bytecode.TypeStringString:
		res = TypeString
	default:
		l, _ := in.Type.Operands()
		res = FromCode(l)
	}
	if in.Op.IsComparison() {
		res = TypeInt
	}
	return ls, rs, res
}

// step translates one straight-line instruction.
func (d *subDecompiler) step(f *frame, out *Node, i int) error {
	in := &d.prog.Instructions[i]
	d.at = in.Offset

	switch in.Op {
	case bytecode.OpConst:
		c, err := NewConst(int(in.Type), constValue(in))
		if err != nil {
			return err
		}
		f.Push(c)

	case bytecode.OpRSAdd:
		f.Push(&Variable{Info: &VarInfo{Type: FromCode(in.Type), Slots: 1, Kind: d.kind}})

	case bytecode.OpCPTopSP:
		x, err := d.lvalue(out, f, bytecode.Slots(-int(in.Int)), bytecode.Slots(int(in.Size)))
		if err != nil {
			return err
		}
		f.Push(x.Entry())

	case bytecode.OpCPDownSP:
		p, s := bytecode.Slots(-int(in.Int)), bytecode.Slots(int(in.Size))
		src, err := d.popExpr(out, f, s)
		if err != nil {
			return err
		}
		if err := d.flushEffects(out, f); err != nil {
			closeAll(src)
			return err
		}
		return d.assign(out, f, p-s, s, src)

	case bytecode.OpMovSP:
		return d.drop(out, f, bytecode.Slots(-int(in.Int)))

	case bytecode.OpAction:
		return d.action(f, out, in)

	case bytecode.OpJSR:
		return d.call(f, out, in)

	case bytecode.OpIncISP, bytecode.OpDecISP:
		x, err := d.lvalue(out, f, bytecode.Slots(-int(in.Int)), 1)
		if err != nil {
			return err
		}
		return d.postfix(f, out, in, x)

	case bytecode.OpIncIBP, bytecode.OpDecIBP:
		x, err := d.globalRef(bytecode.Slots(-int(in.Int)), 1)
		if err != nil {
			return err
		}
		return d.postfix(f, out, in, x)

	case bytecode.OpCPTopBP:
		x, err := d.globalRef(bytecode.Slots(-int(in.Int)), bytecode.Slots(int(in.Size)))
		if err != nil {
			return err
		}
		f.Push(x.Entry())

	case bytecode.OpCPDownBP:
		s := bytecode.Slots(int(in.Size))
		lhs, err := d.globalRef(bytecode.Slots(-int(in.Int)), s)
		if err != nil {
			return err
		}
		src, err := d.popExpr(out, f, s)
		if err != nil {
			lhs.Close()
			return err
		}
		if err := d.flushEffects(out, f); err != nil {
			closeAll(src, lhs)
			return err
		}
		out.AddChild(newStmt(KindAssign, in.Offset, lhs.String(), src))
		f.Push(lhs.Entry())

	case bytecode.OpSaveBP:
		f.Push(&Variable{Info: &VarInfo{Name: "bp", Type: TypeInt, Slots: 1, Kind: VarMarker, Declared: true}})

	case bytecode.OpRestoreBP:
		e, err := f.Pop()
		if err != nil {
			return err
		}
		d.discard(out, e)

	case bytecode.OpDestruct:
		return d.destruct(f, out, in)

	case bytecode.OpNop, bytecode.OpStoreStateAll:

	default:
		switch {
		case in.Op.IsUnary():
			x, err := d.popExpr(out, f, 1)
			if err != nil {
				return err
			}
			if in.Op == bytecode.OpNot {
				f.Push(Not(x).Entry())
			} else {
				f.Push(NewUnaryExpr(unarySymbols[in.Op], x).Entry())
			}
		case in.Op.IsBinary():
			ls, rs, res := operandShape(in)
			r, err := d.popExpr(out, f, rs)
			if err != nil {
				return err
			}
			l, err := d.popExpr(out, f, ls)
			if err != nil {
				r.Close()
				return err
			}
			if in.Op.IsComparison() {
				f.Push(NewCondExpr(binarySymbols[in.Op], l, r).Entry())
			} else {
				f.Push(NewBinaryExpr(binarySymbols[in.Op], l, r, res).Entry())
			}
		default:
			return fmt.Errorf("unexpected %s in straight-line code", in.Op)
		}
	}
	return nil
}

func constValue(in *bytecode.Instruction) any {
	switch in.Type {
	case bytecode.TypeFloat:
		return in.Float
	case bytecode.TypeString:
		return in.Str
	}
	return in.Int
}

func (d *subDecompiler) postfix(f *frame, out *Node, in *bytecode.Instruction, x Expression) error {
	if err := d.flushEffects(out, f); err != nil {
		x.Close()
		return err
	}
	op := "++"
	if in.Op == bytecode.OpDecISP || in.Op == bytecode.OpDecIBP {
		op = "--"
	}
	out.AddChild(newStmt(KindExpr, in.Offset, "", NewPostfixExpr(x, op)))
	return nil
}

// action translates an engine call. Arguments are on the stack with the
// first parameter on top; an action-typed parameter takes the pending
// deferred block instead of a stack value.
func (d *subDecompiler) action(f *frame, out *Node, in *bytecode.Instruction) error {
	act, known := d.catalog.Lookup(int(in.Action))
	if !known {
		d.diag(DiagUnknownAction, in.Offset, nil, "action %d is not in the catalog", in.Action)
		args := make([]Expression, 0, in.Argc)
		for k := 0; k < int(in.Argc); k++ {
			e, err := f.Pop()
			if err != nil {
				closeAll(args...)
				return err
			}
			args = append(args, d.take(out, e))
		}
		if err := d.flushEffects(out, f); err != nil {
			closeAll(args...)
			return err
		}
		out.AddChild(newStmt(KindExpr, in.Offset, "", NewCallExpr(fmt.Sprintf("Action%d", in.Action), args, TypeVoid, 0)))
		return nil
	}

	args := make([]Expression, 0, in.Argc)
	for k, p := range act.Params {
		if k >= int(in.Argc) {
			break
		}
		t := ParseType(p.Type)
		if t == TypeAction {
			if f.closure == nil {
				closeAll(args...)
				return fmt.Errorf("%w: %s expects a deferred action", ErrStackUnderflow, act.Name)
			}
			args = append(args, f.closure)
			f.closure = nil
			continue
		}
		x, err := d.popExpr(out, f, paramWidth(t))
		if err != nil {
			closeAll(args...)
			return err
		}
		args = append(args, x)
	}

	ret := ParseType(act.Returns)
	call := NewCallExpr(act.Name, args, ret, paramWidth(ret))
	if paramWidth(ret) == 0 {
		if err := d.flushEffects(out, f); err != nil {
			call.Close()
			return err
		}
		out.AddChild(newStmt(KindExpr, in.Offset, "", call))
		return nil
	}
	f.Push(call.Entry())
	return nil
}

// call translates a JSR. The caller reserved the return slots before
// pushing the arguments.
func (d *subDecompiler) call(f *frame, out *Node, in *bytecode.Instruction) error {
	callee := d.an.subAt(in.Target)
	if callee == nil {
		return fmt.Errorf("%w: JSR to %04X", bytecode.ErrBadJumpTarget, in.Target)
	}
	args := make([]Expression, 0, len(callee.Params))
	for _, p := range callee.Params {
		x, err := d.popExpr(out, f, p.Slots)
		if err != nil {
			closeAll(args...)
			return err
		}
		args = append(args, x)
	}
	for n := 0; n < callee.ReturnSlots; {
		e, err := f.Pop()
		if err != nil {
			closeAll(args...)
			return err
		}
		n += e.Size()
		e.Close()
	}

	c := NewCallExpr(callee.Name, args, callee.ReturnType, callee.ReturnSlots)
	if callee.ReturnSlots == 0 {
		if err := d.flushEffects(out, f); err != nil {
			c.Close()
			return err
		}
		out.AddChild(newStmt(KindExpr, in.Offset, "", c))
		return nil
	}
	f.Push(c.Entry())
	return nil
}

// destruct drops a range of slots keeping one sub-range, which is how a
// field is selected from an aggregate copied to the top of the stack.
func (d *subDecompiler) destruct(f *frame, out *Node, in *bytecode.Instruction) error {
	size := bytecode.Slots(int(in.Size))
	off := bytecode.Slots(int(in.ExcludeOffset))
	keep := bytecode.Slots(int(in.ExcludeSize))

	e, err := f.Peek(0)
	if err != nil {
		return err
	}
	if e.Size() == size {
		f.Pop()
		var x Expression
		if v, ok := e.(*Variable); ok {
			d.ensureDeclared(out, v.Info)
			x = NewVarExpr(v.Info)
		} else {
			x = d.take(out, e)
		}
		f.Push(field(x, e.Type(), off, keep).Entry())
		return nil
	}

	var parts []StackEntry
	for n := 0; n < size; {
		x, err := f.Pop()
		if err != nil {
			return err
		}
		parts = append([]StackEntry{x}, parts...)
		n += x.Size()
	}
	pos := 0
	for _, p := range parts {
		if pos >= off && pos+p.Size() <= off+keep {
			f.Push(p)
		} else {
			d.discard(out, p)
		}
		pos += p.Size()
	}
	return nil
}
