package decompiler

import (
	"fmt"

	"github.com/chazu/ncsdecomp/pkg/bytecode"
)

type loopCtx struct {
	head, latch int
	exit        int          // index of the first instruction after the latch
	cont        map[int]bool // indices a continue may jump to
}

func (d *subDecompiler) innermost() *loopCtx {
	if len(d.loops) == 0 {
		return nil
	}
	return d.loops[len(d.loops)-1]
}

func (d *subDecompiler) index(in *bytecode.Instruction) (int, error) {
	t, ok := d.prog.IndexOf(in.Target)
	if !ok {
		return 0, fmt.Errorf("%w: %s at %04X", bytecode.ErrBadJumpTarget, in.Op, in.Offset)
	}
	return t, nil
}

func (d *subDecompiler) isReturnTarget(t int) bool {
	return t >= d.sub.Epilogue && t <= d.sub.Ret
}

// shortCircuit reports whether i starts the duplicate-and-test sequence that
// compiles the left operand of && or ||.
func (d *subDecompiler) shortCircuit(i int) bool {
	ins := d.prog.Instructions
	in := &ins[i]
	if in.Op != bytecode.OpCPTopSP || in.Int != -4 || in.Size != 4 || i+1 >= len(ins) {
		return false
	}
	j := &ins[i+1]
	if !j.Op.IsConditional() {
		return false
	}
	t, ok := d.prog.IndexOf(j.Target)
	if !ok || t <= i+2 {
		return false
	}
	prev := ins[t-1].Op
	return (j.Op == bytecode.OpJZ && prev == bytecode.OpLogAnd) ||
		(j.Op == bytecode.OpJNZ && prev == bytecode.OpLogOr)
}

func (d *subDecompiler) returnStmt(f *frame, offset int) *Node {
	n := newStmt(KindReturn, offset, "", f.ret)
	f.ret = nil
	return n
}

// walk translates instructions [start, end) into children of out.
func (d *subDecompiler) walk(f *frame, out *Node, start, end int) error {
	for i := start; i < end; {
		in := &d.prog.Instructions[i]
		d.at = in.Offset

		if l, ok := d.loopHeads[i]; ok && l < end && !d.active[i] {
			next, err := d.loop(f, out, i, l)
			if err != nil {
				return d.wrap(in, err)
			}
			i = next
			continue
		}

		var (
			next = i + 1
			err  error
		)
		switch {
		case in.Op == bytecode.OpStoreState:
			next, err = d.closure(f, out, i)
		case d.shortCircuit(i):
			next = i + 2
		case in.Op.IsConditional():
			var t int
			if t, err = d.index(in); err != nil {
				break
			}
			if t > i {
				next, err = d.ifElse(f, out, i, t, end)
			} else {
				err = d.backEdge(f, out, i, t)
			}
		case in.Op == bytecode.OpJmp:
			next, err = d.jump(f, out, i, end)
		case in.Op == bytecode.OpRetn:
			out.AddChild(d.returnStmt(f, in.Offset))
		default:
			err = d.step(f, out, i)
		}
		if err != nil {
			return d.wrap(in, err)
		}
		i = next
	}
	return nil
}

// condition pops the tested value of a conditional jump and returns the
// condition under which the jump is taken.
func (d *subDecompiler) condition(f *frame, out *Node, in *bytecode.Instruction) (Expression, error) {
	c, err := d.popExpr(out, f, 1)
	if err != nil {
		return nil, err
	}
	if in.Op == bytecode.OpJZ {
		return Not(c), nil
	}
	return c, nil
}

// guarded emits "if (cond) stmt" for a jump that leaves the current region.
func (d *subDecompiler) guarded(out *Node, cond Expression, offset int, stmt *Node) {
	n := NewNode(KindIf, offset)
	n.Cond = cond
	n.AddChild(stmt)
	out.AddChild(n)
}

// backEdge handles a conditional jump backwards that is not the latch of a
// loop.
func (d *subDecompiler) backEdge(f *frame, out *Node, i, t int) error {
	in := &d.prog.Instructions[i]
	jc, err := d.condition(f, out, in)
	if err != nil {
		return err
	}
	if lp := d.innermost(); lp != nil && lp.cont[t] {
		d.guarded(out, jc, in.Offset, NewNode(KindContinue, in.Offset))
		return nil
	}
	jc.Close()
	out.AddChild(newStmt(KindComment, in.Offset, in.String(), nil))
	d.diag(DiagRawJump, in.Offset, nil, "backward %s with no enclosing loop", in.Op)
	return nil
}

// ifElse structures a forward conditional jump at i to t.
func (d *subDecompiler) ifElse(f *frame, out *Node, i, t, end int) (int, error) {
	ins := d.prog.Instructions
	in := &ins[i]
	jc, err := d.condition(f, out, in)
	if err != nil {
		return 0, err
	}

	if t > end {
		lp := d.innermost()
		switch {
		case lp != nil && t == lp.exit:
			d.guarded(out, jc, in.Offset, NewNode(KindBreak, in.Offset))
		case lp != nil && lp.cont[t]:
			d.guarded(out, jc, in.Offset, NewNode(KindContinue, in.Offset))
		case d.isReturnTarget(t):
			d.guarded(out, jc, in.Offset, d.returnStmt(f, in.Offset))
		default:
			jc.Close()
			out.AddChild(newStmt(KindComment, in.Offset, in.String(), nil))
			d.diag(DiagRawJump, in.Offset, nil, "%s leaves the enclosing block", in.Op)
		}
		return i + 1, nil
	}

	if err := d.materializeAll(out, f); err != nil {
		jc.Close()
		return 0, err
	}
	node := NewNode(KindIf, in.Offset)
	node.Cond = Not(jc)
	out.AddChild(node)

	thenEnd, elseEnd := t, -1
	if t-1 > i {
		if j := &ins[t-1]; j.Op == bytecode.OpJmp {
			te, err := d.index(j)
			if err != nil {
				return 0, err
			}
			if te > t && te <= end {
				thenEnd, elseEnd = t-1, te
			}
		}
	}

	tf := f.clone()
	defer tf.close()
	if err := d.arm(tf, node, i+1, thenEnd); err != nil {
		return 0, err
	}
	if elseEnd < 0 {
		if tf.Slots() > f.Slots() {
			f.adopt(tf)
		}
		return t, nil
	}

	ef := f.clone()
	defer ef.close()
	elseNode := NewNode(KindElse, ins[t].Offset)
	node.SetElse(elseNode)
	if err := d.arm(ef, elseNode, t, elseEnd); err != nil {
		return 0, err
	}
	switch {
	case tf.Slots() > f.Slots():
		f.adopt(tf)
	case ef.Slots() > f.Slots():
		f.adopt(ef)
	}
	return elseEnd, nil
}

// arm walks one branch of a conditional on its own frame.
func (d *subDecompiler) arm(f *frame, out *Node, start, end int) error {
	if err := d.walk(f, out, start, end); err != nil {
		return err
	}
	if f.ret != nil {
		out.AddChild(d.returnStmt(f, d.at))
	}
	return d.materializeAll(out, f)
}

// jump structures an unconditional jump at i.
func (d *subDecompiler) jump(f *frame, out *Node, i, end int) (int, error) {
	in := &d.prog.Instructions[i]
	t, err := d.index(in)
	if err != nil {
		return 0, err
	}
	lp := d.innermost()
	switch {
	case d.isReturnTarget(t) && f.ret != nil:
		out.AddChild(d.returnStmt(f, in.Offset))
	case t == i+1:
	case lp != nil && lp.cont[t]:
		out.AddChild(NewNode(KindContinue, in.Offset))
	case lp != nil && t == lp.exit:
		out.AddChild(NewNode(KindBreak, in.Offset))
	case d.isReturnTarget(t) && t != end:
		out.AddChild(d.returnStmt(f, in.Offset))
	case t == end:
	case lp != nil:
		out.AddChild(newStmt(KindUndeterminedExit, in.Offset, in.String(), nil))
		d.diag(DiagUndeterminedExit, in.Offset, ErrAmbiguousControlFlow,
			"jump to %04X is neither a break nor a continue", in.Target)
	default:
		out.AddChild(newStmt(KindComment, in.Offset, in.String(), nil))
		d.diag(DiagRawJump, in.Offset, nil, "unstructured jump to %04X", in.Target)
	}
	return i + 1, nil
}

// loop structures the region [h, l] closed by the back edge at l.
func (d *subDecompiler) loop(f *frame, out *Node, h, l int) (int, error) {
	ins := d.prog.Instructions
	latch := &ins[l]
	lp := &loopCtx{head: h, latch: l, exit: l + 1, cont: map[int]bool{h: true, l: true}}

	if err := d.materializeAll(out, f); err != nil {
		return 0, err
	}
	d.active[h] = true
	d.loops = append(d.loops, lp)
	defer func() {
		delete(d.active, h)
		d.loops = d.loops[:len(d.loops)-1]
	}()

	if latch.Op.IsConditional() {
		lp.cont = map[int]bool{}
		node := NewNode(KindDoWhile, ins[h].Offset)
		out.AddChild(node)
		bf := f.clone()
		defer bf.close()
		if err := d.walk(bf, node, h, l); err != nil {
			return 0, err
		}
		d.at = latch.Offset
		c, err := d.condition(bf, node, latch)
		if err != nil {
			return 0, d.wrap(latch, err)
		}
		// The latch jumps back when its condition holds.
		node.Cond = c
		return l + 1, nil
	}

	if c, cond, ok := d.loopHeader(f, h, l); ok {
		node := NewNode(KindWhile, ins[h].Offset)
		node.Cond = cond
		out.AddChild(node)
		return l + 1, d.body(f, node, c+1, l)
	}

	if l-1 > h && ins[l-1].Op.IsConditional() {
		tail := &ins[l-1]
		if t, ok := d.prog.IndexOf(tail.Target); ok && t == lp.exit {
			node := NewNode(KindDoWhile, ins[h].Offset)
			out.AddChild(node)
			bf := f.clone()
			defer bf.close()
			if err := d.walk(bf, node, h, l-1); err != nil {
				return 0, err
			}
			d.at = tail.Offset
			jc, err := d.condition(bf, node, tail)
			if err != nil {
				return 0, d.wrap(tail, err)
			}
			node.Cond = Not(jc)
			return l + 1, nil
		}
	}

	node := NewNode(KindWhile, ins[h].Offset)
	out.AddChild(node)
	exits := false
	for j := h; j < l; j++ {
		if ins[j].Op.HasTarget() && ins[j].Op != bytecode.OpJSR {
			if t, ok := d.prog.IndexOf(ins[j].Target); ok && t >= lp.exit {
				exits = true
				break
			}
		}
	}
	if !exits {
		d.diag(DiagUndeterminedExit, latch.Offset, ErrAmbiguousControlFlow, "loop at %04X has no exit", ins[h].Offset)
	}
	return l + 1, d.body(f, node, h, l)
}

func (d *subDecompiler) body(f *frame, node *Node, start, end int) error {
	bf := f.clone()
	defer bf.close()
	if err := d.walk(bf, node, start, end); err != nil {
		return err
	}
	if bf.ret != nil {
		node.AddChild(d.returnStmt(bf, d.at))
	}
	return nil
}

// loopHeader looks for a pre-test: straight-line code from the head that
// only computes one value and a conditional jump to the loop exit. It
// returns the index of that jump and the loop condition.
func (d *subDecompiler) loopHeader(f *frame, h, l int) (int, Expression, bool) {
	ins := d.prog.Instructions
	c := -1
	for j := h; j < l && c < 0; j++ {
		switch op := ins[j].Op; {
		case op == bytecode.OpJmp || op == bytecode.OpRetn || op == bytecode.OpStoreState:
			return 0, nil, false
		case d.shortCircuit(j):
			j++
		case op.IsConditional():
			t, ok := d.prog.IndexOf(ins[j].Target)
			if !ok || t != l+1 {
				return 0, nil, false
			}
			c = j
		}
	}
	if c < 0 {
		return 0, nil, false
	}

	names := d.names.snapshot()
	ndiags := len(d.diags)
	scratch := NewNode(KindRoot, ins[h].Offset)
	cf := f.clone()
	defer cf.close()
	defer scratch.Close()

	err := d.walk(cf, scratch, h, c)
	if err != nil || len(scratch.Children()) > 0 || cf.Size() != f.Size()+1 {
		d.names.restore(names)
		d.diags = d.diags[:ndiags]
		return 0, nil, false
	}
	jc, err := d.condition(cf, scratch, &ins[c])
	if err != nil {
		d.names.restore(names)
		d.diags = d.diags[:ndiags]
		return 0, nil, false
	}
	return c, Not(jc), true
}

// closure structures the STORE_STATE sequence that captures a deferred
// action: STORE_STATE, a jump over the body, the body, RETN.
func (d *subDecompiler) closure(f *frame, out *Node, i int) (int, error) {
	ins := d.prog.Instructions
	if i+1 >= len(ins) || ins[i+1].Op != bytecode.OpJmp {
		return 0, fmt.Errorf("%w: STORE_STATE not followed by JMP", ErrAmbiguousControlFlow)
	}
	after, err := d.index(&ins[i+1])
	if err != nil {
		return 0, err
	}
	if after <= i+2 {
		return 0, fmt.Errorf("%w: empty deferred action", ErrAmbiguousControlFlow)
	}
	bodyEnd := after
	if ins[after-1].Op == bytecode.OpRetn {
		bodyEnd = after - 1
	}

	if err := d.materializeAll(out, f); err != nil {
		return 0, err
	}

	loops := d.loops
	d.loops = nil
	defer func() { d.loops = loops }()

	cf := f.clone()
	defer cf.close()
	body := NewRoot("")
	if err := d.walk(cf, body, i+2, bodyEnd); err != nil {
		body.Close()
		return 0, err
	}
	for cf.Size() > f.Size() {
		e, _ := cf.Pop()
		d.discard(body, e)
	}

	if f.closure != nil {
		f.closure.Close()
	}
	f.closure = NewClosureExpr(body)
	return after, nil
}

// function reconstructs the subroutine as a function node.
func (d *subDecompiler) function() (*Node, error) {
	defer d.flushDiagnostics()
	s := d.sub

	f := &frame{LocalVarStack: NewLocalVarStack(s.ReturnSlots + s.ParamSlots())}
	defer f.close()
	if s.ReturnSlots > 0 {
		f.Push(&Variable{Info: &VarInfo{Name: "retval", Type: s.ReturnType, Slots: s.ReturnSlots, Kind: VarReturn, Declared: true}})
	}
	for k := len(s.Params) - 1; k >= 0; k-- {
		p := s.Params[k]
		f.Push(&Variable{Info: &VarInfo{Name: p.Name, Type: p.Type, Slots: p.Slots, Kind: VarParam, Declared: true}})
	}

	if s.condParamAt >= 0 {
		d.diag(DiagInferredParam, s.condParamAt, nil, "parameter inferred from a conditional test below the entry height")
	}

	fn := NewNode(KindFunction, s.Offset)
	fn.Text = s.Signature()
	if err := d.walk(f, fn, s.Start, s.Epilogue); err != nil {
		fn.Close()
		return nil, err
	}
	for i := s.Epilogue; i < s.Ret; i++ {
		if err := d.step(f, fn, i); err != nil {
			fn.Close()
			return nil, d.wrap(&d.prog.Instructions[i], err)
		}
	}
	if f.ret != nil {
		fn.AddChild(d.returnStmt(f, d.prog.Instructions[s.Ret].Offset))
	}
	log.Debugf("decompiled %s (%d params, %d return slots)", s.Name, len(s.Params), s.ReturnSlots)
	return fn, nil
}

// globalsInit translates the global variable initializers into declarations
// on root and returns the frame that BP-relative instructions address. The
// saved base pointer sits on top of it.
func (d *subDecompiler) globalsInit(root *Node) (*LocalVarStack, error) {
	defer d.flushDiagnostics()
	d.kind = VarGlobal
	d.names = newNamer(true)
	s := d.sub

	f := &frame{LocalVarStack: NewLocalVarStack(0)}
	defer f.close()
	block := NewRoot("")
	defer block.Close()
	if err := d.walk(f, block, s.Start, s.SaveBP); err != nil {
		return nil, err
	}
	if err := d.materializeAll(block, f); err != nil {
		return nil, d.wrap(&d.prog.Instructions[s.SaveBP], err)
	}
	for len(block.Children()) > 0 {
		root.AddChild(block.Children()[0])
	}

	g := f.LocalVarStack.Clone()
	g.Push(&Variable{Info: &VarInfo{Name: "bp", Type: TypeInt, Slots: 1, Kind: VarMarker, Declared: true}})
	log.Debugf("initialized %d global slots", g.Slots()-1)
	return g, nil
}
