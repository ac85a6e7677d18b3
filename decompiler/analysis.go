package decompiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/ncsdecomp/pkg/actions"
	"github.com/chazu/ncsdecomp/pkg/bytecode"
)

// Role says how a subroutine is rendered.
type Role int

const (
	RoleFunction Role = iota
	RoleStub          // entry stub that only calls into the script
	RoleGlobals       // initializer of the global variables
	RoleMain          // script entry point
)

// Param is an inferred subroutine parameter.
type Param struct {
	Name  string
	Type  Type
	Slots int
}

// Subroutine is one callable region of a unit with its inferred signature.
type Subroutine struct {
	Name   string
	Role   Role
	Offset int // byte offset of the first instruction

	Start, End int // instruction indices, End exclusive
	Ret        int // index of the final RETN
	Epilogue   int // index of the trailing MOVSP run before Ret
	SaveBP     int // index of SAVEBP in the globals initializer, or -1

	Params      []Param
	ReturnType  Type
	ReturnSlots int

	paramSlots  []Type // types of the caller slots, first parameter's top slot first
	returnSlots []Type // types of the return slots, lowest first

	// condParamAt is the offset of the conditional jump whose pop is the only
	// access to some parameter slot, or -1.
	condParamAt int
}

// ParamSlots returns the number of stack slots taken by the parameters.
func (s *Subroutine) ParamSlots() int {
	return len(s.paramSlots)
}

// Signature renders the declaration line of the subroutine.
func (s *Subroutine) Signature() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = declType(p.Type) + " " + p.Name
	}
	ret := "void"
	if s.ReturnSlots > 0 {
		ret = declType(s.ReturnType)
	}
	return fmt.Sprintf("%s %s(%s)", ret, s.Name, strings.Join(params, ", "))
}

type analysis struct {
	prog    *bytecode.Program
	catalog actions.Catalog

	subs        []*Subroutine
	byStart     map[int]*Subroutine
	globalsSub  *Subroutine
	globalTypes []Type
	changed     bool
}

// analyze splits prog into subroutines and infers their signatures with a
// typed stack-height interpretation iterated to a fixed point.
func analyze(prog *bytecode.Program, catalog actions.Catalog) (*analysis, error) {
	a := &analysis{prog: prog, catalog: catalog, byStart: make(map[int]*Subroutine)}
	if prog.Len() == 0 {
		return a, nil
	}

	starts := map[int]bool{0: true}
	for i := range prog.Instructions {
		in := &prog.Instructions[i]
		if in.Op != bytecode.OpJSR {
			continue
		}
		t, ok := prog.IndexOf(in.Target)
		if !ok {
			return nil, fmt.Errorf("%w: JSR at %04X", bytecode.ErrBadJumpTarget, in.Offset)
		}
		starts[t] = true
	}
	idx := make([]int, 0, len(starts))
	for s := range starts {
		idx = append(idx, s)
	}
	sort.Ints(idx)

	for k, start := range idx {
		end := prog.Len()
		if k+1 < len(idx) {
			end = idx[k+1]
		}
		s := &Subroutine{Start: start, End: end, Offset: prog.Instructions[start].Offset, SaveBP: -1, condParamAt: -1}
		s.Ret = end - 1
		for i := end - 1; i >= start; i-- {
			if prog.Instructions[i].Op == bytecode.OpRetn {
				s.Ret = i
				break
			}
		}
		s.Epilogue = s.Ret
		for s.Epilogue-1 > start && prog.Instructions[s.Epilogue-1].Op == bytecode.OpMovSP {
			s.Epilogue--
		}
		for i := start; i < end; i++ {
			if prog.Instructions[i].Op == bytecode.OpSaveBP {
				s.SaveBP = i
				break
			}
		}
		a.subs = append(a.subs, s)
		a.byStart[start] = s
	}

	main := a.assignRoles()

	for round := 0; round < 2*len(a.subs)+2; round++ {
		a.changed = false
		for _, s := range a.subs {
			a.interpret(s)
		}
		if !a.changed {
			break
		}
	}

	n := 0
	for _, s := range a.subs {
		s.finish()
		switch {
		case s == main:
			s.Name = "main"
			if s.ReturnSlots > 0 {
				s.Name = "StartingConditional"
			}
		case s.Role == RoleStub:
			s.Name = "_start"
		case s.Role == RoleGlobals:
			s.Name = "_globals"
		default:
			n++
			s.Name = fmt.Sprintf("sub%d", n)
		}
	}
	return a, nil
}

// assignRoles recognizes the entry stub and the globals initializer and
// returns the script entry point.
func (a *analysis) assignRoles() *Subroutine {
	first := a.subs[0]
	callee := a.stubCallee(first)
	if callee == nil {
		first.Role = RoleMain
		return first
	}
	first.Role = RoleStub
	if callee.SaveBP >= 0 {
		callee.Role = RoleGlobals
		a.globalsSub = callee
		for i := callee.SaveBP; i < callee.End; i++ {
			in := &a.prog.Instructions[i]
			if in.Op != bytecode.OpJSR {
				continue
			}
			t, _ := a.prog.IndexOf(in.Target)
			if m := a.byStart[t]; m != nil && m != callee {
				m.Role = RoleMain
				return m
			}
		}
		return nil
	}
	callee.Role = RoleMain
	return callee
}

// stubCallee returns the callee of s when s only reserves a return slot and
// calls a single subroutine.
func (a *analysis) stubCallee(s *Subroutine) *Subroutine {
	var callee *Subroutine
	for i := s.Start; i < s.End; i++ {
		in := &a.prog.Instructions[i]
		switch in.Op {
		case bytecode.OpRSAdd, bytecode.OpRetn, bytecode.OpNop:
		case bytecode.OpJSR:
			if callee != nil {
				return nil
			}
			t, _ := a.prog.IndexOf(in.Target)
			callee = a.byStart[t]
		default:
			return nil
		}
	}
	if callee == s {
		return nil
	}
	return callee
}

func (a *analysis) subAt(offset int) *Subroutine {
	i, ok := a.prog.IndexOf(offset)
	if !ok {
		return nil
	}
	return a.byStart[i]
}

type absState struct {
	h     int
	low   int // lowest height reached by pop since the last reset
	types []Type
}

func (st *absState) clone() *absState {
	return &absState{h: st.h, types: append([]Type(nil), st.types...)}
}

func (st *absState) push(ts ...Type) {
	for _, t := range ts {
		if st.h >= 0 {
			st.types = append(st.types, t)
		}
		st.h++
	}
}

func (st *absState) pop(n int) {
	st.h -= n
	if st.h < st.low {
		st.low = st.h
	}
	keep := st.h
	if keep < 0 {
		keep = 0
	}
	if keep < len(st.types) {
		st.types = st.types[:keep]
	}
}

// typeAt returns the type of slot idx counted from the subroutine's entry
// height. Negative indices are the caller's parameter and return slots.
func (st *absState) typeAt(s *Subroutine, idx int) Type {
	if idx >= 0 {
		if idx < len(st.types) {
			return st.types[idx]
		}
		return TypeUnknown
	}
	j := -idx - 1
	if j < len(s.paramSlots) {
		return s.paramSlots[j]
	}
	j -= len(s.paramSlots)
	if j < len(s.returnSlots) {
		return s.returnSlots[len(s.returnSlots)-1-j]
	}
	return TypeUnknown
}

func repeat(t Type, n int) []Type {
	ts := make([]Type, n)
	for i := range ts {
		ts[i] = t
	}
	return ts
}

// interpret runs one round of the stack-height interpretation over s.
func (a *analysis) interpret(s *Subroutine) {
	prog := a.prog
	states := map[int]*absState{s.Start: {}}
	work := []int{s.Start}
	retH, retSeen := 0, false
	minWrite := 0
	otherLow, condAt := 0, -1

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		st := states[i].clone()
		st.low = st.h
		in := &prog.Instructions[i]
		succ := []int{i + 1}

		switch in.Op {
		case bytecode.OpConst, bytecode.OpRSAdd:
			st.push(FromCode(in.Type))
		case bytecode.OpCPTopSP:
			low := st.h - bytecode.Slots(-int(in.Int))
			if low < otherLow {
				otherLow = low
			}
			n := bytecode.Slots(int(in.Size))
			ts := make([]Type, n)
			for k := range ts {
				ts[k] = st.typeAt(s, low+k)
			}
			st.push(ts...)
		case bytecode.OpCPDownSP:
			if low := st.h - bytecode.Slots(-int(in.Int)); low < minWrite {
				minWrite = low
			}
		case bytecode.OpCPTopBP:
			p := bytecode.Slots(-int(in.Int))
			n := bytecode.Slots(int(in.Size))
			base := len(a.globalTypes) + 1 - p
			for k := 0; k < n; k++ {
				t := TypeUnknown
				if j := base + k; j >= 0 && j < len(a.globalTypes) {
					t = a.globalTypes[j]
				}
				st.push(t)
			}
		case bytecode.OpAction:
			if act, ok := a.catalog.Lookup(int(in.Action)); ok {
				n := 0
				for k, p := range act.Params {
					if k >= int(in.Argc) {
						break
					}
					n += paramWidth(ParseType(p.Type))
				}
				st.pop(n)
				ret := ParseType(act.Returns)
				st.push(repeat(ret, paramWidth(ret))...)
			} else {
				st.pop(int(in.Argc))
			}
		case bytecode.OpMovSP:
			st.pop(bytecode.Slots(-int(in.Int)))
		case bytecode.OpJZ, bytecode.OpJNZ:
			st.pop(1)
			if st.h < 0 && condAt < 0 {
				condAt = in.Offset
			}
			if t, ok := prog.IndexOf(in.Target); ok {
				succ = append(succ, t)
			}
		case bytecode.OpJmp:
			succ = nil
			if t, ok := prog.IndexOf(in.Target); ok {
				succ = []int{t}
			}
		case bytecode.OpJSR:
			if callee := a.subAt(in.Target); callee != nil {
				a.learnCall(st, s, callee)
				st.pop(len(callee.paramSlots))
			}
		case bytecode.OpRetn:
			if !retSeen || i == s.Ret {
				retH, retSeen = st.h, true
			}
			succ = nil
		case bytecode.OpSaveBP:
			if s.Role == RoleGlobals && i == s.SaveBP {
				g := append([]Type(nil), st.types...)
				if !equalTypes(g, a.globalTypes) {
					a.globalTypes = g
					a.changed = true
				}
			}
			st.push(TypeUnknown)
		case bytecode.OpRestoreBP:
			st.pop(1)
		case bytecode.OpDestruct:
			size := bytecode.Slots(int(in.Size))
			off := bytecode.Slots(int(in.ExcludeOffset))
			keep := bytecode.Slots(int(in.ExcludeSize))
			low := st.h - size
			kept := make([]Type, keep)
			for k := range kept {
				kept[k] = st.typeAt(s, low+off+k)
			}
			st.pop(size)
			st.push(kept...)
		default:
			if in.Op.IsBinary() || in.Op.IsUnary() {
				ls, rs, res := operandShape(in)
				st.pop(ls + rs)
				st.push(repeat(res, paramWidth(res))...)
			}
		}

		if !in.Op.IsConditional() && st.low < otherLow {
			otherLow = st.low
		}

		for _, n := range succ {
			if n < s.Start || n >= s.End {
				continue
			}
			if _, seen := states[n]; !seen {
				states[n] = st
				work = append(work, n)
			}
		}
	}

	params := 0
	if retSeen && retH < 0 {
		params = -retH
	}
	rets := 0
	if minWrite < -params {
		rets = -minWrite - params
	}
	if params != len(s.paramSlots) {
		s.paramSlots = resize(s.paramSlots, params)
		a.changed = true
	}
	if rets != len(s.returnSlots) {
		s.returnSlots = resize(s.returnSlots, rets)
		a.changed = true
	}
	s.condParamAt = -1
	if params > 0 && condAt >= 0 && min(otherLow, minWrite) > -params {
		s.condParamAt = condAt
	}
}

// learnCall records the slot types a caller passes to callee.
func (a *analysis) learnCall(st *absState, caller, callee *Subroutine) {
	p := len(callee.paramSlots)
	for k := 0; k < p; k++ {
		if t := st.typeAt(caller, st.h-1-k); t != TypeUnknown && callee.paramSlots[k] == TypeUnknown {
			callee.paramSlots[k] = t
			a.changed = true
		}
	}
	r := len(callee.returnSlots)
	for k := 0; k < r; k++ {
		if t := st.typeAt(caller, st.h-p-r+k); t != TypeUnknown && callee.returnSlots[k] == TypeUnknown {
			callee.returnSlots[k] = t
			a.changed = true
		}
	}
}

// finish groups the inferred slots into parameters and a return type.
// Slots whose type could not be learned are taken to be ints.
func (s *Subroutine) finish() {
	s.Params = nil
	for k := 0; k < len(s.paramSlots); {
		t := s.paramSlots[k]
		if t == TypeVector && k+2 < len(s.paramSlots) &&
			s.paramSlots[k+1] == TypeVector && s.paramSlots[k+2] == TypeVector {
			s.Params = append(s.Params, Param{Type: TypeVector, Slots: 3})
			k += 3
			continue
		}
		if t == TypeUnknown {
			t = TypeInt
		}
		s.Params = append(s.Params, Param{Type: t, Slots: 1})
		k++
	}
	for i := range s.Params {
		s.Params[i].Name = fmt.Sprintf("%sParam%d", declType(s.Params[i].Type), i+1)
	}

	s.ReturnSlots = len(s.returnSlots)
	switch {
	case s.ReturnSlots == 0:
		s.ReturnType = TypeVoid
	case s.ReturnSlots == 1:
		s.ReturnType = s.returnSlots[0]
		if s.ReturnType == TypeUnknown {
			s.ReturnType = TypeInt
		}
	case s.ReturnSlots == 3 && (s.returnSlots[0] == TypeVector || s.returnSlots[0] == TypeFloat):
		s.ReturnType = TypeVector
	default:
		s.ReturnType = TypeStruct
	}
}

func resize(ts []Type, n int) []Type {
	if n <= len(ts) {
		return ts[:n]
	}
	return append(ts, repeat(TypeUnknown, n-len(ts))...)
}

func equalTypes(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// paramWidth is the number of stack slots a value of type t occupies when
// passed or returned.
func paramWidth(t Type) int {
	switch t {
	case TypeVoid, TypeAction:
		return 0
	case TypeVector:
		return 3
	}
	return 1
}

// declType is the type name used in declarations.
func declType(t Type) string {
	if t == TypeUnknown {
		return "int"
	}
	return t.String()
}
