package decompiler

import (
	"errors"
	"testing"
)

func TestLocalStackPushPop(t *testing.T) {
	s := NewLocalStack()
	if _, err := s.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("Pop on empty: got %v", err)
	}
	s.Push(&IntConst{Value: 1})
	s.Push(&IntConst{Value: 2})
	if s.Size() != 2 || s.Slots() != 2 {
		t.Errorf("Size/Slots = %d/%d", s.Size(), s.Slots())
	}
	top, err := s.Peek(0)
	if err != nil || top.String() != "2" {
		t.Errorf("Peek(0) = %v, %v", top, err)
	}
	if _, err := s.Peek(2); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Peek(2): got %v", err)
	}
	e, _ := s.Pop()
	if e.String() != "2" {
		t.Errorf("Pop() = %s", e)
	}
}

func TestLocalStackCloneIsIndependent(t *testing.T) {
	s := NewLocalStack()
	s.Push(NewBinaryExpr("+", NewConstExpr(&IntConst{Value: 1}), NewConstExpr(&IntConst{Value: 2}), TypeInt).Entry())
	c := s.Clone()

	s.Close()
	if s.Size() != 0 {
		t.Errorf("closed stack has %d entries", s.Size())
	}
	e, err := c.Peek(0)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if got := e.String(); got != "(1 + 2)" {
		t.Errorf("clone entry = %q", got)
	}
	c.Push(&IntConst{Value: 3})
	if s.Size() != 0 {
		t.Error("push on clone leaked into original")
	}
}

func vectorFrame() *LocalVarStack {
	s := NewLocalVarStack(0)
	s.Push(&StringConst{Value: "low"})
	s.Push(&Compound{Typ: TypeVector, Fields: []StackEntry{
		&FloatConst{Value: 1}, &FloatConst{Value: 2}, &FloatConst{Value: 3},
	}})
	s.Push(&IntConst{Value: 9})
	return s
}

func TestLocalVarStackLocate(t *testing.T) {
	s := vectorFrame()

	tests := []struct {
		pos, depth, top int
	}{
		{1, 0, 1},
		{2, 1, 2},
		{4, 1, 2},
		{5, 2, 5},
	}
	for _, tt := range tests {
		_, depth, top, err := s.Locate(tt.pos)
		if err != nil {
			t.Fatalf("Locate(%d): %v", tt.pos, err)
		}
		if depth != tt.depth || top != tt.top {
			t.Errorf("Locate(%d) = depth %d top %d, want %d %d", tt.pos, depth, top, tt.depth, tt.top)
		}
	}
	if _, _, _, err := s.Locate(6); !errors.Is(err, ErrInvalidStackAccess) {
		t.Errorf("Locate(6): got %v", err)
	}
	if _, _, _, err := s.Locate(0); !errors.Is(err, ErrInvalidStackAccess) {
		t.Errorf("Locate(0): got %v", err)
	}
}

func TestLocalVarStackResolve(t *testing.T) {
	s := vectorFrame()
	for pos, want := range map[int]string{1: "9", 2: "3.0", 3: "2.0", 4: "1.0", 5: `"low"`} {
		e, err := s.Resolve(pos)
		if err != nil {
			t.Fatalf("Resolve(%d): %v", pos, err)
		}
		if e.String() != want {
			t.Errorf("Resolve(%d) = %s, want %s", pos, e, want)
		}
	}
}

func TestLocalVarStackDeclare(t *testing.T) {
	s := vectorFrame()
	info := &VarInfo{Name: "vector1", Type: TypeVector, Slots: 3, Declared: true}
	old, err := s.Declare(4, &Variable{Info: info})
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if old.Type() != TypeVector {
		t.Errorf("replaced %s, want the vector", old.Type())
	}
	if s.Size() != 3 || s.Slots() != 5 {
		t.Errorf("Size/Slots = %d/%d", s.Size(), s.Slots())
	}
	e, _ := s.Resolve(3)
	if e.String() != "vector1" {
		t.Errorf("Resolve(3) = %s", e)
	}

	if _, err := s.Declare(3, &Variable{Info: &VarInfo{Slots: 1}}); !errors.Is(err, ErrInvalidStackAccess) {
		t.Errorf("misaligned declare: got %v", err)
	}
}

func TestLocalVarStackFrameBase(t *testing.T) {
	s := NewLocalVarStack(3)
	s.AdjustFrameBase(-2)
	if s.FrameBase() != 1 {
		t.Errorf("FrameBase() = %d", s.FrameBase())
	}
	s.AdjustFrameBase(-5)
	if s.FrameBase() != 0 {
		t.Errorf("FrameBase() = %d, want clamp at 0", s.FrameBase())
	}
	c := s.Clone()
	c.AdjustFrameBase(4)
	if s.FrameBase() != 0 {
		t.Error("clone shares frame base")
	}
}
