package decompiler

import "fmt"

// LocalVarStack adds variable frame semantics to a LocalStack. Positions are
// slot counts from the top of the stack, 1 being the top slot, matching the
// SP-relative operands of the copy instructions.
type LocalVarStack struct {
	LocalStack
	frameBase int // slots owned by the caller (return value and parameters)
}

// NewLocalVarStack returns an empty frame whose lowest frameBase slots belong
// to the caller.
func NewLocalVarStack(frameBase int) *LocalVarStack {
	return &LocalVarStack{frameBase: frameBase}
}

// FrameBase returns the number of caller-owned slots at the bottom.
func (s *LocalVarStack) FrameBase() int {
	return s.frameBase
}

// AdjustFrameBase moves the frame base by delta slots, as when the epilogue
// pops the caller's arguments.
func (s *LocalVarStack) AdjustFrameBase(delta int) {
	s.frameBase += delta
	if s.frameBase < 0 {
		s.frameBase = 0
	}
}

// Declare binds entry to the slots ending at pos, replacing the entry that
// occupied exactly those slots. The replaced entry is returned to the caller,
// which takes ownership of it.
func (s *LocalVarStack) Declare(pos int, entry StackEntry) (StackEntry, error) {
	old, depth, top, err := s.Locate(pos)
	if err != nil {
		return nil, err
	}
	if top+old.Size()-1 != pos || old.Size() != entry.Size() {
		return nil, fmt.Errorf("%w: declare %d slots at %d over %d-slot entry at %d",
			ErrInvalidStackAccess, entry.Size(), pos, old.Size(), top)
	}
	s.replace(depth, entry)
	return old, nil
}

// Locate finds the entry containing the slot at pos and returns it along
// with the index of the entry (0 is the top) and the position of the
// entry's top slot.
func (s *LocalVarStack) Locate(pos int) (entry StackEntry, depth, top int, err error) {
	if pos < 1 {
		return nil, 0, 0, fmt.Errorf("%w: position %d", ErrInvalidStackAccess, pos)
	}
	top = 1
	for depth = 0; depth < len(s.entries); depth++ {
		e := s.entries[len(s.entries)-1-depth]
		if pos < top+e.Size() {
			return e, depth, top, nil
		}
		top += e.Size()
	}
	return nil, 0, 0, fmt.Errorf("%w: position %d beyond %d-slot frame", ErrInvalidStackAccess, pos, top-1)
}

// Resolve returns the element at pos. The relative position inside the
// containing entry is pos - top + 1, so atomic entries resolve to themselves
// wherever pos falls inside them.
func (s *LocalVarStack) Resolve(pos int) (StackEntry, error) {
	e, _, top, err := s.Locate(pos)
	if err != nil {
		return nil, err
	}
	return e.GetElement(pos - top + 1)
}

// Clone returns an independent copy of the frame.
func (s *LocalVarStack) Clone() *LocalVarStack {
	return &LocalVarStack{LocalStack: *s.LocalStack.Clone(), frameBase: s.frameBase}
}
