package decompiler

import "fmt"

// LocalStack is the simulated operand stack at one program point. Entries are
// kept bottom first.
type LocalStack struct {
	entries []StackEntry
}

// NewLocalStack returns an empty stack.
func NewLocalStack() *LocalStack {
	return &LocalStack{}
}

// Push places e on top of the stack. The stack takes ownership of e.
func (s *LocalStack) Push(e StackEntry) {
	s.entries = append(s.entries, e)
}

// Pop removes and returns the top entry.
func (s *LocalStack) Pop() (StackEntry, error) {
	if len(s.entries) == 0 {
		return nil, ErrStackUnderflow
	}
	e := s.entries[len(s.entries)-1]
	s.entries[len(s.entries)-1] = nil
	s.entries = s.entries[:len(s.entries)-1]
	return e, nil
}

// Peek returns the entry depth places below the top (0 is the top).
func (s *LocalStack) Peek(depth int) (StackEntry, error) {
	if depth < 0 || depth >= len(s.entries) {
		return nil, fmt.Errorf("%w: peek %d of %d", ErrStackUnderflow, depth, len(s.entries))
	}
	return s.entries[len(s.entries)-1-depth], nil
}

// Size returns the number of entries.
func (s *LocalStack) Size() int {
	return len(s.entries)
}

// Slots returns the number of slots covered by all entries.
func (s *LocalStack) Slots() int {
	n := 0
	for _, e := range s.entries {
		n += e.Size()
	}
	return n
}

// Clone returns an independent deep copy.
func (s *LocalStack) Clone() *LocalStack {
	c := &LocalStack{entries: make([]StackEntry, len(s.entries))}
	for i, e := range s.entries {
		c.entries[i] = e.Clone()
	}
	return c
}

// Close releases every entry and empties the stack.
func (s *LocalStack) Close() {
	for _, e := range s.entries {
		e.Close()
	}
	s.entries = nil
}

// replace swaps the entry depth places below the top for e.
func (s *LocalStack) replace(depth int, e StackEntry) {
	s.entries[len(s.entries)-1-depth] = e
}

// posOf returns the position of the lowest slot of the entry at depth.
func (s *LocalStack) posOf(depth int) int {
	pos := 0
	for d := 0; d <= depth && d < len(s.entries); d++ {
		pos += s.entries[len(s.entries)-1-d].Size()
	}
	return pos
}

// merge replaces count adjacent entries, the deepest of which is at depth,
// with one Compound holding them.
func (s *LocalStack) merge(depth, count int, t Type) *Compound {
	lo := len(s.entries) - 1 - depth
	fields := make([]StackEntry, count)
	copy(fields, s.entries[lo:lo+count])
	c := &Compound{Typ: t, Fields: fields}
	rest := append([]StackEntry{c}, s.entries[lo+count:]...)
	s.entries = append(s.entries[:lo], rest...)
	return c
}
