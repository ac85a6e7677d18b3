package bytecode

import "fmt"

// Builder assembles a Program instruction by instruction. Jumps refer to
// named labels which are patched when Build is called, so forward and
// backward references can be mixed freely.
type Builder struct {
	ins    []Instruction
	offset int

	labels  map[string]int // label -> offset
	pending map[int]string // instruction position -> label
}

// NewBuilder creates a builder whose first instruction follows the file header.
func NewBuilder() *Builder {
	return &Builder{
		offset:  HeaderSize,
		labels:  make(map[string]int),
		pending: make(map[int]string),
	}
}

// Emit appends an instruction and returns its offset.
func (b *Builder) Emit(in Instruction) int {
	in.Offset = b.offset
	b.ins = append(b.ins, in)
	b.offset += in.Len()
	return in.Offset
}

// CurrentOffset returns the offset the next instruction will occupy.
func (b *Builder) CurrentOffset() int {
	return b.offset
}

// Label binds name to the current offset.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = b.offset
	return b
}

// Op emits an instruction without operands.
func (b *Builder) Op(op Opcode, t TypeCode) *Builder {
	b.Emit(Instruction{Op: op, Type: t})
	return b
}

// ConstInt emits CONSTI.
func (b *Builder) ConstInt(v int32) *Builder {
	b.Emit(Instruction{Op: OpConst, Type: TypeInt, Int: v})
	return b
}

// ConstFloat emits CONSTF.
func (b *Builder) ConstFloat(v float32) *Builder {
	b.Emit(Instruction{Op: OpConst, Type: TypeFloat, Float: v})
	return b
}

// ConstString emits CONSTS.
func (b *Builder) ConstString(v string) *Builder {
	b.Emit(Instruction{Op: OpConst, Type: TypeString, Str: v})
	return b
}

// ConstObject emits CONSTO.
func (b *Builder) ConstObject(v int32) *Builder {
	b.Emit(Instruction{Op: OpConst, Type: TypeObject, Int: v})
	return b
}

// RSAdd reserves one slot of the given type.
func (b *Builder) RSAdd(t TypeCode) *Builder {
	return b.Op(OpRSAdd, t)
}

// CPTopSP copies size bytes at offset (relative to SP) to the top of stack.
func (b *Builder) CPTopSP(offset int32, size uint16) *Builder {
	b.Emit(Instruction{Op: OpCPTopSP, Type: TypeStack, Int: offset, Size: size})
	return b
}

// CPDownSP copies the top size bytes down to offset (relative to SP).
func (b *Builder) CPDownSP(offset int32, size uint16) *Builder {
	b.Emit(Instruction{Op: OpCPDownSP, Type: TypeStack, Int: offset, Size: size})
	return b
}

// CPTopBP copies a global to the top of stack.
func (b *Builder) CPTopBP(offset int32, size uint16) *Builder {
	b.Emit(Instruction{Op: OpCPTopBP, Type: TypeStack, Int: offset, Size: size})
	return b
}

// CPDownBP copies the top of stack into a global.
func (b *Builder) CPDownBP(offset int32, size uint16) *Builder {
	b.Emit(Instruction{Op: OpCPDownBP, Type: TypeStack, Int: offset, Size: size})
	return b
}

// MovSP moves the stack pointer by offset bytes.
func (b *Builder) MovSP(offset int32) *Builder {
	b.Emit(Instruction{Op: OpMovSP, Int: offset})
	return b
}

// Binary emits a two-operand instruction with the given operand pair.
func (b *Builder) Binary(op Opcode, t TypeCode) *Builder {
	return b.Op(op, t)
}

// StructEqual emits EQUALTT or NEQUALTT comparing size bytes per side.
func (b *Builder) StructEqual(op Opcode, size uint16) *Builder {
	b.Emit(Instruction{Op: op, Type: TypeStructStruct, Size: size})
	return b
}

// Action calls engine routine id with argc arguments.
func (b *Builder) Action(id uint16, argc uint8) *Builder {
	b.Emit(Instruction{Op: OpAction, Action: id, Argc: argc})
	return b
}

// Jump emits JMP, JZ or JNZ to a label.
func (b *Builder) Jump(op Opcode, label string) *Builder {
	b.pending[len(b.ins)] = label
	b.Emit(Instruction{Op: op})
	return b
}

// Call emits JSR to a label.
func (b *Builder) Call(label string) *Builder {
	return b.Jump(OpJSR, label)
}

// Retn emits RETN.
func (b *Builder) Retn() *Builder {
	return b.Op(OpRetn, TypeNone)
}

// Destruct drops size bytes from the top of stack except the keep bytes at offset.
func (b *Builder) Destruct(size uint16, offset int16, keep uint16) *Builder {
	b.Emit(Instruction{Op: OpDestruct, Type: TypeStack, Size: size, ExcludeOffset: offset, ExcludeSize: keep})
	return b
}

// IncISP increments the int at offset relative to SP.
func (b *Builder) IncISP(offset int32) *Builder {
	b.Emit(Instruction{Op: OpIncISP, Type: TypeInt, Int: offset})
	return b
}

// DecISP decrements the int at offset relative to SP.
func (b *Builder) DecISP(offset int32) *Builder {
	b.Emit(Instruction{Op: OpDecISP, Type: TypeInt, Int: offset})
	return b
}

// StoreState saves the frame for a deferred action.
func (b *Builder) StoreState(sizeBP, sizeSP uint32) *Builder {
	b.Emit(Instruction{Op: OpStoreState, Type: 0x10, SizeBP: sizeBP, SizeSP: sizeSP})
	return b
}

// Build patches label references and returns the finished program.
func (b *Builder) Build() (*Program, error) {
	ins := make([]Instruction, len(b.ins))
	copy(ins, b.ins)
	for pos, label := range b.pending {
		target, ok := b.labels[label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q referenced at %04X", label, ins[pos].Offset)
		}
		ins[pos].Int = int32(target - ins[pos].Offset)
	}
	return NewProgram(ins)
}

// MustBuild is like Build but panics on error. Intended for tests and fixtures.
func (b *Builder) MustBuild() *Program {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
