package bytecode

import (
	"fmt"
	"strconv"
)

// Instruction is one decoded instruction with its operands and its absolute
// byte offset in the program. Jump and subroutine targets are resolved to
// absolute offsets in Target.
type Instruction struct {
	Offset int      // Absolute byte offset of the opcode
	Op     Opcode   // Instruction opcode
	Type   TypeCode // Type qualifier byte

	Int   int32   // CONST int/object value, MOVSP/CPxx/INCxx offset, jump delta
	Float float32 // CONST float value
	Str   string  // CONST string value

	Size   uint16 // CPxx byte size, struct comparison size, DESTRUCT size
	Action uint16 // ACTION routine id
	Argc   uint8  // ACTION argument count

	ExcludeOffset int16  // DESTRUCT: offset of the kept range
	ExcludeSize   uint16 // DESTRUCT: size of the kept range

	SizeBP uint32 // STORE_STATE: saved base pointer bytes
	SizeSP uint32 // STORE_STATE: saved stack pointer bytes

	Target int // Absolute target offset for JMP/JZ/JNZ/JSR
}

// Len returns the encoded length of the instruction in bytes.
func (ins *Instruction) Len() int {
	return 2 + ins.operandLen()
}

func (ins *Instruction) operandLen() int {
	switch ins.Op {
	case OpConst:
		switch ins.Type {
		case TypeString:
			return 2 + len(ins.Str)
		default:
			return 4
		}
	case OpEqual, OpNEqual:
		if ins.Type == TypeStructStruct {
			return 2
		}
		return 0
	}
	n := GetOpcodeInfo(ins.Op).OperandLen
	if n < 0 {
		return 0
	}
	return n
}

// Next returns the offset of the instruction that follows this one.
func (ins *Instruction) Next() int {
	return ins.Offset + ins.Len()
}

// Slots converts a byte offset or size operand into a count of 4-byte stack slots.
func Slots(bytes int) int {
	return bytes / SlotSize
}

// String returns the assembler form of the instruction without its offset.
func (ins *Instruction) String() string {
	name := ins.Op.String()
	if ins.Op != OpStoreState && ins.Op != OpStoreStateAll {
		name += ins.Type.String()
	}

	switch ins.Op {
	case OpConst:
		switch ins.Type {
		case TypeInt, TypeObject:
			return fmt.Sprintf("%s %d", name, ins.Int)
		case TypeFloat:
			return fmt.Sprintf("%s %s", name, strconv.FormatFloat(float64(ins.Float), 'g', -1, 32))
		case TypeString:
			return fmt.Sprintf("%s %q", name, ins.Str)
		}
		return name
	case OpCPDownSP, OpCPTopSP, OpCPDownBP, OpCPTopBP:
		return fmt.Sprintf("%s %d, %d", name, ins.Int, ins.Size)
	case OpAction:
		return fmt.Sprintf("%s %d, %d", name, ins.Action, ins.Argc)
	case OpMovSP, OpDecISP, OpIncISP, OpDecIBP, OpIncIBP:
		return fmt.Sprintf("%s %d", name, ins.Int)
	case OpJmp, OpJSR, OpJZ, OpJNZ:
		return fmt.Sprintf("%s %+d (-> %04X)", name, ins.Int, ins.Target)
	case OpDestruct:
		return fmt.Sprintf("%s %d, %d, %d", name, ins.Size, ins.ExcludeOffset, ins.ExcludeSize)
	case OpStoreState:
		return fmt.Sprintf("%s %d, %d", name, ins.SizeBP, ins.SizeSP)
	case OpEqual, OpNEqual:
		if ins.Type == TypeStructStruct {
			return fmt.Sprintf("%s %d", name, ins.Size)
		}
	}
	return name
}
