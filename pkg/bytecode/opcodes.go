package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Values match the on-disk encoding of compiled NCS scripts.
type Opcode byte

const (
	// ========================================================================
	// Stack copies and reservation
	// ========================================================================

	OpCPDownSP Opcode = 0x01 // Copy top of stack down: CPDOWNSP <offset:i32> <size:u16>
	OpRSAdd    Opcode = 0x02 // Reserve a typed slot: RSADD.<type>
	OpCPTopSP  Opcode = 0x03 // Copy stack range to top: CPTOPSP <offset:i32> <size:u16>

	// ========================================================================
	// Constants and engine calls
	// ========================================================================

	OpConst  Opcode = 0x04 // Push constant: CONST.<type> <value>
	OpAction Opcode = 0x05 // Call engine action: ACTION <id:u16> <argc:u8>

	// ========================================================================
	// Logical and bitwise (0x06-0x0A)
	// ========================================================================

	OpLogAnd  Opcode = 0x06 // a && b
	OpLogOr   Opcode = 0x07 // a || b
	OpIncOr   Opcode = 0x08 // a | b
	OpExcOr   Opcode = 0x09 // a ^ b
	OpBoolAnd Opcode = 0x0A // a & b

	// ========================================================================
	// Comparison (0x0B-0x10)
	// ========================================================================

	OpEqual  Opcode = 0x0B // a == b; struct form carries <size:u16>
	OpNEqual Opcode = 0x0C // a != b; struct form carries <size:u16>
	OpGEq    Opcode = 0x0D // a >= b
	OpGT     Opcode = 0x0E // a > b
	OpLT     Opcode = 0x0F // a < b
	OpLEq    Opcode = 0x10 // a <= b

	// ========================================================================
	// Shifts and arithmetic (0x11-0x1A)
	// ========================================================================

	OpShLeft   Opcode = 0x11 // a << b
	OpShRight  Opcode = 0x12 // a >> b
	OpUShRight Opcode = 0x13 // unsigned a >> b
	OpAdd      Opcode = 0x14 // a + b
	OpSub      Opcode = 0x15 // a - b (b is TOS)
	OpMul      Opcode = 0x16 // a * b
	OpDiv      Opcode = 0x17 // a / b
	OpMod      Opcode = 0x18 // a % b
	OpNeg      Opcode = 0x19 // -a
	OpComp     Opcode = 0x1A // ~a

	// ========================================================================
	// Stack pointer and control flow (0x1B-0x25)
	// ========================================================================

	OpMovSP         Opcode = 0x1B // Move stack pointer: MOVSP <offset:i32>
	OpStoreStateAll Opcode = 0x1C // Save full state (type byte carries the offset)
	OpJmp           Opcode = 0x1D // Unconditional jump: JMP <delta:i32>
	OpJSR           Opcode = 0x1E // Jump to subroutine: JSR <delta:i32>
	OpJZ            Opcode = 0x1F // Pop, jump if zero: JZ <delta:i32>
	OpRetn          Opcode = 0x20 // Return from subroutine
	OpDestruct      Opcode = 0x21 // Drop a range keeping a sub-range: DESTRUCT <size:u16> <offset:i16> <keep:u16>
	OpNot           Opcode = 0x22 // !a
	OpDecISP        Opcode = 0x23 // Decrement slot relative to SP: DECISP <offset:i32>
	OpIncISP        Opcode = 0x24 // Increment slot relative to SP: INCISP <offset:i32>
	OpJNZ           Opcode = 0x25 // Pop, jump if not zero: JNZ <delta:i32>

	// ========================================================================
	// Base pointer (globals) access (0x26-0x2B)
	// ========================================================================

	OpCPDownBP  Opcode = 0x26 // Copy top of stack to global: CPDOWNBP <offset:i32> <size:u16>
	OpCPTopBP   Opcode = 0x27 // Copy global to top: CPTOPBP <offset:i32> <size:u16>
	OpDecIBP    Opcode = 0x28 // Decrement global: DECIBP <offset:i32>
	OpIncIBP    Opcode = 0x29 // Increment global: INCIBP <offset:i32>
	OpSaveBP    Opcode = 0x2A // Push BP and set BP = SP
	OpRestoreBP Opcode = 0x2B // Pop BP

	// ========================================================================
	// Deferred execution and padding
	// ========================================================================

	OpStoreState Opcode = 0x2C // Save state for a deferred action: STORE_STATE <bp:u32> <sp:u32>
	OpNop        Opcode = 0x2D // No operation
)

// TypeCode is the type qualifier byte that follows every opcode.
type TypeCode byte

const (
	TypeNone  TypeCode = 0x00 // No qualifier
	TypeStack TypeCode = 0x01 // Stack operation qualifier (CPxx, DESTRUCT)

	// Unary and constant types
	TypeInt          TypeCode = 0x03
	TypeFloat        TypeCode = 0x04
	TypeString       TypeCode = 0x05
	TypeObject       TypeCode = 0x06
	TypeEffect       TypeCode = 0x10
	TypeEvent        TypeCode = 0x11
	TypeLocation     TypeCode = 0x12
	TypeTalent       TypeCode = 0x13
	TypeItemProperty TypeCode = 0x14

	// Binary operand pairs
	TypeIntInt                   TypeCode = 0x20
	TypeFloatFloat               TypeCode = 0x21
	TypeObjectObject             TypeCode = 0x22
	TypeStringString             TypeCode = 0x23
	TypeStructStruct             TypeCode = 0x24
	TypeIntFloat                 TypeCode = 0x25
	TypeFloatInt                 TypeCode = 0x26
	TypeEffectEffect             TypeCode = 0x30
	TypeEventEvent               TypeCode = 0x31
	TypeLocationLocation         TypeCode = 0x32
	TypeTalentTalent             TypeCode = 0x33
	TypeItemPropertyItemProperty TypeCode = 0x34
	TypeVectorVector             TypeCode = 0x3A
	TypeVectorFloat              TypeCode = 0x3B
	TypeFloatVector              TypeCode = 0x3C
)

var typeCodeNames = map[TypeCode]string{
	TypeNone:                     "",
	TypeStack:                    "",
	TypeInt:                      "I",
	TypeFloat:                    "F",
	TypeString:                   "S",
	TypeObject:                   "O",
	TypeEffect:                   "E0",
	TypeEvent:                    "E1",
	TypeLocation:                 "E2",
	TypeTalent:                   "E3",
	TypeItemProperty:             "E4",
	TypeIntInt:                   "II",
	TypeFloatFloat:               "FF",
	TypeObjectObject:             "OO",
	TypeStringString:             "SS",
	TypeStructStruct:             "TT",
	TypeIntFloat:                 "IF",
	TypeFloatInt:                 "FI",
	TypeEffectEffect:             "E0E0",
	TypeEventEvent:               "E1E1",
	TypeLocationLocation:         "E2E2",
	TypeTalentTalent:             "E3E3",
	TypeItemPropertyItemProperty: "E4E4",
	TypeVectorVector:             "VV",
	TypeVectorFloat:              "VF",
	TypeFloatVector:              "FV",
}

// String returns the assembler suffix for a type qualifier.
func (t TypeCode) String() string {
	if name, ok := typeCodeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("T%02X", byte(t))
}

// IsEngineType reports whether t names an engine structure handle.
func (t TypeCode) IsEngineType() bool {
	return t >= TypeEffect && t <= TypeItemProperty
}

// Operands splits a binary qualifier into its left and right operand types.
// Struct and unknown pairs report TypeNone for both sides.
func (t TypeCode) Operands() (left, right TypeCode) {
	switch t {
	case TypeIntInt:
		return TypeInt, TypeInt
	case TypeFloatFloat:
		return TypeFloat, TypeFloat
	case TypeObjectObject:
		return TypeObject, TypeObject
	case TypeStringString:
		return TypeString, TypeString
	case TypeIntFloat:
		return TypeInt, TypeFloat
	case TypeFloatInt:
		return TypeFloat, TypeInt
	case TypeEffectEffect:
		return TypeEffect, TypeEffect
	case TypeEventEvent:
		return TypeEvent, TypeEvent
	case TypeLocationLocation:
		return TypeLocation, TypeLocation
	case TypeTalentTalent:
		return TypeTalent, TypeTalent
	case TypeItemPropertyItemProperty:
		return TypeItemProperty, TypeItemProperty
	}
	return TypeNone, TypeNone
}

// OpcodeInfo provides metadata about each opcode for decoding and listings.
type OpcodeInfo struct {
	Name       string // Human-readable name
	OperandLen int    // Operand bytes after the type byte (-1 = depends on type)
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpCPDownSP: {"CPDOWNSP", 6},
	OpRSAdd:    {"RSADD", 0},
	OpCPTopSP:  {"CPTOPSP", 6},
	OpConst:    {"CONST", -1},
	OpAction:   {"ACTION", 3},

	OpLogAnd:  {"LOGAND", 0},
	OpLogOr:   {"LOGOR", 0},
	OpIncOr:   {"INCOR", 0},
	OpExcOr:   {"EXCOR", 0},
	OpBoolAnd: {"BOOLAND", 0},

	OpEqual:  {"EQUAL", -1},
	OpNEqual: {"NEQUAL", -1},
	OpGEq:    {"GEQ", 0},
	OpGT:     {"GT", 0},
	OpLT:     {"LT", 0},
	OpLEq:    {"LEQ", 0},

	OpShLeft:   {"SHLEFT", 0},
	OpShRight:  {"SHRIGHT", 0},
	OpUShRight: {"USHRIGHT", 0},
	OpAdd:      {"ADD", 0},
	OpSub:      {"SUB", 0},
	OpMul:      {"MUL", 0},
	OpDiv:      {"DIV", 0},
	OpMod:      {"MOD", 0},
	OpNeg:      {"NEG", 0},
	OpComp:     {"COMP", 0},

	OpMovSP:         {"MOVSP", 4},
	OpStoreStateAll: {"STORE_STATEALL", 0},
	OpJmp:           {"JMP", 4},
	OpJSR:           {"JSR", 4},
	OpJZ:            {"JZ", 4},
	OpRetn:          {"RETN", 0},
	OpDestruct:      {"DESTRUCT", 6},
	OpNot:           {"NOT", 0},
	OpDecISP:        {"DECISP", 4},
	OpIncISP:        {"INCISP", 4},
	OpJNZ:           {"JNZ", 4},

	OpCPDownBP:  {"CPDOWNBP", 6},
	OpCPTopBP:   {"CPTOPBP", 6},
	OpDecIBP:    {"DECIBP", 4},
	OpIncIBP:    {"INCIBP", 4},
	OpSaveBP:    {"SAVEBP", 0},
	OpRestoreBP: {"RESTOREBP", 0},

	OpStoreState: {"STORE_STATE", 8},
	OpNop:        {"NOP", 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true for JMP, JZ and JNZ.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJZ || op == OpJNZ
}

// IsConditional returns true for jumps that pop a test value.
func (op Opcode) IsConditional() bool {
	return op == OpJZ || op == OpJNZ
}

// HasTarget returns true if the opcode carries a relative code offset.
func (op Opcode) HasTarget() bool {
	return op.IsJump() || op == OpJSR
}

// IsBinary returns true if the opcode pops two operands and pushes one result.
func (op Opcode) IsBinary() bool {
	switch op {
	case OpLogAnd, OpLogOr, OpIncOr, OpExcOr, OpBoolAnd,
		OpEqual, OpNEqual, OpGEq, OpGT, OpLT, OpLEq,
		OpShLeft, OpShRight, OpUShRight,
		OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return true
	}
	return false
}

// IsComparison returns true for opcodes that produce an int truth value
// from a comparison or logical combination.
func (op Opcode) IsComparison() bool {
	switch op {
	case OpEqual, OpNEqual, OpGEq, OpGT, OpLT, OpLEq, OpLogAnd, OpLogOr:
		return true
	}
	return false
}

// IsUnary returns true for single-operand arithmetic and logic.
func (op Opcode) IsUnary() bool {
	return op == OpNeg || op == OpComp || op == OpNot
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
