package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 45 {
		t.Errorf("OpcodeCount() = %d, want 45", got)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpCPDownSP, "CPDOWNSP"},
		{OpRSAdd, "RSADD"},
		{OpConst, "CONST"},
		{OpAction, "ACTION"},
		{OpLogAnd, "LOGAND"},
		{OpEqual, "EQUAL"},
		{OpAdd, "ADD"},
		{OpMovSP, "MOVSP"},
		{OpJmp, "JMP"},
		{OpJZ, "JZ"},
		{OpRetn, "RETN"},
		{OpSaveBP, "SAVEBP"},
		{OpStoreState, "STORE_STATE"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.Known() {
		t.Error("0xEE should not be a known opcode")
	}
}

func TestOpcodeCategories(t *testing.T) {
	if !OpJZ.IsJump() || !OpJNZ.IsConditional() || OpJmp.IsConditional() {
		t.Error("jump classification is wrong")
	}
	if !OpJSR.HasTarget() || OpRetn.HasTarget() {
		t.Error("HasTarget classification is wrong")
	}
	if !OpAdd.IsBinary() || OpNeg.IsBinary() || !OpNeg.IsUnary() {
		t.Error("arity classification is wrong")
	}
	if !OpLT.IsComparison() || OpAdd.IsComparison() {
		t.Error("comparison classification is wrong")
	}
}

func TestTypeCodeOperands(t *testing.T) {
	tests := []struct {
		code        TypeCode
		left, right TypeCode
	}{
		{TypeIntInt, TypeInt, TypeInt},
		{TypeIntFloat, TypeInt, TypeFloat},
		{TypeFloatInt, TypeFloat, TypeInt},
		{TypeStringString, TypeString, TypeString},
		{TypeLocationLocation, TypeLocation, TypeLocation},
		{TypeVectorVector, TypeNone, TypeNone},
	}
	for _, tt := range tests {
		l, r := tt.code.Operands()
		if l != tt.left || r != tt.right {
			t.Errorf("%s.Operands() = (%s, %s), want (%s, %s)", tt.code, l, r, tt.left, tt.right)
		}
	}
}

func TestInstructionLen(t *testing.T) {
	tests := []struct {
		in   Instruction
		want int
	}{
		{Instruction{Op: OpRetn}, 2},
		{Instruction{Op: OpConst, Type: TypeInt}, 6},
		{Instruction{Op: OpConst, Type: TypeString, Str: "abc"}, 7},
		{Instruction{Op: OpCPTopSP, Type: TypeStack}, 8},
		{Instruction{Op: OpAction}, 5},
		{Instruction{Op: OpJmp}, 6},
		{Instruction{Op: OpEqual, Type: TypeIntInt}, 2},
		{Instruction{Op: OpEqual, Type: TypeStructStruct}, 4},
		{Instruction{Op: OpDestruct, Type: TypeStack}, 8},
		{Instruction{Op: OpStoreState, Type: 0x10}, 10},
	}
	for _, tt := range tests {
		if got := tt.in.Len(); got != tt.want {
			t.Errorf("%s.Len() = %d, want %d", tt.in.String(), got, tt.want)
		}
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Op: OpConst, Type: TypeInt, Int: 5}, "CONSTI 5"},
		{Instruction{Op: OpConst, Type: TypeString, Str: "hi"}, `CONSTS "hi"`},
		{Instruction{Op: OpConst, Type: TypeFloat, Float: 1.5}, "CONSTF 1.5"},
		{Instruction{Op: OpRSAdd, Type: TypeObject}, "RSADDO"},
		{Instruction{Op: OpAdd, Type: TypeIntInt}, "ADDII"},
		{Instruction{Op: OpCPTopSP, Type: TypeStack, Int: -4, Size: 4}, "CPTOPSP -4, 4"},
		{Instruction{Op: OpAction, Action: 1, Argc: 1}, "ACTION 1, 1"},
		{Instruction{Op: OpJZ, Int: 12, Target: 0x20}, "JZ +12 (-> 0020)"},
		{Instruction{Op: OpLogAnd, Type: TypeIntInt}, "LOGANDII"},
		{Instruction{Op: OpStoreState, Type: 0x10, SizeBP: 0, SizeSP: 8}, "STORE_STATE 0, 8"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSlots(t *testing.T) {
	if Slots(-12) != -3 || Slots(8) != 2 || Slots(0) != 0 {
		t.Errorf("Slots conversion wrong: %d %d %d", Slots(-12), Slots(8), Slots(0))
	}
}
