package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Magic bytes for compiled script files: "NCS V1.0".
var (
	FileType    = []byte("NCS ")
	FileVersion = []byte("V1.0")
)

const (
	// SizeMarker is the pseudo-opcode that precedes the total file size.
	SizeMarker byte = 0x42

	// HeaderSize is the number of bytes before the first instruction.
	HeaderSize = 13

	// SlotSize is the width of one operand stack slot in bytes.
	SlotSize = 4
)

var (
	ErrInvalidMagic   = errors.New("invalid magic: expected \"NCS V1.0\"")
	ErrTruncated      = errors.New("unexpected end of bytecode")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrBadJumpTarget  = errors.New("jump target is not an instruction boundary")
	ErrSizeMismatch   = errors.New("declared file size does not match data")
	ErrUnknownTypeTag = errors.New("unknown constant type")
)

// Program is a decoded compilation unit: the linear instruction stream with
// every jump target resolved to an absolute offset.
type Program struct {
	Instructions []Instruction

	index map[int]int // offset -> position in Instructions
}

// NewProgram builds a Program from instructions whose Offset fields are already
// assigned. Targets are recomputed from relative deltas and validated.
func NewProgram(ins []Instruction) (*Program, error) {
	p := &Program{Instructions: ins}
	p.reindex()
	for i := range p.Instructions {
		in := &p.Instructions[i]
		if !in.Op.HasTarget() {
			continue
		}
		in.Target = in.Offset + int(in.Int)
		if _, ok := p.index[in.Target]; !ok {
			return nil, fmt.Errorf("%w: %s at %04X targets %04X", ErrBadJumpTarget, in.Op, in.Offset, in.Target)
		}
	}
	return p, nil
}

func (p *Program) reindex() {
	p.index = make(map[int]int, len(p.Instructions))
	for i := range p.Instructions {
		p.index[p.Instructions[i].Offset] = i
	}
}

// IndexOf returns the position of the instruction at the given byte offset.
func (p *Program) IndexOf(offset int) (int, bool) {
	i, ok := p.index[offset]
	return i, ok
}

// At returns the instruction at the given byte offset, or nil.
func (p *Program) At(offset int) *Instruction {
	if i, ok := p.index[offset]; ok {
		return &p.Instructions[i]
	}
	return nil
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// CodeSize returns the encoded size of the program including its header.
func (p *Program) CodeSize() int {
	size := HeaderSize
	for i := range p.Instructions {
		size += p.Instructions[i].Len()
	}
	return size
}

// JumpTargets returns the sorted set of offsets targeted by jumps and calls.
func (p *Program) JumpTargets() []int {
	seen := make(map[int]bool)
	for i := range p.Instructions {
		if p.Instructions[i].Op.HasTarget() {
			seen[p.Instructions[i].Target] = true
		}
	}
	targets := make([]int, 0, len(seen))
	for t := range seen {
		targets = append(targets, t)
	}
	sort.Ints(targets)
	return targets
}

// Encode serializes the program to the binary container format.
// Format:
//
//	["NCS "] ["V1.0"] [0x42] [file_size:u32]
//	[opcode:1] [type:1] [operands...] ...
//
// All multi-byte values are big-endian.
func (p *Program) Encode() ([]byte, error) {
	size := p.CodeSize()
	buf := make([]byte, 0, size)
	buf = append(buf, FileType...)
	buf = append(buf, FileVersion...)
	buf = append(buf, SizeMarker)
	buf = binary.BigEndian.AppendUint32(buf, uint32(size))

	for i := range p.Instructions {
		in := &p.Instructions[i]
		if len(buf) != in.Offset {
			return nil, fmt.Errorf("instruction %d: offset %04X does not match encoded position %04X", i, in.Offset, len(buf))
		}
		var err error
		buf, err = appendInstruction(buf, in)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendInstruction(buf []byte, in *Instruction) ([]byte, error) {
	if !in.Op.Known() {
		return nil, fmt.Errorf("%w 0x%02X at %04X", ErrUnknownOpcode, byte(in.Op), in.Offset)
	}
	buf = append(buf, byte(in.Op), byte(in.Type))

	switch in.Op {
	case OpConst:
		switch in.Type {
		case TypeInt, TypeObject:
			buf = binary.BigEndian.AppendUint32(buf, uint32(in.Int))
		case TypeFloat:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(in.Float))
		case TypeString:
			if len(in.Str) > math.MaxUint16 {
				return nil, fmt.Errorf("string constant at %04X too long: %d bytes", in.Offset, len(in.Str))
			}
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(in.Str)))
			buf = append(buf, in.Str...)
		default:
			return nil, fmt.Errorf("%w %s at %04X", ErrUnknownTypeTag, in.Type, in.Offset)
		}
	case OpCPDownSP, OpCPTopSP, OpCPDownBP, OpCPTopBP:
		buf = binary.BigEndian.AppendUint32(buf, uint32(in.Int))
		buf = binary.BigEndian.AppendUint16(buf, in.Size)
	case OpAction:
		buf = binary.BigEndian.AppendUint16(buf, in.Action)
		buf = append(buf, in.Argc)
	case OpEqual, OpNEqual:
		if in.Type == TypeStructStruct {
			buf = binary.BigEndian.AppendUint16(buf, in.Size)
		}
	case OpMovSP, OpJmp, OpJSR, OpJZ, OpJNZ, OpDecISP, OpIncISP, OpDecIBP, OpIncIBP:
		buf = binary.BigEndian.AppendUint32(buf, uint32(in.Int))
	case OpDestruct:
		buf = binary.BigEndian.AppendUint16(buf, in.Size)
		buf = binary.BigEndian.AppendUint16(buf, uint16(in.ExcludeOffset))
		buf = binary.BigEndian.AppendUint16(buf, in.ExcludeSize)
	case OpStoreState:
		buf = binary.BigEndian.AppendUint32(buf, in.SizeBP)
		buf = binary.BigEndian.AppendUint32(buf, in.SizeSP)
	}
	return buf, nil
}

// Decode parses a binary compiled script.
func Decode(data []byte) (*Program, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: need at least %d header bytes, got %d", ErrTruncated, HeaderSize, len(data))
	}
	if string(data[0:4]) != string(FileType) || string(data[4:8]) != string(FileVersion) {
		return nil, fmt.Errorf("%w, got %q", ErrInvalidMagic, data[0:8])
	}
	if data[8] != SizeMarker {
		return nil, fmt.Errorf("%w: size marker 0x%02X", ErrInvalidMagic, data[8])
	}
	declared := int(binary.BigEndian.Uint32(data[9:13]))
	if declared != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrSizeMismatch, declared, len(data))
	}

	var ins []Instruction
	pos := HeaderSize
	for pos < len(data) {
		in, err := decodeInstruction(data, pos)
		if err != nil {
			return nil, err
		}
		ins = append(ins, in)
		pos += in.Len()
	}
	return NewProgram(ins)
}

func decodeInstruction(data []byte, pos int) (Instruction, error) {
	if pos+2 > len(data) {
		return Instruction{}, fmt.Errorf("%w reading opcode at %04X", ErrTruncated, pos)
	}
	in := Instruction{Offset: pos, Op: Opcode(data[pos]), Type: TypeCode(data[pos+1])}
	if !in.Op.Known() {
		return Instruction{}, fmt.Errorf("%w 0x%02X at %04X", ErrUnknownOpcode, data[pos], pos)
	}
	p := pos + 2

	need := func(n int) error {
		if p+n > len(data) {
			return fmt.Errorf("%w reading %s operands at %04X", ErrTruncated, in.Op, pos)
		}
		return nil
	}

	switch in.Op {
	case OpConst:
		switch in.Type {
		case TypeInt, TypeObject:
			if err := need(4); err != nil {
				return in, err
			}
			in.Int = int32(binary.BigEndian.Uint32(data[p:]))
		case TypeFloat:
			if err := need(4); err != nil {
				return in, err
			}
			in.Float = math.Float32frombits(binary.BigEndian.Uint32(data[p:]))
		case TypeString:
			if err := need(2); err != nil {
				return in, err
			}
			n := int(binary.BigEndian.Uint16(data[p:]))
			p += 2
			if err := need(n); err != nil {
				return in, err
			}
			in.Str = string(data[p : p+n])
		default:
			return in, fmt.Errorf("%w %s at %04X", ErrUnknownTypeTag, in.Type, pos)
		}
	case OpCPDownSP, OpCPTopSP, OpCPDownBP, OpCPTopBP:
		if err := need(6); err != nil {
			return in, err
		}
		in.Int = int32(binary.BigEndian.Uint32(data[p:]))
		in.Size = binary.BigEndian.Uint16(data[p+4:])
	case OpAction:
		if err := need(3); err != nil {
			return in, err
		}
		in.Action = binary.BigEndian.Uint16(data[p:])
		in.Argc = data[p+2]
	case OpEqual, OpNEqual:
		if in.Type == TypeStructStruct {
			if err := need(2); err != nil {
				return in, err
			}
			in.Size = binary.BigEndian.Uint16(data[p:])
		}
	case OpMovSP, OpJmp, OpJSR, OpJZ, OpJNZ, OpDecISP, OpIncISP, OpDecIBP, OpIncIBP:
		if err := need(4); err != nil {
			return in, err
		}
		in.Int = int32(binary.BigEndian.Uint32(data[p:]))
	case OpDestruct:
		if err := need(6); err != nil {
			return in, err
		}
		in.Size = binary.BigEndian.Uint16(data[p:])
		in.ExcludeOffset = int16(binary.BigEndian.Uint16(data[p+2:]))
		in.ExcludeSize = binary.BigEndian.Uint16(data[p+4:])
	case OpStoreState:
		if err := need(8); err != nil {
			return in, err
		}
		in.SizeBP = binary.BigEndian.Uint32(data[p:])
		in.SizeSP = binary.BigEndian.Uint32(data[p+4:])
	}
	return in, nil
}
