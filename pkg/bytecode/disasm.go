package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing for the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header. Offsets that are
// the target of a jump or call get a label line so control flow is easy to
// follow by eye.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; NCS V1.0, %d bytes, %d instructions\n", p.CodeSize(), p.Len()))

	targets := make(map[int]bool)
	for _, t := range p.JumpTargets() {
		targets[t] = true
	}

	sb.WriteString("\n")
	for i := range p.Instructions {
		in := &p.Instructions[i]
		if targets[in.Offset] {
			sb.WriteString(fmt.Sprintf("loc_%04X:\n", in.Offset))
		}
		sb.WriteString(fmt.Sprintf("%04X  %s\n", in.Offset, in.String()))
	}

	return sb.String()
}

// DisassembleInstruction returns the listing line for the instruction at offset.
func (p *Program) DisassembleInstruction(offset int) string {
	in := p.At(offset)
	if in == nil {
		return "<not an instruction boundary>"
	}
	return in.String()
}

// DisassembleToLines returns the disassembly as a slice of lines.
func (p *Program) DisassembleToLines() []string {
	lines := make([]string, 0, len(p.Instructions))
	for i := range p.Instructions {
		lines = append(lines, fmt.Sprintf("%04X  %s", p.Instructions[i].Offset, p.Instructions[i].String()))
	}
	return lines
}
