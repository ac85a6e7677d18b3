// Package bytecode reads, writes and lists compiled NCS scripts, the
// stack-machine bytecode produced by NWScript compilers.
//
// The format is designed for:
//   - A flat, linear instruction stream addressed by byte offset
//   - One opcode byte plus one type qualifier byte per instruction
//   - Big-endian operands; jumps are relative to the jump's own offset
//
// # Architecture Overview
//
//   - Opcodes: the instruction set, grouped into stack copies, constants,
//     engine actions, arithmetic/comparison/logic, stack pointer moves,
//     control flow, base pointer (globals) access and deferred state
//
//   - Instruction: one decoded instruction. Decoding resolves jump and JSR
//     deltas to absolute Target offsets, which is the shape the decompiler
//     consumes
//
//   - Program: the decoded unit with an offset index. Decode and Encode
//     convert to and from the binary container ("NCS V1.0" header followed by
//     a size marker and the total file size)
//
//   - Builder: an assembler with named labels, used by tests and tools to
//     produce programs without hand-computing offsets
//
// # Stack Model
//
// The operand stack is made of 4-byte slots. Offsets in CPTOPSP, CPDOWNSP and
// MOVSP are byte offsets relative to the stack pointer and are always
// negative; Slots converts them to slot counts. Vectors occupy three float
// slots and structs occupy one slot per scalar field.
package bytecode
