// Package decompiler reconstructs NWScript-style source from NCS instruction
// streams.
//
// Decompilation runs in two phases. The analysis phase splits a program into
// subroutines at JSR targets, assigns roles (loader stub, globals
// initializer, main routine, functions) and infers each function's parameter
// and return types by abstract interpretation of the operand stack. The
// reconstruction phase then simulates every subroutine symbolically:
//
//   - LocalStack and LocalVarStack model the operand stack. Each entry is a
//     Variable, a Compound (vector or struct) or an expression result, and
//     positions count slots from the top as the copy instructions do
//
//   - Expressions are built bottom up as operands are consumed and are only
//     materialized into statements when an assignment, a call with side
//     effects or a stack pop forces it
//
//   - Control flow is recovered from jump shapes: forward conditional jumps
//     become if/else, backward jumps mark loop latches, and jumps out of a
//     loop become break or continue. Shapes that fit no structure are kept as
//     comments and reported as Diagnostics
//
// The result is a Node tree rooted at a KindRoot node that renders to text
// with a configurable indentation unit.
//
// Subroutines are decompiled in parallel, each by an independent engine
// instance. A subroutine that fails is replaced by a comment placeholder and
// never affects its siblings.
package decompiler
