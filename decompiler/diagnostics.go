package decompiler

import "fmt"

// DiagnosticKind classifies a diagnostic.
type DiagnosticKind int

const (
	// DiagUndeterminedExit marks a loop whose exit could not be resolved or
	// a jump inside a loop that is neither a break nor a continue.
	DiagUndeterminedExit DiagnosticKind = iota
	// DiagRawJump marks a jump with no enclosing structure, kept as a comment.
	DiagRawJump
	// DiagUnknownAction marks a call to a routine missing from the catalog.
	DiagUnknownAction
	// DiagSubroutineFailed marks a subroutine replaced by a placeholder.
	DiagSubroutineFailed
	// DiagInferredParam marks a parameter whose only evidence is a
	// conditional jump testing below the entry height.
	DiagInferredParam
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagUndeterminedExit:
		return "undetermined-loop-exit"
	case DiagRawJump:
		return "raw-jump"
	case DiagUnknownAction:
		return "unknown-action"
	case DiagSubroutineFailed:
		return "subroutine-failed"
	case DiagInferredParam:
		return "inferred-parameter"
	}
	return "unknown"
}

// Diagnostic reports a partial-confidence spot in the output, keyed by the
// byte offset of the instruction involved.
type Diagnostic struct {
	Kind       DiagnosticKind
	Subroutine string
	Offset     int
	Message    string
	Err        error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %04X %s: %s", d.Subroutine, d.Offset, d.Kind, d.Message)
}
