package decompiler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/ncsdecomp/pkg/bytecode"
)

func decompile(t *testing.T, b *bytecode.Builder) *Result {
	t.Helper()
	prog, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := New(Options{}).DecompileProgram(context.Background(), prog)
	if err != nil {
		t.Fatalf("DecompileProgram: %v", err)
	}
	t.Cleanup(res.Close)
	return res
}

func assertRendered(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func hasDiagnostic(res *Result, kind DiagnosticKind) bool {
	for _, d := range res.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func TestDecompileIfElse(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(1).ConstInt(2).Binary(bytecode.OpAdd, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "else")
	b.ConstString("a")
	b.Jump(bytecode.OpJmp, "end")
	b.Label("else")
	b.ConstString("b")
	b.Label("end")
	b.Retn()

	res, err := New(Options{}).Decompile(b.MustBuild().Instructions)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	defer res.Close()

	assertRendered(t, res.Render(),
		"void main() {",
		"\tif (1 + 2) {\n",
		"\t\tstring string1 = \"a\";\n",
		"\telse {\n",
		"\t\tstring string2 = \"b\";\n",
	)
	if err := res.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestDecompileWhileLoop(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(0)
	b.Label("head")
	b.CPTopSP(-4, 4).ConstInt(3).Binary(bytecode.OpLT, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "exit")
	b.CPTopSP(-4, 4).Action(4, 1)
	b.IncISP(-4)
	b.Jump(bytecode.OpJmp, "head")
	b.Label("exit")
	b.MovSP(-4)
	b.Retn()

	out := decompile(t, b).Render()
	assertRendered(t, out,
		"int int1 = 0;",
		"while (int1 < 3) {",
		"PrintInteger(int1);",
		"int1++;",
	)
	if strings.Index(out, "int int1 = 0;") > strings.Index(out, "while") {
		t.Errorf("declaration should precede the loop:\n%s", out)
	}
}

func TestDecompileDoWhile(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(0)
	b.Label("head")
	b.CPTopSP(-4, 4).Action(4, 1)
	b.IncISP(-4)
	b.CPTopSP(-4, 4).ConstInt(3).Binary(bytecode.OpLT, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJNZ, "head")
	b.MovSP(-4)
	b.Retn()

	assertRendered(t, decompile(t, b).Render(),
		"do {",
		"PrintInteger(int1);",
		"} while (int1 < 3);",
	)
}

func TestDecompileBreakContinue(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(0)
	b.Label("head")
	b.CPTopSP(-4, 4).ConstInt(10).Binary(bytecode.OpLT, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "exit")
	b.IncISP(-4)
	b.CPTopSP(-4, 4).ConstInt(5).Binary(bytecode.OpEqual, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "skip")
	b.Jump(bytecode.OpJmp, "exit")
	b.Label("skip")
	b.CPTopSP(-4, 4).ConstInt(2).Binary(bytecode.OpEqual, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "body")
	b.Jump(bytecode.OpJmp, "head")
	b.Label("body")
	b.CPTopSP(-4, 4).Action(4, 1)
	b.Jump(bytecode.OpJmp, "head")
	b.Label("exit")
	b.MovSP(-4)
	b.Retn()

	res := decompile(t, b)
	assertRendered(t, res.Render(),
		"while (int1 < 10) {",
		"if (int1 == 5) {",
		"break;",
		"if (int1 == 2) {",
		"continue;",
		"PrintInteger(int1);",
	)
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestDecompileShortCircuit(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(3)
	b.CPTopSP(-4, 4).ConstInt(1).Binary(bytecode.OpGT, bytecode.TypeIntInt)
	b.CPTopSP(-4, 4)
	b.Jump(bytecode.OpJZ, "done")
	b.CPTopSP(-8, 4).ConstInt(5).Binary(bytecode.OpLT, bytecode.TypeIntInt)
	b.Binary(bytecode.OpLogAnd, bytecode.TypeIntInt)
	b.Label("done")
	b.Jump(bytecode.OpJZ, "end")
	b.ConstString("in").Action(1, 1)
	b.Label("end")
	b.MovSP(-4)
	b.Retn()

	assertRendered(t, decompile(t, b).Render(),
		"int int1 = 3;",
		"if ((int1 > 1) && (int1 < 5)) {",
		`PrintString("in");`,
	)
}

func TestDecompileElseIfChain(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(10).Action(0, 1)
	b.CPTopSP(-4, 4).ConstInt(1).Binary(bytecode.OpEqual, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "two")
	b.ConstString("one").Action(1, 1)
	b.Jump(bytecode.OpJmp, "end")
	b.Label("two")
	b.CPTopSP(-4, 4).ConstInt(2).Binary(bytecode.OpEqual, bytecode.TypeIntInt)
	b.Jump(bytecode.OpJZ, "other")
	b.ConstString("two").Action(1, 1)
	b.Jump(bytecode.OpJmp, "end")
	b.Label("other")
	b.ConstString("other").Action(1, 1)
	b.Label("end")
	b.MovSP(-4)
	b.Retn()

	assertRendered(t, decompile(t, b).Render(),
		"\tint int1 = Random(10);\n",
		"\tif (int1 == 1) {\n",
		"\t\tPrintString(\"one\");\n",
		"\telse if (int1 == 2) {\n",
		"\t\tPrintString(\"two\");\n",
		"\telse {\n",
		"\t\tPrintString(\"other\");\n",
	)
}

func TestDecompileSubroutineSignature(t *testing.T) {
	b := bytecode.NewBuilder()
	b.RSAdd(bytecode.TypeInt)
	b.ConstFloat(2).ConstInt(5)
	b.Call("sub")
	b.Action(4, 1)
	b.Retn()
	b.Label("sub")
	b.CPTopSP(-4, 4)
	b.CPDownSP(-16, 4)
	b.MovSP(-4)
	b.MovSP(-8)
	b.Retn()

	res := decompile(t, b)
	out := res.Render()
	assertRendered(t, out,
		"int sub1(int intParam1, float floatParam2) {",
		"\treturn intParam1;\n",
		"PrintInteger(sub1(5, 2.0));",
	)
	if strings.Index(out, "void main()") > strings.Index(out, "int sub1(") {
		t.Errorf("functions out of order:\n%s", out)
	}

	var sub *Subroutine
	for _, s := range res.Subroutines {
		if s.Name == "sub1" {
			sub = s
		}
	}
	if sub == nil {
		t.Fatal("sub1 not found")
	}
	if sub.ParamSlots() != 2 || sub.ReturnSlots != 1 || sub.ReturnType != TypeInt {
		t.Errorf("sub1: %d param slots, %d return slots of %s", sub.ParamSlots(), sub.ReturnSlots, sub.ReturnType)
	}
	if hasDiagnostic(res, DiagInferredParam) {
		t.Errorf("unexpected inferred-parameter diagnostic: %v", res.Diagnostics)
	}
}

func TestDecompileGlobals(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Call("globals")
	b.Retn()
	b.Label("globals")
	b.ConstInt(7)
	b.Op(bytecode.OpSaveBP, bytecode.TypeNone)
	b.Call("main")
	b.Op(bytecode.OpRestoreBP, bytecode.TypeNone)
	b.MovSP(-4)
	b.Retn()
	b.Label("main")
	b.CPTopBP(-8, 4).Action(4, 1)
	b.ConstInt(3).CPDownBP(-8, 4)
	b.MovSP(-4)
	b.Retn()

	res := decompile(t, b)
	out := res.Render()
	assertRendered(t, out,
		"int intGlobal1 = 7;\n",
		"void main() {",
		"\tPrintInteger(intGlobal1);\n",
		"\tintGlobal1 = 3;\n",
	)
	if strings.Contains(out, "_globals") || strings.Contains(out, "_start") {
		t.Errorf("entry routines should not be rendered:\n%s", out)
	}
	if !strings.HasPrefix(out, "int intGlobal1") {
		t.Errorf("globals should come first:\n%s", out)
	}
}

func TestDecompileStartingConditional(t *testing.T) {
	b := bytecode.NewBuilder()
	b.RSAdd(bytecode.TypeInt)
	b.Call("cond")
	b.Retn()
	b.Label("cond")
	b.ConstInt(1)
	b.CPDownSP(-8, 4)
	b.MovSP(-4)
	b.Retn()

	assertRendered(t, decompile(t, b).Render(),
		"int StartingConditional() {",
		"return 1;",
	)
}

func TestDecompileDeferredAction(t *testing.T) {
	b := bytecode.NewBuilder()
	b.StoreState(0, 0)
	b.Jump(bytecode.OpJmp, "after")
	b.ConstString("hi").Action(1, 1)
	b.Retn()
	b.Label("after")
	b.ConstFloat(1.5)
	b.Action(7, 2)
	b.Retn()

	assertRendered(t, decompile(t, b).Render(),
		`DelayCommand(1.5, PrintString("hi"));`,
	)
}

func TestDecompileFailedSubroutineIsIsolated(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(2).Action(4, 1)
	b.Call("bad")
	b.Retn()
	b.Label("bad")
	b.ConstInt(1)
	b.CPTopSP(-12, 4)
	b.MovSP(-8)
	b.Retn()

	res := decompile(t, b)
	out := res.Render()
	assertRendered(t, out,
		"// sub1: decompilation failed",
		"PrintInteger(2);",
		"sub1();",
	)

	err := res.Err()
	if !errors.Is(err, ErrInvalidStackAccess) {
		t.Fatalf("Err() = %v, want ErrInvalidStackAccess", err)
	}
	var derr *DecompileError
	if !errors.As(err, &derr) || derr.Subroutine != "sub1" {
		t.Errorf("Err() = %#v, want a DecompileError for sub1", err)
	}
	if !hasDiagnostic(res, DiagSubroutineFailed) {
		t.Error("missing subroutine-failed diagnostic")
	}
}

func TestDecompileInfiniteLoop(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Label("head")
	b.ConstString("x").Action(1, 1)
	b.Jump(bytecode.OpJmp, "head")
	b.Retn()

	res := decompile(t, b)
	assertRendered(t, res.Render(), "while (1) {", `PrintString("x");`)
	if !hasDiagnostic(res, DiagUndeterminedExit) {
		t.Errorf("expected an undetermined-exit diagnostic, got %v", res.Diagnostics)
	}
}

func TestDecompileSelfJumpAtEntry(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Label("h")
	b.Jump(bytecode.OpJmp, "h")
	b.Retn()

	res := decompile(t, b)
	assertRendered(t, res.Render(), "while (1) {")
	if !hasDiagnostic(res, DiagUndeterminedExit) {
		t.Errorf("expected an undetermined-exit diagnostic, got %v", res.Diagnostics)
	}
	if err := res.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestDecompileJumpIntoLoopBody(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Label("head")
	b.ConstInt(1)
	b.Jump(bytecode.OpJZ, "exit")
	b.Jump(bytecode.OpJmp, "mid")
	b.ConstString("a").Action(1, 1)
	b.Label("mid")
	b.ConstString("b").Action(1, 1)
	b.Jump(bytecode.OpJmp, "head")
	b.Label("exit")
	b.Retn()

	prog, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := New(Options{}).DecompileProgram(context.Background(), prog)
	if err != nil {
		t.Fatalf("DecompileProgram: %v", err)
	}
	defer res.Close()

	assertRendered(t, res.Render(), "/* undetermined loop exit: ", `PrintString("b");`)

	jump := prog.Instructions[2].Offset
	found := false
	for _, d := range res.Diagnostics {
		if d.Kind == DiagUndeterminedExit && d.Offset == jump {
			found = true
			if !errors.Is(d.Err, ErrAmbiguousControlFlow) {
				t.Errorf("diagnostic error = %v, want ErrAmbiguousControlFlow", d.Err)
			}
		}
	}
	if !found {
		t.Errorf("no undetermined-exit diagnostic at %04X: %v", jump, res.Diagnostics)
	}
}

func TestDecompileParamFromConditionalOnly(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Label("l")
	b.Jump(bytecode.OpJZ, "l")
	b.Retn()

	res := decompile(t, b)
	assertRendered(t, res.Render(), "intParam1")

	want := bytecode.HeaderSize
	found := false
	for _, d := range res.Diagnostics {
		if d.Kind == DiagInferredParam {
			found = true
			if d.Offset != want {
				t.Errorf("inferred-parameter at %04X, want %04X", d.Offset, want)
			}
		}
	}
	if !found {
		t.Errorf("expected an inferred-parameter diagnostic, got %v", res.Diagnostics)
	}
}

func TestRecoveredPanic(t *testing.T) {
	s := &Subroutine{Name: "sub1", Offset: 0x20}
	err := recovered(s, func() error {
		var ins []bytecode.Instruction
		_ = ins[1]
		return nil
	})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
	var derr *DecompileError
	if !errors.As(err, &derr) || derr.Subroutine != "sub1" || derr.Offset != 0x20 {
		t.Errorf("err = %#v", err)
	}
	if err := recovered(s, func() error { return nil }); err != nil {
		t.Errorf("recovered(nil) = %v", err)
	}
}

func TestDecompileUnknownAction(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(1)
	b.Action(9999, 1)
	b.Retn()

	res := decompile(t, b)
	assertRendered(t, res.Render(), "Action9999(1);")
	if !hasDiagnostic(res, DiagUnknownAction) {
		t.Error("missing unknown-action diagnostic")
	}
}

func TestDiagnosticsCallback(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(1).Action(9999, 1)
	b.Retn()

	var got []Diagnostic
	d := New(Options{OnDiagnostic: func(diag Diagnostic) { got = append(got, diag) }})
	res, err := d.DecompileProgram(context.Background(), b.MustBuild())
	if err != nil {
		t.Fatalf("DecompileProgram: %v", err)
	}
	defer res.Close()
	if len(got) != 1 || got[0].Kind != DiagUnknownAction {
		t.Errorf("callback got %v", got)
	}
}

func TestDecompileRawJump(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Jump(bytecode.OpJmp, "skip")
	b.ConstString("dead").Action(1, 1)
	b.Label("skip")
	b.ConstString("live").Action(1, 1)
	b.Retn()

	res := decompile(t, b)
	assertRendered(t, res.Render(), `PrintString("live");`, "//")
	if !hasDiagnostic(res, DiagRawJump) {
		t.Error("missing raw-jump diagnostic")
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v, want nil", res.Err())
	}
}

func TestDecompileCustomIndent(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(1).Action(4, 1)
	b.Retn()

	prog := b.MustBuild()
	res, err := New(Options{Indent: "    "}).DecompileProgram(context.Background(), prog)
	if err != nil {
		t.Fatalf("DecompileProgram: %v", err)
	}
	defer res.Close()
	assertRendered(t, res.Render(), "\n    PrintInteger(1);\n")
}

func TestDecompileCancelled(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(1).Action(4, 1)
	b.Retn()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Options{}).DecompileProgram(ctx, b.MustBuild()); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestDecompileRejectsBadTargets(t *testing.T) {
	ins := []bytecode.Instruction{
		{Offset: bytecode.HeaderSize, Op: bytecode.OpJSR, Int: 3, Target: bytecode.HeaderSize + 3},
		{Offset: bytecode.HeaderSize + 6, Op: bytecode.OpRetn},
	}
	if _, err := New(Options{}).Decompile(ins); err == nil {
		t.Error("expected an error for a JSR into the middle of an instruction")
	}
}

func TestResultCloseIsIdempotent(t *testing.T) {
	b := bytecode.NewBuilder()
	b.ConstInt(1).Action(4, 1)
	b.Retn()

	res, err := New(Options{}).DecompileProgram(context.Background(), b.MustBuild())
	if err != nil {
		t.Fatalf("DecompileProgram: %v", err)
	}
	res.Close()
	res.Close()
	if !res.Root.Closed() {
		t.Error("root should be closed")
	}
	if res.Render() != "" {
		t.Errorf("closed tree rendered %q", res.Render())
	}
}
