package decompiler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/chazu/ncsdecomp/pkg/actions"
	"github.com/chazu/ncsdecomp/pkg/bytecode"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("ncsdecomp.decompiler")

// Options configures a Decompiler.
type Options struct {
	// Catalog resolves ACTION ids. Defaults to actions.Default().
	Catalog actions.Catalog

	// Indent is the indentation unit of the rendered output. Defaults to a tab.
	Indent string

	// Workers bounds parallel subroutine decompilation. Defaults to GOMAXPROCS.
	Workers int

	// OnDiagnostic, if set, receives diagnostics as they are produced. Calls
	// are serialized.
	OnDiagnostic func(Diagnostic)
}

// Decompiler turns instruction streams into script trees. It holds no
// mutable state and may be shared.
type Decompiler struct {
	opts Options
}

// New returns a Decompiler with defaults applied to opts.
func New(opts Options) *Decompiler {
	if opts.Catalog == nil {
		opts.Catalog = actions.Default()
	}
	if opts.Indent == "" {
		opts.Indent = DefaultIndent
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Decompiler{opts: opts}
}

// Result is the outcome of decompiling a unit.
type Result struct {
	Root        *Node
	Diagnostics []Diagnostic
	Subroutines []*Subroutine
}

// Render returns the pseudo-source text.
func (r *Result) Render() string {
	return r.Root.Render()
}

// Err joins the errors of the subroutines that were replaced by placeholders.
func (r *Result) Err() error {
	var errs []error
	for _, d := range r.Diagnostics {
		if d.Kind == DiagSubroutineFailed && d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return errors.Join(errs...)
}

// Close tears down the tree.
func (r *Result) Close() {
	if r.Root != nil {
		r.Root.Close()
	}
}

// Decompile reconstructs an instruction sequence with resolved offsets. The
// sequence may be a whole compiled unit or a single routine.
func (d *Decompiler) Decompile(ins []bytecode.Instruction) (*Result, error) {
	prog, err := bytecode.NewProgram(append([]bytecode.Instruction(nil), ins...))
	if err != nil {
		return nil, err
	}
	return d.DecompileProgram(context.Background(), prog)
}

// DecompileProgram reconstructs every subroutine of prog. Subroutines are
// decompiled in parallel, each by an independent engine instance. A
// subroutine that fails is rendered as a comment placeholder and reported in
// the diagnostics; it never affects its siblings.
func (d *Decompiler) DecompileProgram(ctx context.Context, prog *bytecode.Program) (*Result, error) {
	an, err := analyze(prog, d.opts.Catalog)
	if err != nil {
		return nil, err
	}

	root := NewRoot(d.opts.Indent)
	res := &Result{Root: root, Subroutines: an.subs}

	var mu sync.Mutex
	report := func(diag Diagnostic) {
		mu.Lock()
		defer mu.Unlock()
		res.Diagnostics = append(res.Diagnostics, diag)
		if d.opts.OnDiagnostic != nil {
			d.opts.OnDiagnostic(diag)
		}
	}

	var globals *LocalVarStack
	if g := an.globalsSub; g != nil {
		sd := newSubDecompiler(an, g, d.opts.Catalog, nil, report)
		err = recovered(g, func() (err error) {
			globals, err = sd.globalsInit(root)
			return err
		})
		if err != nil {
			root.AddChild(d.placeholder(g, err, report))
			globals = nil
		}
	}

	var funcs []*Subroutine
	for _, s := range an.subs {
		if s.Role == RoleFunction || s.Role == RoleMain {
			funcs = append(funcs, s)
		}
	}
	log.Debugf("decompiling %d subroutines with %d workers", len(funcs), d.opts.Workers)

	nodes := make([]*Node, len(funcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, s := range funcs {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var gl *LocalVarStack
			if globals != nil {
				gl = globals.Clone()
			}
			sd := newSubDecompiler(an, s, d.opts.Catalog, gl, report)
			var fn *Node
			err := recovered(s, func() (err error) {
				fn, err = sd.function()
				return err
			})
			if err != nil {
				fn = d.placeholder(s, err, report)
			}
			nodes[i] = fn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		root.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		root.Close()
		return nil, err
	}

	for _, n := range nodes {
		root.AddChild(n)
	}
	return res, nil
}

// recovered runs fn and converts a panic in the engine into an error for s.
func recovered(s *Subroutine, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DecompileError{Subroutine: s.Name, Offset: s.Offset, Err: fmt.Errorf("%w: %v", ErrInternal, r)}
		}
	}()
	return fn()
}

func (d *Decompiler) placeholder(s *Subroutine, err error, report func(Diagnostic)) *Node {
	var derr *DecompileError
	if !errors.As(err, &derr) {
		derr = &DecompileError{Subroutine: s.Name, Offset: s.Offset, Err: err}
	}
	log.Errorf("%s", derr.Error())
	report(Diagnostic{
		Kind:       DiagSubroutineFailed,
		Subroutine: s.Name,
		Offset:     derr.Offset,
		Message:    derr.Error(),
		Err:        derr,
	})
	return newStmt(KindComment, s.Offset, fmt.Sprintf("%s: decompilation failed: %v", s.Name, derr), nil)
}
