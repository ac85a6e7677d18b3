// ncsdecomp CLI - decompiles compiled NCS scripts back to source
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chazu/ncsdecomp/cache"
	"github.com/chazu/ncsdecomp/config"
	"github.com/chazu/ncsdecomp/decompiler"
	"github.com/chazu/ncsdecomp/pkg/bytecode"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("ncsdecomp")

func main() {
	configPath := flag.String("config", "", "Config file (default: nearest ncsdecomp.toml)")
	outDir := flag.String("o", "", "Output directory")
	disasm := flag.Bool("disasm", false, "Print the disassembly listing instead of decompiling")
	indent := flag.String("indent", "", "Indentation unit (e.g. '    ')")
	workers := flag.Int("workers", -1, "Parallel subroutine workers (0 = GOMAXPROCS)")
	actionsPath := flag.String("actions", "", "YAML routine catalog")
	noCache := flag.Bool("no-cache", false, "Do not read or write the result cache")
	stdout := flag.Bool("stdout", false, "Write decompiled source to stdout")
	verbosity := flag.Int("v", 0, "Log verbosity increase over the configured level")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ncsdecomp [options] <file.ncs|dir>...\n\n")
		fmt.Fprintf(os.Stderr, "Decompiles compiled NCS scripts into .nss source.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ncsdecomp k_inc_generic.ncs        # Writes k_inc_generic.nss to the output dir\n")
		fmt.Fprintf(os.Stderr, "  ncsdecomp -o src ./scripts         # Decompile every .ncs under scripts/ into src/\n")
		fmt.Fprintf(os.Stderr, "  ncsdecomp -disasm a_cond.ncs       # Print the instruction listing\n")
		fmt.Fprintf(os.Stderr, "  ncsdecomp -stdout -indent '    ' a.ncs\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		abs, err := filepath.Abs(*outDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Output.Dir = abs
	}
	if *indent != "" {
		cfg.Output.Indent = *indent
	}
	if *workers >= 0 {
		cfg.Decompile.Workers = *workers
	}
	if *actionsPath != "" {
		abs, err := filepath.Abs(*actionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Actions.Path = abs
	}
	if *noCache {
		cfg.Cache.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	commonlog.Configure(cfg.Log.Verbosity+*verbosity, cfg.LogPath())

	files, err := collectFiles(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		failed := false
		for _, f := range files {
			if err := printDisassembly(os.Stdout, f); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := newRunner(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.close()

	failed := false
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		var w io.Writer
		if *stdout {
			w = os.Stdout
		}
		ok, err := r.run(ctx, f, w)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
			failed = true
			continue
		}
		if !ok {
			failed = true
		}
	}
	if failed || ctx.Err() != nil {
		r.close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// collectFiles expands directories into the .ncs files beneath them.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".ncs") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func printDisassembly(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := bytecode.Decode(data)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, err = io.WriteString(w, prog.DisassembleWithName(name))
	return err
}

// runner decompiles files through the result cache.
type runner struct {
	cfg     *config.Config
	dec     *decompiler.Decompiler
	store   cache.Store
	variant string
}

func newRunner(cfg *config.Config) (*runner, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts.OnDiagnostic = func(d decompiler.Diagnostic) {
		log.Debugf("%s", d.String())
	}
	r := &runner{cfg: cfg, dec: decompiler.New(opts), variant: cfg.Variant()}
	if cfg.Cache.Enabled {
		r.store, err = cache.Open(cfg.CachePath())
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *runner) close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Warningf("closing cache: %s", err.Error())
		}
		r.store = nil
	}
}

// run decompiles one file, writing the source to w or, when w is nil, to the
// output directory. It reports false when a subroutine failed.
func (r *runner) run(ctx context.Context, path string, w io.Writer) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	key := cache.Key(data, r.variant)
	entry, hit := r.lookup(key)
	if !hit {
		prog, err := bytecode.Decode(data)
		if err != nil {
			return false, err
		}
		res, err := r.dec.DecompileProgram(ctx, prog)
		if err != nil {
			return false, err
		}
		entry = cache.FromResult(res)
		res.Close()
		if r.store != nil {
			if err := r.store.Put(key, entry); err != nil {
				log.Warningf("caching %s: %s", path, err.Error())
			}
		}
	} else {
		log.Infof("%s: cached", path)
	}

	for _, d := range entry.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, d.String())
	}

	if w == nil {
		out, err := r.outputPath(path)
		if err != nil {
			return false, err
		}
		if err := os.WriteFile(out, []byte(entry.Text), 0644); err != nil {
			return false, err
		}
		log.Infof("wrote %s", out)
	} else if _, err := io.WriteString(w, entry.Text); err != nil {
		return false, err
	}
	return !entry.Failed, nil
}

func (r *runner) lookup(key string) (*cache.Entry, bool) {
	if r.store == nil {
		return nil, false
	}
	e, ok, err := r.store.Get(key)
	if err != nil {
		log.Warningf("cache lookup: %s", err.Error())
		return nil, false
	}
	return e, ok
}

func (r *runner) outputPath(path string) (string, error) {
	dir := r.cfg.OutputDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, base+r.cfg.Output.Extension), nil
}
