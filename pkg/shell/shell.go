// Package shell is the main subprogram of selsh. It reads selections,
// compiles them against a system and evaluates them over its frames.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/prog"
	"src.sel.sh/pkg/selection"
	"src.sel.sh/pkg/store"
	"src.sel.sh/pkg/sys"
	"src.sel.sh/pkg/topo"
	"src.sel.sh/pkg/trajectory"
)

var logger = logutil.GetLogger("[shell] ")

// Program is the selection subprogram.
type Program struct {
	paths *prog.SystemPaths
	json  *bool

	selectText string
	file       string
	n          int
	traj       string
	selrpos    string
	seltype    string
	seldebug   string
	workers    int
	check      bool
	history    bool
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	p.paths = fs.SystemPaths()
	p.json = fs.JSON()
	fs.StringVar(&p.selectText, "select", "", "selections to evaluate")
	fs.StringVar(&p.file, "f", "", "file to read selections from")
	fs.IntVar(&p.n, "n", 0, "number of selections required, 0 for any")
	fs.StringVar(&p.traj, "traj", "",
		"path to a YAML stream of frames; the frames of -top are used otherwise")
	fs.StringVar(&p.selrpos, "selrpos", "atom", "reference position type")
	fs.StringVar(&p.seltype, "seltype", "atom", "default output position type")
	fs.StringVar(&p.seldebug, "seldebug", "none",
		"selection debug level: none, basic, compile, eval or full")
	fs.IntVar(&p.workers, "workers", 0, "number of workers evaluating frames, 0 for one per CPU")
	fs.BoolVar(&p.check, "check", false, "parse and compile selections, but do not evaluate them")
	fs.BoolVar(&p.history, "history", false, "show the selection history in -db and quit")
}

func (p *Program) Run(fds [3]*os.File, args []string) error {
	if len(args) > 1 {
		return prog.BadUsage("at most one selection file may be given")
	}
	file := p.file
	if len(args) == 1 {
		if file != "" {
			return prog.BadUsage("a selection file was given both with -f and as an argument")
		}
		file = args[0]
	}
	if file != "" && p.selectText != "" {
		return prog.BadUsage("-select cannot be used with a selection file")
	}
	level, err := selection.ParseDebugLevel(p.seldebug)
	if err != nil {
		return prog.BadUsage(err.Error())
	}

	var st store.DBStore
	if p.paths.DB != "" {
		st, err = store.NewStore(p.paths.DB)
		if err != nil {
			return fmt.Errorf("cannot open database: %w", err)
		}
		defer st.Close()
	}
	if p.history {
		if st == nil {
			return prog.BadUsage("-history requires -db")
		}
		return showHistory(fds, st)
	}

	cfg := &config{level: level, selrpos: p.selrpos, seltype: p.seltype}
	var system *topo.System
	if p.paths.Top != "" {
		system, err = topo.LoadSystem(p.paths.Top)
		if err != nil {
			return err
		}
		cfg.top = system.Topology
	}
	if cfg.groups, err = p.loadGroups(st); err != nil {
		return err
	}

	sc, err := cfg.newCollection()
	if err != nil {
		return prog.BadUsage(err.Error())
	}
	switch {
	case p.selectText != "":
		_, err = sc.ParseString(p.selectText, p.n)
	case file != "":
		_, err = sc.ParseFile(file, p.n)
	default:
		_, err = readInteractive(fds, sc, p.n)
	}
	if err != nil {
		return p.showErrors(fds, err)
	}
	// Taken before evaluation, which may reparse the source in other
	// collections.
	source := sc.Source()

	src, closeSrc, err := p.frameSource(system)
	if err != nil {
		return err
	}
	defer closeSrc()
	if p.check || src == nil {
		if err := sc.Compile(); err != nil {
			return p.showErrors(fds, err)
		}
		p.printCompiled(fds, cfg, sc)
		recordHistory(fds, st, source)
		return nil
	}
	if err := p.analyze(fds, cfg, sc, src); err != nil {
		return err
	}
	recordHistory(fds, st, source)
	return nil
}

// recordHistory saves the selection text of a successful run.
func recordHistory(fds [3]*os.File, st store.DBStore, source string) {
	if st == nil || source == "" {
		return
	}
	if _, err := st.AddEntry(source); err != nil {
		fmt.Fprintln(fds[2], "Warning: cannot save selection history:", err)
	}
}

func (p *Program) showErrors(fds [3]*os.File, err error) error {
	if *p.json {
		fmt.Fprintf(fds[1], "%s\n", errorsToJSON(err))
	} else {
		diag.ShowError(fds[2], err)
	}
	return prog.Exit(2)
}

func (p *Program) loadGroups(st store.DBStore) (indexgroup.Source, error) {
	if p.paths.Groups != "" {
		gs, err := indexgroup.Load(p.paths.Groups)
		if err != nil {
			return nil, err
		}
		// Saved groups let later runs leave out -groups.
		if st != nil {
			for _, g := range gs {
				if err := st.PutGroup(g); err != nil {
					return nil, err
				}
			}
		}
		return gs, nil
	}
	if st != nil {
		gs, err := st.Groups()
		if err != nil {
			return nil, err
		}
		if len(gs) > 0 {
			return gs, nil
		}
	}
	return nil, nil
}

// frameSource returns nil when there are no frames to evaluate.
func (p *Program) frameSource(system *topo.System) (trajectory.Source, func() error, error) {
	noop := func() error { return nil }
	if p.traj != "" {
		natoms := 0
		if system != nil {
			natoms = system.Topology.NAtoms()
		}
		s, closeFile, err := trajectory.Open(p.traj, natoms)
		if err != nil {
			return nil, noop, err
		}
		return s, closeFile, nil
	}
	if system != nil && len(system.Frames) > 0 {
		return trajectory.NewFrames(system.Frames), noop, nil
	}
	return nil, noop, nil
}

// config holds what every collection of one run is set up with.
type config struct {
	top     *topo.Topology
	groups  indexgroup.Source
	level   selection.DebugLevel
	selrpos string
	seltype string
}

func (cfg *config) newCollection() (*selection.Collection, error) {
	sc := selection.NewCollection()
	if cfg.top != nil {
		if err := sc.SetTopology(cfg.top, -1); err != nil {
			return nil, err
		}
	}
	if cfg.groups != nil {
		sc.SetIndexGroups(cfg.groups)
	}
	if err := sc.SetReferencePosType(cfg.selrpos); err != nil {
		return nil, fmt.Errorf("-selrpos: %w", err)
	}
	if err := sc.SetOutputPosType(cfg.seltype); err != nil {
		return nil, fmt.Errorf("-seltype: %w", err)
	}
	sc.SetDebugLevel(cfg.level)
	return sc, nil
}

func (p *Program) analyze(fds [3]*os.File, cfg *config, first *selection.Collection, src trajectory.Source) error {
	source := first.Source()
	var mu sync.Mutex
	// The first worker takes the collection that was already parsed. The
	// others parse the same source again.
	setup := func() (*selection.Collection, error) {
		mu.Lock()
		sc := first
		first = nil
		mu.Unlock()
		if sc != nil {
			return sc, nil
		}
		sc, err := cfg.newCollection()
		if err != nil {
			return nil, err
		}
		if _, err := sc.ParseString(source, 0); err != nil {
			return nil, err
		}
		return sc, nil
	}

	ctx, stop := sys.WithInterrupt(context.Background(), func(name string) {
		logger.Println("stopping on", name)
	})
	defer stop()
	out := newOutput(fds[1], *p.json)
	sum, err := trajectory.Analyze(ctx, src, p.workers, setup, out.frame)
	if err != nil {
		out.flush()
		if ctx.Err() != nil {
			return errors.New("interrupted")
		}
		return p.showErrors(fds, err)
	}
	logger.Printf("analyzed %d frames", sum.NFrames)
	out.summary(sum)
	out.flush()
	return nil
}

func (p *Program) printCompiled(fds [3]*os.File, cfg *config, sc *selection.Collection) {
	if cfg.level >= selection.DebugCompile {
		sc.PrintTree(logger.Writer())
	}
	out := newOutput(fds[1], *p.json)
	defer out.flush()
	out.info(sc)
}

func showHistory(fds [3]*os.File, st store.DBStore) error {
	next, err := st.NextSeq()
	if err != nil {
		return err
	}
	entries, err := st.Entries(0, next)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(fds[1], "%d\t%s\n", e.Seq, e.Text)
	}
	return nil
}
