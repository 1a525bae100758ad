// Package selection compiles and evaluates selections: texts like
// "resname SOL and within 0.5 of resnr 1" that pick atoms of a molecular
// system, frame after frame.
//
// A Collection owns a set of selections together with the variables they
// share. Selections are parsed, compiled once and then evaluated for every
// frame:
//
//	sc := selection.NewCollection()
//	sc.SetTopology(top, -1)
//	sels, err := sc.ParseString(`water = resname SOL; within 0.5 of water`, 0)
//	err = sc.Compile()
//	for each frame f {
//		err = sc.Evaluate(f)
//		use sels[0].Indices()
//	}
//	err = sc.EvaluateFinal(nframes)
//
// A Collection is not safe for concurrent use; use one per goroutine.
package selection

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/mempool"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/parse"
	"src.sel.sh/pkg/poscalc"
	"src.sel.sh/pkg/symtab"
	"src.sel.sh/pkg/topo"
)

var logger = logutil.GetLogger("[selection] ")

// Collection is a set of selections that are compiled and evaluated
// together.
type Collection struct {
	syms   *symtab.Table
	elems  []element
	sels   []*Selection
	groups indexgroup.Source
	// Text of every chunk that parsed without errors.
	sources []string

	top    *topo.Topology
	natoms int
	refPos poscalc.Spec
	outPos poscalc.Spec
	debug  DebugLevel

	// Subexpressions by canonical text, for sharing across selections.
	shared map[string]elemID
	// Every subexpression, in creation order.
	subexprs []elemID

	reg      *poscalc.Registry
	pool     *mempool.Pool
	universe []int
	// Set when compilation finished everything that does not need the
	// number of atoms, and the rest waits for the first frame.
	pending bool

	// Evaluation state, set up by finish.
	memos  []memo
	finals []*method.Method
	frame  int
}

// NewCollection returns an empty collection with the built-in keywords and
// methods, atom reference positions and atom output positions.
func NewCollection() *Collection {
	c := &Collection{
		syms:   symtab.New(),
		refPos: poscalc.Atom,
		outPos: poscalc.Atom,
		shared: make(map[string]elemID),
		reg:    poscalc.New(nil),
		pool:   mempool.New(),
	}
	return c
}

var errCompiled = errors.New("cannot change this after selections have been compiled")

func (c *Collection) anyCompiled() bool {
	for _, s := range c.sels {
		if s.compiled || s.frontDone {
			return true
		}
	}
	return false
}

// SetTopology sets the topology and the number of atoms. A negative natoms
// means the number of atoms in top. Without a topology, natoms may be 0, in
// which case it is taken from the first evaluated frame.
func (c *Collection) SetTopology(top *topo.Topology, natoms int) error {
	if c.anyCompiled() {
		return errCompiled
	}
	if top != nil {
		if natoms < 0 {
			natoms = top.NAtoms()
		}
		if natoms > top.NAtoms() {
			return fmt.Errorf("%d atoms requested, but the topology has %d", natoms, top.NAtoms())
		}
	} else if natoms < 0 {
		return errors.New("the number of atoms must be given without a topology")
	}
	c.top = top
	c.natoms = natoms
	c.reg.SetTopology(top)
	return nil
}

// SetIndexGroups sets the source of index groups for "group" references.
func (c *Collection) SetIndexGroups(src indexgroup.Source) { c.groups = src }

// SetReferencePosType sets the position type used by methods that work on
// positions of the atoms they are evaluated on, such as within.
func (c *Collection) SetReferencePosType(name string) error {
	spec, err := poscalc.ParseSpec(name)
	if err != nil {
		return err
	}
	if spec.Kind == poscalc.KindAll {
		return fmt.Errorf("%s cannot be used as a reference position type", name)
	}
	if c.anyCompiled() {
		return errCompiled
	}
	c.refPos = spec
	return nil
}

// SetOutputPosType sets the default type of the output positions.
func (c *Collection) SetOutputPosType(name string) error {
	spec, err := poscalc.ParseSpec(name)
	if err != nil {
		return err
	}
	if c.anyCompiled() {
		return errCompiled
	}
	c.outPos = spec
	return nil
}

// SetDebugLevel sets how much is written to the log.
func (c *Collection) SetDebugLevel(l DebugLevel) {
	c.debug = l
	c.pool.SetDebug(l >= DebugFull)
}

// RegisterMethod makes a method or keyword available to selections parsed
// afterwards.
func (c *Collection) RegisterMethod(m *method.Method) error {
	return c.syms.AddMethod(m)
}

// Selections returns every selection in parse order.
func (c *Collection) Selections() []*Selection { return c.sels }

// ParseString parses selections from text. When n is positive, exactly n
// selections must be given. On error nothing is added to the collection.
func (c *Collection) ParseString(text string, n int) ([]*Selection, error) {
	return c.parseSource(parse.Source{Name: "[selection]", Code: text}, n)
}

// ParseFile parses selections from the named file, like ParseString.
func (c *Collection) ParseFile(path string, n int) ([]*Selection, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.parseSource(parse.Source{Name: path, Code: string(code)}, n)
}

func (c *Collection) parseSource(src parse.Source, n int) ([]*Selection, error) {
	chunk, perr := parse.Parse(src, c.syms)
	mark := len(c.elems)
	b := c.newBuilder(&src)
	if chunk != nil {
		b.chunk(chunk)
	}
	if err := diag.PackErrors(perr, diag.PackErrors(b.errs...)); err != nil {
		c.elems = c.elems[:mark]
		return nil, err
	}
	if n > 0 && len(b.sels) != n {
		c.elems = c.elems[:mark]
		return nil, &CountMismatchError{Want: n, Got: len(b.sels)}
	}
	b.commit()
	c.sources = append(c.sources, src.Code)
	if c.debug >= DebugBasic {
		for _, s := range b.sels {
			logger.Printf("parsed selection %q: %s", s.name, s.text)
		}
	}
	return b.sels, nil
}

// Source returns the text of everything parsed successfully so far, one
// chunk per line. Parsing it into a new collection gives the same variables
// and selections.
func (c *Collection) Source() string { return strings.Join(c.sources, "\n") }

// RequiresTopology reports whether any selection needs a topology.
func (c *Collection) RequiresTopology() bool {
	if c.outPos.RequiresTopology() {
		return true
	}
	for _, s := range c.sels {
		if c.requiresTopology(s.root) {
			return true
		}
	}
	return false
}

func (c *Collection) requiresTopology(id elemID) bool {
	e := &c.elems[id]
	switch e.kind {
	case kMethod:
		if e.method.Flags&method.NeedsTopology != 0 {
			return true
		}
		if e.method.Flags&method.RefPositions != 0 && c.refPos.RequiresTopology() {
			return true
		}
	case kConst:
		if e.keyword != nil && e.keyword.Flags&method.NeedsTopology != 0 {
			return true
		}
	case kPosition:
		spec := e.spec
		if e.refType {
			spec = c.refPos
		}
		if spec.RequiresTopology() {
			return true
		}
	case kRoot:
		if e.spec.RequiresTopology() {
			return true
		}
	case kVarRef, kSubexprRef:
		if e.target != noElem {
			return c.requiresTopology(e.target)
		}
	}
	for _, ch := range e.children {
		if c.requiresTopology(ch) {
			return true
		}
	}
	return false
}

// PrintTree writes the element trees of all subexpressions and selections.
func (c *Collection) PrintTree(w io.Writer) {
	for _, id := range c.subexprs {
		c.printTree(w, id, "")
	}
	for _, s := range c.sels {
		c.printTree(w, s.root, "")
	}
}

// PrintInfo writes the variables and selections as comment lines.
func (c *Collection) PrintInfo(w io.Writer) {
	if vars := c.syms.Variables(); len(vars) > 0 {
		fmt.Fprintln(w, "# Variables:")
		for _, v := range vars {
			fmt.Fprintf(w, "#   %s\n", c.elems[v.Var].text)
		}
	}
	if len(c.sels) > 0 {
		fmt.Fprintln(w, "# Selections:")
		for _, s := range c.sels {
			if s.name != s.text {
				fmt.Fprintf(w, "#   %q: %s\n", s.name, s.text)
			} else {
				fmt.Fprintf(w, "#   %s\n", s.text)
			}
		}
	}
}
