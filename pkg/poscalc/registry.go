package poscalc

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"src.sel.sh/pkg/hash"
	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/topo"
)

var logger = logutil.GetLogger("[poscalc] ")

// ErrNoTopology is returned when registering a calculation that needs
// residue, molecule or mass information without a topology.
var ErrNoTopology = errors.New("position calculation requires a topology")

// CycleError is returned by Finalize when calculations depend on each other
// in a cycle.
type CycleError struct {
	// IDs of the calculations left over after ordering everything else.
	IDs []int
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return "cycle in position calculation dependencies: " + strings.Join(ids, ", ")
}

// Base is what a calculation is computed from. A calculation either has a
// static index set, or is dynamic and gets its atoms from the evaluator
// every frame. Dynamic bases are identified by Key, normally the text of
// the expression that produces the atoms.
type Base struct {
	Indices []int
	Key     string
	Dynamic bool
}

// Static returns a static base.
func Static(indices []int) Base { return Base{Indices: indices} }

// Dynamic returns a dynamic base.
func Dynamic(key string) Base { return Base{Key: key, Dynamic: true} }

func (b Base) hash() uint32 {
	if b.Dynamic {
		return hash.DJB(1, hash.String(b.Key))
	}
	return hash.DJB(0, hash.Ints(b.Indices))
}

func (b Base) equal(o Base) bool {
	if b.Dynamic != o.Dynamic {
		return false
	}
	if b.Dynamic {
		return b.Key == o.Key
	}
	return slices.Equal(b.Indices, o.Indices)
}

// Calc is one registered position calculation. Its positions are valid from
// the Refresh (or, for dynamic calculations, the Compute) that produced them
// until the next Refresh.
type Calc struct {
	reg  *Registry
	id   int
	spec Spec
	base Base
	refs int

	// Atoms of every output position. For dynamic calculations these are
	// rebuilt by Compute.
	blocks [][]int
	// Output position of each base atom.
	atomPos map[int]int
	maxAtom int

	// When non-nil, positions are copied from the parent, pos[i] being
	// parent.pos[parentPos[i]].
	parent    *Calc
	parentPos []int
	deps      []*Calc

	dynAtoms []int

	pos      []topo.Vec3
	computed uint64
}

// ID returns the registration number of the calculation.
func (c *Calc) ID() int { return c.id }

// Spec returns the position type.
func (c *Calc) Spec() Spec { return c.spec }

// IsDynamic reports whether the base is supplied per frame.
func (c *Calc) IsDynamic() bool { return c.base.Dynamic }

// Refs returns how many times the calculation was registered.
func (c *Calc) Refs() int { return c.refs }

// Parent returns the calculation this one copies positions from, if any.
func (c *Calc) Parent() *Calc { return c.parent }

// Len returns the number of output positions.
func (c *Calc) Len() int { return len(c.blocks) }

// Blocks returns the atoms behind every output position.
func (c *Calc) Blocks() [][]int { return c.blocks }

// Positions returns the positions of the current frame. The slice must not
// be modified.
func (c *Calc) Positions() []topo.Vec3 { return c.pos }

// Position returns the output position that atom belongs to.
func (c *Calc) Position(atom int) (topo.Vec3, bool) {
	i, ok := c.atomPos[atom]
	if !ok || i >= len(c.pos) {
		return topo.Vec3{}, false
	}
	return c.pos[i], true
}

// IsCurrent reports whether the positions belong to the current frame.
func (c *Calc) IsCurrent() bool { return c.reg.cur != nil && c.computed == c.reg.frame }

// Compute computes a dynamic calculation from the atoms selected in the
// current frame. Only the first call in a frame has an effect.
func (c *Calc) Compute(atoms []int) error {
	if !c.base.Dynamic {
		return fmt.Errorf("position calculation %d is static", c.id)
	}
	r := c.reg
	if r.cur == nil {
		return errors.New("position calculation computed outside a frame")
	}
	if c.computed == r.frame {
		return nil
	}
	c.dynAtoms = append(c.dynAtoms[:0], atoms...)
	if err := r.setupBlocks(c, c.dynAtoms); err != nil {
		return err
	}
	if err := r.compute(c); err != nil {
		return err
	}
	c.computed = r.frame
	return nil
}

// Registry owns the distinct position calculations of one collection.
type Registry struct {
	top   *topo.Topology
	calcs []*Calc
	byKey map[uint32][]*Calc

	order     []*Calc
	finalized bool

	frame uint64
	cur   *topo.Frame
}

// New returns an empty Registry. The topology may be nil. An empty registry
// counts as finalized; registering a calculation requires a new Finalize.
func New(top *topo.Topology) *Registry {
	return &Registry{top: top, byKey: make(map[uint32][]*Calc), finalized: true}
}

// SetTopology changes the topology used by later registrations.
func (r *Registry) SetTopology(top *topo.Topology) { r.top = top }

// Len returns the number of distinct calculations.
func (r *Registry) Len() int { return len(r.calcs) }

// Calcs returns the calculations in registration order.
func (r *Registry) Calcs() []*Calc { return r.calcs }

// Register returns the calculation of spec over base, creating it unless an
// identical one exists. Registering un-finalizes the registry.
func (r *Registry) Register(spec Spec, base Base) (*Calc, error) {
	if spec.RequiresTopology() && r.top == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTopology, spec)
	}
	if spec.NeedsMasses() && !r.top.HasMasses() {
		return nil, fmt.Errorf("position type %s needs masses, but the topology has none", spec)
	}
	key := hash.DJB(uint32(spec.Kind), uint32(spec.Method), uint32(spec.Mode), base.hash())
	for _, c := range r.byKey[key] {
		if c.spec == spec && c.base.equal(base) {
			c.refs++
			return c, nil
		}
	}
	c := &Calc{reg: r, id: len(r.calcs), spec: spec, base: base, refs: 1, atomPos: make(map[int]int)}
	if !base.Dynamic {
		base.Indices = slices.Clone(base.Indices)
		c.base = base
		if err := r.setupBlocks(c, base.Indices); err != nil {
			return nil, err
		}
		r.findParent(c)
	}
	r.calcs = append(r.calcs, c)
	r.byKey[key] = append(r.byKey[key], c)
	r.finalized = false
	logger.Printf("registered calculation %d: %s over %s", c.id, spec, describeBase(base))
	return c, nil
}

func describeBase(b Base) string {
	if b.Dynamic {
		return fmt.Sprintf("dynamic %q", b.Key)
	}
	return fmt.Sprintf("%d atoms", len(b.Indices))
}

// findParent looks for an earlier static calculation of the same type whose
// output covers every position of c, so that c can copy instead of compute.
// Only types where a position depends on nothing but its unit qualify.
func (r *Registry) findParent(c *Calc) {
	if c.spec.Kind == KindAll || (c.spec.Kind != KindAtom && c.spec.Mode != Whole) {
		return
	}
	for _, p := range r.calcs {
		if p.base.Dynamic || p.spec != c.spec || p.parent != nil || len(p.blocks) <= len(c.blocks) {
			continue
		}
		idx := make([]int, len(c.blocks))
		covered := true
		for i, b := range c.blocks {
			j, ok := p.atomPos[b[0]]
			if !ok {
				covered = false
				break
			}
			idx[i] = j
		}
		if covered {
			c.parent, c.parentPos = p, idx
			return
		}
	}
}

func (r *Registry) blockOf(spec Spec, atom int) (int, []int) {
	switch spec.Kind {
	case KindResidue:
		ri := r.top.Atoms[atom].ResIndex
		return ri, r.top.Residues[ri].Atoms
	case KindMolecule:
		mi := r.top.Atoms[atom].Molecule
		return mi, r.top.Molecules[mi].Atoms
	}
	return atom, nil
}

// setupBlocks splits atoms into the output units of c.
func (r *Registry) setupBlocks(c *Calc, atoms []int) error {
	c.blocks = c.blocks[:0]
	clear(c.atomPos)
	c.maxAtom = -1
	for _, a := range atoms {
		c.maxAtom = max(c.maxAtom, a)
	}
	if r.top != nil && c.maxAtom >= r.top.NAtoms() {
		return fmt.Errorf("atom index %d out of range for %d atoms", c.maxAtom, r.top.NAtoms())
	}
	switch c.spec.Kind {
	case KindAtom:
		for i, a := range atoms {
			c.blocks = append(c.blocks, atoms[i:i+1])
			c.atomPos[a] = i
		}
	case KindAll:
		if len(atoms) > 0 {
			c.blocks = append(c.blocks, atoms)
		}
		for _, a := range atoms {
			c.atomPos[a] = 0
		}
	default:
		blockPos := make(map[int]int)
		for _, a := range atoms {
			id, full := r.blockOf(c.spec, a)
			i, ok := blockPos[id]
			if !ok {
				i = len(c.blocks)
				blockPos[id] = i
				if c.spec.Mode == Whole {
					c.blocks = append(c.blocks, full)
					c.maxAtom = max(c.maxAtom, full[len(full)-1])
					for _, fa := range full {
						c.atomPos[fa] = i
					}
				} else {
					c.blocks = append(c.blocks, nil)
				}
			}
			if c.spec.Mode != Whole {
				c.blocks[i] = append(c.blocks[i], a)
			}
			c.atomPos[a] = i
		}
	}
	return nil
}

// AddDependency records that c must be computed after dep.
func (r *Registry) AddDependency(c, dep *Calc) {
	if !slices.Contains(c.deps, dep) {
		c.deps = append(c.deps, dep)
		r.finalized = false
	}
}

// Finalize fixes the evaluation order of static calculations. Dynamic
// calculations take part in cycle detection but are computed on demand.
func (r *Registry) Finalize() error {
	indeg := make([]int, len(r.calcs))
	users := make([][]*Calc, len(r.calcs))
	for _, c := range r.calcs {
		deps := c.deps
		if c.parent != nil {
			deps = append(slices.Clip(deps), c.parent)
		}
		for _, d := range deps {
			indeg[c.id]++
			users[d.id] = append(users[d.id], c)
		}
	}
	var queue, order []*Calc
	for _, c := range r.calcs {
		if indeg[c.id] == 0 {
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		order = append(order, c)
		for _, u := range users[c.id] {
			indeg[u.id]--
			if indeg[u.id] == 0 {
				queue = append(queue, u)
			}
		}
	}
	if len(order) < len(r.calcs) {
		var left []int
		for _, c := range r.calcs {
			if indeg[c.id] > 0 {
				left = append(left, c.id)
			}
		}
		return &CycleError{left}
	}
	r.order = r.order[:0]
	for _, c := range order {
		if !c.base.Dynamic {
			r.order = append(r.order, c)
		}
	}
	r.finalized = true
	return nil
}

// Refresh starts a new frame and computes every static calculation once, in
// dependency order.
func (r *Registry) Refresh(f *topo.Frame) error {
	if !r.finalized {
		return errors.New("position calculations refreshed before Finalize")
	}
	r.frame++
	r.cur = f
	for _, c := range r.order {
		if err := r.compute(c); err != nil {
			return err
		}
		c.computed = r.frame
	}
	return nil
}

func (r *Registry) compute(c *Calc) error {
	f := r.cur
	if c.maxAtom >= len(f.X) {
		return fmt.Errorf("position calculation %d needs atom %d, but the frame has %d atoms",
			c.id, c.maxAtom, len(f.X))
	}
	c.pos = slices.Grow(c.pos[:0], len(c.blocks))[:len(c.blocks)]
	if c.parent != nil {
		for i, j := range c.parentPos {
			c.pos[i] = c.parent.pos[j]
		}
		return nil
	}
	for i, b := range c.blocks {
		c.pos[i] = r.center(c.spec.Method, b, f)
	}
	return nil
}

// center aggregates the atoms of one unit. With a box, atoms are unwrapped
// to the periodic image nearest to the first atom.
func (r *Registry) center(m Method, atoms []int, f *topo.Frame) topo.Vec3 {
	ref := f.X[atoms[0]]
	if m == First || len(atoms) == 1 {
		return ref
	}
	var sum topo.Vec3
	var total float64
	for _, a := range atoms {
		w := 1.0
		if m == COM {
			w = r.top.Atoms[a].Mass
		}
		d := f.Box.Dx(f.X[a], ref)
		sum = sum.Add(d.Scale(w))
		total += w
	}
	if total == 0 {
		return ref
	}
	return ref.Add(sum.Scale(1 / total))
}

// Dump writes one line per calculation, for debugging.
func (r *Registry) Dump(w io.Writer) {
	for _, c := range r.calcs {
		fmt.Fprintf(w, "calc %d: %s over %s, %d positions, %d refs",
			c.id, c.spec, describeBase(c.base), len(c.blocks), c.refs)
		if c.parent != nil {
			fmt.Fprintf(w, ", from calc %d", c.parent.id)
		}
		fmt.Fprintln(w)
	}
}
