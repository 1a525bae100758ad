package selection

import (
	"fmt"
	"math"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/mempool"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/topo"
)

// memo holds the per-frame value of a subexpression, evaluated once over
// its gmax the first time a reference needs it.
type memo struct {
	subexpr elemID
	valid   bool
	ints    []int
	numbers []float64
	strs    []string
	pos     []topo.Vec3
	val     method.Value
}

// evaluator evaluates elements for one frame. Every result is allocated
// from the pool before the children are evaluated, and the scratch memory
// of the children is released when the result has been filled in.
type evaluator struct {
	c     *Collection
	pool  *mempool.Pool
	frame *topo.Frame
	ctx   method.Context
	// Set when folding constants before any frame.
	static bool
	trace  bool
	depth  int
}

func (c *Collection) newEvaluator(pool *mempool.Pool, f *topo.Frame) *evaluator {
	return &evaluator{
		c: c, pool: pool, frame: f,
		ctx:   method.Context{Top: c.top, Frame: f, Pool: pool},
		trace: c.debug >= DebugEval,
	}
}

// Evaluate evaluates every compiled selection for frame f. A selection that
// fails keeps its previous results; the errors of all failing selections
// are returned together.
func (c *Collection) Evaluate(f *topo.Frame) error {
	var errs []error
	if c.pending {
		if c.natoms == 0 {
			c.natoms = len(f.X)
		}
		err := c.finish()
		if isAbort(err) {
			return err
		}
		errs = append(errs, err)
	}
	if len(f.X) < c.natoms {
		return fmt.Errorf("the frame has %d atoms, but the selections need %d", len(f.X), c.natoms)
	}
	c.frame++
	c.pool.BeginFrame()
	defer c.pool.EndFrame()
	if err := c.reg.Refresh(f); err != nil {
		return diag.PackErrors(append(errs, err)...)
	}
	ev := c.newEvaluator(c.pool, f)
	for i := range c.memos {
		ev.resetMemo(&c.memos[i])
	}
	for _, s := range c.sels {
		if !s.compiled {
			continue
		}
		m := c.pool.Mark()
		if err := ev.evalRoot(s); err != nil {
			errs = append(errs, &EvalError{Selection: s.name, Frame: c.frame, Err: err})
		}
		c.pool.Release(m)
	}
	return diag.PackErrors(errs...)
}

// EvaluateFinal finishes the statistics of dynamic selections after the
// last frame and runs the Final hooks of the methods in use. When nframes
// is not positive, the number of evaluated frames is used.
func (c *Collection) EvaluateFinal(nframes int) error {
	for _, s := range c.sels {
		if !s.compiled || !s.dynamic {
			continue
		}
		n := nframes
		if n <= 0 {
			n = s.frames
		}
		if n > 0 {
			s.avg = float64(s.total) / float64(n)
		}
		s.final = true
	}
	var errs []error
	for _, m := range c.finals {
		if err := m.Final(nframes); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
		}
	}
	return diag.PackErrors(errs...)
}

func (ev *evaluator) resetMemo(ms *memo) {
	e := &ev.c.elems[ms.subexpr]
	n := len(e.gmax)
	ms.valid = false
	ms.ints, ms.numbers, ms.strs, ms.pos = nil, nil, nil, nil
	switch e.typ {
	case method.Group:
		ms.ints = ev.pool.Indices(n).Get()
	case method.Number:
		if !e.perAtom {
			n = 1
		}
		ms.numbers = ev.pool.Numbers(n).Get()
	case method.String:
		if !e.perAtom {
			n = 1
		}
		ms.strs = ev.pool.Strings(n).Get()
	case method.Position:
		ms.pos = ev.pool.Positions(len(ev.c.universe)).Get()
	}
}

func (ev *evaluator) evalRoot(s *Selection) error {
	c := ev.c
	root := &c.elems[s.root]
	child := &c.elems[root.children[0]]
	var res []int
	switch {
	case child.kind == kConst && child.order != nil:
		res = child.order
	case child.kind == kConst:
		res = child.group
	default:
		v, err := ev.eval(root.children[0], root.gmax)
		if err != nil {
			return err
		}
		res = v.Indices
	}

	var positions []topo.Vec3
	switch calc := root.calc; {
	case calc == nil:
		positions = method.Coordinates(&ev.ctx, res)
	case calc.IsDynamic():
		if err := calc.Compute(res); err != nil {
			return err
		}
		positions = calc.Positions()
	default:
		positions = calc.Positions()
	}
	mask := ev.pool.Flags(c.natoms).Get()
	for _, i := range res {
		mask[i] = true
	}

	s.indices = append(s.indices[:0], res...)
	s.positions = append(s.positions[:0], positions...)
	s.mask = append(s.mask[:0], mask...)
	if s.dynamic {
		s.frames++
		s.total += len(res)
	}
	return nil
}

// alloc allocates the result of e for g.
func (ev *evaluator) alloc(e *element, g []int) method.Value {
	v := method.Value{Type: e.typ, Scalar: !e.perAtom}
	n := len(g)
	if v.Scalar {
		n = 1
	}
	switch e.typ {
	case method.Group:
		v.Indices = ev.pool.Indices(len(g)).Get()
	case method.Number:
		v.Numbers = ev.pool.Numbers(n).Get()
	case method.String:
		v.Strings = ev.pool.Strings(n).Get()
	}
	return v
}

// gmax returns the atoms an independent operand is evaluated on.
func (ev *evaluator) gmax(id elemID) []int {
	if ev.static {
		return ev.c.universe
	}
	return ev.c.elems[id].gmax
}

func (ev *evaluator) eval(id elemID, g []int) (method.Value, error) {
	e := &ev.c.elems[id]
	if ev.trace {
		logger.Printf("%*s%s %q on %d atoms", ev.depth*2, "", e.kind, e.text, len(g))
		ev.depth++
		defer func() { ev.depth-- }()
	}
	switch e.kind {
	case kConst:
		return ev.evalConst(e, g), nil
	case kBool:
		return ev.evalBool(e, g)
	case kArith:
		return ev.evalArith(e, g)
	case kCompare:
		return ev.evalCompare(e, g)
	case kMatch:
		return ev.evalMatch(e, g)
	case kMethod:
		return ev.evalMethod(e, g)
	case kPosition:
		return ev.evalPosition(e)
	case kSubexprRef:
		return ev.evalSubexprRef(e, g)
	}
	return method.Value{}, fmt.Errorf("cannot evaluate %s element", e.kind)
}

func (ev *evaluator) evalConst(e *element, g []int) method.Value {
	switch e.typ {
	case method.Group:
		out := ev.pool.Indices(min(len(g), len(e.group))).Get()
		return method.Value{Type: method.Group, Indices: intersectInto(out, g, e.group)}
	case method.Number:
		return method.Value{Type: method.Number, Numbers: e.numbers, Scalar: true}
	case method.String:
		return method.Value{Type: method.String, Strings: e.strs, Scalar: true}
	case method.Position:
		return method.Value{Type: method.Position, Positions: e.positions}
	}
	return method.Value{Type: e.typ, Keyword: e.keyword}
}

func (ev *evaluator) evalBool(e *element, g []int) (method.Value, error) {
	out := ev.pool.Indices(len(g)).Get()
	m := ev.pool.Mark()
	defer ev.pool.Release(m)
	var res []int
	switch e.op {
	case "and":
		cur := g
		for _, ch := range e.children {
			if len(cur) == 0 {
				break
			}
			v, err := ev.eval(ch, cur)
			if err != nil {
				return method.Value{}, err
			}
			cur = v.Indices
		}
		res = out[:copy(out, cur)]
	case "or":
		rest := g
		for _, ch := range e.children {
			if len(rest) == 0 {
				break
			}
			v, err := ev.eval(ch, rest)
			if err != nil {
				return method.Value{}, err
			}
			rest = minusInto(ev.pool.Indices(len(rest)).Get(), rest, v.Indices)
		}
		res = minusInto(out, g, rest)
	case "xor":
		a, err := ev.eval(e.children[0], g)
		if err != nil {
			return method.Value{}, err
		}
		b, err := ev.eval(e.children[1], g)
		if err != nil {
			return method.Value{}, err
		}
		res = xorInto(out, g, a.Indices, b.Indices)
	case "not":
		v, err := ev.eval(e.children[0], g)
		if err != nil {
			return method.Value{}, err
		}
		res = minusInto(out, g, v.Indices)
	}
	return method.Value{Type: method.Group, Indices: res}, nil
}

// children evaluates all children of e on g.
func (ev *evaluator) children(e *element, g []int) ([]method.Value, error) {
	vals := make([]method.Value, len(e.children))
	for i, ch := range e.children {
		v, err := ev.eval(ch, g)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (ev *evaluator) evalArith(e *element, g []int) (method.Value, error) {
	out := ev.alloc(e, g)
	m := ev.pool.Mark()
	defer ev.pool.Release(m)
	vals, err := ev.children(e, g)
	if err != nil {
		return method.Value{}, err
	}
	for i := range out.Numbers {
		l := vals[0].Number(i)
		if e.op == "neg" {
			out.Numbers[i] = -l
			continue
		}
		r := vals[1].Number(i)
		switch e.op {
		case "+":
			out.Numbers[i] = l + r
		case "-":
			out.Numbers[i] = l - r
		case "*":
			out.Numbers[i] = l * r
		case "/":
			out.Numbers[i] = l / r
		case "^":
			out.Numbers[i] = math.Pow(l, r)
		}
	}
	return out, nil
}

func compareNumbers(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "==":
		return l == r
	case "!=":
		return l != r
	}
	return false
}

func (ev *evaluator) evalCompare(e *element, g []int) (method.Value, error) {
	out := ev.pool.Indices(len(g)).Get()
	m := ev.pool.Mark()
	defer ev.pool.Release(m)
	vals, err := ev.children(e, g)
	if err != nil {
		return method.Value{}, err
	}
	n := 0
	for i, a := range g {
		var ok bool
		switch {
		case e.op == "in":
			x := vals[0].Number(i)
			for _, r := range e.ranges {
				if x >= r[0] && x <= r[1] {
					ok = true
					break
				}
			}
		case vals[0].Type == method.String:
			ok = (vals[0].Str(i) == vals[1].Str(i)) == (e.op == "==")
		default:
			ok = compareNumbers(e.op, vals[0].Number(i), vals[1].Number(i))
		}
		if ok {
			out[n] = a
			n++
		}
	}
	return method.Value{Type: method.Group, Indices: out[:n]}, nil
}

func (ev *evaluator) evalMatch(e *element, g []int) (method.Value, error) {
	out := ev.pool.Indices(len(g)).Get()
	m := ev.pool.Mark()
	defer ev.pool.Release(m)
	v, err := ev.eval(e.children[0], g)
	if err != nil {
		return method.Value{}, err
	}
	n := 0
	for i, a := range g {
		s := v.Str(i)
		for _, p := range e.patterns {
			if p.match(s) {
				out[n] = a
				n++
				break
			}
		}
	}
	return method.Value{Type: method.Group, Indices: out[:n]}, nil
}

func (ev *evaluator) evalMethod(e *element, g []int) (method.Value, error) {
	out := ev.alloc(e, g)
	m := ev.pool.Mark()
	defer ev.pool.Release(m)
	args := make([]method.Value, len(e.children))
	for i, ch := range e.children {
		var (
			v   method.Value
			err error
		)
		switch e.params[i].Type {
		case method.Group, method.Position:
			v, err = ev.eval(ch, ev.gmax(ch))
		default:
			v, err = ev.eval(ch, g)
		}
		if err != nil {
			return method.Value{}, err
		}
		args[i] = v
	}
	saved := ev.ctx.Ref
	ev.ctx.Ref = e.refCalc
	v, err := e.method.Eval(&ev.ctx, g, args)
	ev.ctx.Ref = saved
	if err != nil {
		return method.Value{}, err
	}
	switch e.typ {
	case method.Group:
		if ev.c.debug >= DebugFull && !isSubsequence(v.Indices, g) {
			return method.Value{}, fmt.Errorf("%s returned atoms it was not given", e.method.Name)
		}
		out.Indices = out.Indices[:copy(out.Indices, v.Indices)]
	case method.Number:
		if v.Scalar {
			for i := range out.Numbers {
				out.Numbers[i] = v.Numbers[0]
			}
		} else if len(v.Numbers) != len(out.Numbers) {
			return method.Value{}, fmt.Errorf("%s returned %d values for %d atoms",
				e.method.Name, len(v.Numbers), len(out.Numbers))
		} else {
			copy(out.Numbers, v.Numbers)
		}
	case method.String:
		if v.Scalar {
			for i := range out.Strings {
				out.Strings[i] = v.Strings[0]
			}
		} else if len(v.Strings) != len(out.Strings) {
			return method.Value{}, fmt.Errorf("%s returned %d values for %d atoms",
				e.method.Name, len(v.Strings), len(out.Strings))
		} else {
			copy(out.Strings, v.Strings)
		}
	}
	return out, nil
}

func (ev *evaluator) evalPosition(e *element) (method.Value, error) {
	g := ev.gmax(e.children[0])
	if e.calc == nil {
		out := ev.pool.Positions(len(g)).Get()
		m := ev.pool.Mark()
		defer ev.pool.Release(m)
		v, err := ev.eval(e.children[0], g)
		if err != nil {
			return method.Value{}, err
		}
		n := copy(out, method.Coordinates(&ev.ctx, v.Indices))
		return method.Value{Type: method.Position, Positions: out[:n]}, nil
	}
	if e.calc.IsDynamic() && !e.calc.IsCurrent() {
		m := ev.pool.Mark()
		defer ev.pool.Release(m)
		v, err := ev.eval(e.children[0], g)
		if err != nil {
			return method.Value{}, err
		}
		if err := e.calc.Compute(v.Indices); err != nil {
			return method.Value{}, err
		}
	}
	return method.Value{Type: method.Position, Positions: e.calc.Positions()}, nil
}

func (ev *evaluator) evalSubexprRef(e *element, g []int) (method.Value, error) {
	t := &ev.c.elems[e.target]
	body := &ev.c.elems[t.children[0]]
	if body.kind == kConst || ev.static || t.memo < 0 {
		return ev.eval(t.children[0], g)
	}
	ms := &ev.c.memos[t.memo]
	if !ms.valid {
		if err := ev.fillMemo(ms, t); err != nil {
			return method.Value{}, err
		}
	}
	switch {
	case t.typ == method.Group:
		out := ev.pool.Indices(len(g)).Get()
		return method.Value{Type: method.Group, Indices: intersectInto(out, g, ms.val.Indices)}, nil
	case t.typ == method.Position || !t.perAtom:
		return ms.val, nil
	}
	// Pick the values of g out of the values for gmax.
	out := ev.alloc(t, g)
	j := 0
	for i, a := range g {
		for t.gmax[j] != a {
			j++
		}
		if t.typ == method.Number {
			out.Numbers[i] = ms.val.Numbers[j]
		} else {
			out.Strings[i] = ms.val.Strings[j]
		}
	}
	return out, nil
}

func (ev *evaluator) fillMemo(ms *memo, t *element) error {
	m := ev.pool.Mark()
	defer ev.pool.Release(m)
	v, err := ev.eval(t.children[0], t.gmax)
	if err != nil {
		return err
	}
	ms.val = method.Value{Type: v.Type, Scalar: v.Scalar}
	switch v.Type {
	case method.Group:
		ms.val.Indices = ms.ints[:copy(ms.ints, v.Indices)]
	case method.Number:
		ms.val.Numbers = ms.numbers[:copy(ms.numbers, v.Numbers)]
	case method.String:
		ms.val.Strings = ms.strs[:copy(ms.strs, v.Strings)]
	case method.Position:
		if len(v.Positions) > len(ms.pos) {
			ms.pos = make([]topo.Vec3, len(v.Positions))
		}
		ms.val.Positions = ms.pos[:copy(ms.pos, v.Positions)]
	}
	ms.valid = true
	return nil
}
