package selection

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/mempool"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/poscalc"
	"src.sel.sh/pkg/topo"
)

// Compilation runs in passes over the element trees:
//
//  1. resolve group and variable references;
//  2. check types and whether a topology is needed;
//  3. share repeated subexpressions;
//  4. fold static parts into constants;
//  5. flatten and reorder boolean operands, cheapest first;
//  6. compute gmax, the largest set each element can be evaluated on;
//  7. register position calculations;
//  8. reserve pool memory.
//
// Passes 1 to 3 only touch the selection being compiled. Passes 4 to 8 need
// the number of atoms and are deferred to the first frame when it is not
// known yet; passes 6 to 8 always cover every compiled selection.

// Compile compiles the selections that are not compiled yet. A selection
// with errors is reported and left uncompiled; the others are still
// compiled. A missing topology or a dependency cycle between position
// calculations aborts the whole compilation.
func (c *Collection) Compile() error {
	var errs []error
	for _, s := range c.sels {
		if s.compiled || s.frontDone {
			continue
		}
		err := c.compileFront(s)
		if isAbort(err) {
			return diag.PackErrors(append(errs, err)...)
		}
		errs = append(errs, err)
	}
	if c.natoms > 0 {
		errs = append(errs, c.finish())
	} else {
		c.pending = true
	}
	return diag.PackErrors(errs...)
}

func isAbort(err error) bool {
	var topErr *TopologyRequiredError
	var cycleErr *poscalc.CycleError
	return errors.As(err, &topErr) || errors.As(err, &cycleErr)
}

func (c *Collection) compileFront(s *Selection) error {
	var errs []error
	c.resolve(s.root, &errs)
	if len(errs) > 0 {
		return diag.PackErrors(errs...)
	}
	if err := c.check(s.root, &errs); err != nil {
		return err
	}
	if len(errs) > 0 {
		return diag.PackErrors(errs...)
	}
	c.share(s.root)
	s.frontDone = true
	if !s.explicitPos {
		s.posType = c.outPos
		c.elems[s.root].spec = c.outPos
	}
	return nil
}

// Pass 1.

func (c *Collection) resolve(id elemID, errs *[]error) {
	e := &c.elems[id]
	switch e.kind {
	case kGroupRef:
		if c.groups == nil {
			*errs = append(*errs, newError[UnresolvedReferenceTag](e,
				"no index groups are available"))
			return
		}
		g, err := c.groups.Find(e.groupName)
		if e.byOrdinal {
			g, err = c.groups.At(e.ordinal)
		}
		if err != nil {
			*errs = append(*errs, newError[UnresolvedReferenceTag](e, "%v", err))
			return
		}
		e.kind, e.typ = kConst, method.Group
		e.order = slices.Clone(g.Indices)
		e.group = sortedUnique(g.Indices)
	case kVarRef:
		if e.target == noElem {
			*errs = append(*errs, newError[UnresolvedReferenceTag](e,
				"undefined variable %s", e.name))
			return
		}
		e.kind = kSubexprRef
		c.resolveSubexpr(e.target, errs)
	case kSubexprRef:
		c.resolveSubexpr(e.target, errs)
	default:
		for _, ch := range e.children {
			c.resolve(ch, errs)
		}
	}
}

func (c *Collection) resolveSubexpr(id elemID, errs *[]error) {
	if c.elems[id].resolved {
		return
	}
	n := len(*errs)
	c.resolve(c.elems[id].children[0], errs)
	c.elems[id].resolved = len(*errs) == n
}

// Pass 2.

// check sets the type and attributes of every element. Type errors are
// appended to errs; a TopologyRequiredError is returned.
func (c *Collection) check(id elemID, errs *[]error) error {
	c.checkElem(id, errs)
	if c.top == nil && c.elems[id].needsTop {
		culprit := c.topologyCulprit(id)
		e := &c.elems[culprit]
		return newError[TopologyRequiredTag](e, "%s requires a topology", e.text)
	}
	return nil
}

func (c *Collection) topologyCulprit(id elemID) elemID {
	for {
		e := &c.elems[id]
		if e.kind == kSubexprRef {
			id = c.elems[e.target].children[0]
			continue
		}
		next := noElem
		for _, ch := range e.children {
			if c.elems[ch].needsTop {
				next = ch
				break
			}
		}
		if next == noElem {
			return id
		}
		id = next
	}
}

func (c *Collection) typeErrorf(errs *[]error, id elemID, format string, args ...any) {
	*errs = append(*errs, newError[TypeTag](&c.elems[id], format, args...))
}

// inherit ors the dynamic and topology flags of the children into e.
func (c *Collection) inherit(id elemID) {
	e := &c.elems[id]
	for _, ch := range e.children {
		che := &c.elems[ch]
		e.dynamic = e.dynamic || che.dynamic
		e.needsTop = e.needsTop || che.needsTop
	}
}

func (c *Collection) checkElem(id elemID, errs *[]error) {
	if c.elems[id].checked {
		return
	}
	nerrs := len(*errs)
	for _, ch := range c.elems[id].children {
		c.checkElem(ch, errs)
	}
	if len(*errs) > nerrs {
		return
	}
	c.inherit(id)
	e := &c.elems[id]
	child := func(i int) *element { return &c.elems[e.children[i]] }
	switch e.kind {
	case kConst:
		if e.keyword != nil {
			e.dynamic = e.keyword.Flags&(method.Dynamic|method.RefPositions) != 0
			e.needsTop = e.keyword.Flags&method.NeedsTopology != 0
		}
	case kBool:
		e.typ = method.Group
		for i := range e.children {
			if !child(i).isGroup() {
				c.typeErrorf(errs, e.children[i], "operand of %s must be a selection, not a %s",
					e.op, child(i).typ)
			}
		}
	case kArith:
		e.typ = method.Number
		for i := range e.children {
			if child(i).typ != method.Number {
				c.typeErrorf(errs, e.children[i], "operand of %s must be a number, not a %s",
					e.op, child(i).typ)
			}
			e.perAtom = e.perAtom || child(i).perAtom
		}
	case kCompare:
		e.typ = method.Group
		if e.op == "in" {
			break
		}
		l, r := child(0), child(1)
		switch {
		case l.typ == method.Number && r.typ == method.Number:
		case l.typ == method.String && r.typ == method.String && (e.op == "==" || e.op == "!="):
		default:
			c.typeErrorf(errs, id, "cannot compare %s %s %s", l.typ, e.op, r.typ)
		}
	case kMatch:
		e.typ = method.Group
		for _, p := range e.patterns {
			if p.kind != globPattern {
				continue
			}
			if _, err := p.compileGlob(); err != nil {
				c.typeErrorf(errs, id, "invalid pattern %q: %v", p.value, err)
			}
		}
	case kMethod:
		c.checkMethod(id, errs)
	case kPosition:
		e.typ = method.Position
		e.dynamic = true
		if !child(0).isGroup() {
			c.typeErrorf(errs, e.children[0], "positions can only be computed for a selection, not a %s",
				child(0).typ)
		}
		spec := e.spec
		if e.refType {
			spec = c.refPos
		}
		e.needsTop = e.needsTop || spec.RequiresTopology()
	case kSubexpr:
		body := child(0)
		e.typ, e.perAtom = body.typ, body.perAtom
	case kSubexprRef:
		c.checkElem(e.target, errs)
		if len(*errs) > nerrs {
			return
		}
		e = &c.elems[id]
		t := &c.elems[e.target]
		e.typ, e.perAtom, e.dynamic, e.needsTop = t.typ, t.perAtom, t.dynamic, t.needsTop
	case kRoot:
		e.typ = method.Group
		if !child(0).isGroup() {
			c.typeErrorf(errs, e.children[0], "a selection must select atoms, not compute a %s",
				child(0).typ)
		}
		spec := e.sel.posType
		if !e.sel.explicitPos {
			spec = c.outPos
		}
		e.needsTop = e.needsTop || spec.RequiresTopology()
	}
	if len(*errs) == nerrs {
		c.elems[id].checked = true
	}
}

func (c *Collection) checkMethod(id elemID, errs *[]error) {
	e := &c.elems[id]
	m := e.method
	e.typ = m.Type
	e.perAtom = m.Type != method.Group
	e.dynamic = e.dynamic || m.Flags&(method.Dynamic|method.RefPositions) != 0
	e.needsTop = e.needsTop || m.Flags&method.NeedsTopology != 0 ||
		(m.Flags&method.RefPositions != 0 && c.refPos.RequiresTopology())
	for i, p := range e.params {
		ch := &c.elems[e.children[i]]
		switch p.Type {
		case method.Number:
			if ch.typ != method.Number {
				c.typeErrorf(errs, e.children[i], "%s: %s must be a number, not a %s",
					m.Name, paramName(p), ch.typ)
			} else if p.Scalar && ch.perAtom {
				c.typeErrorf(errs, e.children[i], "%s: %s must be a single number",
					m.Name, paramName(p))
			}
		case method.String:
			if ch.typ != method.String {
				c.typeErrorf(errs, e.children[i], "%s: %s must be a string, not a %s",
					m.Name, paramName(p), ch.typ)
			}
		case method.Group:
			if !ch.isGroup() {
				c.typeErrorf(errs, e.children[i], "%s: %s must be a selection, not a %s",
					m.Name, paramName(p), ch.typ)
			}
		case method.Position:
			switch ch.typ {
			case method.Position:
			case method.Group:
				c.wrapPositions(id, i)
				e = &c.elems[id]
			default:
				c.typeErrorf(errs, e.children[i], "%s: %s must be positions, not a %s",
					m.Name, paramName(p), ch.typ)
			}
		}
	}
}

func paramName(p method.Param) string {
	if p.Name == "" {
		return "the first argument"
	}
	return fmt.Sprintf("the argument after %q", p.Name)
}

// wrapPositions replaces the i-th child of id, a selection, with the
// reference positions of that selection.
func (c *Collection) wrapPositions(id elemID, i int) {
	chID := c.elems[id].children[i]
	ch := c.elems[chID]
	w := element{
		kind: kPosition, typ: method.Position, refType: true,
		src: ch.src, rng: ch.rng, text: ch.text,
		key:      "(reference) of " + ch.key,
		children: []elemID{chID},
		dynamic:  true, needsTop: ch.needsTop || c.refPos.RequiresTopology(),
		checked: true, target: noElem, memo: -1,
	}
	c.elems = append(c.elems, w)
	c.elems[id].children[i] = elemID(len(c.elems) - 1)
}

// Pass 3.

func shareable(e *element) bool {
	switch e.kind {
	case kBool, kArith, kCompare, kMatch, kPosition:
		return true
	case kMethod:
		return !e.method.IsKeyword()
	}
	return false
}

// share replaces subtrees of root that repeat, in root or in any
// subexpression known to the collection, by references to one shared
// subexpression.
func (c *Collection) share(root elemID) {
	for {
		counts := make(map[string]int)
		c.countKeys(root, counts)
		if !c.shareOnce(root, counts) {
			return
		}
	}
}

func (c *Collection) countKeys(id elemID, counts map[string]int) {
	e := &c.elems[id]
	if shareable(e) {
		counts[e.key]++
	}
	for _, ch := range e.children {
		c.countKeys(ch, counts)
	}
}

// shareOnce replaces every subtree with a known key by a reference, and
// creates at most one new subexpression. It reports whether it did.
func (c *Collection) shareOnce(id elemID, counts map[string]int) bool {
	for i := range c.elems[id].children {
		chID := c.elems[id].children[i]
		ch := &c.elems[chID]
		if shareable(ch) {
			if target, ok := c.shared[ch.key]; ok {
				c.elems[id].children[i] = c.newRef(chID, target)
				continue
			}
			if counts[ch.key] >= 2 {
				s := c.newSubexpr(chID)
				c.elems[id].children[i] = c.newRef(chID, s)
				return true
			}
		}
		if c.shareOnce(chID, counts) {
			return true
		}
	}
	return false
}

func (c *Collection) newSubexpr(body elemID) elemID {
	b := c.elems[body]
	s := element{
		kind: kSubexpr, typ: b.typ, perAtom: b.perAtom, dynamic: b.dynamic,
		needsTop: b.needsTop, src: b.src, rng: b.rng, text: b.text, key: b.key,
		children: []elemID{body}, resolved: true, checked: true,
		target: noElem, memo: -1,
	}
	c.elems = append(c.elems, s)
	id := elemID(len(c.elems) - 1)
	c.shared[b.key] = id
	c.subexprs = append(c.subexprs, id)
	return id
}

func (c *Collection) newRef(replaced, target elemID) elemID {
	r := c.elems[replaced]
	t := &c.elems[target]
	ref := element{
		kind: kSubexprRef, typ: t.typ, perAtom: t.perAtom, dynamic: t.dynamic,
		needsTop: t.needsTop, src: r.src, rng: r.rng, text: r.text, key: r.key,
		target: target, resolved: true, checked: true, memo: -1,
	}
	c.elems = append(c.elems, ref)
	return elemID(len(c.elems) - 1)
}

// Passes 4 to 8.

// finish runs the passes that need the number of atoms over every selection
// that went through the first passes.
func (c *Collection) finish() error {
	c.pending = false
	if len(c.universe) != c.natoms {
		c.universe = seq(c.natoms)
	}
	var errs []error
	var roots []*Selection
	for _, s := range c.sels {
		if !s.frontDone {
			continue
		}
		if !s.compiled {
			if err := c.fold(s.root); err != nil {
				s.frontDone = false
				errs = append(errs, err)
				continue
			}
			c.reorder(s.root)
		}
		roots = append(roots, s)
	}
	for _, id := range c.subexprs {
		if c.elems[id].resolved && c.elems[id].checked {
			c.reorder(c.elems[id].children[0])
		}
	}

	for {
		c.assignGmax(roots)
		failed, err := c.bind(roots)
		if err != nil {
			return diag.PackErrors(append(errs, err)...)
		}
		if len(failed) == 0 {
			break
		}
		roots = slices.DeleteFunc(roots, func(s *Selection) bool {
			if err, ok := failed[s]; ok {
				s.frontDone, s.compiled = false, false
				errs = append(errs, err)
				return true
			}
			return false
		})
	}

	for _, s := range roots {
		root := &c.elems[s.root]
		s.compiled = true
		s.dynamic = root.dynamic
		s.maxCount = c.bound(root.children[0], c.universe)
	}
	c.setupMemos(roots)
	c.pool.Reserve(c.size(roots))
	if c.debug >= DebugBasic {
		logger.Printf("compiled %d selections (%s), %d position calculations",
			len(roots), describeRoots(roots), c.reg.Len())
	}
	if c.debug >= DebugCompile {
		w := logger.Writer()
		c.PrintTree(w)
		c.reg.Dump(w)
		logger.Printf("reserved %d bytes of pool memory", c.pool.Reserved().Bytes())
	}
	return diag.PackErrors(errs...)
}

// Pass 4.

func (c *Collection) fold(id elemID) error {
	e := &c.elems[id]
	switch {
	case e.kind == kConst && e.typ == method.Group:
		if e.universe {
			e.group = c.universe
			return nil
		}
		if n := len(e.group); n > 0 && e.group[n-1] >= c.natoms || n > 0 && e.group[0] < 0 {
			return newError[UnresolvedReferenceTag](e,
				"the group contains atom %d, but there are only %d atoms",
				slices.Max(e.group), c.natoms)
		}
		return nil
	case e.kind == kSubexprRef:
		return c.fold(e.target)
	case e.kind == kSubexpr:
		if e.folded {
			return nil
		}
		if err := c.fold(e.children[0]); err != nil {
			return err
		}
		c.elems[id].folded = true
		return nil
	case e.kind != kRoot && e.isGroup() && !e.dynamic && c.foldable(id):
		for _, ch := range e.children {
			if err := c.fold(ch); err != nil {
				return err
			}
		}
		group, err := c.evalStatic(id)
		if err != nil {
			e := &c.elems[id]
			return newError[TypeTag](e, "%v", err)
		}
		e = &c.elems[id]
		*e = element{
			kind: kConst, typ: method.Group, group: group,
			src: e.src, rng: e.rng, text: e.text, key: e.key,
			resolved: true, checked: true, folded: true, target: noElem, memo: -1,
		}
		return nil
	}
	for _, ch := range e.children {
		if err := c.fold(ch); err != nil {
			return err
		}
	}
	return nil
}

// foldable reports whether id can be evaluated before any frame: it may
// only refer to subexpressions that are static groups.
func (c *Collection) foldable(id elemID) bool {
	e := &c.elems[id]
	if e.kind == kSubexprRef {
		t := &c.elems[e.target]
		return !t.dynamic && t.isGroup()
	}
	for _, ch := range e.children {
		if !c.foldable(ch) {
			return false
		}
	}
	return true
}

// evalStatic evaluates a static element over all atoms.
func (c *Collection) evalStatic(id elemID) ([]int, error) {
	pool := mempool.New()
	pool.BeginFrame()
	defer pool.EndFrame()
	ev := c.newEvaluator(pool, &topo.Frame{})
	ev.static = true
	v, err := ev.eval(id, c.universe)
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.Indices), nil
}

// Pass 5.

const (
	costConst = iota
	costStatic
	costDynamic
	costMethod
)

func (c *Collection) cost(id elemID) int {
	e := &c.elems[id]
	switch {
	case e.kind == kConst:
		return costConst
	case !e.dynamic:
		return costStatic
	case c.hasMethod(id):
		return costMethod
	}
	return costDynamic
}

// hasMethod reports whether evaluating id calls a method that is not a
// keyword, or computes positions.
func (c *Collection) hasMethod(id elemID) bool {
	e := &c.elems[id]
	switch e.kind {
	case kMethod:
		if !e.method.IsKeyword() {
			return true
		}
	case kPosition:
		return true
	case kSubexprRef:
		return c.hasMethod(e.target)
	}
	for _, ch := range e.children {
		if c.hasMethod(ch) {
			return true
		}
	}
	return false
}

func (c *Collection) reorder(id elemID) {
	e := &c.elems[id]
	if e.kind == kSubexprRef {
		return
	}
	for _, ch := range e.children {
		c.reorder(ch)
	}
	e = &c.elems[id]
	if e.kind != kBool || (e.op != "and" && e.op != "or") {
		return
	}
	var flat []elemID
	for _, ch := range e.children {
		che := &c.elems[ch]
		if che.kind == kBool && che.op == e.op {
			flat = append(flat, che.children...)
		} else {
			flat = append(flat, ch)
		}
	}
	costs := make(map[elemID]int, len(flat))
	for _, ch := range flat {
		costs[ch] = c.cost(ch)
	}
	slices.SortStableFunc(flat, func(a, b elemID) int { return costs[a] - costs[b] })
	e.children = flat
}

// Pass 6.

// assignGmax computes the gmax of every element reachable from roots.
// Subexpressions get the union of the gmax of their references, so they are
// visited after everything that refers to them.
func (c *Collection) assignGmax(roots []*Selection) {
	for i := range c.elems {
		c.elems[i].gmax = nil
	}
	acc := make(map[elemID][]int)
	for _, s := range roots {
		c.setGmax(s.root, c.universe, acc)
	}
	for _, id := range c.subexprOrder(roots) {
		g, ok := acc[id]
		if !ok {
			continue
		}
		c.elems[id].gmax = g
		c.setGmax(c.elems[id].children[0], g, acc)
	}
}

func (c *Collection) setGmax(id elemID, g []int, acc map[elemID][]int) {
	e := &c.elems[id]
	e.gmax = g
	switch e.kind {
	case kSubexprRef:
		if prev, ok := acc[e.target]; ok {
			acc[e.target] = union(prev, g)
		} else {
			acc[e.target] = g
		}
	case kBool:
		switch e.op {
		case "and":
			cur := g
			for _, ch := range e.children {
				c.setGmax(ch, cur, acc)
				if che := &c.elems[ch]; che.kind == kConst {
					cur = intersect(cur, che.group)
				}
			}
		case "or":
			rest := g
			for _, ch := range e.children {
				c.setGmax(ch, rest, acc)
				if che := &c.elems[ch]; che.kind == kConst {
					rest = minus(rest, che.group)
				}
			}
		default:
			for _, ch := range e.children {
				c.setGmax(ch, g, acc)
			}
		}
	case kMethod:
		for i, ch := range e.children {
			switch e.params[i].Type {
			case method.Group, method.Position:
				c.setGmax(ch, c.universe, acc)
			case method.KeywordName:
			default:
				c.setGmax(ch, g, acc)
			}
		}
	case kPosition:
		c.setGmax(e.children[0], c.universe, acc)
	default:
		for _, ch := range e.children {
			c.setGmax(ch, g, acc)
		}
	}
}

// subexprOrder returns the subexpressions reachable from roots, each before
// the subexpressions its body refers to.
func (c *Collection) subexprOrder(roots []*Selection) []elemID {
	visited := make(map[elemID]bool)
	var post []elemID
	var visit func(id elemID)
	visit = func(id elemID) {
		e := &c.elems[id]
		if e.kind == kSubexprRef {
			if !visited[e.target] {
				visited[e.target] = true
				visit(c.elems[e.target].children[0])
				post = append(post, e.target)
			}
			return
		}
		for _, ch := range e.children {
			visit(ch)
		}
	}
	for _, s := range roots {
		visit(s.root)
	}
	slices.Reverse(post)
	return post
}

// bound returns the largest number of atoms id can select from g.
func (c *Collection) bound(id elemID, g []int) int {
	e := &c.elems[id]
	switch e.kind {
	case kConst:
		if e.order != nil && slices.Equal(g, c.universe) {
			return len(e.order)
		}
		return len(intersect(g, e.group))
	case kSubexprRef:
		t := &c.elems[e.target]
		return min(len(g), c.bound(t.children[0], t.gmax))
	case kBool:
		switch e.op {
		case "and":
			n := len(g)
			for _, ch := range e.children {
				n = min(n, c.bound(ch, c.elems[ch].gmax))
			}
			return n
		case "or":
			n := 0
			for _, ch := range e.children {
				n += c.bound(ch, c.elems[ch].gmax)
			}
			return min(n, len(g))
		}
	}
	return len(g)
}

// Pass 7.

// bind registers the position calculations of roots in a new registry. It
// returns the selections that failed, or an error that aborts compilation.
func (c *Collection) bind(roots []*Selection) (map[*Selection]error, error) {
	c.reg = poscalc.New(c.top)
	failed := make(map[*Selection]error)
	bound := make(map[elemID]bool)
	for _, s := range roots {
		if err := c.bindTree(s.root, bound); err != nil {
			failed[s] = err
		}
	}
	if len(failed) > 0 {
		return failed, nil
	}
	if err := c.reg.Finalize(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *Collection) bindTree(id elemID, bound map[elemID]bool) error {
	e := &c.elems[id]
	if e.kind == kSubexprRef {
		if bound[e.target] {
			return nil
		}
		bound[e.target] = true
		return c.bindTree(c.elems[e.target].children[0], bound)
	}
	for _, ch := range e.children {
		if err := c.bindTree(ch, bound); err != nil {
			return err
		}
	}
	e = &c.elems[id]
	e.calc, e.refCalc = nil, nil
	switch e.kind {
	case kMethod:
		if e.method.Flags&method.RefPositions == 0 || c.refPos == poscalc.Atom || e.gmax == nil {
			return nil
		}
		calc, err := c.reg.Register(c.refPos, poscalc.Static(e.gmax))
		if err != nil {
			return newError[TypeTag](e, "%v", err)
		}
		e.refCalc = calc
	case kPosition:
		spec := e.spec
		if e.refType {
			spec = c.refPos
		}
		calc, err := c.registerFor(spec, e.children[0])
		if err != nil {
			return newError[TypeTag](e, "%v", err)
		}
		e.calc = calc
		if calc != nil && calc.IsDynamic() {
			for _, dep := range c.innerCalcs(e.children[0], nil) {
				c.reg.AddDependency(calc, dep)
			}
		}
	case kRoot:
		calc, err := c.registerFor(e.spec, e.children[0])
		if err != nil {
			return newError[TypeTag](e, "%v", err)
		}
		e.calc = calc
	}
	return nil
}

// registerFor registers the calculation of spec over the atoms selected by
// operand. Atom positions need no calculation.
func (c *Collection) registerFor(spec poscalc.Spec, operand elemID) (*poscalc.Calc, error) {
	if spec == poscalc.Atom {
		return nil, nil
	}
	op := &c.elems[operand]
	if op.kind == kConst {
		atoms := op.group
		if op.order != nil {
			atoms = op.order
		}
		return c.reg.Register(spec, poscalc.Static(atoms))
	}
	return c.reg.Register(spec, poscalc.Dynamic(op.key))
}

// innerCalcs collects the dynamic calculations that evaluating id computes.
func (c *Collection) innerCalcs(id elemID, acc []*poscalc.Calc) []*poscalc.Calc {
	e := &c.elems[id]
	if e.kind == kSubexprRef {
		return c.innerCalcs(c.elems[e.target].children[0], acc)
	}
	if e.calc != nil && e.calc.IsDynamic() {
		acc = append(acc, e.calc)
	}
	for _, ch := range e.children {
		acc = c.innerCalcs(ch, acc)
	}
	return acc
}

// Pass 8.

// outSize is the pool memory the result of id takes.
func (c *Collection) outSize(id elemID) mempool.Sizes {
	e := &c.elems[id]
	n := len(e.gmax)
	switch e.typ {
	case method.Group:
		return mempool.Sizes{Indices: n}
	case method.Number:
		if !e.perAtom {
			n = 1
		}
		return mempool.Sizes{Numbers: n}
	case method.String:
		if !e.perAtom {
			n = 1
		}
		return mempool.Sizes{Strings: n}
	case method.Position:
		if e.kind == kPosition && e.calc == nil {
			return mempool.Sizes{Positions: len(c.elems[e.children[0]].gmax)}
		}
	}
	return mempool.Sizes{}
}

// live is the pool memory in use at the peak of evaluating id, counting
// its own result.
func (c *Collection) live(id elemID) mempool.Sizes {
	e := &c.elems[id]
	own := c.outSize(id)
	if e.kind == kSubexprRef || e.kind == kConst {
		return own
	}
	var acc, peak mempool.Sizes
	for _, ch := range e.children {
		peak = peak.Max(acc.Add(c.live(ch)))
		acc = acc.Add(c.outSize(ch))
	}
	switch e.kind {
	case kBool:
		if e.op == "or" {
			acc = acc.Add(mempool.Sizes{Indices: len(e.gmax) * len(e.children)})
		}
	case kMethod:
		// Scratch of the method and its result before the copy.
		acc = acc.Add(own).Add(own)
	}
	return own.Add(peak.Max(acc))
}

func (c *Collection) size(roots []*Selection) mempool.Sizes {
	var total, peak mempool.Sizes
	for _, s := range roots {
		peak = peak.Max(c.live(s.root))
	}
	for _, id := range c.subexprOrder(roots) {
		e := &c.elems[id]
		if e.memo < 0 {
			continue
		}
		total = total.Add(c.outSize(id)).Add(c.live(e.children[0]))
	}
	total = total.Add(peak).Add(mempool.Sizes{Flags: c.natoms})
	if c.debug >= DebugCompile {
		logger.Printf("pool sizes: %+v", total)
	}
	return total
}

// setupMemos numbers the subexpressions that are evaluated per frame and
// collects the methods with a Final hook.
func (c *Collection) setupMemos(roots []*Selection) {
	c.memos = c.memos[:0]
	for _, id := range c.subexprs {
		c.elems[id].memo = -1
	}
	for _, id := range c.subexprOrder(roots) {
		e := &c.elems[id]
		if e.gmax == nil || c.elems[e.children[0]].kind == kConst {
			continue
		}
		e.memo = len(c.memos)
		c.memos = append(c.memos, memo{subexpr: id})
	}
	c.finals = c.finals[:0]
	seen := make(map[*method.Method]bool)
	var walk func(id elemID)
	walk = func(id elemID) {
		e := &c.elems[id]
		if e.kind == kSubexprRef {
			walk(c.elems[e.target].children[0])
			return
		}
		if e.method != nil && e.method.Final != nil && !seen[e.method] {
			seen[e.method] = true
			c.finals = append(c.finals, e.method)
		}
		for _, ch := range e.children {
			walk(ch)
		}
	}
	for _, s := range roots {
		walk(s.root)
	}
}

func describeRoots(roots []*Selection) string {
	names := make([]string, len(roots))
	for i, s := range roots {
		names[i] = s.name
	}
	return strings.Join(names, ", ")
}
