package selection

import (
	"fmt"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/parse"
	"src.sel.sh/pkg/poscalc"
	"src.sel.sh/pkg/symtab"
	"src.sel.sh/pkg/topo"
)

// builder turns the commands of one parsed chunk into elements. Elements
// are appended to the arena of the collection right away; everything else
// is only added by commit, so that a chunk with errors leaves no trace.
type builder struct {
	c    *Collection
	src  *parse.Source
	errs []error
	sels []*Selection
	// Variables defined by this chunk, in order.
	vars    map[string]elemID
	varList []string
}

func (c *Collection) newBuilder(src *parse.Source) *builder {
	return &builder{c: c, src: src, vars: make(map[string]elemID)}
}

func (b *builder) chunk(ch *parse.Chunk) {
	for _, cmd := range ch.Commands {
		switch cmd := cmd.(type) {
		case *parse.Assign:
			b.assign(cmd)
		case *parse.Select:
			b.selection(cmd)
		}
	}
}

func (b *builder) commit() {
	c := b.c
	for _, name := range b.varList {
		id := b.vars[name]
		c.syms.AddVariable(name, int(id))
		c.subexprs = append(c.subexprs, id)
		key := c.elems[id].key
		if _, ok := c.shared[key]; !ok {
			c.shared[key] = id
		}
	}
	c.sels = append(c.sels, b.sels...)
}

func (b *builder) add(e element) elemID {
	b.c.elems = append(b.c.elems, e)
	return elemID(len(b.c.elems) - 1)
}

func (b *builder) base(n parse.Node, k kind) element {
	return element{
		kind: k, src: b.src, rng: n.Range(), text: n.SourceText(),
		key: parse.Format(n), target: noElem, memo: -1,
	}
}

func (b *builder) errorf(n diag.Ranger, format string, args ...any) {
	b.errs = append(b.errs,
		diag.NewError[parse.SyntaxErrorTag](b.src.Name, b.src.Code, n, format, args...))
}

func (b *builder) typeErrorf(n diag.Ranger, format string, args ...any) {
	b.errs = append(b.errs,
		diag.NewError[TypeTag](b.src.Name, b.src.Code, n, format, args...))
}

func (b *builder) assign(a *parse.Assign) {
	if s := b.c.syms.Lookup(a.Name); s != nil {
		b.errorf(a.NameRange, "variable %s is already defined", a.Name)
		return
	}
	if _, ok := b.vars[a.Name]; ok {
		b.errorf(a.NameRange, "variable %s is already defined", a.Name)
		return
	}
	body := b.expr(a.Expr)
	e := b.base(a, kSubexpr)
	e.name = a.Name
	e.key = b.c.elems[body].key
	e.children = []elemID{body}
	id := b.add(e)
	b.vars[a.Name] = id
	b.varList = append(b.varList, a.Name)
}

func (b *builder) selection(sel *parse.Select) {
	expr := parse.Unparen(sel.Expr)
	s := &Selection{text: sel.Expr.SourceText(), name: sel.Expr.SourceText()}
	if sel.HasName {
		s.name = sel.Name
	}
	root := b.base(sel, kRoot)
	if pe, ok := expr.(*parse.PosExpr); ok {
		spec, err := poscalc.ParseSpec(pe.Type)
		if err != nil {
			b.errorf(pe, "%v", err)
			return
		}
		root.spec = spec
		s.posType, s.explicitPos = spec, true
		expr = pe.Operand
	}
	root.children = []elemID{b.groupExpr(expr)}
	root.sel = s
	s.root = b.add(root)
	b.sels = append(b.sels, s)
}

// groupExpr builds n where a selection is expected. There, a string or an
// integer stands for an index group.
func (b *builder) groupExpr(n parse.Expr) elemID {
	switch n := parse.Unparen(n).(type) {
	case *parse.Str:
		e := b.base(n, kGroupRef)
		e.groupName = n.Value
		e.key = "group " + e.key
		return b.add(e)
	case *parse.Number:
		if n.IsInt {
			if n.Value > parse.MaxOrdinal {
				b.errorf(n, "group number %s is too large", n.SourceText())
				return b.expr(n)
			}
			e := b.base(n, kGroupRef)
			e.ordinal, e.byOrdinal = int(n.Value), true
			e.key = "group " + e.key
			return b.add(e)
		}
	}
	return b.expr(n)
}

func (b *builder) expr(n parse.Expr) elemID {
	switch n := n.(type) {
	case *parse.Paren:
		return b.expr(n.Expr)
	case *parse.Bool:
		e := b.base(n, kBool)
		e.op = n.Op
		e.children = []elemID{b.groupExpr(n.Left), b.groupExpr(n.Right)}
		return b.add(e)
	case *parse.Not:
		e := b.base(n, kBool)
		e.op = "not"
		e.children = []elemID{b.groupExpr(n.Operand)}
		return b.add(e)
	case *parse.Arith:
		e := b.base(n, kArith)
		e.op = n.Op
		e.children = []elemID{b.expr(n.Left), b.expr(n.Right)}
		return b.add(e)
	case *parse.Neg:
		e := b.base(n, kArith)
		e.op = "neg"
		e.children = []elemID{b.expr(n.Operand)}
		return b.add(e)
	case *parse.Compare:
		e := b.base(n, kCompare)
		e.op = n.Op
		e.children = []elemID{b.expr(n.Left), b.expr(n.Right)}
		return b.add(e)
	case *parse.Number:
		e := b.base(n, kConst)
		e.typ, e.numbers = method.Number, []float64{n.Value}
		return b.add(e)
	case *parse.Str:
		e := b.base(n, kConst)
		e.typ, e.strs = method.String, []string{n.Value}
		return b.add(e)
	case *parse.Vector:
		e := b.base(n, kConst)
		var v topo.Vec3
		for i, x := range n.Elems {
			f, ok := constNumber(x)
			if !ok {
				b.errorf(x, "vector components must be numbers")
			}
			v[i] = f
		}
		e.typ, e.positions = method.Position, []topo.Vec3{v}
		return b.add(e)
	case *parse.All:
		e := b.base(n, kConst)
		e.typ = method.Group
		e.universe = !n.None
		return b.add(e)
	case *parse.GroupRef:
		e := b.base(n, kGroupRef)
		e.groupName, e.ordinal, e.byOrdinal = n.Name, n.Ordinal, n.ByOrdinal
		return b.add(e)
	case *parse.PosExpr:
		spec, err := poscalc.ParseSpec(n.Type)
		if err != nil {
			b.errorf(n, "%v", err)
		}
		e := b.base(n, kPosition)
		e.spec = spec
		e.children = []elemID{b.groupExpr(n.Operand)}
		return b.add(e)
	case *parse.Keyword:
		return b.keyword(n)
	case *parse.MethodCall:
		return b.methodCall(n)
	case *parse.Ident:
		e := b.base(n, kVarRef)
		e.name = n.Name
		if id, ok := b.vars[n.Name]; ok {
			e.target = id
		} else if s := b.c.syms.Lookup(n.Name); s != nil && s.Kind == symtab.Variable {
			e.target = elemID(s.Var)
		}
		return b.add(e)
	}
	panic(fmt.Sprintf("unexpected expression %T", n))
}

// constNumber evaluates a literal number, possibly negated.
func constNumber(n parse.Expr) (float64, bool) {
	switch n := parse.Unparen(n).(type) {
	case *parse.Number:
		return n.Value, true
	case *parse.Neg:
		v, ok := constNumber(n.Operand)
		return -v, ok
	}
	return 0, false
}

func (b *builder) lookupMethod(name string) *method.Method {
	s := b.c.syms.Lookup(name)
	if s == nil || s.Method == nil {
		panic(fmt.Sprintf("%s is not a method", name))
	}
	return s.Method
}

// keyword builds a bare keyword, or a keyword with values. Values of numeric
// keywords become a comparison against ranges; values of string keywords
// become a match against patterns.
func (b *builder) keyword(n *parse.Keyword) elemID {
	m := b.lookupMethod(n.Name)
	kw := b.base(n, kMethod)
	kw.method, kw.typ, kw.perAtom = m, m.Type, true
	kw.key, kw.text = n.Name, n.Name
	if len(n.Values) == 0 {
		return b.add(kw)
	}
	kwID := b.add(kw)
	switch m.Type {
	case method.Number:
		e := b.base(n, kCompare)
		e.op = "in"
		for _, v := range n.Values {
			switch v.Kind {
			case parse.ValNumber:
				e.ranges = append(e.ranges, [2]float64{v.Lo, v.Lo})
			case parse.ValRange:
				lo, hi := v.Lo, v.Hi
				if lo > hi {
					lo, hi = hi, lo
				}
				e.ranges = append(e.ranges, [2]float64{lo, hi})
			default:
				b.typeErrorf(v, "%s takes numbers, got %q", n.Name, v.SourceText())
			}
		}
		e.children = []elemID{kwID}
		return b.add(e)
	default:
		e := b.base(n, kMatch)
		for _, v := range n.Values {
			p, err := newPattern(v)
			if err != nil {
				b.typeErrorf(v, "invalid regular expression: %v", err)
				continue
			}
			e.patterns = append(e.patterns, p)
		}
		e.children = []elemID{kwID}
		return b.add(e)
	}
}

func (b *builder) methodCall(n *parse.MethodCall) elemID {
	m := b.lookupMethod(n.Name)
	e := b.base(n, kMethod)
	e.method, e.params, e.typ = m, m.Params, m.Type
	for i, arg := range n.Args {
		switch m.Params[i].Type {
		case method.KeywordName:
			a := b.base(arg, kConst)
			a.typ = method.KeywordName
			a.keyword = b.lookupMethod(arg.Keyword)
			a.key = arg.Keyword
			e.children = append(e.children, b.add(a))
		case method.Group, method.Position:
			e.children = append(e.children, b.groupExpr(arg.Expr))
		default:
			e.children = append(e.children, b.expr(arg.Expr))
		}
	}
	return b.add(e)
}
