package selection

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/parse"
	"src.sel.sh/pkg/poscalc"
	"src.sel.sh/pkg/topo"
)

// elemID is an index into the element arena of a Collection.
type elemID int32

const noElem elemID = -1

type kind uint8

const (
	kBool kind = iota
	kArith
	kCompare
	kMatch
	kConst
	kMethod
	kGroupRef
	kVarRef
	kSubexpr
	kSubexprRef
	kPosition
	kRoot
)

var kindNames = [...]string{
	kBool: "BOOL", kArith: "ARITH", kCompare: "CMP", kMatch: "MATCH",
	kConst: "CONST", kMethod: "METHOD", kGroupRef: "GROUPREF", kVarRef: "VARREF",
	kSubexpr: "SUBEXPR", kSubexprRef: "SUBEXPRREF", kPosition: "POS", kRoot: "ROOT",
}

func (k kind) String() string { return kindNames[k] }

// element is a node of the selection tree. The tree is built from the syntax
// tree and then rewritten in place by the compiler. Children are owned; the
// target of a kSubexprRef is not.
type element struct {
	kind kind
	// Operator of kBool, kArith and kCompare elements. Comparisons against
	// keyword values use "in".
	op       string
	typ      method.Type
	dynamic  bool
	perAtom  bool
	src      *parse.Source
	rng      diag.Ranging
	text     string
	key      string
	children []elemID

	// kConst. Groups are kept sorted; order keeps the original order of a
	// group read from an index group.
	group     []int
	order     []int
	universe  bool
	numbers   []float64
	strs      []string
	positions []topo.Vec3
	keyword   *method.Method

	// kGroupRef
	groupName string
	ordinal   int
	byOrdinal bool

	// kVarRef, and the variable name of a kSubexpr.
	name string

	patterns []*pattern
	ranges   [][2]float64

	method *method.Method
	params []method.Param

	// kPosition: when refType is set, the spec is the reference position
	// type of the collection.
	spec    poscalc.Spec
	refType bool
	calc    *poscalc.Calc

	// kSubexprRef
	target elemID

	// kRoot
	sel *Selection

	// Compiler state.
	resolved bool
	checked  bool
	needsTop bool
	folded   bool
	gmax     []int
	refCalc  *poscalc.Calc
	memo     int
}

func (e *element) isGroup() bool { return e.typ == method.Group }

// newError builds a T error pointing at e.
func newError[T diag.ErrorTag](e *element, format string, args ...any) *diag.Error[T] {
	return diag.NewError[T](e.src.Name, e.src.Code, e.rng, format, args...)
}

type patternKind int

const (
	exactPattern patternKind = iota
	globPattern
	regexPattern
)

// pattern is a string keyword value. Globs are compiled on first use.
type pattern struct {
	kind  patternKind
	value string
	re    *regexp.Regexp

	compileOnce sync.Once
	glob        glob.Glob
	compileErr  error
}

func newPattern(v *parse.KeywordValue) (*pattern, error) {
	p := &pattern{value: v.Str}
	switch {
	case v.Kind == parse.ValRegex:
		re, err := regexp.Compile("^(?:" + v.Str + ")$")
		if err != nil {
			return nil, err
		}
		p.kind, p.re = regexPattern, re
	case strings.ContainsAny(v.Str, "*?"):
		p.kind = globPattern
	}
	return p, nil
}

// compileGlob returns the compiled glob, compiling it on first call.
func (p *pattern) compileGlob() (glob.Glob, error) {
	p.compileOnce.Do(func() {
		p.glob, p.compileErr = glob.Compile(p.value)
	})
	return p.glob, p.compileErr
}

func (p *pattern) match(s string) bool {
	switch p.kind {
	case globPattern:
		g, err := p.compileGlob()
		return err == nil && g.Match(s)
	case regexPattern:
		return p.re.MatchString(s)
	}
	return p.value == s
}

func (p *pattern) String() string {
	switch p.kind {
	case regexPattern:
		return fmt.Sprintf("~%q", p.value)
	case globPattern:
		return fmt.Sprintf("%q (glob)", p.value)
	}
	return fmt.Sprintf("%q", p.value)
}

// printTree writes the tree under id, one element per line.
func (c *Collection) printTree(w io.Writer, id elemID, indent string) {
	e := &c.elems[id]
	var sb strings.Builder
	sb.WriteString(indent + e.kind.String())
	if e.op != "" {
		sb.WriteString(" " + e.op)
	}
	switch e.kind {
	case kRoot:
		fmt.Fprintf(&sb, " %q", e.sel.name)
	case kConst:
		switch {
		case e.keyword != nil:
			sb.WriteString(" keyword " + e.keyword.Name)
		case e.universe:
			sb.WriteString(" all")
		case e.typ == method.Group:
			fmt.Fprintf(&sb, " %d atoms", len(e.group))
		case e.typ == method.Number:
			fmt.Fprintf(&sb, " %g", e.numbers[0])
		case e.typ == method.String:
			fmt.Fprintf(&sb, " %q", e.strs[0])
		case e.typ == method.Position:
			fmt.Fprintf(&sb, " %v", e.positions[0])
		}
	case kMethod:
		sb.WriteString(" " + e.method.Name)
	case kMatch:
		for _, p := range e.patterns {
			sb.WriteString(" " + p.String())
		}
	case kGroupRef:
		if e.byOrdinal {
			fmt.Fprintf(&sb, " %d", e.ordinal)
		} else {
			fmt.Fprintf(&sb, " %q", e.groupName)
		}
	case kVarRef:
		sb.WriteString(" " + e.name)
	case kSubexpr:
		fmt.Fprintf(&sb, " %d", id)
		if e.name != "" {
			sb.WriteString(" " + e.name)
		}
	case kSubexprRef:
		fmt.Fprintf(&sb, " -> %d", e.target)
	case kPosition:
		if e.refType {
			sb.WriteString(" (reference)")
		} else {
			sb.WriteString(" " + e.spec.String())
		}
	}
	if e.kind == kCompare && e.op == "in" {
		for _, r := range e.ranges {
			if r[0] == r[1] {
				fmt.Fprintf(&sb, " %g", r[0])
			} else {
				fmt.Fprintf(&sb, " %g-%g", r[0], r[1])
			}
		}
	}
	if e.kind != kRoot {
		sb.WriteString(" " + e.typ.String())
	}
	if e.dynamic {
		sb.WriteString(" dynamic")
	}
	if e.gmax != nil {
		fmt.Fprintf(&sb, " gmax=%d", len(e.gmax))
	}
	if e.calc != nil {
		fmt.Fprintf(&sb, " calc=%d", e.calc.ID())
	}
	fmt.Fprintln(w, sb.String())
	for _, ch := range e.children {
		if ch != noElem {
			c.printTree(w, ch, indent+"  ")
		}
	}
}
