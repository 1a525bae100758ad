package parse

import "src.sel.sh/pkg/diag"

// Node is a node of the syntax tree.
type Node interface {
	diag.Ranger
	// SourceText returns the text the node was parsed from.
	SourceText() string
	isNode()
}

type node struct {
	diag.Ranging
	sourceText string
}

func (n *node) SourceText() string { return n.sourceText }
func (*node) isNode()              {}

// Chunk = { Sep } { Command { Sep } }
type Chunk struct {
	node
	Commands []Command
}

// Command is an assignment or a selection.
type Command interface {
	Node
	isCommand()
}

// Assign = Word '=' Expr
type Assign struct {
	node
	Name      string
	NameRange diag.Ranging
	Expr      Expr
}

// Select = [ String ] Expr
type Select struct {
	node
	Name    string
	HasName bool
	Expr    Expr
}

func (*Assign) isCommand() {}
func (*Select) isCommand() {}

// Expr is an expression.
type Expr interface {
	Node
	isExpr()
}

// Bool is a binary "and", "or" or "xor".
type Bool struct {
	node
	Op          string
	Left, Right Expr
}

// Not is a negation.
type Not struct {
	node
	Operand Expr
}

// Arith is a binary arithmetic operation: + - * / ^.
type Arith struct {
	node
	Op          string
	Left, Right Expr
}

// Neg is a unary minus.
type Neg struct {
	node
	Operand Expr
}

// Compare is a comparison: < <= > >= == !=.
type Compare struct {
	node
	Op          string
	Left, Right Expr
}

// Paren is a parenthesized expression.
type Paren struct {
	node
	Expr Expr
}

// Number is a numeric literal.
type Number struct {
	node
	Value float64
	IsInt bool
}

// Str is a string literal.
type Str struct {
	node
	Value string
}

// Vector is a literal position: [x, y, z].
type Vector struct {
	node
	Elems [3]Expr
}

// All is "all", or "none" when None is set.
type All struct {
	node
	None bool
}

// GroupRef is "group" followed by a name or an ordinal.
type GroupRef struct {
	node
	Name      string
	Ordinal   int
	ByOrdinal bool
}

// PosExpr is "TYPE of Expr", such as "res_com of resname SOL".
type PosExpr struct {
	node
	Type    string
	Operand Expr
}

// Keyword is a keyword with optional values, such as "resname SOL" or
// "resnr 1 to 5".
type Keyword struct {
	node
	Name   string
	Values []*KeywordValue
}

// ValueKind is the kind of a keyword value.
type ValueKind int

const (
	ValString ValueKind = iota
	ValRegex
	ValNumber
	ValRange
)

// KeywordValue is one value after a keyword.
type KeywordValue struct {
	node
	Kind   ValueKind
	Str    string
	Lo, Hi float64
}

// MethodCall is a method with its arguments.
type MethodCall struct {
	node
	Name string
	Args []*Arg
}

// Arg is one method argument.
type Arg struct {
	node
	// The word introducing the argument; empty for the first unnamed one.
	Param string
	// Set for keyword-name parameters instead of Expr.
	Keyword string
	Expr    Expr
}

// Ident is a word that is not a known symbol other than a variable.
type Ident struct {
	node
	Name string
}

func (*Bool) isExpr()       {}
func (*Not) isExpr()        {}
func (*Arith) isExpr()      {}
func (*Neg) isExpr()        {}
func (*Compare) isExpr()    {}
func (*Paren) isExpr()      {}
func (*Number) isExpr()     {}
func (*Str) isExpr()        {}
func (*Vector) isExpr()     {}
func (*All) isExpr()        {}
func (*GroupRef) isExpr()   {}
func (*PosExpr) isExpr()    {}
func (*Keyword) isExpr()    {}
func (*MethodCall) isExpr() {}
func (*Ident) isExpr()      {}

// Unparen strips any parentheses around e.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*Paren)
		if !ok {
			return e
		}
		e = p.Expr
	}
}
