// Package parse implements the lexer and parser of the selection language.
//
// The grammar, with ';' or newline separating commands and '#' starting a
// comment:
//
//	Chunk      = { Sep } { Command { Sep } }
//	Command    = Word '=' Expr | [ String ] Expr
//	Expr       = AndExpr { ('or' | 'xor' | '||') AndExpr }
//	AndExpr    = NotExpr { ('and' | '&&') NotExpr }
//	NotExpr    = ('not' | '!') NotExpr | CmpExpr
//	CmpExpr    = AddExpr [ CmpOp AddExpr ]
//	AddExpr    = MulExpr { ('+' | '-') MulExpr }
//	MulExpr    = UnaryExpr { ('*' | '/') UnaryExpr }
//	UnaryExpr  = '-' UnaryExpr | PowExpr
//	PowExpr    = Primary [ '^' UnaryExpr ]
//	Primary    = '(' Expr ')' | 'all' | 'none' | Number | String
//	           | '[' Expr ',' Expr ',' Expr ']'
//	           | 'group' (String | Word | Int)
//	           | PosType 'of' ArgExpr
//	           | Keyword { Value }
//	           | Method [ Arg ] { Param Arg }
//	           | Word
//	ArgExpr    = ('not' | '!') ArgExpr | Primary
//
// Words are classified with a symbol table: a word may be a reserved word, a
// position type, a keyword, a method or anything else, which the parser
// keeps as an Ident.
package parse

import (
	"fmt"
	"math"
	"strconv"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/symtab"
)

// Source is a named piece of selection text.
type Source struct {
	Name string
	Code string
}

// LexError is a malformed token.
type LexError = diag.Error[LexErrorTag]

// LexErrorTag parameterizes [diag.Error] to define [LexError].
type LexErrorTag struct{}

func (LexErrorTag) ErrorTag() string { return "lexical error" }

// SyntaxError is a grammar violation.
type SyntaxError = diag.Error[SyntaxErrorTag]

// SyntaxErrorTag parameterizes [diag.Error] to define [SyntaxError].
type SyntaxErrorTag struct{}

func (SyntaxErrorTag) ErrorTag() string { return "syntax error" }

// Parse parses src. Commands with errors are left out of the returned
// Chunk; the error packs every LexError and SyntaxError found, so that all
// bad commands are reported at once.
func Parse(src Source, syms *symtab.Table) (*Chunk, error) {
	toks, lexErr := Lex(src.Name, src.Code)
	p := &parser{src: src, toks: toks, syms: syms}
	chunk := p.parseChunk()
	return chunk, diag.PackErrors(append(diag.Errors(lexErr), p.errors...)...)
}

type parser struct {
	src     Source
	toks    []Token
	pos     int
	lastEnd int
	syms    *symtab.Table
	errors  []error
}

// abort unwinds the parsing of the current command.
type abort struct{}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) peekAt(i int) Token {
	if p.pos+i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+i]
}

// next consumes a token. Separators and EOF are never consumed, so that a
// failed command stops at its end.
func (p *parser) next() Token {
	t := p.toks[p.pos]
	if !t.isSepOrEOF() {
		p.pos++
		p.lastEnd = t.To
	}
	return t
}

// errorf records a SyntaxError at t and aborts the current command. Illegal
// tokens already have a LexError, so nothing more is recorded for them.
func (p *parser) errorf(t Token, format string, args ...any) {
	if t.Type != Illegal {
		err := diag.NewError[SyntaxErrorTag](p.src.Name, p.src.Code, t.Ranging, format, args...)
		err.Partial = t.Type == EOF
		p.errors = append(p.errors, err)
	}
	panic(abort{})
}

func (p *parser) unexpected(t Token, shouldBe string) {
	p.errorf(t, "unexpected %s, should be %s", t.describe(), shouldBe)
}

func (p *parser) finish(n *node, from int) {
	n.Ranging = diag.Ranging{From: from, To: p.lastEnd}
	n.sourceText = p.src.Code[from:p.lastEnd]
}

func (t Token) isOp(op string) bool  { return t.Type == Op && t.Text == op }
func (t Token) isWord(w string) bool { return t.Type == Word && t.Text == w }
func (t Token) isSepOrEOF() bool     { return t.Type == Sep || t.Type == EOF }
func (p *parser) symbol(t Token) *symtab.Symbol {
	if t.Type != Word {
		return nil
	}
	return p.syms.Lookup(t.Text)
}

func (p *parser) parseChunk() *Chunk {
	ch := &Chunk{}
	for {
		for p.peek().Type == Sep {
			p.pos++
		}
		if p.peek().Type == EOF {
			break
		}
		if cmd := p.parseCommandOrSkip(); cmd != nil {
			ch.Commands = append(ch.Commands, cmd)
		}
	}
	p.finish(&ch.node, 0)
	ch.Ranging.To = len(p.src.Code)
	ch.sourceText = p.src.Code
	return ch
}

func (p *parser) parseCommandOrSkip() (cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abort); !ok {
				panic(r)
			}
			cmd = nil
			for !p.peek().isSepOrEOF() {
				p.next()
			}
		}
	}()
	cmd = p.parseCommand()
	if t := p.peek(); !t.isSepOrEOF() {
		p.unexpected(t, "an operator or the end of the selection")
	}
	return cmd
}

func (p *parser) parseCommand() Command {
	first := p.peek()
	if first.Type == Word && p.peekAt(1).isOp("=") {
		if s := p.symbol(first); s != nil && s.Kind != symtab.Variable {
			p.errorf(first, "cannot assign to %s %s", s.Kind, first.Text)
		}
		p.next()
		p.next()
		a := &Assign{Name: first.Text, NameRange: first.Ranging}
		a.Expr = p.parseExpr()
		p.finish(&a.node, first.From)
		return a
	}
	sel := &Select{}
	if first.Type == String && p.startsExpr(p.peekAt(1)) {
		p.next()
		sel.Name, sel.HasName = first.Value, true
	}
	sel.Expr = p.parseExpr()
	p.finish(&sel.node, first.From)
	return sel
}

func (p *parser) startsExpr(t Token) bool {
	switch t.Type {
	case Int, Float, String:
		return true
	case Op:
		return t.Text == "(" || t.Text == "[" || t.Text == "-" || t.Text == "!"
	case Word:
		s := p.symbol(t)
		if s == nil || s.Kind != symtab.Reserved {
			return true
		}
		switch t.Text {
		case "all", "none", "not", "group":
			return true
		}
	}
	return false
}

func (p *parser) parseExpr() Expr {
	from := p.peek().From
	left := p.parseAnd()
	for {
		t := p.peek()
		var op string
		switch {
		case t.isWord("or") || t.isOp("||"):
			op = "or"
		case t.isWord("xor"):
			op = "xor"
		default:
			return left
		}
		p.next()
		b := &Bool{Op: op, Left: left, Right: p.parseAnd()}
		p.finish(&b.node, from)
		left = b
	}
}

func (p *parser) parseAnd() Expr {
	from := p.peek().From
	left := p.parseNot()
	for t := p.peek(); t.isWord("and") || t.isOp("&&"); t = p.peek() {
		p.next()
		b := &Bool{Op: "and", Left: left, Right: p.parseNot()}
		p.finish(&b.node, from)
		left = b
	}
	return left
}

func (p *parser) parseNot() Expr {
	if t := p.peek(); t.isWord("not") || t.isOp("!") {
		p.next()
		n := &Not{Operand: p.parseNot()}
		p.finish(&n.node, t.From)
		return n
	}
	return p.parseCompare()
}

var compareOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true}

func (p *parser) parseCompare() Expr {
	from := p.peek().From
	left := p.parseAdd()
	if t := p.peek(); t.Type == Op && compareOps[t.Text] {
		p.next()
		c := &Compare{Op: t.Text, Left: left, Right: p.parseAdd()}
		p.finish(&c.node, from)
		return c
	}
	return left
}

func (p *parser) parseAdd() Expr {
	from := p.peek().From
	left := p.parseMul()
	for t := p.peek(); t.isOp("+") || t.isOp("-"); t = p.peek() {
		p.next()
		a := &Arith{Op: t.Text, Left: left, Right: p.parseMul()}
		p.finish(&a.node, from)
		left = a
	}
	return left
}

func (p *parser) parseMul() Expr {
	from := p.peek().From
	left := p.parseUnary()
	for t := p.peek(); t.isOp("*") || t.isOp("/"); t = p.peek() {
		p.next()
		a := &Arith{Op: t.Text, Left: left, Right: p.parseUnary()}
		p.finish(&a.node, from)
		left = a
	}
	return left
}

func (p *parser) parseUnary() Expr {
	if t := p.peek(); t.isOp("-") {
		p.next()
		n := &Neg{Operand: p.parseUnary()}
		p.finish(&n.node, t.From)
		return n
	}
	from := p.peek().From
	base := p.parsePrimary()
	if p.peek().isOp("^") {
		p.next()
		a := &Arith{Op: "^", Left: base, Right: p.parseUnary()}
		p.finish(&a.node, from)
		return a
	}
	return base
}

func (p *parser) parseArgExpr() Expr {
	if t := p.peek(); t.isWord("not") || t.isOp("!") {
		p.next()
		n := &Not{Operand: p.parseArgExpr()}
		p.finish(&n.node, t.From)
		return n
	}
	return p.parsePrimary()
}

func (p *parser) parseNumber(t Token) float64 {
	v, err := strconv.ParseFloat(t.Text, 64)
	if err != nil {
		p.errorf(t, "bad number %q", t.Text)
	}
	return v
}

// MaxOrdinal is the largest group number accepted.
const MaxOrdinal = math.MaxInt32

func (p *parser) parseOrdinal(t Token) int {
	v := p.parseNumber(t)
	if v > MaxOrdinal {
		p.errorf(t, "group number %s is too large", t.Text)
	}
	return int(v)
}

func (p *parser) parsePrimary() Expr {
	t := p.next()
	switch t.Type {
	case Int, Float:
		n := &Number{Value: p.parseNumber(t), IsInt: t.Type == Int}
		p.finish(&n.node, t.From)
		return n
	case String:
		s := &Str{Value: t.Value}
		p.finish(&s.node, t.From)
		return s
	case Op:
		switch t.Text {
		case "(":
			e := &Paren{Expr: p.parseExpr()}
			p.expectOp(")")
			p.finish(&e.node, t.From)
			return e
		case "[":
			v := &Vector{}
			for i := range v.Elems {
				if i > 0 {
					p.expectOp(",")
				}
				v.Elems[i] = p.parseExpr()
			}
			p.expectOp("]")
			p.finish(&v.node, t.From)
			return v
		}
	case Word:
		return p.parseWord(t)
	}
	p.unexpected(t, "an expression")
	return nil
}

func (p *parser) expectOp(op string) {
	if t := p.next(); !t.isOp(op) {
		p.unexpected(t, fmt.Sprintf("'%s'", op))
	}
}

func (p *parser) expectWord(w string) {
	if t := p.next(); !t.isWord(w) {
		p.unexpected(t, fmt.Sprintf("'%s'", w))
	}
}

func (p *parser) parseWord(t Token) Expr {
	s := p.symbol(t)
	if s == nil || s.Kind == symtab.Variable {
		id := &Ident{Name: t.Text}
		p.finish(&id.node, t.From)
		return id
	}
	switch s.Kind {
	case symtab.Reserved:
		switch t.Text {
		case "all", "none":
			a := &All{None: t.Text == "none"}
			p.finish(&a.node, t.From)
			return a
		case "group":
			g := &GroupRef{}
			switch name := p.next(); name.Type {
			case String:
				g.Name = name.Value
			case Word:
				g.Name = name.Text
			case Int:
				g.Ordinal, g.ByOrdinal = p.parseOrdinal(name), true
			default:
				p.unexpected(name, "a group name or number")
			}
			p.finish(&g.node, t.From)
			return g
		}
		p.unexpected(t, "an expression")
	case symtab.PosType:
		p.expectWord("of")
		e := &PosExpr{Type: t.Text, Operand: p.parseArgExpr()}
		p.finish(&e.node, t.From)
		return e
	case symtab.Keyword:
		return p.parseKeyword(t, s.Method)
	}
	return p.parseMethod(t, s.Method)
}

func (p *parser) parseKeyword(t Token, m *method.Method) *Keyword {
	kw := &Keyword{Name: t.Text}
	for {
		v := p.peek()
		value := &KeywordValue{}
		switch {
		case v.Type == String:
			p.next()
			value.Str = v.Value
		case v.isOp("~"):
			p.next()
			re := p.next()
			if re.Type != String {
				p.unexpected(re, "a quoted regular expression")
			}
			value.Kind, value.Str = ValRegex, re.Value
		case v.Type == Word && m.Type == method.String && p.symbol(v) == nil:
			p.next()
			value.Str = v.Text
		case v.Type == Int || v.Type == Float:
			p.next()
			if m.Type == method.String {
				value.Str = v.Text
				break
			}
			value.Kind, value.Lo = ValNumber, p.parseNumber(v)
			if p.peek().isWord("to") {
				p.next()
				hi := p.next()
				if hi.Type != Int && hi.Type != Float {
					p.unexpected(hi, "a number")
				}
				value.Kind, value.Hi = ValRange, p.parseNumber(hi)
			}
		default:
			p.finish(&kw.node, t.From)
			return kw
		}
		p.finish(&value.node, v.From)
		kw.Values = append(kw.Values, value)
	}
}

func (p *parser) parseMethod(t Token, m *method.Method) *MethodCall {
	call := &MethodCall{Name: t.Text}
	for _, param := range m.Params {
		from := p.peek().From
		arg := &Arg{Param: param.Name}
		if param.Name != "" {
			p.expectWord(param.Name)
		}
		switch param.Type {
		case method.KeywordName:
			kw := p.next()
			if s := p.symbol(kw); s == nil || s.Kind != symtab.Keyword {
				p.unexpected(kw, "a keyword")
			}
			arg.Keyword = kw.Text
		case method.Number:
			arg.Expr = p.parseUnary()
		default:
			arg.Expr = p.parseArgExpr()
		}
		p.finish(&arg.node, from)
		call.Args = append(call.Args, arg)
	}
	p.finish(&call.node, t.From)
	return call
}
