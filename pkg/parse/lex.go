package parse

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"src.sel.sh/pkg/diag"
)

// TokenType is the type of a token.
type TokenType int

const (
	EOF TokenType = iota
	// Newline or ';'.
	Sep
	Word
	Int
	Float
	String
	// Operator or punctuation.
	Op
	// Input that could not be lexed. A LexError has been recorded for it.
	Illegal
)

var tokenTypeNames = [...]string{"end of input", "separator", "word", "integer",
	"number", "string", "operator", "illegal input"}

func (t TokenType) String() string { return tokenTypeNames[t] }

// Token is a lexical token.
type Token struct {
	diag.Ranging
	Type TokenType
	// Source text of the token.
	Text string
	// For strings, the unquoted value.
	Value string
}

func (t Token) describe() string {
	switch t.Type {
	case EOF, Sep:
		if t.Text == ";" {
			return "';'"
		}
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Text)
}

// Two-rune operators must come before their one-rune prefixes.
var operators = []string{
	"==", "!=", "<=", ">=", "&&", "||",
	"<", ">", "!", "=", "+", "-", "*", "/", "^", "(", ")", "[", "]", ",", "~",
}

type lexer struct {
	name, src string
	pos       int
	toks      []Token
	errors    []error
}

// Lex splits src into tokens, ending with an EOF token. Lexical errors are
// returned packed; the offending input is represented by Illegal tokens.
func Lex(name, src string) ([]Token, error) {
	lx := &lexer{name: name, src: src}
	lx.run()
	return lx.toks, diag.PackErrors(lx.errors...)
}

func (lx *lexer) errorf(from, to int, format string, args ...any) {
	err := diag.NewError[LexErrorTag](lx.name, lx.src, diag.Ranging{From: from, To: to}, format, args...)
	lx.errors = append(lx.errors, err)
	lx.emit(Illegal, from, to, "")
}

func (lx *lexer) emit(t TokenType, from, to int, value string) {
	lx.toks = append(lx.toks, Token{diag.Ranging{From: from, To: to}, t, lx.src[from:to], value})
}

func (lx *lexer) run() {
	for lx.pos < len(lx.src) {
		start := lx.pos
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		switch {
		case r == '\n' || r == ';':
			lx.pos += size
			lx.emit(Sep, start, lx.pos, "")
		case r == ' ' || r == '\t' || r == '\r':
			lx.pos += size
		case r == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case r == '\\':
			if strings.HasPrefix(lx.src[lx.pos+1:], "\n") {
				lx.pos += 2
			} else if strings.HasPrefix(lx.src[lx.pos+1:], "\r\n") {
				lx.pos += 3
			} else {
				lx.pos++
				lx.errorf(start, lx.pos, "backslash is only allowed at the end of a line")
			}
		case r == '"' || r == '\'':
			lx.lexString(r)
		case isDigit(r) || (r == '.' && lx.pos+1 < len(lx.src) && isDigit(rune(lx.src[lx.pos+1]))):
			lx.lexNumber()
		case r == '_' || unicode.IsLetter(r):
			for lx.pos < len(lx.src) {
				r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				lx.pos += size
			}
			lx.emit(Word, start, lx.pos, "")
		default:
			lx.lexOperator(r, size)
		}
	}
	lx.emit(EOF, lx.pos, lx.pos, "")
}

func isDigit(r rune) bool { return '0' <= r && r <= '9' }

func (lx *lexer) lexString(quote rune) {
	start := lx.pos
	lx.pos++
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case rune(c) == quote:
			lx.pos++
			lx.emit(String, start, lx.pos, sb.String())
			return
		case c == '\n':
			lx.errorf(start, lx.pos, "string not terminated")
			return
		case c == '\\' && quote == '"' && lx.pos+1 < len(lx.src) &&
			(lx.src[lx.pos+1] == '"' || lx.src[lx.pos+1] == '\\'):
			sb.WriteByte(lx.src[lx.pos+1])
			lx.pos += 2
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
	lx.errorf(start, lx.pos, "string not terminated")
}

func (lx *lexer) lexNumber() {
	start := lx.pos
	typ := Int
	lx.digits()
	if lx.peekByte() == '.' {
		typ = Float
		lx.pos++
		lx.digits()
	}
	if c := lx.peekByte(); c == 'e' || c == 'E' {
		typ = Float
		lx.pos++
		if c := lx.peekByte(); c == '+' || c == '-' {
			lx.pos++
		}
		if !isDigit(rune(lx.peekByte())) {
			lx.skipWordChars()
			lx.errorf(start, lx.pos, "bad number %q: missing exponent", lx.src[start:lx.pos])
			return
		}
		lx.digits()
	}
	if c := rune(lx.peekByte()); c == '.' || c == '_' || unicode.IsLetter(c) || isDigit(c) {
		lx.skipWordChars()
		lx.errorf(start, lx.pos, "bad number %q", lx.src[start:lx.pos])
		return
	}
	lx.emit(typ, start, lx.pos, "")
}

func (lx *lexer) peekByte() byte {
	if lx.pos < len(lx.src) {
		return lx.src[lx.pos]
	}
	return 0
}

func (lx *lexer) digits() {
	for isDigit(rune(lx.peekByte())) {
		lx.pos++
	}
}

func (lx *lexer) skipWordChars() {
	for {
		c := rune(lx.peekByte())
		if c != '.' && c != '_' && !unicode.IsLetter(c) && !isDigit(c) {
			return
		}
		lx.pos++
	}
}

func (lx *lexer) lexOperator(r rune, size int) {
	start := lx.pos
	for _, op := range operators {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += len(op)
			lx.emit(Op, start, lx.pos, "")
			return
		}
	}
	lx.pos += size
	lx.errorf(start, lx.pos, "unexpected character %q", r)
}
