package parse

import (
	"strconv"
	"strings"
)

// Format returns the canonical text of a node: one space between tokens,
// strings quoted and compound operands parenthesized. Two nodes with the
// same canonical text mean the same thing.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n)
	return sb.String()
}

func formatOperand(sb *strings.Builder, e Expr) {
	switch Unparen(e).(type) {
	case *Bool, *Not, *Compare, *Arith, *Neg:
		sb.WriteByte('(')
		format(sb, Unparen(e))
		sb.WriteByte(')')
	default:
		format(sb, e)
	}
}

func formatNumber(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func format(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Chunk:
		for i, c := range n.Commands {
			if i > 0 {
				sb.WriteString("; ")
			}
			format(sb, c)
		}
	case *Assign:
		sb.WriteString(n.Name + " = ")
		format(sb, n.Expr)
	case *Select:
		if n.HasName {
			sb.WriteString(strconv.Quote(n.Name) + " ")
		}
		format(sb, n.Expr)
	case *Bool:
		formatOperand(sb, n.Left)
		sb.WriteString(" " + n.Op + " ")
		formatOperand(sb, n.Right)
	case *Arith:
		formatOperand(sb, n.Left)
		sb.WriteString(" " + n.Op + " ")
		formatOperand(sb, n.Right)
	case *Compare:
		formatOperand(sb, n.Left)
		sb.WriteString(" " + n.Op + " ")
		formatOperand(sb, n.Right)
	case *Not:
		sb.WriteString("not ")
		formatOperand(sb, n.Operand)
	case *Neg:
		sb.WriteString("-")
		formatOperand(sb, n.Operand)
	case *Paren:
		format(sb, n.Expr)
	case *Number:
		sb.WriteString(formatNumber(n.Value))
	case *Str:
		sb.WriteString(strconv.Quote(n.Value))
	case *Vector:
		sb.WriteByte('[')
		for i, e := range n.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e)
		}
		sb.WriteByte(']')
	case *All:
		if n.None {
			sb.WriteString("none")
		} else {
			sb.WriteString("all")
		}
	case *GroupRef:
		if n.ByOrdinal {
			sb.WriteString("group " + strconv.Itoa(n.Ordinal))
		} else {
			sb.WriteString("group " + strconv.Quote(n.Name))
		}
	case *PosExpr:
		sb.WriteString(n.Type + " of ")
		formatOperand(sb, n.Operand)
	case *Keyword:
		sb.WriteString(n.Name)
		for _, v := range n.Values {
			sb.WriteByte(' ')
			format(sb, v)
		}
	case *KeywordValue:
		switch n.Kind {
		case ValString:
			sb.WriteString(strconv.Quote(n.Str))
		case ValRegex:
			sb.WriteString("~" + strconv.Quote(n.Str))
		case ValNumber:
			sb.WriteString(formatNumber(n.Lo))
		case ValRange:
			sb.WriteString(formatNumber(n.Lo) + " to " + formatNumber(n.Hi))
		}
	case *MethodCall:
		sb.WriteString(n.Name)
		for _, a := range n.Args {
			sb.WriteByte(' ')
			format(sb, a)
		}
	case *Arg:
		if n.Param != "" {
			sb.WriteString(n.Param + " ")
		}
		if n.Keyword != "" {
			sb.WriteString(n.Keyword)
		} else {
			formatOperand(sb, n.Expr)
		}
	case *Ident:
		sb.WriteString(n.Name)
	}
}
