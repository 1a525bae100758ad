package selection

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/parse"
)

// LineReader reads input one line at a time. ReadLine returns io.EOF when
// there is no more input.
type LineReader interface {
	ReadLine() (string, error)
}

type bufioLineReader struct{ r *bufio.Reader }

// NewLineReader returns a LineReader reading from r.
func NewLineReader(r io.Reader) LineReader {
	return bufioLineReader{bufio.NewReader(r)}
}

func (lr bufioLineReader) ReadLine() (string, error) {
	line, err := lr.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), err
}

type readState int

const (
	awaitingLine readState = iota
	continuingLine
	endOfInput
)

// ParseInteractive reads selections line by line until the input ends or,
// when n is positive, n selections have been read. A line ending in a
// backslash, or one that ends in the middle of a selection, continues on the
// next line.
//
// When interactive is set, prompts are written to w, and errors are shown on
// w as soon as a line fails, without stopping the session. Otherwise errors
// are returned together after the input ends. Lines that fail add nothing
// to the collection.
func (c *Collection) ParseInteractive(lr LineReader, n int, interactive bool, w io.Writer) ([]*Selection, error) {
	if interactive {
		if n > 0 {
			fmt.Fprintf(w, "Enter %d selections, one per line. End input with Ctrl-D.\n", n)
		} else {
			fmt.Fprintln(w, "Enter selections, one per line. End input with Ctrl-D.")
		}
	}
	var (
		sels   []*Selection
		errs   []error
		buf    strings.Builder
		lineno int
		state  = awaitingLine
	)
	submit := func(final bool) {
		text := buf.String()
		got, err := c.parseSource(parse.Source{
			Name: fmt.Sprintf("[line %d]", lineno), Code: text}, 0)
		if err != nil && !final && isPartial(err) {
			buf.WriteString(" ")
			state = continuingLine
			return
		}
		buf.Reset()
		state = awaitingLine
		if err != nil {
			if interactive {
				diag.ShowError(w, err)
			} else {
				errs = append(errs, err)
			}
			return
		}
		sels = append(sels, got...)
	}

	for state != endOfInput && (n <= 0 || len(sels) < n) {
		if interactive {
			if state == continuingLine {
				fmt.Fprint(w, "... ")
			} else {
				fmt.Fprint(w, "> ")
			}
		}
		line, err := lr.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				errs = append(errs, err)
			}
			if strings.TrimSpace(buf.String()) != "" {
				submit(true)
			}
			if interactive {
				fmt.Fprintln(w)
			}
			state = endOfInput
			break
		}
		lineno++
		buf.WriteString(line)
		if strings.HasSuffix(line, "\\") {
			buf.WriteString("\n")
			state = continuingLine
			continue
		}
		if strings.TrimSpace(buf.String()) == "" {
			buf.Reset()
			continue
		}
		submit(false)
	}
	if n > 0 && len(sels) != n {
		errs = append(errs, &CountMismatchError{Want: n, Got: len(sels)})
	}
	return sels, diag.PackErrors(errs...)
}

// isPartial reports whether every error in err could be fixed by more
// input.
func isPartial(err error) bool {
	syntaxErrs := diag.UnpackErrors[parse.SyntaxErrorTag](err)
	if len(syntaxErrs) == 0 || len(syntaxErrs) != len(diag.Errors(err)) {
		return false
	}
	for _, e := range syntaxErrs {
		if !e.Partial {
			return false
		}
	}
	return true
}
