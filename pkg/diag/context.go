package diag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Context is a range of text in a named piece of source. Errors that can be
// attributed to a part of a selection text carry one.
type Context struct {
	Name   string
	Source string
	Ranging
}

// NewContext creates a new Context.
func NewContext(name, source string, r Ranger) *Context {
	return &Context{name, source, r.Range()}
}

// Styling of the culprit. Tests replace these with plain markers.
var (
	culpritLineBegin   = "\033[1;4m"
	culpritLineEnd     = "\033[m"
	culpritPlaceHolder = "^"
)

// Position returns the 1-based line and column of the start of the range.
// Columns count runes, not bytes.
func (c *Context) Position() (line, col int) {
	if !c.valid() {
		return 0, 0
	}
	before := c.Source[:c.From]
	line = strings.Count(before, "\n") + 1
	col = utf8.RuneCountInString(before[strings.LastIndexByte(before, '\n')+1:]) + 1
	return line, col
}

// Describe returns "name:line:col", or a description of why the position is
// unavailable.
func (c *Context) Describe() string {
	if err := c.checkPosition(); err != nil {
		return err.Error()
	}
	line, col := c.Position()
	return fmt.Sprintf("%s:%d:%d", c.Name, line, col)
}

// Show returns the position followed by the relevant source lines, with the
// culprit highlighted. Continuation lines are prefixed with indent.
func (c *Context) Show(indent string) string {
	if err := c.checkPosition(); err != nil {
		return err.Error()
	}
	desc := c.Describe() + ": "
	return desc + c.relevantSource(indent+strings.Repeat(" ", utf8.RuneCountInString(desc)))
}

func (c *Context) valid() bool {
	return c.From >= 0 && c.From <= c.To && c.To <= len(c.Source)
}

func (c *Context) checkPosition() error {
	switch {
	case c.From == -1:
		return fmt.Errorf("%s, unknown position", c.Name)
	case !c.valid():
		return fmt.Errorf("%s, invalid position %d-%d", c.Name, c.From, c.To)
	}
	return nil
}

func (c *Context) relevantSource(indent string) string {
	before, culprit, after := c.Source[:c.From], c.Source[c.From:c.To], c.Source[c.To:]

	head := before[strings.LastIndexByte(before, '\n')+1:]
	var tail string
	if strings.HasSuffix(culprit, "\n") {
		culprit = culprit[:len(culprit)-1]
	} else if i := strings.IndexByte(after, '\n'); i == -1 {
		tail = after
	} else {
		tail = after[:i]
	}
	if culprit == "" {
		culprit = culpritPlaceHolder
	}

	var sb strings.Builder
	sb.WriteString(head)
	for i, line := range strings.Split(culprit, "\n") {
		if i > 0 {
			sb.WriteString("\n" + indent)
		}
		sb.WriteString(culpritLineBegin + line + culpritLineEnd)
	}
	sb.WriteString(tail)
	return sb.String()
}
