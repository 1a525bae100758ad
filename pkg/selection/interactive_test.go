package selection

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"src.sel.sh/pkg/diag"
)

func texts(sels []*Selection) []string {
	var out []string
	for _, s := range sels {
		out = append(out, s.Text())
	}
	return out
}

func TestParseInteractive_BadLineIsSkipped(t *testing.T) {
	sc := NewCollection()
	var out strings.Builder
	input := "x < 1\nx < and\nx > 2\n"
	sels, err := sc.ParseInteractive(NewLineReader(strings.NewReader(input)), 0, true, &out)
	if err != nil {
		t.Errorf("-> error %v", err)
	}
	if diff := cmp.Diff([]string{"x < 1", "x > 2"}, texts(sels)); diff != "" {
		t.Errorf("selections (-want +got):\n%s", diff)
	}
	for _, want := range []string{"> ", "Syntax error"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %q:\n%s", want, out.String())
		}
	}
	if len(sc.Selections()) != 2 {
		t.Errorf("%d selections in the collection, want 2", len(sc.Selections()))
	}
}

func TestParseInteractive_ErrorsCollected(t *testing.T) {
	sc := NewCollection()
	var out strings.Builder
	input := "x < and\nx > 2\ny ==\n"
	sels, err := sc.ParseInteractive(NewLineReader(strings.NewReader(input)), 0, false, &out)
	if n := len(diag.Errors(err)); n != 2 {
		t.Errorf("%d errors, want 2: %v", n, err)
	}
	if diff := cmp.Diff([]string{"x > 2"}, texts(sels)); diff != "" {
		t.Errorf("selections (-want +got):\n%s", diff)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %q in non-interactive mode", out.String())
	}
}

func TestParseInteractive_Continuation(t *testing.T) {
	sc := NewCollection()
	var out strings.Builder
	input := "x < 1 and\ny < 2\nx > 5 \\\n or y > 5\n"
	sels, err := sc.ParseInteractive(NewLineReader(strings.NewReader(input)), 0, true, &out)
	if err != nil {
		t.Errorf("-> error %v", err)
	}
	if diff := cmp.Diff([]string{"x < 1 and y < 2", "x > 5 \\\n or y > 5"}, texts(sels)); diff != "" {
		t.Errorf("selections (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.String(), "... ") {
		t.Errorf("no continuation prompt in %q", out.String())
	}
}

func TestParseInteractive_StopsAtCount(t *testing.T) {
	sc := NewCollection()
	lr := NewLineReader(strings.NewReader("x < 1\nx < 2\nx < 3\n"))
	sels, err := sc.ParseInteractive(lr, 2, false, nil)
	if err != nil {
		t.Errorf("-> error %v", err)
	}
	if diff := cmp.Diff([]string{"x < 1", "x < 2"}, texts(sels)); diff != "" {
		t.Errorf("selections (-want +got):\n%s", diff)
	}
	// The rest of the input is left unread.
	line, err := lr.ReadLine()
	if line != "x < 3" || err != nil {
		t.Errorf("next line = %q, %v", line, err)
	}
}

func TestParseInteractive_TooFew(t *testing.T) {
	sc := NewCollection()
	_, err := sc.ParseInteractive(NewLineReader(strings.NewReader("x < 1\n")), 3, false, nil)
	var cm *CountMismatchError
	if !errors.As(err, &cm) || cm.Want != 3 || cm.Got != 1 {
		t.Errorf("-> %v, want CountMismatchError{3, 1}", err)
	}
}

func TestParseInteractive_UnfinishedAtEOF(t *testing.T) {
	sc := NewCollection()
	_, err := sc.ParseInteractive(NewLineReader(strings.NewReader("x < 1 and")), 0, false, nil)
	if err == nil {
		t.Errorf("unfinished selection at end of input accepted")
	}
}

func TestSource_Reparses(t *testing.T) {
	sc := NewCollection()
	input := "w = x < 3\nx < and\nw and \\\n y < 1\nx > 5 and\n w\n"
	sels, _ := sc.ParseInteractive(NewLineReader(strings.NewReader(input)), 0, false, nil)

	sc2 := NewCollection()
	sels2, err := sc2.ParseString(sc.Source(), 0)
	if err != nil {
		t.Fatalf("reparsing %q -> error %v", sc.Source(), err)
	}
	if diff := cmp.Diff(texts(sels), texts(sels2)); diff != "" {
		t.Errorf("selections (-first +reparsed):\n%s", diff)
	}
	if len(sels2) != 2 {
		t.Errorf("%d selections, want 2", len(sels2))
	}
}
