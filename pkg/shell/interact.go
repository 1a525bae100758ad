package shell

import (
	"os"

	"src.sel.sh/pkg/selection"
	"src.sel.sh/pkg/sys"
)

// readInteractive reads selections from standard input. Prompts and errors
// go to standard error, and only when the input is a terminal.
func readInteractive(fds [3]*os.File, sc *selection.Collection, n int) ([]*selection.Selection, error) {
	interactive := sys.IsATTY(fds[0].Fd())
	logger.Println("reading selections from stdin, interactive:", interactive)
	return sc.ParseInteractive(selection.NewLineReader(fds[0]), n, interactive, fds[2])
}
