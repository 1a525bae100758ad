// Selsh selects atoms of a molecular system with a small selection language,
// and evaluates the selections over the frames of a trajectory. It can also
// check selection files, and serve them to editors as a language server.
package main

import (
	"os"

	"src.sel.sh/pkg/buildinfo"
	"src.sel.sh/pkg/lsp"
	"src.sel.sh/pkg/pprof"
	"src.sel.sh/pkg/prog"
	"src.sel.sh/pkg/shell"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(
			&pprof.Program{}, &buildinfo.Program{}, &lsp.Program{}, &shell.Program{})))
}
