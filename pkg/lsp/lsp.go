// Package lsp implements a language server for selection files.
package lsp

import (
	"context"
	"os"

	"github.com/sourcegraph/jsonrpc2"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/prog"
	"src.sel.sh/pkg/topo"
)

var logger = logutil.GetLogger("[lsp] ")

// Program is the LSP subprogram.
type Program struct {
	run   bool
	paths *prog.SystemPaths
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	fs.BoolVar(&p.run, "lsp", false, "run language server instead of evaluating selections")
	p.paths = fs.SystemPaths()
}

func (p *Program) Run(fds [3]*os.File, _ []string) error {
	if !p.run {
		return prog.ErrNextProgram
	}
	s, err := p.newServer()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(transport{fds[0], fds[1]}, jsonrpc2.VSCodeObjectCodec{}),
		handler(s))
	<-conn.DisconnectNotify()
	return nil
}

// The topology and groups, when given, make diagnostics cover name
// resolution and topology checks too.
func (p *Program) newServer() (*server, error) {
	s := newServer()
	if p.paths == nil {
		return s, nil
	}
	if p.paths.Top != "" {
		sys, err := topo.LoadSystem(p.paths.Top)
		if err != nil {
			return nil, err
		}
		s.top = sys.Topology
	}
	if p.paths.Groups != "" {
		gs, err := indexgroup.Load(p.paths.Groups)
		if err != nil {
			return nil, err
		}
		s.groups = gs
	}
	logger.Printf("serving with topology %q and groups %q", p.paths.Top, p.paths.Groups)
	return s, nil
}

type transport struct{ in, out *os.File }

func (c transport) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c transport) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c transport) Close() error {
	if err := c.in.Close(); err != nil {
		c.out.Close()
		return err
	}
	return c.out.Close()
}
