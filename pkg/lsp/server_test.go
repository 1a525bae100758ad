package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/must"
	"src.sel.sh/pkg/topo"
)

func testTopology() *topo.Topology {
	return must.OK1(topo.New([]topo.Atom{
		{Name: "OW", ResName: "SOL", ResNr: 1, Molecule: 1},
		{Name: "CA", ResName: "PROT", ResNr: 2, Molecule: 2},
	}))
}

func TestDiagnostics(t *testing.T) {
	plain := newServer()
	full := newServer()
	full.top = testTopology()
	full.groups = indexgroup.Groups{{Name: "Water", Indices: []int{0}}}

	tests := []struct {
		name    string
		s       *server
		content string
		// Sources of the expected diagnostics, and the line of the first.
		sources []string
		line    int
	}{
		{"valid", plain, "x < 1\ny > 2", nil, 0},
		{"topology not checked without one", plain, "resname SOL", nil, 0},
		{"syntax error", plain, "x < 1\nx < and", []string{"syntax error"}, 1},
		{"syntax errors from several lines", plain, "x <\ny ==\nz < 1", []string{"syntax error", "syntax error"}, 0},
		{"topology checked with one", full, "resname SOL\ngroup \"Water\"", nil, 0},
		{"unknown group", full, "x < 1\ngroup \"Nope\"", []string{"unresolved reference"}, 1},
		{"type error", full, "resnr \"SOL\"", []string{"type error"}, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			diags := test.s.diagnostics(test.content)
			var sources []string
			for _, d := range diags {
				sources = append(sources, d.Source)
			}
			if strings.Join(sources, ",") != strings.Join(test.sources, ",") {
				t.Fatalf("diagnostics %v, want sources %v", diags, test.sources)
			}
			if len(diags) > 0 && diags[0].Range.Start.Line != test.line {
				t.Errorf("first diagnostic on line %d, want %d", diags[0].Range.Start.Line, test.line)
			}
		})
	}
}

func TestHover(t *testing.T) {
	s := newServer()
	s.setContent("file:///a.sel", "resname SOL")
	ret, err := s.hover(context.Background(), nil, mustJSON(lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: "file:///a.sel"},
		Position:     lsp.Position{Line: 0, Character: 3},
	}))
	if err != nil {
		t.Fatal(err)
	}
	hover := ret.(lsp.Hover)
	if len(hover.Contents) != 1 || !strings.Contains(hover.Contents[0].Value, "resname") {
		t.Errorf("hover = %+v", hover)
	}
	if hover.Range == nil || hover.Range.End.Character != 7 {
		t.Errorf("hover range = %v, want the word resname", hover.Range)
	}
}

func TestCompletion(t *testing.T) {
	s := newServer()
	s.setContent("file:///a.sel", "x < 1 and res")
	ret, err := s.completion(context.Background(), nil, mustJSON(lsp.CompletionParams{
		TextDocumentPositionParams: lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: "file:///a.sel"},
			Position:     lsp.Position{Line: 0, Character: 13},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	var labels []string
	for _, item := range ret.([]lsp.CompletionItem) {
		labels = append(labels, item.Label)
		if !strings.HasPrefix(item.Label, "res") {
			t.Errorf("completion %q does not start with res", item.Label)
		}
	}
	if !strings.Contains(strings.Join(labels, " "), "resname") {
		t.Errorf("completions %v lack resname", labels)
	}
}

func TestServer_PublishesDiagnostics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientSide, serverSide := net.Pipe()
	serverConn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}), handler(newServer()))
	defer serverConn.Close()

	notes := make(chan *jsonrpc2.Request, 10)
	client := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			notes <- req
			return nil, nil
		}))
	defer client.Close()

	var init lsp.InitializeResult
	if err := client.Call(ctx, "initialize", lsp.InitializeParams{}, &init); err != nil {
		t.Fatal(err)
	}
	if !init.Capabilities.HoverProvider {
		t.Errorf("hover is not advertised")
	}

	err := client.Call(ctx, "textDocument/bad", nil, nil)
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("unknown method -> %v, want method not found", err)
	}

	client.Notify(ctx, "textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: "file:///a.sel", Text: "x < and"},
	})
	select {
	case req := <-notes:
		if req.Method != "textDocument/publishDiagnostics" {
			t.Fatalf("got notification %s", req.Method)
		}
		var params lsp.PublishDiagnosticsParams
		must.OK(json.Unmarshal(*req.Params, &params))
		if params.URI != "file:///a.sel" || len(params.Diagnostics) != 1 {
			t.Errorf("published %+v", params)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no diagnostics published")
	}
}

func mustJSON(v any) json.RawMessage {
	return must.OK1(json.Marshal(v))
}
