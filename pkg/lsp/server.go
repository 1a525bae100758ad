package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/selection"
	"src.sel.sh/pkg/symtab"
	"src.sel.sh/pkg/topo"
)

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

type server struct {
	top    *topo.Topology
	groups indexgroup.Source
	syms   *symtab.Table

	mu      sync.Mutex
	content map[lsp.DocumentURI]string
}

func newServer() *server {
	return &server{syms: symtab.New(), content: make(map[lsp.DocumentURI]string)}
}

func handler(s *server) jsonrpc2.Handler {
	return routingHandler(map[string]method{
		"initialize":              s.initialize,
		"textDocument/didOpen":    s.didOpen,
		"textDocument/didChange":  s.didChange,
		"textDocument/hover":      s.hover,
		"textDocument/completion": s.completion,

		"textDocument/didClose": s.didClose,
		// Required by the protocol.
		"initialized": noop,
		// Called by clients even when server doesn't advertise support:
		// https://microsoft.github.io/language-server-protocol/specification#workspace_didChangeWatchedFiles
		"workspace/didChangeWatchedFiles": noop,
	})
}

type method func(context.Context, jsonrpc2.JSONRPC2, json.RawMessage) (any, error)

func noop(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return nil, nil
}

func routingHandler(methods map[string]method) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return fn(ctx, conn, params)
	})
}

// Handler implementations. These are all called synchronously.

func (s *server) initialize(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Options: &lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    lsp.TDSKFull,
				},
			},
			CompletionProvider: &lsp.CompletionOptions{},
			HoverProvider:      true,
		},
	}, nil
}

func (s *server) didOpen(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidOpenTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}

	uri, content := params.TextDocument.URI, params.TextDocument.Text
	s.setContent(uri, content)
	go s.publishDiagnostics(ctx, conn, uri, content)
	return nil, nil
}

func (s *server) didChange(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidChangeTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil || len(params.ContentChanges) == 0 {
		return nil, errInvalidParams
	}

	// ContentChanges includes full text since the server is only advertised to
	// support that; see the initialize method.
	uri, content := params.TextDocument.URI, params.ContentChanges[0].Text
	s.setContent(uri, content)
	go s.publishDiagnostics(ctx, conn, uri, content)
	return nil, nil
}

func (s *server) didClose(_ context.Context, _ jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidCloseTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.content, params.TextDocument.URI)
	return nil, nil
}

func (s *server) hover(_ context.Context, _ jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.TextDocumentPositionParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}
	content := s.getContent(params.TextDocument.URI)
	from, to := wordAt(content, lspPositionToIdx(content, params.Position))
	sym := s.syms.Lookup(content[from:to])
	if sym == nil {
		return lsp.Hover{}, nil
	}
	rg := lspRangeFromRange(content, diag.Ranging{From: from, To: to})
	return lsp.Hover{
		Contents: []lsp.MarkedString{lsp.RawMarkedString(describe(sym))},
		Range:    &rg,
	}, nil
}

func describe(sym *symtab.Symbol) string {
	switch sym.Kind {
	case symtab.Keyword, symtab.Method:
		m := sym.Method
		desc := fmt.Sprintf("%s %s: %s", m.Type, sym.Kind, m.Name)
		if len(m.Params) > 0 {
			var params []string
			for _, p := range m.Params {
				params = append(params, p.Name)
			}
			desc += " " + strings.Join(params, " ")
		}
		if m.Help != "" {
			desc += "\n\n" + m.Help
		}
		return desc
	default:
		return fmt.Sprintf("%s: %s", sym.Kind, sym.Name)
	}
}

func (s *server) completion(_ context.Context, _ jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.CompletionParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}

	content := s.getContent(params.TextDocument.URI)
	dot := lspPositionToIdx(content, params.Position)
	from, _ := wordAt(content, dot)
	prefix := content[from:dot]
	lspRange := lspRangeFromRange(content, diag.Ranging{From: from, To: dot})

	items := []lsp.CompletionItem{}
	kinds := []struct {
		kind symtab.Kind
		item lsp.CompletionItemKind
	}{
		{symtab.Keyword, lsp.CIKField},
		{symtab.Method, lsp.CIKFunction},
		{symtab.PosType, lsp.CIKEnum},
		{symtab.Reserved, lsp.CIKKeyword},
	}
	for _, k := range kinds {
		for _, name := range s.syms.Names(k.kind) {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			items = append(items, lsp.CompletionItem{
				Label: name,
				Kind:  k.item,
				TextEdit: &lsp.TextEdit{
					Range:   lspRange,
					NewText: name,
				},
			})
		}
	}
	return items, nil
}

func (s *server) setContent(uri lsp.DocumentURI, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[uri] = content
}

func (s *server) getContent(uri lsp.DocumentURI) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[uri]
}

func (s *server) publishDiagnostics(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, content string) {
	conn.Notify(ctx, "textDocument/publishDiagnostics",
		lsp.PublishDiagnosticsParams{URI: uri, Diagnostics: s.diagnostics(content)})
}

// diagnostics parses and compiles content in a fresh collection. Without a
// topology, errors about needing one are left out.
func (s *server) diagnostics(content string) []lsp.Diagnostic {
	sc := selection.NewCollection()
	if s.top != nil {
		if err := sc.SetTopology(s.top, -1); err != nil {
			logger.Println("set topology:", err)
		}
	}
	if s.groups != nil {
		sc.SetIndexGroups(s.groups)
	}
	_, err := sc.ParseString(content, 0)
	if err == nil {
		err = sc.Compile()
	}

	diags := []lsp.Diagnostic{}
	for _, err := range diag.Errors(err) {
		if s.top == nil && errors.As(err, new(*selection.TopologyRequiredError)) {
			continue
		}
		diags = append(diags, toDiagnostic(content, err))
	}
	return diags
}

func toDiagnostic(content string, err error) lsp.Diagnostic {
	var e diag.Located
	if !errors.As(err, &e) {
		return lsp.Diagnostic{Severity: lsp.Error, Source: "selection", Message: err.Error()}
	}
	return lsp.Diagnostic{
		Range:    lspRangeFromRange(content, e),
		Severity: lsp.Error,
		Source:   e.Kind(),
		Message:  e.Msg(),
	}
}

// wordAt returns the bounds of the identifier-like word around idx.
func wordAt(s string, idx int) (from, to int) {
	isWord := func(r rune) bool {
		return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	from = idx
	for from > 0 && isWord(rune(s[from-1])) {
		from--
	}
	to = idx
	for to < len(s) && isWord(rune(s[to])) {
		to++
	}
	return from, to
}

func lspRangeFromRange(s string, r diag.Ranger) lsp.Range {
	rg := r.Range()
	return lsp.Range{
		Start: lspPositionFromIdx(s, rg.From),
		End:   lspPositionFromIdx(s, rg.To),
	}
}

func lspPositionToIdx(s string, pos lsp.Position) int {
	var idx int
	walkString(s, func(i int, p lsp.Position) bool {
		idx = i
		return p.Line < pos.Line || (p.Line == pos.Line && p.Character < pos.Character)
	})
	return idx
}

func lspPositionFromIdx(s string, idx int) lsp.Position {
	var pos lsp.Position
	walkString(s, func(i int, p lsp.Position) bool {
		pos = p
		return i < idx
	})
	return pos
}

// Generates (index, lspPosition) pairs in s, stopping if f returns false.
func walkString(s string, f func(i int, p lsp.Position) bool) {
	var p lsp.Position
	lastCR := false

	for i, r := range s {
		if !f(i, p) {
			return
		}
		switch {
		case r == '\r':
			p.Line++
			p.Character = 0
		case r == '\n':
			if lastCR {
				// Ignore \n if it's part of a \r\n sequence
			} else {
				p.Line++
				p.Character = 0
			}
		case r <= 0xFFFF:
			// Encoded in UTF-16 with one unit
			p.Character++
		default:
			// Encoded in UTF-16 with two units
			p.Character += 2
		}
		lastCR = r == '\r'
	}
	f(len(s), p)
}
