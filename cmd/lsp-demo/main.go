// Command lsp-demo wires a client and a server runtime together over an
// in-process pipe and drives one end-to-end exchange: initialize, open a
// document through the sync engine, resolve a hover for the word under the
// cursor, run the willSave/willSaveWaitUntil pre-save hooks, and close, the
// way a real editor/language-server pair would over stdio.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ondrik-labs/lsprotocol/client"
	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/rpc"
	"github.com/ondrik-labs/lsprotocol/server"
	"github.com/ondrik-labs/lsprotocol/supervisor"
)

// main drives the client connection through a supervisor (§4.6): the demo
// exchange runs as the supervisor's StartFunc, MarkRunning flips the state
// machine Starting->Running once the handshake completes, and the run
// cancels its own context on a clean exit so the supervisor's restart policy
// never has to kick in for this single-pass demo.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sup *supervisor.Supervisor
	sup = supervisor.New(
		func(ctx context.Context) error {
			err := runOnce(ctx, sup)
			if err == nil {
				cancel()
			}
			return err
		},
		func() { log.Printf("lsp-demo: supervisor cleanup") },
		supervisor.WithLogger(log.Default()),
	)

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("supervisor run failed: %v", err)
	}
}

// runOnce performs one initialize/open/hover/willSave/close/shutdown exchange
// between an in-process client and server pair connected over net.Pipe.
func runOnce(ctx context.Context, sup *supervisor.Supervisor) error {
	clientConn, serverConn := net.Pipe()

	lspServer := newDemoServer(serverConn)
	go func() {
		if err := lspServer.srv.Run(ctx); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	store := newDemoConfigStore()
	c, err := client.New(
		client.WithStream(clientConn),
		client.WithClientInfo("lsp-demo", "0.1.0"),
		client.WithConfigStore(store),
		client.WithApplyEditFunc(func(ctx context.Context, edit protocol.WorkspaceEdit) (bool, string) {
			return true, ""
		}),
	)
	if err != nil {
		return err
	}
	go func() {
		if err := c.Dispatcher().Run(ctx); err != nil {
			log.Printf("client dispatcher stopped: %v", err)
		}
	}()

	result, err := c.Initialize(ctx, nil, nil)
	if err != nil {
		return err
	}
	sup.MarkRunning()
	log.Printf("negotiated capabilities: hover=%v completion=%v", result.Capabilities.HoverProvider != nil, result.Capabilities.CompletionProvider != nil)

	const uri protocol.DocumentURI = "file:///demo.go"
	const text = "package main\n\nfunc main() {\n\tgreeting := \"hello\"\n}\n"
	if err := c.Sync.Open(ctx, uri, "go", 1, text); err != nil {
		return err
	}

	raw, err := c.Dispatcher().SendRequest(ctx, protocol.MethodTextDocumentHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     protocol.Position{Line: 3, Character: 2},
		},
	})
	if err != nil {
		return err
	}
	var hover protocol.Hover
	if err := rpc.DecodeResult(raw, &hover); err != nil {
		return err
	}
	log.Printf("hover: %s", hover.Contents.Value)

	if err := c.Sync.WillSave(ctx, uri, protocol.SaveManual); err != nil {
		return err
	}
	edits, err := c.Sync.WillSaveWaitUntil(ctx, uri, protocol.SaveManual)
	if err != nil {
		return err
	}
	log.Printf("willSaveWaitUntil: %d edit(s)", len(edits))

	if err := c.Sync.Close(ctx, uri); err != nil {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

// demoServer is a minimal language server: an in-memory document store and
// a word-at-position hover, standing in for real analysis.
type demoServer struct {
	srv *server.Server

	mu   sync.RWMutex
	docs map[protocol.DocumentURI]string
}

func newDemoServer(conn net.Conn) *demoServer {
	d := &demoServer{docs: make(map[protocol.DocumentURI]string)}
	d.srv = server.NewServer(server.WithStream(conn))
	d.srv.SetServerInfo("lsp-demo-server", "0.1.0")

	must(d.srv.Register(protocol.MethodTextDocumentHover, d.handleHover))
	must(d.srv.Register(protocol.MethodTextDocumentWillSaveWaitUntil, d.handleWillSaveWaitUntil))
	must(d.srv.RegisterNotification(protocol.MethodTextDocumentDidOpen, d.handleDidOpen))
	must(d.srv.RegisterNotification(protocol.MethodTextDocumentDidChange, d.handleDidChange))
	must(d.srv.RegisterNotification(protocol.MethodTextDocumentDidClose, d.handleDidClose))
	must(d.srv.RegisterNotification(protocol.MethodTextDocumentWillSave, d.handleWillSave))
	return d
}

func must(err error) {
	if err != nil {
		log.Fatalf("lsp-demo: %v", err)
	}
}

func (d *demoServer) handleDidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) {
	d.mu.Lock()
	d.docs[params.TextDocument.URI] = params.TextDocument.Text
	d.mu.Unlock()
}

func (d *demoServer) handleDidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) {
	if len(params.ContentChanges) == 0 {
		return
	}
	// Full sync only in this demo: the last change carries the whole text.
	d.mu.Lock()
	d.docs[protocol.DocumentURI(params.TextDocument.URI)] = params.ContentChanges[len(params.ContentChanges)-1].Text
	d.mu.Unlock()
}

func (d *demoServer) handleDidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) {
	d.mu.Lock()
	delete(d.docs, params.TextDocument.URI)
	d.mu.Unlock()
}

func (d *demoServer) handleWillSave(ctx context.Context, params *protocol.WillSaveTextDocumentParams) {
	log.Printf("willSave: %s reason=%d", params.TextDocument.URI, params.Reason)
}

// handleWillSaveWaitUntil appends a trailing newline if the tracked text is
// missing one, standing in for a real formatter's pre-save fixup.
func (d *demoServer) handleWillSaveWaitUntil(ctx context.Context, params *protocol.WillSaveTextDocumentParams) ([]protocol.TextEdit, error) {
	d.mu.RLock()
	text, ok := d.docs[params.TextDocument.URI]
	d.mu.RUnlock()
	if !ok || strings.HasSuffix(text, "\n") {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	lastLine := uint(len(lines) - 1)
	lastCol := uint(len(lines[len(lines)-1]))
	return []protocol.TextEdit{{
		Range:   protocol.Range{Start: protocol.Position{Line: lastLine, Character: lastCol}, End: protocol.Position{Line: lastLine, Character: lastCol}},
		NewText: "\n",
	}}, nil
}

func (d *demoServer) handleHover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	d.mu.RLock()
	text, ok := d.docs[params.TextDocument.URI]
	d.mu.RUnlock()
	if !ok {
		return &protocol.Hover{Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: "no document"}}, nil
	}

	word := wordAt(text, params.Position)
	if word == "" {
		return &protocol.Hover{Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: "no symbol here"}}, nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: "symbol: " + word},
	}, nil
}

// wordAt returns the identifier-like token surrounding pos in text, or "" if
// none.
func wordAt(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	isWordChar := func(r byte) bool {
		return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}

	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	return line[start:end]
}

// demoConfigStore is a trivial fixed-value config.Store.
type demoConfigStore struct{}

func newDemoConfigStore() *demoConfigStore { return &demoConfigStore{} }

func (demoConfigStore) Get(section string, scopeURI *string) (any, bool) {
	if section == "lsp-demo" {
		return map[string]any{"enabled": true}, true
	}
	return nil, false
}
