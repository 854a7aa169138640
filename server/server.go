package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
	"github.com/ondrik-labs/lsprotocol/progress"
	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/rpc"
)

// dispatcherServices adapts *rpc.Dispatcher to registry.Services (the Logf
// method the dispatcher itself has no need for) so server-side code can be
// handed the same Services shape the client package uses.
type dispatcherServices struct {
	*rpc.Dispatcher
	logger *log.Logger
}

func (d dispatcherServices) Logf(format string, args ...any) { d.logger.Printf(format, args...) }

// Server represents an LSP server: a dispatcher driving the lifecycle
// handshake, server-initiated dynamic registration, configuration, and
// progress, plus whatever language-feature handlers the embedder registers.
type Server struct {
	conn       *jsonrpc2.Conn
	dispatcher *rpc.Dispatcher
	services   dispatcherServices
	logger     *log.Logger

	state atomic.Value // serverState

	shutdownOnce sync.Once

	initParams *protocol.InitializeParams
	initResult *protocol.InitializeResult

	serverInfo      protocol.ServerInfo
	executeCommands []string

	// Progress is the server-initiated half of §4.7: create a token on the
	// client, then stream begin/report/end values for it.
	Progress *progress.Source

	configMu     sync.Mutex
	onConfigPush func(settings json.RawMessage)

	nextRegID int64
}

// serverState represents the lifecycle state of the server.
type serverState int

const (
	stateUninitialized serverState = iota
	stateInitializing
	stateRunning
	stateShutdown
)

// NewServer creates a new LSP server instance, typically communicating over
// stdin/stdout.
func NewServer(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(o.stream))
	dispatcher := rpc.New(conn, rpc.WithLogger(o.logger))

	s := &Server{
		conn:       conn,
		dispatcher: dispatcher,
		services:   dispatcherServices{Dispatcher: dispatcher, logger: o.logger},
		logger:     o.logger,
		serverInfo: protocol.ServerInfo{Name: "lspgo", Version: "0.1.0"},
	}
	s.state.Store(stateUninitialized)
	s.Progress = progress.NewSource(dispatcher)

	s.dispatcher.SetPreRequestHook(s.admitRequest)
	s.dispatcher.SetPreNotificationHook(s.admitNotification)

	s.registerDefaultHandlers()
	return s
}

// SetServerInfo overrides the name/version advertised in the initialize
// response.
func (s *Server) SetServerInfo(name, version string) {
	s.serverInfo = protocol.ServerInfo{Name: name, Version: version}
}

// SetExecuteCommands records the command identifiers the
// workspace/executeCommand handler accepts, for advertising in
// ServerCapabilities (the handler's reflect.Type alone can't recover them).
func (s *Server) SetExecuteCommands(commands []string) {
	s.executeCommands = commands
}

// admitRequest gates inbound requests on lifecycle state, replacing the
// teacher's inline state checks in handleRequest with the dispatcher's
// PreRequestHook.
func (s *Server) admitRequest(method string) *rpc.ErrorObject {
	switch s.currentState() {
	case stateShutdown:
		return rpc.NewError(rpc.InvalidRequest, "server is shutting down")
	case stateUninitialized:
		if method != protocol.MethodInitialize {
			return rpc.NewError(jsonrpc2.ServerNotInitialized, "server not initialized")
		}
	case stateInitializing:
		if method != protocol.MethodInitialize {
			return rpc.NewError(jsonrpc2.ServerNotInitialized, "server is initializing")
		}
	}
	return nil
}

// admitNotification gates inbound notifications: everything is dropped
// during shutdown except exit, and nothing but exit is accepted before
// initialization (cancellation is handled earlier, inside the dispatcher).
func (s *Server) admitNotification(method string) bool {
	state := s.currentState()
	if state == stateShutdown && method != protocol.MethodExit {
		return false
	}
	if state == stateUninitialized && method != protocol.MethodExit {
		return false
	}
	return true
}

// registerDefaultHandlers registers handlers for required LSP methods.
func (s *Server) registerDefaultHandlers() {
	must(s.dispatcher.OnRequest(protocol.MethodInitialize, s.handleInitialize))
	must(s.dispatcher.OnNotification(protocol.MethodInitialized, s.handleInitialized))
	must(s.dispatcher.OnRequest(protocol.MethodShutdown, s.handleShutdown))
	must(s.dispatcher.OnNotification(protocol.MethodExit, s.handleExit))
	must(s.dispatcher.OnNotification(protocol.MethodWorkspaceDidChangeConfiguration, s.handleDidChangeConfiguration))
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("server: invalid built-in handler registration: %v", err))
	}
}

// Register associates a handler function with an LSP method name, for
// embedder-provided language features (hover, completion, ...). The handler
// func must match one of the signature patterns the dispatcher accepts (see
// rpc/handler.go).
func (s *Server) Register(method string, handlerFunc any) error {
	return s.dispatcher.OnRequest(method, handlerFunc)
}

// RegisterNotification associates a handler function with an inbound
// notification method.
func (s *Server) RegisterNotification(method string, handlerFunc any) error {
	return s.dispatcher.OnNotification(method, handlerFunc)
}

// Run starts the server's dispatcher loop. It blocks until the connection is
// closed, the context is cancelled, or exit triggers an os.Exit.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("server starting")
	defer s.logger.Println("server stopped")
	return s.dispatcher.Run(ctx)
}

// currentState safely gets the current server state.
func (s *Server) currentState() serverState {
	state, _ := s.state.Load().(serverState)
	return state
}

// --- Standard handlers ---

// handleInitialize responds to the initialize request: reads client
// capabilities, composes ServerCapabilities from the handlers actually
// registered, and responds. The server does not move to stateRunning until
// it sees 'initialized'.
func (s *Server) handleInitialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if !s.state.CompareAndSwap(stateUninitialized, stateInitializing) {
		return nil, rpc.NewError(rpc.InvalidRequest, "server already initialized or is shutting down")
	}
	s.initParams = params
	if params.ClientInfo != nil {
		s.logger.Printf("client: %s %s", params.ClientInfo.Name, params.ClientInfo.Version)
	}

	caps := s.determineServerCapabilities()
	result := &protocol.InitializeResult{
		Capabilities: caps,
		ServerInfo:   &s.serverInfo,
	}
	s.initResult = result
	return result, nil
}

// determineServerCapabilities inspects registered handlers to build the
// capabilities struct, asking the dispatcher instead of a private handler
// map.
func (s *Server) determineServerCapabilities() protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{}
	d := s.dispatcher

	hasOpen := d.HasHandler(protocol.MethodTextDocumentDidOpen)
	hasChange := d.HasHandler(protocol.MethodTextDocumentDidChange)
	hasClose := d.HasHandler(protocol.MethodTextDocumentDidClose)
	hasSave := d.HasHandler(protocol.MethodTextDocumentDidSave)
	hasWillSave := d.HasHandler(protocol.MethodTextDocumentWillSave)
	hasWillSaveWaitUntil := d.HasHandler(protocol.MethodTextDocumentWillSaveWaitUntil)

	if hasOpen || hasChange || hasClose || hasSave || hasWillSave || hasWillSaveWaitUntil {
		caps.TextDocumentSync = &protocol.TextDocumentSyncOptions{
			OpenClose:         hasOpen || hasClose,
			Change:            protocol.SyncFull,
			WillSave:          hasWillSave,
			WillSaveWaitUntil: hasWillSaveWaitUntil,
		}
		if hasSave {
			caps.TextDocumentSync.Save = &protocol.SaveOptions{IncludeText: false}
		}
	}

	if d.HasHandler(protocol.MethodTextDocumentHover) {
		caps.HoverProvider = &protocol.HoverOptions{}
	}

	if d.HasHandler(protocol.MethodTextDocumentCompletion) {
		caps.CompletionProvider = &protocol.CompletionOptions{}
		if d.HasHandler(protocol.MethodCompletionItemResolve) {
			caps.CompletionProvider.ResolveProvider = true
		}
	}

	if d.HasHandler(protocol.MethodTextDocumentDefinition) {
		caps.DefinitionProvider = &protocol.DefinitionOptions{}
	}

	if d.HasHandler(protocol.MethodTextDocumentCodeAction) {
		opts := &protocol.CodeActionOptions{}
		if d.HasHandler(protocol.MethodCodeActionResolve) {
			opts.ResolveProvider = true
		}
		caps.CodeActionProvider = opts
	}

	if d.HasHandler(protocol.MethodWorkspaceExecuteCommand) {
		caps.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{Commands: s.executeCommands}
	}

	return caps
}

// handleInitialized marks the server fully running once the client
// acknowledges the initialize response.
func (s *Server) handleInitialized(ctx context.Context, params *protocol.InitializedParams) error {
	if s.state.CompareAndSwap(stateInitializing, stateRunning) {
		s.logger.Println("server running")
	} else {
		s.logger.Printf("received 'initialized' in unexpected state: %d", s.currentState())
	}
	return nil
}

// handleShutdown marks the server as shutting down. The client is expected
// to send 'exit' afterward.
func (s *Server) handleShutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		if s.state.CompareAndSwap(stateRunning, stateShutdown) ||
			s.state.CompareAndSwap(stateInitializing, stateShutdown) ||
			s.state.CompareAndSwap(stateUninitialized, stateShutdown) {
			s.logger.Println("server shutting down")
		}
	})
	return nil
}

// handleExit terminates the process: code 0 if shutdown completed first,
// code 1 otherwise, per the LSP spec.
func (s *Server) handleExit(ctx context.Context) {
	exitCode := 1
	if s.currentState() == stateShutdown {
		exitCode = 0
	}

	if err := s.dispatcher.Close(); err != nil {
		s.logger.Printf("error closing connection during exit: %v", err)
	}
	os.Exit(exitCode)
}

// handleDidChangeConfiguration serves the push half of §4.9: the client
// notifies the server that host configuration changed. The settings payload
// is opaque here; install a handler via OnConfigurationChanged to interpret
// it.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) {
	s.configMu.Lock()
	fn := s.onConfigPush
	s.configMu.Unlock()
	if fn != nil {
		fn(params.Settings)
	}
}

// OnConfigurationChanged installs a callback invoked whenever the client
// pushes workspace/didChangeConfiguration.
func (s *Server) OnConfigurationChanged(fn func(settings json.RawMessage)) {
	s.configMu.Lock()
	s.onConfigPush = fn
	s.configMu.Unlock()
}

// RequestConfiguration issues the pull half of §4.9: workspace/configuration,
// returning values aligned positionally with items.
func (s *Server) RequestConfiguration(ctx context.Context, items []protocol.ConfigurationItem) ([]any, error) {
	raw, err := s.dispatcher.SendRequest(ctx, protocol.MethodWorkspaceConfiguration, protocol.ConfigurationParams{Items: items})
	if err != nil {
		return nil, fmt.Errorf("workspace/configuration request failed: %w", err)
	}
	var result []any
	if err := rpc.DecodeResult(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode workspace/configuration result: %w", err)
	}
	return result, nil
}

// RegisterCapability sends client/registerCapability for a single dynamic
// registration and reports the client's per-element outcome (§4.3). Dynamic
// registration requests may be sent any time after 'initialized'.
func (s *Server) RegisterCapability(ctx context.Context, id, method string, options any) error {
	var raw json.RawMessage
	if options != nil {
		b, err := json.Marshal(options)
		if err != nil {
			return fmt.Errorf("failed to marshal registration options: %w", err)
		}
		raw = b
	}

	resultRaw, err := s.dispatcher.SendRequest(ctx, protocol.MethodClientRegisterCapability, protocol.RegistrationParams{
		Registrations: []protocol.Registration{{ID: id, Method: method, RegisterOptions: raw}},
	})
	if err != nil {
		return fmt.Errorf("client/registerCapability failed: %w", err)
	}

	var result protocol.RegisterCapabilityResult
	if err := rpc.DecodeResult(resultRaw, &result); err != nil {
		return fmt.Errorf("failed to decode client/registerCapability result: %w", err)
	}
	for _, outcome := range result.Results {
		if outcome.ID == id && outcome.Error != "" {
			return fmt.Errorf("client rejected registration %s: %s", id, outcome.Error)
		}
	}
	return nil
}

// UnregisterCapability sends client/unregisterCapability for a single id.
func (s *Server) UnregisterCapability(ctx context.Context, id, method string) error {
	resultRaw, err := s.dispatcher.SendRequest(ctx, protocol.MethodClientUnregisterCapability, protocol.UnregistrationParams{
		Unregisterations: []protocol.Unregistration{{ID: id, Method: method}},
	})
	if err != nil {
		return fmt.Errorf("client/unregisterCapability failed: %w", err)
	}

	var result protocol.UnregisterCapabilityResult
	if err := rpc.DecodeResult(resultRaw, &result); err != nil {
		return fmt.Errorf("failed to decode client/unregisterCapability result: %w", err)
	}
	for _, outcome := range result.Results {
		if outcome.ID == id && outcome.Error != "" {
			return fmt.Errorf("client rejected unregistration %s: %s", id, outcome.Error)
		}
	}
	return nil
}

// NextRegistrationID generates a process-unique id for a server-initiated
// dynamic registration.
func (s *Server) NextRegistrationID() string {
	return fmt.Sprintf("reg-%d", atomic.AddInt64(&s.nextRegID, 1))
}

// Notify sends a notification to the client, e.g.
// textDocument/publishDiagnostics.
func (s *Server) Notify(ctx context.Context, method string, params any) error {
	if s.currentState() != stateRunning {
		return fmt.Errorf("cannot send notification %s while server state is %d", method, s.currentState())
	}
	if err := s.dispatcher.SendNotification(ctx, method, params); err != nil {
		return fmt.Errorf("failed to write notification %s: %w", method, err)
	}
	return nil
}
