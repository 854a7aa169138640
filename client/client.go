// Package client assembles a client-side LSP runtime: the framed transport,
// the two-way dispatcher, the feature registry, and the document-sync,
// file-watch, progress, workspace-edit, and configuration features, wired
// together the same way server.Server wires its own handler map (§4.1-4.9).
package client

import (
	"context"
	"fmt"
	"log"

	"github.com/ondrik-labs/lsprotocol/config"
	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
	"github.com/ondrik-labs/lsprotocol/progress"
	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/registry"
	"github.com/ondrik-labs/lsprotocol/rpc"
	"github.com/ondrik-labs/lsprotocol/sync"
	"github.com/ondrik-labs/lsprotocol/watch"
	"github.com/ondrik-labs/lsprotocol/workspaceedit"
)

// dispatcherServices adapts *rpc.Dispatcher to registry.Services by adding
// the Logf method the dispatcher itself doesn't need for its own purposes.
type dispatcherServices struct {
	*rpc.Dispatcher
	logger *log.Logger
}

func (d dispatcherServices) Logf(format string, args ...any) { d.logger.Printf(format, args...) }

// Client is a client-side LSP runtime: one connection, its negotiated
// capabilities, and the standard feature set wired to it.
type Client struct {
	logger     *log.Logger
	dispatcher *rpc.Dispatcher
	services   dispatcherServices
	registry   *registry.Registry

	Sync          *sync.Engine
	Watch         *watch.Feature
	Progress      *progress.Manager
	WorkspaceEdit *workspaceedit.Handler
	Config        *config.Bridge

	clientInfo         clientInfo
	serverCapabilities protocol.ServerCapabilities
}

// New creates a Client bound to stream, with every standard feature wired
// but not yet initialized; call Initialize to run the handshake.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.stream == nil {
		return nil, fmt.Errorf("client: no stream configured, use WithStream")
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(o.stream))
	dispatcher := rpc.New(conn, rpc.WithLogger(o.logger))
	services := dispatcherServices{Dispatcher: dispatcher, logger: o.logger}

	c := &Client{
		logger:     o.logger,
		dispatcher: dispatcher,
		services:   services,
		registry:   registry.New(),
		clientInfo: o.clientInfo,
	}

	c.Sync = sync.New(services)
	c.registry.Add(sync.NewFeature(c.Sync))

	watchFeature, err := watch.New(services, o.logger)
	if err != nil {
		return nil, fmt.Errorf("client: failed to start file watcher: %w", err)
	}
	c.Watch = watchFeature
	c.registry.Add(watchFeature)

	c.Progress = progress.New(services, o.progressFactory)

	if o.configStore != nil {
		c.Config = config.New(services, o.configStore)
	}
	if o.applier != nil {
		c.WorkspaceEdit = workspaceedit.New(c.Sync, o.applier)
	}

	c.installHandlers()
	return c, nil
}

// Dispatcher exposes the underlying RPC dispatcher, e.g. to feed a Run loop.
func (c *Client) Dispatcher() *rpc.Dispatcher { return c.dispatcher }

// Registry exposes the feature registry, e.g. for tests asserting wiring.
func (c *Client) Registry() *registry.Registry { return c.registry }

// ServerCapabilities returns the capabilities negotiated by the last
// Initialize call.
func (c *Client) ServerCapabilities() protocol.ServerCapabilities { return c.serverCapabilities }

// installHandlers registers every inbound request/notification this runtime
// answers regardless of dynamic registration state.
func (c *Client) installHandlers() {
	must(c.dispatcher.OnRequest(protocol.MethodClientRegisterCapability, c.handleRegisterCapability))
	must(c.dispatcher.OnRequest(protocol.MethodClientRegisterFeature, c.handleRegisterCapability))
	must(c.dispatcher.OnRequest(protocol.MethodClientUnregisterCapability, c.handleUnregisterCapability))
	must(c.dispatcher.OnRequest(protocol.MethodClientUnregisterFeature, c.handleUnregisterCapability))

	must(c.dispatcher.OnRequest(protocol.MethodWindowWorkDoneProgressCreate, c.Progress.HandleCreate))
	must(c.dispatcher.OnNotification(protocol.MethodProgress, c.Progress.HandleProgress))

	if c.WorkspaceEdit != nil {
		must(c.dispatcher.OnRequest(protocol.MethodWorkspaceApplyEdit, c.WorkspaceEdit.HandleApplyEdit))
	}
	if c.Config != nil {
		must(c.dispatcher.OnRequest(protocol.MethodWorkspaceConfiguration, c.Config.HandleConfiguration))
	}
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("client: invalid built-in handler registration: %v", err))
	}
}

// Initialize runs the §4.3 client-side handshake: build capabilities, send
// initialize, normalize the response, call every feature's Initialize, send
// initialized.
func (c *Client) Initialize(ctx context.Context, rootURI *protocol.DocumentURI, initOptions []byte) (protocol.InitializeResult, error) {
	caps := protocol.ClientCapabilities{}
	c.registry.FillClientCapabilities(&caps)

	params := protocol.InitializeParams{
		RootURI:      rootURI,
		Capabilities: caps,
	}
	if c.clientInfo.name != "" {
		params.ClientInfo = &protocol.ClientInfo{Name: c.clientInfo.name, Version: c.clientInfo.version}
	}
	if len(initOptions) > 0 {
		params.InitializationOptions = initOptions
	}

	raw, err := c.dispatcher.SendRequest(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return protocol.InitializeResult{}, fmt.Errorf("initialize request failed: %w", err)
	}

	var result protocol.InitializeResult
	if err := rpc.DecodeResult(raw, &result); err != nil {
		return protocol.InitializeResult{}, fmt.Errorf("failed to decode initialize result: %w", err)
	}
	c.serverCapabilities = result.Capabilities

	if result.Capabilities.TextDocumentSync != nil {
		c.Sync.SetSyncKind(result.Capabilities.TextDocumentSync.Change)
	}

	c.registry.Initialize(result.Capabilities, protocol.DocumentSelector{})

	if err := c.dispatcher.SendNotification(ctx, protocol.MethodInitialized, protocol.InitializedParams{}); err != nil {
		return result, fmt.Errorf("initialized notification failed: %w", err)
	}
	return result, nil
}

// Shutdown runs the standard shutdown/exit request-then-notification
// sequence and closes the dispatcher.
func (c *Client) Shutdown(ctx context.Context) error {
	if _, err := c.dispatcher.SendRequest(ctx, protocol.MethodShutdown, nil); err != nil {
		return fmt.Errorf("shutdown request failed: %w", err)
	}
	if err := c.dispatcher.SendNotification(ctx, protocol.MethodExit, nil); err != nil {
		return fmt.Errorf("exit notification failed: %w", err)
	}
	c.registry.Dispose()
	return c.dispatcher.Close()
}
