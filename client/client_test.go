package client_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/client"
	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/rpc"
)

// fakeServer is a minimal peer dispatcher standing in for the real
// server-side runtime, just enough to drive the client through initialize
// and a dynamic registration round-trip.
func fakeServer(t *testing.T, conn net.Conn) *rpc.Dispatcher {
	t.Helper()
	d := rpc.New(jsonrpc2.NewConn(jsonrpc2.NewStream(conn)))
	require.NoError(t, d.OnRequest(protocol.MethodInitialize, func(ctx context.Context, params protocol.InitializeParams) (protocol.InitializeResult, error) {
		return protocol.InitializeResult{
			Capabilities: protocol.ServerCapabilities{
				TextDocumentSync: &protocol.TextDocumentSyncOptions{OpenClose: true, Change: protocol.SyncFull},
			},
		}, nil
	}))
	require.NoError(t, d.OnNotification(protocol.MethodInitialized, func(ctx context.Context, params protocol.InitializedParams) {}))
	return d
}

func TestClientInitializeHandshake(t *testing.T) {
	connA, connB := net.Pipe()
	server := fakeServer(t, connB)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	c, err := client.New(client.WithStream(connA))
	require.NoError(t, err)
	go c.Dispatcher().Run(ctx)

	result, err := c.Initialize(ctx, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Capabilities.TextDocumentSync)
	assert.Equal(t, protocol.SyncFull, result.Capabilities.TextDocumentSync.Change)
}

func TestClientRegisterCapabilityRoutesToSyncFeature(t *testing.T) {
	connA, connB := net.Pipe()
	server := fakeServer(t, connB)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	c, err := client.New(client.WithStream(connA))
	require.NoError(t, err)
	go c.Dispatcher().Run(ctx)

	_, err = c.Initialize(ctx, nil, nil)
	require.NoError(t, err)

	opts, err := json.Marshal(protocol.TextDocumentRegistrationOptions{
		DocumentSelector: protocol.DocumentSelector{{Language: "go"}},
	})
	require.NoError(t, err)

	raw, err := server.SendRequest(ctx, protocol.MethodClientRegisterCapability, protocol.RegistrationParams{
		Registrations: []protocol.Registration{
			{ID: "reg-1", Method: protocol.MethodTextDocumentDidChange, RegisterOptions: opts},
		},
	})
	require.NoError(t, err)

	var result protocol.RegisterCapabilityResult
	require.NoError(t, rpc.DecodeResult(raw, &result))
	require.Len(t, result.Results, 1)
	assert.Empty(t, result.Results[0].Error)

	require.NoError(t, c.Sync.Open(ctx, "file:///a.go", "go", 1, "hello"))
	version, ok := c.Sync.Tracked("file:///a.go")
	assert.True(t, ok)
	assert.Equal(t, 1, version)
}

func TestClientUnregisterUnknownIDReportsError(t *testing.T) {
	connA, connB := net.Pipe()
	server := fakeServer(t, connB)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	c, err := client.New(client.WithStream(connA))
	require.NoError(t, err)
	go c.Dispatcher().Run(ctx)

	_, err = c.Initialize(ctx, nil, nil)
	require.NoError(t, err)

	raw, err := server.SendRequest(ctx, protocol.MethodClientUnregisterCapability, protocol.UnregistrationParams{
		Unregisterations: []protocol.Unregistration{{ID: "ghost", Method: "textDocument/didChange"}},
	})
	require.NoError(t, err)

	var result protocol.UnregisterCapabilityResult
	require.NoError(t, rpc.DecodeResult(raw, &result))
	require.Len(t, result.Results, 1)
	assert.NotEmpty(t, result.Results[0].Error)
}

func TestClientShutdown(t *testing.T) {
	connA, connB := net.Pipe()
	server := fakeServer(t, connB)
	require.NoError(t, server.OnRequest(protocol.MethodShutdown, func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	c, err := client.New(client.WithStream(connA))
	require.NoError(t, err)
	go c.Dispatcher().Run(ctx)

	_, err = c.Initialize(ctx, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}
