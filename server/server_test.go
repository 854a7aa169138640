package server_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/rpc"
	"github.com/ondrik-labs/lsprotocol/server"
)

// fakeClient is a minimal peer dispatcher standing in for a real editor,
// just enough to drive the server through initialize and a server-initiated
// registration round-trip.
func fakeClient(t *testing.T, conn net.Conn) *rpc.Dispatcher {
	t.Helper()
	d := rpc.New(jsonrpc2.NewConn(jsonrpc2.NewStream(conn)))
	require.NoError(t, d.OnRequest(protocol.MethodClientRegisterCapability, func(ctx context.Context, params protocol.RegistrationParams) (protocol.RegisterCapabilityResult, error) {
		results := make([]protocol.RegistrationOutcome, len(params.Registrations))
		for i, reg := range params.Registrations {
			results[i] = protocol.RegistrationOutcome{ID: reg.ID}
		}
		return protocol.RegisterCapabilityResult{Results: results}, nil
	}))
	return d
}

func TestServerInitializeHandshake(t *testing.T) {
	connA, connB := net.Pipe()
	s := server.NewServer(server.WithStream(connA))
	require.NoError(t, s.Register(protocol.MethodTextDocumentHover, func(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
		return &protocol.Hover{}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	client := fakeClient(t, connB)
	go client.Run(ctx)

	raw, err := client.SendRequest(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		Capabilities: protocol.ClientCapabilities{},
	})
	require.NoError(t, err)

	var result protocol.InitializeResult
	require.NoError(t, rpc.DecodeResult(raw, &result))
	require.NotNil(t, result.Capabilities.HoverProvider)
	assert.Nil(t, result.Capabilities.CompletionProvider)

	require.NoError(t, client.SendNotification(ctx, protocol.MethodInitialized, protocol.InitializedParams{}))
}

func TestServerRejectsRequestsBeforeInitialize(t *testing.T) {
	connA, connB := net.Pipe()
	s := server.NewServer(server.WithStream(connA))
	require.NoError(t, s.Register(protocol.MethodTextDocumentHover, func(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
		return &protocol.Hover{}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	client := fakeClient(t, connB)
	go client.Run(ctx)

	_, err := client.SendRequest(ctx, protocol.MethodTextDocumentHover, protocol.HoverParams{})
	require.Error(t, err)
}

func TestServerRegisterCapabilitySendsToClient(t *testing.T) {
	connA, connB := net.Pipe()
	s := server.NewServer(server.WithStream(connA))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	client := fakeClient(t, connB)
	go client.Run(ctx)

	_, err := client.SendRequest(ctx, protocol.MethodInitialize, protocol.InitializeParams{})
	require.NoError(t, err)
	require.NoError(t, client.SendNotification(ctx, protocol.MethodInitialized, protocol.InitializedParams{}))

	done := make(chan error, 1)
	go func() {
		done <- s.RegisterCapability(ctx, s.NextRegistrationID(), protocol.MethodTextDocumentDidChange, protocol.TextDocumentRegistrationOptions{
			DocumentSelector: protocol.DocumentSelector{{Language: "go"}},
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RegisterCapability did not complete")
	}
}

func TestServerRequestConfiguration(t *testing.T) {
	connA, connB := net.Pipe()
	s := server.NewServer(server.WithStream(connA))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	client := rpc.New(jsonrpc2.NewConn(jsonrpc2.NewStream(connB)))
	require.NoError(t, client.OnRequest(protocol.MethodWorkspaceConfiguration, func(ctx context.Context, params protocol.ConfigurationParams) ([]any, error) {
		out := make([]any, len(params.Items))
		for i := range params.Items {
			out[i] = "value"
		}
		return out, nil
	}))
	go client.Run(ctx)

	_, err := client.SendRequest(ctx, protocol.MethodInitialize, protocol.InitializeParams{})
	require.NoError(t, err)
	require.NoError(t, client.SendNotification(ctx, protocol.MethodInitialized, protocol.InitializedParams{}))

	values, err := s.RequestConfiguration(ctx, []protocol.ConfigurationItem{{Section: "example"}})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "value", values[0])
}

func TestServerHandleDidChangeConfigurationInvokesCallback(t *testing.T) {
	connA, connB := net.Pipe()
	s := server.NewServer(server.WithStream(connA))

	received := make(chan json.RawMessage, 1)
	s.OnConfigurationChanged(func(settings json.RawMessage) { received <- settings })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	client := rpc.New(jsonrpc2.NewConn(jsonrpc2.NewStream(connB)))
	go client.Run(ctx)

	_, err := client.SendRequest(ctx, protocol.MethodInitialize, protocol.InitializeParams{})
	require.NoError(t, err)
	require.NoError(t, client.SendNotification(ctx, protocol.MethodInitialized, protocol.InitializedParams{}))

	require.NoError(t, client.SendNotification(ctx, protocol.MethodWorkspaceDidChangeConfiguration, protocol.DidChangeConfigurationParams{
		Settings: json.RawMessage(`{"example":true}`),
	}))

	select {
	case settings := <-received:
		assert.JSONEq(t, `{"example":true}`, string(settings))
	case <-time.After(2 * time.Second):
		t.Fatal("didChangeConfiguration callback was not invoked")
	}
}
