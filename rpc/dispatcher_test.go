package rpc_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
	"github.com/ondrik-labs/lsprotocol/rpc"
)

// pair wires two dispatchers over an in-memory duplex pipe, mirroring a
// client/server connection without any subprocess or real socket.
func pair(t *testing.T) (a, b *rpc.Dispatcher) {
	t.Helper()
	connA, connB := net.Pipe()

	a = rpc.New(jsonrpc2.NewConn(jsonrpc2.NewStream(connA)))
	b = rpc.New(jsonrpc2.NewConn(jsonrpc2.NewStream(connB)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go a.Run(ctx)
	go b.Run(ctx)

	return a, b
}

func TestSendRequestEcho(t *testing.T) {
	a, b := pair(t)

	require.NoError(t, b.OnRequest("echo", func(ctx context.Context, params *json.RawMessage) (any, error) {
		var v any
		require.NoError(t, json.Unmarshal(*params, &v))
		return v, nil
	}))

	raw, err := a.SendRequest(context.Background(), "echo", map[string]any{"hello": "world"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, rpc.DecodeResult(raw, &got))
	assert.Equal(t, "world", got["hello"])
}

func TestMethodNotFound(t *testing.T) {
	a, _ := pair(t)

	_, err := a.SendRequest(context.Background(), "does/notExist", nil)
	require.Error(t, err)
	errObj, ok := err.(*rpc.ErrorObject)
	require.True(t, ok)
	assert.Equal(t, rpc.MethodNotFound, errObj.Code)
}

func TestCancellationBeforeResponse(t *testing.T) {
	a, b := pair(t)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, b.OnRequest("slow", func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			return rpc.NewError(rpc.RequestCancelled, "cancelled")
		case <-release:
			return nil
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := a.SendRequest(ctx, "slow", nil)
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		errObj, ok := err.(*rpc.ErrorObject)
		require.True(t, ok)
		assert.Equal(t, rpc.RequestCancelled, errObj.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation to resolve the request")
	}
	close(release)
}

func TestSendNotification(t *testing.T) {
	a, b := pair(t)

	got := make(chan string, 1)
	require.NoError(t, b.OnNotification("ping", func(ctx context.Context, params *json.RawMessage) {
		got <- string(*params)
	}))

	require.NoError(t, a.SendNotification(context.Background(), "ping", map[string]int{"n": 1}))

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"n":1}`, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}
