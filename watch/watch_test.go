package watch_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/watch"
)

type fakeServices struct {
	mu    sync.Mutex
	calls []protocol.DidChangeWatchedFilesParams
}

func (f *fakeServices) SendNotification(ctx context.Context, method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := params.(protocol.DidChangeWatchedFilesParams)
	if ok {
		f.calls = append(f.calls, p)
	}
	return nil
}

func (f *fakeServices) snapshot() []protocol.DidChangeWatchedFilesParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.DidChangeWatchedFilesParams, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestFeatureBatchesWatchedFileEvents(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeServices{}

	f, err := watch.New(svc, nil)
	require.NoError(t, err)
	t.Cleanup(f.Dispose)

	opts, err := json.Marshal(protocol.DidChangeWatchedFilesRegistrationOptions{
		Watchers: []protocol.FileSystemWatcher{
			{GlobPattern: filepath.ToSlash(filepath.Join(dir, "*.txt"))},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.Register("reg-1", opts))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))

	require.Eventually(t, func() bool {
		return len(svc.snapshot()) == 1
	}, 2*time.Second, 20*time.Millisecond, "expected exactly one batched notification")

	calls := svc.snapshot()
	require.Len(t, calls, 1)
	assert.NotEmpty(t, calls[0].Changes)
}

func TestFeatureUnregisterStopsDelivering(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeServices{}

	f, err := watch.New(svc, nil)
	require.NoError(t, err)
	t.Cleanup(f.Dispose)

	opts, err := json.Marshal(protocol.DidChangeWatchedFilesRegistrationOptions{
		Watchers: []protocol.FileSystemWatcher{
			{GlobPattern: filepath.ToSlash(filepath.Join(dir, "*.txt"))},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.Register("reg-1", opts))
	require.NoError(t, f.Unregister("reg-1"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("hi"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, svc.snapshot(), "no notification should be delivered after unregistering")
}

func TestFeatureUnregisterUnknownID(t *testing.T) {
	svc := &fakeServices{}
	f, err := watch.New(svc, nil)
	require.NoError(t, err)
	t.Cleanup(f.Dispose)

	err = f.Unregister("ghost")
	require.Error(t, err)
}
