package registry_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/registry"
)

type fakeDynamic struct {
	registry.Feature
	methods      []string
	registered   map[string]json.RawMessage
	unregistered []string
	failRegister bool
}

func newFakeDynamic(name string, methods ...string) *fakeDynamic {
	return &fakeDynamic{
		Feature:    registry.NewBaseFeature(name),
		methods:    methods,
		registered: make(map[string]json.RawMessage),
	}
}

func (f *fakeDynamic) Messages() []string { return f.methods }

func (f *fakeDynamic) Register(id string, options json.RawMessage) error {
	if f.failRegister {
		return assert.AnError
	}
	f.registered[id] = options
	return nil
}

func (f *fakeDynamic) Unregister(id string) error {
	delete(f.registered, id)
	f.unregistered = append(f.unregistered, id)
	return nil
}

func TestRegistryRegisterRoutesByMethod(t *testing.T) {
	r := registry.New()
	watchers := newFakeDynamic("watchers", "workspace/didChangeWatchedFiles")
	r.Add(watchers)

	opts := json.RawMessage(`{"watchers":[]}`)
	require.NoError(t, r.Register("id-1", "workspace/didChangeWatchedFiles", opts))
	assert.Equal(t, opts, watchers.registered["id-1"])

	rec, ok := r.RecordFor("id-1")
	require.True(t, ok)
	assert.Equal(t, "workspace/didChangeWatchedFiles", rec.Method)
}

func TestRegistryRegisterUnknownMethod(t *testing.T) {
	r := registry.New()
	err := r.Register("id-1", "textDocument/completion", nil)
	require.Error(t, err)
}

func TestRegistryRegisterDuplicateID(t *testing.T) {
	r := registry.New()
	watchers := newFakeDynamic("watchers", "workspace/didChangeWatchedFiles")
	r.Add(watchers)

	require.NoError(t, r.Register("dup", "workspace/didChangeWatchedFiles", nil))
	err := r.Register("dup", "workspace/didChangeWatchedFiles", nil)
	require.Error(t, err)
}

func TestRegistryRegisterFailureDoesNotLeaveRecord(t *testing.T) {
	r := registry.New()
	watchers := newFakeDynamic("watchers", "workspace/didChangeWatchedFiles")
	watchers.failRegister = true
	r.Add(watchers)

	err := r.Register("id-1", "workspace/didChangeWatchedFiles", nil)
	require.Error(t, err)
	_, ok := r.RecordFor("id-1")
	assert.False(t, ok)
}

func TestRegistryUnregisterUnknownID(t *testing.T) {
	r := registry.New()
	err := r.Unregister("ghost")
	require.Error(t, err)
}

func TestRegistryUnregisterRemovesRecord(t *testing.T) {
	r := registry.New()
	watchers := newFakeDynamic("watchers", "workspace/didChangeWatchedFiles")
	r.Add(watchers)
	require.NoError(t, r.Register("id-1", "workspace/didChangeWatchedFiles", nil))

	require.NoError(t, r.Unregister("id-1"))
	_, ok := r.RecordFor("id-1")
	assert.False(t, ok)
	assert.Equal(t, []string{"id-1"}, watchers.unregistered)

	err := r.Unregister("id-1")
	require.Error(t, err)
}

func TestRegistryFillClientCapabilitiesVisitsAllFeatures(t *testing.T) {
	r := registry.New()
	var order []string
	r.Add(recordingFeature{name: "a", order: &order})
	r.Add(recordingFeature{name: "b", order: &order})

	caps := &protocol.ClientCapabilities{}
	r.FillClientCapabilities(caps)
	assert.Equal(t, []string{"a", "b"}, order)
}

type recordingFeature struct {
	registry.Feature
	name  string
	order *[]string
}

func (r recordingFeature) FillClientCapabilities(*protocol.ClientCapabilities) {
	*r.order = append(*r.order, r.name)
}

func TestRegistryRecordsByMethod(t *testing.T) {
	r := registry.New()
	watchers := newFakeDynamic("watchers", "workspace/didChangeWatchedFiles")
	r.Add(watchers)

	require.NoError(t, r.Register("id-1", "workspace/didChangeWatchedFiles", nil))
	require.NoError(t, r.Register("id-2", "workspace/didChangeWatchedFiles", nil))

	recs := r.RecordsByMethod("workspace/didChangeWatchedFiles")
	assert.Len(t, recs, 2)
}
