package config_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/config"
	"github.com/ondrik-labs/lsprotocol/protocol"
)

type fakeStore struct {
	values map[string]any
}

func (f *fakeStore) Get(section string, scopeURI *string) (any, bool) {
	v, ok := f.values[section]
	return v, ok
}

type fakeServices struct {
	sent []protocol.DidChangeConfigurationParams
}

func (f *fakeServices) SendNotification(ctx context.Context, method string, params any) error {
	if p, ok := params.(protocol.DidChangeConfigurationParams); ok {
		f.sent = append(f.sent, p)
	}
	return nil
}

func TestPushChangedBuildsSettingsFromStore(t *testing.T) {
	store := &fakeStore{values: map[string]any{"editor.tabSize": 4, "editor.insertSpaces": true}}
	svc := &fakeServices{}
	b := config.New(svc, store)

	require.NoError(t, b.PushChanged(context.Background(), []string{"editor.tabSize", "editor.insertSpaces"}, nil))

	require.Len(t, svc.sent, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(svc.sent[0].Settings, &decoded))
	assert.Equal(t, float64(4), decoded["editor.tabSize"])
	assert.Equal(t, true, decoded["editor.insertSpaces"])
}

func TestPushChangedSkipsMissingSections(t *testing.T) {
	store := &fakeStore{values: map[string]any{"known": "value"}}
	svc := &fakeServices{}
	b := config.New(svc, store)

	require.NoError(t, b.PushChanged(context.Background(), []string{"known", "unknown"}, nil))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(svc.sent[0].Settings, &decoded))
	assert.Len(t, decoded, 1)
	_, ok := decoded["unknown"]
	assert.False(t, ok)
}

func TestHandleConfigurationAlignsPositionally(t *testing.T) {
	store := &fakeStore{values: map[string]any{"a": 1, "c": 3}}
	b := config.New(&fakeServices{}, store)

	result, err := b.HandleConfiguration(context.Background(), protocol.ConfigurationParams{
		Items: []protocol.ConfigurationItem{{Section: "a"}, {Section: "b"}, {Section: "c"}},
	})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.EqualValues(t, 1, result[0])
	assert.Nil(t, result[1])
	assert.EqualValues(t, 3, result[2])
}
