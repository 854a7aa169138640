package workspaceedit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/workspaceedit"
)

type fakeTracker struct {
	versions map[protocol.DocumentURI]int
}

func (f *fakeTracker) Tracked(uri protocol.DocumentURI) (int, bool) {
	v, ok := f.versions[uri]
	return v, ok
}

func editFor(uri protocol.DocumentURI, version int) protocol.WorkspaceEdit {
	return protocol.WorkspaceEdit{
		DocumentChanges: []protocol.TextDocumentEdit{
			{
				TextDocument: protocol.VersionedTextDocumentIdentifier{
					TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
					Version:                version,
				},
				Edits: []protocol.TextEdit{{NewText: "x"}},
			},
		},
	}
}

func TestApplyEditSucceedsOnMatchingVersion(t *testing.T) {
	tracker := &fakeTracker{versions: map[protocol.DocumentURI]int{"file:///a.go": 3}}
	var forwarded protocol.WorkspaceEdit
	h := workspaceedit.New(tracker, func(ctx context.Context, edit protocol.WorkspaceEdit) (bool, string) {
		forwarded = edit
		return true, ""
	})

	result, err := h.HandleApplyEdit(context.Background(), protocol.ApplyWorkspaceEditParams{
		Edit: editFor("file:///a.go", 3),
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Len(t, forwarded.DocumentChanges, 1)
}

func TestApplyEditRejectsVersionMismatchWithoutForwarding(t *testing.T) {
	tracker := &fakeTracker{versions: map[protocol.DocumentURI]int{"file:///a.go": 3}}
	called := false
	h := workspaceedit.New(tracker, func(ctx context.Context, edit protocol.WorkspaceEdit) (bool, string) {
		called = true
		return true, ""
	})

	result, err := h.HandleApplyEdit(context.Background(), protocol.ApplyWorkspaceEditParams{
		Edit: editFor("file:///a.go", 2),
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.NotEmpty(t, result.FailureReason)
	assert.False(t, called, "mismatched version must not attempt any partial edit")
}

func TestApplyEditRejectsUntrackedDocument(t *testing.T) {
	tracker := &fakeTracker{versions: map[protocol.DocumentURI]int{}}
	h := workspaceedit.New(tracker, func(ctx context.Context, edit protocol.WorkspaceEdit) (bool, string) {
		return true, ""
	})

	result, err := h.HandleApplyEdit(context.Background(), protocol.ApplyWorkspaceEditParams{
		Edit: editFor("file:///missing.go", 1),
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
}

func TestApplyEditIgnoresNegativeVersion(t *testing.T) {
	tracker := &fakeTracker{versions: map[protocol.DocumentURI]int{}}
	called := false
	h := workspaceedit.New(tracker, func(ctx context.Context, edit protocol.WorkspaceEdit) (bool, string) {
		called = true
		return true, ""
	})

	result, err := h.HandleApplyEdit(context.Background(), protocol.ApplyWorkspaceEditParams{
		Edit: editFor("file:///untracked.go", -1),
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.True(t, called)
}
