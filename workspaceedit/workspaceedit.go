// Package workspaceedit implements the client-side workspace/applyEdit
// handler from §4.6: version-checking every versioned document change
// against the tracker before forwarding the edit to the host, and refusing
// any edit outright on a mismatch rather than applying it partially.
package workspaceedit

import (
	"context"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// VersionTracker reports the version of a currently tracked document. It is
// satisfied by *sync.Engine.
type VersionTracker interface {
	Tracked(uri protocol.DocumentURI) (version int, ok bool)
}

// Applier forwards a workspace edit to the host's own apply-edit routine, an
// external collaborator deliberately kept out of this package's scope. It
// returns whether the host successfully applied the edit.
type Applier func(ctx context.Context, edit protocol.WorkspaceEdit) (applied bool, failureReason string)

// Handler answers inbound workspace/applyEdit requests.
type Handler struct {
	tracker VersionTracker
	apply   Applier
}

// New creates a Handler.
func New(tracker VersionTracker, apply Applier) *Handler {
	return &Handler{tracker: tracker, apply: apply}
}

// HandleApplyEdit serves one workspace/applyEdit request. Any versioned
// document change whose version does not match the tracker's current
// version for that uri causes the whole request to be refused with
// {applied:false} and no edit attempted, per §4.6 / §8.
func (h *Handler) HandleApplyEdit(ctx context.Context, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResult, error) {
	for _, change := range params.Edit.DocumentChanges {
		id := change.TextDocument
		if id.Version < 0 {
			continue
		}
		tracked, ok := h.tracker.Tracked(id.URI)
		if !ok || tracked != id.Version {
			return protocol.ApplyWorkspaceEditResult{
				Applied:       false,
				FailureReason: "document version mismatch for " + string(id.URI),
			}, nil
		}
	}

	applied, reason := h.apply(ctx, params.Edit)
	return protocol.ApplyWorkspaceEditResult{Applied: applied, FailureReason: reason}, nil
}
