package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/registry"
)

// Feature adapts an Engine to registry.Dynamic, so document-sync
// registrations (open/change/save/close, bundled under one selector per
// registration id) flow through the same client/registerCapability routing
// as every other dynamic feature.
type Feature struct {
	registry.Feature
	engine *Engine
}

// NewFeature wraps engine as a registry.Dynamic.
func NewFeature(engine *Engine) *Feature {
	return &Feature{
		Feature: registry.NewBaseFeature("textDocument/synchronization"),
		engine:  engine,
	}
}

// Messages lists the document-sync notification/request methods a
// registration's documentSelector governs.
func (f *Feature) Messages() []string {
	return []string{
		protocol.MethodTextDocumentDidOpen,
		protocol.MethodTextDocumentDidChange,
		protocol.MethodTextDocumentDidSave,
		protocol.MethodTextDocumentDidClose,
		protocol.MethodTextDocumentWillSave,
		protocol.MethodTextDocumentWillSaveWaitUntil,
	}
}

// FillClientCapabilities advertises dynamic registration and the willSave/
// willSaveWaitUntil pre-save hooks the engine implements.
func (f *Feature) FillClientCapabilities(caps *protocol.ClientCapabilities) {
	if caps.TextDocument == nil {
		caps.TextDocument = &protocol.TextDocumentClientCapabilities{}
	}
	if caps.TextDocument.Synchronization == nil {
		caps.TextDocument.Synchronization = &protocol.TextDocumentSyncClientCapabilities{}
	}
	caps.TextDocument.Synchronization.DynamicRegistration = true
	caps.TextDocument.Synchronization.WillSave = true
	caps.TextDocument.Synchronization.WillSaveWaitUntil = true
	caps.TextDocument.Synchronization.DidSave = true
}

// Register records the registration's document selector under id.
func (f *Feature) Register(id string, options json.RawMessage) error {
	var opts protocol.TextDocumentRegistrationOptions
	if len(options) > 0 {
		if err := json.Unmarshal(options, &opts); err != nil {
			return fmt.Errorf("invalid synchronization registration options: %w", err)
		}
	}
	f.engine.RegisterSelector(id, opts.DocumentSelector)
	return nil
}

// Unregister synthesizes didClose for documents orphaned by removing id's
// selector.
func (f *Feature) Unregister(id string) error {
	return f.engine.UnregisterSelector(context.Background(), id)
}
