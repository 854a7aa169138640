package protocol

import "encoding/json"

// Registration describes one dynamic capability registration element sent by
// the server via client/registerCapability.
type Registration struct {
	ID              string          `json:"id"`
	Method          string          `json:"method"`
	RegisterOptions json.RawMessage `json:"registerOptions,omitempty"`
}

// RegistrationParams parameters for client/registerCapability.
type RegistrationParams struct {
	Registrations []Registration `json:"registrations"`
}

// Unregistration identifies a previously registered capability by id.
type Unregistration struct {
	ID     string `json:"id"`
	Method string `json:"method"`
}

// UnregistrationParams parameters for client/unregisterCapability.
type UnregistrationParams struct {
	Unregisterations []Unregistration `json:"unregisterations"` // spelling matches the LSP wire format
}

// RegistrationOutcome is the per-element result of one registration or
// unregistration element, letting the peer roll back individually instead of
// failing the whole batch (§4.3 "Failure model").
type RegistrationOutcome struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// RegisterCapabilityResult is the result of client/registerCapability,
// carrying one outcome per requested registration element.
type RegisterCapabilityResult struct {
	Results []RegistrationOutcome `json:"results"`
}

// UnregisterCapabilityResult is the result of client/unregisterCapability,
// carrying one outcome per requested unregistration element.
type UnregisterCapabilityResult struct {
	Results []RegistrationOutcome `json:"results"`
}

// TextDocumentRegistrationOptions is the common shape embedded by most
// registration options payloads: a selector restricting which documents the
// registration applies to.
type TextDocumentRegistrationOptions struct {
	DocumentSelector DocumentSelector `json:"documentSelector"`
}

// TextDocumentChangeRegistrationOptions registration options for
// textDocument/didChange dynamic registration.
type TextDocumentChangeRegistrationOptions struct {
	TextDocumentRegistrationOptions
	SyncKind TextDocumentSyncKind `json:"syncKind"`
}

// TextDocumentSaveRegistrationOptions registration options for
// textDocument/didSave dynamic registration.
type TextDocumentSaveRegistrationOptions struct {
	TextDocumentRegistrationOptions
	IncludeText bool `json:"includeText,omitempty"`
}

// CompletionRegistrationOptions registration options for
// textDocument/completion dynamic registration.
type CompletionRegistrationOptions struct {
	TextDocumentRegistrationOptions
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
	ResolveProvider   bool     `json:"resolveProvider,omitempty"`
}
