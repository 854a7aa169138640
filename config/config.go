// Package config implements the configuration bridge from §4.9: a push
// path that notifies the peer when host configuration changes, and a pull
// path that answers workspace/configuration by reading from the host's
// configuration store.
package config

import (
	"context"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// Services is the subset of dispatcher capability the bridge needs to push
// configuration changes.
type Services interface {
	SendNotification(ctx context.Context, method string, params any) error
}

// Store is the host's configuration store, the external collaborator that
// actually owns setting values. ScopeURI, when non-nil, scopes the lookup to
// a workspace folder.
type Store interface {
	Get(section string, scopeURI *string) (value any, ok bool)
}

// Bridge wires a host Store to the workspace/didChangeConfiguration push
// notification and the workspace/configuration pull request.
type Bridge struct {
	services Services
	store    Store
}

// New creates a Bridge.
func New(services Services, store Store) *Bridge {
	return &Bridge{services: services, store: store}
}

// PushChanged sends workspace/didChangeConfiguration, built by reading every
// section in sections from the store, scoped to scopeURI.
func (b *Bridge) PushChanged(ctx context.Context, sections []string, scopeURI *string) error {
	settings := make(map[string]any, len(sections))
	for _, section := range sections {
		if v, ok := b.store.Get(section, scopeURI); ok {
			settings[section] = v
		}
	}
	return b.services.SendNotification(ctx, protocol.MethodWorkspaceDidChangeConfiguration, protocol.DidChangeConfigurationParams{
		Settings: mustMarshal(settings),
	})
}

// HandleConfiguration serves an inbound workspace/configuration request,
// returning setting values aligned positionally with params.Items. An item
// the store has no value for yields nil at that position, not an error.
func (b *Bridge) HandleConfiguration(ctx context.Context, params protocol.ConfigurationParams) ([]any, error) {
	out := make([]any, len(params.Items))
	for i, item := range params.Items {
		if v, ok := b.store.Get(item.Section, item.ScopeURI); ok {
			out[i] = v
		}
	}
	return out, nil
}
