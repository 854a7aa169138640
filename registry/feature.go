// Package registry implements the feature registry and capability
// negotiation described in §4.3: an ordered set of protocol features,
// static ones that activate once and dynamic ones a peer can
// register/unregister at runtime by method name.
//
// Features never hold a direct pointer back to their owning connection type
// (client.Client/server.Server). Each feature instead holds a Services
// value — the small structural interface below — so a feature can call back
// into the connection (send, log) without the connection and its features
// forming a cyclic object graph of concrete types.
package registry

import (
	"context"
	"encoding/json"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// Services is the minimal set of connection capabilities a Feature needs:
// sending messages to the peer and logging. It is implemented by whichever
// package owns the dispatcher (client or server).
type Services interface {
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	SendNotification(ctx context.Context, method string, params any) error
	Logf(format string, args ...any)
}

// Feature is the capability every registry member implements: the static
// half of the §3 "Feature" data-model entity. fillClientCapabilities lets it
// populate its reserved sub-path of ClientCapabilities; Initialize is called
// once the peer's capabilities are known, letting a feature that detects
// static server support self-register immediately.
type Feature interface {
	// Name identifies the feature for logging/diagnostics; it is not a wire
	// method name (a Dynamic feature may cover several).
	Name() string
	FillClientCapabilities(caps *protocol.ClientCapabilities)
	Initialize(server protocol.ServerCapabilities, selector protocol.DocumentSelector)
	Dispose()
}

// Dynamic is implemented by features the peer can register/unregister at
// runtime via client/registerCapability (§4.3). Messages lists every method
// string this feature is responsible for, so the registry can route
// inbound registration elements to it.
type Dynamic interface {
	Feature
	Messages() []string
	Register(id string, options json.RawMessage) error
	Unregister(id string) error
}

// baseFeature is embeddable by features that only need part of the Feature
// interface, giving every handler a no-op default rather than forcing every
// implementer to stub every method.
type baseFeature struct{ name string }

func (b baseFeature) Name() string { return b.name }
func (baseFeature) FillClientCapabilities(*protocol.ClientCapabilities)                {}
func (baseFeature) Initialize(protocol.ServerCapabilities, protocol.DocumentSelector) {}
func (baseFeature) Dispose()                                                          {}

// NewBaseFeature returns an embeddable Feature with name and every method a
// no-op; callers override what they need.
func NewBaseFeature(name string) Feature { return baseFeature{name: name} }
