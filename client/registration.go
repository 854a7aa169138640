package client

import (
	"context"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// handleRegisterCapability serves client/registerCapability (and its legacy
// alias client/registerFeature): each element is routed independently so one
// failing registration doesn't abort the others (§4.3 failure model).
func (c *Client) handleRegisterCapability(ctx context.Context, params protocol.RegistrationParams) (protocol.RegisterCapabilityResult, error) {
	results := make([]protocol.RegistrationOutcome, 0, len(params.Registrations))
	for _, reg := range params.Registrations {
		outcome := protocol.RegistrationOutcome{ID: reg.ID}
		if err := c.registry.Register(reg.ID, reg.Method, reg.RegisterOptions); err != nil {
			outcome.Error = err.Error()
		}
		results = append(results, outcome)
	}
	return protocol.RegisterCapabilityResult{Results: results}, nil
}

// handleUnregisterCapability serves client/unregisterCapability (and its
// legacy alias client/unregisterFeature). Unknown ids report a per-element
// error without disturbing any other registration's state.
func (c *Client) handleUnregisterCapability(ctx context.Context, params protocol.UnregistrationParams) (protocol.UnregisterCapabilityResult, error) {
	results := make([]protocol.RegistrationOutcome, 0, len(params.Unregisterations))
	for _, un := range params.Unregisterations {
		outcome := protocol.RegistrationOutcome{ID: un.ID}
		if err := c.registry.Unregister(un.ID); err != nil {
			outcome.Error = err.Error()
		}
		results = append(results, outcome)
	}
	return protocol.UnregisterCapabilityResult{Results: results}, nil
}
