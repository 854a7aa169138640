// Package progress implements the client-side half of §4.7: it answers
// window/workDoneProgress/create, demultiplexes the $/progress
// begin/report/end stream onto per-token host UI objects, and relays host
// cancellation back to the peer as window/workDoneProgress/cancel.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// Services is the subset of dispatcher capability the feature needs to send
// cancellation notifications.
type Services interface {
	SendNotification(ctx context.Context, method string, params any) error
}

// Reporter is a host-side progress sink for one token; the host implements
// it however it displays progress (a status bar entry, a log line, ...).
type Reporter interface {
	Begin(begin protocol.WorkDoneProgressBegin)
	Report(report protocol.WorkDoneProgressReport)
	End(end protocol.WorkDoneProgressEnd)
}

// Factory creates a Reporter for a newly created progress token. Returning
// nil is valid; the token is still tracked so cancellation still works, but
// no Reporter methods are invoked.
type Factory func(token protocol.ProgressToken) Reporter

// Manager multiplexes server-initiated progress tokens onto host Reporters.
type Manager struct {
	services Services
	factory  Factory

	mu        sync.Mutex
	reporters map[string]Reporter
}

// New creates a Manager. factory may be nil, in which case progress tokens
// are acknowledged but never reported to the host.
func New(services Services, factory Factory) *Manager {
	if factory == nil {
		factory = func(protocol.ProgressToken) Reporter { return nil }
	}
	return &Manager{
		services:  services,
		factory:   factory,
		reporters: make(map[string]Reporter),
	}
}

func tokenKey(token protocol.ProgressToken) string { return string(token) }

// HandleCreate serves an inbound window/workDoneProgress/create request: it
// creates a Reporter via the configured factory and starts tracking the
// token for future $/progress notifications and host cancellation.
func (m *Manager) HandleCreate(ctx context.Context, params protocol.WorkDoneProgressCreateParams) error {
	key := tokenKey(params.Token)
	reporter := m.factory(params.Token)

	m.mu.Lock()
	m.reporters[key] = reporter
	m.mu.Unlock()
	return nil
}

// HandleProgress serves an inbound $/progress notification, routing begin,
// report, or end values to the tracked Reporter. Unknown tokens are ignored
// per §4.7.
func (m *Manager) HandleProgress(ctx context.Context, params protocol.ProgressParams) {
	key := tokenKey(params.Token)

	m.mu.Lock()
	reporter, ok := m.reporters[key]
	m.mu.Unlock()
	if !ok {
		return
	}

	var kind struct {
		Kind protocol.WorkDoneProgressKind `json:"kind"`
	}
	if err := json.Unmarshal(params.Value, &kind); err != nil {
		return
	}

	switch kind.Kind {
	case protocol.ProgressBegin:
		var begin protocol.WorkDoneProgressBegin
		if json.Unmarshal(params.Value, &begin) == nil && reporter != nil {
			reporter.Begin(begin)
		}
	case protocol.ProgressReport:
		var report protocol.WorkDoneProgressReport
		if json.Unmarshal(params.Value, &report) == nil && reporter != nil {
			reporter.Report(report)
		}
	case protocol.ProgressEnd:
		var end protocol.WorkDoneProgressEnd
		if json.Unmarshal(params.Value, &end) == nil && reporter != nil {
			reporter.End(end)
		}
		m.mu.Lock()
		delete(m.reporters, key)
		m.mu.Unlock()
	}
}

// Cancel is called by host UI code when the user cancels a cancellable
// progress; it relays window/workDoneProgress/cancel to the peer. The token
// stays tracked until the server sends its terminal "end" value.
func (m *Manager) Cancel(ctx context.Context, token protocol.ProgressToken) error {
	m.mu.Lock()
	_, ok := m.reporters[tokenKey(token)]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown progress token")
	}
	return m.services.SendNotification(ctx, protocol.MethodWindowWorkDoneProgressCancel, protocol.WorkDoneProgressCancelParams{Token: token})
}
