package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// Sender is the request+notification capability a Source needs: enough to
// create a token on the peer and stream values for it. *rpc.Dispatcher
// satisfies this directly.
type Sender interface {
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	SendNotification(ctx context.Context, method string, params any) error
}

// Source is the server-initiated half of §4.7: it creates work-done
// progress tokens on the peer and streams begin/report/end values for them.
// It is the mirror of Manager, which answers these same methods from the
// consuming side.
type Source struct {
	sender Sender
}

// NewSource creates a Source bound to a peer capable of both requests and
// notifications (the dispatcher on whichever side initiates progress).
func NewSource(sender Sender) *Source {
	return &Source{sender: sender}
}

// Create asks the peer to create a new work-done progress token via
// window/workDoneProgress/create. The token must be unique for the
// lifetime of the connection.
func (s *Source) Create(ctx context.Context, token protocol.ProgressToken) error {
	raw, err := s.sender.SendRequest(ctx, protocol.MethodWindowWorkDoneProgressCreate, protocol.WorkDoneProgressCreateParams{Token: token})
	if err != nil {
		return fmt.Errorf("workDoneProgress/create failed: %w", err)
	}
	var ignored any
	return DecodeResult(raw, &ignored)
}

// Begin emits the first $/progress value for token.
func (s *Source) Begin(ctx context.Context, token protocol.ProgressToken, begin protocol.WorkDoneProgressBegin) error {
	begin.Kind = protocol.ProgressBegin
	return s.emit(ctx, token, begin)
}

// Report emits an intermediate $/progress value for token.
func (s *Source) Report(ctx context.Context, token protocol.ProgressToken, report protocol.WorkDoneProgressReport) error {
	report.Kind = protocol.ProgressReport
	return s.emit(ctx, token, report)
}

// End emits the terminal $/progress value for token. Callers must not reuse
// token afterward.
func (s *Source) End(ctx context.Context, token protocol.ProgressToken, end protocol.WorkDoneProgressEnd) error {
	end.Kind = protocol.ProgressEnd
	return s.emit(ctx, token, end)
}

func (s *Source) emit(ctx context.Context, token protocol.ProgressToken, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal progress value: %w", err)
	}
	return s.sender.SendNotification(ctx, protocol.MethodProgress, protocol.ProgressParams{Token: token, Value: raw})
}

// DecodeResult is a small local alias of rpc.DecodeResult's null-tolerant
// decode, kept here so this package does not import rpc just for this.
func DecodeResult(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}
