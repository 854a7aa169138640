package rpc

import (
	"encoding/json"

	"github.com/ondrik-labs/lsprotocol/trace"
)

const (
	sent     = trace.Sent
	received = trace.Received
)

func traceEvent(dir trace.Direction, method string, id json.RawMessage, payload json.RawMessage) trace.Event {
	return trace.Event{Direction: dir, Method: method, ID: id, Payload: payload}
}
