// Package trace implements the structured trace-event sink used by the
// dispatcher to optionally publish a copy of every outgoing/incoming
// message, threaded through a *log.Logger the same way the rest of this
// module's components take one rather than introducing a new logging
// dependency.
package trace

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Level controls how much detail is emitted per message.
type Level int

const (
	Off Level = iota
	Messages
	Verbose
)

// Format controls how a trace event is rendered.
type Format int

const (
	Text Format = iota
	JSON
)

// Direction of a traced message relative to this endpoint.
type Direction string

const (
	Sent     Direction = "send"
	Received Direction = "recv"
)

// Event is a single traced message.
type Event struct {
	Time      time.Time       `json:"time"`
	Direction Direction       `json:"direction"`
	Method    string          `json:"method,omitempty"`
	ID        json.RawMessage `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Tracer publishes trace events according to its configured level/format.
type Tracer struct {
	level  Level
	format Format
	logger *log.Logger
}

// New creates a Tracer writing through logger. A nil logger disables output
// regardless of level.
func New(logger *log.Logger) *Tracer {
	return &Tracer{logger: logger}
}

// SetLevel updates the verbosity. Safe to call at any time; takes effect on
// the next emitted event.
func (t *Tracer) SetLevel(level Level, format Format) {
	t.level = level
	t.format = format
}

// Level reports the currently configured verbosity.
func (t *Tracer) Level() Level { return t.level }

// Emit publishes ev if tracing is enabled at a level that covers it. Verbose
// is required to include the raw payload; Messages only logs the envelope.
func (t *Tracer) Emit(ev Event) {
	if t.level == Off || t.logger == nil {
		return
	}
	if t.level == Messages {
		ev.Payload = nil
	}
	ev.Time = ev.Time.UTC()

	switch t.format {
	case JSON:
		data, err := json.Marshal(ev)
		if err != nil {
			t.logger.Printf("trace: failed to marshal event: %v", err)
			return
		}
		t.logger.Println(string(data))
	default:
		t.logger.Println(formatText(ev))
	}
}

func formatText(ev Event) string {
	s := fmt.Sprintf("[trace] %s %s", ev.Direction, ev.Method)
	if len(ev.ID) > 0 {
		s += fmt.Sprintf(" id=%s", string(ev.ID))
	}
	if len(ev.Payload) > 0 {
		s += fmt.Sprintf(" payload=%s", string(ev.Payload))
	}
	return s
}
