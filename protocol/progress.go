package protocol

import "encoding/json"

// ProgressToken identifies a long-running operation; it is a string or an
// integer on the wire, so it is carried as a raw JSON value.
type ProgressToken = json.RawMessage

// WorkDoneProgressCreateParams parameters for
// window/workDoneProgress/create.
type WorkDoneProgressCreateParams struct {
	Token ProgressToken `json:"token"`
}

// WorkDoneProgressCancelParams parameters for
// window/workDoneProgress/cancel.
type WorkDoneProgressCancelParams struct {
	Token ProgressToken `json:"token"`
}

// WorkDoneProgressKind discriminates the three $/progress value shapes.
type WorkDoneProgressKind string

const (
	ProgressBegin  WorkDoneProgressKind = "begin"
	ProgressReport WorkDoneProgressKind = "report"
	ProgressEnd    WorkDoneProgressKind = "end"
)

// WorkDoneProgressBegin is the first value sent for a progress token.
type WorkDoneProgressBegin struct {
	Kind        WorkDoneProgressKind `json:"kind"`
	Title       string               `json:"title"`
	Cancellable bool                 `json:"cancellable,omitempty"`
	Message     string               `json:"message,omitempty"`
	Percentage  *uint                `json:"percentage,omitempty"`
}

// WorkDoneProgressReport is an intermediate progress update.
type WorkDoneProgressReport struct {
	Kind        WorkDoneProgressKind `json:"kind"`
	Cancellable *bool                `json:"cancellable,omitempty"`
	Message     string               `json:"message,omitempty"`
	Percentage  *uint                `json:"percentage,omitempty"`
}

// WorkDoneProgressEnd is the terminal value sent for a progress token.
type WorkDoneProgressEnd struct {
	Kind    WorkDoneProgressKind `json:"kind"`
	Message string               `json:"message,omitempty"`
}

// ProgressParams parameters for the $/progress notification. Value is one of
// WorkDoneProgressBegin/Report/End, carried raw so the caller can discriminate
// on the embedded "kind" field.
type ProgressParams struct {
	Token ProgressToken   `json:"token"`
	Value json.RawMessage `json:"value"`
}

// CancelParams parameters for the $/cancelRequest notification.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}
