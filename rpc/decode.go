package rpc

import "encoding/json"

// DecodeResult unmarshals a raw result payload into target, treating a
// missing or literal-null result as a no-op (target keeps its zero value).
func DecodeResult(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}
