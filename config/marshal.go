package config

import "encoding/json"

// mustMarshal serializes a settings map built entirely from host-provided
// values; a marshal failure here indicates the store returned something
// JSON cannot represent, which is a host bug, not a runtime condition to
// recover from.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
