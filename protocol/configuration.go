package protocol

import "encoding/json"

// DidChangeConfigurationParams parameters for
// workspace/didChangeConfiguration.
type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

// ConfigurationItem identifies one configuration section to pull, optionally
// scoped to a workspace folder.
type ConfigurationItem struct {
	ScopeURI *string `json:"scopeUri,omitempty"`
	Section  string  `json:"section,omitempty"`
}

// ConfigurationParams parameters for workspace/configuration.
type ConfigurationParams struct {
	Items []ConfigurationItem `json:"items"`
}
