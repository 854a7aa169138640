package protocol

import (
	"path"
	"strings"
)

// DocumentFilter matches documents by language id, URI scheme, and/or a glob
// pattern over the URI path. A zero-value field is treated as "match any".
type DocumentFilter struct {
	Language string `json:"language,omitempty"`
	Scheme   string `json:"scheme,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

// DocumentSelector is a list of filters; a document matches the selector if
// it matches any one filter in the list.
type DocumentSelector []DocumentFilter

// Matches reports whether uri/languageID satisfy the selector. An empty or
// nil selector matches everything, mirroring the LSP client behavior of
// "no selector means all documents".
func (s DocumentSelector) Matches(uri DocumentURI, languageID string) bool {
	if len(s) == 0 {
		return true
	}
	for _, f := range s {
		if f.matches(uri, languageID) {
			return true
		}
	}
	return false
}

func (f DocumentFilter) matches(uri DocumentURI, languageID string) bool {
	if f.Language != "" && f.Language != languageID {
		return false
	}
	if f.Scheme != "" && !strings.HasPrefix(string(uri), f.Scheme+":") {
		return false
	}
	if f.Pattern != "" {
		p := string(uri)
		if i := strings.Index(p, "://"); i >= 0 {
			p = p[i+3:]
			if j := strings.IndexByte(p, '/'); j >= 0 {
				p = p[j:]
			} else {
				p = "/"
			}
		}
		ok, err := path.Match(f.Pattern, p)
		if err != nil || !ok {
			return false
		}
	}
	return true
}
