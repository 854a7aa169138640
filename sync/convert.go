package sync

import "github.com/ondrik-labs/lsprotocol/protocol"

// RangeEdit is a host-reported incremental edit, expressed in the editor's
// native zero-based line/character coordinates rather than the wire's
// TextDocumentContentChangeEvent shape.
type RangeEdit struct {
	StartLine, StartCharacter uint
	EndLine, EndCharacter     uint
	Text                      string
}

// ToContentChange converts a host RangeEdit into the wire shape for
// incremental sync. End.Character must come from EndCharacter, not EndLine.
func ToContentChange(e RangeEdit) protocol.TextDocumentContentChangeEvent {
	r := protocol.Range{
		Start: protocol.Position{Line: e.StartLine, Character: e.StartCharacter},
		End:   protocol.Position{Line: e.EndLine, Character: e.EndCharacter},
	}
	return protocol.TextDocumentContentChangeEvent{Range: &r, Text: e.Text}
}
