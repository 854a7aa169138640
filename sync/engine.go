// Package sync implements the document synchronization engine described in
// §4.4: a tracked-document map fed by host buffer events, full-vs-
// incremental change delivery, a single debounced full-sync delayer, and a
// force-flush contract that keeps the server's view of a buffer consistent
// with a dependent request.
//
// It follows the rest of this module's concurrency idiom (mutex-guarded
// maps, no locks held across a network send) rather than introducing a new
// one.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// Services is the subset of dispatcher capability the engine needs to
// deliver document-sync notifications and the willSaveWaitUntil request to
// the peer.
type Services interface {
	SendNotification(ctx context.Context, method string, params any) error
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// trackedDocument is the §3 "Tracked document" entity.
type trackedDocument struct {
	uri        protocol.DocumentURI
	languageID string
	version    int
	text       string
}

// pendingDelayer is the single in-flight full-sync batch, the §3 "Change
// delayer" entity. Only one exists at a time; a change for a different uri
// while one is pending force-flushes it before rebinding.
type pendingDelayer struct {
	uri   protocol.DocumentURI
	timer *time.Timer
}

const defaultFullSyncDebounce = 200 * time.Millisecond

// defaultWillSaveWaitUntilTimeout bounds the willSaveWaitUntil round-trip
// per §5 "the only mandated timeout is WillSaveWaitUntil (implementation-
// defined; recommended 1 s)".
const defaultWillSaveWaitUntilTimeout = time.Second

// Engine tracks open documents and turns host buffer events into
// textDocument/didOpen|didChange|didSave|didClose notifications.
type Engine struct {
	services         Services
	debounce         time.Duration
	waitUntilTimeout time.Duration

	mu       stdsync.Mutex
	kind     protocol.TextDocumentSyncKind
	docs     map[protocol.DocumentURI]*trackedDocument
	delayer  *pendingDelayer
	selected map[string]protocol.DocumentSelector // registration id -> selector
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithDebounce overrides the default 200ms full-sync delayer deadline.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithWillSaveWaitUntilTimeout overrides the default 1s bound on the
// willSaveWaitUntil round-trip.
func WithWillSaveWaitUntilTimeout(d time.Duration) Option {
	return func(e *Engine) { e.waitUntilTimeout = d }
}

// New creates an Engine with sync kind initially SyncFull; callers set the
// negotiated kind via SetSyncKind once initialize completes.
func New(services Services, opts ...Option) *Engine {
	e := &Engine{
		services:         services,
		debounce:         defaultFullSyncDebounce,
		waitUntilTimeout: defaultWillSaveWaitUntilTimeout,
		kind:             protocol.SyncFull,
		docs:             make(map[protocol.DocumentURI]*trackedDocument),
		selected:         make(map[string]protocol.DocumentSelector),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSyncKind records the negotiated sync kind, once the server's
// textDocumentSync capability is known (§4.3 step 3's normalized
// TextDocumentSyncOptions). The engine does not consult the recorded kind:
// callers choose between ChangeFull and ChangeIncremental themselves, and
// SyncNone does not suppress any did* notification.
func (e *Engine) SetSyncKind(kind protocol.TextDocumentSyncKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kind = kind
}

// RegisterSelector associates a dynamic registration id with the document
// selector it covers, so Unregister can compute which tracked documents lose
// coverage.
func (e *Engine) RegisterSelector(id string, selector protocol.DocumentSelector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected[id] = selector
}

// UnregisterSelector removes the selector for id and synthesizes didClose
// for every tracked document that selector covered and no other registered
// selector still covers (§4.4 "Unregistration semantics for open-close").
func (e *Engine) UnregisterSelector(ctx context.Context, id string) error {
	e.mu.Lock()
	sel, ok := e.selected[id]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	delete(e.selected, id)

	var orphaned []protocol.DocumentURI
	for uri, doc := range e.docs {
		if !sel.Matches(uri, doc.languageID) {
			continue
		}
		if e.coveredByAnySelectorLocked(uri, doc.languageID) {
			continue
		}
		orphaned = append(orphaned, uri)
	}
	for _, uri := range orphaned {
		delete(e.docs, uri)
	}
	e.mu.Unlock()

	for _, uri := range orphaned {
		if err := e.services.SendNotification(ctx, protocol.MethodTextDocumentDidClose, protocol.DidCloseTextDocumentParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		}); err != nil {
			return fmt.Errorf("failed to synthesize didClose for %s: %w", uri, err)
		}
	}
	return nil
}

func (e *Engine) coveredByAnySelectorLocked(uri protocol.DocumentURI, languageID string) bool {
	for _, sel := range e.selected {
		if sel.Matches(uri, languageID) {
			return true
		}
	}
	return false
}

// coveredLocked reports whether uri/languageID is in scope for sync
// delivery, per §4.4 "filtered by each registration's document selector".
// With no registration at all yet (e.g. a statically-advertised, not
// dynamically-registered, textDocumentSync capability) the engine has
// nothing to filter against and stays unfiltered; once at least one
// selector is registered, a uri must match one of them.
func (e *Engine) coveredLocked(uri protocol.DocumentURI, languageID string) bool {
	if len(e.selected) == 0 {
		return true
	}
	return e.coveredByAnySelectorLocked(uri, languageID)
}

func (e *Engine) languageIDLocked(uri protocol.DocumentURI) string {
	if doc, ok := e.docs[uri]; ok {
		return doc.languageID
	}
	return ""
}

// Open inserts uri into the tracker and sends textDocument/didOpen.
func (e *Engine) Open(ctx context.Context, uri protocol.DocumentURI, languageID string, version int, text string) error {
	if err := e.ForceFlush(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.coveredLocked(uri, languageID) {
		e.mu.Unlock()
		return nil
	}
	e.docs[uri] = &trackedDocument{uri: uri, languageID: languageID, version: version, text: text}
	e.mu.Unlock()

	return e.services.SendNotification(ctx, protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: languageID, Version: version, Text: text},
	})
}

// ChangeIncremental applies a sequence of range edits, sent immediately and
// in order, per §4.4's incremental-sync branch.
func (e *Engine) ChangeIncremental(ctx context.Context, uri protocol.DocumentURI, version int, changes []protocol.TextDocumentContentChangeEvent) error {
	if err := e.ForceFlush(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	covered := e.coveredLocked(uri, e.languageIDLocked(uri))
	if covered {
		if doc, ok := e.docs[uri]; ok {
			doc.version = version
		}
	}
	e.mu.Unlock()
	if !covered {
		return nil
	}

	return e.services.SendNotification(ctx, protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}, Version: version},
		ContentChanges: changes,
	})
}

// ChangeFull records the document's new full text immediately and schedules
// (or reschedules) the single full-sync delayer to deliver it after the
// debounce window, per §4.4's full-sync branch.
//
// When a change for a different uri arrives while a delayer is still
// pending, that other uri's content is captured and flushed directly
// (flushDoc, not the delayer-identity-guarded flush) before the delayer is
// rebound to uri: flush's guard on e.delayer.uri would otherwise already
// see the new uri by the time the forced flush runs, silently dropping the
// old uri's pending didChange instead of sending it.
func (e *Engine) ChangeFull(ctx context.Context, uri protocol.DocumentURI, version int, text string) error {
	e.mu.Lock()
	if !e.coveredLocked(uri, e.languageIDLocked(uri)) {
		e.mu.Unlock()
		return nil
	}

	doc, ok := e.docs[uri]
	if !ok {
		doc = &trackedDocument{uri: uri}
		e.docs[uri] = doc
	}
	doc.version = version
	doc.text = text

	var toFlush protocol.DocumentURI
	flushNeeded := false
	if e.delayer != nil {
		e.delayer.timer.Stop()
		if e.delayer.uri != uri {
			toFlush = e.delayer.uri
			flushNeeded = true
		}
		e.delayer = nil
	}

	e.delayer = &pendingDelayer{uri: uri}
	e.delayer.timer = time.AfterFunc(e.debounce, func() {
		_ = e.flush(context.Background(), uri)
	})
	e.mu.Unlock()

	if flushNeeded {
		return e.flushDoc(ctx, toFlush)
	}
	return nil
}

// flush delivers the pending full-sync didChange for uri, if that uri still
// owns the current delayer, and clears it.
func (e *Engine) flush(ctx context.Context, uri protocol.DocumentURI) error {
	e.mu.Lock()
	if e.delayer == nil || e.delayer.uri != uri {
		e.mu.Unlock()
		return nil
	}
	e.delayer = nil
	e.mu.Unlock()
	return e.flushDoc(ctx, uri)
}

// flushDoc sends the current didChange for uri unconditionally, without
// consulting e.delayer. Callers that have already taken the delayer for uri
// out of play themselves (ChangeFull's rebind path) use this directly so the
// send isn't skipped by a delayer-identity check that no longer applies.
func (e *Engine) flushDoc(ctx context.Context, uri protocol.DocumentURI) error {
	e.mu.Lock()
	doc, ok := e.docs[uri]
	var version int
	var text string
	if ok {
		version, text = doc.version, doc.text
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}
	return e.services.SendNotification(ctx, protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}, Version: version},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	})
}

// ForceFlush drains the pending full-sync delayer, if any, synchronously.
// It is a no-op when no delayer is pending, and idempotent when called
// twice in succession (§8 "Force-flush idempotence").
func (e *Engine) ForceFlush(ctx context.Context) error {
	e.mu.Lock()
	d := e.delayer
	e.mu.Unlock()
	if d == nil {
		return nil
	}
	d.timer.Stop()
	return e.flush(ctx, d.uri)
}

// WillSave sends textDocument/willSave, fired synchronously from the host's
// pre-save hook (§4.4), before the save itself is requested.
func (e *Engine) WillSave(ctx context.Context, uri protocol.DocumentURI, reason protocol.TextDocumentSaveReason) error {
	if err := e.ForceFlush(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	covered := e.coveredLocked(uri, e.languageIDLocked(uri))
	e.mu.Unlock()
	if !covered {
		return nil
	}

	return e.services.SendNotification(ctx, protocol.MethodTextDocumentWillSave, protocol.WillSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Reason:       reason,
	})
}

// WillSaveWaitUntil sends the textDocument/willSaveWaitUntil request and
// returns the TextEdits the host must apply before the save completes. The
// wait is bounded by waitUntilTimeout (§5); on timeout it returns an empty
// slice rather than an error, per §4.4 "a reasonable implementation returns
// an empty array on timeout".
func (e *Engine) WillSaveWaitUntil(ctx context.Context, uri protocol.DocumentURI, reason protocol.TextDocumentSaveReason) ([]protocol.TextEdit, error) {
	if err := e.ForceFlush(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	covered := e.coveredLocked(uri, e.languageIDLocked(uri))
	e.mu.Unlock()
	if !covered {
		return nil, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.waitUntilTimeout)
	defer cancel()

	raw, err := e.services.SendRequest(waitCtx, protocol.MethodTextDocumentWillSaveWaitUntil, protocol.WillSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Reason:       reason,
	})
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}

	var edits []protocol.TextEdit
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &edits); err != nil {
		return nil, fmt.Errorf("failed to decode willSaveWaitUntil result: %w", err)
	}
	return edits, nil
}

// Save sends textDocument/didSave, force-flushing any pending change first
// so the server sees the save against up-to-date content.
func (e *Engine) Save(ctx context.Context, uri protocol.DocumentURI, text *string) error {
	if err := e.ForceFlush(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	covered := e.coveredLocked(uri, e.languageIDLocked(uri))
	e.mu.Unlock()
	if !covered {
		return nil
	}

	return e.services.SendNotification(ctx, protocol.MethodTextDocumentDidSave, protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Text:         text,
	})
}

// Close force-flushes any pending change, removes uri from the tracker, and
// sends textDocument/didClose.
func (e *Engine) Close(ctx context.Context, uri protocol.DocumentURI) error {
	if err := e.ForceFlush(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.coveredLocked(uri, e.languageIDLocked(uri)) {
		e.mu.Unlock()
		return nil
	}
	delete(e.docs, uri)
	e.mu.Unlock()

	return e.services.SendNotification(ctx, protocol.MethodTextDocumentDidClose, protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
}

// Tracked reports whether uri currently has a tracked document, and its
// version if so.
func (e *Engine) Tracked(uri protocol.DocumentURI) (version int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[uri]
	if !ok {
		return 0, false
	}
	return doc.version, true
}
