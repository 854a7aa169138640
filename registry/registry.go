package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ondrik-labs/lsprotocol/protocol"
)

// Record is the owned state of one dynamic registration (§3 "Registration
// record"): an id, the method it covers, and the feature-specific options
// that were supplied when it was registered.
type Record struct {
	ID      string
	Method  string
	Options json.RawMessage
}

// Registry holds the ordered list of features and the method→feature index
// used to route dynamic (un)registration. It does not itself talk to the
// wire; client/server code drives it from inbound
// client/registerCapability / client/unregisterCapability handlers.
type Registry struct {
	mu       sync.RWMutex
	features []Feature
	byMethod map[string]Dynamic
	records  map[string]Record // id -> record, across all features
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byMethod: make(map[string]Dynamic),
		records:  make(map[string]Record),
	}
}

// Add appends a feature to the registry. If it implements Dynamic, every
// method it lists in Messages() is indexed for routing. Order is preserved:
// capability-building and Initialize iterate features in Add order.
func (r *Registry) Add(f Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = append(r.features, f)
	if d, ok := f.(Dynamic); ok {
		for _, m := range d.Messages() {
			r.byMethod[m] = d
		}
	}
}

// Features returns a snapshot of the registered features in add order.
func (r *Registry) Features() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Feature, len(r.features))
	copy(out, r.features)
	return out
}

// FillClientCapabilities lets every feature populate its reserved sub-path
// of caps (§4.3 step 1).
func (r *Registry) FillClientCapabilities(caps *protocol.ClientCapabilities) {
	for _, f := range r.Features() {
		f.FillClientCapabilities(caps)
	}
}

// Initialize calls every feature's Initialize hook once the peer's
// capabilities are known (§4.3 step 4).
func (r *Registry) Initialize(server protocol.ServerCapabilities, selector protocol.DocumentSelector) {
	for _, f := range r.Features() {
		f.Initialize(server, selector)
	}
}

// Dispose tears down every feature, in add order, e.g. on supervised
// restart cleanup (§4.6).
func (r *Registry) Dispose() {
	for _, f := range r.Features() {
		f.Dispose()
	}
}

// RegisterResult is the per-element outcome of a registration request,
// mirroring §4.3's "registration request's response carries a per-element
// error so the peer can roll back individually".
type RegisterResult struct {
	ID    string
	Error error
}

// Register applies one registration element: it routes by method to the
// owning Dynamic feature and records it on success. A feature whose register
// call fails does not abort the others — the caller iterates elements and
// collects one outcome per id.
func (r *Registry) Register(id, method string, options json.RawMessage) error {
	r.mu.Lock()
	d, ok := r.byMethod[method]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no dynamic feature registered for method %q", method)
	}
	if _, exists := r.records[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("registration id %q already in use", id)
	}
	r.records[id] = Record{ID: id, Method: method, Options: options}
	r.mu.Unlock()

	if err := d.Register(id, options); err != nil {
		r.mu.Lock()
		delete(r.records, id)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Unregister disposes a previously registered id. Unknown ids report an
// error to the requester without disturbing any other state (§4.3
// "Unregistration by id is idempotent").
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown registration id %q", id)
	}
	d, ok := r.byMethod[rec.Method]
	delete(r.records, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no feature owns method %q for id %q", rec.Method, id)
	}
	return d.Unregister(id)
}

// RecordFor returns the registration record for id, if any.
func (r *Registry) RecordFor(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// RecordsByMethod returns every current registration for method, e.g. for
// computing which document selectors still cover a uri after one is
// unregistered (§4.4 "Unregistration semantics for open-close").
func (r *Registry) RecordsByMethod(method string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Method == method {
			out = append(out, rec)
		}
	}
	return out
}
