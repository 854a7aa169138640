// Package rpc implements the message dispatcher shared by both LSP
// endpoints (§4.2): request/response correlation with cancellation, ordered
// notification delivery, method routing, and an optional trace hook. It
// generalizes the original server/server.go read loop and
// server/handler.go reflection-based invocation so the same plumbing backs
// both the client and server packages.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
	"github.com/ondrik-labs/lsprotocol/trace"
)

// Re-exported JSON-RPC error codes so callers need only import this package.
const (
	ParseError     = jsonrpc2.ParseError
	InvalidRequest = jsonrpc2.InvalidRequest
	MethodNotFound = jsonrpc2.MethodNotFound
	InvalidParams  = jsonrpc2.InvalidParams
	InternalError  = jsonrpc2.InternalError

	RequestCancelled = jsonrpc2.RequestCancelled
	ContentModified  = jsonrpc2.ContentModified
)

// ErrorObject is re-exported for convenience.
type ErrorObject = jsonrpc2.ErrorObject

// NewError constructs a JSON-RPC error object.
func NewError(code int, message string) *ErrorObject {
	return jsonrpc2.NewError(code, message)
}

// CancelMethod and ProgressMethod name the two protocol-level notifications.
// CancelMethod is handled inside the dispatcher before any PreNotificationHook
// runs; ProgressMethod is routed like any other notification.
const (
	CancelMethod   = "$/cancelRequest"
	ProgressMethod = "$/progress"
)

// PreRequestHook lets an owner (server/client lifecycle layer) reject an
// inbound request before it reaches its handler, e.g. "not initialized yet".
// Returning a non-nil error sends that error as the response instead of
// invoking the handler.
type PreRequestHook func(method string) *ErrorObject

// PreNotificationHook lets an owner drop an inbound notification before
// dispatch, e.g. during shutdown. Returning false ignores the notification.
type PreNotificationHook func(method string) bool

// Dispatcher correlates requests/responses, routes notifications, and
// multiplexes cancellation over a single jsonrpc2.Conn.
type Dispatcher struct {
	conn   *jsonrpc2.Conn
	logger *log.Logger
	tracer *trace.Tracer

	mu       sync.RWMutex
	handlers map[string]*typedHandler

	nextID int64

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	closed atomic.Bool

	preRequest      atomic.Value // PreRequestHook
	preNotification atomic.Value // PreNotificationHook
}

type pendingRequest struct {
	ch        chan response
	delivered atomic.Bool
	start     time.Time
}

type response struct {
	result json.RawMessage
	err    *ErrorObject
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTracer installs a trace sink; by default tracing is Off.
func WithTracer(t *trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a Dispatcher over an established connection.
func New(conn *jsonrpc2.Conn, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		conn:     conn,
		logger:   log.New(os.Stderr, "rpc: ", log.LstdFlags),
		tracer:   trace.New(nil),
		handlers: make(map[string]*typedHandler),
		pending:  make(map[string]*pendingRequest),
		inflight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPreRequestHook installs or clears the request admission hook.
func (d *Dispatcher) SetPreRequestHook(hook PreRequestHook) {
	d.preRequest.Store(hook)
}

// SetPreNotificationHook installs or clears the notification admission hook.
func (d *Dispatcher) SetPreNotificationHook(hook PreNotificationHook) {
	d.preNotification.Store(hook)
}

// SetTrace reconfigures the trace sink's verbosity/format.
func (d *Dispatcher) SetTrace(level trace.Level, format trace.Format) {
	d.tracer.SetLevel(level, format)
}

// Conn exposes the underlying connection for components that must close it
// directly (e.g. the connection supervisor).
func (d *Dispatcher) Conn() *jsonrpc2.Conn { return d.conn }

// OnRequest registers a handler for inbound requests of method. Handler
// signature: func(ctx, [*rpc.Dispatcher], [params]) ([result,] [error]).
func (d *Dispatcher) OnRequest(method string, handler any) error {
	return d.register(method, handler)
}

// OnNotification registers a handler for inbound notifications of method.
// Same signature rules as OnRequest; any returned result is discarded.
func (d *Dispatcher) OnNotification(method string, handler any) error {
	return d.register(method, handler)
}

func (d *Dispatcher) register(method string, handler any) error {
	paramType, takesPeer, takesParams, err := validateHandlerFunc(handler)
	if err != nil {
		return fmt.Errorf("invalid handler for method %s: %w", method, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[method]; exists {
		return fmt.Errorf("handler already registered for method: %s", method)
	}
	d.handlers[method] = &typedHandler{h: handler, paramType: paramType, takesPeer: takesPeer, takesParams: takesParams}
	return nil
}

func (d *Dispatcher) lookup(method string) (*typedHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[method]
	return h, ok
}

// HasHandler reports whether a handler is registered for method, e.g. so a
// capability-composing caller can advertise support based on what it
// actually implements rather than a hardcoded list.
func (d *Dispatcher) HasHandler(method string) bool {
	_, ok := d.lookup(method)
	return ok
}

// Run reads and dispatches messages until the connection closes or ctx is
// cancelled. Notifications for a given method are handled in wire order (one
// goroutine drains the wire and invokes notification handlers inline);
// requests are dispatched to their own goroutine so slow handlers cannot
// stall unrelated traffic, matching §4.2's ordering guarantees.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			d.rejectAllPending(ctx.Err())
			return ctx.Err()
		default:
		}

		msg, err := d.conn.Read(ctx)
		if err != nil {
			d.closed.Store(true)
			d.rejectAllPending(err)
			if err == io.EOF || err == io.ErrClosedPipe || err == context.Canceled {
				return nil
			}
			return err
		}

		switch m := msg.(type) {
		case *jsonrpc2.RequestMessage:
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.handleRequest(ctx, m)
			}()
		case *jsonrpc2.NotificationMessage:
			d.handleNotification(ctx, m)
		case *jsonrpc2.ResponseMessage:
			d.handleResponse(m)
		default:
			d.logger.Printf("received unknown message type: %T", msg)
		}
	}
}

func (d *Dispatcher) rejectAllPending(cause error) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	for id, pr := range d.pending {
		if pr.delivered.CompareAndSwap(false, true) {
			pr.ch <- response{err: NewError(InternalError, fmt.Sprintf("connection closed: %v", cause))}
		}
		delete(d.pending, id)
	}
}
