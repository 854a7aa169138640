package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
)

// SendRequest assigns the next id, writes a request, and blocks until a
// matching response arrives or ctx is cancelled. On cancellation it emits
// $/cancelRequest and resolves with RequestCancelled without waiting for the
// peer (§4.2); the pending entry is kept so a late real response can still be
// correlated and dropped, per the pending-table invariant in §3.
func (d *Dispatcher) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if d.closed.Load() {
		return nil, NewError(InternalError, "connection closed")
	}

	select {
	case <-ctx.Done():
		return nil, NewError(RequestCancelled, "request cancelled before send")
	default:
	}

	id := fmt.Sprintf("%d", atomic.AddInt64(&d.nextID, 1))
	rawID, _ := json.Marshal(id)

	var rawParams json.RawMessage
	if params != nil {
		p, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request params for %s: %w", method, err)
		}
		rawParams = p
	}

	pr := &pendingRequest{ch: make(chan response, 1), start: time.Now()}
	d.pendingMu.Lock()
	d.pending[id] = pr
	d.pendingMu.Unlock()

	req := &jsonrpc2.RequestMessage{JSONRPC: jsonrpc2.Version, ID: rawID, Method: method, Params: rawParams}
	d.tracer.Emit(traceEvent(sent, method, rawID, rawParams))
	if err := d.conn.Write(ctx, req); err != nil {
		d.pendingMu.Lock()
		delete(d.pending, id)
		d.pendingMu.Unlock()
		return nil, fmt.Errorf("failed to write request %s: %w", method, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			d.sendCancelNotification(id)
			if pr.delivered.CompareAndSwap(false, true) {
				pr.ch <- response{err: NewError(RequestCancelled, "request cancelled")}
			}
		case <-done:
		}
	}()

	resp := <-pr.ch
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.result, nil
}

func (d *Dispatcher) sendCancelNotification(id string) {
	rawID, _ := json.Marshal(id)
	_ = d.SendNotification(context.Background(), CancelMethod, json.RawMessage(fmt.Sprintf(`{"id":%s}`, rawID)))
}

// SendNotification writes a notification with no expectation of a reply.
func (d *Dispatcher) SendNotification(ctx context.Context, method string, params any) error {
	if d.closed.Load() {
		return NewError(InternalError, "connection closed")
	}

	var rawParams json.RawMessage
	if params != nil {
		switch v := params.(type) {
		case json.RawMessage:
			rawParams = v
		default:
			p, err := json.Marshal(params)
			if err != nil {
				return fmt.Errorf("failed to marshal notification params for %s: %w", method, err)
			}
			rawParams = p
		}
	}

	notif := &jsonrpc2.NotificationMessage{JSONRPC: jsonrpc2.Version, Method: method, Params: rawParams}
	d.tracer.Emit(traceEvent(sent, method, nil, rawParams))
	if err := d.conn.Write(ctx, notif); err != nil {
		return fmt.Errorf("failed to write notification %s: %w", method, err)
	}
	return nil
}

// Close shuts down the underlying connection and rejects any requests still
// awaiting a response with ConnectionClosed-flavored InternalError.
func (d *Dispatcher) Close() error {
	if d.closed.CompareAndSwap(false, true) {
		d.rejectAllPending(fmt.Errorf("dispatcher closed"))
	}
	return d.conn.Close()
}
