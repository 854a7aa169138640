package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
)

func (d *Dispatcher) handleRequest(ctx context.Context, req *jsonrpc2.RequestMessage) {
	method := req.Method
	d.tracer.Emit(traceEvent(received, method, req.ID, req.Params))

	if hook, ok := d.preRequest.Load().(PreRequestHook); ok && hook != nil {
		if errResp := hook(method); errResp != nil {
			d.sendResponse(ctx, req.ID, nil, errResp)
			return
		}
	}

	handler, found := d.lookup(method)
	if !found {
		d.sendResponse(ctx, req.ID, nil, NewError(MethodNotFound, fmt.Sprintf("method not found: %s", method)))
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	idKey := string(req.ID)
	d.inflightMu.Lock()
	d.inflight[idKey] = cancel
	d.inflightMu.Unlock()
	defer func() {
		cancel()
		d.inflightMu.Lock()
		delete(d.inflight, idKey)
		d.inflightMu.Unlock()
	}()

	result, err := handler.invoke(reqCtx, d, req.Params)

	var errResp *ErrorObject
	if err != nil {
		if jerr, ok := err.(*ErrorObject); ok {
			errResp = jerr
		} else {
			errResp = NewError(InternalError, err.Error())
			d.logger.Printf("handler error for method %s id=%s: %v", method, string(req.ID), err)
		}
	}
	d.sendResponse(ctx, req.ID, result, errResp)
}

func (d *Dispatcher) handleNotification(ctx context.Context, n *jsonrpc2.NotificationMessage) {
	d.tracer.Emit(traceEvent(received, n.Method, nil, n.Params))

	if n.Method == CancelMethod {
		d.handleCancelRequest(n.Params)
		return
	}

	if hook, ok := d.preNotification.Load().(PreNotificationHook); ok && hook != nil {
		if !hook(n.Method) {
			return
		}
	}

	handler, found := d.lookup(n.Method)
	if !found {
		// "Notifications unknown to the server are ignored." (LSP spec)
		return
	}
	if _, err := handler.invoke(ctx, d, n.Params); err != nil {
		d.logger.Printf("handler error for notification %s: %v", n.Method, err)
	}
}

func (d *Dispatcher) handleCancelRequest(params json.RawMessage) {
	var p struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		d.logger.Printf("malformed %s: %v", CancelMethod, err)
		return
	}
	d.inflightMu.Lock()
	cancel, ok := d.inflight[string(p.ID)]
	d.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

func (d *Dispatcher) handleResponse(resp *jsonrpc2.ResponseMessage) {
	id := string(resp.ID)
	d.pendingMu.Lock()
	pr, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.pendingMu.Unlock()

	if !ok {
		// Unknown ids are dropped, not fatal (§8).
		d.logger.Printf("received response for unknown id: %s", id)
		return
	}

	if pr.delivered.CompareAndSwap(false, true) {
		pr.ch <- response{result: resp.Result, err: resp.Error}
	}
}

func (d *Dispatcher) sendResponse(ctx context.Context, id json.RawMessage, result any, errResp *ErrorObject) {
	if len(id) == 0 || string(id) == "null" {
		return
	}

	resp := &jsonrpc2.ResponseMessage{JSONRPC: jsonrpc2.Version, ID: id}
	if errResp != nil {
		resp.Error = errResp
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = NewError(InternalError, fmt.Sprintf("failed to marshal result: %v", err))
		} else {
			resp.Result = raw
		}
	} else {
		resp.Result = json.RawMessage("null")
	}

	d.tracer.Emit(traceEvent(sent, "", id, resp.Result))
	if err := d.conn.Write(ctx, resp); err != nil {
		d.logger.Printf("error writing response for id %s: %v", string(id), err)
	}
}
