package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ondrik-labs/lsprotocol/jsonrpc2"
)

// typedHandler wraps a user-provided function with strong parameter typing,
// built around the same reflection-based dispatch server/handler.go used so
// both client and server sides share one invocation path.
type typedHandler struct {
	h           any
	paramType   reflect.Type
	takesPeer   bool
	takesParams bool
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	peerType  = reflect.TypeOf((*Dispatcher)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// invoke calls the underlying user handler after decoding params.
func (h *typedHandler) invoke(ctx context.Context, d *Dispatcher, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("handler panicked: %v", r)
		}
	}()

	var paramsPtr any

	if h.takesParams && h.paramType != nil {
		paramsValue := reflect.New(h.paramType)
		paramsPtr = paramsValue.Interface()

		if len(params) > 0 && string(params) != "null" {
			if uerr := json.Unmarshal(params, paramsPtr); uerr != nil {
				return nil, &jsonrpc2.ErrorObject{Code: jsonrpc2.InvalidParams, Message: fmt.Sprintf("failed to unmarshal params: %v", uerr)}
			}
		}
	} else if len(params) > 0 && string(params) != "null" {
		return nil, &jsonrpc2.ErrorObject{Code: jsonrpc2.InvalidParams, Message: "method received unexpected parameters"}
	}

	handlerFunc := reflect.ValueOf(h.h)
	funcType := handlerFunc.Type()

	args := []reflect.Value{reflect.ValueOf(ctx)}
	argIndex := 1

	if h.takesPeer {
		args = append(args, reflect.ValueOf(d))
		argIndex++
	}

	if h.takesParams {
		paramArgType := funcType.In(argIndex)
		paramValue := reflect.ValueOf(paramsPtr)
		if paramArgType.Kind() != reflect.Ptr && !paramValue.IsNil() {
			args = append(args, paramValue.Elem())
		} else {
			args = append(args, paramValue)
		}
		argIndex++
	}

	results := handlerFunc.Call(args)

	var resErr error
	var resVal any

	switch len(results) {
	case 1:
		if e, ok := results[0].Interface().(error); ok {
			resErr = e
		} else {
			resVal = results[0].Interface()
		}
	case 2:
		if !results[0].IsNil() {
			resVal = results[0].Interface()
		}
		if !results[1].IsNil() {
			resErr, _ = results[1].Interface().(error)
		}
	}

	return resVal, resErr
}

// validateHandlerFunc checks a handler's signature:
// func(ctx context.Context [, *rpc.Dispatcher], [params]) ([result,] [error])
func validateHandlerFunc(h any) (paramType reflect.Type, takesPeer bool, takesParams bool, err error) {
	hType := reflect.TypeOf(h)
	if hType == nil || hType.Kind() != reflect.Func {
		err = fmt.Errorf("handler must be a function")
		return
	}

	if hType.NumIn() < 1 || hType.In(0) != ctxType {
		err = fmt.Errorf("handler must accept context.Context as first argument")
		return
	}

	idx := 1
	if hType.NumIn() > idx && hType.In(idx) == peerType {
		takesPeer = true
		idx++
	}

	if hType.NumIn() > idx {
		pt := hType.In(idx)
		if pt.Kind() == reflect.Ptr {
			paramType = pt.Elem()
		} else {
			paramType = pt
		}
		takesParams = true
		idx++
	}

	if hType.NumIn() > idx {
		err = fmt.Errorf("handler has too many input arguments (max context, [*rpc.Dispatcher], [params])")
		return
	}

	if hType.NumOut() > 2 {
		err = fmt.Errorf("handler has too many return values (max result, error)")
		return
	}
	if hType.NumOut() == 2 {
		if !hType.Out(1).Implements(errorType) {
			err = fmt.Errorf("handler's last return value must be error if multiple values are returned")
			return
		}
	}

	return
}
