//go:build js && wasm

package azwasm

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"syscall/js"
)

type API struct {
	exports map[string]js.Func
}

func NewAPI() *API {
	return &API{
		exports: make(map[string]js.Func),
	}
}

func (api *API) Register(name string, fn func(args []js.Value) (interface{}, error)) {
	api.exports[name] = wrapWASMCall(fn)
}

// RegisterPromise exports fn behind a JS promise so it can block on browser
// APIs without stalling the event loop.
func (api *API) RegisterPromise(name string, fn func(args []js.Value) (interface{}, error)) {
	api.exports[name] = wrapWASMPromise(fn)
}

func (api *API) ExportTo(target js.Value) {
	ns := make(map[string]interface{})
	for name, fn := range api.exports {
		ns[name] = fn
	}
	target.Set("archizoom", js.ValueOf(ns))
}

func wrapWASMCall(fn func(args []js.Value) (interface{}, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		return respond(fn, args)
	})
}

func wrapWASMPromise(fn func(args []js.Value) (interface{}, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		// The executor runs synchronously inside New, so releasing the
		// handler right after is safe.
		handler := js.FuncOf(func(this js.Value, pargs []js.Value) any {
			resolve := pargs[0]
			go func() {
				resolve.Invoke(respond(fn, args))
			}()
			return nil
		})
		defer handler.Release()
		return js.Global().Get("Promise").New(handler)
	})
}

func respond(fn func(args []js.Value) (interface{}, error), args []js.Value) (result string) {
	defer func() {
		if r := recover(); r != nil {
			resp := WASMResponse{
				Error: &WASMError{
					Message: fmt.Sprintf("panic recovered: %v\n%s", r, debug.Stack()),
					Code:    500,
				},
			}
			jsonResp, _ := json.Marshal(resp)
			result = string(jsonResp)
		}
	}()

	data, err := fn(args)
	if err != nil {
		wasmErr, ok := err.(*WASMError)
		if !ok {
			wasmErr = &WASMError{
				Message: err.Error(),
				Code:    500,
			}
		}
		jsonResp, _ := json.Marshal(WASMResponse{Error: wasmErr})
		return string(jsonResp)
	}

	jsonResp, _ := json.Marshal(WASMResponse{Data: data})
	return string(jsonResp)
}
