//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/dylanowen/archi-zoom/azjs/azwasm"
)

func main() {
	api := azwasm.NewAPI()

	api.RegisterPromise("init", azwasm.Init)
	api.Register("version", azwasm.Version)

	api.ExportTo(js.Global())

	if cb := js.Global().Get("onWasmInitialized"); !cb.IsUndefined() {
		cb.Invoke()
	}
	select {}
}
