//go:build js && wasm

package azwasm

import (
	"fmt"
	"syscall/js"

	"github.com/dylanowen/archi-zoom/lib/geo"
)

func listen(target js.Value, event string, fn func(e js.Value)) {
	target.Call("addEventListener", event, js.FuncOf(func(this js.Value, args []js.Value) any {
		fn(args[0])
		return nil
	}))
}

func clientPoint(e js.Value) geo.Point {
	return geo.NewPoint(e.Get("clientX").Float(), e.Get("clientY").Float())
}

func touchPoint(e js.Value) geo.Point {
	touches := e.Get("touches")
	if touches.Length() == 0 {
		return geo.Point{}
	}
	t := touches.Index(0)
	return geo.NewPoint(t.Get("clientX").Float(), t.Get("clientY").Float())
}

// await blocks the calling goroutine on a JS promise. Callers must not be
// holding the event loop.
func await(promise js.Value) (js.Value, error) {
	done := make(chan struct{})
	var result js.Value
	var err error

	onResolve := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			result = args[0]
		}
		close(done)
		return nil
	})
	defer onResolve.Release()
	onReject := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			err = js.Error{Value: args[0]}
		} else {
			err = js.Error{Value: js.ValueOf("promise rejected")}
		}
		close(done)
		return nil
	})
	defer onReject.Release()

	promise.Call("then", onResolve, onReject)
	<-done
	return result, err
}

func fetchText(url string) (string, error) {
	resp, err := await(js.Global().Call("fetch", url))
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if !resp.Get("ok").Bool() {
		return "", fmt.Errorf("%s responded %d", url, resp.Get("status").Int())
	}
	text, err := await(resp.Call("text"))
	if err != nil {
		return "", err
	}
	return text.String(), nil
}
