//go:build !js && !wasm

package jsrunner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
)

// consoleTargets maps console methods onto process streams.
var consoleTargets = map[string]*os.File{
	"log":   os.Stdout,
	"debug": os.Stdout,
	"warn":  os.Stderr,
	"error": os.Stderr,
}

type gojaRunner struct {
	vm *goja.Runtime
}

type gojaValue struct {
	val goja.Value
	vm  *goja.Runtime
}

func NewJSRunner() JSRunner {
	return &gojaRunner{vm: goja.New()}
}

func (g *gojaRunner) Engine() Engine { return Goja }

func (g *gojaRunner) RunString(code string) (JSValue, error) {
	val, err := g.vm.RunString(code)
	if err != nil {
		return nil, err
	}
	return &gojaValue{val: val, vm: g.vm}, nil
}

func (g *gojaRunner) NewObject() JSObject {
	return &gojaValue{val: g.vm.NewObject(), vm: g.vm}
}

func (g *gojaRunner) Get(name string) (JSValue, error) {
	val := g.vm.GlobalObject().Get(name)
	if val == nil || goja.IsUndefined(val) {
		return nil, fmt.Errorf("%q not found in global scope", name)
	}
	return &gojaValue{val: val, vm: g.vm}, nil
}

// Set installs value as a global. Setting console wires the engine's
// console methods to the process streams no matter the value.
func (g *gojaRunner) Set(name string, value interface{}) error {
	if name == "console" {
		console, err := g.newConsole()
		if err != nil {
			return err
		}
		return g.vm.Set(name, console)
	}
	if v, ok := value.(*gojaValue); ok {
		return g.vm.Set(name, v.val)
	}
	return g.vm.Set(name, value)
}

// WaitPromise blocks until the promise settles or ctx ends. goja runs
// promise jobs inside RunString, so a promise still pending here settles
// only through a later host call; polling is the portable wait.
func (g *gojaRunner) WaitPromise(ctx context.Context, val JSValue) (interface{}, error) {
	promise, ok := val.(*gojaValue).val.Export().(*goja.Promise)
	if !ok {
		return nil, fmt.Errorf("expected a promise, got %T", val.Export())
	}

	for {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("promise rejected: %s", promise.Result().String())
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		time.Sleep(time.Millisecond)
	}
}

func (g *gojaRunner) newConsole() (*goja.Object, error) {
	console := g.vm.NewObject()
	for method, out := range consoleTargets {
		out := out
		err := console.Set(method, g.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			fmt.Fprintln(out, args...)
			return nil
		}))
		if err != nil {
			return nil, err
		}
	}
	return console, nil
}

func (v *gojaValue) String() string {
	return v.val.String()
}

func (v *gojaValue) Export() interface{} {
	return v.val.Export()
}
