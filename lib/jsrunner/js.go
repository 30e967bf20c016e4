//go:build js && wasm

package jsrunner

import (
	"context"
	"fmt"
	"sync"
	"syscall/js"
)

var (
	instance JSRunner
	once     sync.Once
)

// NewJSRunner returns the process wide runner for the host engine. The
// host has one global scope, so one runner.
func NewJSRunner() JSRunner {
	once.Do(func() {
		instance = &jsRunner{global: js.Global()}
	})
	return instance
}

type jsRunner struct {
	global js.Value
}

func (j *jsRunner) Engine() Engine { return Native }

func (j *jsRunner) RunString(code string) (_ JSValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return &jsValue{val: j.global.Call("eval", code)}, nil
}

func (j *jsRunner) NewObject() JSObject {
	return &jsValue{val: j.global.Get("Object").New()}
}

func (j *jsRunner) Get(name string) (JSValue, error) {
	v := j.global.Get(name)
	if v.IsUndefined() {
		return nil, fmt.Errorf("%q not found in global scope", name)
	}
	return &jsValue{val: v}, nil
}

func (j *jsRunner) Set(name string, value interface{}) error {
	switch v := value.(type) {
	case nil:
		if name == "console" {
			// The host engine has its own.
			return nil
		}
		j.global.Set(name, js.Null())
	case *jsValue:
		j.global.Set(name, v.val)
	default:
		j.global.Set(name, js.ValueOf(value))
	}
	return nil
}

// WaitPromise subscribes to the promise and parks the goroutine until a
// callback settles it. It must not be called from a function the host
// event loop invoked, since the callbacks could then never run.
func (j *jsRunner) WaitPromise(ctx context.Context, val JSValue) (interface{}, error) {
	p := val.(*jsValue).val
	if p.Type() != js.TypeObject || p.Get("then").Type() != js.TypeFunction {
		// Not a thenable; it is its own settled value.
		return val.Export(), nil
	}

	type settled struct {
		val      js.Value
		rejected bool
	}
	ch := make(chan settled, 1)
	var fulfill, reject js.Func
	release := func() {
		fulfill.Release()
		reject.Release()
	}
	fulfill = js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		defer release()
		ch <- settled{val: argOrUndefined(args)}
		return nil
	})
	reject = js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		defer release()
		ch <- settled{val: argOrUndefined(args), rejected: true}
		return nil
	})
	p.Call("then", fulfill, reject)

	select {
	case s := <-ch:
		if s.rejected {
			return nil, fmt.Errorf("promise rejected: %s", (&jsValue{val: s.val}).String())
		}
		return export(s.val), nil
	case <-ctx.Done():
		// The callbacks stay registered; the promise may settle after us.
		return nil, ctx.Err()
	}
}

func argOrUndefined(args []js.Value) js.Value {
	if len(args) > 0 {
		return args[0]
	}
	return js.Undefined()
}

type jsValue struct {
	val js.Value
}

func (v *jsValue) String() string {
	if v.val.Type() == js.TypeString {
		return v.val.String()
	}
	return v.val.Call("toString").String()
}

// Export copies the value into plain Go data. Functions and symbols have
// no Go form and export as nil.
func (v *jsValue) Export() interface{} {
	return export(v.val)
}

func export(v js.Value) interface{} {
	switch v.Type() {
	case js.TypeString:
		return v.String()
	case js.TypeNumber:
		return v.Float()
	case js.TypeBoolean:
		return v.Bool()
	case js.TypeObject:
	default:
		return nil
	}
	if v.InstanceOf(js.Global().Get("Array")) {
		arr := make([]interface{}, v.Length())
		for i := range arr {
			arr[i] = export(v.Index(i))
		}
		return arr
	}
	obj := make(map[string]interface{})
	keys := js.Global().Get("Object").Call("keys", v)
	for i, n := 0, keys.Length(); i < n; i++ {
		k := keys.Index(i).String()
		obj[k] = export(v.Get(k))
	}
	return obj
}
