// Package jsrunner abstracts the JavaScript engine that evaluates companion
// scripts: goja everywhere, the host's own engine under js && wasm.
package jsrunner

import "context"

type Engine int

const (
	Goja Engine = iota
	Native
)

type JSRunner interface {
	RunString(code string) (JSValue, error)
	NewObject() JSObject
	Set(name string, value interface{}) error
	Get(name string) (JSValue, error)
	WaitPromise(ctx context.Context, val JSValue) (interface{}, error)
	Engine() Engine
}

type JSValue interface {
	String() string
	Export() interface{}
}

type JSObject interface {
	JSValue
}
