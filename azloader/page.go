package azloader

import (
	"context"
	"fmt"
)

// Page is the host environment a load sequence drives. A real browser is
// one through ShimJS; ScriptPage is one for headless use.
type Page interface {
	// AppendScript attaches the script at src to the page and returns a
	// buffered channel carrying the script's load signal: nil once the
	// script has run, the load error otherwise. The loader calls this
	// exactly once per page.
	AppendScript(src string) <-chan error

	// Loaded is closed once the page itself has finished loading.
	Loaded() <-chan struct{}

	// Instantiate invokes the companion script's init entry point with
	// the binary module path and returns the exported namespace.
	Instantiate(ctx context.Context, path string, opts InstantiateOptions) (interface{}, error)
}

// InstantiateOptions control module compilation.
type InstantiateOptions struct {
	// Streaming permits compiling the module while it still downloads.
	// The loader always leaves it off.
	Streaming bool
}

// ScriptLoadError reports a companion script that failed to load or run.
type ScriptLoadError struct {
	Src string
	Err error
}

func (e *ScriptLoadError) Error() string {
	return fmt.Sprintf("companion script %s failed to load: %v", e.Src, e.Err)
}

func (e *ScriptLoadError) Unwrap() error {
	return e.Err
}

// InstantiateError reports a binary module that failed to instantiate.
type InstantiateError struct {
	Path string
	Err  error
}

func (e *InstantiateError) Error() string {
	return fmt.Sprintf("module %s failed to instantiate: %v", e.Path, e.Err)
}

func (e *InstantiateError) Unwrap() error {
	return e.Err
}
