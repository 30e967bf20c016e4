// Package azloader loads the viewer's WebAssembly module into a host page:
// it appends the companion script, joins the script and page load signals,
// then hands the binary module path to the companion's init entry point.
// All of it happens at most once per page no matter how many callers ask;
// every caller shares one future.
//
// The package ships the same contract twice: Loader for Go hosts (checks,
// tests, script environments) and the embedded ShimJS for real browsers.
package azloader

import (
	"context"
	"fmt"
	"sync"
)

const (
	// PkgDir is the module bundle directory next to the page.
	PkgDir = "pkg"

	// DefaultEntry is the global init function the companion script
	// exposes.
	DefaultEntry = "archizoomInit"

	// DefaultPrefix names the shipped companion and module files.
	DefaultPrefix = "archizoom"
)

// ScriptPath derives the companion script path for prefix, relative to the
// page.
func ScriptPath(prefix string) string {
	return fmt.Sprintf("./%s/%s.js", PkgDir, prefix)
}

// ModulePath derives the binary module path for prefix, relative to the
// page.
func ModulePath(prefix string) string {
	return fmt.Sprintf("./%s/%s_bg.wasm", PkgDir, prefix)
}

// Loader runs at most one load sequence against its page for the page's
// whole lifetime. Success and failure are both permanent; only a fresh
// page gets a fresh Loader.
type Loader struct {
	page Page

	once sync.Once
	load *Load
}

func NewLoader(page Page) *Loader {
	return &Loader{page: page}
}

// Ensure returns the page's shared load future, starting the load sequence
// on the first call. Only the first call's prefix is honored; later
// prefixes are ignored. Ensure never blocks.
func (l *Loader) Ensure(prefix string) *Load {
	l.once.Do(func() {
		l.load = &Load{done: make(chan struct{})}
		go l.run(prefix)
	})
	return l.load
}

func (l *Loader) run(prefix string) {
	defer close(l.load.done)

	scriptCh := l.page.AppendScript(ScriptPath(prefix))
	pageCh := l.page.Loaded()

	// Join both signals in whichever order they arrive. A script error
	// settles the load early; the page signal no longer matters then.
	for scriptCh != nil || pageCh != nil {
		select {
		case err := <-scriptCh:
			if err != nil {
				l.load.err = &ScriptLoadError{Src: ScriptPath(prefix), Err: err}
				return
			}
			scriptCh = nil
		case <-pageCh:
			pageCh = nil
		}
	}

	// The sequence is never cancelled once started: a caller that gives
	// up waiting must not abort the page's only load. Streaming stays
	// off; it needs a network-served response and pages opened from the
	// local filesystem have none.
	ns, err := l.page.Instantiate(context.Background(), ModulePath(prefix), InstantiateOptions{Streaming: false})
	if err != nil {
		l.load.err = &InstantiateError{Path: ModulePath(prefix), Err: err}
		return
	}
	l.load.ns = ns
}

// Load is the shared result of a page's single load sequence.
type Load struct {
	done chan struct{}
	ns   interface{}
	err  error
}

// Done closes once the sequence has settled, successfully or not.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Await blocks until the sequence settles or ctx ends. ctx bounds only
// this caller's wait, never the sequence itself.
func (l *Load) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-l.done:
		return l.ns, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result is Await without a deadline.
func (l *Load) Result() (interface{}, error) {
	<-l.done
	return l.ns, l.err
}
