package azloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/dylanowen/archi-zoom/lib/jsrunner"
)

// ScriptPage is a Page backed by a script engine and an fs.FS standing in
// for the page's directory. Companion scripts are evaluated in the engine;
// the init entry point reads the binary module through the
// archizoomFetchModule host function, the headless stand-in for the
// browser's fetch.
type ScriptPage struct {
	fsys   fs.FS
	runner jsrunner.JSRunner
	entry  string

	loaded   chan struct{}
	loadOnce sync.Once

	mu      sync.Mutex
	scripts []string
}

type ScriptPageOpts struct {
	// Entry overrides the init entry point name. DefaultEntry otherwise.
	Entry string
}

func NewScriptPage(fsys fs.FS, opts *ScriptPageOpts) (*ScriptPage, error) {
	entry := DefaultEntry
	if opts != nil && opts.Entry != "" {
		entry = opts.Entry
	}
	p := &ScriptPage{
		fsys:   fsys,
		runner: jsrunner.NewJSRunner(),
		entry:  entry,
		loaded: make(chan struct{}),
	}
	if err := p.runner.Set("console", nil); err != nil {
		return nil, err
	}
	if err := p.runner.Set("archizoomFetchModule", p.fetchModule); err != nil {
		return nil, err
	}
	return p, nil
}

// fetchModule reads the module bytes for the entry point. The bytes travel
// as a binary string, the one byte-array form every engine shares.
func (p *ScriptPage) fetchModule(path string) (string, error) {
	b, err := fs.ReadFile(p.fsys, strings.TrimPrefix(path, "./"))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *ScriptPage) AppendScript(src string) <-chan error {
	ch := make(chan error, 1)

	p.mu.Lock()
	p.scripts = append(p.scripts, src)
	p.mu.Unlock()

	b, err := fs.ReadFile(p.fsys, strings.TrimPrefix(src, "./"))
	if err != nil {
		ch <- err
		return ch
	}
	if _, err := p.runner.RunString(string(b)); err != nil {
		ch <- err
		return ch
	}
	ch <- nil
	return ch
}

// Scripts returns the script srcs appended so far.
func (p *ScriptPage) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// FinishLoad raises the page's load signal. Safe to call more than once.
func (p *ScriptPage) FinishLoad() {
	p.loadOnce.Do(func() {
		close(p.loaded)
	})
}

func (p *ScriptPage) Loaded() <-chan struct{} {
	return p.loaded
}

func (p *ScriptPage) Instantiate(ctx context.Context, path string, opts InstantiateOptions) (interface{}, error) {
	if opts.Streaming {
		return nil, errors.New("script engines cannot stream-compile")
	}

	typ, err := p.runner.RunString("typeof " + p.entry)
	if err != nil {
		return nil, err
	}
	if typ.String() != "function" {
		return nil, fmt.Errorf("companion script does not define %s", p.entry)
	}

	promise, err := p.runner.RunString(fmt.Sprintf("%s(%q)", p.entry, path))
	if err != nil {
		return nil, err
	}
	return p.runner.WaitPromise(ctx, promise)
}

// Runner exposes the underlying engine for callers that need to poke at
// the page's globals, e.g. the bundle check.
func (p *ScriptPage) Runner() jsrunner.JSRunner {
	return p.runner
}
