package azcli

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"oss.terrastruct.com/util-go/xdefer"
	"oss.terrastruct.com/util-go/xmain"

	"github.com/dylanowen/archi-zoom/azloader"
	"github.com/dylanowen/archi-zoom/lib/memfs"
	timelib "github.com/dylanowen/archi-zoom/lib/time"
)

//go:embed check.js
var checkJS string

var wasmMagic = []byte("\x00asm")

// checkCmd verifies that a built viewer distribution would load: both
// files are present and plausible, the companion script evaluates and
// defines the init entry, and the whole load sequence settles against a
// stand-in module fetch.
func checkCmd(ctx context.Context, ms *xmain.State, prefix, pkgDir string) (err error) {
	defer xdefer.Errorf(&err, "failed to check")

	ms.Opts = xmain.NewOpts(ms.Env, ms.Opts.Flags.Args()[1:])
	if len(ms.Opts.Args) > 1 {
		return xmain.UsageErrorf("check accepts at most one directory")
	}
	dir := "."
	if len(ms.Opts.Args) == 1 {
		dir = ms.Opts.Args[0]
	}
	dir = ms.AbsPath(dir)

	ctx, cancel := timelib.WithTimeout(ctx, time.Minute*2)
	defer cancel()

	pkgPath := pkgDir
	if !filepath.IsAbs(pkgPath) {
		pkgPath = filepath.Join(dir, pkgPath)
	}
	scriptPath := filepath.Join(pkgPath, prefix+".js")
	modulePath := filepath.Join(pkgPath, prefix+"_bg.wasm")

	script, err := readBundleFile(ms, scriptPath)
	if err != nil {
		return err
	}
	module, err := readBundleFile(ms, modulePath)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(module, wasmMagic) {
		return fmt.Errorf("%s is not a WebAssembly module", ms.HumanPath(modulePath))
	}

	// The loader addresses the viewer as ./pkg/ relative to the page, so
	// the checked files are laid out that way no matter where they live
	// on disk.
	fsys, err := memfs.New(map[string]string{
		strings.TrimPrefix(azloader.ScriptPath(prefix), "./"): string(script),
		strings.TrimPrefix(azloader.ModulePath(prefix), "./"): string(module),
	})
	if err != nil {
		return err
	}

	page, err := azloader.NewScriptPage(fsys, nil)
	if err != nil {
		return err
	}
	_, err = page.Runner().RunString(checkJS)
	if err != nil {
		return err
	}

	load := azloader.NewLoader(page).Ensure(prefix)
	page.FinishLoad()
	_, err = load.Await(ctx)
	if err != nil {
		return err
	}

	ms.Log.Success.Printf("successfully checked %s", ms.HumanPath(pkgPath))
	return nil
}

func readBundleFile(ms *xmain.State, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%s is empty", ms.HumanPath(path))
	}
	return b, nil
}
