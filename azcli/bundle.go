package azcli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"oss.terrastruct.com/util-go/xmain"

	"github.com/dylanowen/archi-zoom/azbundle"
)

// bundle reads the page, inlines its diagrams and writes the result. It
// returns the local diagram paths the page depends on, relative to the
// page's directory, and whether an output was written at all. Per-image
// failures still write a partial page.
func bundle(ctx context.Context, ms *xmain.State, inputPath, outputPath string, opts azbundle.Opts) (deps []string, written bool, err error) {
	start := time.Now()

	input, err := ms.ReadPath(inputPath)
	if err != nil {
		return nil, false, err
	}

	pageDir := ms.AbsPath(".")
	if inputPath != "-" {
		pageDir = filepath.Dir(inputPath)
	}

	out, deps, bundleErr := azbundle.Bundle(ctx, os.DirFS(pageDir), input, opts)
	if out == nil {
		return deps, false, bundleErr
	}

	err = Write(ms, outputPath, out)
	if err != nil {
		return deps, false, err
	}
	if bundleErr != nil {
		return deps, true, bundleErr
	}

	dur := time.Since(start)
	ms.Log.Success.Printf("successfully bundled %s to %s in %s", ms.HumanPath(inputPath), ms.HumanPath(outputPath), dur)
	return deps, true, nil
}
