package azcli

import (
	"fmt"
	"path/filepath"

	"oss.terrastruct.com/util-go/xmain"

	"github.com/dylanowen/archi-zoom/lib/version"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s [--watch=false] page.html [page.bundle.html]
  %[1]s check [dir]
  %[1]s version

%[1]s inlines every diagram marked with data-archizoom in page.html and
injects the loader that boots the wasm viewer on the page, writing the
result to page.bundle.html. It defaults to page.bundle.html if an output
path is not provided.

Use - to have archi-zoom read from stdin or write to stdout.

Flags:
%[3]s

Subcommands:
  %[1]s check [dir] - Verify the built viewer under dir loads end to end
  %[1]s version - Print the installed version

See more docs and the source code at https://github.com/dylanowen/archi-zoom.
`, filepath.Base(ms.Name), version.Version, ms.Opts.Defaults())
}
