package azloader

import (
	_ "embed"
)

// ShimJS is the browser rendition of the loader, injected inline into
// bundled pages. It exposes a global ensureLoaded(prefix) with Loader's
// exact semantics.
//
//go:embed loader.js
var ShimJS string
