//go:build js && wasm

package azwasm

import (
	"fmt"
	"syscall/js"

	"github.com/dylanowen/archi-zoom/lib/version"
)

const (
	attrMark     = "data-archizoom"
	attrSrc      = "data-archizoom-src"
	attrAttached = "data-archizoom-attached"

	containerClass = "archizoom"
)

// Init scans the page for marked elements and attaches a viewer to each.
// Failed nodes are logged and skipped so one broken diagram does not take
// down the rest. Re-running only picks up nodes added since.
func Init(args []js.Value) (interface{}, error) {
	doc := js.Global().Get("document")
	nodes := doc.Call("querySelectorAll", "["+attrMark+"]")

	attached := 0
	for i := 0; i < nodes.Length(); i++ {
		ok, err := attach(doc, nodes.Index(i))
		if err != nil {
			js.Global().Get("console").Call("error", fmt.Sprintf("archizoom: %v", err))
			continue
		}
		if ok {
			attached++
		}
	}
	return InitResponse{Attached: attached}, nil
}

func Version(args []js.Value) (interface{}, error) {
	return version.Version, nil
}
