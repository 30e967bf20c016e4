// Package azviewer implements the pan and zoom view controller behind every
// attached diagram: pointer drags translate the SVG view box, wheel deltas
// zoom it about its center. The package is DOM-free; the browser build feeds
// it pointer positions and the current screen transform and applies the
// resulting view box back to the SVG element.
package azviewer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dylanowen/archi-zoom/lib/events"
	"github.com/dylanowen/archi-zoom/lib/geo"
)

// ZoomFactor scales wheel deltas into relative view box growth.
const ZoomFactor = 0.003

// DefaultViewBox is applied to SVGs that are attached without one.
var DefaultViewBox = ViewBox{W: 200, H: 200}

// ViewBox is the window into the SVG's user coordinate system, in the order
// of the SVG viewBox attribute: min-x, min-y, width, height.
type ViewBox struct {
	X float64
	Y float64
	W float64
	H float64
}

func (vb ViewBox) Rect() geo.Rect {
	return geo.NewRect(geo.NewPoint(vb.X, vb.Y), geo.NewPoint(vb.X+vb.W, vb.Y+vb.H))
}

// String renders the attribute form, e.g. "0 0 200 200".
func (vb ViewBox) String() string {
	return fmt.Sprintf("%s %s %s %s", fmtFloat(vb.X), fmtFloat(vb.Y), fmtFloat(vb.W), fmtFloat(vb.H))
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func ParseViewBox(s string) (ViewBox, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return ViewBox{}, fmt.Errorf("viewBox needs 4 numbers, got %q", s)
	}
	var vals [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ViewBox{}, fmt.Errorf("invalid viewBox %q: %v", s, err)
		}
		vals[i] = v
	}
	return ViewBox{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}

// ViewUpdate reports a view box mutation. Viewport is the SVG's client
// bounding box in pixels.
type ViewUpdate struct {
	Viewport geo.Rect
	Box      ViewBox
}

// View tracks one SVG's pan/zoom state. It is driven from a single event
// loop and is not safe for concurrent use.
type View struct {
	box      ViewBox
	screen   geo.Matrix // user -> client coordinates, fed by the host
	viewport geo.Rect

	pointerDown bool
	origin      geo.Point // drag origin in user coordinates

	updates events.Source[ViewUpdate]
}

func NewView(box ViewBox) *View {
	return &View{
		box:    box,
		screen: geo.Identity(),
	}
}

func (v *View) Box() ViewBox {
	return v.box
}

// SetScreenMatrix records the SVG's current screen transform. The host
// refreshes it before pointer math since the transform changes with every
// view box write.
func (v *View) SetScreenMatrix(m geo.Matrix) {
	v.screen = m
}

// SetViewport records the SVG's client bounding box, reported on updates.
func (v *View) SetViewport(r geo.Rect) {
	v.viewport = r
}

// OnUpdate registers l for every view box mutation.
func (v *View) OnUpdate(l events.Listener[ViewUpdate]) {
	v.updates.Subscribe(l)
}

// PointerDown starts a drag at the given client position. An SVG that is
// not rendered yet has a singular screen transform; the drag is ignored.
func (v *View) PointerDown(client geo.Point) {
	p, ok := v.userPoint(client)
	if !ok {
		return
	}
	v.pointerDown = true
	v.origin = p
}

// PointerMove pans while a drag is active. The view box moves opposite the
// pointer so the content follows it. It reports whether the event was
// consumed; hosts preventDefault only then.
func (v *View) PointerMove(client geo.Point) bool {
	if !v.pointerDown {
		return false
	}
	p, ok := v.userPoint(client)
	if !ok {
		return true
	}

	v.box.X -= p.X - v.origin.X
	v.box.Y -= p.Y - v.origin.Y
	v.dispatch()
	return true
}

// PointerUp ends a drag. Pointer leave and touch end map here too.
func (v *View) PointerUp() {
	v.pointerDown = false
}

// Dragging reports whether a drag is active. Hosts use it to skip screen
// transform reads for moves that cannot pan.
func (v *View) Dragging() bool {
	return v.pointerDown
}

// Scroll zooms about the view box center. A positive deltaY (wheel toward
// the user) grows the box, i.e. zooms out.
func (v *View) Scroll(deltaY float64) {
	dw := v.box.W * (deltaY * ZoomFactor)
	dh := v.box.H * (deltaY * ZoomFactor)

	v.box.W += dw
	v.box.H += dh
	v.box.X -= dw / 2
	v.box.Y -= dh / 2
	v.dispatch()
}

func (v *View) userPoint(client geo.Point) (geo.Point, bool) {
	inv, ok := v.screen.Inverse()
	if !ok {
		return geo.Point{}, false
	}
	return inv.Apply(client), true
}

func (v *View) dispatch() {
	v.updates.Dispatch(ViewUpdate{
		Viewport: v.viewport,
		Box:      v.box,
	})
}
