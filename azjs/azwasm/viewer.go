//go:build js && wasm

package azwasm

import (
	"fmt"
	"strings"
	"syscall/js"

	"github.com/dylanowen/archi-zoom/azviewer"
	"github.com/dylanowen/archi-zoom/lib/geo"
)

// attach wires a viewer to one marked node. Images are swapped for a
// container div with their SVG text inlined; pre-inlined SVGs are wired in
// place. Reports whether a new viewer was attached.
func attach(doc, node js.Value) (bool, error) {
	if node.Call("hasAttribute", attrAttached).Bool() {
		return false, nil
	}

	switch tag := strings.ToLower(node.Get("tagName").String()); tag {
	case "img":
		svg, err := inlineImage(doc, node)
		if err != nil {
			return false, err
		}
		wire(svg)
		return true, nil
	case "svg":
		wire(node)
		return true, nil
	default:
		return false, fmt.Errorf("cannot attach to <%s>", tag)
	}
}

// inlineImage fetches the image's SVG source and swaps the img for a
// container div sized to the image's rendered box.
func inlineImage(doc, img js.Value) (js.Value, error) {
	src := img.Call("getAttribute", "src")
	if src.IsNull() || src.String() == "" {
		return js.Value{}, fmt.Errorf("img[%s] is missing a src", attrMark)
	}

	text, err := fetchText(src.String())
	if err != nil {
		return js.Value{}, err
	}

	container := doc.Call("createElement", "div")
	container.Call("setAttribute", "class", containerClass)
	container.Call("setAttribute", attrSrc, src.String())
	w := img.Get("offsetWidth").Float()
	h := img.Get("offsetHeight").Float()
	if w > 0 && h > 0 {
		container.Call("setAttribute", "style", fmt.Sprintf("width: %.0fpx; height: %.0fpx", w, h))
	}
	container.Set("innerHTML", text)

	svg := container.Call("querySelector", "svg")
	if svg.IsNull() {
		return js.Value{}, fmt.Errorf("%s has no svg root", src.String())
	}
	svg.Call("setAttribute", attrMark, "")
	svg.Call("setAttribute", "width", "100%")
	svg.Call("setAttribute", "height", "100%")

	img.Get("parentNode").Call("replaceChild", container, img)
	return svg, nil
}

// wire connects one SVG's DOM events to a fresh view controller. The
// listeners live as long as the element does.
func wire(svg js.Value) {
	box := azviewer.DefaultViewBox
	if attr := svg.Call("getAttribute", "viewBox"); !attr.IsNull() {
		if parsed, err := azviewer.ParseViewBox(attr.String()); err == nil {
			box = parsed
		}
	}
	svg.Call("setAttribute", "viewBox", box.String())
	svg.Call("setAttribute", attrAttached, "")

	view := azviewer.NewView(box)
	view.OnUpdate(func(u azviewer.ViewUpdate) {
		svg.Call("setAttribute", "viewBox", u.Box.String())
	})

	// The screen transform shifts with every view box write, so it is
	// re-read before each piece of pointer math.
	refresh := func() {
		view.SetScreenMatrix(screenMatrix(svg))
		view.SetViewport(viewport(svg))
	}

	down := func(e js.Value, p geo.Point) {
		refresh()
		view.PointerDown(p)
	}
	move := func(e js.Value, p geo.Point) {
		if view.Dragging() {
			refresh()
		}
		if view.PointerMove(p) {
			e.Call("preventDefault")
		}
	}
	up := func(js.Value) {
		view.PointerUp()
	}

	if !js.Global().Get("PointerEvent").IsUndefined() {
		listen(svg, "pointerdown", func(e js.Value) { down(e, clientPoint(e)) })
		listen(svg, "pointermove", func(e js.Value) { move(e, clientPoint(e)) })
		listen(svg, "pointerup", up)
		listen(svg, "pointerleave", up)
	} else {
		listen(svg, "mousedown", func(e js.Value) { down(e, clientPoint(e)) })
		listen(svg, "mousemove", func(e js.Value) { move(e, clientPoint(e)) })
		listen(svg, "mouseup", up)
		listen(svg, "mouseleave", up)
		listen(svg, "touchstart", func(e js.Value) { down(e, touchPoint(e)) })
		listen(svg, "touchmove", func(e js.Value) { move(e, touchPoint(e)) })
		listen(svg, "touchend", up)
	}
	listen(svg, "wheel", func(e js.Value) {
		e.Call("preventDefault")
		refresh()
		view.Scroll(e.Get("deltaY").Float())
	})
}

func screenMatrix(svg js.Value) geo.Matrix {
	m := svg.Call("getScreenCTM")
	if m.IsNull() {
		// Not rendered yet: singular, so drags are ignored.
		return geo.Matrix{}
	}
	return geo.Matrix{
		A: m.Get("a").Float(),
		B: m.Get("b").Float(),
		C: m.Get("c").Float(),
		D: m.Get("d").Float(),
		E: m.Get("e").Float(),
		F: m.Get("f").Float(),
	}
}

// viewport is the rendered size of the SVG, originned at zero.
func viewport(svg js.Value) geo.Rect {
	r := svg.Call("getBoundingClientRect")
	return geo.NewRect(geo.NewPoint(0, 0), geo.NewPoint(r.Get("width").Float(), r.Get("height").Float()))
}
