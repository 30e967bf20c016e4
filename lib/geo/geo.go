// Package geo implements the planar math behind the SVG viewer: points,
// rectangles and affine transforms in SVG user coordinates.
package geo

import "fmt"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) Equals(q Point) bool {
	return p.X == q.X && p.Y == q.Y
}

// Transform maps p through m.
func (p Point) Transform(m Matrix) Point {
	return m.Apply(p)
}

func (p Point) ToString() string {
	return fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y)
}

// Rect is an axis-aligned rectangle. TopLeft is the corner with the
// smaller coordinates; SVG's y axis grows downward.
type Rect struct {
	TopLeft     Point `json:"top_left"`
	BottomRight Point `json:"bottom_right"`
}

func NewRect(tl, br Point) Rect {
	return Rect{TopLeft: tl, BottomRight: br}
}

func (r Rect) Left() float64   { return r.TopLeft.X }
func (r Rect) Top() float64    { return r.TopLeft.Y }
func (r Rect) Right() float64  { return r.BottomRight.X }
func (r Rect) Bottom() float64 { return r.BottomRight.Y }

func (r Rect) Width() float64 {
	return r.BottomRight.X - r.TopLeft.X
}

func (r Rect) Height() float64 {
	return r.BottomRight.Y - r.TopLeft.Y
}

func (r Rect) Area() float64 {
	return r.Width() * r.Height()
}

func (r Rect) Center() Point {
	return Point{
		X: r.TopLeft.X + r.Width()/2,
		Y: r.TopLeft.Y + r.Height()/2,
	}
}

func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{
		TopLeft:     Point{X: r.TopLeft.X + dx, Y: r.TopLeft.Y + dy},
		BottomRight: Point{X: r.BottomRight.X + dx, Y: r.BottomRight.Y + dy},
	}
}

// Transform maps both corners through m. The result is only axis-aligned
// for scale and translation matrices, which is all the viewer applies.
func (r Rect) Transform(m Matrix) Rect {
	return Rect{
		TopLeft:     m.Apply(r.TopLeft),
		BottomRight: m.Apply(r.BottomRight),
	}
}

func (r Rect) ToString() string {
	return fmt.Sprintf("%s -> %s", r.TopLeft.ToString(), r.BottomRight.ToString())
}
