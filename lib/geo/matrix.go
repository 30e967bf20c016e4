package geo

// Matrix is a 2D affine transform laid out the way SVG's DOMMatrix is:
//
//	[A C E]
//	[B D F]
type Matrix struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`
}

func Identity() Matrix {
	return Matrix{A: 1, D: 1}
}

func Translation(dx, dy float64) Matrix {
	return Matrix{A: 1, D: 1, E: dx, F: dy}
}

func Scale(sx, sy float64) Matrix {
	return Matrix{A: sx, D: sy}
}

func (m Matrix) Apply(p Point) Point {
	return Point{
		X: p.X*m.A + p.Y*m.C + m.E,
		Y: p.X*m.B + p.Y*m.D + m.F,
	}
}

// Mul composes transforms: (m.Mul(n)).Apply(p) == m.Apply(n.Apply(p)).
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Matrix) Det() float64 {
	return m.A*m.D - m.B*m.C
}

// Inverse reports false for singular matrices, e.g. an SVG that is not
// rendered yet and so has a zero-area screen transform.
func (m Matrix) Inverse() (Matrix, bool) {
	det := m.Det()
	if det == 0 {
		return Matrix{}, false
	}
	return Matrix{
		A: m.D / det,
		B: -m.B / det,
		C: -m.C / det,
		D: m.A / det,
		E: (m.C*m.F - m.D*m.E) / det,
		F: (m.B*m.E - m.A*m.F) / det,
	}, true
}
