package geometry

import "math"

// centroidAreaEpsilon is the doubled-area magnitude below which a polygon is
// treated as degenerate.
const centroidAreaEpsilon = 1e-6

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Width returns the horizontal extent, never negative.
func (b Bounds) Width() float64 {
	return math.Max(b.MaxX-b.MinX, 0)
}

// Height returns the vertical extent, never negative.
func (b Bounds) Height() float64 {
	return math.Max(b.MaxY-b.MinY, 0)
}

// Min returns the top-left corner.
func (b Bounds) Min() Vec2 {
	return Vec2{X: b.MinX, Y: b.MinY}
}

// BoundsOf returns the box enclosing every point of every list. The zero
// Bounds is returned when there are no points at all.
func BoundsOf(lists ...[]Vec2) Bounds {
	var b Bounds
	first := true
	for _, points := range lists {
		for _, p := range points {
			if first {
				b = Bounds{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
				first = false
				continue
			}
			b.MinX = math.Min(b.MinX, p.X)
			b.MinY = math.Min(b.MinY, p.Y)
			b.MaxX = math.Max(b.MaxX, p.X)
			b.MaxY = math.Max(b.MaxY, p.Y)
		}
	}
	return b
}

// Centroid returns the area centroid of the closed polygon described by
// points (shoelace formula). Near-zero-area input falls back to the
// arithmetic mean so collinear point sets never produce NaN or Inf.
func Centroid(points []Vec2) Vec2 {
	if len(points) == 0 {
		return Vec2{}
	}

	var area, cx, cy float64
	for i, cur := range points {
		next := points[(i+1)%len(points)]
		cross := cur.X*next.Y - next.X*cur.Y
		area += cross
		cx += (cur.X + next.X) * cross
		cy += (cur.Y + next.Y) * cross
	}

	if math.Abs(area) < centroidAreaEpsilon {
		return Mean(points)
	}

	area *= 0.5
	factor := 1 / (6 * area)
	return Vec2{X: cx * factor, Y: cy * factor}
}

// Mean returns the arithmetic mean of points.
func Mean(points []Vec2) Vec2 {
	if len(points) == 0 {
		return Vec2{}
	}
	var sum Vec2
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}
