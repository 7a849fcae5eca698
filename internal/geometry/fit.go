package geometry

import "math"

// minSpan keeps the scale finite for zero-width or zero-height content.
const minSpan = 1e-6

// Scaling is the result of UniformScale: the factor plus the source spans it
// was computed from.
type Scaling struct {
	Factor float64
	SpanX  float64
	SpanY  float64
}

// UniformScale returns the largest factor that fits b inside the canvas,
// multiplied by ratio. A ratio below 1 leaves a margin.
func UniformScale(b Bounds, canvasWidth, canvasHeight, ratio float64) Scaling {
	spanX := math.Max(b.Width(), minSpan)
	spanY := math.Max(b.Height(), minSpan)
	base := math.Min(canvasWidth/spanX, canvasHeight/spanY)
	return Scaling{Factor: base * ratio, SpanX: spanX, SpanY: spanY}
}

// Offsets centers scaled content on each axis independently.
func Offsets(s Scaling, canvasWidth, canvasHeight float64) Vec2 {
	return Vec2{
		X: (canvasWidth - s.SpanX*s.Factor) * 0.5,
		Y: (canvasHeight - s.SpanY*s.Factor) * 0.5,
	}
}

// ToCanvasPoint maps a source point into canvas space:
// offset + (p - boundsMin) * scale.
func ToCanvasPoint(p Vec2, b Bounds, s Scaling, offset Vec2) Vec2 {
	return Vec2{
		X: offset.X + (p.X-b.MinX)*s.Factor,
		Y: offset.Y + (p.Y-b.MinY)*s.Factor,
	}
}

// CanvasFit is the single rigid transform applied to every point of a
// puzzle. Pieces never distort relative to each other.
type CanvasFit struct {
	Source  Bounds
	Scaling Scaling
	Offset  Vec2
}

// FitToCanvas computes the scale-to-fit and centering transform for source.
func FitToCanvas(source Bounds, canvasWidth, canvasHeight, ratio float64) CanvasFit {
	s := UniformScale(source, canvasWidth, canvasHeight, ratio)
	return CanvasFit{
		Source:  source,
		Scaling: s,
		Offset:  Offsets(s, canvasWidth, canvasHeight),
	}
}

// Apply maps one source point into canvas space.
func (f CanvasFit) Apply(p Vec2) Vec2 {
	return ToCanvasPoint(p, f.Source, f.Scaling, f.Offset)
}

// ApplyAll maps every point into a new slice.
func (f CanvasFit) ApplyAll(points []Vec2) []Vec2 {
	out := make([]Vec2, len(points))
	for i, p := range points {
		out[i] = f.Apply(p)
	}
	return out
}

// Matrix returns the fit as an affine matrix:
// Translate(offset) * Scale(factor) * Translate(-min).
func (f CanvasFit) Matrix() Matrix2D {
	return Translate(f.Offset.X, f.Offset.Y).
		Multiply(Scale(f.Scaling.Factor, f.Scaling.Factor)).
		Multiply(Translate(-f.Source.MinX, -f.Source.MinY))
}
