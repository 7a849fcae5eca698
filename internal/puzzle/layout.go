package puzzle

import "github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"

// Resampling density for polygons sent to the client for drawing. Validation
// never uses these points.
const (
	layoutStep     = 2.0
	layoutMinSteps = 64
	layoutMaxSteps = 2048
)

// Layout is the drawable form of a definition, in canvas space.
type Layout struct {
	PuzzleID     string          `json:"puzzleId"`
	Version      string          `json:"version"`
	CanvasWidth  float64         `json:"canvasWidth"`
	CanvasHeight float64         `json:"canvasHeight"`
	Transform    []float64       `json:"transform"`
	Outline      []geometry.Vec2 `json:"outline"`
	Pieces       []LayoutPiece   `json:"pieces"`
}

type LayoutPiece struct {
	ID            string          `json:"id"`
	Points        []geometry.Vec2 `json:"points"`
	Anchor        geometry.Vec2   `json:"anchor"`
	SnapTolerance float64         `json:"snapTolerance"`
	Width         float64         `json:"width"`
	Height        float64         `json:"height"`
}

// Layout returns the drawable layout, computed once per definition.
func (d *Definition) Layout() Layout {
	return d.layout()
}

func (d *Definition) buildLayout() Layout {
	transform := geometry.Identity()
	if d.fit.Scaling.Factor != 0 {
		transform = d.fit.Matrix()
	}

	l := Layout{
		PuzzleID:     d.PuzzleID,
		Version:      d.Version,
		CanvasWidth:  d.CanvasWidth,
		CanvasHeight: d.CanvasHeight,
		Transform:    transform.ToSlice(),
		Outline:      resampleForDrawing(d.outline),
		Pieces:       make([]LayoutPiece, 0, len(d.order)),
	}
	for _, key := range d.order {
		p := d.pieces[key]
		l.Pieces = append(l.Pieces, LayoutPiece{
			ID:            p.ID,
			Points:        resampleForDrawing(d.shapes[key]),
			Anchor:        p.Target,
			SnapTolerance: p.SnapTolerance,
			Width:         p.Width,
			Height:        p.Height,
		})
	}
	return l
}

func resampleForDrawing(points []geometry.Vec2) []geometry.Vec2 {
	if len(points) == 0 {
		return []geometry.Vec2{}
	}
	return geometry.Resample(points, layoutStep, layoutMinSteps, layoutMaxSteps)
}
