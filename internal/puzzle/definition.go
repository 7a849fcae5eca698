package puzzle

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
)

// Canvas and snap constants shared with the browser client.
const (
	CanvasWidth      = 960.0
	CanvasHeight     = 640.0
	ScaleRatio       = 0.9
	SnapBaseFactor   = 0.09
	SnapToleranceMin = 18.0
	SnapToleranceMax = 120.0
)

// PieceDefinition is the authoritative target for one piece in canvas space.
type PieceDefinition struct {
	ID            string        `json:"id"`
	Target        geometry.Vec2 `json:"target"`
	SnapTolerance float64       `json:"snapTolerance"`
	// Width and Height describe the transformed footprint. Diagnostic only.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Definition is the immutable, versioned puzzle geometry. Piece lookups are
// case-insensitive.
type Definition struct {
	PuzzleID     string
	Version      string
	CanvasWidth  float64
	CanvasHeight float64
	// Source is the asset path the definition was built from, if any.
	Source string

	pieces map[string]PieceDefinition
	order  []string

	fit     geometry.CanvasFit
	outline []geometry.Vec2
	shapes  map[string][]geometry.Vec2
	layout  func() Layout
}

// NewDefinition builds a definition from already computed pieces. Duplicate
// ids (ignoring case) keep the last occurrence.
func NewDefinition(puzzleID, version string, pieces []PieceDefinition) *Definition {
	d := &Definition{
		PuzzleID:     puzzleID,
		Version:      version,
		CanvasWidth:  CanvasWidth,
		CanvasHeight: CanvasHeight,
		pieces:       make(map[string]PieceDefinition, len(pieces)),
		shapes:       make(map[string][]geometry.Vec2),
	}
	for _, p := range pieces {
		key := pieceKey(p.ID)
		if _, exists := d.pieces[key]; !exists {
			d.order = append(d.order, key)
		}
		d.pieces[key] = p
	}
	sortPieceKeys(d.order)
	d.layout = sync.OnceValue(d.buildLayout)
	return d
}

// Piece looks up a piece by id, ignoring case.
func (d *Definition) Piece(id string) (PieceDefinition, bool) {
	p, ok := d.pieces[pieceKey(id)]
	return p, ok
}

// PieceCount returns the number of pieces a session must place.
func (d *Definition) PieceCount() int {
	return len(d.pieces)
}

// Pieces returns every piece ordered by numeric suffix.
func (d *Definition) Pieces() []PieceDefinition {
	out := make([]PieceDefinition, 0, len(d.order))
	for _, key := range d.order {
		out = append(out, d.pieces[key])
	}
	return out
}

// SnapTolerance is clamp(max(w, h) * 0.09, 18, 120).
func SnapTolerance(width, height float64) float64 {
	t := math.Max(width, height) * SnapBaseFactor
	return math.Min(math.Max(t, SnapToleranceMin), SnapToleranceMax)
}

func pieceKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// sortPieceKeys orders ids like piece_2 before piece_10. Ids without a
// numeric suffix sort after numbered ones, alphabetically.
func sortPieceKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		ni, okI := numericSuffix(keys[i])
		nj, okJ := numericSuffix(keys[j])
		switch {
		case okI && okJ && ni != nj:
			return ni < nj
		case okI != okJ:
			return okI
		default:
			return keys[i] < keys[j]
		}
	})
}

func numericSuffix(id string) (int, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
