package puzzle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
)

// DefaultAssetName is the SVG shipped with the client.
const DefaultAssetName = "stag_with_all_lines.svg"

var (
	ErrAssetNotFound  = errors.New("puzzle asset not found")
	ErrOutlineMissing = errors.New("svg outline path (#outline) not found")
	ErrNoPieces       = errors.New("no puzzle pieces in svg")
)

// Provider hands out the process-wide puzzle definition.
type Provider interface {
	Definition() (*Definition, error)
}

// Builder loads the puzzle asset on first use and memoizes the result, error
// included. Picking up a new asset requires a restart.
type Builder struct {
	candidates []string
	logger     *slog.Logger
	load       func() (*Definition, error)
}

func NewBuilder(candidates []string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		candidates: candidates,
		logger:     logger.With("component", "puzzle"),
	}
	b.load = sync.OnceValues(b.build)
	return b
}

// Definition returns the memoized definition. Every caller after the first
// gets the same pointer.
func (b *Builder) Definition() (*Definition, error) {
	return b.load()
}

func (b *Builder) build() (*Definition, error) {
	path, err := Locate(b.candidates)
	if err != nil {
		b.logger.Error("puzzle asset could not be located", "candidates", b.candidates)
		return nil, err
	}

	b.logger.Info("loading puzzle definition", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read puzzle asset: %w", err)
	}

	def, err := Build(path, data, b.logger)
	if err != nil {
		return nil, err
	}
	b.logger.Info("loaded puzzle definition", "pieces", def.PieceCount(), "version", def.Version)
	return def, nil
}

// CandidatePaths lists where the asset is searched, most specific first. An
// explicit path, when set, is tried before the conventional locations.
func CandidatePaths(explicit, webRoot, contentRoot, name string) []string {
	if name == "" {
		name = DefaultAssetName
	}
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	if webRoot != "" {
		out = append(out, filepath.Join(webRoot, "assets", "pieces", name))
	}
	out = append(out,
		filepath.Join(contentRoot, "assets", "pieces", name),
		filepath.Join(contentRoot, "..", "..", "..", "ClientApp", "src", "assets", "pieces", name),
		filepath.Join(contentRoot, "..", "ClientApp", "src", "assets", "pieces", name),
	)
	return out
}

// Locate returns the absolute path of the first candidate that is a regular
// file.
func Locate(candidates []string) (string, error) {
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return abs, nil
	}
	return "", ErrAssetNotFound
}

// Fixed wraps an already built definition as a Provider.
func Fixed(def *Definition) Provider {
	return fixedProvider{def: def}
}

type fixedProvider struct {
	def *Definition
}

func (f fixedProvider) Definition() (*Definition, error) {
	return f.def, nil
}

type rawPiece struct {
	id       string
	points   []geometry.Vec2
	centroid geometry.Vec2
}

// Build derives the definition from raw SVG bytes. Pieces without path data
// or without sampled points are skipped; an outline or piece whose path data
// cannot be parsed fails the whole build.
func Build(source string, data []byte, logger *slog.Logger) (*Definition, error) {
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := parseSVG(data)
	if err != nil {
		return nil, err
	}
	if doc.Outline == nil {
		return nil, ErrOutlineMissing
	}
	if len(doc.Pieces) == 0 {
		return nil, ErrNoPieces
	}

	outline, err := geometry.SamplePath(doc.Outline.Data)
	if err != nil {
		return nil, fmt.Errorf("sample outline: %w", err)
	}

	raw := make([]rawPiece, 0, len(doc.Pieces))
	for _, el := range doc.Pieces {
		if !el.HasData {
			logger.Warn("skipping piece without path data", "piece", el.ID)
			continue
		}
		points, err := geometry.SamplePath(el.Data)
		if err != nil {
			return nil, fmt.Errorf("sample piece %s: %w", el.ID, err)
		}
		if len(points) == 0 {
			logger.Warn("skipping piece with no sampled points", "piece", el.ID)
			continue
		}
		raw = append(raw, rawPiece{id: el.ID, points: points, centroid: geometry.Centroid(points)})
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: every piece was skipped", ErrNoPieces)
	}

	all := make([][]geometry.Vec2, 0, len(raw)+1)
	all = append(all, outline)
	for _, p := range raw {
		all = append(all, p.points)
	}
	fit := geometry.FitToCanvas(geometry.BoundsOf(all...), CanvasWidth, CanvasHeight, ScaleRatio)

	pieces := make([]PieceDefinition, 0, len(raw))
	shapes := make(map[string][]geometry.Vec2, len(raw))
	for _, p := range raw {
		canvas := fit.ApplyAll(p.points)
		footprint := geometry.BoundsOf(canvas)
		pieces = append(pieces, PieceDefinition{
			ID:            p.id,
			Target:        fit.Apply(p.centroid),
			SnapTolerance: SnapTolerance(footprint.Width(), footprint.Height()),
			Width:         footprint.Width(),
			Height:        footprint.Height(),
		})
		shapes[pieceKey(p.id)] = canvas
	}

	sum := sha256.Sum256(data)
	def := NewDefinition(assetID(source), strings.ToUpper(hex.EncodeToString(sum[:])), pieces)
	def.Source = source
	def.fit = fit
	def.outline = fit.ApplyAll(outline)
	def.shapes = shapes
	return def, nil
}

func assetID(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
