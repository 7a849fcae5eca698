package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// CubicSegments is the number of line segments each cubic Bézier is
	// flattened into.
	CubicSegments = 24

	// DuplicateEpsilon suppresses consecutive points closer than this on
	// both axes.
	DuplicateEpsilon = 1e-4
)

var (
	ErrMissingCommand     = errors.New("path data does not start with a command")
	ErrUnsupportedCommand = errors.New("unsupported path command")
	ErrMalformedNumber    = errors.New("malformed number in path data")
)

// SamplePath flattens SVG path data into an ordered polyline.
//
// Only the commands produced by the puzzle asset toolchain are accepted:
// M/m, L/l, V/v, C/c and Z/z. Empty data yields an empty result; anything
// else the parser does not understand is an error.
func SamplePath(d string) ([]Vec2, error) {
	if strings.TrimSpace(d) == "" {
		return nil, nil
	}

	sc := pathScanner{data: d}
	var out polyline
	var cmd byte
	var cur, start Vec2

	for {
		sc.skipSeparators()
		if sc.done() {
			break
		}

		ch := sc.peek()
		if isCommandLetter(ch) {
			sc.pos++
			switch ch {
			case 'M', 'm', 'L', 'l', 'V', 'v', 'C', 'c':
				cmd = ch
			case 'Z', 'z':
				out.line(cur, start)
				cur = start
				cmd = ch
			default:
				return nil, fmt.Errorf("%w %q at offset %d", ErrUnsupportedCommand, ch, sc.pos-1)
			}
			continue
		}

		switch cmd {
		case 0:
			return nil, ErrMissingCommand

		case 'M', 'm':
			p, err := sc.point()
			if err != nil {
				return nil, err
			}
			if cmd == 'm' {
				p = cur.Add(p)
			}
			cur, start = p, p
			out.append(p)
			// Extra coordinate pairs after a moveto are implicit linetos.
			if cmd == 'M' {
				cmd = 'L'
			} else {
				cmd = 'l'
			}

		case 'L', 'l':
			p, err := sc.point()
			if err != nil {
				return nil, err
			}
			if cmd == 'l' {
				p = cur.Add(p)
			}
			out.line(cur, p)
			cur = p

		case 'V', 'v':
			y, err := sc.number()
			if err != nil {
				return nil, err
			}
			if cmd == 'v' {
				y += cur.Y
			}
			p := Vec2{X: cur.X, Y: y}
			out.line(cur, p)
			cur = p

		case 'C', 'c':
			c1, c2, end, err := sc.cubic()
			if err != nil {
				return nil, err
			}
			if cmd == 'c' {
				c1, c2, end = cur.Add(c1), cur.Add(c2), cur.Add(end)
			}
			out.cubic(cur, c1, c2, end)
			cur = end

		case 'Z', 'z':
			return nil, fmt.Errorf("%w: coordinates after close-path at offset %d", ErrMalformedNumber, sc.pos)
		}
	}

	return out, nil
}

// CubicBezier evaluates a cubic Bézier curve at t using the Bernstein basis.
func CubicBezier(p0, p1, p2, p3 Vec2, t float64) Vec2 {
	u := 1 - t
	tt := t * t
	uu := u * u
	p := p0.Mul(uu * u)
	p = p.Add(p1.Mul(3 * uu * t))
	p = p.Add(p2.Mul(3 * u * tt))
	return p.Add(p3.Mul(tt * t))
}

// Resample redistributes a polyline into evenly spaced points along its arc
// length. The step count is ceil(length/maxStep) clamped to
// [minSteps, maxSteps]. Degenerate input is returned as a copy.
func Resample(points []Vec2, maxStep float64, minSteps, maxSteps int) []Vec2 {
	if len(points) < 2 || maxStep <= 0 {
		return append([]Vec2(nil), points...)
	}

	cumulative := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cumulative[i] = cumulative[i-1] + points[i].Distance(points[i-1])
	}
	total := cumulative[len(cumulative)-1]
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return append([]Vec2(nil), points...)
	}

	steps := int(math.Ceil(total / maxStep))
	steps = max(minSteps, min(steps, maxSteps))
	if steps < 1 {
		steps = 1
	}

	var out polyline
	seg := 1
	for i := 0; i <= steps; i++ {
		dist := float64(i) / float64(steps) * total
		for seg < len(points)-1 && cumulative[seg] < dist {
			seg++
		}
		segLen := cumulative[seg] - cumulative[seg-1]
		if segLen == 0 {
			out.append(points[seg])
			continue
		}
		t := (dist - cumulative[seg-1]) / segLen
		out.append(lerp(points[seg-1], points[seg], math.Max(0, math.Min(1, t))))
	}
	return out
}

// polyline appends points while dropping near-duplicates, which would
// otherwise create zero-length segments.
type polyline []Vec2

func (pl *polyline) append(p Vec2) {
	if n := len(*pl); n > 0 && almostEqual((*pl)[n-1], p, DuplicateEpsilon) {
		return
	}
	*pl = append(*pl, p)
}

func (pl *polyline) line(from, to Vec2) {
	pl.append(from)
	pl.append(to)
}

func (pl *polyline) cubic(from, c1, c2, to Vec2) {
	pl.append(from)
	for i := 1; i <= CubicSegments; i++ {
		t := float64(i) / CubicSegments
		pl.append(CubicBezier(from, c1, c2, to, t))
	}
}

// pathScanner tokenizes the SVG path micro-syntax.
type pathScanner struct {
	data string
	pos  int
}

func (s *pathScanner) done() bool { return s.pos >= len(s.data) }

func (s *pathScanner) peek() byte { return s.data[s.pos] }

func (s *pathScanner) skipSeparators() {
	for !s.done() {
		switch s.peek() {
		case ' ', '\t', '\n', '\r', '\f', ',':
			s.pos++
		default:
			return
		}
	}
}

// number reads one signed float with optional fraction and exponent.
func (s *pathScanner) number() (float64, error) {
	s.skipSeparators()
	start := s.pos

	if !s.done() && (s.peek() == '+' || s.peek() == '-') {
		s.pos++
	}
	digits := s.digits()
	if !s.done() && s.peek() == '.' {
		s.pos++
		digits += s.digits()
	}
	if digits == 0 {
		return 0, s.malformed(start)
	}
	if !s.done() && (s.peek() == 'e' || s.peek() == 'E') {
		s.pos++
		if !s.done() && (s.peek() == '+' || s.peek() == '-') {
			s.pos++
		}
		if s.digits() == 0 {
			return 0, s.malformed(start)
		}
	}

	v, err := strconv.ParseFloat(s.data[start:s.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrMalformedNumber, s.data[start:s.pos], err)
	}
	return v, nil
}

func (s *pathScanner) digits() int {
	n := 0
	for !s.done() && s.peek() >= '0' && s.peek() <= '9' {
		s.pos++
		n++
	}
	return n
}

func (s *pathScanner) point() (Vec2, error) {
	x, err := s.number()
	if err != nil {
		return Vec2{}, err
	}
	y, err := s.number()
	if err != nil {
		return Vec2{}, err
	}
	return Vec2{X: x, Y: y}, nil
}

func (s *pathScanner) cubic() (c1, c2, end Vec2, err error) {
	if c1, err = s.point(); err != nil {
		return
	}
	if c2, err = s.point(); err != nil {
		return
	}
	end, err = s.point()
	return
}

func (s *pathScanner) malformed(start int) error {
	end := min(s.pos+1, len(s.data))
	return fmt.Errorf("%w at offset %d (%q)", ErrMalformedNumber, start, s.data[start:end])
}

func isCommandLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
