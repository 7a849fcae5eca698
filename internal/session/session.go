package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/puzzle"
)

// Placement is an accepted piece report. It is never modified after insert.
type Placement struct {
	PieceID         string        `json:"pieceId"`
	Anchor          geometry.Vec2 `json:"anchor"`
	Distance        float64       `json:"distance"`
	AllowedDistance float64       `json:"allowedDistance"`
	RecordedAt      time.Time     `json:"recordedAtUtc"`
}

// Session is one user's attempt at the puzzle. The identity fields are fixed
// at creation; everything below mu is guarded by it.
type Session struct {
	ID            string
	UserID        uuid.UUID
	StartedAt     time.Time
	Puzzle        *puzzle.Definition
	PuzzleVersion string

	mu          sync.Mutex
	saveMu      sync.Mutex
	lastUpdated time.Time
	completed   bool
	completedAt time.Time
	saved       bool
	placements  map[string]Placement
}

func newSession(id string, user uuid.UUID, def *puzzle.Definition, now time.Time) *Session {
	return &Session{
		ID:            id,
		UserID:        user,
		StartedAt:     now,
		Puzzle:        def,
		PuzzleVersion: def.Version,
		lastUpdated:   now,
		placements:    make(map[string]Placement),
	}
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID            string      `json:"sessionId"`
	UserID        uuid.UUID   `json:"userId"`
	PuzzleVersion string      `json:"puzzleVersion"`
	StartedAt     time.Time   `json:"startedAtUtc"`
	LastUpdatedAt time.Time   `json:"lastUpdatedUtc"`
	Completed     bool        `json:"completed"`
	CompletedAt   *time.Time  `json:"completedAtUtc,omitempty"`
	Saved         bool        `json:"saved"`
	TotalPieces   int         `json:"totalPieces"`
	PlacedPieces  int         `json:"placedPieces"`
	Placements    []Placement `json:"placements"`
}

// DurationSeconds is the solve time, never negative. Zero until completed.
func (s Snapshot) DurationSeconds() float64 {
	if s.CompletedAt == nil {
		return 0
	}
	return max(s.CompletedAt.Sub(s.StartedAt).Seconds(), 0)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.ID,
		UserID:        s.UserID,
		PuzzleVersion: s.PuzzleVersion,
		StartedAt:     s.StartedAt,
		LastUpdatedAt: s.lastUpdated,
		Completed:     s.completed,
		Saved:         s.saved,
		TotalPieces:   s.Puzzle.PieceCount(),
		PlacedPieces:  len(s.placements),
		Placements:    make([]Placement, 0, len(s.placements)),
	}
	if s.completed {
		at := s.completedAt
		snap.CompletedAt = &at
	}
	for _, p := range s.placements {
		snap.Placements = append(snap.Placements, p)
	}
	sort.Slice(snap.Placements, func(i, j int) bool {
		a, b := snap.Placements[i], snap.Placements[j]
		if a.RecordedAt.Equal(b.RecordedAt) {
			return a.PieceID < b.PieceID
		}
		return a.RecordedAt.Before(b.RecordedAt)
	})
	return snap
}

// staleLocked reports an active session idle for longer than inactivity.
func (s *Session) staleLocked(now time.Time, inactivity time.Duration) bool {
	return !s.completed && now.Sub(s.lastUpdated) > inactivity
}

// expiredLocked reports whether a sweep should evict the session.
func (s *Session) expiredLocked(now time.Time, inactivity, retention time.Duration) bool {
	if s.completed {
		return now.Sub(s.completedAt) > retention
	}
	return s.staleLocked(now, inactivity)
}

func placementKey(pieceID string) string {
	return strings.ToLower(strings.TrimSpace(pieceID))
}
