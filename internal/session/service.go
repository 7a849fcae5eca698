package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/puzzle"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/typeid"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/users"
)

const (
	DefaultInactivityTimeout  = 45 * time.Minute
	DefaultCompletedRetention = 10 * time.Minute

	// Slack applied on top of a piece's tolerance to absorb drift between the
	// client's and the server's geometry.
	DistanceSlackFactor = 1.15
	DistanceSlackPixels = 4.0
)

var ErrInvalidUser = errors.New("invalid user id")

// SnapRequest is a client's report that a piece snapped into place.
type SnapRequest struct {
	PieceID string
	Anchor  geometry.Vec2
	// ClientDistance is informational only.
	ClientDistance *float64
	// ClientTolerance, when set, replaces the piece's own tolerance as the
	// base of the allowed distance. It is not clamped.
	ClientTolerance *float64
}

// OutcomeRecorder persists the result of a completed session.
type OutcomeRecorder interface {
	ApplyOutcome(ctx context.Context, uid uuid.UUID, up users.Outcome) (*users.User, error)
}

type Service struct {
	puzzles    puzzle.Provider
	store      Store
	events     Publisher
	recorder   OutcomeRecorder
	logger     *slog.Logger
	now        func() time.Time
	inactivity time.Duration
	retention  time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now. Times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = func() time.Time { return now().UTC() } }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("component", "session") }
}

// WithTimeouts overrides the inactivity and completed-retention windows.
// Non-positive values keep the defaults.
func WithTimeouts(inactivity, retention time.Duration) Option {
	return func(s *Service) {
		if inactivity > 0 {
			s.inactivity = inactivity
		}
		if retention > 0 {
			s.retention = retention
		}
	}
}

func WithEvents(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithRecorder sets where completed sessions are recorded. Without one,
// completion only marks the session saved.
func WithRecorder(r OutcomeRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func NewService(puzzles puzzle.Provider, store Store, opts ...Option) *Service {
	s := &Service{
		puzzles:    puzzles,
		store:      store,
		events:     nopPublisher{},
		logger:     slog.Default().With("component", "session"),
		now:        func() time.Time { return time.Now().UTC() },
		inactivity: DefaultInactivityTimeout,
		retention:  DefaultCompletedRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllowedDistance is (clientTolerance ?? tolerance) * 1.15 + 4.
func AllowedDistance(tolerance float64, clientTolerance *float64) float64 {
	base := tolerance
	if clientTolerance != nil {
		base = *clientTolerance
	}
	return base*DistanceSlackFactor + DistanceSlackPixels
}

// StartSession returns the user's current session or creates one. Expired
// sessions are swept first.
func (s *Service) StartSession(ctx context.Context, user uuid.UUID) (StartResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if user == uuid.Nil {
		return nil, ErrInvalidUser
	}

	s.Sweep(ctx)

	def, err := s.puzzles.Definition()
	if err != nil {
		return nil, fmt.Errorf("load puzzle definition: %w", err)
	}

	for {
		if existingID, ok := s.store.UserSession(user); ok {
			result, retry := s.inspectExisting(user, existingID)
			if !retry {
				return result, nil
			}
			continue
		}

		sess := newSession(typeid.NewSessionID(), user, def, s.now())
		s.store.Put(sess)
		if !s.store.SwapUserSession(user, "", sess.ID) {
			// Lost a race with a concurrent start for the same user.
			s.store.Remove(sess.ID)
			continue
		}

		s.logger.Info("created session", "session", sess.ID, "user", user, "pieces", def.PieceCount())
		return StartCreated{Session: sess.Snapshot()}, nil
	}
}

// inspectExisting decides what an indexed session means for a start call.
// retry is true when the index entry was cleared and the caller should look
// again.
func (s *Service) inspectExisting(user uuid.UUID, id string) (result StartResult, retry bool) {
	existing, err := s.store.Get(id)
	if err != nil {
		s.store.ReleaseUser(user, id)
		return nil, true
	}

	now := s.now()
	existing.mu.Lock()
	switch {
	case existing.completed && !existing.saved:
		snap := existing.snapshotLocked()
		existing.mu.Unlock()
		s.logger.Info("user has unsaved completed session", "session", id, "user", user)
		return StartUnsavedCompleted{Session: snap}, false

	case existing.completed:
		existing.mu.Unlock()
		s.store.ReleaseUser(user, id)
		return nil, true

	case existing.staleLocked(now, s.inactivity):
		snap := existing.snapshotLocked()
		existing.mu.Unlock()
		s.evict(snap, "inactive")
		return nil, true

	default:
		snap := existing.snapshotLocked()
		existing.mu.Unlock()
		return StartAlreadyActive{Session: snap}, false
	}
}

// RecordPieceSnap validates a reported placement against the session's
// puzzle definition.
func (s *Service) RecordPieceSnap(ctx context.Context, user uuid.UUID, sessionID string, req SnapRequest) (SnapResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, ok, err := s.owned(user, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return SnapSessionNotFound{}, nil
	}

	now := s.now()
	sess.mu.Lock()

	if sess.staleLocked(now, s.inactivity) {
		snap := sess.snapshotLocked()
		sess.mu.Unlock()
		s.evict(snap, "inactive")
		return SnapSessionNotFound{}, nil
	}

	total := sess.Puzzle.PieceCount()
	if sess.completed {
		placed := len(sess.placements)
		sess.mu.Unlock()
		return SnapSessionCompleted{TotalPieces: total, PlacedPieces: placed}, nil
	}

	piece, ok := sess.Puzzle.Piece(req.PieceID)
	if !ok {
		sess.mu.Unlock()
		s.logger.Warn("unknown piece reported", "user", user, "session", sessionID, "piece", req.PieceID)
		return SnapUnknownPiece{PieceID: req.PieceID}, nil
	}

	distance := req.Anchor.Distance(piece.Target)
	allowed := AllowedDistance(piece.SnapTolerance, req.ClientTolerance)
	if distance > allowed {
		sess.mu.Unlock()
		s.logger.Info("rejecting snap",
			"user", user,
			"session", sessionID,
			"piece", piece.ID,
			"distance", distance,
			"allowed", allowed,
			"clientTolerance", req.ClientTolerance,
			"baseTolerance", piece.SnapTolerance,
		)
		return SnapTooFar{PieceID: piece.ID, Distance: distance, AllowedDistance: allowed}, nil
	}

	key := placementKey(piece.ID)
	if _, dup := sess.placements[key]; dup {
		sess.lastUpdated = now
		placed := len(sess.placements)
		sess.mu.Unlock()
		return SnapDuplicate{
			PieceID:         piece.ID,
			Distance:        distance,
			AllowedDistance: allowed,
			TotalPieces:     total,
			PlacedPieces:    placed,
		}, nil
	}

	sess.placements[key] = Placement{
		PieceID:         piece.ID,
		Anchor:          req.Anchor,
		Distance:        distance,
		AllowedDistance: allowed,
		RecordedAt:      now,
	}
	sess.lastUpdated = now
	placed := len(sess.placements)
	completed := placed == total
	if completed {
		sess.completed = true
		sess.completedAt = now
	}
	sess.mu.Unlock()

	s.events.Publish(Event{
		Type:         EventSnapAccepted,
		SessionID:    sess.ID,
		UserID:       user,
		PieceID:      piece.ID,
		PlacedPieces: placed,
		TotalPieces:  total,
		At:           now,
	})
	if completed {
		s.logger.Info("session completed",
			"session", sess.ID,
			"user", user,
			"duration", now.Sub(sess.StartedAt).Seconds(),
		)
		s.events.Publish(Event{
			Type:         EventSessionCompleted,
			SessionID:    sess.ID,
			UserID:       user,
			PlacedPieces: placed,
			TotalPieces:  total,
			At:           now,
		})
	}

	return SnapAccepted{
		PieceID:         piece.ID,
		Distance:        distance,
		AllowedDistance: allowed,
		TotalPieces:     total,
		PlacedPieces:    placed,
		Completed:       completed,
	}, nil
}

// CompleteSession finalizes a session whose last piece was already accepted
// and records the result. The session counts as saved only once the recorder
// has accepted it, so a failed write can be retried. It then frees the user
// to start again; the session itself stays until the retention window passes
// so repeated calls see CompleteAlreadySaved.
func (s *Service) CompleteSession(ctx context.Context, user uuid.UUID, sessionID string) (CompleteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, ok, err := s.owned(user, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return CompleteNotFound{}, nil
	}

	// Serializes completions of one session across the recorder call.
	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()

	sess.mu.Lock()
	total := sess.Puzzle.PieceCount()
	placed := len(sess.placements)
	if !sess.completed {
		sess.mu.Unlock()
		s.logger.Warn("completion rejected",
			"session", sessionID,
			"user", user,
			"placed", placed,
			"total", total,
		)
		return CompleteIncomplete{TotalPieces: total, PlacedPieces: placed}, nil
	}

	c := Completion{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		StartedAt:       sess.StartedAt,
		CompletedAt:     sess.completedAt,
		DurationSeconds: max(sess.completedAt.Sub(sess.StartedAt).Seconds(), 0),
		TotalPieces:     total,
		PlacedPieces:    placed,
	}
	alreadySaved := sess.saved
	sess.mu.Unlock()

	if alreadySaved {
		return CompleteAlreadySaved{Completion: c}, nil
	}

	var u *users.User
	if s.recorder != nil {
		duration := c.DurationSeconds
		u, err = s.recorder.ApplyOutcome(ctx, user, users.Outcome{
			PiecesAchieved:        placed,
			CompletionTimeSeconds: &duration,
			PuzzleCompleted:       true,
		})
		switch {
		case errors.Is(err, users.ErrNotFound):
			s.logger.Warn("completed session for unknown user", "session", sessionID, "user", user)
		case err != nil:
			return nil, fmt.Errorf("record session %s: %w", sessionID, err)
		}
	}

	sess.mu.Lock()
	sess.saved = true
	sess.mu.Unlock()

	s.store.ReleaseUser(user, sessionID)
	s.logger.Info("session saved", "session", sessionID, "user", user, "duration", c.DurationSeconds)
	return CompleteSucceeded{Completion: c, User: u}, nil
}

// DiscardSession drops the user's session without recording statistics. It
// reports false when there was nothing to discard.
func (s *Service) DiscardSession(ctx context.Context, user uuid.UUID, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	sess, ok, err := s.owned(user, sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	snap := sess.Snapshot()
	if !s.store.Remove(sessionID) {
		return false, nil
	}
	s.store.ReleaseUser(user, sessionID)
	s.logger.Info("discarded session", "session", sessionID, "user", user)
	s.publishDiscard(snap, "discarded")
	return true, nil
}

// GetSession returns a snapshot of any stored session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Sweep evicts idle active sessions and completed sessions past retention.
// It returns how many were removed.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.now()
	var expired []Snapshot
	s.store.Range(func(sess *Session) bool {
		if ctx.Err() != nil {
			return false
		}
		sess.mu.Lock()
		if sess.expiredLocked(now, s.inactivity, s.retention) {
			expired = append(expired, sess.snapshotLocked())
		}
		sess.mu.Unlock()
		return true
	})

	n := 0
	for _, snap := range expired {
		reason := "inactive"
		if snap.Completed {
			reason = "retention"
		}
		if s.evict(snap, reason) {
			n++
		}
	}
	return n
}

func (s *Service) evict(snap Snapshot, reason string) bool {
	if !s.store.Remove(snap.ID) {
		return false
	}
	s.store.ReleaseUser(snap.UserID, snap.ID)
	if reason == "inactive" {
		s.logger.Warn("removed inactive session", "session", snap.ID, "user", snap.UserID)
	} else {
		s.logger.Debug("removed completed session", "session", snap.ID, "user", snap.UserID, "saved", snap.Saved)
	}
	s.publishDiscard(snap, reason)
	return true
}

func (s *Service) publishDiscard(snap Snapshot, reason string) {
	s.events.Publish(Event{
		Type:         EventSessionDiscarded,
		SessionID:    snap.ID,
		UserID:       snap.UserID,
		PlacedPieces: snap.PlacedPieces,
		TotalPieces:  snap.TotalPieces,
		Reason:       reason,
		At:           s.now(),
	})
}

// owned loads a session and checks it belongs to user. A missing session
// and a foreign one look the same to the caller.
func (s *Service) owned(user uuid.UUID, sessionID string) (*Session, bool, error) {
	sess, err := s.store.Get(sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != user {
		return nil, false, nil
	}
	return sess, true, nil
}
