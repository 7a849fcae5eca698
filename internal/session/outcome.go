package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/users"
)

// StartResult is one of StartCreated, StartAlreadyActive or
// StartUnsavedCompleted.
type StartResult interface {
	startResult()
}

// StartCreated carries a freshly created session.
type StartCreated struct {
	Session Snapshot
}

// StartAlreadyActive means the user already has a live session; it is
// returned instead of creating a second one.
type StartAlreadyActive struct {
	Session Snapshot
}

// StartUnsavedCompleted means the user finished a round that has not been
// saved or discarded yet. A new session cannot start until it is.
type StartUnsavedCompleted struct {
	Session Snapshot
}

func (StartCreated) startResult()          {}
func (StartAlreadyActive) startResult()    {}
func (StartUnsavedCompleted) startResult() {}

type SnapStatus string

const (
	StatusAccepted         SnapStatus = "Accepted"
	StatusDuplicate        SnapStatus = "Duplicate"
	StatusTooFar           SnapStatus = "TooFar"
	StatusUnknownPiece     SnapStatus = "UnknownPiece"
	StatusSessionNotFound  SnapStatus = "SessionNotFound"
	StatusSessionCompleted SnapStatus = "SessionCompleted"
)

// SnapResult is the outcome of RecordPieceSnap. Switch on the concrete type.
type SnapResult interface {
	Status() SnapStatus
}

// SnapAccepted records a new placement. Completed is true only for the call
// that placed the last piece.
type SnapAccepted struct {
	PieceID         string
	Distance        float64
	AllowedDistance float64
	TotalPieces     int
	PlacedPieces    int
	Completed       bool
}

// SnapDuplicate is a repeated report for a piece that is already placed.
type SnapDuplicate struct {
	PieceID         string
	Distance        float64
	AllowedDistance float64
	TotalPieces     int
	PlacedPieces    int
}

type SnapTooFar struct {
	PieceID         string
	Distance        float64
	AllowedDistance float64
}

type SnapUnknownPiece struct {
	PieceID string
}

type SnapSessionNotFound struct{}

type SnapSessionCompleted struct {
	TotalPieces  int
	PlacedPieces int
}

func (SnapAccepted) Status() SnapStatus         { return StatusAccepted }
func (SnapDuplicate) Status() SnapStatus        { return StatusDuplicate }
func (SnapTooFar) Status() SnapStatus           { return StatusTooFar }
func (SnapUnknownPiece) Status() SnapStatus     { return StatusUnknownPiece }
func (SnapSessionNotFound) Status() SnapStatus  { return StatusSessionNotFound }
func (SnapSessionCompleted) Status() SnapStatus { return StatusSessionCompleted }

// Completion is the timing of a finished session.
type Completion struct {
	SessionID       string
	UserID          uuid.UUID
	StartedAt       time.Time
	CompletedAt     time.Time
	DurationSeconds float64
	TotalPieces     int
	PlacedPieces    int
}

// CompleteResult is one of CompleteSucceeded, CompleteAlreadySaved,
// CompleteIncomplete or CompleteNotFound.
type CompleteResult interface {
	completeResult()
}

// CompleteSucceeded is returned once per session, after the result was
// recorded. User is the updated profile, nil when no profile exists.
type CompleteSucceeded struct {
	Completion
	User *users.User
}

// CompleteAlreadySaved repeats the timing of a session that was already
// completed through this operation.
type CompleteAlreadySaved struct {
	Completion
}

type CompleteIncomplete struct {
	TotalPieces  int
	PlacedPieces int
}

type CompleteNotFound struct{}

func (CompleteSucceeded) completeResult()    {}
func (CompleteAlreadySaved) completeResult() {}
func (CompleteIncomplete) completeResult()   {}
func (CompleteNotFound) completeResult()     {}
