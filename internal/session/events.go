package session

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventSnapAccepted     = "snap.accepted"
	EventSessionCompleted = "session.completed"
	EventSessionDiscarded = "session.discarded"
)

// Event describes a state change of one session.
type Event struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"sessionId"`
	UserID       uuid.UUID `json:"userId"`
	PieceID      string    `json:"pieceId,omitempty"`
	PlacedPieces int       `json:"placedPieces"`
	TotalPieces  int       `json:"totalPieces"`
	// Reason is set for discards: "discarded", "inactive" or "retention".
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher receives session events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
