package live

import (
	"encoding/json"
	"time"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/session"
)

// Message is the envelope for everything written to a live-feed socket.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	ClientID  string          `json:"clientId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	TypeWelcome = "welcome"
	TypeError   = "error"

	// Session progress, mirrored from session events
	TypeSnapAccepted     = session.EventSnapAccepted
	TypeSessionCompleted = session.EventSessionCompleted
	TypeSessionDiscarded = session.EventSessionDiscarded
)

// WelcomePayload carries the session state at the time the socket opened.
type WelcomePayload struct {
	Session session.Snapshot `json:"session"`
}

type ProgressPayload struct {
	PieceID      string    `json:"pieceId,omitempty"`
	PlacedPieces int       `json:"placedPieces"`
	TotalPieces  int       `json:"totalPieces"`
	At           time.Time `json:"atUtc"`
}

type DiscardedPayload struct {
	Reason       string    `json:"reason"`
	PlacedPieces int       `json:"placedPieces"`
	TotalPieces  int       `json:"totalPieces"`
	At           time.Time `json:"atUtc"`
}

// messageFor translates a session event into its wire form.
func messageFor(e session.Event) (*Message, error) {
	var payload interface{}
	switch e.Type {
	case session.EventSessionDiscarded:
		payload = DiscardedPayload{
			Reason:       e.Reason,
			PlacedPieces: e.PlacedPieces,
			TotalPieces:  e.TotalPieces,
			At:           e.At,
		}
	default:
		payload = ProgressPayload{
			PieceID:      e.PieceID,
			PlacedPieces: e.PlacedPieces,
			TotalPieces:  e.TotalPieces,
			At:           e.At,
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: e.Type, SessionID: e.SessionID, Payload: raw}, nil
}
