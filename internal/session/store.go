package session

import (
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Store holds sessions by id plus the index from user to that user's current
// session. Implementations must be safe for concurrent use; no operation may
// lock the whole table.
type Store interface {
	// Get returns ErrNotFound for unknown ids.
	Get(id string) (*Session, error)
	Put(s *Session)
	// Remove reports whether the session was present.
	Remove(id string) bool
	// Range calls fn for every session until fn returns false.
	Range(fn func(*Session) bool)

	// UserSession returns the session id indexed for user.
	UserSession(user uuid.UUID) (string, bool)
	// SwapUserSession atomically replaces the user's entry when it still
	// equals old. An empty old means "only if the user has no entry".
	SwapUserSession(user uuid.UUID, old, next string) bool
	// ReleaseUser removes the user's entry only if it still points at
	// sessionID.
	ReleaseUser(user uuid.UUID, sessionID string) bool
}
