package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidStats = errors.New("invalid statistics update")
)

type Language int

const (
	LanguageGerman Language = iota
	LanguageEnglish
)

// Salutation selects du (informal) or Sie (formal) in the German copy.
type Salutation int

const (
	SalutationInformal Salutation = iota
	SalutationFormal
)

// User is a player's profile plus best results. Statistics stay nil until
// the first result is recorded.
type User struct {
	UID                   uuid.UUID  `json:"uid"`
	Name                  string     `json:"name"`
	Language              Language   `json:"language"`
	Salutation            Salutation `json:"salutation"`
	MaxPiecesAchieved     *int       `json:"maxPiecesAchieved"`
	FastestTimeSeconds    *float64   `json:"fastestTimeSeconds"`
	TotalPuzzlesCompleted *int       `json:"totalPuzzlesCompleted"`
	LastAccessedUtc       *time.Time `json:"lastAccessedUtc"`
}

// Outcome is one game result. It is only built server side from a
// validated session; there is no client route that accepts one.
type Outcome struct {
	PiecesAchieved        int
	CompletionTimeSeconds *float64
	PuzzleCompleted       bool
}

func (u Outcome) Validate() error {
	if u.PiecesAchieved < 0 {
		return fmt.Errorf("%w: pieces achieved cannot be negative", ErrInvalidStats)
	}
	if u.CompletionTimeSeconds != nil && *u.CompletionTimeSeconds < 0 {
		return fmt.Errorf("%w: completion time cannot be negative", ErrInvalidStats)
	}
	return nil
}

// Apply folds a result into the user's statistics: the best piece count, the
// fastest completed time and the completion counter.
func (u *User) Apply(up Outcome, now time.Time) {
	if u.MaxPiecesAchieved == nil || up.PiecesAchieved > *u.MaxPiecesAchieved {
		pieces := up.PiecesAchieved
		u.MaxPiecesAchieved = &pieces
	}

	if up.PuzzleCompleted && up.CompletionTimeSeconds != nil {
		if u.FastestTimeSeconds == nil || *up.CompletionTimeSeconds < *u.FastestTimeSeconds {
			t := *up.CompletionTimeSeconds
			u.FastestTimeSeconds = &t
		}
		total := 1
		if u.TotalPuzzlesCompleted != nil {
			total = *u.TotalPuzzlesCompleted + 1
		}
		u.TotalPuzzlesCompleted = &total
	}

	at := now.UTC()
	u.LastAccessedUtc = &at
}

// Store persists user profiles.
type Store interface {
	Get(ctx context.Context, uid uuid.UUID) (*User, error)
	// ApplyOutcome folds a finished session into the user's statistics.
	ApplyOutcome(ctx context.Context, uid uuid.UUID, up Outcome) (*User, error)
	// Upsert creates the user or refreshes its profile fields. Statistics of
	// an existing user are kept.
	Upsert(ctx context.Context, u User) error
}
